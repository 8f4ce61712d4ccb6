package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyager-crm/voyager/internal/pricing"
	"github.com/voyager-crm/voyager/internal/shared"
)

type memoryRepo struct {
	proposals     map[uuid.UUID]*Proposal
	lines         map[uuid.UUID][]pricing.Line
	collaborators map[uuid.UUID]*Collaborator
	byUser        map[uuid.UUID]uuid.UUID
	incomes       []Income
	commissions   []Commission
	failOn        map[uuid.UUID]error
	closed        []uuid.UUID
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		proposals:     map[uuid.UUID]*Proposal{},
		lines:         map[uuid.UUID][]pricing.Line{},
		collaborators: map[uuid.UUID]*Collaborator{},
		byUser:        map[uuid.UUID]uuid.UUID{},
		failOn:        map[uuid.UUID]error{},
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	incomes, commissions := len(r.incomes), len(r.commissions)
	if err := fn(ctx, r); err != nil {
		r.incomes, r.commissions = r.incomes[:incomes], r.commissions[:commissions]
		return err
	}
	return nil
}

func (r *memoryRepo) Proposal(_ context.Context, id uuid.UUID) (*Proposal, error) {
	if err := r.failOn[id]; err != nil {
		return nil, err
	}
	p, ok := r.proposals[id]
	if !ok {
		return nil, ErrProposalNotFound
	}
	return p, nil
}

func (r *memoryRepo) ServiceLines(_ context.Context, id uuid.UUID) ([]pricing.Line, error) {
	return r.lines[id], nil
}

func (r *memoryRepo) Collaborator(_ context.Context, _ uuid.UUID, id uuid.UUID) (*Collaborator, error) {
	return r.collaborators[id], nil
}

func (r *memoryRepo) CollaboratorByUser(_ context.Context, _ uuid.UUID, userID uuid.UUID) (*Collaborator, error) {
	id, ok := r.byUser[userID]
	if !ok {
		return nil, nil
	}
	return r.collaborators[id], nil
}

func (r *memoryRepo) IncomeExists(_ context.Context, proposalID uuid.UUID) (bool, error) {
	for _, in := range r.incomes {
		if in.ProposalID == proposalID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepo) InsertIncome(ctx context.Context, in Income) (bool, error) {
	if exists, _ := r.IncomeExists(ctx, in.ProposalID); exists {
		return false, nil
	}
	r.incomes = append(r.incomes, in)
	return true, nil
}

func (r *memoryRepo) CommissionExists(_ context.Context, proposalID, collaboratorID uuid.UUID) (bool, error) {
	for _, c := range r.commissions {
		if c.ProposalID == proposalID && c.CollaboratorID == collaboratorID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepo) InsertCommission(ctx context.Context, c Commission) (bool, error) {
	if exists, _ := r.CommissionExists(ctx, c.ProposalID, c.CollaboratorID); exists {
		return false, nil
	}
	r.commissions = append(r.commissions, c)
	return true, nil
}

func (r *memoryRepo) ClosedProposalIDs(context.Context, *uuid.UUID) ([]uuid.UUID, error) {
	return r.closed, nil
}

type countingRecorder map[string]int

func (c countingRecorder) RecordSettlement(outcome string) { c[outcome]++ }

type captureNotifier struct{ notices []CommissionNotice }

func (n *captureNotifier) NotifyCommission(_ context.Context, notice CommissionNotice) error {
	n.notices = append(n.notices, notice)
	return nil
}

var agencyID = uuid.New()

func seedProposal(repo *memoryRepo, base pricing.CommissionBase) (*Proposal, *Collaborator) {
	collab := &Collaborator{
		ID:                   uuid.New(),
		Name:                 "Ana",
		Email:                "ana@example.com",
		CommissionPercentage: decimal.NewFromInt(10),
		CommissionBase:       base,
	}
	repo.collaborators[collab.ID] = collab
	p := &Proposal{
		ID:                     uuid.New(),
		AgencyID:               agencyID,
		AssignedCollaboratorID: &collab.ID,
		Number:                 42,
		Title:                  "Lisboa",
		CreatedAt:              time.Date(2024, time.March, 15, 18, 30, 0, 0, time.UTC),
	}
	repo.proposals[p.ID] = p
	// value 1000, commission 200 in aggregate
	repo.lines[p.ID] = []pricing.Line{
		{Value: decimal.NewFromInt(600), CommissionType: pricing.CommissionPercentage, CommissionValue: decimal.NewFromInt(25)},
		{Value: decimal.NewFromInt(400), CommissionType: pricing.CommissionFixed, CommissionValue: decimal.NewFromInt(50)},
	}
	return p, collab
}

func TestSettleIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	p, collab := seedProposal(repo, pricing.BaseProfit)
	recorder := countingRecorder{}
	notifier := &captureNotifier{}
	svc := NewService(repo, nil, WithRecorder(recorder), WithNotifier(notifier))

	first, err := svc.Settle(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, first.IncomeCreated)
	assert.True(t, first.CommissionCreated)
	assert.Equal(t, collab.ID, *first.CollaboratorID)

	second, err := svc.Settle(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, second.Changed())

	require.Len(t, repo.incomes, 1)
	require.Len(t, repo.commissions, 1)
	income := repo.incomes[0]
	assert.True(t, income.TotalValue.Equal(decimal.NewFromInt(1000)))
	assert.True(t, income.ProfitValue.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, "Proposta #42 - Lisboa", income.Description)
	assert.Equal(t, time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC), income.LaunchDate)

	assert.Equal(t, 1, recorder[OutcomeIncome])
	assert.Equal(t, 1, recorder[OutcomeCommission])
	assert.Equal(t, 1, recorder[OutcomeUnchanged])
	require.Len(t, notifier.notices, 1)
	assert.Equal(t, "ana@example.com", notifier.notices[0].CollaboratorEmail)
}

func TestSettleCommissionBase(t *testing.T) {
	cases := []struct {
		base pricing.CommissionBase
		want int64
	}{
		{pricing.BaseProfit, 20},
		{pricing.BaseSale, 100},
	}
	for _, tc := range cases {
		t.Run(string(tc.base), func(t *testing.T) {
			repo := newMemoryRepo()
			p, _ := seedProposal(repo, tc.base)
			_, err := NewService(repo, nil).Settle(context.Background(), p.ID)
			require.NoError(t, err)
			require.Len(t, repo.commissions, 1)
			c := repo.commissions[0]
			assert.True(t, c.CommissionAmount.Equal(decimal.NewFromInt(tc.want)), c.CommissionAmount.String())
			assert.Equal(t, 3, c.PeriodMonth)
			assert.Equal(t, 2024, c.PeriodYear)
			assert.Equal(t, tc.base, c.CommissionBase)
		})
	}
}

func TestSettleFallsBackToCreatorCollaborator(t *testing.T) {
	repo := newMemoryRepo()
	p, collab := seedProposal(repo, pricing.BaseSale)
	creator := uuid.New()
	missing := uuid.New()
	p.AssignedCollaboratorID = &missing
	p.CreatedBy = &creator
	repo.byUser[creator] = collab.ID

	res, err := NewService(repo, nil).Settle(context.Background(), p.ID)
	require.NoError(t, err)
	require.NotNil(t, res.CollaboratorID)
	assert.Equal(t, collab.ID, *res.CollaboratorID)
}

func TestSettleWithoutCollaboratorOnlyCreatesIncome(t *testing.T) {
	repo := newMemoryRepo()
	p, _ := seedProposal(repo, pricing.BaseSale)
	p.AssignedCollaboratorID = nil

	res, err := NewService(repo, nil).Settle(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, res.IncomeCreated)
	assert.Nil(t, res.CollaboratorID)
	assert.Empty(t, repo.commissions)
}

func TestSettleSkipsZeroTotal(t *testing.T) {
	repo := newMemoryRepo()
	p, _ := seedProposal(repo, pricing.BaseSale)
	repo.lines[p.ID] = nil

	res, err := NewService(repo, nil).Settle(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, res.Changed())
	assert.Empty(t, repo.incomes)
	assert.Empty(t, repo.commissions)
}

func TestSettleBatchContinuesPastFailures(t *testing.T) {
	repo := newMemoryRepo()
	ok1, _ := seedProposal(repo, pricing.BaseSale)
	broken, _ := seedProposal(repo, pricing.BaseSale)
	ok2, _ := seedProposal(repo, pricing.BaseSale)
	repo.failOn[broken.ID] = errors.New("connection reset")
	recorder := countingRecorder{}

	report := NewService(repo, nil, WithRecorder(recorder)).SettleBatch(context.Background(),
		[]uuid.UUID{ok1.ID, broken.ID, uuid.New(), ok2.ID})

	assert.Equal(t, 4, report.Processed)
	assert.Equal(t, 2, report.Incomes)
	assert.Equal(t, 2, report.Commissions)
	assert.Equal(t, 2, report.Failed)
	require.Len(t, report.Failures, 2)
	assert.Equal(t, broken.ID, report.Failures[0].ProposalID)
	assert.Equal(t, 2, recorder[OutcomeFailed])
}

func TestBackfillSettlesClosedProposals(t *testing.T) {
	repo := newMemoryRepo()
	p, _ := seedProposal(repo, pricing.BaseProfit)
	repo.closed = []uuid.UUID{p.ID}

	report, err := NewService(repo, nil).Backfill(context.Background(), &agencyID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Incomes)
}

func TestSettleHonoursRedisLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	rl := redislock.New(client)

	repo := newMemoryRepo()
	p, _ := seedProposal(repo, pricing.BaseProfit)

	held, err := rl.Obtain(context.Background(), shared.ProposalSettlementLockKey(p.ID), time.Minute, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	svc := NewService(repo, nil, WithLocker(shared.NewLocker(rl, time.Second)))
	_, err = svc.Settle(ctx, p.ID)
	require.Error(t, err)
	assert.Empty(t, repo.incomes)

	require.NoError(t, held.Release(context.Background()))
	_, err = svc.Settle(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Len(t, repo.incomes, 1)
}
