package settlement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/voyager-crm/voyager/internal/pricing"
	"github.com/voyager-crm/voyager/internal/shared"
)

// Outcome labels recorded per settlement attempt.
const (
	OutcomeIncome     = "income_created"
	OutcomeCommission = "commission_created"
	OutcomeUnchanged  = "unchanged"
	OutcomeFailed     = "failed"
)

// Recorder receives settlement outcomes; jobmetrics.Metrics satisfies it.
type Recorder interface {
	RecordSettlement(outcome string)
}

// CommissionNotice is handed to the Notifier after a commission is committed.
type CommissionNotice struct {
	CollaboratorName  string
	CollaboratorEmail string
	ProposalNumber    int
	ProposalTitle     string
	Amount            string
}

// Notifier tells a collaborator about a new commission.
type Notifier interface {
	NotifyCommission(ctx context.Context, notice CommissionNotice) error
}

// Service settles closed proposals.
type Service struct {
	repo     Repository
	locker   *shared.Locker
	recorder Recorder
	notifier Notifier
	logger   *slog.Logger
}

// Option customises the Service.
type Option func(*Service)

// WithLocker serialises settlement per proposal across processes.
func WithLocker(l *shared.Locker) Option { return func(s *Service) { s.locker = l } }

// WithRecorder wires outcome metrics.
func WithRecorder(r Recorder) Option { return func(s *Service) { s.recorder = r } }

// WithNotifier wires commission notifications.
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// NewService constructs the settlement service.
func NewService(repo Repository, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{repo: repo, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Settle creates the missing income transaction and collaborator commission for one proposal.
// Both writes commit together; existing rows are left untouched.
func (s *Service) Settle(ctx context.Context, proposalID uuid.UUID) (*Result, error) {
	var (
		result *Result
		notice *CommissionNotice
	)
	err := s.locker.WithLock(ctx, shared.ProposalSettlementLockKey(proposalID), func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
			var err error
			result, notice, err = settle(ctx, repo, proposalID)
			return err
		})
	})
	if err != nil {
		s.record(OutcomeFailed)
		return nil, fmt.Errorf("settle proposal %s: %w", proposalID, err)
	}

	switch {
	case result.IncomeCreated:
		s.record(OutcomeIncome)
	case !result.CommissionCreated:
		s.record(OutcomeUnchanged)
	}
	if result.CommissionCreated {
		s.record(OutcomeCommission)
	}
	if notice != nil && s.notifier != nil && notice.CollaboratorEmail != "" {
		if err := s.notifier.NotifyCommission(ctx, *notice); err != nil {
			s.logger.Warn("commission notice not queued",
				slog.String("proposal_id", proposalID.String()), slog.Any("error", err))
		}
	}
	return result, nil
}

func settle(ctx context.Context, repo Repository, proposalID uuid.UUID) (*Result, *CommissionNotice, error) {
	proposal, err := repo.Proposal(ctx, proposalID)
	if err != nil {
		return nil, nil, err
	}
	lines, err := repo.ServiceLines(ctx, proposalID)
	if err != nil {
		return nil, nil, fmt.Errorf("load services: %w", err)
	}
	totals := pricing.Aggregate(lines)
	result := &Result{ProposalID: proposalID, Totals: totals}
	if !totals.TotalValue.IsPositive() {
		return result, nil, nil
	}

	exists, err := repo.IncomeExists(ctx, proposalID)
	if err != nil {
		return nil, nil, fmt.Errorf("check income: %w", err)
	}
	if !exists {
		result.IncomeCreated, err = repo.InsertIncome(ctx, Income{
			AgencyID:    proposal.AgencyID,
			ProposalID:  proposal.ID,
			ClientID:    proposal.ClientID,
			Description: Description(proposal.Number, proposal.Title),
			TotalValue:  totals.TotalValue,
			ProfitValue: totals.TotalCommission,
			LaunchDate:  LaunchDate(proposal.CreatedAt),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("insert income: %w", err)
		}
	}

	collaborator, err := responsible(ctx, repo, proposal)
	if err != nil {
		return nil, nil, err
	}
	if collaborator == nil {
		return result, nil, nil
	}
	result.CollaboratorID = &collaborator.ID

	exists, err = repo.CommissionExists(ctx, proposalID, collaborator.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("check commission: %w", err)
	}
	if exists {
		return result, nil, nil
	}
	_, amount := pricing.CollaboratorCommission(collaborator.CommissionBase, totals, collaborator.CommissionPercentage)
	result.CommissionCreated, err = repo.InsertCommission(ctx, Commission{
		AgencyID:             proposal.AgencyID,
		CollaboratorID:       collaborator.ID,
		ProposalID:           proposal.ID,
		SaleValue:            totals.TotalValue,
		ProfitValue:          totals.TotalCommission,
		CommissionPercentage: collaborator.CommissionPercentage,
		CommissionBase:       collaborator.CommissionBase,
		CommissionAmount:     amount,
		PeriodMonth:          int(proposal.CreatedAt.Month()),
		PeriodYear:           proposal.CreatedAt.Year(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("insert commission: %w", err)
	}
	if !result.CommissionCreated {
		return result, nil, nil
	}
	result.CommissionAmount = &amount
	return result, &CommissionNotice{
		CollaboratorName:  collaborator.Name,
		CollaboratorEmail: collaborator.Email,
		ProposalNumber:    proposal.Number,
		ProposalTitle:     proposal.Title,
		Amount:            pricing.FormatBRL(amount),
	}, nil
}

// responsible prefers the assigned collaborator, then the creator's collaborator record.
func responsible(ctx context.Context, repo Repository, p *Proposal) (*Collaborator, error) {
	if p.AssignedCollaboratorID != nil {
		c, err := repo.Collaborator(ctx, p.AgencyID, *p.AssignedCollaboratorID)
		if err != nil {
			return nil, fmt.Errorf("load assigned collaborator: %w", err)
		}
		if c != nil {
			return c, nil
		}
	}
	if p.CreatedBy == nil {
		return nil, nil
	}
	c, err := repo.CollaboratorByUser(ctx, p.AgencyID, *p.CreatedBy)
	if err != nil {
		return nil, fmt.Errorf("load creator collaborator: %w", err)
	}
	return c, nil
}

// SettleBatch settles ids in order. A failure is logged and counted; the run continues.
func (s *Service) SettleBatch(ctx context.Context, ids []uuid.UUID) BatchReport {
	var report BatchReport
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		report.Processed++
		res, err := s.Settle(ctx, id)
		if err != nil {
			report.Failed++
			report.Failures = append(report.Failures, Failure{ProposalID: id, Error: err.Error()})
			s.logger.Error("settlement failed", slog.String("proposal_id", id.String()), slog.Any("error", err))
			continue
		}
		if res.IncomeCreated {
			report.Incomes++
		}
		if res.CommissionCreated {
			report.Commissions++
		}
		if !res.Changed() {
			report.Unchanged++
		}
	}
	s.logger.Info("settlement batch finished",
		slog.Int("processed", report.Processed),
		slog.Int("incomes", report.Incomes),
		slog.Int("commissions", report.Commissions),
		slog.Int("failed", report.Failed))
	return report
}

// Backfill settles every proposal sitting in a closed stage, optionally scoped to one agency.
func (s *Service) Backfill(ctx context.Context, agencyID *uuid.UUID) (BatchReport, error) {
	ids, err := s.repo.ClosedProposalIDs(ctx, agencyID)
	if err != nil {
		return BatchReport{}, fmt.Errorf("list closed proposals: %w", err)
	}
	return s.SettleBatch(ctx, ids), nil
}

func (s *Service) record(outcome string) {
	if s.recorder != nil {
		s.recorder.RecordSettlement(outcome)
	}
}
