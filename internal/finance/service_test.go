package finance

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyager-crm/voyager/internal/platform/httpx"
	"github.com/voyager-crm/voyager/internal/shared"
)

type memoryRepo struct {
	mu           sync.Mutex
	transactions map[uuid.UUID]*Transaction
	commissions  []Commission
	totalsErr    error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{transactions: map[uuid.UUID]*Transaction{}}
}

func (r *memoryRepo) List(_ context.Context, agencyID uuid.UUID, _ shared.ListQuery) ([]Transaction, int, error) {
	var out []Transaction
	for _, t := range r.transactions {
		if t.AgencyID == agencyID {
			out = append(out, *t)
		}
	}
	return out, len(out), nil
}

func (r *memoryRepo) Get(_ context.Context, agencyID, id uuid.UUID) (*Transaction, error) {
	t, ok := r.transactions[id]
	if !ok || t.AgencyID != agencyID {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *memoryRepo) Create(_ context.Context, t Transaction) (*Transaction, error) {
	t.ID = uuid.New()
	r.transactions[t.ID] = &t
	cp := t
	return &cp, nil
}

func (r *memoryRepo) Update(_ context.Context, t Transaction) (*Transaction, error) {
	r.transactions[t.ID] = &t
	cp := t
	return &cp, nil
}

func (r *memoryRepo) SetStatus(_ context.Context, _, id uuid.UUID, from, to Status, paymentDate *time.Time) (*Transaction, error) {
	t, ok := r.transactions[id]
	if !ok || t.Status != from {
		return nil, ErrInvalidTransition
	}
	t.Status = to
	t.PaymentDate = paymentDate
	cp := *t
	return &cp, nil
}

func (r *memoryRepo) MarkOverdue(_ context.Context, _ *uuid.UUID, asOf time.Time) (int64, error) {
	var n int64
	for _, t := range r.transactions {
		if t.Status == StatusPending && t.DueDate != nil && t.DueDate.Before(asOf) {
			t.Status = StatusOverdue
			n++
		}
	}
	return n, nil
}

func (r *memoryRepo) ListCommissions(context.Context, uuid.UUID, shared.ListQuery) ([]Commission, int, error) {
	return r.commissions, len(r.commissions), nil
}

func (r *memoryRepo) GetCommission(_ context.Context, _, id uuid.UUID) (*Commission, error) {
	for _, c := range r.commissions {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, ErrCommissionNotFound
}

func (r *memoryRepo) PeriodTotals(_ context.Context, agencyID uuid.UUID, p Period) (Totals, error) {
	if r.totalsErr != nil {
		return Totals{}, r.totalsErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	start, end := p.Bounds()
	t := Totals{}
	for _, tx := range r.transactions {
		if tx.AgencyID != agencyID || tx.Status == StatusCancelled || tx.LaunchDate.Before(start) || !tx.LaunchDate.Before(end) {
			continue
		}
		switch tx.Type {
		case TypeIncome:
			t.Income = t.Income.Add(tx.TotalValue)
			t.Profit = t.Profit.Add(tx.ProfitValue)
			if tx.Status == StatusPaid {
				t.Received = t.Received.Add(tx.TotalValue)
			}
		case TypeExpense:
			t.Expenses = t.Expenses.Add(tx.TotalValue)
		}
	}
	return t, nil
}

func (r *memoryRepo) PeriodCommissions(_ context.Context, _ uuid.UUID, p Period) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, c := range r.commissions {
		if c.PeriodMonth == p.Month && c.PeriodYear == p.Year {
			total = total.Add(c.CommissionAmount)
		}
	}
	return total, nil
}

func (r *memoryRepo) PeriodStatusCounts(_ context.Context, agencyID uuid.UUID, _ Period) (StatusCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := StatusCounts{}
	for _, tx := range r.transactions {
		if tx.AgencyID == agencyID {
			counts[tx.Status]++
		}
	}
	return counts, nil
}

var (
	agencyID = uuid.New()
	may2024  = time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
)

func newTestService(repo *memoryRepo) *Service {
	svc := NewService(repo)
	svc.now = func() time.Time { return time.Date(2024, time.May, 20, 9, 0, 0, 0, time.UTC) }
	return svc
}

func createTx(t *testing.T, svc *Service, typ Type, total, profit int64, due *time.Time) *Transaction {
	t.Helper()
	tx, err := svc.Create(context.Background(), agencyID, CreateTransactionRequest{
		Type:        string(typ),
		Description: "entry",
		TotalValue:  decimal.NewFromInt(total),
		ProfitValue: decimal.NewFromInt(profit),
		LaunchDate:  may2024.AddDate(0, 0, 4),
		DueDate:     due,
	})
	require.NoError(t, err)
	return tx
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusPaid, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusOverdue, true},
		{StatusOverdue, StatusPaid, true},
		{StatusOverdue, StatusCancelled, true},
		{StatusOverdue, StatusPending, false},
		{StatusPaid, StatusPending, false},
		{StatusPaid, StatusCancelled, false},
		{StatusCancelled, StatusPaid, false},
		{StatusPending, StatusPending, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestChangeStatusPaidStampsPaymentDate(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	tx := createTx(t, svc, TypeIncome, 1000, 200, nil)
	assert.Equal(t, StatusPending, tx.Status)
	assert.Equal(t, 1, tx.Installments)

	paid, err := svc.ChangeStatus(context.Background(), agencyID, tx.ID, ChangeStatusRequest{Status: "paid"})
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, paid.Status)
	require.NotNil(t, paid.PaymentDate)
	assert.Equal(t, svc.now(), *paid.PaymentDate)

	_, err = svc.ChangeStatus(context.Background(), agencyID, tx.ID, ChangeStatusRequest{Status: "cancelled"})
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.True(t, errors.Is(err, httpx.ErrConflict))
}

func TestMarkOverdue(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	past := may2024.AddDate(0, 0, 10)
	future := may2024.AddDate(0, 1, 0)
	late := createTx(t, svc, TypeIncome, 100, 10, &past)
	createTx(t, svc, TypeIncome, 100, 10, &future)
	createTx(t, svc, TypeExpense, 50, 0, nil)

	n, err := svc.MarkOverdue(context.Background(), nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, StatusOverdue, repo.transactions[late.ID].Status)

	_, err = svc.ChangeStatus(context.Background(), agencyID, late.ID, ChangeStatusRequest{Status: "paid"})
	require.NoError(t, err)
}

func TestCreateRejectsInstallmentOverflow(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	_, err := svc.Create(context.Background(), agencyID, CreateTransactionRequest{
		Type: "expense", Description: "x", LaunchDate: may2024, Installments: 2, CurrentInstallment: 3,
	})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestSummaryAggregatesPeriod(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	paid := createTx(t, svc, TypeIncome, 1000, 200, nil)
	createTx(t, svc, TypeIncome, 500, 100, nil)
	createTx(t, svc, TypeExpense, 80, 0, nil)
	cancelled := createTx(t, svc, TypeIncome, 9999, 999, nil)
	_, err := svc.ChangeStatus(context.Background(), agencyID, paid.ID, ChangeStatusRequest{Status: "paid"})
	require.NoError(t, err)
	_, err = svc.ChangeStatus(context.Background(), agencyID, cancelled.ID, ChangeStatusRequest{Status: "cancelled"})
	require.NoError(t, err)
	repo.commissions = []Commission{{ID: uuid.New(), CommissionAmount: decimal.NewFromInt(30), PeriodMonth: 5, PeriodYear: 2024}}

	sum, err := svc.Summary(context.Background(), agencyID, Period{Month: 5, Year: 2024})
	require.NoError(t, err)
	assert.True(t, sum.Income.Equal(decimal.NewFromInt(1500)))
	assert.True(t, sum.Expenses.Equal(decimal.NewFromInt(80)))
	assert.True(t, sum.Profit.Equal(decimal.NewFromInt(300)))
	assert.True(t, sum.Received.Equal(decimal.NewFromInt(1000)))
	assert.True(t, sum.Commissions.Equal(decimal.NewFromInt(30)))
	assert.True(t, sum.NetResult.Equal(decimal.NewFromInt(190)))
	assert.Equal(t, 1, sum.Counts[StatusPaid])
	assert.Equal(t, 2, sum.Counts[StatusPending])
	assert.NotEmpty(t, sum.IncomeLabel)
}

func TestSummaryPropagatesFailure(t *testing.T) {
	repo := newMemoryRepo()
	repo.totalsErr = errors.New("db down")
	_, err := newTestService(repo).Summary(context.Background(), agencyID, Period{Month: 5, Year: 2024})
	require.Error(t, err)

	_, err = newTestService(repo).Summary(context.Background(), agencyID, Period{Month: 13, Year: 2024})
	require.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestParsePeriodDefaultsToCurrentMonth(t *testing.T) {
	now := time.Date(2025, time.February, 3, 0, 0, 0, 0, time.UTC)
	p, err := parsePeriod(httptest.NewRequest("GET", "/api/dashboard/summary", nil), now)
	require.NoError(t, err)
	assert.Equal(t, Period{Month: 2, Year: 2025}, p)

	_, err = parsePeriod(httptest.NewRequest("GET", "/api/dashboard/summary?month=abc", nil), now)
	require.ErrorIs(t, err, httpx.ErrValidation)
}
