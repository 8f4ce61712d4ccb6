package finance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/voyager-crm/voyager/internal/platform/httpx"
	"github.com/voyager-crm/voyager/internal/pricing"
	"github.com/voyager-crm/voyager/internal/shared"
)

// Service implements transaction bookkeeping and the dashboard summary.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs the finance service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) List(ctx context.Context, agencyID uuid.UUID, q shared.ListQuery) (shared.Page[Transaction], error) {
	items, total, err := s.repo.List(ctx, agencyID, q)
	if err != nil {
		return shared.Page[Transaction]{}, err
	}
	return shared.NewPage(items, q, total), nil
}

func (s *Service) Get(ctx context.Context, agencyID, id uuid.UUID) (*Transaction, error) {
	return s.repo.Get(ctx, agencyID, id)
}

// Create records a manual transaction in pending status.
func (s *Service) Create(ctx context.Context, agencyID uuid.UUID, req CreateTransactionRequest) (*Transaction, error) {
	t := Transaction{
		AgencyID:           agencyID,
		ProposalID:         req.ProposalID,
		ClientID:           req.ClientID,
		Type:               Type(req.Type),
		Description:        req.Description,
		TotalValue:         req.TotalValue,
		ProfitValue:        req.ProfitValue,
		Status:             StatusPending,
		LaunchDate:         req.LaunchDate,
		DueDate:            req.DueDate,
		Installments:       max(req.Installments, 1),
		CurrentInstallment: max(req.CurrentInstallment, 1),
	}
	if err := validateAmounts(t); err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, t)
}

// Update patches descriptive fields of a transaction.
func (s *Service) Update(ctx context.Context, agencyID, id uuid.UUID, req UpdateTransactionRequest) (*Transaction, error) {
	t, err := s.repo.Get(ctx, agencyID, id)
	if err != nil {
		return nil, err
	}
	if req.ClientID != nil {
		t.ClientID = req.ClientID
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.TotalValue != nil {
		t.TotalValue = *req.TotalValue
	}
	if req.ProfitValue != nil {
		t.ProfitValue = *req.ProfitValue
	}
	if req.LaunchDate != nil {
		t.LaunchDate = *req.LaunchDate
	}
	if req.DueDate != nil {
		t.DueDate = req.DueDate
	}
	if req.Installments != nil {
		t.Installments = *req.Installments
	}
	if req.CurrentInstallment != nil {
		t.CurrentInstallment = *req.CurrentInstallment
	}
	if err := validateAmounts(*t); err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, *t)
}

func validateAmounts(t Transaction) error {
	if t.TotalValue.IsNegative() || t.ProfitValue.IsNegative() {
		return fmt.Errorf("%w: values must not be negative", httpx.ErrValidation)
	}
	if t.CurrentInstallment > t.Installments {
		return fmt.Errorf("%w: currentInstallment exceeds installments", httpx.ErrValidation)
	}
	return nil
}

// ChangeStatus applies a lifecycle transition. Paying stamps the payment date, defaulting to today.
func (s *Service) ChangeStatus(ctx context.Context, agencyID, id uuid.UUID, req ChangeStatusRequest) (*Transaction, error) {
	t, err := s.repo.Get(ctx, agencyID, id)
	if err != nil {
		return nil, err
	}
	to := Status(req.Status)
	if !CanTransition(t.Status, to) {
		return nil, fmt.Errorf("%s to %s: %w", t.Status, to, ErrInvalidTransition)
	}
	var paymentDate *time.Time
	if to == StatusPaid {
		paid := s.now()
		if req.PaymentDate != nil {
			paid = *req.PaymentDate
		}
		paymentDate = &paid
	}
	return s.repo.SetStatus(ctx, agencyID, id, t.Status, to, paymentDate)
}

// MarkOverdue flags pending transactions whose due date has passed. A nil agency covers all agencies.
func (s *Service) MarkOverdue(ctx context.Context, agencyID *uuid.UUID) (int64, error) {
	return s.repo.MarkOverdue(ctx, agencyID, s.now())
}

func (s *Service) ListCommissions(ctx context.Context, agencyID uuid.UUID, q shared.ListQuery) (shared.Page[Commission], error) {
	items, total, err := s.repo.ListCommissions(ctx, agencyID, q)
	if err != nil {
		return shared.Page[Commission]{}, err
	}
	return shared.NewPage(items, q, total), nil
}

func (s *Service) GetCommission(ctx context.Context, agencyID, id uuid.UUID) (*Commission, error) {
	return s.repo.GetCommission(ctx, agencyID, id)
}

// Summary aggregates one month for the dashboard. The three reads run concurrently.
func (s *Service) Summary(ctx context.Context, agencyID uuid.UUID, p Period) (*Summary, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var (
		totals      Totals
		commissions decimal.Decimal
		counts      StatusCounts
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		totals, err = s.repo.PeriodTotals(gctx, agencyID, p)
		if err != nil {
			return fmt.Errorf("period totals: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		commissions, err = s.repo.PeriodCommissions(gctx, agencyID, p)
		if err != nil {
			return fmt.Errorf("period commissions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		counts, err = s.repo.PeriodStatusCounts(gctx, agencyID, p)
		if err != nil {
			return fmt.Errorf("status counts: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	net := totals.Profit.Sub(totals.Expenses).Sub(commissions)
	return &Summary{
		Month:          p.Month,
		Year:           p.Year,
		Income:         totals.Income,
		Expenses:       totals.Expenses,
		Profit:         totals.Profit,
		Received:       totals.Received,
		Commissions:    commissions,
		NetResult:      net,
		Counts:         counts,
		IncomeLabel:    pricing.FormatBRL(totals.Income),
		NetResultLabel: pricing.FormatBRL(net),
	}, nil
}
