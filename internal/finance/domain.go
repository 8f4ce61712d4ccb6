package finance

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/voyager-crm/voyager/internal/platform/httpx"
	"github.com/voyager-crm/voyager/internal/pricing"
)

// Type distinguishes money in from money out.
type Type string

const (
	TypeIncome  Type = "income"
	TypeExpense Type = "expense"
)

// Status is the lifecycle of a transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
	StatusOverdue   Status = "overdue"
)

var (
	ErrNotFound           = fmt.Errorf("financial transaction %w", httpx.ErrNotFound)
	ErrCommissionNotFound = fmt.Errorf("collaborator commission %w", httpx.ErrNotFound)
	ErrInvalidTransition  = fmt.Errorf("status transition not allowed: %w", httpx.ErrConflict)
	ErrInvalidPeriod      = fmt.Errorf("%w: month must be 1-12 and year positive", httpx.ErrValidation)
	ErrDuplicateIncome    = fmt.Errorf("income already recorded for proposal: %w", httpx.ErrDuplicate)
)

var transitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusCancelled, StatusOverdue},
	StatusOverdue: {StatusPaid, StatusCancelled},
}

// CanTransition reports whether a transaction may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transaction is an income or expense entry.
type Transaction struct {
	ID                 uuid.UUID       `json:"id"`
	AgencyID           uuid.UUID       `json:"agencyId"`
	ProposalID         *uuid.UUID      `json:"proposalId,omitempty"`
	ClientID           *uuid.UUID      `json:"clientId,omitempty"`
	Type               Type            `json:"type"`
	Description        string          `json:"description"`
	TotalValue         decimal.Decimal `json:"totalValue"`
	ProfitValue        decimal.Decimal `json:"profitValue"`
	Status             Status          `json:"status"`
	LaunchDate         time.Time       `json:"launchDate"`
	DueDate            *time.Time      `json:"dueDate,omitempty"`
	PaymentDate        *time.Time      `json:"paymentDate,omitempty"`
	Installments       int             `json:"installments"`
	CurrentInstallment int             `json:"currentInstallment"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// Commission is a collaborator's commission on a settled proposal.
type Commission struct {
	ID                   uuid.UUID              `json:"id"`
	AgencyID             uuid.UUID              `json:"agencyId"`
	CollaboratorID       uuid.UUID              `json:"collaboratorId"`
	CollaboratorName     string                 `json:"collaboratorName"`
	ProposalID           uuid.UUID              `json:"proposalId"`
	ProposalNumber       int                    `json:"proposalNumber"`
	SaleValue            decimal.Decimal        `json:"saleValue"`
	ProfitValue          decimal.Decimal        `json:"profitValue"`
	CommissionPercentage decimal.Decimal        `json:"commissionPercentage"`
	CommissionBase       pricing.CommissionBase `json:"commissionBase"`
	CommissionAmount     decimal.Decimal        `json:"commissionAmount"`
	PeriodMonth          int                    `json:"periodMonth"`
	PeriodYear           int                    `json:"periodYear"`
	CreatedAt            time.Time              `json:"createdAt"`
}

// Period is a calendar month.
type Period struct {
	Month int
	Year  int
}

// Validate checks month and year ranges.
func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 || p.Year < 1 {
		return ErrInvalidPeriod
	}
	return nil
}

// Bounds returns [start, end) of the month in UTC.
func (p Period) Bounds() (time.Time, time.Time) {
	start := time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// Totals are aggregated transaction values for a period.
type Totals struct {
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Profit   decimal.Decimal `json:"profit"`
	Received decimal.Decimal `json:"received"`
}

// StatusCounts counts transactions per status for a period.
type StatusCounts map[Status]int

// Summary is the dashboard view of one month.
type Summary struct {
	Month          int             `json:"month"`
	Year           int             `json:"year"`
	Income         decimal.Decimal `json:"income"`
	Expenses       decimal.Decimal `json:"expenses"`
	Profit         decimal.Decimal `json:"profit"`
	Received       decimal.Decimal `json:"received"`
	Commissions    decimal.Decimal `json:"commissions"`
	NetResult      decimal.Decimal `json:"netResult"`
	Counts         StatusCounts    `json:"counts"`
	IncomeLabel    string          `json:"incomeLabel"`
	NetResultLabel string          `json:"netResultLabel"`
}
