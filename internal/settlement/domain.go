// Package settlement turns a proposal that reached a closed stage into its financial records:
// one income transaction and at most one commission per collaborator. Re-running it is a no-op.
package settlement

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/voyager-crm/voyager/internal/platform/httpx"
	"github.com/voyager-crm/voyager/internal/pricing"
)

// ErrProposalNotFound is returned when the proposal to settle does not exist.
var ErrProposalNotFound = fmt.Errorf("proposal %w", httpx.ErrNotFound)

// Proposal is the subset of a proposal settlement reads.
type Proposal struct {
	ID                     uuid.UUID
	AgencyID               uuid.UUID
	ClientID               *uuid.UUID
	AssignedCollaboratorID *uuid.UUID
	CreatedBy              *uuid.UUID
	Number                 int
	Title                  string
	CreatedAt              time.Time
}

// Collaborator is the subset of a collaborator settlement reads.
type Collaborator struct {
	ID                   uuid.UUID
	Name                 string
	Email                string
	CommissionPercentage decimal.Decimal
	CommissionBase       pricing.CommissionBase
}

// Income is the pending income transaction created for a closed proposal.
type Income struct {
	AgencyID    uuid.UUID
	ProposalID  uuid.UUID
	ClientID    *uuid.UUID
	Description string
	TotalValue  decimal.Decimal
	ProfitValue decimal.Decimal
	LaunchDate  time.Time
}

// Commission is the collaborator commission created for a closed proposal.
type Commission struct {
	AgencyID             uuid.UUID
	CollaboratorID       uuid.UUID
	ProposalID           uuid.UUID
	SaleValue            decimal.Decimal
	ProfitValue          decimal.Decimal
	CommissionPercentage decimal.Decimal
	CommissionBase       pricing.CommissionBase
	CommissionAmount     decimal.Decimal
	PeriodMonth          int
	PeriodYear           int
}

// Result reports what one Settle call did.
type Result struct {
	ProposalID        uuid.UUID        `json:"proposalId"`
	Totals            pricing.Totals   `json:"totals"`
	IncomeCreated     bool             `json:"incomeCreated"`
	CollaboratorID    *uuid.UUID       `json:"collaboratorId,omitempty"`
	CommissionCreated bool             `json:"commissionCreated"`
	CommissionAmount  *decimal.Decimal `json:"commissionAmount,omitempty"`
}

// Changed reports whether the call wrote anything.
func (r Result) Changed() bool {
	return r.IncomeCreated || r.CommissionCreated
}

// Failure names a proposal whose settlement aborted.
type Failure struct {
	ProposalID uuid.UUID `json:"proposalId"`
	Error      string    `json:"error"`
}

// BatchReport summarises a SettleBatch run.
type BatchReport struct {
	Processed   int       `json:"processed"`
	Incomes     int       `json:"incomes"`
	Commissions int       `json:"commissions"`
	Unchanged   int       `json:"unchanged"`
	Failed      int       `json:"failed"`
	Failures    []Failure `json:"failures,omitempty"`
}

// Description is the income transaction label for a proposal.
func Description(number int, title string) string {
	return fmt.Sprintf("Proposta #%d - %s", number, title)
}

// LaunchDate truncates t to its calendar date in t's location.
func LaunchDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
