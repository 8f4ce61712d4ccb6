package finance

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateTransactionRequest records a manual transaction.
type CreateTransactionRequest struct {
	ProposalID         *uuid.UUID      `json:"proposalId"`
	ClientID           *uuid.UUID      `json:"clientId"`
	Type               string          `json:"type" validate:"required,oneof=income expense"`
	Description        string          `json:"description" validate:"required,max=300"`
	TotalValue         decimal.Decimal `json:"totalValue"`
	ProfitValue        decimal.Decimal `json:"profitValue"`
	LaunchDate         time.Time       `json:"launchDate" validate:"required"`
	DueDate            *time.Time      `json:"dueDate"`
	Installments       int             `json:"installments" validate:"omitempty,gte=1,lte=120"`
	CurrentInstallment int             `json:"currentInstallment" validate:"omitempty,gte=1"`
}

// UpdateTransactionRequest patches descriptive fields; status changes use the status endpoint.
type UpdateTransactionRequest struct {
	ClientID           *uuid.UUID       `json:"clientId"`
	Description        *string          `json:"description" validate:"omitempty,max=300"`
	TotalValue         *decimal.Decimal `json:"totalValue"`
	ProfitValue        *decimal.Decimal `json:"profitValue"`
	LaunchDate         *time.Time       `json:"launchDate"`
	DueDate            *time.Time       `json:"dueDate"`
	Installments       *int             `json:"installments" validate:"omitempty,gte=1,lte=120"`
	CurrentInstallment *int             `json:"currentInstallment" validate:"omitempty,gte=1"`
}

// ChangeStatusRequest moves a transaction through its lifecycle.
type ChangeStatusRequest struct {
	Status      string     `json:"status" validate:"required,oneof=pending paid cancelled overdue"`
	PaymentDate *time.Time `json:"paymentDate"`
}
