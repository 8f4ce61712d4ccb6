package collaborators

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/voyager-crm/voyager/internal/platform/httpx"
	"github.com/voyager-crm/voyager/internal/pricing"
)

var (
	// ErrNotFound is returned when no collaborator matches.
	ErrNotFound = fmt.Errorf("collaborator %w", httpx.ErrNotFound)
	// ErrUserLinked is returned when the user already backs another collaborator.
	ErrUserLinked = fmt.Errorf("user already linked to a collaborator: %w", httpx.ErrDuplicate)
)

// Collaborator is a team member who can own proposals and earn commission on them.
type Collaborator struct {
	ID                   uuid.UUID              `json:"id"`
	AgencyID             uuid.UUID              `json:"agencyId"`
	UserID               *uuid.UUID             `json:"userId,omitempty"`
	Name                 string                 `json:"name"`
	Email                string                 `json:"email"`
	Phone                string                 `json:"phone,omitempty"`
	CommissionPercentage decimal.Decimal        `json:"commissionPercentage"`
	CommissionBase       pricing.CommissionBase `json:"commissionBase"`
	Active               bool                   `json:"active"`
	CreatedAt            time.Time              `json:"createdAt"`
	UpdatedAt            time.Time              `json:"updatedAt"`
}

// CreateRequest is the body for creating a collaborator.
type CreateRequest struct {
	UserID               *uuid.UUID      `json:"userId"`
	Name                 string          `json:"name" validate:"required,max=160"`
	Email                string          `json:"email" validate:"omitempty,email"`
	Phone                string          `json:"phone" validate:"omitempty,max=40"`
	CommissionPercentage decimal.Decimal `json:"commissionPercentage"`
	CommissionBase       string          `json:"commissionBase" validate:"omitempty,oneof=profit sale"`
}

// UpdateRequest patches a collaborator.
type UpdateRequest struct {
	UserID               *uuid.UUID       `json:"userId"`
	Name                 *string          `json:"name" validate:"omitempty,max=160"`
	Email                *string          `json:"email" validate:"omitempty,email"`
	Phone                *string          `json:"phone" validate:"omitempty,max=40"`
	CommissionPercentage *decimal.Decimal `json:"commissionPercentage"`
	CommissionBase       *string          `json:"commissionBase" validate:"omitempty,oneof=profit sale"`
	Active               *bool            `json:"active"`
}

var hundred = decimal.NewFromInt(100)

func validatePercentage(p decimal.Decimal) error {
	if p.IsNegative() || p.GreaterThan(hundred) {
		return fmt.Errorf("%w: commissionPercentage must be between 0 and 100", httpx.ErrValidation)
	}
	return nil
}
