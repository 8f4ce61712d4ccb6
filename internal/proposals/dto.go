package proposals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/voyager-crm/voyager/internal/pricing"
)

// CreateRequest creates a proposal, optionally with its first services.
type CreateRequest struct {
	ClientID               *uuid.UUID           `json:"clientId"`
	StageID                *uuid.UUID           `json:"stageId"`
	AssignedCollaboratorID *uuid.UUID           `json:"assignedCollaboratorId"`
	Title                  string               `json:"title" validate:"required,max=200"`
	Discount               decimal.Decimal      `json:"discount"`
	CommissionType         string               `json:"commissionType" validate:"omitempty,oneof=percentage fixed"`
	CommissionValue        decimal.Decimal      `json:"commissionValue"`
	Notes                  string               `json:"notes" validate:"max=5000"`
	Services               []ServiceLineRequest `json:"services" validate:"dive"`
}

// UpdateRequest patches proposal fields. Stage changes go through the move endpoints.
type UpdateRequest struct {
	ClientID               *uuid.UUID       `json:"clientId"`
	AssignedCollaboratorID *uuid.UUID       `json:"assignedCollaboratorId"`
	Title                  *string          `json:"title" validate:"omitempty,max=200"`
	Discount               *decimal.Decimal `json:"discount"`
	CommissionType         *string          `json:"commissionType" validate:"omitempty,oneof=percentage fixed"`
	CommissionValue        *decimal.Decimal `json:"commissionValue"`
	Notes                  *string          `json:"notes" validate:"omitempty,max=5000"`
}

// ServiceLineRequest creates a proposal service.
type ServiceLineRequest struct {
	ProposalID      uuid.UUID       `json:"proposalId"`
	PartnerID       *uuid.UUID      `json:"partnerId"`
	Type            string          `json:"type" validate:"required,max=60"`
	Description     string          `json:"description" validate:"max=500"`
	Value           decimal.Decimal `json:"value"`
	CommissionType  string          `json:"commissionType" validate:"omitempty,oneof=percentage fixed"`
	CommissionValue decimal.Decimal `json:"commissionValue"`
	StartsAt        *time.Time      `json:"startsAt"`
	EndsAt          *time.Time      `json:"endsAt"`
	Details         map[string]any  `json:"details"`
}

// ServiceLineUpdate patches a proposal service.
type ServiceLineUpdate struct {
	PartnerID       *uuid.UUID       `json:"partnerId"`
	Type            *string          `json:"type" validate:"omitempty,max=60"`
	Description     *string          `json:"description" validate:"omitempty,max=500"`
	Value           *decimal.Decimal `json:"value"`
	CommissionType  *string          `json:"commissionType" validate:"omitempty,oneof=percentage fixed"`
	CommissionValue *decimal.Decimal `json:"commissionValue"`
	StartsAt        *time.Time       `json:"startsAt"`
	EndsAt          *time.Time       `json:"endsAt"`
	Details         map[string]any   `json:"details"`
}

// MoveRequest moves one proposal.
type MoveRequest struct {
	StageID uuid.UUID `json:"stageId" validate:"required"`
}

// BulkMoveRequest moves several proposals to the same stage.
type BulkMoveRequest struct {
	ProposalIDs []uuid.UUID `json:"proposalIds" validate:"required,min=1,max=500"`
	StageID     uuid.UUID   `json:"stageId" validate:"required"`
}

// PublicLinkRequest issues a public link; zero or missing hours means no expiry.
type PublicLinkRequest struct {
	ExpiresInHours int `json:"expiresInHours" validate:"gte=0,lte=8760"`
}

func commissionType(raw string) pricing.CommissionType {
	if raw == "" {
		return pricing.CommissionPercentage
	}
	return pricing.CommissionType(raw)
}
