package proposals

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/voyager-crm/voyager/internal/pipeline"
	"github.com/voyager-crm/voyager/internal/platform/httpx"
	"github.com/voyager-crm/voyager/internal/pricing"
	"github.com/voyager-crm/voyager/internal/settlement"
)

var (
	// ErrNotFound is returned when a proposal does not exist or belongs to another agency.
	ErrNotFound = fmt.Errorf("proposal %w", httpx.ErrNotFound)
	// ErrServiceNotFound is returned for unknown proposal services.
	ErrServiceNotFound = fmt.Errorf("proposal service %w", httpx.ErrNotFound)
	// ErrLinkNotFound covers both unknown and expired public links.
	ErrLinkNotFound = fmt.Errorf("public link %w", httpx.ErrNotFound)
	// ErrInvalidSpan is returned when a service ends before it starts.
	ErrInvalidSpan = fmt.Errorf("%w: endsAt must not precede startsAt", httpx.ErrValidation)
)

// Proposal is a quote moving through the agency pipeline.
type Proposal struct {
	ID                     uuid.UUID              `json:"id"`
	AgencyID               uuid.UUID              `json:"agencyId"`
	ClientID               *uuid.UUID             `json:"clientId,omitempty"`
	StageID                uuid.UUID              `json:"stageId"`
	AssignedCollaboratorID *uuid.UUID             `json:"assignedCollaboratorId,omitempty"`
	CreatedBy              *uuid.UUID             `json:"createdBy,omitempty"`
	Number                 int                    `json:"number"`
	Title                  string                 `json:"title"`
	Total                  decimal.Decimal        `json:"total"`
	Discount               decimal.Decimal        `json:"discount"`
	CommissionType         pricing.CommissionType `json:"commissionType"`
	CommissionValue        decimal.Decimal        `json:"commissionValue"`
	Notes                  string                 `json:"notes"`
	StageEnteredAt         *time.Time             `json:"stageEnteredAt,omitempty"`
	PublicToken            *string                `json:"publicToken,omitempty"`
	PublicExpiresAt        *time.Time             `json:"publicExpiresAt,omitempty"`
	CreatedAt              time.Time              `json:"createdAt"`
	UpdatedAt              time.Time              `json:"updatedAt"`

	Services []ServiceLine       `json:"services,omitempty"`
	Totals   *pricing.Totals     `json:"totals,omitempty"`
	SLA      *pipeline.SLAStatus `json:"sla,omitempty"`

	// LastStageChange is the latest history entry, used when StageEnteredAt is missing.
	LastStageChange *time.Time `json:"-"`
}

// EnteredAt resolves when the proposal entered its current stage.
func (p Proposal) EnteredAt() time.Time {
	return pipeline.ResolveEnteredAt(p.StageEnteredAt, p.LastStageChange, p.CreatedAt)
}

// ServiceLine is one itemised travel service on a proposal.
type ServiceLine struct {
	ID              uuid.UUID              `json:"id"`
	ProposalID      uuid.UUID              `json:"proposalId"`
	PartnerID       *uuid.UUID             `json:"partnerId,omitempty"`
	Type            string                 `json:"type"`
	Description     string                 `json:"description"`
	Value           decimal.Decimal        `json:"value"`
	CommissionType  pricing.CommissionType `json:"commissionType"`
	CommissionValue decimal.Decimal        `json:"commissionValue"`
	StartsAt        *time.Time             `json:"startsAt,omitempty"`
	EndsAt          *time.Time             `json:"endsAt,omitempty"`
	Details         map[string]any         `json:"details"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

// Line projects the service onto the pricing formula.
func (s ServiceLine) Line() pricing.Line {
	return pricing.Line{Value: s.Value, CommissionType: s.CommissionType, CommissionValue: s.CommissionValue}
}

// TotalsOf aggregates a proposal's services.
func TotalsOf(services []ServiceLine) pricing.Totals {
	lines := make([]pricing.Line, 0, len(services))
	for _, s := range services {
		lines = append(lines, s.Line())
	}
	return pricing.Aggregate(lines)
}

// StageChange is one row of a proposal's stage history.
type StageChange struct {
	ID          uuid.UUID  `json:"id"`
	ProposalID  uuid.UUID  `json:"proposalId"`
	FromStageID *uuid.UUID `json:"fromStageId,omitempty"`
	ToStageID   uuid.UUID  `json:"toStageId"`
	ChangedBy   *uuid.UUID `json:"changedBy,omitempty"`
	ChangedAt   time.Time  `json:"changedAt"`
}

// MoveResult is returned by a single stage move.
type MoveResult struct {
	Proposal   *Proposal          `json:"proposal"`
	Moved      bool               `json:"moved"`
	Settlement *settlement.Result `json:"settlement,omitempty"`
}

// BulkItem reports the outcome for one proposal of a bulk move.
type BulkItem struct {
	ProposalID uuid.UUID          `json:"proposalId"`
	Moved      bool               `json:"moved"`
	Settlement *settlement.Result `json:"settlement,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// BulkReport summarises a bulk stage move.
type BulkReport struct {
	StageID uuid.UUID  `json:"stageId"`
	Moved   int        `json:"moved"`
	Settled int        `json:"settled"`
	Failed  int        `json:"failed"`
	Items   []BulkItem `json:"items"`
}

// PublicLink is the shareable token for a proposal.
type PublicLink struct {
	Token     string     `json:"token"`
	URL       string     `json:"url"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// PublicProposal is what an unauthenticated viewer sees; commissions stay private.
type PublicProposal struct {
	Number    int             `json:"number"`
	Title     string          `json:"title"`
	Notes     string          `json:"notes"`
	Total     decimal.Decimal `json:"total"`
	Discount  decimal.Decimal `json:"discount"`
	Services  []PublicService `json:"services"`
	ExpiresAt *time.Time      `json:"expiresAt,omitempty"`
}

// PublicService is a service line without commission data.
type PublicService struct {
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Value       decimal.Decimal `json:"value"`
	StartsAt    *time.Time      `json:"startsAt,omitempty"`
	EndsAt      *time.Time      `json:"endsAt,omitempty"`
	Details     map[string]any  `json:"details"`
}

func publicView(p *Proposal) PublicProposal {
	totals := TotalsOf(p.Services)
	out := PublicProposal{
		Number:    p.Number,
		Title:     p.Title,
		Notes:     p.Notes,
		Total:     totals.TotalValue,
		Discount:  p.Discount,
		Services:  make([]PublicService, 0, len(p.Services)),
		ExpiresAt: p.PublicExpiresAt,
	}
	for _, s := range p.Services {
		out.Services = append(out.Services, PublicService{
			Type:        s.Type,
			Description: s.Description,
			Value:       s.Value,
			StartsAt:    s.StartsAt,
			EndsAt:      s.EndsAt,
			Details:     s.Details,
		})
	}
	return out
}
