package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/voyager-crm/voyager/internal/platform/httpx"
)

// Domain errors for pipeline stages.
var (
	ErrNotFound       = fmt.Errorf("pipeline stage %w", httpx.ErrNotFound)
	ErrClosedAndLost  = fmt.Errorf("%w: a stage cannot be both closed and lost", httpx.ErrValidation)
	ErrDuplicateOrder = fmt.Errorf("stage order already used in this agency: %w", httpx.ErrDuplicate)
	ErrStageInUse     = fmt.Errorf("stage still has proposals: %w", httpx.ErrConflict)
	ErrNoInitialStage = fmt.Errorf("%w: agency has no open pipeline stage", httpx.ErrValidation)
	ErrReorderSet     = fmt.Errorf("%w: reorder must list every stage of the agency exactly once", httpx.ErrValidation)
)

// Stage is one ordered column of an agency's sales pipeline.
type Stage struct {
	ID               uuid.UUID `json:"id"`
	AgencyID         uuid.UUID `json:"agencyId"`
	Name             string    `json:"name"`
	Order            int       `json:"order"`
	Color            string    `json:"color,omitempty"`
	IsClosed         bool      `json:"isClosed"`
	IsLost           bool      `json:"isLost"`
	SLAMinutes       *int      `json:"slaMinutes,omitempty"`
	MessageTemplates []string  `json:"messageTemplates"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Terminal reports whether proposals in the stage have left the active pipeline.
func (s Stage) Terminal() bool {
	return s.IsClosed || s.IsLost
}

// Validate enforces stage invariants that do not need the database.
func (s Stage) Validate() error {
	if s.IsClosed && s.IsLost {
		return ErrClosedAndLost
	}
	if s.SLAMinutes != nil && *s.SLAMinutes <= 0 {
		return fmt.Errorf("%w: slaMinutes must be positive", httpx.ErrValidation)
	}
	return nil
}

// CreateStageRequest is the body for creating a stage.
type CreateStageRequest struct {
	Name             string   `json:"name" validate:"required,max=120"`
	Order            int      `json:"order" validate:"gte=0"`
	Color            string   `json:"color" validate:"omitempty,max=32"`
	IsClosed         bool     `json:"isClosed"`
	IsLost           bool     `json:"isLost"`
	SLAMinutes       *int     `json:"slaMinutes" validate:"omitempty,gt=0"`
	MessageTemplates []string `json:"messageTemplates" validate:"omitempty,dive,max=4000"`
}

// UpdateStageRequest patches a stage; nil fields are left untouched.
type UpdateStageRequest struct {
	Name             *string   `json:"name" validate:"omitempty,max=120"`
	Order            *int      `json:"order" validate:"omitempty,gte=0"`
	Color            *string   `json:"color" validate:"omitempty,max=32"`
	IsClosed         *bool     `json:"isClosed"`
	IsLost           *bool     `json:"isLost"`
	SLAMinutes       *int      `json:"slaMinutes" validate:"omitempty,gte=0"`
	MessageTemplates *[]string `json:"messageTemplates"`
}

// ReorderRequest lists every stage id in its new order.
type ReorderRequest struct {
	StageIDs []uuid.UUID `json:"stageIds" validate:"required,min=1"`
}
