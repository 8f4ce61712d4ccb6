package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service implements stage management and SLA evaluation.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs the pipeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// List returns the agency's stages ordered by position.
func (s *Service) List(ctx context.Context, agencyID uuid.UUID) ([]Stage, error) {
	return s.repo.List(ctx, agencyID)
}

// Get returns one stage scoped to the agency.
func (s *Service) Get(ctx context.Context, agencyID, id uuid.UUID) (*Stage, error) {
	return s.repo.Get(ctx, agencyID, id)
}

// Create adds a stage; an order of zero appends it after the last stage.
func (s *Service) Create(ctx context.Context, agencyID uuid.UUID, req CreateStageRequest) (*Stage, error) {
	stage := Stage{
		AgencyID:         agencyID,
		Name:             req.Name,
		Order:            req.Order,
		Color:            req.Color,
		IsClosed:         req.IsClosed,
		IsLost:           req.IsLost,
		SLAMinutes:       req.SLAMinutes,
		MessageTemplates: req.MessageTemplates,
	}
	if err := stage.Validate(); err != nil {
		return nil, err
	}
	if stage.Order == 0 {
		next, err := s.repo.NextOrder(ctx, agencyID)
		if err != nil {
			return nil, fmt.Errorf("next stage order: %w", err)
		}
		stage.Order = next
	}
	return s.repo.Create(ctx, stage)
}

// Update applies a partial change. A slaMinutes of zero clears the SLA.
func (s *Service) Update(ctx context.Context, agencyID, id uuid.UUID, req UpdateStageRequest) (*Stage, error) {
	stage, err := s.repo.Get(ctx, agencyID, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		stage.Name = *req.Name
	}
	if req.Order != nil {
		stage.Order = *req.Order
	}
	if req.Color != nil {
		stage.Color = *req.Color
	}
	if req.IsClosed != nil {
		stage.IsClosed = *req.IsClosed
	}
	if req.IsLost != nil {
		stage.IsLost = *req.IsLost
	}
	if req.SLAMinutes != nil {
		if *req.SLAMinutes == 0 {
			stage.SLAMinutes = nil
		} else {
			v := *req.SLAMinutes
			stage.SLAMinutes = &v
		}
	}
	if req.MessageTemplates != nil {
		stage.MessageTemplates = *req.MessageTemplates
	}
	if err := stage.Validate(); err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, *stage)
}

// Delete removes a stage that no proposal references.
func (s *Service) Delete(ctx context.Context, agencyID, id uuid.UUID) error {
	return s.repo.Delete(ctx, agencyID, id)
}

// Reorder assigns orders 1..n following req.StageIDs inside one transaction.
func (s *Service) Reorder(ctx context.Context, agencyID uuid.UUID, req ReorderRequest) ([]Stage, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		current, err := repo.List(ctx, agencyID)
		if err != nil {
			return err
		}
		if len(current) != len(req.StageIDs) {
			return ErrReorderSet
		}
		known := make(map[uuid.UUID]bool, len(current))
		for _, st := range current {
			known[st.ID] = true
		}
		seen := make(map[uuid.UUID]bool, len(req.StageIDs))
		for _, id := range req.StageIDs {
			if !known[id] || seen[id] {
				return ErrReorderSet
			}
			seen[id] = true
		}
		for i, id := range req.StageIDs {
			if err := repo.SetOrder(ctx, agencyID, id, i+1); err != nil {
				return fmt.Errorf("set order of %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo.List(ctx, agencyID)
}

// InitialStage is the lowest-ordered stage that is neither closed nor lost.
func (s *Service) InitialStage(ctx context.Context, agencyID uuid.UUID) (*Stage, error) {
	stages, err := s.repo.List(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	for i := range stages {
		if !stages[i].Terminal() {
			return &stages[i], nil
		}
	}
	return nil, ErrNoInitialStage
}

// SLA evaluates the stage SLA at the current time.
func (s *Service) SLA(stage Stage, enteredAt time.Time) *SLAStatus {
	return ComputeSLA(s.now(), enteredAt, stage)
}
