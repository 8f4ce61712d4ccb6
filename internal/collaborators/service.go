package collaborators

import (
	"context"

	"github.com/google/uuid"

	"github.com/voyager-crm/voyager/internal/pricing"
)

// Service manages collaborators.
type Service struct {
	repo Repository
}

// NewService constructs the service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, agencyID uuid.UUID, activeOnly bool) ([]Collaborator, error) {
	return s.repo.List(ctx, agencyID, activeOnly)
}

func (s *Service) Get(ctx context.Context, agencyID, id uuid.UUID) (*Collaborator, error) {
	return s.repo.Get(ctx, agencyID, id)
}

// FindByUser returns the collaborator backed by the given login.
func (s *Service) FindByUser(ctx context.Context, agencyID, userID uuid.UUID) (*Collaborator, error) {
	return s.repo.FindByUser(ctx, agencyID, userID)
}

// Create adds a collaborator; the commission base defaults to profit.
func (s *Service) Create(ctx context.Context, agencyID uuid.UUID, req CreateRequest) (*Collaborator, error) {
	if err := validatePercentage(req.CommissionPercentage); err != nil {
		return nil, err
	}
	base := pricing.CommissionBase(req.CommissionBase)
	if base == "" {
		base = pricing.BaseProfit
	}
	return s.repo.Create(ctx, Collaborator{
		AgencyID:             agencyID,
		UserID:               req.UserID,
		Name:                 req.Name,
		Email:                req.Email,
		Phone:                req.Phone,
		CommissionPercentage: req.CommissionPercentage,
		CommissionBase:       base,
		Active:               true,
	})
}

func (s *Service) Update(ctx context.Context, agencyID, id uuid.UUID, req UpdateRequest) (*Collaborator, error) {
	c, err := s.repo.Get(ctx, agencyID, id)
	if err != nil {
		return nil, err
	}
	if req.UserID != nil {
		c.UserID = req.UserID
	}
	if req.Name != nil {
		c.Name = *req.Name
	}
	if req.Email != nil {
		c.Email = *req.Email
	}
	if req.Phone != nil {
		c.Phone = *req.Phone
	}
	if req.CommissionPercentage != nil {
		if err := validatePercentage(*req.CommissionPercentage); err != nil {
			return nil, err
		}
		c.CommissionPercentage = *req.CommissionPercentage
	}
	if req.CommissionBase != nil {
		c.CommissionBase = pricing.CommissionBase(*req.CommissionBase)
	}
	if req.Active != nil {
		c.Active = *req.Active
	}
	return s.repo.Update(ctx, *c)
}
