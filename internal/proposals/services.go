package proposals

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/voyager-crm/voyager/internal/platform/httpx"
)

func newServiceLine(in ServiceLineRequest) (ServiceLine, error) {
	line := ServiceLine{
		ProposalID:      in.ProposalID,
		PartnerID:       in.PartnerID,
		Type:            in.Type,
		Description:     in.Description,
		Value:           in.Value,
		CommissionType:  commissionType(in.CommissionType),
		CommissionValue: in.CommissionValue,
		StartsAt:        in.StartsAt,
		EndsAt:          in.EndsAt,
		Details:         details(in.Details),
	}
	return line, validateLine(line)
}

func validateLine(line ServiceLine) error {
	if line.Value.IsNegative() {
		return fmt.Errorf("%w: value must not be negative", httpx.ErrValidation)
	}
	if line.CommissionValue.IsNegative() {
		return fmt.Errorf("%w: commissionValue must not be negative", httpx.ErrValidation)
	}
	if line.StartsAt != nil && line.EndsAt != nil && line.EndsAt.Before(*line.StartsAt) {
		return ErrInvalidSpan
	}
	return nil
}

// ListServices returns the services of one proposal.
func (s *Service) ListServices(ctx context.Context, agencyID, proposalID uuid.UUID) ([]ServiceLine, error) {
	if _, err := s.repo.Get(ctx, agencyID, proposalID); err != nil {
		return nil, err
	}
	return s.repo.ListServices(ctx, proposalID)
}

// AddService attaches a service and refreshes the stored proposal total.
func (s *Service) AddService(ctx context.Context, agencyID uuid.UUID, req ServiceLineRequest) (*ServiceLine, error) {
	line, err := newServiceLine(req)
	if err != nil {
		return nil, err
	}
	var created *ServiceLine
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if _, err := repo.Get(ctx, agencyID, req.ProposalID); err != nil {
			return err
		}
		var err error
		created, err = repo.CreateService(ctx, line)
		if err != nil {
			return err
		}
		return repo.SetTotal(ctx, req.ProposalID)
	})
	return created, err
}

// UpdateService patches a service and refreshes the stored proposal total.
func (s *Service) UpdateService(ctx context.Context, agencyID, id uuid.UUID, req ServiceLineUpdate) (*ServiceLine, error) {
	var updated *ServiceLine
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		line, err := repo.GetService(ctx, agencyID, id)
		if err != nil {
			return err
		}
		if req.PartnerID != nil {
			line.PartnerID = req.PartnerID
		}
		if req.Type != nil {
			line.Type = *req.Type
		}
		if req.Description != nil {
			line.Description = *req.Description
		}
		if req.Value != nil {
			line.Value = *req.Value
		}
		if req.CommissionType != nil {
			line.CommissionType = commissionType(*req.CommissionType)
		}
		if req.CommissionValue != nil {
			line.CommissionValue = *req.CommissionValue
		}
		if req.StartsAt != nil {
			line.StartsAt = req.StartsAt
		}
		if req.EndsAt != nil {
			line.EndsAt = req.EndsAt
		}
		if req.Details != nil {
			line.Details = req.Details
		}
		if err := validateLine(*line); err != nil {
			return err
		}
		updated, err = repo.UpdateService(ctx, *line)
		if err != nil {
			return err
		}
		return repo.SetTotal(ctx, line.ProposalID)
	})
	return updated, err
}

// DeleteService removes a service and refreshes the stored proposal total.
func (s *Service) DeleteService(ctx context.Context, agencyID, id uuid.UUID) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		line, err := repo.GetService(ctx, agencyID, id)
		if err != nil {
			return err
		}
		if err := repo.DeleteService(ctx, id); err != nil {
			return err
		}
		return repo.SetTotal(ctx, line.ProposalID)
	})
}
