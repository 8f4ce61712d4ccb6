package proposals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voyager-crm/voyager/internal/pipeline"
	"github.com/voyager-crm/voyager/internal/settlement"
	"github.com/voyager-crm/voyager/internal/shared"
)

// StageReader resolves pipeline stages; pipeline.Service satisfies it.
type StageReader interface {
	List(ctx context.Context, agencyID uuid.UUID) ([]pipeline.Stage, error)
	Get(ctx context.Context, agencyID, id uuid.UUID) (*pipeline.Stage, error)
	InitialStage(ctx context.Context, agencyID uuid.UUID) (*pipeline.Stage, error)
}

// Settler settles a proposal that reached a closed stage; settlement.Service satisfies it.
type Settler interface {
	Settle(ctx context.Context, proposalID uuid.UUID) (*settlement.Result, error)
}

// Service implements the proposal lifecycle.
type Service struct {
	repo          Repository
	stages        StageReader
	settler       Settler
	logger        *slog.Logger
	publicBaseURL string
	now           func() time.Time
}

// NewService constructs the proposal service.
func NewService(repo Repository, stages StageReader, settler Settler, logger *slog.Logger, publicBaseURL string) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:          repo,
		stages:        stages,
		settler:       settler,
		logger:        logger,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		now:           time.Now,
	}
}

// List returns a page of proposals with their SLA evaluated against current stages.
func (s *Service) List(ctx context.Context, agencyID uuid.UUID, q shared.ListQuery) (shared.Page[Proposal], error) {
	items, total, err := s.repo.List(ctx, agencyID, q)
	if err != nil {
		return shared.Page[Proposal]{}, err
	}
	stages, err := s.stages.List(ctx, agencyID)
	if err != nil {
		return shared.Page[Proposal]{}, fmt.Errorf("load stages: %w", err)
	}
	byID := make(map[uuid.UUID]pipeline.Stage, len(stages))
	for _, st := range stages {
		byID[st.ID] = st
	}
	now := s.now()
	for i := range items {
		if st, ok := byID[items[i].StageID]; ok {
			items[i].SLA = pipeline.ComputeSLA(now, items[i].EnteredAt(), st)
		}
	}
	return shared.NewPage(items, q, total), nil
}

// Get returns a proposal with its services, derived totals and SLA.
func (s *Service) Get(ctx context.Context, agencyID, id uuid.UUID) (*Proposal, error) {
	p, err := s.repo.Get(ctx, agencyID, id)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, p)
}

func (s *Service) hydrate(ctx context.Context, p *Proposal) (*Proposal, error) {
	services, err := s.repo.ListServices(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("load services: %w", err)
	}
	if services == nil {
		services = []ServiceLine{}
	}
	p.Services = services
	totals := TotalsOf(services)
	p.Totals = &totals

	stage, err := s.stages.Get(ctx, p.AgencyID, p.StageID)
	if err != nil {
		return nil, fmt.Errorf("load stage: %w", err)
	}
	p.SLA = pipeline.ComputeSLA(s.now(), p.EnteredAt(), *stage)
	return p, nil
}

// Create opens a proposal in the requested stage, or the agency's initial stage.
// Opening straight into a closed stage settles the proposal.
func (s *Service) Create(ctx context.Context, principal shared.Principal, req CreateRequest) (*Proposal, error) {
	var stage *pipeline.Stage
	var err error
	if req.StageID != nil {
		stage, err = s.stages.Get(ctx, principal.AgencyID, *req.StageID)
	} else {
		stage, err = s.stages.InitialStage(ctx, principal.AgencyID)
	}
	if err != nil {
		return nil, err
	}
	lines := make([]ServiceLine, 0, len(req.Services))
	for _, in := range req.Services {
		line, err := newServiceLine(in)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	now := s.now()
	creator := principal.UserID
	var created *Proposal
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		p, err := repo.Create(ctx, Proposal{
			AgencyID:               principal.AgencyID,
			ClientID:               req.ClientID,
			StageID:                stage.ID,
			AssignedCollaboratorID: req.AssignedCollaboratorID,
			CreatedBy:              &creator,
			Title:                  req.Title,
			Total:                  TotalsOf(lines).TotalValue,
			Discount:               req.Discount,
			CommissionType:         commissionType(req.CommissionType),
			CommissionValue:        req.CommissionValue,
			Notes:                  req.Notes,
			StageEnteredAt:         &now,
		})
		if err != nil {
			return fmt.Errorf("insert proposal: %w", err)
		}
		if err := repo.AddHistory(ctx, StageChange{ProposalID: p.ID, ToStageID: stage.ID, ChangedBy: &creator, ChangedAt: now}); err != nil {
			return fmt.Errorf("record history: %w", err)
		}
		for _, line := range lines {
			line.ProposalID = p.ID
			if _, err := repo.CreateService(ctx, line); err != nil {
				return fmt.Errorf("insert service: %w", err)
			}
		}
		created = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	if stage.IsClosed {
		// The proposal is committed; a failed settlement is left for the backfill job to repair.
		if _, err := s.settler.Settle(ctx, created.ID); err != nil {
			s.logger.Error("settlement after create failed", slog.String("proposal_id", created.ID.String()), slog.Any("error", err))
		}
	}
	return s.hydrate(ctx, created)
}

// Update patches editable fields.
func (s *Service) Update(ctx context.Context, agencyID, id uuid.UUID, req UpdateRequest) (*Proposal, error) {
	p, err := s.repo.Get(ctx, agencyID, id)
	if err != nil {
		return nil, err
	}
	if req.ClientID != nil {
		p.ClientID = req.ClientID
	}
	if req.AssignedCollaboratorID != nil {
		p.AssignedCollaboratorID = req.AssignedCollaboratorID
	}
	if req.Title != nil {
		p.Title = *req.Title
	}
	if req.Discount != nil {
		p.Discount = *req.Discount
	}
	if req.CommissionType != nil {
		p.CommissionType = commissionType(*req.CommissionType)
	}
	if req.CommissionValue != nil {
		p.CommissionValue = *req.CommissionValue
	}
	if req.Notes != nil {
		p.Notes = *req.Notes
	}
	updated, err := s.repo.Update(ctx, *p)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, updated)
}

// History lists the stage changes of a proposal, oldest first.
func (s *Service) History(ctx context.Context, agencyID, id uuid.UUID) ([]StageChange, error) {
	if _, err := s.repo.Get(ctx, agencyID, id); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, id)
}

// MoveStage moves one proposal. Reaching a closed stage runs settlement, which is also retried
// when the proposal already sits in that closed stage.
func (s *Service) MoveStage(ctx context.Context, principal shared.Principal, id, stageID uuid.UUID) (*MoveResult, error) {
	stage, err := s.stages.Get(ctx, principal.AgencyID, stageID)
	if err != nil {
		return nil, err
	}
	moved, err := s.move(ctx, principal, id, *stage)
	if err != nil {
		return nil, err
	}
	result := &MoveResult{Moved: moved}
	if stage.IsClosed {
		res, err := s.settler.Settle(ctx, id)
		if err != nil {
			s.logger.Error("settlement after move failed", slog.String("proposal_id", id.String()), slog.Any("error", err))
			return nil, err
		}
		result.Settlement = res
	}
	result.Proposal, err = s.Get(ctx, principal.AgencyID, id)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// BulkMoveStage moves every proposal to stageID. A failure on one proposal is reported and the rest continue.
func (s *Service) BulkMoveStage(ctx context.Context, principal shared.Principal, req BulkMoveRequest) (*BulkReport, error) {
	stage, err := s.stages.Get(ctx, principal.AgencyID, req.StageID)
	if err != nil {
		return nil, err
	}
	report := &BulkReport{StageID: stage.ID, Items: make([]BulkItem, 0, len(req.ProposalIDs))}
	for _, id := range req.ProposalIDs {
		item := BulkItem{ProposalID: id}
		moved, err := s.move(ctx, principal, id, *stage)
		if err == nil && stage.IsClosed {
			item.Settlement, err = s.settler.Settle(ctx, id)
		}
		item.Moved = moved
		if moved {
			report.Moved++
		}
		if err != nil {
			item.Error = err.Error()
			report.Failed++
			s.logger.Warn("bulk move item failed", slog.String("proposal_id", id.String()), slog.Any("error", err))
		} else if item.Settlement != nil && item.Settlement.Changed() {
			report.Settled++
		}
		report.Items = append(report.Items, item)
	}
	return report, nil
}

// move reports false when the proposal already sat in stage.
func (s *Service) move(ctx context.Context, principal shared.Principal, id uuid.UUID, stage pipeline.Stage) (bool, error) {
	moved := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		p, err := repo.Get(ctx, principal.AgencyID, id)
		if err != nil {
			return err
		}
		if p.StageID == stage.ID {
			return nil
		}
		now := s.now()
		if err := repo.SetStage(ctx, principal.AgencyID, id, stage.ID, now); err != nil {
			return err
		}
		from := p.StageID
		actor := principal.UserID
		if err := repo.AddHistory(ctx, StageChange{ProposalID: id, FromStageID: &from, ToStageID: stage.ID, ChangedBy: &actor, ChangedAt: now}); err != nil {
			return fmt.Errorf("record history: %w", err)
		}
		moved = true
		return nil
	})
	return moved, err
}

// CreatePublicLink issues a fresh token, replacing any previous link.
func (s *Service) CreatePublicLink(ctx context.Context, agencyID, id uuid.UUID, req PublicLinkRequest) (*PublicLink, error) {
	token := uuid.NewString()
	var expiresAt *time.Time
	if req.ExpiresInHours > 0 {
		t := s.now().Add(time.Duration(req.ExpiresInHours) * time.Hour)
		expiresAt = &t
	}
	if err := s.repo.SetPublicLink(ctx, agencyID, id, token, expiresAt); err != nil {
		return nil, err
	}
	return &PublicLink{Token: token, URL: s.publicBaseURL + "/p/" + token, ExpiresAt: expiresAt}, nil
}

// GetPublic resolves a public token; expired links are indistinguishable from unknown ones.
func (s *Service) GetPublic(ctx context.Context, token string) (*PublicProposal, error) {
	if _, err := uuid.Parse(token); err != nil {
		return nil, ErrLinkNotFound
	}
	p, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	if p.PublicExpiresAt != nil && !s.now().Before(*p.PublicExpiresAt) {
		return nil, ErrLinkNotFound
	}
	services, err := s.repo.ListServices(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Services = services
	view := publicView(p)
	return &view, nil
}
