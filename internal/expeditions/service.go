package expeditions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/voyager-crm/voyager/internal/shared"
)

// KeyStore records claimed submission keys; shared.IdempotencyStore satisfies it.
type KeyStore interface {
	Claim(ctx context.Context, scope, key string) error
	Release(ctx context.Context, scope, key string) error
}

// RegistrationNotice is handed to the Notifier after a registration is stored.
type RegistrationNotice struct {
	GroupName   string
	Destination string
	Name        string
	Email       string
	Waitlisted  bool
}

// Notifier emails travellers about their registration.
type Notifier interface {
	NotifyRegistration(ctx context.Context, notice RegistrationNotice) error
}

// Service implements group management, registration and waitlist promotion.
type Service struct {
	repo     Repository
	locker   *shared.Locker
	keys     KeyStore
	notifier Notifier
	logger   *slog.Logger
}

// NewService constructs the service. locker, keys and notifier may be nil.
func NewService(repo Repository, locker *shared.Locker, keys KeyStore, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, locker: locker, keys: keys, notifier: notifier, logger: logger}
}

func (s *Service) ListGroups(ctx context.Context, agencyID uuid.UUID) ([]Group, error) {
	return s.repo.ListGroups(ctx, agencyID)
}

func (s *Service) GetGroup(ctx context.Context, agencyID, id uuid.UUID) (*Group, error) {
	return s.repo.GetGroup(ctx, agencyID, id)
}

// CreateGroup opens a group with a fresh public token.
func (s *Service) CreateGroup(ctx context.Context, agencyID uuid.UUID, req CreateGroupRequest) (*Group, error) {
	g := Group{
		AgencyID:        agencyID,
		Name:            req.Name,
		Destination:     req.Destination,
		Description:     req.Description,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		MaxParticipants: req.MaxParticipants,
		PublicToken:     uuid.NewString(),
		Active:          true,
	}
	if err := validateDates(g); err != nil {
		return nil, err
	}
	return s.repo.CreateGroup(ctx, g)
}

// UpdateGroup patches a group. Lowering the cap never demotes confirmed registrations.
func (s *Service) UpdateGroup(ctx context.Context, agencyID, id uuid.UUID, req UpdateGroupRequest) (*Group, error) {
	g, err := s.repo.GetGroup(ctx, agencyID, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		g.Name = *req.Name
	}
	if req.Destination != nil {
		g.Destination = *req.Destination
	}
	if req.Description != nil {
		g.Description = *req.Description
	}
	if req.StartDate != nil {
		g.StartDate = req.StartDate
	}
	if req.EndDate != nil {
		g.EndDate = req.EndDate
	}
	if req.MaxParticipants != nil {
		g.MaxParticipants = *req.MaxParticipants
	}
	if req.Active != nil {
		g.Active = *req.Active
	}
	if err := validateDates(*g); err != nil {
		return nil, err
	}
	return s.repo.UpdateGroup(ctx, *g)
}

func (s *Service) DeleteGroup(ctx context.Context, agencyID, id uuid.UUID) error {
	return s.repo.DeleteGroup(ctx, agencyID, id)
}

func validateDates(g Group) error {
	if g.StartDate != nil && g.EndDate != nil && g.EndDate.Before(*g.StartDate) {
		return ErrInvalidDates
	}
	return nil
}

// Roster lists a group's registrations split into confirmed and waitlist.
func (s *Service) Roster(ctx context.Context, agencyID, groupID uuid.UUID) (*Roster, error) {
	g, err := s.repo.GetGroup(ctx, agencyID, groupID)
	if err != nil {
		return nil, err
	}
	regs, err := s.repo.ListRegistrations(ctx, groupID)
	if err != nil {
		return nil, err
	}
	roster := &Roster{Group: *g, Confirmed: []Registration{}, Waitlist: []Registration{}}
	for _, r := range regs {
		if r.IsWaitlist {
			roster.Waitlist = append(roster.Waitlist, r)
		} else {
			roster.Confirmed = append(roster.Confirmed, r)
		}
	}
	return roster, nil
}

// Register signs up a traveller for an agency's group. An explicit status overrides the default.
func (s *Service) Register(ctx context.Context, agencyID, groupID uuid.UUID, req RegisterRequest) (*Registration, error) {
	g, err := s.repo.GetGroup(ctx, agencyID, groupID)
	if err != nil {
		return nil, err
	}
	return s.register(ctx, g, req, Status(req.Status))
}

// PublicGroup resolves a group by its public token.
func (s *Service) PublicGroup(ctx context.Context, token string) (*PublicGroup, error) {
	g, err := s.groupByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return &PublicGroup{
		Name:        g.Name,
		Destination: g.Destination,
		Description: g.Description,
		StartDate:   g.StartDate,
		EndDate:     g.EndDate,
		SeatsLeft:   g.SeatsLeft(),
		Waitlisting: ShouldWaitlist(g.ConfirmedCount, g.MaxParticipants),
	}, nil
}

// RegisterPublic signs up through the public link. A repeated idempotency key is rejected
// as a duplicate; the key is released again when the registration fails.
func (s *Service) RegisterPublic(ctx context.Context, token, idempotencyKey string, req RegisterRequest) (*Registration, error) {
	g, err := s.groupByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if idempotencyKey != "" && s.keys != nil {
		scope := "expedition:" + g.ID.String()
		if err := s.keys.Claim(ctx, scope, idempotencyKey); err != nil {
			return nil, err
		}
		reg, err := s.register(ctx, g, req, "")
		if err != nil {
			if derr := s.keys.Release(context.WithoutCancel(ctx), scope, idempotencyKey); derr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", derr))
			}
			return nil, err
		}
		return reg, nil
	}
	return s.register(ctx, g, req, "")
}

func (s *Service) groupByToken(ctx context.Context, token string) (*Group, error) {
	if _, err := uuid.Parse(token); err != nil {
		return nil, ErrGroupNotFound
	}
	return s.repo.GetGroupByToken(ctx, token)
}

// register counts confirmed seats and inserts under the group lock so two sign-ups cannot both take the last seat.
func (s *Service) register(ctx context.Context, g *Group, req RegisterRequest, status Status) (*Registration, error) {
	if !g.Active {
		return nil, ErrGroupClosed
	}
	var created *Registration
	err := s.locker.WithLock(ctx, shared.ExpeditionGroupLockKey(g.ID), func(ctx context.Context) error {
		confirmed, err := s.repo.CountConfirmed(ctx, g.ID)
		if err != nil {
			return fmt.Errorf("count confirmed: %w", err)
		}
		waitlisted := ShouldWaitlist(confirmed, g.MaxParticipants)
		if !status.Valid() {
			status = DefaultStatus(waitlisted)
		}
		created, err = s.repo.CreateRegistration(ctx, Registration{
			GroupID:    g.ID,
			Name:       req.Name,
			Email:      req.Email,
			Phone:      req.Phone,
			IsWaitlist: waitlisted,
			Status:     status,
			Notes:      req.Notes,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if s.notifier != nil && created.Email != "" {
		notice := RegistrationNotice{
			GroupName:   g.Name,
			Destination: g.Destination,
			Name:        created.Name,
			Email:       created.Email,
			Waitlisted:  created.IsWaitlist,
		}
		if err := s.notifier.NotifyRegistration(ctx, notice); err != nil {
			s.logger.Warn("registration notice not queued",
				slog.String("registration_id", created.ID.String()), slog.Any("error", err))
		}
	}
	return created, nil
}

// Promote moves a waitlisted registration into the confirmed list when a seat is free.
// Status is left as is.
func (s *Service) Promote(ctx context.Context, agencyID, registrationID uuid.UUID) (*Registration, error) {
	reg, err := s.repo.GetRegistration(ctx, agencyID, registrationID)
	if err != nil {
		return nil, err
	}
	if !reg.IsWaitlist {
		return nil, ErrNotWaitlisted
	}
	g, err := s.repo.GetGroup(ctx, agencyID, reg.GroupID)
	if err != nil {
		return nil, err
	}
	var promoted *Registration
	err = s.locker.WithLock(ctx, shared.ExpeditionGroupLockKey(g.ID), func(ctx context.Context) error {
		confirmed, err := s.repo.CountConfirmed(ctx, g.ID)
		if err != nil {
			return fmt.Errorf("count confirmed: %w", err)
		}
		if confirmed >= g.MaxParticipants {
			return ErrGroupFull
		}
		reg.IsWaitlist = false
		promoted, err = s.repo.UpdateRegistration(ctx, *reg)
		return err
	})
	if err != nil {
		return nil, err
	}
	return promoted, nil
}

// UpdateRegistration patches contact data and status without touching the waitlist flag.
func (s *Service) UpdateRegistration(ctx context.Context, agencyID, id uuid.UUID, req UpdateRegistrationRequest) (*Registration, error) {
	reg, err := s.repo.GetRegistration(ctx, agencyID, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		reg.Name = *req.Name
	}
	if req.Email != nil {
		reg.Email = *req.Email
	}
	if req.Phone != nil {
		reg.Phone = *req.Phone
	}
	if req.Notes != nil {
		reg.Notes = *req.Notes
	}
	if req.Status != nil {
		reg.Status = Status(*req.Status)
	}
	return s.repo.UpdateRegistration(ctx, *reg)
}

func (s *Service) DeleteRegistration(ctx context.Context, agencyID, id uuid.UUID) error {
	if _, err := s.repo.GetRegistration(ctx, agencyID, id); err != nil {
		return err
	}
	return s.repo.DeleteRegistration(ctx, id)
}
