package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/voyager-crm/voyager/internal/platform/httpx"
	"github.com/voyager-crm/voyager/internal/shared"
)

// DefaultGracePeriodDays applies to manual subscriptions created without an explicit grace window.
const DefaultGracePeriodDays = 7

// Service resolves entitlement and executes subscription management actions.
type Service struct {
	repo      Repository
	gateway   Gateway
	audit     shared.AuditRecorder
	logger    *slog.Logger
	returnURL string
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithGateway enables gateway-backed actions. Portal sessions return to returnURL unless the
// request names another.
func WithGateway(g Gateway, returnURL string) Option {
	return func(s *Service) {
		s.gateway = g
		s.returnURL = returnURL
	}
}

// WithAudit records every management action.
func WithAudit(a shared.AuditRecorder) Option {
	return func(s *Service) { s.audit = a }
}

// NewService constructs a billing Service.
func NewService(repo Repository, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{repo: repo, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns the agency's subscription.
func (s *Service) Current(ctx context.Context, agencyID uuid.UUID) (*Subscription, error) {
	return s.repo.SubscriptionByAgency(ctx, agencyID)
}

// Status resolves the agency's entitlement at the current time.
func (s *Service) Status(ctx context.Context, agencyID uuid.UUID) (Entitlement, error) {
	sub, err := s.repo.SubscriptionByAgency(ctx, agencyID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return Resolve(nil, s.now()), nil
	}
	if err != nil {
		return Entitlement{}, err
	}
	return Resolve(sub, s.now()), nil
}

// Plans lists the plans on sale.
func (s *Service) Plans(ctx context.Context) ([]Plan, error) {
	return s.repo.Plans(ctx)
}

// Manage runs one management action on behalf of a super admin.
func (s *Service) Manage(ctx context.Context, p shared.Principal, req ManageRequest) (*ManageResult, error) {
	if !p.IsSuperAdmin() {
		return nil, fmt.Errorf("subscription management requires super admin: %w", httpx.ErrForbidden)
	}
	if req.AgencyID == "" {
		return nil, fmt.Errorf("%w: agency_id is required", httpx.ErrValidation)
	}
	agencyID, err := uuid.Parse(req.AgencyID)
	if err != nil {
		return nil, fmt.Errorf("%w: agency_id must be a UUID", httpx.ErrValidation)
	}

	var res *ManageResult
	switch req.Action {
	case ActionCreateManual:
		res, err = s.createManual(ctx, agencyID, req)
	case ActionUpdateManual:
		res, err = s.updateManual(ctx, agencyID, req)
	case ActionChangePlan:
		res, err = s.changePlan(ctx, agencyID, req)
	case ActionChangeCycle:
		res, err = s.changeCycle(ctx, agencyID, req)
	case ActionCancel:
		res, err = s.cancel(ctx, agencyID, req)
	case ActionPortal:
		res, err = s.portal(ctx, agencyID, req)
	default:
		return nil, fmt.Errorf("%w: unknown action %q", httpx.ErrValidation, req.Action)
	}
	if err != nil {
		return nil, err
	}
	res.Action = req.Action
	s.record(ctx, p, agencyID, res, req)
	return res, nil
}

func (s *Service) createManual(ctx context.Context, agencyID uuid.UUID, req ManageRequest) (*ManageResult, error) {
	if req.PlanID == nil {
		return nil, fmt.Errorf("%w: plan_id is required", httpx.ErrValidation)
	}
	ok, err := s.repo.AgencyExists(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAgencyNotFound
	}
	if _, err := s.repo.SubscriptionByAgency(ctx, agencyID); err == nil {
		return nil, ErrSubscriptionExists
	} else if !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, err
	}
	plan, err := s.plan(ctx, *req.PlanID)
	if err != nil {
		return nil, err
	}

	sub := Subscription{
		AgencyID:        agencyID,
		PlanID:          plan.ID,
		Status:          StatusActive,
		BillingCycle:    CycleMonthly,
		GracePeriodDays: DefaultGracePeriodDays,
	}
	if req.Status != nil {
		sub.Status = Status(*req.Status)
	}
	if req.BillingCycle != nil {
		sub.BillingCycle = Cycle(*req.BillingCycle)
	}
	if req.GracePeriodDays != nil {
		sub.GracePeriodDays = *req.GracePeriodDays
	}
	sub.CurrentPeriodStart = s.now().UTC()
	if req.CurrentPeriodStart != nil {
		sub.CurrentPeriodStart = *req.CurrentPeriodStart
	}
	sub.CurrentPeriodEnd = periodEnd(sub.CurrentPeriodStart, sub.BillingCycle)
	if req.CurrentPeriodEnd != nil {
		sub.CurrentPeriodEnd = *req.CurrentPeriodEnd
	}
	if !sub.CurrentPeriodEnd.After(sub.CurrentPeriodStart) {
		return nil, fmt.Errorf("%w: current_period_end must be after current_period_start", httpx.ErrValidation)
	}

	created, err := s.repo.CreateSubscription(ctx, sub)
	if err != nil {
		return nil, err
	}
	return &ManageResult{Subscription: created}, nil
}

// updateManual edits stored fields directly. Gateway-managed subscriptions are edited too, the
// next gateway change overwrites the period.
func (s *Service) updateManual(ctx context.Context, agencyID uuid.UUID, req ManageRequest) (*ManageResult, error) {
	sub, err := s.repo.SubscriptionByAgency(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	if req.PlanID != nil {
		plan, err := s.plan(ctx, *req.PlanID)
		if err != nil {
			return nil, err
		}
		sub.PlanID = plan.ID
	}
	if req.Status != nil {
		sub.Status = Status(*req.Status)
	}
	if req.BillingCycle != nil {
		sub.BillingCycle = Cycle(*req.BillingCycle)
	}
	if req.GracePeriodDays != nil {
		sub.GracePeriodDays = *req.GracePeriodDays
	}
	if req.CurrentPeriodStart != nil {
		sub.CurrentPeriodStart = *req.CurrentPeriodStart
	}
	if req.CurrentPeriodEnd != nil {
		sub.CurrentPeriodEnd = *req.CurrentPeriodEnd
	}
	if req.CancelAtPeriodEnd != nil {
		sub.CancelAtPeriodEnd = *req.CancelAtPeriodEnd
	}
	if !sub.CurrentPeriodEnd.After(sub.CurrentPeriodStart) {
		return nil, fmt.Errorf("%w: current_period_end must be after current_period_start", httpx.ErrValidation)
	}
	updated, err := s.repo.UpdateSubscription(ctx, *sub)
	if err != nil {
		return nil, err
	}
	return &ManageResult{Subscription: updated}, nil
}

func (s *Service) changePlan(ctx context.Context, agencyID uuid.UUID, req ManageRequest) (*ManageResult, error) {
	if req.PlanID == nil {
		return nil, fmt.Errorf("%w: plan_id is required", httpx.ErrValidation)
	}
	sub, err := s.gatewaySubscription(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	plan, err := s.plan(ctx, *req.PlanID)
	if err != nil {
		return nil, err
	}
	return s.reprice(ctx, sub, plan, sub.BillingCycle)
}

func (s *Service) changeCycle(ctx context.Context, agencyID uuid.UUID, req ManageRequest) (*ManageResult, error) {
	if req.BillingCycle == nil {
		return nil, fmt.Errorf("%w: billing_cycle is required", httpx.ErrValidation)
	}
	sub, err := s.gatewaySubscription(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	plan, err := s.repo.Plan(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}
	return s.reprice(ctx, sub, plan, Cycle(*req.BillingCycle))
}

func (s *Service) reprice(ctx context.Context, sub *Subscription, plan *Plan, cycle Cycle) (*ManageResult, error) {
	price := plan.PriceID(cycle)
	if price == "" {
		return nil, ErrPriceMissing
	}
	state, err := s.gateway.ChangePrice(ctx, *sub.StripeSubscriptionID, price)
	if err != nil {
		return nil, err
	}
	sub.PlanID = plan.ID
	sub.BillingCycle = cycle
	apply(sub, state)
	updated, err := s.repo.UpdateSubscription(ctx, *sub)
	if err != nil {
		return nil, err
	}
	return &ManageResult{Subscription: updated}, nil
}

// cancel defaults to lapsing at period end so the agency keeps what it paid for.
func (s *Service) cancel(ctx context.Context, agencyID uuid.UUID, req ManageRequest) (*ManageResult, error) {
	atPeriodEnd := true
	if req.CancelAtPeriodEnd != nil {
		atPeriodEnd = *req.CancelAtPeriodEnd
	}
	sub, err := s.gatewaySubscription(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	state, err := s.gateway.Cancel(ctx, *sub.StripeSubscriptionID, atPeriodEnd)
	if err != nil {
		return nil, err
	}
	apply(sub, state)
	updated, err := s.repo.UpdateSubscription(ctx, *sub)
	if err != nil {
		return nil, err
	}
	return &ManageResult{Subscription: updated}, nil
}

func (s *Service) portal(ctx context.Context, agencyID uuid.UUID, req ManageRequest) (*ManageResult, error) {
	if s.gateway == nil {
		return nil, ErrGatewayDisabled
	}
	sub, err := s.repo.SubscriptionByAgency(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	if sub.StripeCustomerID == nil || *sub.StripeCustomerID == "" {
		return nil, ErrNoCustomer
	}
	returnURL := s.returnURL
	if req.ReturnURL != nil {
		returnURL = *req.ReturnURL
	}
	url, err := s.gateway.PortalURL(ctx, *sub.StripeCustomerID, returnURL)
	if err != nil {
		return nil, err
	}
	return &ManageResult{Subscription: sub, URL: url}, nil
}

func (s *Service) gatewaySubscription(ctx context.Context, agencyID uuid.UUID) (*Subscription, error) {
	if s.gateway == nil {
		return nil, ErrGatewayDisabled
	}
	sub, err := s.repo.SubscriptionByAgency(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	if !sub.GatewayManaged() {
		return nil, ErrNotGatewayManaged
	}
	return sub, nil
}

func (s *Service) plan(ctx context.Context, raw string) (*Plan, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: plan_id must be a UUID", httpx.ErrValidation)
	}
	return s.repo.Plan(ctx, id)
}

func (s *Service) record(ctx context.Context, p shared.Principal, agencyID uuid.UUID, res *ManageResult, req ManageRequest) {
	if s.audit == nil {
		return
	}
	entityID := agencyID.String()
	if res.Subscription != nil {
		entityID = res.Subscription.ID.String()
	}
	meta := map[string]any{"agency_id": agencyID.String()}
	if req.PlanID != nil {
		meta["plan_id"] = *req.PlanID
	}
	if req.BillingCycle != nil {
		meta["billing_cycle"] = *req.BillingCycle
	}
	if req.Status != nil {
		meta["status"] = *req.Status
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  p.UserID,
		AgencyID: agencyID,
		Action:   "subscription." + req.Action,
		Entity:   "agency_subscription",
		EntityID: entityID,
		Meta:     meta,
		At:       s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("audit subscription action", slog.String("action", req.Action), slog.Any("error", err))
	}
}

func apply(sub *Subscription, state GatewayState) {
	if state.Status != "" {
		sub.Status = state.Status
	}
	if !state.PeriodStart.IsZero() && state.PeriodStart.Unix() > 0 {
		sub.CurrentPeriodStart = state.PeriodStart
	}
	if !state.PeriodEnd.IsZero() && state.PeriodEnd.Unix() > 0 {
		sub.CurrentPeriodEnd = state.PeriodEnd
	}
	sub.CancelAtPeriodEnd = state.CancelAtPeriodEnd
}

func periodEnd(start time.Time, c Cycle) time.Time {
	if c == CycleYearly {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}
