package billing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyager-crm/voyager/internal/platform/httpx"
	"github.com/voyager-crm/voyager/internal/shared"
)

type memRepo struct {
	agencies map[uuid.UUID]bool
	plans    map[uuid.UUID]Plan
	subs     map[uuid.UUID]Subscription
}

func newMemRepo() *memRepo {
	return &memRepo{agencies: map[uuid.UUID]bool{}, plans: map[uuid.UUID]Plan{}, subs: map[uuid.UUID]Subscription{}}
}

func (m *memRepo) AgencyExists(_ context.Context, id uuid.UUID) (bool, error) {
	return m.agencies[id], nil
}

func (m *memRepo) SubscriptionByAgency(_ context.Context, id uuid.UUID) (*Subscription, error) {
	s, ok := m.subs[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return &s, nil
}

func (m *memRepo) Plan(_ context.Context, id uuid.UUID) (*Plan, error) {
	p, ok := m.plans[id]
	if !ok {
		return nil, ErrPlanNotFound
	}
	return &p, nil
}

func (m *memRepo) Plans(context.Context) ([]Plan, error) {
	var out []Plan
	for _, p := range m.plans {
		out = append(out, p)
	}
	return out, nil
}

func (m *memRepo) CreateSubscription(_ context.Context, s Subscription) (*Subscription, error) {
	if _, ok := m.subs[s.AgencyID]; ok {
		return nil, ErrSubscriptionExists
	}
	s.ID = uuid.New()
	m.subs[s.AgencyID] = s
	return &s, nil
}

func (m *memRepo) UpdateSubscription(_ context.Context, s Subscription) (*Subscription, error) {
	m.subs[s.AgencyID] = s
	return &s, nil
}

type fakeGateway struct {
	err         error
	priceCalls  []string
	canceled    []bool
	portalCalls []string
	state       GatewayState
}

func (g *fakeGateway) ChangePrice(_ context.Context, subID, priceID string) (GatewayState, error) {
	g.priceCalls = append(g.priceCalls, subID+"="+priceID)
	return g.state, g.err
}

func (g *fakeGateway) Cancel(_ context.Context, _ string, atPeriodEnd bool) (GatewayState, error) {
	g.canceled = append(g.canceled, atPeriodEnd)
	st := g.state
	st.CancelAtPeriodEnd = atPeriodEnd
	if !atPeriodEnd {
		st.Status = StatusCanceled
	}
	return st, g.err
}

func (g *fakeGateway) PortalURL(_ context.Context, customerID, returnURL string) (string, error) {
	g.portalCalls = append(g.portalCalls, customerID+"|"+returnURL)
	return "https://billing.example.test/session", g.err
}

type fakeAudit struct {
	logs []shared.AuditLog
}

func (a *fakeAudit) Record(_ context.Context, l shared.AuditLog) error {
	a.logs = append(a.logs, l)
	return nil
}

type fixture struct {
	repo    *memRepo
	gateway *fakeGateway
	audit   *fakeAudit
	svc     *Service
	admin   shared.Principal
	agency  uuid.UUID
	basic   Plan
	pro     Plan
	now     time.Time
}

func strPtr(s string) *string { return &s }

func newFixture() *fixture {
	f := &fixture{
		repo:    newMemRepo(),
		gateway: &fakeGateway{},
		audit:   &fakeAudit{},
		admin:   shared.Principal{UserID: uuid.New(), Role: shared.RoleSuperAdmin},
		agency:  uuid.New(),
		now:     time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	}
	f.basic = Plan{ID: uuid.New(), Name: "Basic", StripePriceMonthly: strPtr("price_basic_m"), Active: true}
	f.pro = Plan{ID: uuid.New(), Name: "Pro", StripePriceMonthly: strPtr("price_pro_m"), StripePriceYearly: strPtr("price_pro_y"), Active: true}
	f.repo.plans[f.basic.ID] = f.basic
	f.repo.plans[f.pro.ID] = f.pro
	f.repo.agencies[f.agency] = true

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewService(f.repo, logger, WithGateway(f.gateway, "https://app.example.test/billing"), WithAudit(f.audit))
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) stripeSubscription() {
	f.repo.subs[f.agency] = Subscription{
		ID: uuid.New(), AgencyID: f.agency, PlanID: f.basic.ID, Status: StatusActive, BillingCycle: CycleMonthly,
		CurrentPeriodStart: f.now.AddDate(0, 0, -5), CurrentPeriodEnd: f.now.AddDate(0, 0, 25),
		StripeCustomerID: strPtr("cus_1"), StripeSubscriptionID: strPtr("sub_1"),
	}
}

func (f *fixture) manage(req ManageRequest) (*ManageResult, error) {
	if req.AgencyID == "" {
		req.AgencyID = f.agency.String()
	}
	return f.svc.Manage(context.Background(), f.admin, req)
}

func TestManageRequiresSuperAdmin(t *testing.T) {
	f := newFixture()
	p := shared.Principal{UserID: uuid.New(), AgencyID: f.agency, Role: shared.RoleAgencyAdmin}
	_, err := f.svc.Manage(context.Background(), p, ManageRequest{Action: ActionPortal, AgencyID: f.agency.String()})
	assert.ErrorIs(t, err, httpx.ErrForbidden)
	assert.Empty(t, f.audit.logs)
}

func TestManageRequiresAgency(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Manage(context.Background(), f.admin, ManageRequest{Action: ActionCreateManual})
	assert.ErrorIs(t, err, httpx.ErrValidation)
	assert.Contains(t, err.Error(), "agency_id")
}

func TestCreateManualDefaults(t *testing.T) {
	f := newFixture()
	res, err := f.manage(ManageRequest{Action: ActionCreateManual, PlanID: strPtr(f.basic.ID.String())})
	require.NoError(t, err)

	sub := res.Subscription
	assert.Equal(t, StatusActive, sub.Status)
	assert.Equal(t, CycleMonthly, sub.BillingCycle)
	assert.Equal(t, DefaultGracePeriodDays, sub.GracePeriodDays)
	assert.Equal(t, f.now, sub.CurrentPeriodStart)
	assert.Equal(t, f.now.AddDate(0, 1, 0), sub.CurrentPeriodEnd)
	assert.Empty(t, f.gateway.priceCalls)

	require.Len(t, f.audit.logs, 1)
	log := f.audit.logs[0]
	assert.Equal(t, "subscription.create_manual", log.Action)
	assert.Equal(t, sub.ID.String(), log.EntityID)
	assert.Equal(t, f.admin.UserID, log.ActorID)
}

func TestCreateManualErrors(t *testing.T) {
	f := newFixture()

	_, err := f.manage(ManageRequest{Action: ActionCreateManual, PlanID: strPtr(uuid.NewString())})
	assert.ErrorIs(t, err, httpx.ErrNotFound)

	_, err = f.manage(ManageRequest{Action: ActionCreateManual, AgencyID: uuid.NewString(), PlanID: strPtr(f.basic.ID.String())})
	assert.ErrorIs(t, err, ErrAgencyNotFound)

	_, err = f.manage(ManageRequest{Action: ActionCreateManual})
	assert.ErrorIs(t, err, httpx.ErrValidation)

	f.stripeSubscription()
	_, err = f.manage(ManageRequest{Action: ActionCreateManual, PlanID: strPtr(f.basic.ID.String())})
	assert.ErrorIs(t, err, httpx.ErrDuplicate)
	assert.Empty(t, f.audit.logs)
}

func TestUpdateManual(t *testing.T) {
	f := newFixture()
	f.stripeSubscription()
	end := f.now.AddDate(0, 0, -1)

	res, err := f.manage(ManageRequest{Action: ActionUpdateManual, Status: strPtr("past_due"), CurrentPeriodEnd: &end,
		GracePeriodDays: func() *int { v := 7; return &v }()})
	require.NoError(t, err)
	assert.Equal(t, StatusPastDue, res.Subscription.Status)

	ent, err := f.svc.Status(context.Background(), f.agency)
	require.NoError(t, err)
	assert.True(t, ent.HasActiveSubscription)
	assert.Equal(t, 6, *ent.DaysUntilExpiration)
}

func TestUpdateManualMissingSubscription(t *testing.T) {
	f := newFixture()
	_, err := f.manage(ManageRequest{Action: ActionUpdateManual, Status: strPtr("active")})
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestChangePlanUsesGatewayPeriod(t *testing.T) {
	f := newFixture()
	f.stripeSubscription()
	f.gateway.state = GatewayState{Status: StatusActive, PeriodStart: f.now, PeriodEnd: f.now.AddDate(0, 1, 0)}

	res, err := f.manage(ManageRequest{Action: ActionChangePlan, PlanID: strPtr(f.pro.ID.String())})
	require.NoError(t, err)
	assert.Equal(t, []string{"sub_1=price_pro_m"}, f.gateway.priceCalls)
	assert.Equal(t, f.pro.ID, res.Subscription.PlanID)
	assert.Equal(t, f.now.AddDate(0, 1, 0), res.Subscription.CurrentPeriodEnd)
	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, "subscription.change_plan", f.audit.logs[0].Action)
}

func TestChangeCycleNeedsPrice(t *testing.T) {
	f := newFixture()
	f.stripeSubscription()

	_, err := f.manage(ManageRequest{Action: ActionChangeCycle, BillingCycle: strPtr("yearly")})
	assert.ErrorIs(t, err, ErrPriceMissing)
	assert.Empty(t, f.gateway.priceCalls)

	sub := f.repo.subs[f.agency]
	sub.PlanID = f.pro.ID
	f.repo.subs[f.agency] = sub
	res, err := f.manage(ManageRequest{Action: ActionChangeCycle, BillingCycle: strPtr("yearly")})
	require.NoError(t, err)
	assert.Equal(t, CycleYearly, res.Subscription.BillingCycle)
	assert.Equal(t, []string{"sub_1=price_pro_y"}, f.gateway.priceCalls)
}

func TestGatewayActionsRejectManualSubscription(t *testing.T) {
	f := newFixture()
	_, err := f.manage(ManageRequest{Action: ActionCreateManual, PlanID: strPtr(f.basic.ID.String())})
	require.NoError(t, err)

	_, err = f.manage(ManageRequest{Action: ActionCancel})
	assert.ErrorIs(t, err, ErrNotGatewayManaged)
	assert.Empty(t, f.gateway.canceled)
}

func TestCancelDefaultsToPeriodEnd(t *testing.T) {
	f := newFixture()
	f.stripeSubscription()

	res, err := f.manage(ManageRequest{Action: ActionCancel})
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, f.gateway.canceled)
	assert.True(t, res.Subscription.CancelAtPeriodEnd)
	assert.Equal(t, StatusActive, res.Subscription.Status)

	now := false
	res, err = f.manage(ManageRequest{Action: ActionCancel, CancelAtPeriodEnd: &now})
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, res.Subscription.Status)
}

func TestPortal(t *testing.T) {
	f := newFixture()
	f.stripeSubscription()

	res, err := f.manage(ManageRequest{Action: ActionPortal})
	require.NoError(t, err)
	assert.Equal(t, "https://billing.example.test/session", res.URL)
	assert.Equal(t, []string{"cus_1|https://app.example.test/billing"}, f.gateway.portalCalls)
}

func TestGatewayFailureIsUpstream(t *testing.T) {
	f := newFixture()
	f.stripeSubscription()
	f.gateway.err = fmt.Errorf("stripe update subscription: %w: card declined", httpx.ErrUpstream)

	_, err := f.manage(ManageRequest{Action: ActionChangePlan, PlanID: strPtr(f.pro.ID.String())})
	assert.ErrorIs(t, err, httpx.ErrUpstream)
	assert.Equal(t, f.basic.ID, f.repo.subs[f.agency].PlanID)
	assert.Empty(t, f.audit.logs)
}

func TestGatewayDisabled(t *testing.T) {
	f := newFixture()
	f.stripeSubscription()
	f.svc.gateway = nil

	_, err := f.manage(ManageRequest{Action: ActionPortal})
	assert.True(t, errors.Is(err, ErrGatewayDisabled))
}

func TestStatusWithoutSubscription(t *testing.T) {
	f := newFixture()
	ent, err := f.svc.Status(context.Background(), f.agency)
	require.NoError(t, err)
	assert.False(t, ent.HasActiveSubscription)
	assert.Nil(t, ent.DaysUntilExpiration)
}
