package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyager-crm/voyager/internal/platform/db"
)

// Repository persists plans and agency subscriptions.
type Repository interface {
	AgencyExists(ctx context.Context, agencyID uuid.UUID) (bool, error)
	SubscriptionByAgency(ctx context.Context, agencyID uuid.UUID) (*Subscription, error)
	Plan(ctx context.Context, id uuid.UUID) (*Plan, error)
	Plans(ctx context.Context) ([]Plan, error)
	CreateSubscription(ctx context.Context, sub Subscription) (*Subscription, error)
	UpdateSubscription(ctx context.Context, sub Subscription) (*Subscription, error)
}

type repository struct {
	db db.DBTX
}

// NewRepository builds a Postgres-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const subscriptionColumns = `id, agency_id, plan_id, status, billing_cycle, current_period_start, current_period_end,
	grace_period_days, stripe_customer_id, stripe_subscription_id, cancel_at_period_end, created_at, updated_at`

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var s Subscription
	err := row.Scan(&s.ID, &s.AgencyID, &s.PlanID, &s.Status, &s.BillingCycle, &s.CurrentPeriodStart,
		&s.CurrentPeriodEnd, &s.GracePeriodDays, &s.StripeCustomerID, &s.StripeSubscriptionID,
		&s.CancelAtPeriodEnd, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

const planColumns = `id, name, price_monthly, price_yearly, stripe_price_monthly, stripe_price_yearly, active`

func scanPlan(row pgx.Row) (*Plan, error) {
	var p Plan
	err := row.Scan(&p.ID, &p.Name, &p.PriceMonthly, &p.PriceYearly, &p.StripePriceMonthly, &p.StripePriceYearly, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) AgencyExists(ctx context.Context, agencyID uuid.UUID) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM agencies WHERE id = $1)`, agencyID).Scan(&ok)
	return ok, err
}

// SubscriptionByAgency returns the most recent subscription of the agency.
func (r *repository) SubscriptionByAgency(ctx context.Context, agencyID uuid.UUID) (*Subscription, error) {
	return scanSubscription(r.db.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM agency_subscriptions
		WHERE agency_id = $1 ORDER BY created_at DESC LIMIT 1`, agencyID))
}

func (r *repository) Plan(ctx context.Context, id uuid.UUID) (*Plan, error) {
	return scanPlan(r.db.QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id))
}

func (r *repository) Plans(ctx context.Context) ([]Plan, error) {
	rows, err := r.db.Query(ctx, `SELECT `+planColumns+` FROM plans WHERE active ORDER BY price_monthly`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *repository) CreateSubscription(ctx context.Context, s Subscription) (*Subscription, error) {
	created, err := scanSubscription(r.db.QueryRow(ctx, `
		INSERT INTO agency_subscriptions (id, agency_id, plan_id, status, billing_cycle, current_period_start,
			current_period_end, grace_period_days, stripe_customer_id, stripe_subscription_id, cancel_at_period_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+subscriptionColumns,
		uuid.New(), s.AgencyID, s.PlanID, s.Status, s.BillingCycle, s.CurrentPeriodStart, s.CurrentPeriodEnd,
		s.GracePeriodDays, s.StripeCustomerID, s.StripeSubscriptionID, s.CancelAtPeriodEnd))
	if db.IsUniqueViolation(err) {
		return nil, ErrSubscriptionExists
	}
	if db.IsForeignKeyViolation(err) {
		return nil, ErrPlanNotFound
	}
	return created, err
}

func (r *repository) UpdateSubscription(ctx context.Context, s Subscription) (*Subscription, error) {
	updated, err := scanSubscription(r.db.QueryRow(ctx, `
		UPDATE agency_subscriptions SET plan_id = $2, status = $3, billing_cycle = $4, current_period_start = $5,
			current_period_end = $6, grace_period_days = $7, cancel_at_period_end = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING `+subscriptionColumns,
		s.ID, s.PlanID, s.Status, s.BillingCycle, s.CurrentPeriodStart, s.CurrentPeriodEnd,
		s.GracePeriodDays, s.CancelAtPeriodEnd))
	if db.IsForeignKeyViolation(err) {
		return nil, ErrPlanNotFound
	}
	return updated, err
}
