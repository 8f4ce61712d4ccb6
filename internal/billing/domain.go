// Package billing resolves agency subscription entitlement and manages subscriptions,
// manually or through the payment gateway.
package billing

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/voyager-crm/voyager/internal/platform/httpx"
)

// Status mirrors the gateway's subscription states.
type Status string

const (
	StatusActive   Status = "active"
	StatusTrialing Status = "trialing"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// Cycle is the billing interval.
type Cycle string

const (
	CycleMonthly Cycle = "monthly"
	CycleYearly  Cycle = "yearly"
)

var (
	ErrSubscriptionNotFound = fmt.Errorf("subscription %w", httpx.ErrNotFound)
	ErrPlanNotFound         = fmt.Errorf("plan %w", httpx.ErrNotFound)
	ErrAgencyNotFound       = fmt.Errorf("agency %w", httpx.ErrNotFound)
	ErrSubscriptionExists   = fmt.Errorf("agency already has a subscription: %w", httpx.ErrDuplicate)
	ErrNotGatewayManaged    = fmt.Errorf("%w: subscription is not linked to the payment gateway", httpx.ErrValidation)
	ErrNoCustomer           = fmt.Errorf("%w: agency has no payment gateway customer", httpx.ErrValidation)
	ErrPriceMissing         = fmt.Errorf("%w: plan has no gateway price for this cycle", httpx.ErrValidation)
	ErrGatewayDisabled      = fmt.Errorf("payment gateway not configured: %w", httpx.ErrUpstream)
)

// Plan is a sellable subscription tier.
type Plan struct {
	ID                 uuid.UUID       `json:"id"`
	Name               string          `json:"name"`
	PriceMonthly       decimal.Decimal `json:"priceMonthly"`
	PriceYearly        decimal.Decimal `json:"priceYearly"`
	StripePriceMonthly *string         `json:"stripePriceMonthly,omitempty"`
	StripePriceYearly  *string         `json:"stripePriceYearly,omitempty"`
	Active             bool            `json:"active"`
}

// PriceID returns the gateway price for cycle, or empty when the plan is not sold that way.
func (p Plan) PriceID(c Cycle) string {
	var id *string
	if c == CycleYearly {
		id = p.StripePriceYearly
	} else {
		id = p.StripePriceMonthly
	}
	if id == nil {
		return ""
	}
	return *id
}

// Subscription is an agency's current plan.
type Subscription struct {
	ID                   uuid.UUID `json:"id"`
	AgencyID             uuid.UUID `json:"agencyId"`
	PlanID               uuid.UUID `json:"planId"`
	Status               Status    `json:"status"`
	BillingCycle         Cycle     `json:"billingCycle"`
	CurrentPeriodStart   time.Time `json:"currentPeriodStart"`
	CurrentPeriodEnd     time.Time `json:"currentPeriodEnd"`
	GracePeriodDays      int       `json:"gracePeriodDays"`
	StripeCustomerID     *string   `json:"stripeCustomerId,omitempty"`
	StripeSubscriptionID *string   `json:"stripeSubscriptionId,omitempty"`
	CancelAtPeriodEnd    bool      `json:"cancelAtPeriodEnd"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// GatewayManaged reports whether changes must go through the payment gateway.
func (s Subscription) GatewayManaged() bool {
	return s.StripeSubscriptionID != nil && *s.StripeSubscriptionID != ""
}

// Entitlement is the access decision for an agency.
type Entitlement struct {
	HasActiveSubscription bool          `json:"hasActiveSubscription"`
	Status                Status        `json:"status,omitempty"`
	ExpiresAt             *time.Time    `json:"expiresAt,omitempty"`
	DaysUntilExpiration   *int          `json:"daysUntilExpiration,omitempty"`
	Subscription          *Subscription `json:"subscription,omitempty"`
}

// Resolve decides entitlement at now. Active and trialing subscriptions are entitled; past_due
// ones only until the period end plus the grace window; anything else, or no subscription, is not.
// Days until expiration are rounded up and negative once expired.
func Resolve(sub *Subscription, now time.Time) Entitlement {
	if sub == nil {
		return Entitlement{}
	}
	expires := sub.CurrentPeriodEnd
	if sub.Status == StatusPastDue {
		expires = expires.AddDate(0, 0, sub.GracePeriodDays)
	}
	days := int(math.Ceil(expires.Sub(now).Hours() / 24))

	ent := Entitlement{
		Status:              sub.Status,
		ExpiresAt:           &expires,
		DaysUntilExpiration: &days,
		Subscription:        sub,
	}
	switch sub.Status {
	case StatusActive, StatusTrialing:
		ent.HasActiveSubscription = true
	case StatusPastDue:
		ent.HasActiveSubscription = now.Before(expires)
	}
	return ent
}
