package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/voyager-crm/voyager/internal/platform/httpx"
)

// GatewayState is the subscription as the payment gateway reports it after a change.
type GatewayState struct {
	Status            Status
	PeriodStart       time.Time
	PeriodEnd         time.Time
	CancelAtPeriodEnd bool
}

// Gateway is the payment provider used for gateway-managed subscriptions.
type Gateway interface {
	ChangePrice(ctx context.Context, subscriptionID, priceID string) (GatewayState, error)
	Cancel(ctx context.Context, subscriptionID string, atPeriodEnd bool) (GatewayState, error)
	PortalURL(ctx context.Context, customerID, returnURL string) (string, error)
}

// StripeGateway talks to Stripe.
type StripeGateway struct {
	api *client.API
}

// NewStripeGateway returns a gateway authenticated with the secret key.
func NewStripeGateway(secretKey string) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{api: api}
}

// ChangePrice swaps the price of the subscription's first item, prorating the difference.
func (g *StripeGateway) ChangePrice(ctx context.Context, subscriptionID, priceID string) (GatewayState, error) {
	getParams := &stripe.SubscriptionParams{}
	getParams.Context = ctx
	current, err := g.api.Subscriptions.Get(subscriptionID, getParams)
	if err != nil {
		return GatewayState{}, upstream("load subscription", err)
	}
	if current.Items == nil || len(current.Items.Data) == 0 {
		return GatewayState{}, upstream("load subscription", fmt.Errorf("subscription %s has no items", subscriptionID))
	}

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{{
			ID:    stripe.String(current.Items.Data[0].ID),
			Price: stripe.String(priceID),
		}},
		ProrationBehavior: stripe.String("create_prorations"),
	}
	params.Context = ctx
	updated, err := g.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return GatewayState{}, upstream("update subscription", err)
	}
	return stateOf(updated), nil
}

// Cancel ends the subscription now, or flags it to lapse at the end of the paid period.
func (g *StripeGateway) Cancel(ctx context.Context, subscriptionID string, atPeriodEnd bool) (GatewayState, error) {
	if atPeriodEnd {
		params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
		params.Context = ctx
		sub, err := g.api.Subscriptions.Update(subscriptionID, params)
		if err != nil {
			return GatewayState{}, upstream("schedule cancellation", err)
		}
		return stateOf(sub), nil
	}
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	sub, err := g.api.Subscriptions.Cancel(subscriptionID, params)
	if err != nil {
		return GatewayState{}, upstream("cancel subscription", err)
	}
	return stateOf(sub), nil
}

// PortalURL opens a customer self-service session.
func (g *StripeGateway) PortalURL(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	session, err := g.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", upstream("create portal session", err)
	}
	return session.URL, nil
}

func stateOf(sub *stripe.Subscription) GatewayState {
	return GatewayState{
		Status:            Status(sub.Status),
		PeriodStart:       time.Unix(sub.CurrentPeriodStart, 0).UTC(),
		PeriodEnd:         time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
}

func upstream(op string, err error) error {
	return fmt.Errorf("stripe %s: %w: %v", op, httpx.ErrUpstream, err)
}
