package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveGraceWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	sub := &Subscription{Status: StatusPastDue, CurrentPeriodEnd: now.AddDate(0, 0, -1), GracePeriodDays: 7}

	ent := Resolve(sub, now)
	assert.True(t, ent.HasActiveSubscription)
	require.NotNil(t, ent.DaysUntilExpiration)
	assert.Equal(t, 6, *ent.DaysUntilExpiration)
	assert.Equal(t, now.AddDate(0, 0, 6), *ent.ExpiresAt)

	sub.GracePeriodDays = 0
	ent = Resolve(sub, now)
	assert.False(t, ent.HasActiveSubscription)
	assert.Equal(t, -1, *ent.DaysUntilExpiration)
}

func TestResolveStatuses(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -3)

	tests := []struct {
		name   string
		sub    *Subscription
		active bool
	}{
		{"no subscription", nil, false},
		{"active", &Subscription{Status: StatusActive, CurrentPeriodEnd: now.AddDate(0, 0, 10)}, true},
		{"trialing past end", &Subscription{Status: StatusTrialing, CurrentPeriodEnd: past}, true},
		{"canceled", &Subscription{Status: StatusCanceled, CurrentPeriodEnd: now.AddDate(0, 0, 10)}, false},
		{"past due at boundary", &Subscription{Status: StatusPastDue, CurrentPeriodEnd: past, GracePeriodDays: 3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.active, Resolve(tt.sub, now).HasActiveSubscription)
		})
	}
}

func TestResolveRoundsDaysUp(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	ent := Resolve(&Subscription{Status: StatusActive, CurrentPeriodEnd: now.Add(25 * time.Hour)}, now)
	assert.Equal(t, 2, *ent.DaysUntilExpiration)

	ent = Resolve(&Subscription{Status: StatusActive, CurrentPeriodEnd: now.Add(-30 * time.Hour)}, now)
	assert.Equal(t, -1, *ent.DaysUntilExpiration)
}

func TestPlanPriceID(t *testing.T) {
	monthly := "price_m"
	p := Plan{StripePriceMonthly: &monthly}
	assert.Equal(t, "price_m", p.PriceID(CycleMonthly))
	assert.Empty(t, p.PriceID(CycleYearly))
}
