package billing

import "time"

// Manage actions.
const (
	ActionCreateManual = "create_manual"
	ActionUpdateManual = "update_manual"
	ActionChangePlan   = "change_plan"
	ActionChangeCycle  = "change_cycle"
	ActionCancel       = "cancel"
	ActionPortal       = "portal"
)

// ManageRequest is the body of POST /functions/manage-subscription. Keys stay snake_case because
// the operator tooling calling this endpoint already sends them that way.
type ManageRequest struct {
	Action             string     `json:"action" validate:"required,oneof=create_manual update_manual change_plan change_cycle cancel portal"`
	AgencyID           string     `json:"agency_id"`
	PlanID             *string    `json:"plan_id" validate:"omitempty,uuid"`
	BillingCycle       *string    `json:"billing_cycle" validate:"omitempty,oneof=monthly yearly"`
	Status             *string    `json:"status" validate:"omitempty,oneof=active trialing past_due canceled"`
	CurrentPeriodStart *time.Time `json:"current_period_start"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end"`
	GracePeriodDays    *int       `json:"grace_period_days" validate:"omitempty,min=0,max=90"`
	CancelAtPeriodEnd  *bool      `json:"cancel_at_period_end"`
	ReturnURL          *string    `json:"return_url" validate:"omitempty,url"`
}

// ManageResult is returned by every action. URL is only set for portal sessions.
type ManageResult struct {
	Action       string        `json:"action"`
	Subscription *Subscription `json:"subscription,omitempty"`
	URL          string        `json:"url,omitempty"`
}
