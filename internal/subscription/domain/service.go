package domain

import (
	"context"
	"errors"
	"time"

	"github.com/upcareer/jobdeck/internal/tier"
	"github.com/upcareer/jobdeck/pkg/db/pagination"
)

type ActivateRequest struct {
	UserID        string             `json:"user_id"`
	Tier          tier.Tier          `json:"tier"`
	BillingPeriod tier.BillingPeriod `json:"billing_period"`

	GrowTransactionToken *string `json:"grow_transaction_token,omitempty"`
	GrowRecurringID      *string `json:"grow_recurring_id,omitempty"`
	MorningCustomerID    *string `json:"morning_customer_id,omitempty"`
}

type RenewRequest struct {
	UserID string `json:"user_id"`
	// PeriodStart pins the new period explicitly; defaults to the previous
	// currentPeriodEnd. Webhook retries pass the same value so the counter
	// reset happens once.
	PeriodStart *time.Time `json:"period_start,omitempty"`
}

type UpgradeRequest struct {
	UserID  string    `json:"user_id"`
	NewTier tier.Tier `json:"tier"`
}

type UpgradeResponse struct {
	Tier                tier.Tier `json:"tier"`
	ProratedChargeCents int64     `json:"prorated_charge_cents"`
}

type ScheduleDowngradeRequest struct {
	UserID  string    `json:"user_id"`
	NewTier tier.Tier `json:"tier"`
}

type SchedulePeriodChangeRequest struct {
	UserID    string             `json:"user_id"`
	NewPeriod tier.BillingPeriod `json:"billing_period"`
}

// ResourceStatus is one row in the status projection.
type ResourceStatus struct {
	Resource  tier.Resource `json:"resource"`
	Used      int64         `json:"used"`
	Limit     int           `json:"limit"`
	Unlimited bool          `json:"unlimited"`
	Percent   float64       `json:"percent"`
}

// StatusResponse is the full subscription projection for the UI.
type StatusResponse struct {
	UserID        string              `json:"user_id"`
	Tier          *tier.Tier          `json:"tier"`
	BillingPeriod *tier.BillingPeriod `json:"billing_period"`
	Status        Status              `json:"status"`

	CurrentPeriodStart      *time.Time `json:"current_period_start"`
	CurrentPeriodEnd        *time.Time `json:"current_period_end"`
	CancellationEffectiveAt *time.Time `json:"cancellation_effective_at"`

	ScheduledTierChange   *tier.Tier          `json:"scheduled_tier_change"`
	ScheduledPeriodChange *tier.BillingPeriod `json:"scheduled_period_change"`

	Usage []ResourceStatus `json:"usage"`

	IsCancelled  bool `json:"is_cancelled"`
	IsPastDue    bool `json:"is_past_due"`
	CanUpgrade   bool `json:"can_upgrade"`
	CanDowngrade bool `json:"can_downgrade"`

	ServerEnforced bool `json:"server_enforced"`
	ClientEnforced bool `json:"client_enforced"`
}

type ListEventsRequest struct {
	UserID    string
	PageToken string
	PageSize  int32
}

type ListEventsResponse struct {
	pagination.PageInfo
	Events []LifecycleEvent `json:"events"`
}

type Service interface {
	Activate(context.Context, ActivateRequest) (Subscription, error)
	Renew(context.Context, RenewRequest) (Subscription, error)
	Upgrade(context.Context, UpgradeRequest) (UpgradeResponse, error)
	ScheduleDowngrade(context.Context, ScheduleDowngradeRequest) error
	ScheduleBillingPeriodChange(context.Context, SchedulePeriodChangeRequest) error
	Cancel(ctx context.Context, userID string) error
	Reactivate(ctx context.Context, userID string) error
	HandlePaymentFailure(ctx context.Context, userID string) error
	ProcessExpirations(ctx context.Context) (int, error)
	GetStatus(ctx context.Context, userID string) (StatusResponse, error)
	GetByUserID(ctx context.Context, userID string) (*Subscription, error)
	ListEvents(context.Context, ListEventsRequest) (ListEventsResponse, error)
}

var (
	ErrInvalidUser          = errors.New("invalid_user")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrNotActive            = errors.New("subscription_not_active")
	ErrNotCancelled         = errors.New("subscription_not_cancelled")
	ErrNotAnUpgrade         = errors.New("not_an_upgrade")
	ErrNotADowngrade        = errors.New("not_a_downgrade")
	ErrMissingPeriodDates   = errors.New("missing_period_dates")
	ErrNoTier               = errors.New("no_tier")
)
