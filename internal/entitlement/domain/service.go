package domain

import (
	"context"

	"github.com/upcareer/jobdeck/internal/tier"
)

// Reason explains a denial. Reasons are values in the decision, not errors:
// each maps to a UI affordance (paywall, upgrade prompt, grace banner).
type Reason string

const (
	ReasonNoSubscription      Reason = "no_subscription"
	ReasonSubscriptionExpired Reason = "subscription_expired"
	ReasonGraceExceeded       Reason = "grace_exceeded"
	ReasonFeatureNotIncluded  Reason = "feature_not_included"
	ReasonLimitExceeded       Reason = "limit_exceeded"
)

// FeatureDecision is the outcome of a feature gate check. Enforced is false
// when the kill switch disabled enforcement for this call.
type FeatureDecision struct {
	Allowed  bool   `json:"allowed"`
	Enforced bool   `json:"enforced"`
	Reason   Reason `json:"reason,omitempty"`
}

// UsageDecision is the outcome of a resource limit check.
type UsageDecision struct {
	Allowed   bool   `json:"allowed"`
	Enforced  bool   `json:"enforced"`
	Unlimited bool   `json:"unlimited"`
	Used      int64  `json:"used"`
	Limit     int    `json:"limit"`
	Remaining int64  `json:"remaining"`
	Reason    Reason `json:"reason,omitempty"`
}

// Checker answers entitlement questions. Both operations are read-only and
// cheap enough to call several times per request.
type Checker interface {
	CheckFeature(ctx context.Context, userID string, feature tier.Feature) (FeatureDecision, error)
	CheckUsage(ctx context.Context, userID string, resource tier.Resource) (UsageDecision, error)
}
