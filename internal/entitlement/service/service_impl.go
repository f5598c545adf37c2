package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/upcareer/jobdeck/internal/clock"
	"github.com/upcareer/jobdeck/internal/config"
	entitlementdomain "github.com/upcareer/jobdeck/internal/entitlement/domain"
	obsmetrics "github.com/upcareer/jobdeck/internal/observability/metrics"
	subscriptiondomain "github.com/upcareer/jobdeck/internal/subscription/domain"
	"github.com/upcareer/jobdeck/internal/tier"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// guardState carries everything a guard needs to decide.
type guardState struct {
	enforced     bool
	subscription *subscriptiondomain.Subscription
	now          time.Time
}

type guardResult int

const (
	guardNext  guardResult = iota // not my call, keep going
	guardAllow                    // allow unconditionally, enforcement off
	guardDeny                     // deny with the returned reason
)

type guard struct {
	name  string
	check func(st guardState) (guardResult, entitlementdomain.Reason)
}

// guards is the precedence order of the decision chain. Both check kinds run
// the same chain and differ only in the terminal step.
var guards = []guard{
	{
		name: "kill_switch",
		check: func(st guardState) (guardResult, entitlementdomain.Reason) {
			if !st.enforced {
				return guardAllow, ""
			}
			return guardNext, ""
		},
	},
	{
		name: "no_subscription",
		check: func(st guardState) (guardResult, entitlementdomain.Reason) {
			if st.subscription == nil || st.subscription.Tier == nil {
				return guardDeny, entitlementdomain.ReasonNoSubscription
			}
			return guardNext, ""
		},
	},
	{
		name: "expired",
		check: func(st guardState) (guardResult, entitlementdomain.Reason) {
			if st.subscription.Status == subscriptiondomain.StatusExpired {
				return guardDeny, entitlementdomain.ReasonSubscriptionExpired
			}
			return guardNext, ""
		},
	},
	{
		// Cancelled is deliberately absent: access holds until the
		// effective date, when the sweep flips the row to expired.
		name: "grace_exceeded",
		check: func(st guardState) (guardResult, entitlementdomain.Reason) {
			if st.subscription.Status != subscriptiondomain.StatusPastDue {
				return guardNext, ""
			}
			end := st.subscription.CurrentPeriodEnd
			if end != nil && st.now.Sub(*end) > subscriptiondomain.GracePeriod {
				return guardDeny, entitlementdomain.ReasonGraceExceeded
			}
			return guardNext, ""
		},
	},
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	clock       clock.Clock
	repo        subscriptiondomain.Repository
	enforcement *config.EnforcementHolder
	metrics     *obsmetrics.Metrics
}

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Repo        subscriptiondomain.Repository
	Enforcement *config.EnforcementHolder
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

func NewChecker(p ServiceParam) entitlementdomain.Checker {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("entitlement.service"),

		clock:       p.Clock,
		repo:        p.Repo,
		enforcement: p.Enforcement,
		metrics:     p.Metrics,
	}
}

// CheckFeature implements domain.Checker.
func (s *Service) CheckFeature(ctx context.Context, userID string, feature tier.Feature) (entitlementdomain.FeatureDecision, error) {
	st, result, reason, err := s.runGuards(ctx, userID)
	if err != nil {
		return entitlementdomain.FeatureDecision{}, err
	}

	var decision entitlementdomain.FeatureDecision
	switch result {
	case guardAllow:
		decision = entitlementdomain.FeatureDecision{Allowed: true, Enforced: false}
	case guardDeny:
		decision = entitlementdomain.FeatureDecision{Allowed: false, Enforced: true, Reason: reason}
	default:
		decision = entitlementdomain.FeatureDecision{Enforced: true}
		if tier.HasFeature(*st.subscription.Tier, feature) {
			decision.Allowed = true
		} else {
			decision.Reason = entitlementdomain.ReasonFeatureNotIncluded
		}
	}

	s.record(ctx, "feature", decision.Allowed, decision.Reason)
	return decision, nil
}

// CheckUsage implements domain.Checker.
func (s *Service) CheckUsage(ctx context.Context, userID string, resource tier.Resource) (entitlementdomain.UsageDecision, error) {
	st, result, reason, err := s.runGuards(ctx, userID)
	if err != nil {
		return entitlementdomain.UsageDecision{}, err
	}

	var decision entitlementdomain.UsageDecision
	switch result {
	case guardAllow:
		decision = entitlementdomain.UsageDecision{Allowed: true, Enforced: false, Unlimited: true}
	case guardDeny:
		decision = entitlementdomain.UsageDecision{Allowed: false, Enforced: true, Reason: reason}
	default:
		used := st.subscription.Usage(resource)
		limit := tier.Limit(*st.subscription.Tier, resource)
		decision = entitlementdomain.UsageDecision{
			Enforced: true,
			Used:     used,
			Limit:    limit,
		}
		switch {
		case limit == tier.Unlimited:
			decision.Allowed = true
			decision.Unlimited = true
		case used < int64(limit):
			decision.Allowed = true
			decision.Remaining = int64(limit) - used
		default:
			decision.Reason = entitlementdomain.ReasonLimitExceeded
		}
	}

	s.record(ctx, "usage", decision.Allowed, decision.Reason)
	return decision, nil
}

// runGuards walks the chain until a guard rules, or every guard passes and
// the terminal step decides.
func (s *Service) runGuards(ctx context.Context, rawUserID string) (guardState, guardResult, entitlementdomain.Reason, error) {
	st := guardState{
		enforced: s.enforcement.Get().ServerEnabled,
		now:      s.clock.Now(),
	}

	userID, err := snowflake.ParseString(strings.TrimSpace(rawUserID))
	if err != nil || userID == 0 {
		return st, guardNext, "", subscriptiondomain.ErrInvalidUser
	}

	if st.enforced {
		// With the switch off the row is never read; the decision cannot
		// depend on state the switch told us to ignore.
		st.subscription, err = s.repo.FindByUserID(ctx, s.db, userID)
		if err != nil {
			return st, guardNext, "", err
		}
	}

	for _, g := range guards {
		result, reason := g.check(st)
		if result != guardNext {
			return st, result, reason, nil
		}
	}
	return st, guardNext, "", nil
}

func (s *Service) record(ctx context.Context, kind string, allowed bool, reason entitlementdomain.Reason) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordEntitlementCheck(ctx, kind, allowed, string(reason))
}
