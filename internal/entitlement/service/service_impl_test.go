package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upcareer/jobdeck/internal/clock"
	"github.com/upcareer/jobdeck/internal/config"
	entitlementdomain "github.com/upcareer/jobdeck/internal/entitlement/domain"
	subscriptiondomain "github.com/upcareer/jobdeck/internal/subscription/domain"
	"github.com/upcareer/jobdeck/internal/subscription/repository"
	"github.com/upcareer/jobdeck/internal/tier"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type checkerEnv struct {
	checker     entitlementdomain.Checker
	db          *gorm.DB
	clock       *clock.FakeClock
	enforcement *config.EnforcementHolder
	node        *snowflake.Node
}

func newCheckerEnv(t *testing.T) *checkerEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&subscriptiondomain.Subscription{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC))
	enforcement := config.NewStaticEnforcement(config.DefaultEnforcementConfig())

	checker := NewChecker(ServiceParam{
		DB:          db,
		Log:         zap.NewNop(),
		Clock:       fake,
		Repo:        repository.Provide(),
		Enforcement: enforcement,
	})

	return &checkerEnv{checker: checker, db: db, clock: fake, enforcement: enforcement, node: node}
}

type seed struct {
	tier      *tier.Tier
	period    *tier.BillingPeriod
	status    subscriptiondomain.Status
	periodEnd *time.Time
	usage     map[tier.Resource]int64
}

func (e *checkerEnv) seedSubscription(t *testing.T, s seed) string {
	t.Helper()

	now := e.clock.Now()
	start := now.AddDate(0, -1, 0)
	end := now.AddDate(0, 0, 7)
	if s.periodEnd != nil {
		end = *s.periodEnd
	}

	sub := subscriptiondomain.Subscription{
		ID:                 e.node.Generate(),
		UserID:             e.node.Generate(),
		Tier:               s.tier,
		BillingPeriod:      s.period,
		Status:             s.status,
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
		LastResetAt:        start,
		CreatedAt:          start,
		UpdatedAt:          now,
	}
	for resource, count := range s.usage {
		switch resource {
		case tier.ResourceApplications:
			sub.UsageApplications = count
		case tier.ResourceCVs:
			sub.UsageCVs = count
		case tier.ResourceInterviews:
			sub.UsageInterviews = count
		case tier.ResourceCompensation:
			sub.UsageCompensation = count
		case tier.ResourceContracts:
			sub.UsageContracts = count
		case tier.ResourceAIAvatarInterviews:
			sub.UsageAIAvatarInterviews = count
		}
	}
	require.NoError(t, e.db.Create(&sub).Error)
	return sub.UserID.String()
}

func ptr[T any](v T) *T { return &v }

func TestGuardChainOrder(t *testing.T) {
	names := make([]string, 0, len(guards))
	for _, g := range guards {
		names = append(names, g.name)
	}
	assert.Equal(t, []string{"kill_switch", "no_subscription", "expired", "grace_exceeded"}, names)
}

func TestKillSwitchInvariant(t *testing.T) {
	env := newCheckerEnv(t)
	env.enforcement.Set(config.EnforcementConfig{ServerEnabled: false, ClientEnabled: false})

	statuses := []subscriptiondomain.Status{
		subscriptiondomain.StatusActive,
		subscriptiondomain.StatusCancelled,
		subscriptiondomain.StatusPastDue,
		subscriptiondomain.StatusExpired,
	}

	for _, status := range statuses {
		userID := env.seedSubscription(t, seed{
			tier:   ptr(tier.TierBasic),
			period: ptr(tier.PeriodMonthly),
			status: status,
			usage:  map[tier.Resource]int64{tier.ResourceApplications: 999},
		})

		for _, resource := range tier.Resources() {
			t.Run(fmt.Sprintf("%s/%s", status, resource), func(t *testing.T) {
				decision, err := env.checker.CheckUsage(context.Background(), userID, resource)
				require.NoError(t, err)
				assert.True(t, decision.Allowed)
				assert.False(t, decision.Enforced)
				assert.True(t, decision.Unlimited)
			})
		}

		feature, err := env.checker.CheckFeature(context.Background(), userID, tier.FeatureAIAvatarInterviews)
		require.NoError(t, err)
		assert.True(t, feature.Allowed)
		assert.False(t, feature.Enforced)
	}
}

func TestNoSubscriptionDenied(t *testing.T) {
	env := newCheckerEnv(t)

	userID := env.node.Generate().String()
	decision, err := env.checker.CheckUsage(context.Background(), userID, tier.ResourceApplications)
	require.NoError(t, err)

	assert.False(t, decision.Allowed)
	assert.True(t, decision.Enforced)
	assert.Equal(t, entitlementdomain.ReasonNoSubscription, decision.Reason)
}

func TestTrackingOnlyRowDenied(t *testing.T) {
	env := newCheckerEnv(t)

	// A tier-less row exists for usage tracking but grants nothing.
	userID := env.seedSubscription(t, seed{
		status: subscriptiondomain.StatusActive,
		usage:  map[tier.Resource]int64{tier.ResourceApplications: 3},
	})

	decision, err := env.checker.CheckUsage(context.Background(), userID, tier.ResourceApplications)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, entitlementdomain.ReasonNoSubscription, decision.Reason)
}

func TestExpiredDenied(t *testing.T) {
	env := newCheckerEnv(t)
	userID := env.seedSubscription(t, seed{
		tier:   ptr(tier.TierPremium),
		period: ptr(tier.PeriodMonthly),
		status: subscriptiondomain.StatusExpired,
	})

	feature, err := env.checker.CheckFeature(context.Background(), userID, tier.FeatureCVTailoring)
	require.NoError(t, err)
	assert.False(t, feature.Allowed)
	assert.Equal(t, entitlementdomain.ReasonSubscriptionExpired, feature.Reason)
}

func TestPastDueWithinGraceAllowed(t *testing.T) {
	env := newCheckerEnv(t)
	userID := env.seedSubscription(t, seed{
		tier:      ptr(tier.TierPro),
		period:    ptr(tier.PeriodMonthly),
		status:    subscriptiondomain.StatusPastDue,
		periodEnd: ptr(env.clock.Now().Add(-24 * time.Hour)),
	})

	decision, err := env.checker.CheckUsage(context.Background(), userID, tier.ResourceApplications)
	require.NoError(t, err)
	assert.True(t, decision.Allowed, "one day past due is inside the grace window")
}

func TestPastDueBeyondGraceDenied(t *testing.T) {
	env := newCheckerEnv(t)
	userID := env.seedSubscription(t, seed{
		tier:      ptr(tier.TierPro),
		period:    ptr(tier.PeriodMonthly),
		status:    subscriptiondomain.StatusPastDue,
		periodEnd: ptr(env.clock.Now().Add(-subscriptiondomain.GracePeriod - time.Hour)),
	})

	decision, err := env.checker.CheckUsage(context.Background(), userID, tier.ResourceApplications)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, entitlementdomain.ReasonGraceExceeded, decision.Reason)
}

func TestCancelledStillEntitled(t *testing.T) {
	env := newCheckerEnv(t)
	userID := env.seedSubscription(t, seed{
		tier:      ptr(tier.TierPro),
		period:    ptr(tier.PeriodMonthly),
		status:    subscriptiondomain.StatusCancelled,
		periodEnd: ptr(env.clock.Now().AddDate(0, 0, 10)),
	})

	feature, err := env.checker.CheckFeature(context.Background(), userID, tier.FeatureContractReview)
	require.NoError(t, err)
	assert.True(t, feature.Allowed, "cancellation does not reduce entitlement before the effective date")

	usage, err := env.checker.CheckUsage(context.Background(), userID, tier.ResourceCVs)
	require.NoError(t, err)
	assert.True(t, usage.Allowed)
}

func TestLimitExceededAtExactLimit(t *testing.T) {
	env := newCheckerEnv(t)
	userID := env.seedSubscription(t, seed{
		tier:   ptr(tier.TierBasic),
		period: ptr(tier.PeriodMonthly),
		status: subscriptiondomain.StatusActive,
		usage:  map[tier.Resource]int64{tier.ResourceApplications: 8},
	})

	decision, err := env.checker.CheckUsage(context.Background(), userID, tier.ResourceApplications)
	require.NoError(t, err)

	assert.False(t, decision.Allowed)
	assert.Equal(t, entitlementdomain.ReasonLimitExceeded, decision.Reason)
	assert.Equal(t, int64(8), decision.Used)
	assert.Equal(t, 8, decision.Limit)
	assert.Equal(t, int64(0), decision.Remaining)
}

func TestUnderLimitAllowed(t *testing.T) {
	env := newCheckerEnv(t)
	userID := env.seedSubscription(t, seed{
		tier:   ptr(tier.TierPro),
		period: ptr(tier.PeriodMonthly),
		status: subscriptiondomain.StatusActive,
		usage:  map[tier.Resource]int64{tier.ResourceInterviews: 12},
	})

	decision, err := env.checker.CheckUsage(context.Background(), userID, tier.ResourceInterviews)
	require.NoError(t, err)

	assert.True(t, decision.Allowed)
	assert.Equal(t, int64(8), decision.Remaining)
	assert.False(t, decision.Unlimited)
}

func TestPremiumUnlimited(t *testing.T) {
	env := newCheckerEnv(t)
	userID := env.seedSubscription(t, seed{
		tier:   ptr(tier.TierPremium),
		period: ptr(tier.PeriodYearly),
		status: subscriptiondomain.StatusActive,
		usage:  map[tier.Resource]int64{tier.ResourceApplications: 100000},
	})

	decision, err := env.checker.CheckUsage(context.Background(), userID, tier.ResourceApplications)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.True(t, decision.Unlimited)
}

func TestZeroLimitLocksResource(t *testing.T) {
	env := newCheckerEnv(t)
	userID := env.seedSubscription(t, seed{
		tier:   ptr(tier.TierBasic),
		period: ptr(tier.PeriodMonthly),
		status: subscriptiondomain.StatusActive,
	})

	decision, err := env.checker.CheckUsage(context.Background(), userID, tier.ResourceAIAvatarInterviews)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, entitlementdomain.ReasonLimitExceeded, decision.Reason)
}

func TestFeatureNotIncluded(t *testing.T) {
	env := newCheckerEnv(t)
	userID := env.seedSubscription(t, seed{
		tier:   ptr(tier.TierBasic),
		period: ptr(tier.PeriodMonthly),
		status: subscriptiondomain.StatusActive,
	})

	decision, err := env.checker.CheckFeature(context.Background(), userID, tier.FeatureAIAvatarInterviews)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, entitlementdomain.ReasonFeatureNotIncluded, decision.Reason)
}

func TestInvalidUser(t *testing.T) {
	env := newCheckerEnv(t)
	_, err := env.checker.CheckUsage(context.Background(), "bogus", tier.ResourceApplications)
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidUser)
}
