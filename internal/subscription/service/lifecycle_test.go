package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upcareer/jobdeck/internal/clock"
	"github.com/upcareer/jobdeck/internal/config"
	subscriptiondomain "github.com/upcareer/jobdeck/internal/subscription/domain"
	"github.com/upcareer/jobdeck/internal/subscription/repository"
	"github.com/upcareer/jobdeck/internal/tier"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	svc   subscriptiondomain.Service
	db    *gorm.DB
	clock *clock.FakeClock
	node  *snowflake.Node
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&subscriptiondomain.Subscription{}, &subscriptiondomain.LifecycleEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	svc := NewService(ServiceParam{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fake,
		Repo:        repository.Provide(),
		Enforcement: config.NewStaticEnforcement(config.DefaultEnforcementConfig()),
	})

	return &testEnv{svc: svc, db: db, clock: fake, node: node}
}

func (e *testEnv) activate(t *testing.T, tr tier.Tier, period tier.BillingPeriod) subscriptiondomain.Subscription {
	t.Helper()
	sub, err := e.svc.Activate(context.Background(), subscriptiondomain.ActivateRequest{
		UserID:        e.userID(),
		Tier:          tr,
		BillingPeriod: period,
	})
	require.NoError(t, err)
	return sub
}

func (e *testEnv) userID() string {
	return "1234567890123456789"
}

func (e *testEnv) reload(t *testing.T) subscriptiondomain.Subscription {
	t.Helper()
	sub, err := e.svc.GetByUserID(context.Background(), e.userID())
	require.NoError(t, err)
	require.NotNil(t, sub)
	return *sub
}

func (e *testEnv) events(t *testing.T) []subscriptiondomain.LifecycleEvent {
	t.Helper()
	var events []subscriptiondomain.LifecycleEvent
	require.NoError(t, e.db.Order("created_at asc, id asc").Find(&events).Error)
	return events
}

func TestActivateCreatesSubscription(t *testing.T) {
	env := newTestEnv(t)

	sub := env.activate(t, tier.TierPro, tier.PeriodMonthly)

	require.NotNil(t, sub.Tier)
	assert.Equal(t, tier.TierPro, *sub.Tier)
	assert.Equal(t, subscriptiondomain.StatusActive, sub.Status)
	require.NotNil(t, sub.CurrentPeriodStart)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.Equal(t, sub.CurrentPeriodStart.AddDate(0, 1, 0), *sub.CurrentPeriodEnd)
	assert.Equal(t, int64(0), sub.UsageApplications)

	events := env.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, subscriptiondomain.EventActivated, events[0].EventType)
}

func TestActivateRevivesExpiredRow(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t, tier.TierBasic, tier.PeriodMonthly)

	require.NoError(t, env.db.Model(&subscriptiondomain.Subscription{}).
		Where("1 = 1").
		Updates(map[string]any{"status": subscriptiondomain.StatusExpired, "usage_applications": 5}).Error)

	sub := env.activate(t, tier.TierPro, tier.PeriodYearly)

	assert.Equal(t, subscriptiondomain.StatusActive, sub.Status)
	assert.Equal(t, tier.TierPro, *sub.Tier)
	assert.Equal(t, tier.PeriodYearly, *sub.BillingPeriod)
	assert.Equal(t, int64(0), sub.UsageApplications, "reactivating a lapsed subscription starts counters fresh")
}

func TestRenewRollsPeriodAndResetsUsage(t *testing.T) {
	env := newTestEnv(t)
	sub := env.activate(t, tier.TierPro, tier.PeriodMonthly)
	firstEnd := *sub.CurrentPeriodEnd

	require.NoError(t, env.db.Model(&subscriptiondomain.Subscription{}).
		Where("id = ?", sub.ID).
		Update("usage_applications", 12).Error)

	env.clock.Set(firstEnd.Add(time.Hour))
	renewed, err := env.svc.Renew(context.Background(), subscriptiondomain.RenewRequest{UserID: env.userID()})
	require.NoError(t, err)

	assert.Equal(t, firstEnd, *renewed.CurrentPeriodStart)
	assert.Equal(t, firstEnd.AddDate(0, 1, 0), *renewed.CurrentPeriodEnd)
	assert.Equal(t, int64(0), renewed.UsageApplications)
}

func TestRenewReplayDoesNotDoubleReset(t *testing.T) {
	env := newTestEnv(t)
	sub := env.activate(t, tier.TierPro, tier.PeriodMonthly)
	firstEnd := *sub.CurrentPeriodEnd

	env.clock.Set(firstEnd.Add(time.Hour))
	_, err := env.svc.Renew(context.Background(), subscriptiondomain.RenewRequest{
		UserID:      env.userID(),
		PeriodStart: &firstEnd,
	})
	require.NoError(t, err)

	// Usage accrued inside the new period must survive a replayed webhook.
	require.NoError(t, env.db.Model(&subscriptiondomain.Subscription{}).
		Where("id = ?", sub.ID).
		Update("usage_applications", 4).Error)

	replayed, err := env.svc.Renew(context.Background(), subscriptiondomain.RenewRequest{
		UserID:      env.userID(),
		PeriodStart: &firstEnd,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), replayed.UsageApplications, "replay must not reset counters a second time")
}

func TestRenewAppliesScheduledChanges(t *testing.T) {
	env := newTestEnv(t)
	sub := env.activate(t, tier.TierPremium, tier.PeriodMonthly)

	require.NoError(t, env.svc.ScheduleDowngrade(context.Background(), subscriptiondomain.ScheduleDowngradeRequest{
		UserID:  env.userID(),
		NewTier: tier.TierPro,
	}))
	require.NoError(t, env.svc.ScheduleBillingPeriodChange(context.Background(), subscriptiondomain.SchedulePeriodChangeRequest{
		UserID:    env.userID(),
		NewPeriod: tier.PeriodYearly,
	}))

	// Entitlement tier does not change before the renewal.
	mid := env.reload(t)
	assert.Equal(t, tier.TierPremium, *mid.Tier)
	require.NotNil(t, mid.ScheduledTierChange)
	assert.Equal(t, tier.TierPro, *mid.ScheduledTierChange)

	env.clock.Set(sub.CurrentPeriodEnd.Add(time.Minute))
	renewed, err := env.svc.Renew(context.Background(), subscriptiondomain.RenewRequest{UserID: env.userID()})
	require.NoError(t, err)

	assert.Equal(t, tier.TierPro, *renewed.Tier)
	assert.Equal(t, tier.PeriodYearly, *renewed.BillingPeriod)
	assert.Nil(t, renewed.ScheduledTierChange)
	assert.Nil(t, renewed.ScheduledPeriodChange)
	assert.Equal(t, renewed.CurrentPeriodStart.AddDate(0, 12, 0), *renewed.CurrentPeriodEnd,
		"new period length follows the newly applied billing period")
}

func TestUpgradeChargesProratedDelta(t *testing.T) {
	env := newTestEnv(t)

	// 30-day month: 2024-04-01 .. 2024-05-01, upgrade 15 days before the end.
	env.clock.Set(time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC))
	sub := env.activate(t, tier.TierPro, tier.PeriodMonthly)
	env.clock.Set(sub.CurrentPeriodEnd.AddDate(0, 0, -15))

	resp, err := env.svc.Upgrade(context.Background(), subscriptiondomain.UpgradeRequest{
		UserID:  env.userID(),
		NewTier: tier.TierPremium,
	})
	require.NoError(t, err)

	// (2900 - 1700) * 15/30 = 600 cents.
	assert.Equal(t, int64(600), resp.ProratedChargeCents)
	assert.Equal(t, tier.TierPremium, resp.Tier)
}

func TestUpgradeKeepsDatesAndCounters(t *testing.T) {
	env := newTestEnv(t)
	sub := env.activate(t, tier.TierBasic, tier.PeriodMonthly)

	require.NoError(t, env.db.Model(&subscriptiondomain.Subscription{}).
		Where("id = ?", sub.ID).
		Update("usage_cvs", 2).Error)

	env.clock.Advance(10 * 24 * time.Hour)
	_, err := env.svc.Upgrade(context.Background(), subscriptiondomain.UpgradeRequest{
		UserID:  env.userID(),
		NewTier: tier.TierPro,
	})
	require.NoError(t, err)

	after := env.reload(t)
	assert.Equal(t, tier.TierPro, *after.Tier)
	assert.Equal(t, *sub.CurrentPeriodStart, *after.CurrentPeriodStart)
	assert.Equal(t, *sub.CurrentPeriodEnd, *after.CurrentPeriodEnd)
	assert.Equal(t, int64(2), after.UsageCVs)
	assert.Equal(t, sub.LastResetAt, after.LastResetAt)
}

func TestUpgradeAtPeriodEndIsFree(t *testing.T) {
	env := newTestEnv(t)
	sub := env.activate(t, tier.TierPro, tier.PeriodMonthly)

	env.clock.Set(*sub.CurrentPeriodEnd)
	resp, err := env.svc.Upgrade(context.Background(), subscriptiondomain.UpgradeRequest{
		UserID:  env.userID(),
		NewTier: tier.TierPremium,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), resp.ProratedChargeCents)
}

func TestUpgradeRejectsDowngrade(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t, tier.TierPremium, tier.PeriodMonthly)

	_, err := env.svc.Upgrade(context.Background(), subscriptiondomain.UpgradeRequest{
		UserID:  env.userID(),
		NewTier: tier.TierPro,
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrNotAnUpgrade)
}

func TestScheduleDowngradeRejectsUpgrade(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t, tier.TierBasic, tier.PeriodMonthly)

	err := env.svc.ScheduleDowngrade(context.Background(), subscriptiondomain.ScheduleDowngradeRequest{
		UserID:  env.userID(),
		NewTier: tier.TierPro,
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrNotADowngrade)
}

func TestCancelKeepsAccessUntilPeriodEnd(t *testing.T) {
	env := newTestEnv(t)
	sub := env.activate(t, tier.TierPro, tier.PeriodMonthly)

	require.NoError(t, env.svc.Cancel(context.Background(), env.userID()))

	after := env.reload(t)
	assert.Equal(t, subscriptiondomain.StatusCancelled, after.Status)
	require.NotNil(t, after.CancellationEffectiveAt)
	assert.Equal(t, *sub.CurrentPeriodEnd, *after.CancellationEffectiveAt)
	assert.Equal(t, tier.TierPro, *after.Tier, "tier is retained for the remainder of the paid period")
}

func TestCancelThenReactivate(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t, tier.TierPro, tier.PeriodMonthly)

	require.NoError(t, env.svc.Cancel(context.Background(), env.userID()))
	require.NoError(t, env.svc.Reactivate(context.Background(), env.userID()))

	after := env.reload(t)
	assert.Equal(t, subscriptiondomain.StatusActive, after.Status)
	assert.Nil(t, after.CancelledAt)
	assert.Nil(t, after.CancellationEffectiveAt)
}

func TestReactivateRequiresCancelled(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t, tier.TierPro, tier.PeriodMonthly)

	err := env.svc.Reactivate(context.Background(), env.userID())
	assert.ErrorIs(t, err, subscriptiondomain.ErrNotCancelled)
}

func TestHandlePaymentFailureIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t, tier.TierPro, tier.PeriodMonthly)

	require.NoError(t, env.svc.HandlePaymentFailure(context.Background(), env.userID()))
	require.NoError(t, env.svc.HandlePaymentFailure(context.Background(), env.userID()))

	after := env.reload(t)
	assert.Equal(t, subscriptiondomain.StatusPastDue, after.Status)

	var count int64
	require.NoError(t, env.db.Model(&subscriptiondomain.LifecycleEvent{}).
		Where("event_type = ?", subscriptiondomain.EventPaymentFailed).
		Count(&count).Error)
	assert.Equal(t, int64(1), count, "repeated failure notices write one event")
}

func TestProcessExpirationsSweepsCancelled(t *testing.T) {
	env := newTestEnv(t)
	sub := env.activate(t, tier.TierPro, tier.PeriodMonthly)
	require.NoError(t, env.svc.Cancel(context.Background(), env.userID()))

	// Before the effective date nothing happens.
	expired, err := env.svc.ProcessExpirations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, expired)

	env.clock.Set(sub.CurrentPeriodEnd.Add(time.Minute))
	expired, err = env.svc.ProcessExpirations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	after := env.reload(t)
	assert.Equal(t, subscriptiondomain.StatusExpired, after.Status)

	// The sweep is idempotent.
	expired, err = env.svc.ProcessExpirations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, expired)
}

func TestProcessExpirationsRespectsGracePeriod(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t, tier.TierPro, tier.PeriodMonthly)
	require.NoError(t, env.svc.HandlePaymentFailure(context.Background(), env.userID()))

	env.clock.Advance(subscriptiondomain.GracePeriod - time.Hour)
	expired, err := env.svc.ProcessExpirations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, expired, "still inside the grace window")

	env.clock.Advance(2 * time.Hour)
	expired, err = env.svc.ProcessExpirations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
	assert.Equal(t, subscriptiondomain.StatusExpired, env.reload(t).Status)
}

func TestGetStatusProjection(t *testing.T) {
	env := newTestEnv(t)
	sub := env.activate(t, tier.TierPro, tier.PeriodMonthly)

	require.NoError(t, env.db.Model(&subscriptiondomain.Subscription{}).
		Where("id = ?", sub.ID).
		Update("usage_applications", 15).Error)

	status, err := env.svc.GetStatus(context.Background(), env.userID())
	require.NoError(t, err)

	assert.Equal(t, tier.TierPro, *status.Tier)
	assert.True(t, status.CanUpgrade)
	assert.True(t, status.CanDowngrade)
	assert.True(t, status.ServerEnforced)
	require.Len(t, status.Usage, len(tier.Resources()))

	apps := status.Usage[0]
	assert.Equal(t, tier.ResourceApplications, apps.Resource)
	assert.Equal(t, int64(15), apps.Used)
	assert.Equal(t, 30, apps.Limit)
	assert.Equal(t, 50.0, apps.Percent)
}

func TestGetStatusNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.GetStatus(context.Background(), env.userID())
	assert.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)
}

func TestListEventsPaginates(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t, tier.TierBasic, tier.PeriodMonthly)

	for i := 0; i < 3; i++ {
		env.clock.Advance(time.Second)
		_, err := env.svc.Upgrade(context.Background(), subscriptiondomain.UpgradeRequest{
			UserID:  env.userID(),
			NewTier: tier.TierPro,
		})
		if i == 0 {
			require.NoError(t, err)
		} else {
			require.ErrorIs(t, err, subscriptiondomain.ErrNotAnUpgrade)
		}
	}
	require.NoError(t, env.svc.Cancel(context.Background(), env.userID()))

	resp, err := env.svc.ListEvents(context.Background(), subscriptiondomain.ListEventsRequest{
		UserID:   env.userID(),
		PageSize: 2,
	})
	require.NoError(t, err)
	assert.Len(t, resp.Events, 2)
	assert.True(t, resp.HasMore)
	assert.NotEmpty(t, resp.NextPageToken)

	rest, err := env.svc.ListEvents(context.Background(), subscriptiondomain.ListEventsRequest{
		UserID:    env.userID(),
		PageToken: resp.NextPageToken,
		PageSize:  2,
	})
	require.NoError(t, err)
	assert.Len(t, rest.Events, 1)
	assert.False(t, rest.HasMore)
}

func TestMutationsRequireExistingSubscription(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Renew(ctx, subscriptiondomain.RenewRequest{UserID: env.userID()})
	assert.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)

	_, err = env.svc.Upgrade(ctx, subscriptiondomain.UpgradeRequest{UserID: env.userID(), NewTier: tier.TierPro})
	assert.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)

	assert.ErrorIs(t, env.svc.Cancel(ctx, env.userID()), subscriptiondomain.ErrSubscriptionNotFound)
}

func TestInvalidUserID(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.GetStatus(context.Background(), "not-a-number")
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidUser)
}
