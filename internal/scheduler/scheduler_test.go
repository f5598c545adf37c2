package scheduler

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
	subscriptionrepo "github.com/upcareer/jobdeck/internal/subscription/repository"
	subscriptionservice "github.com/upcareer/jobdeck/internal/subscription/service"
	"github.com/upcareer/jobdeck/internal/tier"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newSchedulerEnv(t *testing.T) (*Scheduler, subscriptiondomain.Service, *clock.FakeClock, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&subscriptiondomain.Subscription{}, &subscriptiondomain.LifecycleEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(5)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC))

	svc := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fake,
		Repo:        subscriptionrepo.Provide(),
		Enforcement: config.NewStaticEnforcement(config.DefaultEnforcementConfig()),
	})

	sched, err := New(Params{
		Log:             zap.NewNop(),
		SubscriptionSvc: svc,
		Clock:           fake,
	})
	require.NoError(t, err)

	return sched, svc, fake, db
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, time.Hour, cfg.RunInterval)
	assert.Equal(t, 5*time.Minute, cfg.JobTimeout)

	custom := Config{RunInterval: time.Minute}.withDefaults()
	assert.Equal(t, time.Minute, custom.RunInterval)
}

func TestRunOnceSweepsExpirations(t *testing.T) {
	sched, svc, fake, db := newSchedulerEnv(t)
	ctx := context.Background()

	node, err := snowflake.NewNode(6)
	require.NoError(t, err)
	userID := node.Generate().String()

	sub, err := svc.Activate(ctx, subscriptiondomain.ActivateRequest{
		UserID:        userID,
		Tier:          tier.TierPro,
		BillingPeriod: tier.PeriodMonthly,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, userID))

	require.NoError(t, sched.RunOnce(ctx))
	reloaded, err := svc.GetByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusCancelled, reloaded.Status, "sweep before the effective date is a no-op")

	fake.Set(sub.CurrentPeriodEnd.Add(time.Minute))
	require.NoError(t, sched.RunOnce(ctx))

	reloaded, err = svc.GetByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusExpired, reloaded.Status)

	// Second sweep finds nothing and writes no extra events.
	require.NoError(t, sched.RunOnce(ctx))
	var events int64
	require.NoError(t, db.Model(&subscriptiondomain.LifecycleEvent{}).
		Where("event_type = ?", subscriptiondomain.EventExpired).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestRunForeverStopsOnCancel(t *testing.T) {
	sched, _, _, _ := newSchedulerEnv(t)
	sched.cfg = Config{RunInterval: time.Millisecond, JobTimeout: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.RunForever(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunForever did not stop after cancel")
	}
}
