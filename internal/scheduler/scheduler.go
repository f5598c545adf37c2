package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/upcareer/jobdeck/internal/clock"
	obsmetrics "github.com/upcareer/jobdeck/internal/observability/metrics"
	subscriptiondomain "github.com/upcareer/jobdeck/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

type Params struct {
	fx.In

	Log             *zap.Logger
	SubscriptionSvc subscriptiondomain.Service
	Clock           clock.Clock
	Metrics         *obsmetrics.Metrics `optional:"true"`
	Config          Config              `optional:"true"`
}

type Scheduler struct {
	log             *zap.Logger
	cfg             Config
	clock           clock.Clock
	subscriptionSvc subscriptiondomain.Service
	metrics         *obsmetrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.SubscriptionSvc == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:             p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:             p.Config.withDefaults(),
		clock:           p.Clock,
		subscriptionSvc: p.SubscriptionSvc,
		metrics:         p.Metrics,
	}, nil
}

// RunOnce executes every scheduled job a single time.
func (s *Scheduler) RunOnce(parent context.Context) error {
	return s.runJob(parent, "process_expirations", s.cfg.JobTimeout, s.processExpirationsJob)
}

// RunForever ticks until the context is cancelled. The first run happens
// immediately, not an interval later.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	log := s.log.With(zap.String("job", name))
	log.Debug("job started")

	err := fn(ctx)
	if err != nil {
		log.Error("job failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return err
	}
	log.Debug("job finished", zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (s *Scheduler) processExpirationsJob(ctx context.Context) error {
	start := time.Now()
	expired, err := s.subscriptionSvc.ProcessExpirations(ctx)
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordSweep(ctx, int64(expired), time.Since(start))
	}
	if expired > 0 {
		s.log.Info("expiration sweep finished", zap.Int("expired", expired))
	}
	return nil
}
