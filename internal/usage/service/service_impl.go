package service

import (
	"context"
	"math"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/upcareer/jobdeck/internal/clock"
	obsmetrics "github.com/upcareer/jobdeck/internal/observability/metrics"
	subscriptiondomain "github.com/upcareer/jobdeck/internal/subscription/domain"
	"github.com/upcareer/jobdeck/internal/tier"
	usagedomain "github.com/upcareer/jobdeck/internal/usage/domain"
	pkgdb "github.com/upcareer/jobdeck/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID            *snowflake.Node
	clock            clock.Clock
	repo             usagedomain.Repository
	subscriptionRepo subscriptiondomain.Repository
	metrics          *obsmetrics.Metrics
}

type ServiceParam struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	GenID            *snowflake.Node
	Clock            clock.Clock
	Repo             usagedomain.Repository
	SubscriptionRepo subscriptiondomain.Repository
	Metrics          *obsmetrics.Metrics `optional:"true"`
}

func NewService(p ServiceParam) usagedomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("usage.service"),

		genID:            p.GenID,
		clock:            p.Clock,
		repo:             p.Repo,
		subscriptionRepo: p.SubscriptionRepo,
		metrics:          p.Metrics,
	}
}

// Increment implements domain.Service. The primary counter write must
// succeed; the monthly snapshot is a best-effort second write that never
// fails the call.
func (s *Service) Increment(ctx context.Context, req usagedomain.IncrementRequest) (usagedomain.IncrementResponse, error) {
	userID, err := s.parseID(req.UserID)
	if err != nil {
		return usagedomain.IncrementResponse{}, err
	}
	if subscriptiondomain.UsageColumn(req.Resource) == "" {
		return usagedomain.IncrementResponse{}, usagedomain.ErrInvalidResource
	}

	now := s.clock.Now()
	newCount, found, err := s.repo.IncrementCounter(ctx, s.db, userID, req.Resource, now)
	if err != nil {
		return usagedomain.IncrementResponse{}, err
	}
	if !found {
		err = s.repo.InsertTrackingRow(ctx, s.db, s.genID.Generate(), userID, req.Resource, now)
		switch {
		case err == nil:
			newCount = 1
		case pkgdb.IsDuplicateKeyErr(err):
			// Lost the race with a concurrent first increment; the row
			// exists now, so the update applies.
			newCount, _, err = s.repo.IncrementCounter(ctx, s.db, userID, req.Resource, now)
			if err != nil {
				return usagedomain.IncrementResponse{}, err
			}
		default:
			return usagedomain.IncrementResponse{}, err
		}
	}

	s.upsertSnapshot(ctx, userID, req.Resource)

	if s.metrics != nil {
		s.metrics.RecordUsageIncrement(ctx, string(req.Resource))
	}
	return usagedomain.IncrementResponse{NewCount: newCount}, nil
}

// AveragesFor implements domain.Service.
func (s *Service) AveragesFor(ctx context.Context, rawUserID string) (usagedomain.Averages, error) {
	userID, err := s.parseID(rawUserID)
	if err != nil {
		return usagedomain.Averages{}, err
	}

	snapshots, err := s.repo.FindSnapshots(ctx, s.db, userID)
	if err != nil {
		return usagedomain.Averages{}, err
	}

	averages := usagedomain.Averages{
		PerResource:   make(map[tier.Resource]float64, len(tier.Resources())),
		MonthsTracked: len(snapshots),
	}
	for _, resource := range tier.Resources() {
		averages.PerResource[resource] = 0
	}
	if len(snapshots) == 0 {
		return averages, nil
	}

	for _, resource := range tier.Resources() {
		var total int64
		for i := range snapshots {
			total += snapshots[i].Count(resource)
		}
		mean := float64(total) / float64(len(snapshots))
		averages.PerResource[resource] = math.Floor(mean*10+0.5) / 10
	}
	return averages, nil
}

func (s *Service) upsertSnapshot(ctx context.Context, userID snowflake.ID, resource tier.Resource) {
	now := s.clock.Now()
	snapshot := usagedomain.Snapshot{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Month:     usagedomain.MonthOf(now),
		CreatedAt: now,
		UpdatedAt: now,
	}

	subscription, err := s.subscriptionRepo.FindByUserID(ctx, s.db, userID)
	if err == nil && subscription != nil {
		snapshot.Tier = subscription.Tier
	}

	switch resource {
	case tier.ResourceApplications:
		snapshot.Applications = 1
	case tier.ResourceCVs:
		snapshot.CVs = 1
	case tier.ResourceInterviews:
		snapshot.Interviews = 1
	case tier.ResourceCompensation:
		snapshot.Compensation = 1
	case tier.ResourceContracts:
		snapshot.Contracts = 1
	case tier.ResourceAIAvatarInterviews:
		snapshot.AIAvatarInterviews = 1
	}

	if err := s.repo.UpsertSnapshot(ctx, s.db, &snapshot, resource); err != nil {
		s.log.Error("snapshot upsert failed",
			zap.String("user_id", userID.String()),
			zap.String("resource", string(resource)),
			zap.Error(err),
		)
		if s.metrics != nil {
			s.metrics.RecordSnapshotFailure(ctx, string(resource))
		}
	}
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, usagedomain.ErrInvalidUser
	}
	return id, nil
}
