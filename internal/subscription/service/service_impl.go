package service

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/upcareer/jobdeck/internal/clock"
	"github.com/upcareer/jobdeck/internal/config"
	obsmetrics "github.com/upcareer/jobdeck/internal/observability/metrics"
	subscriptiondomain "github.com/upcareer/jobdeck/internal/subscription/domain"
	"github.com/upcareer/jobdeck/internal/tier"
	"github.com/upcareer/jobdeck/pkg/db/option"
	"github.com/upcareer/jobdeck/pkg/db/pagination"
	"github.com/upcareer/jobdeck/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const expirationBatchSize = 100

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID       *snowflake.Node
	clock       clock.Clock
	repo        subscriptiondomain.Repository
	eventRepo   repository.Repository[subscriptiondomain.LifecycleEvent]
	enforcement *config.EnforcementHolder
	metrics     *obsmetrics.Metrics
}

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        subscriptiondomain.Repository
	Enforcement *config.EnforcementHolder
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		eventRepo:   repository.ProvideStore[subscriptiondomain.LifecycleEvent](p.DB),
		enforcement: p.Enforcement,
		metrics:     p.Metrics,
	}
}

// Activate implements domain.Service. It creates the row when the user has
// never subscribed and otherwise converts whatever state the row is in:
// payment success always wins.
func (s *Service) Activate(ctx context.Context, req subscriptiondomain.ActivateRequest) (subscriptiondomain.Subscription, error) {
	userID, err := s.parseID(req.UserID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	var out subscriptiondomain.Subscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByUserIDForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		periodStart := now
		periodEnd := addPeriod(periodStart, req.BillingPeriod)

		newTier := req.Tier
		newPeriod := req.BillingPeriod

		created := subscription == nil
		if created {
			subscription = &subscriptiondomain.Subscription{
				ID:        s.genID.Generate(),
				UserID:    userID,
				CreatedAt: now,
			}
		}

		var previousTier *tier.Tier
		if subscription.Tier != nil {
			prev := *subscription.Tier
			previousTier = &prev
		}
		var previousPeriod *tier.BillingPeriod
		if subscription.BillingPeriod != nil {
			prev := *subscription.BillingPeriod
			previousPeriod = &prev
		}

		subscription.Tier = &newTier
		subscription.BillingPeriod = &newPeriod
		subscription.Status = subscriptiondomain.StatusActive
		subscription.CurrentPeriodStart = &periodStart
		subscription.CurrentPeriodEnd = &periodEnd
		subscription.CancelledAt = nil
		subscription.CancellationEffectiveAt = nil
		subscription.ScheduledTierChange = nil
		subscription.ScheduledPeriodChange = nil
		resetUsage(subscription, now)
		if req.GrowTransactionToken != nil {
			subscription.GrowTransactionToken = req.GrowTransactionToken
		}
		if req.GrowRecurringID != nil {
			subscription.GrowRecurringID = req.GrowRecurringID
		}
		if req.MorningCustomerID != nil {
			subscription.MorningCustomerID = req.MorningCustomerID
		}
		subscription.UpdatedAt = now

		if created {
			if err := s.repo.Insert(ctx, tx, subscription); err != nil {
				return err
			}
		} else if err := s.repo.UpdateLifecycle(ctx, tx, subscription); err != nil {
			return err
		}

		if err := s.appendEvent(ctx, tx, subscription.UserID, subscriptiondomain.EventActivated,
			previousTier, subscription.Tier, previousPeriod, subscription.BillingPeriod, nil, nil); err != nil {
			return err
		}

		out = *subscription
		return nil
	})
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	s.recordTransition(ctx, subscriptiondomain.EventActivated)
	return out, nil
}

// Renew implements domain.Service. The counter reset is guarded by
// lastResetAt so a replayed renewal webhook resets exactly once.
func (s *Service) Renew(ctx context.Context, req subscriptiondomain.RenewRequest) (subscriptiondomain.Subscription, error) {
	userID, err := s.parseID(req.UserID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	var out subscriptiondomain.Subscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByUserIDForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if subscription.Status != subscriptiondomain.StatusActive {
			return subscriptiondomain.ErrNotActive
		}
		if subscription.Tier == nil || subscription.BillingPeriod == nil {
			return subscriptiondomain.ErrNoTier
		}
		if subscription.CurrentPeriodEnd == nil {
			return subscriptiondomain.ErrMissingPeriodDates
		}

		now := s.clock.Now()

		previousTier := *subscription.Tier
		previousPeriod := *subscription.BillingPeriod

		if subscription.ScheduledTierChange != nil {
			subscription.Tier = subscription.ScheduledTierChange
			subscription.ScheduledTierChange = nil
		}
		if subscription.ScheduledPeriodChange != nil {
			subscription.BillingPeriod = subscription.ScheduledPeriodChange
			subscription.ScheduledPeriodChange = nil
		}

		periodStart := *subscription.CurrentPeriodEnd
		if req.PeriodStart != nil {
			periodStart = req.PeriodStart.UTC()
		}
		periodEnd := addPeriod(periodStart, *subscription.BillingPeriod)

		subscription.CurrentPeriodStart = &periodStart
		subscription.CurrentPeriodEnd = &periodEnd

		if subscription.LastResetAt.Before(periodStart) {
			resetUsage(subscription, now)
		}
		subscription.UpdatedAt = now

		if err := s.repo.UpdateLifecycle(ctx, tx, subscription); err != nil {
			return err
		}

		if err := s.appendEvent(ctx, tx, subscription.UserID, subscriptiondomain.EventRenewed,
			&previousTier, subscription.Tier, &previousPeriod, subscription.BillingPeriod, nil,
			map[string]any{"period_start": periodStart.Format(time.RFC3339)}); err != nil {
			return err
		}

		out = *subscription
		return nil
	})
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	s.recordTransition(ctx, subscriptiondomain.EventRenewed)
	return out, nil
}

// Upgrade implements domain.Service. Upgrades take effect immediately and
// never touch period dates or usage counters.
func (s *Service) Upgrade(ctx context.Context, req subscriptiondomain.UpgradeRequest) (subscriptiondomain.UpgradeResponse, error) {
	userID, err := s.parseID(req.UserID)
	if err != nil {
		return subscriptiondomain.UpgradeResponse{}, err
	}

	var out subscriptiondomain.UpgradeResponse
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByUserIDForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if subscription.Status != subscriptiondomain.StatusActive {
			return subscriptiondomain.ErrNotActive
		}
		if subscription.Tier == nil || subscription.BillingPeriod == nil {
			return subscriptiondomain.ErrNoTier
		}
		if !tier.IsUpgrade(*subscription.Tier, req.NewTier) {
			return subscriptiondomain.ErrNotAnUpgrade
		}
		if subscription.CurrentPeriodStart == nil || subscription.CurrentPeriodEnd == nil {
			return subscriptiondomain.ErrMissingPeriodDates
		}

		now := s.clock.Now()
		period := *subscription.BillingPeriod
		totalDays := ceilDays(*subscription.CurrentPeriodStart, *subscription.CurrentPeriodEnd)
		remainingDays := ceilDays(now, *subscription.CurrentPeriodEnd)
		delta := tier.Price(req.NewTier, period) - tier.Price(*subscription.Tier, period)
		charge := prorate(delta, totalDays, remainingDays)

		previousTier := *subscription.Tier
		newTier := req.NewTier
		subscription.Tier = &newTier
		subscription.UpdatedAt = now

		if err := s.repo.UpdateLifecycle(ctx, tx, subscription); err != nil {
			return err
		}

		if err := s.appendEvent(ctx, tx, subscription.UserID, subscriptiondomain.EventUpgraded,
			&previousTier, subscription.Tier, &period, &period, &charge,
			map[string]any{"remaining_days": remainingDays, "total_days": totalDays}); err != nil {
			return err
		}

		out = subscriptiondomain.UpgradeResponse{
			Tier:                newTier,
			ProratedChargeCents: charge,
		}
		return nil
	})
	if err != nil {
		return subscriptiondomain.UpgradeResponse{}, err
	}

	s.recordTransition(ctx, subscriptiondomain.EventUpgraded)
	return out, nil
}

// ScheduleDowngrade implements domain.Service. Entitlement is unchanged
// until the next renewal applies the scheduled tier.
func (s *Service) ScheduleDowngrade(ctx context.Context, req subscriptiondomain.ScheduleDowngradeRequest) error {
	userID, err := s.parseID(req.UserID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByUserIDForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if subscription.Status != subscriptiondomain.StatusActive {
			return subscriptiondomain.ErrNotActive
		}
		if subscription.Tier == nil {
			return subscriptiondomain.ErrNoTier
		}
		if !tier.IsDowngrade(*subscription.Tier, req.NewTier) {
			return subscriptiondomain.ErrNotADowngrade
		}

		newTier := req.NewTier
		subscription.ScheduledTierChange = &newTier
		subscription.UpdatedAt = s.clock.Now()

		if err := s.repo.UpdateLifecycle(ctx, tx, subscription); err != nil {
			return err
		}

		return s.appendEvent(ctx, tx, subscription.UserID, subscriptiondomain.EventDowngradeScheduled,
			subscription.Tier, &newTier, nil, nil, nil, nil)
	})
	if err != nil {
		return err
	}

	s.recordTransition(ctx, subscriptiondomain.EventDowngradeScheduled)
	return nil
}

// ScheduleBillingPeriodChange implements domain.Service.
func (s *Service) ScheduleBillingPeriodChange(ctx context.Context, req subscriptiondomain.SchedulePeriodChangeRequest) error {
	userID, err := s.parseID(req.UserID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByUserIDForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if subscription.Status != subscriptiondomain.StatusActive {
			return subscriptiondomain.ErrNotActive
		}
		if subscription.BillingPeriod == nil {
			return subscriptiondomain.ErrNoTier
		}

		newPeriod := req.NewPeriod
		subscription.ScheduledPeriodChange = &newPeriod
		subscription.UpdatedAt = s.clock.Now()

		if err := s.repo.UpdateLifecycle(ctx, tx, subscription); err != nil {
			return err
		}

		return s.appendEvent(ctx, tx, subscription.UserID, subscriptiondomain.EventPeriodChangeScheduled,
			nil, nil, subscription.BillingPeriod, &newPeriod, nil, nil)
	})
	if err != nil {
		return err
	}

	s.recordTransition(ctx, subscriptiondomain.EventPeriodChangeScheduled)
	return nil
}

// Cancel implements domain.Service. Access is retained until the end of the
// paid period; there is no partial refund.
func (s *Service) Cancel(ctx context.Context, rawUserID string) error {
	userID, err := s.parseID(rawUserID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByUserIDForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if subscription.Status != subscriptiondomain.StatusActive {
			return subscriptiondomain.ErrNotActive
		}
		if subscription.CurrentPeriodEnd == nil {
			return subscriptiondomain.ErrMissingPeriodDates
		}

		now := s.clock.Now()
		effective := *subscription.CurrentPeriodEnd
		subscription.Status = subscriptiondomain.StatusCancelled
		subscription.CancelledAt = &now
		subscription.CancellationEffectiveAt = &effective
		subscription.UpdatedAt = now

		if err := s.repo.UpdateLifecycle(ctx, tx, subscription); err != nil {
			return err
		}

		return s.appendEvent(ctx, tx, subscription.UserID, subscriptiondomain.EventCancelled,
			subscription.Tier, subscription.Tier, subscription.BillingPeriod, subscription.BillingPeriod, nil,
			map[string]any{"effective_at": effective.Format(time.RFC3339)})
	})
	if err != nil {
		return err
	}

	s.recordTransition(ctx, subscriptiondomain.EventCancelled)
	return nil
}

// Reactivate implements domain.Service. Only cancelled-but-not-yet-expired
// subscriptions can come back; counters and dates stay as they were.
func (s *Service) Reactivate(ctx context.Context, rawUserID string) error {
	userID, err := s.parseID(rawUserID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByUserIDForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if subscription.Status != subscriptiondomain.StatusCancelled {
			return subscriptiondomain.ErrNotCancelled
		}

		subscription.Status = subscriptiondomain.StatusActive
		subscription.CancelledAt = nil
		subscription.CancellationEffectiveAt = nil
		subscription.UpdatedAt = s.clock.Now()

		if err := s.repo.UpdateLifecycle(ctx, tx, subscription); err != nil {
			return err
		}

		return s.appendEvent(ctx, tx, subscription.UserID, subscriptiondomain.EventReactivated,
			subscription.Tier, subscription.Tier, subscription.BillingPeriod, subscription.BillingPeriod, nil, nil)
	})
	if err != nil {
		return err
	}

	s.recordTransition(ctx, subscriptiondomain.EventReactivated)
	return nil
}

// HandlePaymentFailure implements domain.Service. Status only; the grace
// window runs implicitly from currentPeriodEnd.
func (s *Service) HandlePaymentFailure(ctx context.Context, rawUserID string) error {
	userID, err := s.parseID(rawUserID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByUserIDForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if subscription.Status == subscriptiondomain.StatusPastDue {
			return nil
		}
		if subscription.Status != subscriptiondomain.StatusActive {
			return subscriptiondomain.ErrNotActive
		}

		subscription.Status = subscriptiondomain.StatusPastDue
		subscription.UpdatedAt = s.clock.Now()

		if err := s.repo.UpdateLifecycle(ctx, tx, subscription); err != nil {
			return err
		}

		return s.appendEvent(ctx, tx, subscription.UserID, subscriptiondomain.EventPaymentFailed,
			subscription.Tier, subscription.Tier, subscription.BillingPeriod, subscription.BillingPeriod, nil, nil)
	})
	if err != nil {
		return err
	}

	s.recordTransition(ctx, subscriptiondomain.EventPaymentFailed)
	return nil
}

// ProcessExpirations implements domain.Service. The sweep is idempotent:
// the status flip is a conditional UPDATE, so concurrent sweeps cannot
// double-expire a row or double-write its event.
func (s *Service) ProcessExpirations(ctx context.Context) (int, error) {
	now := s.clock.Now()
	graceCutoff := now.Add(-subscriptiondomain.GracePeriod)
	expired := 0

	for {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}

		candidates, err := s.repo.FindExpirable(ctx, s.db, now, graceCutoff, expirationBatchSize)
		if err != nil {
			return expired, err
		}
		if len(candidates) == 0 {
			return expired, nil
		}

		for _, candidate := range candidates {
			flipped, err := s.repo.MarkExpired(ctx, s.db, candidate.ID, now)
			if err != nil {
				return expired, err
			}
			if !flipped {
				continue
			}

			expired++
			if err := s.appendEvent(ctx, s.db, candidate.UserID, subscriptiondomain.EventExpired,
				candidate.Tier, candidate.Tier, candidate.BillingPeriod, candidate.BillingPeriod, nil,
				map[string]any{"previous_status": string(candidate.Status)}); err != nil {
				return expired, err
			}
			s.recordTransition(ctx, subscriptiondomain.EventExpired)
		}

		if len(candidates) < expirationBatchSize {
			return expired, nil
		}
	}
}

// GetStatus implements domain.Service.
func (s *Service) GetStatus(ctx context.Context, rawUserID string) (subscriptiondomain.StatusResponse, error) {
	userID, err := s.parseID(rawUserID)
	if err != nil {
		return subscriptiondomain.StatusResponse{}, err
	}

	subscription, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return subscriptiondomain.StatusResponse{}, err
	}
	if subscription == nil {
		return subscriptiondomain.StatusResponse{}, subscriptiondomain.ErrSubscriptionNotFound
	}

	usage := make([]subscriptiondomain.ResourceStatus, 0, len(tier.Resources()))
	for _, resource := range tier.Resources() {
		used := subscription.Usage(resource)
		item := subscriptiondomain.ResourceStatus{
			Resource: resource,
			Used:     used,
		}
		if subscription.Tier != nil {
			limit := tier.Limit(*subscription.Tier, resource)
			item.Limit = limit
			item.Unlimited = limit == tier.Unlimited
			if limit > 0 {
				item.Percent = math.Min(100, math.Round(float64(used)/float64(limit)*1000)/10)
			}
		}
		usage = append(usage, item)
	}

	enforcement := s.enforcement.Get()

	return subscriptiondomain.StatusResponse{
		UserID:                  subscription.UserID.String(),
		Tier:                    subscription.Tier,
		BillingPeriod:           subscription.BillingPeriod,
		Status:                  subscription.Status,
		CurrentPeriodStart:      subscription.CurrentPeriodStart,
		CurrentPeriodEnd:        subscription.CurrentPeriodEnd,
		CancellationEffectiveAt: subscription.CancellationEffectiveAt,
		ScheduledTierChange:     subscription.ScheduledTierChange,
		ScheduledPeriodChange:   subscription.ScheduledPeriodChange,
		Usage:                   usage,
		IsCancelled:             subscription.Status == subscriptiondomain.StatusCancelled,
		IsPastDue:               subscription.Status == subscriptiondomain.StatusPastDue,
		CanUpgrade:              subscription.Tier != nil && *subscription.Tier != tier.TierPremium,
		CanDowngrade:            subscription.Tier != nil && *subscription.Tier != tier.TierBasic,
		ServerEnforced:          enforcement.ServerEnabled,
		ClientEnforced:          enforcement.ClientEnabled,
	}, nil
}

// GetByUserID implements domain.Service. Returns nil when the user has no
// row yet.
func (s *Service) GetByUserID(ctx context.Context, rawUserID string) (*subscriptiondomain.Subscription, error) {
	userID, err := s.parseID(rawUserID)
	if err != nil {
		return nil, err
	}
	return s.repo.FindByUserID(ctx, s.db, userID)
}

// ListEvents implements domain.Service.
func (s *Service) ListEvents(ctx context.Context, req subscriptiondomain.ListEventsRequest) (subscriptiondomain.ListEventsResponse, error) {
	userID, err := s.parseID(req.UserID)
	if err != nil {
		return subscriptiondomain.ListEventsResponse{}, err
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	filter := &subscriptiondomain.LifecycleEvent{UserID: userID}
	options := []option.QueryOption{
		option.ApplyPagination(pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  int(pageSize),
		}),
		option.WithSortBy(option.WithQuerySortBy("created_at", "desc", map[string]bool{"created_at": true})),
	}

	items, err := s.eventRepo.Find(ctx, filter, options...)
	if err != nil {
		return subscriptiondomain.ListEventsResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(item *subscriptiondomain.LifecycleEvent) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	events := make([]subscriptiondomain.LifecycleEvent, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		events = append(events, *item)
	}

	resp := subscriptiondomain.ListEventsResponse{Events: events}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) appendEvent(
	ctx context.Context,
	db *gorm.DB,
	userID snowflake.ID,
	eventType subscriptiondomain.EventType,
	previousTier, newTier *tier.Tier,
	previousPeriod, newPeriod *tier.BillingPeriod,
	amountCents *int64,
	metadata map[string]any,
) error {
	event := subscriptiondomain.LifecycleEvent{
		ID:             s.genID.Generate(),
		UserID:         userID,
		EventType:      eventType,
		PreviousTier:   previousTier,
		NewTier:        newTier,
		PreviousPeriod: previousPeriod,
		NewPeriod:      newPeriod,
		AmountCents:    amountCents,
		CreatedAt:      s.clock.Now(),
	}
	if metadata != nil {
		event.Metadata = datatypes.JSONMap(metadata)
	}
	return s.repo.InsertEvent(ctx, db, &event)
}

func (s *Service) recordTransition(ctx context.Context, eventType subscriptiondomain.EventType) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordLifecycleTransition(ctx, string(eventType))
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, subscriptiondomain.ErrInvalidUser
	}
	return id, nil
}

func resetUsage(subscription *subscriptiondomain.Subscription, now time.Time) {
	subscription.UsageApplications = 0
	subscription.UsageCVs = 0
	subscription.UsageInterviews = 0
	subscription.UsageCompensation = 0
	subscription.UsageContracts = 0
	subscription.UsageAIAvatarInterviews = 0
	subscription.LastResetAt = now
}

func addPeriod(start time.Time, period tier.BillingPeriod) time.Time {
	return start.AddDate(0, period.Months(), 0)
}
