package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/upcareer/jobdeck/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

const subscriptionColumns = `id, user_id, tier, billing_period, status,
	 current_period_start, current_period_end, cancelled_at, cancellation_effective_at,
	 scheduled_tier_change, scheduled_period_change,
	 usage_applications, usage_cvs, usage_interviews, usage_compensation,
	 usage_contracts, usage_ai_avatar_interviews, last_reset_at,
	 grow_transaction_token, grow_recurring_id, morning_customer_id,
	 created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (`+subscriptionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.UserID,
		subscription.Tier,
		subscription.BillingPeriod,
		subscription.Status,
		subscription.CurrentPeriodStart,
		subscription.CurrentPeriodEnd,
		subscription.CancelledAt,
		subscription.CancellationEffectiveAt,
		subscription.ScheduledTierChange,
		subscription.ScheduledPeriodChange,
		subscription.UsageApplications,
		subscription.UsageCVs,
		subscription.UsageInterviews,
		subscription.UsageCompensation,
		subscription.UsageContracts,
		subscription.UsageAIAvatarInterviews,
		subscription.LastResetAt,
		subscription.GrowTransactionToken,
		subscription.GrowRecurringID,
		subscription.MorningCustomerID,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.findByUserID(ctx, db, userID, false)
}

func (r *repo) FindByUserIDForUpdate(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.findByUserID(ctx, db, userID, true)
}

func (r *repo) findByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID, forUpdate bool) (*subscriptiondomain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = ?`
	if forUpdate && supportsRowLocks(db) {
		query += ` FOR UPDATE`
	}

	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(query, userID).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) UpdateLifecycle(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET tier = ?, billing_period = ?, status = ?,
		     current_period_start = ?, current_period_end = ?,
		     cancelled_at = ?, cancellation_effective_at = ?,
		     scheduled_tier_change = ?, scheduled_period_change = ?,
		     usage_applications = ?, usage_cvs = ?, usage_interviews = ?,
		     usage_compensation = ?, usage_contracts = ?, usage_ai_avatar_interviews = ?,
		     last_reset_at = ?,
		     grow_transaction_token = ?, grow_recurring_id = ?, morning_customer_id = ?,
		     updated_at = ?
		 WHERE id = ?`,
		subscription.Tier,
		subscription.BillingPeriod,
		subscription.Status,
		subscription.CurrentPeriodStart,
		subscription.CurrentPeriodEnd,
		subscription.CancelledAt,
		subscription.CancellationEffectiveAt,
		subscription.ScheduledTierChange,
		subscription.ScheduledPeriodChange,
		subscription.UsageApplications,
		subscription.UsageCVs,
		subscription.UsageInterviews,
		subscription.UsageCompensation,
		subscription.UsageContracts,
		subscription.UsageAIAvatarInterviews,
		subscription.LastResetAt,
		subscription.GrowTransactionToken,
		subscription.GrowRecurringID,
		subscription.MorningCustomerID,
		subscription.UpdatedAt,
		subscription.ID,
	).Error
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *subscriptiondomain.LifecycleEvent) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO lifecycle_events (
			id, user_id, event_type, previous_tier, new_tier,
			previous_period, new_period, amount_cents, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.UserID,
		event.EventType,
		event.PreviousTier,
		event.NewTier,
		event.PreviousPeriod,
		event.NewPeriod,
		event.AmountCents,
		event.Metadata,
		event.CreatedAt,
	).Error
}

func (r *repo) FindExpirable(ctx context.Context, db *gorm.DB, now time.Time, graceCutoff time.Time, limit int) ([]subscriptiondomain.Subscription, error) {
	var subscriptions []subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE (status = ? AND cancellation_effective_at IS NOT NULL AND cancellation_effective_at <= ?)
		    OR (status = ? AND updated_at < ?)
		 ORDER BY updated_at ASC
		 LIMIT ?`,
		subscriptiondomain.StatusCancelled,
		now,
		subscriptiondomain.StatusPastDue,
		graceCutoff,
		limit,
	).Scan(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (r *repo) MarkExpired(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		subscriptiondomain.StatusExpired,
		now,
		id,
		subscriptiondomain.StatusCancelled,
		subscriptiondomain.StatusPastDue,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func supportsRowLocks(db *gorm.DB) bool {
	if db == nil || db.Dialector == nil {
		return false
	}
	return !strings.EqualFold(db.Dialector.Name(), "sqlite")
}
