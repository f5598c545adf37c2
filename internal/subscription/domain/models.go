// Package domain contains persistence models for subscriptions and the
// lifecycle audit trail.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/upcareer/jobdeck/internal/tier"
	"gorm.io/datatypes"
)

// Status represents lifecycle states for a subscription.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCancelled Status = "CANCELLED"
	StatusPastDue   Status = "PAST_DUE"
	StatusExpired   Status = "EXPIRED"
)

// GracePeriod is how long a past-due subscription keeps access after the
// paid period ends.
const GracePeriod = 3 * 24 * time.Hour

// Subscription is the single billing row per user. Tier is NULL for
// tracking-only users whose usage is metered without any entitlement.
type Subscription struct {
	ID     snowflake.ID `gorm:"primaryKey"`
	UserID snowflake.ID `gorm:"not null;uniqueIndex"`

	Tier          *tier.Tier          `gorm:"type:text"`
	BillingPeriod *tier.BillingPeriod `gorm:"type:text"`
	Status        Status              `gorm:"type:text;not null"`

	CurrentPeriodStart *time.Time `gorm:""`
	CurrentPeriodEnd   *time.Time `gorm:""`

	CancelledAt             *time.Time `gorm:""`
	CancellationEffectiveAt *time.Time `gorm:""`

	ScheduledTierChange   *tier.Tier          `gorm:"type:text"`
	ScheduledPeriodChange *tier.BillingPeriod `gorm:"type:text"`

	UsageApplications       int64 `gorm:"not null;default:0"`
	UsageCVs                int64 `gorm:"column:usage_cvs;not null;default:0"`
	UsageInterviews         int64 `gorm:"not null;default:0"`
	UsageCompensation       int64 `gorm:"not null;default:0"`
	UsageContracts          int64 `gorm:"not null;default:0"`
	UsageAIAvatarInterviews int64 `gorm:"column:usage_ai_avatar_interviews;not null;default:0"`

	LastResetAt time.Time `gorm:"not null"`

	GrowTransactionToken *string `gorm:"type:text"`
	GrowRecurringID      *string `gorm:"type:text"`
	MorningCustomerID    *string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// Usage returns the counter for a resource.
func (s *Subscription) Usage(r tier.Resource) int64 {
	switch r {
	case tier.ResourceApplications:
		return s.UsageApplications
	case tier.ResourceCVs:
		return s.UsageCVs
	case tier.ResourceInterviews:
		return s.UsageInterviews
	case tier.ResourceCompensation:
		return s.UsageCompensation
	case tier.ResourceContracts:
		return s.UsageContracts
	case tier.ResourceAIAvatarInterviews:
		return s.UsageAIAvatarInterviews
	default:
		return 0
	}
}

// UsageColumn maps a resource to its counter column. Used by atomic
// UPDATE ... SET col = col + 1 statements.
func UsageColumn(r tier.Resource) string {
	switch r {
	case tier.ResourceApplications:
		return "usage_applications"
	case tier.ResourceCVs:
		return "usage_cvs"
	case tier.ResourceInterviews:
		return "usage_interviews"
	case tier.ResourceCompensation:
		return "usage_compensation"
	case tier.ResourceContracts:
		return "usage_contracts"
	case tier.ResourceAIAvatarInterviews:
		return "usage_ai_avatar_interviews"
	default:
		return ""
	}
}

// EventType labels one lifecycle transition in the audit trail.
type EventType string

const (
	EventActivated             EventType = "activated"
	EventRenewed               EventType = "renewed"
	EventUpgraded              EventType = "upgraded"
	EventDowngradeScheduled    EventType = "downgrade_scheduled"
	EventPeriodChangeScheduled EventType = "period_change_scheduled"
	EventCancelled             EventType = "cancelled"
	EventReactivated           EventType = "reactivated"
	EventPaymentFailed         EventType = "payment_failed"
	EventExpired               EventType = "expired"
)

// LifecycleEvent is an append-only audit record. Every mutating lifecycle
// operation writes exactly one.
type LifecycleEvent struct {
	ID     snowflake.ID `gorm:"primaryKey"`
	UserID snowflake.ID `gorm:"not null;index"`

	EventType EventType `gorm:"type:text;not null"`

	PreviousTier   *tier.Tier          `gorm:"type:text"`
	NewTier        *tier.Tier          `gorm:"type:text"`
	PreviousPeriod *tier.BillingPeriod `gorm:"type:text"`
	NewPeriod      *tier.BillingPeriod `gorm:"type:text"`

	AmountCents *int64            `gorm:""`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (LifecycleEvent) TableName() string { return "lifecycle_events" }
