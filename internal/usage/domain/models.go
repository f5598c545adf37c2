package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/upcareer/jobdeck/internal/tier"
)

// Snapshot is one user-month of usage history. The live counters on the
// subscription row are reset every period; snapshots accumulate forever and
// feed the tier recommendation.
type Snapshot struct {
	ID     snowflake.ID `gorm:"primaryKey"`
	UserID snowflake.ID `gorm:"not null;uniqueIndex:idx_snapshot_user_month"`

	// Month is the first instant of the calendar month, UTC.
	Month time.Time  `gorm:"not null;uniqueIndex:idx_snapshot_user_month"`
	Tier  *tier.Tier `gorm:"type:text"`

	Applications       int64 `gorm:"not null;default:0"`
	CVs                int64 `gorm:"column:cvs;not null;default:0"`
	Interviews         int64 `gorm:"not null;default:0"`
	Compensation       int64 `gorm:"not null;default:0"`
	Contracts          int64 `gorm:"not null;default:0"`
	AIAvatarInterviews int64 `gorm:"column:ai_avatar_interviews;not null;default:0"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Snapshot) TableName() string { return "usage_snapshots" }

// Count returns the snapshot counter for a resource.
func (s *Snapshot) Count(r tier.Resource) int64 {
	switch r {
	case tier.ResourceApplications:
		return s.Applications
	case tier.ResourceCVs:
		return s.CVs
	case tier.ResourceInterviews:
		return s.Interviews
	case tier.ResourceCompensation:
		return s.Compensation
	case tier.ResourceContracts:
		return s.Contracts
	case tier.ResourceAIAvatarInterviews:
		return s.AIAvatarInterviews
	}
	return 0
}

// SnapshotColumn maps a resource to its snapshot counter column.
func SnapshotColumn(r tier.Resource) string {
	switch r {
	case tier.ResourceApplications:
		return "applications"
	case tier.ResourceCVs:
		return "cvs"
	case tier.ResourceInterviews:
		return "interviews"
	case tier.ResourceCompensation:
		return "compensation"
	case tier.ResourceContracts:
		return "contracts"
	case tier.ResourceAIAvatarInterviews:
		return "ai_avatar_interviews"
	}
	return ""
}

// MonthOf truncates t to the first instant of its calendar month, UTC.
func MonthOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
