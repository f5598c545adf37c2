package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/upcareer/jobdeck/internal/subscription/domain"
	"github.com/upcareer/jobdeck/internal/tier"
	usagedomain "github.com/upcareer/jobdeck/internal/usage/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() usagedomain.Repository {
	return repo{}
}

// IncrementCounter bumps the live counter in place. Returns the new count and
// false when the user has no row. Column names come from the resource enum,
// never from request input.
func (r repo) IncrementCounter(ctx context.Context, db *gorm.DB, userID snowflake.ID, resource tier.Resource, now time.Time) (int64, bool, error) {
	column := subscriptiondomain.UsageColumn(resource)
	if column == "" {
		return 0, false, usagedomain.ErrInvalidResource
	}

	result := db.WithContext(ctx).Exec(
		fmt.Sprintf(`UPDATE subscriptions SET %s = %s + 1, updated_at = ? WHERE user_id = ?`, column, column),
		now, userID,
	)
	if result.Error != nil {
		return 0, false, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, false, nil
	}

	var count int64
	err := db.WithContext(ctx).Raw(
		fmt.Sprintf(`SELECT %s FROM subscriptions WHERE user_id = ?`, column),
		userID,
	).Scan(&count).Error
	if err != nil {
		return 0, false, err
	}
	return count, true, nil
}

// InsertTrackingRow creates the tier-less row a user gets before their first
// subscription, with the counter already at 1.
func (r repo) InsertTrackingRow(ctx context.Context, db *gorm.DB, id, userID snowflake.ID, resource tier.Resource, now time.Time) error {
	column := subscriptiondomain.UsageColumn(resource)
	if column == "" {
		return usagedomain.ErrInvalidResource
	}

	return db.WithContext(ctx).Exec(
		fmt.Sprintf(`
			INSERT INTO subscriptions (id, user_id, status, %s, last_reset_at, created_at, updated_at)
			VALUES (?, ?, ?, 1, ?, ?, ?)
		`, column),
		id, userID, subscriptiondomain.StatusActive, now, now, now,
	).Error
}

const snapshotColumns = `
	id, user_id, month, tier,
	applications, cvs, interviews, compensation, contracts, ai_avatar_interviews,
	created_at, updated_at
`

// UpsertSnapshot inserts the month's row or bumps its counter when the row
// already exists. The tier always follows the latest increment.
func (r repo) UpsertSnapshot(ctx context.Context, db *gorm.DB, snapshot *usagedomain.Snapshot, resource tier.Resource) error {
	column := usagedomain.SnapshotColumn(resource)
	if column == "" {
		return usagedomain.ErrInvalidResource
	}

	return db.WithContext(ctx).Exec(
		fmt.Sprintf(`
			INSERT INTO usage_snapshots (`+snapshotColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, month) DO UPDATE SET
				%s = usage_snapshots.%s + 1,
				tier = excluded.tier,
				updated_at = excluded.updated_at
		`, column, column),
		snapshot.ID, snapshot.UserID, snapshot.Month, snapshot.Tier,
		snapshot.Applications, snapshot.CVs, snapshot.Interviews,
		snapshot.Compensation, snapshot.Contracts, snapshot.AIAvatarInterviews,
		snapshot.CreatedAt, snapshot.UpdatedAt,
	).Error
}

func (r repo) FindSnapshots(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]usagedomain.Snapshot, error) {
	var snapshots []usagedomain.Snapshot
	err := db.WithContext(ctx).Raw(
		`SELECT `+snapshotColumns+` FROM usage_snapshots WHERE user_id = ? ORDER BY month ASC`,
		userID,
	).Scan(&snapshots).Error
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}
