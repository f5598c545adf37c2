package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Subscription, error)
	FindByUserIDForUpdate(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Subscription, error)
	UpdateLifecycle(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	InsertEvent(ctx context.Context, db *gorm.DB, event *LifecycleEvent) error
	FindExpirable(ctx context.Context, db *gorm.DB, now time.Time, graceCutoff time.Time, limit int) ([]Subscription, error)
	MarkExpired(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
}
