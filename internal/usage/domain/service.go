package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/upcareer/jobdeck/internal/tier"
	"gorm.io/gorm"
)

type IncrementRequest struct {
	UserID   string        `json:"user_id"`
	Resource tier.Resource `json:"resource"`
}

type IncrementResponse struct {
	NewCount int64 `json:"new_count"`
}

// Averages is the per-resource mean over all of a user's monthly snapshots,
// half-up rounded to one decimal.
type Averages struct {
	PerResource   map[tier.Resource]float64 `json:"per_resource"`
	MonthsTracked int                       `json:"months_tracked"`
}

// Service records usage. Increment always executes: it is independent of the
// kill switch and of any entitlement outcome, and callers invoke it after the
// gated action.
type Service interface {
	Increment(context.Context, IncrementRequest) (IncrementResponse, error)
	AveragesFor(ctx context.Context, userID string) (Averages, error)
}

type Repository interface {
	IncrementCounter(ctx context.Context, db *gorm.DB, userID snowflake.ID, resource tier.Resource, now time.Time) (int64, bool, error)
	InsertTrackingRow(ctx context.Context, db *gorm.DB, id, userID snowflake.ID, resource tier.Resource, now time.Time) error
	UpsertSnapshot(ctx context.Context, db *gorm.DB, snapshot *Snapshot, resource tier.Resource) error
	FindSnapshots(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]Snapshot, error)
}

var (
	ErrInvalidUser     = errors.New("invalid_user")
	ErrInvalidResource = errors.New("invalid_resource")
)
