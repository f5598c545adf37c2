package domain

import (
	"context"

	"github.com/upcareer/jobdeck/internal/tier"
	usagedomain "github.com/upcareer/jobdeck/internal/usage/domain"
)

// ResourceFit says whether one tier accommodates one resource's average.
type ResourceFit struct {
	Resource tier.Resource `json:"resource"`
	Average  float64       `json:"average"`
	Limit    int           `json:"limit"`
	Fits     bool          `json:"fits"`
}

// TierComparison is one row of the tier comparison table.
type TierComparison struct {
	Tier      tier.Tier     `json:"tier"`
	Qualifies bool          `json:"qualifies"`
	Resources []ResourceFit `json:"resources"`
}

// Savings compares the recommended tier's billing periods against paying
// month by month.
type Savings struct {
	MonthlyYearTotalCents   int64 `json:"monthly_year_total_cents"`
	QuarterlyYearTotalCents int64 `json:"quarterly_year_total_cents"`
	YearlyTotalCents        int64 `json:"yearly_total_cents"`
	QuarterlySavingsCents   int64 `json:"quarterly_savings_cents"`
	YearlySavingsCents      int64 `json:"yearly_savings_cents"`
}

type Recommendation struct {
	Tier          tier.Tier            `json:"tier"`
	BillingPeriod tier.BillingPeriod   `json:"billing_period"`
	Comparison    []TierComparison     `json:"comparison"`
	Savings       Savings              `json:"savings"`
	Reason        string               `json:"reason"`
	Averages      usagedomain.Averages `json:"averages"`
}

type Service interface {
	Recommend(ctx context.Context, userID string) (Recommendation, error)
}
