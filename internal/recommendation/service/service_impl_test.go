package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/upcareer/jobdeck/internal/tier"
	usagedomain "github.com/upcareer/jobdeck/internal/usage/domain"
)

func averagesOf(months int, values map[tier.Resource]float64) usagedomain.Averages {
	averages := usagedomain.Averages{
		PerResource:   make(map[tier.Resource]float64),
		MonthsTracked: months,
	}
	for _, resource := range tier.Resources() {
		averages.PerResource[resource] = values[resource]
	}
	return averages
}

func TestRecommendZeroUsage(t *testing.T) {
	rec := recommendFrom(averagesOf(0, nil))

	assert.Equal(t, tier.TierBasic, rec.Tier)
	assert.Equal(t, tier.PeriodYearly, rec.BillingPeriod)
	assert.Contains(t, rec.Reason, "starting point")
}

func TestRecommendLowUsageFitsBasic(t *testing.T) {
	rec := recommendFrom(averagesOf(3, map[tier.Resource]float64{
		tier.ResourceApplications: 5,
		tier.ResourceCVs:          2,
	}))
	assert.Equal(t, tier.TierBasic, rec.Tier)
}

func TestRecommendWorstCaseResourceWins(t *testing.T) {
	// Every resource fits basic except one that needs pro.
	rec := recommendFrom(averagesOf(3, map[tier.Resource]float64{
		tier.ResourceApplications: 3,
		tier.ResourceInterviews:   12,
	}))
	assert.Equal(t, tier.TierPro, rec.Tier)
}

func TestRecommendBeyondProNeedsPremium(t *testing.T) {
	rec := recommendFrom(averagesOf(3, map[tier.Resource]float64{
		tier.ResourceApplications: 31,
	}))
	assert.Equal(t, tier.TierPremium, rec.Tier)
}

func TestRecommendAvatarUsageSkipsBasic(t *testing.T) {
	// Basic locks avatar interviews at 0, so any usage requires pro.
	rec := recommendFrom(averagesOf(2, map[tier.Resource]float64{
		tier.ResourceAIAvatarInterviews: 1,
	}))
	assert.Equal(t, tier.TierPro, rec.Tier)
}

func TestRecommendLimitBoundaryQualifies(t *testing.T) {
	// Average exactly at the basic limit still fits basic.
	rec := recommendFrom(averagesOf(2, map[tier.Resource]float64{
		tier.ResourceApplications: 8,
	}))
	assert.Equal(t, tier.TierBasic, rec.Tier)

	rec = recommendFrom(averagesOf(2, map[tier.Resource]float64{
		tier.ResourceApplications: 8.1,
	}))
	assert.Equal(t, tier.TierPro, rec.Tier)
}

func TestRecommendMonotonicity(t *testing.T) {
	base := map[tier.Resource]float64{
		tier.ResourceApplications: 2,
		tier.ResourceCVs:          1,
	}
	previous := recommendFrom(averagesOf(4, base)).Tier

	// Growing any single resource never lowers the recommendation.
	for _, resource := range tier.Resources() {
		for _, bump := range []float64{1, 5, 20, 100} {
			grown := map[tier.Resource]float64{}
			for k, v := range base {
				grown[k] = v
			}
			grown[resource] += bump

			next := recommendFrom(averagesOf(4, grown)).Tier
			if tier.IsDowngrade(previous, next) {
				t.Fatalf("recommendation decreased from %s to %s when %s grew by %v", previous, next, resource, bump)
			}
		}
	}
}

func TestReasonTemplates(t *testing.T) {
	one := recommendFrom(averagesOf(1, map[tier.Resource]float64{
		tier.ResourceCVs: 3,
	}))
	assert.Contains(t, one.Reason, "first month")
	assert.Contains(t, one.Reason, "cvs")

	many := recommendFrom(averagesOf(4, map[tier.Resource]float64{
		tier.ResourceApplications: 6,
		tier.ResourceInterviews:   9,
	}))
	assert.Contains(t, many.Reason, "4 months")
	assert.Contains(t, many.Reason, "interviews")
	assert.Contains(t, many.Reason, "applications")
}

func TestReasonTieBreaksByDeclarationOrder(t *testing.T) {
	rec := recommendFrom(averagesOf(2, map[tier.Resource]float64{
		tier.ResourceCVs:       5,
		tier.ResourceContracts: 5,
	}))
	// Equal averages: cvs is declared before contracts.
	assert.Contains(t, rec.Reason, "cvs and contracts")
}

func TestSavingsArithmetic(t *testing.T) {
	rec := recommendFrom(averagesOf(0, nil))

	// Basic: 900*12 = 10800 monthly, 2400*4 = 9600 quarterly, 8400 yearly.
	assert.Equal(t, int64(10800), rec.Savings.MonthlyYearTotalCents)
	assert.Equal(t, int64(9600), rec.Savings.QuarterlyYearTotalCents)
	assert.Equal(t, int64(8400), rec.Savings.YearlyTotalCents)
	assert.Equal(t, int64(1200), rec.Savings.QuarterlySavingsCents)
	assert.Equal(t, int64(2400), rec.Savings.YearlySavingsCents)
}

func TestComparisonMarksQualifyingTiers(t *testing.T) {
	rec := recommendFrom(averagesOf(3, map[tier.Resource]float64{
		tier.ResourceApplications: 12,
	}))

	qualifies := map[tier.Tier]bool{}
	for _, row := range rec.Comparison {
		qualifies[row.Tier] = row.Qualifies
	}
	assert.False(t, qualifies[tier.TierBasic])
	assert.True(t, qualifies[tier.TierPro])
	assert.True(t, qualifies[tier.TierPremium])
}
