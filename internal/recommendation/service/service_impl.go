package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	recommendationdomain "github.com/upcareer/jobdeck/internal/recommendation/domain"
	"github.com/upcareer/jobdeck/internal/tier"
	usagedomain "github.com/upcareer/jobdeck/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Service struct {
	log   *zap.Logger
	usage usagedomain.Service
}

type ServiceParam struct {
	fx.In

	Log   *zap.Logger
	Usage usagedomain.Service
}

func NewService(p ServiceParam) recommendationdomain.Service {
	return &Service{
		log:   p.Log.Named("recommendation.service"),
		usage: p.Usage,
	}
}

// Recommend implements domain.Service.
func (s *Service) Recommend(ctx context.Context, userID string) (recommendationdomain.Recommendation, error) {
	averages, err := s.usage.AveragesFor(ctx, userID)
	if err != nil {
		return recommendationdomain.Recommendation{}, err
	}
	return recommendFrom(averages), nil
}

// recommendFrom is the whole decision, pure over the averages. The overall
// tier is the worst case across resources: the highest tier any single
// resource requires.
func recommendFrom(averages usagedomain.Averages) recommendationdomain.Recommendation {
	tiers := tier.Tiers()
	recommended := tiers[0]
	for _, resource := range tier.Resources() {
		required := lowestQualifyingTier(resource, averages.PerResource[resource])
		if tier.IsUpgrade(recommended, required) {
			recommended = required
		}
	}

	return recommendationdomain.Recommendation{
		Tier:          recommended,
		BillingPeriod: tier.PeriodYearly,
		Comparison:    buildComparison(averages),
		Savings:       buildSavings(recommended),
		Reason:        buildReason(recommended, averages),
		Averages:      averages,
	}
}

// lowestQualifyingTier finds the cheapest tier whose limit covers the
// average. Unlimited always qualifies, and a zero average qualifies the
// lowest tier.
func lowestQualifyingTier(resource tier.Resource, average float64) tier.Tier {
	tiers := tier.Tiers()
	if average == 0 {
		return tiers[0]
	}
	for _, t := range tiers {
		limit := tier.Limit(t, resource)
		if limit == tier.Unlimited || float64(limit) >= average {
			return t
		}
	}
	return tiers[len(tiers)-1]
}

func buildComparison(averages usagedomain.Averages) []recommendationdomain.TierComparison {
	comparison := make([]recommendationdomain.TierComparison, 0, len(tier.Tiers()))
	for _, t := range tier.Tiers() {
		row := recommendationdomain.TierComparison{
			Tier:      t,
			Qualifies: true,
			Resources: make([]recommendationdomain.ResourceFit, 0, len(tier.Resources())),
		}
		for _, resource := range tier.Resources() {
			average := averages.PerResource[resource]
			limit := tier.Limit(t, resource)
			fits := limit == tier.Unlimited || average == 0 || float64(limit) >= average
			if !fits {
				row.Qualifies = false
			}
			row.Resources = append(row.Resources, recommendationdomain.ResourceFit{
				Resource: resource,
				Average:  average,
				Limit:    limit,
				Fits:     fits,
			})
		}
		comparison = append(comparison, row)
	}
	return comparison
}

func buildSavings(t tier.Tier) recommendationdomain.Savings {
	monthlyYear := tier.Price(t, tier.PeriodMonthly) * 12
	quarterlyYear := tier.Price(t, tier.PeriodQuarterly) * 4
	yearly := tier.Price(t, tier.PeriodYearly)
	return recommendationdomain.Savings{
		MonthlyYearTotalCents:   monthlyYear,
		QuarterlyYearTotalCents: quarterlyYear,
		YearlyTotalCents:        yearly,
		QuarterlySavingsCents:   monthlyYear - quarterlyYear,
		YearlySavingsCents:      monthlyYear - yearly,
	}
}

func buildReason(t tier.Tier, averages usagedomain.Averages) string {
	switch {
	case averages.MonthsTracked == 0:
		return fmt.Sprintf("With no usage history yet, %s is a solid starting point. You can change plans at any time.", titleCase(t))
	case averages.MonthsTracked == 1:
		top := topResources(averages, 1)
		return fmt.Sprintf("Based on your first month, your heaviest use is %s, which fits %s.", resourceLabel(top[0]), titleCase(t))
	default:
		top := topResources(averages, 2)
		return fmt.Sprintf("Over %d months your heaviest use is %s and %s, which fits %s.",
			averages.MonthsTracked, resourceLabel(top[0]), resourceLabel(top[1]), titleCase(t))
	}
}

// topResources ranks resources by average descending, ties broken by
// declaration order.
func topResources(averages usagedomain.Averages, n int) []tier.Resource {
	resources := tier.Resources()
	sort.SliceStable(resources, func(i, j int) bool {
		return averages.PerResource[resources[i]] > averages.PerResource[resources[j]]
	})
	if n > len(resources) {
		n = len(resources)
	}
	return resources[:n]
}

func resourceLabel(r tier.Resource) string {
	return strings.ReplaceAll(string(r), "_", " ")
}

func titleCase(t tier.Tier) string {
	s := string(t)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
