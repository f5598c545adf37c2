package tier

// ResourceLimits maps each resource to its monthly cap for one tier.
// Unlimited (-1) means no cap.
type ResourceLimits map[Resource]int

var limitsByTier = map[Tier]ResourceLimits{
	TierBasic: {
		ResourceApplications:       8,
		ResourceCVs:                3,
		ResourceInterviews:         5,
		ResourceCompensation:       3,
		ResourceContracts:          2,
		ResourceAIAvatarInterviews: 0,
	},
	TierPro: {
		ResourceApplications:       30,
		ResourceCVs:                15,
		ResourceInterviews:         20,
		ResourceCompensation:       10,
		ResourceContracts:          10,
		ResourceAIAvatarInterviews: 5,
	},
	TierPremium: {
		ResourceApplications:       Unlimited,
		ResourceCVs:                Unlimited,
		ResourceInterviews:         Unlimited,
		ResourceCompensation:       Unlimited,
		ResourceContracts:          Unlimited,
		ResourceAIAvatarInterviews: Unlimited,
	},
}

// Prices are cents for the whole period, not per month.
var pricesByTier = map[Tier]map[BillingPeriod]int64{
	TierBasic: {
		PeriodMonthly:   900,
		PeriodQuarterly: 2400,
		PeriodYearly:    8400,
	},
	TierPro: {
		PeriodMonthly:   1700,
		PeriodQuarterly: 4600,
		PeriodYearly:    15600,
	},
	TierPremium: {
		PeriodMonthly:   2900,
		PeriodQuarterly: 7800,
		PeriodYearly:    26400,
	},
}

var featuresByTier = map[Tier]map[Feature]bool{
	TierBasic: {
		FeatureCVTailoring:   true,
		FeatureJobSearch:     true,
		FeatureInterviewPrep: true,
	},
	TierPro: {
		FeatureCVTailoring:          true,
		FeatureJobSearch:            true,
		FeatureInterviewPrep:        true,
		FeatureCompensationInsights: true,
		FeatureContractReview:       true,
	},
	TierPremium: {
		FeatureCVTailoring:          true,
		FeatureJobSearch:            true,
		FeatureInterviewPrep:        true,
		FeatureCompensationInsights: true,
		FeatureContractReview:       true,
		FeatureAIAvatarInterviews:   true,
		FeaturePrioritySupport:      true,
	},
}

// Limits returns a copy of the resource limits for the tier.
func Limits(t Tier) ResourceLimits {
	source := limitsByTier[t]
	limits := make(ResourceLimits, len(source))
	for resource, limit := range source {
		limits[resource] = limit
	}
	return limits
}

// Limit returns the monthly cap of a single resource for the tier.
func Limit(t Tier, r Resource) int {
	return limitsByTier[t][r]
}

// Price returns the charge in cents for one full billing period.
func Price(t Tier, p BillingPeriod) int64 {
	return pricesByTier[t][p]
}

// HasFeature reports whether the tier includes the feature.
func HasFeature(t Tier, f Feature) bool {
	return featuresByTier[t][f]
}
