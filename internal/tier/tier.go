// Package tier holds the compiled-in subscription plan catalog.
package tier

import (
	"errors"
	"strings"
)

// Tier identifies a subscription plan. Tiers are totally ordered:
// TierBasic < TierPro < TierPremium.
type Tier string

const (
	TierBasic   Tier = "basic"
	TierPro     Tier = "pro"
	TierPremium Tier = "premium"
)

// Resource is a meterable action subject to a per-tier monthly limit.
type Resource string

const (
	ResourceApplications       Resource = "applications"
	ResourceCVs                Resource = "cvs"
	ResourceInterviews         Resource = "interviews"
	ResourceCompensation       Resource = "compensation"
	ResourceContracts          Resource = "contracts"
	ResourceAIAvatarInterviews Resource = "ai_avatar_interviews"
)

// Feature is a boolean capability granted by a tier.
type Feature string

const (
	FeatureCVTailoring          Feature = "cv_tailoring"
	FeatureJobSearch            Feature = "job_search"
	FeatureInterviewPrep        Feature = "interview_prep"
	FeatureCompensationInsights Feature = "compensation_insights"
	FeatureContractReview       Feature = "contract_review"
	FeatureAIAvatarInterviews   Feature = "ai_avatar_interviews"
	FeaturePrioritySupport      Feature = "priority_support"
)

// BillingPeriod is the subscription billing interval.
type BillingPeriod string

const (
	PeriodMonthly   BillingPeriod = "monthly"
	PeriodQuarterly BillingPeriod = "quarterly"
	PeriodYearly    BillingPeriod = "yearly"
)

var (
	ErrInvalidTier     = errors.New("invalid_tier")
	ErrInvalidResource = errors.New("invalid_resource")
	ErrInvalidFeature  = errors.New("invalid_feature")
	ErrInvalidPeriod   = errors.New("invalid_billing_period")
)

// Unlimited marks a resource with no monthly cap.
const Unlimited = -1

// Tiers lists every tier in ascending order.
func Tiers() []Tier {
	return []Tier{TierBasic, TierPro, TierPremium}
}

// Resources lists every meterable resource in declaration order. The order is
// load-bearing: recommendation tie-breaks follow it.
func Resources() []Resource {
	return []Resource{
		ResourceApplications,
		ResourceCVs,
		ResourceInterviews,
		ResourceCompensation,
		ResourceContracts,
		ResourceAIAvatarInterviews,
	}
}

// Periods lists billing periods in ascending length.
func Periods() []BillingPeriod {
	return []BillingPeriod{PeriodMonthly, PeriodQuarterly, PeriodYearly}
}

// Months returns the number of calendar months covered by the period.
func (p BillingPeriod) Months() int {
	switch p {
	case PeriodQuarterly:
		return 3
	case PeriodYearly:
		return 12
	default:
		return 1
	}
}

func ParseTier(value string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(value))) {
	case TierBasic:
		return TierBasic, nil
	case TierPro:
		return TierPro, nil
	case TierPremium:
		return TierPremium, nil
	default:
		return "", ErrInvalidTier
	}
}

func ParseResource(value string) (Resource, error) {
	normalized := Resource(strings.ToLower(strings.TrimSpace(value)))
	for _, resource := range Resources() {
		if resource == normalized {
			return resource, nil
		}
	}
	return "", ErrInvalidResource
}

func ParseFeature(value string) (Feature, error) {
	normalized := Feature(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case FeatureCVTailoring,
		FeatureJobSearch,
		FeatureInterviewPrep,
		FeatureCompensationInsights,
		FeatureContractReview,
		FeatureAIAvatarInterviews,
		FeaturePrioritySupport:
		return normalized, nil
	default:
		return "", ErrInvalidFeature
	}
}

func ParsePeriod(value string) (BillingPeriod, error) {
	switch BillingPeriod(strings.ToLower(strings.TrimSpace(value))) {
	case PeriodMonthly:
		return PeriodMonthly, nil
	case PeriodQuarterly:
		return PeriodQuarterly, nil
	case PeriodYearly:
		return PeriodYearly, nil
	default:
		return "", ErrInvalidPeriod
	}
}

func rank(t Tier) int {
	switch t {
	case TierBasic:
		return 1
	case TierPro:
		return 2
	case TierPremium:
		return 3
	default:
		return 0
	}
}

// IsUpgrade reports whether moving from a to b raises the tier.
func IsUpgrade(a, b Tier) bool {
	return rank(a) != 0 && rank(b) != 0 && rank(b) > rank(a)
}

// IsDowngrade reports whether moving from a to b lowers the tier.
func IsDowngrade(a, b Tier) bool {
	return rank(a) != 0 && rank(b) != 0 && rank(b) < rank(a)
}
