package models

import "strings"

// PlanTier is a subscription level supplied by the auth layer
type PlanTier string

// PlanTier constants
const (
	PlanFree     PlanTier = "free"
	PlanStandard PlanTier = "standard"
	PlanPremium  PlanTier = "premium"
)

// ParsePlanTier normalizes a raw plan string
func ParsePlanTier(value string) PlanTier {
	return PlanTier(strings.ToLower(strings.TrimSpace(value)))
}
