package models

import "time"

// Plan is the paid subscription kind.
type Plan string

const (
	PlanMonthly Plan = "monthly"
	PlanYearly  Plan = "yearly"
)

// Duration returns how long a grant for the plan stays active.
// Anything other than monthly is treated as yearly.
func (p Plan) Duration() time.Duration {
	if p == PlanMonthly {
		return 30 * 24 * time.Hour
	}
	return 365 * 24 * time.Hour
}

// ParsePlan converts a free-form plan name, defaulting to yearly.
func ParsePlan(s string) Plan {
	if Plan(s) == PlanMonthly {
		return PlanMonthly
	}
	return PlanYearly
}

// AccessGrant is a user's paid entitlement.
type AccessGrant struct {
	UserID         string    `json:"user_id"`
	Plan           Plan      `json:"plan"`
	PaidAt         time.Time `json:"paid_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	AnalysisIDs    []string  `json:"analysis_ids"`
	CustomerEmail  string    `json:"customer_email,omitempty"`
	TransactionID  string    `json:"transaction_id,omitempty"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
}

// Active reports whether the grant has not expired at now.
func (g *AccessGrant) Active(now time.Time) bool {
	return g != nil && now.Before(g.ExpiresAt)
}

// HasAnalysis reports whether id is already counted against the grant.
func (g *AccessGrant) HasAnalysis(id string) bool {
	if g == nil {
		return false
	}
	for _, existing := range g.AnalysisIDs {
		if existing == id {
			return true
		}
	}
	return false
}
