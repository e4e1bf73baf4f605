// Package access decides whether a user may run a metered operation.
//
// Two tracks are kept per user: a one-shot free analysis and a paid grant with
// an expiry and a cap on the number of analyses. A separate Limiter applies
// sliding-window limits per user and per IP to the clause preview.
package access

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"leasecheck/internal/logger"
	"leasecheck/pkg/models"
)

// DefaultLeaseLimit is the number of analyses included in one paid grant.
const DefaultLeaseLimit = 5

// AdmissionMode selects how paid admissions are counted.
type AdmissionMode string

const (
	// ModeReserve appends the analysis id atomically at admission and removes
	// it again if the analysis fails. The cap cannot be overshot.
	ModeReserve AdmissionMode = "reserve"

	// ModeCheckThenAct checks the cap at admission and appends after the
	// analysis is stored. Concurrent requests may overshoot the cap.
	ModeCheckThenAct AdmissionMode = "check-then-act"
)

// ParseAdmissionMode validates s. An empty string selects ModeReserve.
func ParseAdmissionMode(s string) (AdmissionMode, error) {
	switch AdmissionMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeReserve:
		return ModeReserve, nil
	case ModeCheckThenAct:
		return ModeCheckThenAct, nil
	default:
		return "", WrapAccessError("ParseAdmissionMode", ErrInvalidMode, s)
	}
}

// Reason is a machine-readable denial code.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonNoAccess          Reason = "no_access"
	ReasonLeaseLimitReached Reason = "lease_limit_reached"
	ReasonLimitReached      Reason = "limit_reached"
)

// Decision is the answer to an admission request. A denial is a Decision with
// Allowed=false, never an error.
type Decision struct {
	Allowed bool
	Tier    models.Tier
	Reason  Reason
	Message string

	// Remaining is the number of analyses (or previews) left after this one.
	Remaining int

	// Reserved is set when the analysis id was already counted at admission.
	Reserved bool
}

// Config configures a Gate.
type Config struct {
	LeaseLimit  int
	Mode        AdmissionMode
	BypassUsers []string

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// GrantRequest is a billing event or admin call granting paid access.
type GrantRequest struct {
	UserID         string
	Plan           models.Plan
	CustomerEmail  string
	TransactionID  string
	SubscriptionID string
}

// Status is the read-only access summary for one user.
type Status struct {
	UserID                   string      `json:"user_id"`
	HasAccess                bool        `json:"has_access"`
	Reason                   Reason      `json:"reason,omitempty"`
	Message                  string      `json:"message,omitempty"`
	Plan                     models.Plan `json:"plan,omitempty"`
	ExpiresAt                *time.Time  `json:"expires_at,omitempty"`
	DaysRemaining            int         `json:"days_remaining"`
	AnalysesCount            int         `json:"analyses_count"`
	RemainingAnalyses        int         `json:"remaining_analyses"`
	HasFreeAnalysisAvailable bool        `json:"has_free_analysis_available"`
	HasActivePlan            bool        `json:"has_active_plan"`
	IsLoggedIn               bool        `json:"is_logged_in"`
	Bypass                   bool        `json:"bypass,omitempty"`
}

// Gate is the access/quota gate.
type Gate struct {
	grants GrantStore
	free   FreeTierStore
	config Config
	log    zerolog.Logger
}

// NewGate creates a gate over the given stores.
func NewGate(grants GrantStore, free FreeTierStore, config Config) *Gate {
	if config.LeaseLimit <= 0 {
		config.LeaseLimit = DefaultLeaseLimit
	}
	if config.Mode == "" {
		config.Mode = ModeReserve
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Gate{
		grants: grants,
		free:   free,
		config: config,
		log:    logger.WithComponent("access"),
	}
}

// LeaseLimit returns the configured cap.
func (g *Gate) LeaseLimit() int {
	return g.config.LeaseLimit
}

// Mode returns the configured admission mode.
func (g *Gate) Mode() AdmissionMode {
	return g.config.Mode
}

func (g *Gate) isBypass(userID string) bool {
	return slices.Contains(g.config.BypassUsers, userID)
}

func (g *Gate) limitMessage() string {
	return fmt.Sprintf("You've used all %d analyses included in your pass. Please purchase another pass for more reviews.", g.config.LeaseLimit)
}

const freeUsedMessage = "You have already used your free analysis. A paid plan is required for additional reports."

// Admit decides whether userID may run the analysis analysisID. In reserve
// mode a paid admission already counts the id; call Release if the analysis
// fails and Commit once its record is stored.
func (g *Gate) Admit(ctx context.Context, userID, analysisID string) (Decision, error) {
	const op = "Admit"
	log := logger.FromContext(ctx, g.log).With().Str("user_id", userID).Logger()

	if userID == "" {
		return Decision{}, WrapAccessError(op, ErrInvalidUser, "")
	}

	if g.isBypass(userID) {
		log.Info().Msg("Bypass user admitted")
		return Decision{Allowed: true, Tier: models.TierBypass}, nil
	}

	now := g.config.Now()
	limit := g.config.LeaseLimit

	grant, err := g.grants.Get(ctx, userID)
	if err != nil {
		return Decision{}, WrapAccessError(op, err, "")
	}

	if grant.Active(now) {
		switch g.config.Mode {
		case ModeCheckThenAct:
			if len(grant.AnalysisIDs) >= limit {
				return g.leaseLimitReached(log, len(grant.AnalysisIDs)), nil
			}
			return Decision{
				Allowed:   true,
				Tier:      models.TierPaid,
				Remaining: limit - len(grant.AnalysisIDs) - 1,
			}, nil

		default:
			result, err := g.grants.AppendWithCeiling(ctx, userID, analysisID, limit, now)
			if err != nil {
				return Decision{}, WrapAccessError(op, err, "")
			}
			switch result {
			case Appended:
				used := len(grant.AnalysisIDs) + 1
				log.Info().Str("analysis_id", analysisID).Int("used", used).Int("limit", limit).Msg("Paid analysis reserved")
				return Decision{
					Allowed:   true,
					Tier:      models.TierPaid,
					Remaining: max(0, limit-used),
					Reserved:  true,
				}, nil
			case Exhausted:
				return g.leaseLimitReached(log, limit), nil
			}
			// Expired between Get and the append: fall through to the free tier.
		}
	}

	claimed, err := g.free.Claim(ctx, userID)
	if err != nil {
		return Decision{}, WrapAccessError(op, err, "")
	}
	if !claimed {
		log.Info().Msg("Free analysis already used")
		return Decision{Reason: ReasonNoAccess, Message: freeUsedMessage}, nil
	}

	log.Info().Msg("Using free analysis")
	return Decision{Allowed: true, Tier: models.TierFree}, nil
}

func (g *Gate) leaseLimitReached(log zerolog.Logger, used int) Decision {
	log.Info().Int("used", used).Int("limit", g.config.LeaseLimit).Msg("Lease limit reached")
	return Decision{Reason: ReasonLeaseLimitReached, Message: g.limitMessage()}
}

// Commit counts analysisID against the user's grant once the analysis
// record is stored. Reserved and unpaid admissions need nothing.
func (g *Gate) Commit(ctx context.Context, d Decision, userID, analysisID string) error {
	if d.Tier != models.TierPaid || d.Reserved {
		return nil
	}
	return WrapAccessError("Commit", g.grants.Append(ctx, userID, analysisID), "")
}

// Release undoes a reservation made by Admit. The free analysis is never
// given back.
func (g *Gate) Release(ctx context.Context, d Decision, userID, analysisID string) error {
	if !d.Reserved {
		return nil
	}
	g.log.Info().Str("user_id", userID).Str("analysis_id", analysisID).Msg("Releasing reserved analysis")
	return WrapAccessError("Release", g.grants.Remove(ctx, userID, analysisID), "")
}

// GrantAccess creates or renews a paid grant starting now. Renewal keeps the
// analyses already counted.
func (g *Gate) GrantAccess(ctx context.Context, req GrantRequest) (models.AccessGrant, error) {
	const op = "GrantAccess"

	if strings.TrimSpace(req.UserID) == "" {
		return models.AccessGrant{}, WrapAccessError(op, ErrInvalidUser, "")
	}
	if req.Plan != models.PlanMonthly && req.Plan != models.PlanYearly {
		return models.AccessGrant{}, WrapAccessError(op, ErrInvalidPlan, string(req.Plan))
	}

	now := g.config.Now()
	grant, err := g.grants.Upsert(ctx, models.AccessGrant{
		UserID:         req.UserID,
		Plan:           req.Plan,
		PaidAt:         now,
		ExpiresAt:      now.Add(req.Plan.Duration()),
		CustomerEmail:  req.CustomerEmail,
		TransactionID:  req.TransactionID,
		SubscriptionID: req.SubscriptionID,
	})
	if err != nil {
		return models.AccessGrant{}, WrapAccessError(op, err, "")
	}

	g.log.Info().
		Str("user_id", grant.UserID).
		Str("plan", string(grant.Plan)).
		Time("expires_at", grant.ExpiresAt).
		Int("analyses_count", len(grant.AnalysisIDs)).
		Msg("Access granted")

	return grant, nil
}

// HasActiveAccess reports whether userID holds an active grant with capacity
// left, or is a bypass user.
func (g *Gate) HasActiveAccess(ctx context.Context, userID string) (bool, error) {
	st, err := g.Status(ctx, userID)
	if err != nil {
		return false, err
	}
	return st.HasAccess, nil
}

// Status summarizes the user's access without changing anything.
func (g *Gate) Status(ctx context.Context, userID string) (Status, error) {
	const op = "Status"

	st := Status{
		UserID:     userID,
		IsLoggedIn: strings.HasPrefix(userID, "user_") && strings.Contains(userID, "@"),
	}

	used, err := g.free.Used(ctx, userID)
	if err != nil {
		return Status{}, WrapAccessError(op, err, "")
	}
	st.HasFreeAnalysisAvailable = !used

	if g.isBypass(userID) {
		st.Bypass = true
		st.HasAccess = true
		st.HasActivePlan = true
		st.RemainingAnalyses = g.config.LeaseLimit
		return st, nil
	}

	grant, err := g.grants.Get(ctx, userID)
	if err != nil {
		return Status{}, WrapAccessError(op, err, "")
	}

	now := g.config.Now()
	if !grant.Active(now) {
		return st, nil
	}

	expires := grant.ExpiresAt
	st.Plan = grant.Plan
	st.ExpiresAt = &expires
	st.AnalysesCount = len(grant.AnalysisIDs)

	if st.AnalysesCount >= g.config.LeaseLimit {
		st.Reason = ReasonLeaseLimitReached
		st.Message = g.limitMessage()
		return st, nil
	}

	st.HasAccess = true
	st.HasActivePlan = true
	st.DaysRemaining = int(expires.Sub(now).Hours() / 24)
	st.RemainingAnalyses = g.config.LeaseLimit - st.AnalysesCount
	return st, nil
}
