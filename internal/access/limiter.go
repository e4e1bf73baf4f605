package access

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"leasecheck/internal/logger"
)

// LimiterConfig sets the sliding-window ceilings.
type LimiterConfig struct {
	UserLimit int
	IPLimit   int
	Window    time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// DefaultLimiterConfig returns 3 per user and 20 per IP over 24 hours.
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		UserLimit: 3,
		IPLimit:   20,
		Window:    24 * time.Hour,
	}
}

// Limiter admits requests against a user window and an IP window at once.
type Limiter struct {
	store  WindowStore
	config LimiterConfig
	log    zerolog.Logger
}

// NewLimiter creates a limiter over store. Zero fields take the defaults.
func NewLimiter(store WindowStore, config LimiterConfig) *Limiter {
	def := DefaultLimiterConfig()
	if config.UserLimit <= 0 {
		config.UserLimit = def.UserLimit
	}
	if config.IPLimit <= 0 {
		config.IPLimit = def.IPLimit
	}
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Limiter{
		store:  store,
		config: config,
		log:    logger.WithComponent("limiter"),
	}
}

// Allow admits one request for userID from ip. Decision.Remaining is the
// user-axis quota left after this request.
func (l *Limiter) Allow(ctx context.Context, userID, ip string) (Decision, error) {
	const op = "Allow"
	if userID == "" {
		return Decision{}, WrapAccessError(op, ErrInvalidUser, "")
	}

	res, err := l.store.Admit(ctx, l.config.Now(), l.config.Window,
		WindowKey{Key: "user:" + userID, Limit: l.config.UserLimit},
		WindowKey{Key: "ip:" + ip, Limit: l.config.IPLimit},
	)
	if err != nil {
		return Decision{}, WrapAccessError(op, err, "")
	}

	userCount, ipCount := res.Counts[0], res.Counts[1]
	if res.Admitted {
		return Decision{Allowed: true, Remaining: max(0, l.config.UserLimit-userCount-1)}, nil
	}

	d := Decision{Reason: ReasonLimitReached}
	if userCount >= l.config.UserLimit {
		d.Message = fmt.Sprintf("Daily limit reached: %d quick analyses per day. Please try again tomorrow.", l.config.UserLimit)
	} else {
		d.Remaining = max(0, l.config.UserLimit-userCount)
		d.Message = "Too many requests from this network. Please try again later."
	}

	l.log.Info().
		Str("user_id", userID).
		Str("ip", ip).
		Int("user_count", userCount).
		Int("ip_count", ipCount).
		Msg("Rate limit reached")

	return d, nil
}
