package preview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"leasecheck/internal/access"
	"leasecheck/internal/logger"
)

var (
	// ErrEmptyClause is returned when no clause text is given.
	ErrEmptyClause = errors.New("clause text is required")

	// ErrClauseTooLong is returned when the clause exceeds the character limit.
	ErrClauseTooLong = errors.New("clause is too long")

	// ErrRateLimited is matched by *LimitError.
	ErrRateLimited = errors.New("limit_reached")
)

// LimitError reports a rate-window denial.
type LimitError struct {
	Message   string
	Remaining int
}

func (e *LimitError) Error() string {
	return e.Message
}

func (e *LimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// Config tunes the preview.
type Config struct {
	MaxChars     int
	HistoryLimit int
	DailyLimit   int
}

// DefaultConfig returns 250 characters and a history of 3.
func DefaultConfig() Config {
	return Config{MaxChars: 250, HistoryLimit: 3, DailyLimit: 3}
}

// Result is one preview outcome.
type Result struct {
	ClauseText    string    `json:"clause_text"`
	RiskLevel     string    `json:"risk_level"`
	ExplanationEN string    `json:"explanation_en"`
	ExplanationZH string    `json:"explanation_zh"`
	CreatedAt     time.Time `json:"created_at"`
}

// Service runs rate-limited previews and keeps a short per-user history.
type Service struct {
	limiter   *access.Limiter
	explainer *Explainer
	config    Config
	log       zerolog.Logger

	mu      sync.Mutex
	history map[string][]Result
}

// NewService creates a preview service. explainer may be nil.
func NewService(limiter *access.Limiter, explainer *Explainer, config Config) *Service {
	def := DefaultConfig()
	if config.MaxChars <= 0 {
		config.MaxChars = def.MaxChars
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = def.HistoryLimit
	}
	if config.DailyLimit <= 0 {
		config.DailyLimit = def.DailyLimit
	}
	return &Service{
		limiter:   limiter,
		explainer: explainer,
		config:    config,
		log:       logger.WithComponent("preview"),
		history:   make(map[string][]Result),
	}
}

// Analyze previews clause for userID from ip. It returns the result and the
// user's remaining quota for the window.
func (s *Service) Analyze(ctx context.Context, clause, userID, ip string) (Result, int, error) {
	clause = strings.TrimSpace(clause)
	if clause == "" {
		return Result{}, 0, ErrEmptyClause
	}
	if n := utf8.RuneCountInString(clause); n > s.config.MaxChars {
		return Result{}, 0, fmt.Errorf("%w (%d of %d characters)", ErrClauseTooLong, n, s.config.MaxChars)
	}

	decision, err := s.limiter.Allow(ctx, userID, ip)
	if err != nil {
		return Result{}, 0, err
	}
	if !decision.Allowed {
		s.log.Warn().Str("user_id", userID).Str("ip", ip).Int("remaining", decision.Remaining).Msg("Quick preview rate limited")
		// Quota left on the user axis means the IP window denied the request.
		message := decision.Message
		if decision.Remaining == 0 {
			message = fmt.Sprintf("You've used your %d free clause previews for today. For a full lease review, please upgrade to a paid report.", s.config.DailyLimit)
		}
		return Result{}, decision.Remaining, &LimitError{
			Message:   message,
			Remaining: decision.Remaining,
		}
	}

	assessment := Assess(clause)
	short := ShortExplanation(clause, assessment.Risk)

	result := Result{
		ClauseText:    clause,
		RiskLevel:     assessment.Risk.Display(),
		ExplanationEN: short,
		ExplanationZH: s.explainer.Explain(ctx, short),
		CreatedAt:     time.Now(),
	}
	s.remember(userID, result)

	s.log.Info().
		Str("user_id", userID).
		Str("risk", string(assessment.Risk)).
		Int("remaining", decision.Remaining).
		Msg("Quick preview completed")

	return result, decision.Remaining, nil
}

func (s *Service) remember(userID string, r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := append([]Result{r}, s.history[userID]...)
	if len(h) > s.config.HistoryLimit {
		h = h[:s.config.HistoryLimit]
	}
	s.history[userID] = h
}

// MaxChars returns the clause length limit in characters.
func (s *Service) MaxChars() int {
	return s.config.MaxChars
}

// History returns the user's most recent results, newest first.
func (s *Service) History(userID string) []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Result{}, s.history[userID]...)
}
