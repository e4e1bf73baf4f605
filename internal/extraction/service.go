// Package extraction turns lease text into a models.LeaseExtraction.
//
// It composes the prompt, calls the LLM once, recovers a JSON object from the
// reply, merges it over neutral defaults and fills gaps from the regex
// fallback. Every failure degrades to models.DefaultExtraction; nothing here
// returns an error to the caller.
package extraction

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"leasecheck/internal/fallback"
	"leasecheck/internal/llm"
	"leasecheck/internal/logger"
	"leasecheck/internal/normalize"
	"leasecheck/internal/recovery"
	"leasecheck/pkg/models"
)

// Config tunes the model call.
type Config struct {
	Temperature  float32
	MaxTokens    int
	PromptBudget int
}

// DefaultConfig returns the settings used for lease extraction.
func DefaultConfig() Config {
	return Config{
		Temperature:  0.1,
		MaxTokens:    3000,
		PromptBudget: DefaultPromptBudget,
	}
}

// Outcome is an extraction together with how it was produced.
type Outcome struct {
	Extraction models.LeaseExtraction

	// Cause is nil when the model output was used, otherwise the reason the
	// extraction fell back to the default object.
	Cause error

	// Stage is the recovery stage that produced the model object.
	Stage recovery.Stage

	// FallbackFields lists the fields filled by the regex fallback.
	FallbackFields []string

	// SchemaWarnings lists schema violations in the recovered object.
	SchemaWarnings []string
}

// Degraded reports whether the default object was returned.
func (o Outcome) Degraded() bool {
	return o.Cause != nil
}

// Service is the extraction orchestrator.
type Service struct {
	client    llm.Completer
	config    Config
	validator *Validator
	log       zerolog.Logger
}

// NewService creates an orchestrator. client may be nil, in which case every
// call degrades with ErrNotConfigured.
func NewService(client llm.Completer, config Config) *Service {
	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultConfig().MaxTokens
	}
	if config.PromptBudget <= 0 {
		config.PromptBudget = DefaultPromptBudget
	}

	log := logger.WithComponent("extraction")
	validator, err := NewValidator()
	if err != nil {
		log.Warn().Err(err).Msg("Lease schema unavailable, skipping schema checks")
	}

	return &Service{
		client:    client,
		config:    config,
		validator: validator,
		log:       log,
	}
}

// Extract returns the structured analysis of text. It never fails.
func (s *Service) Extract(ctx context.Context, text string) models.LeaseExtraction {
	return s.Analyze(ctx, text).Extraction
}

// Analyze runs the extraction and reports how the result was produced.
func (s *Service) Analyze(ctx context.Context, text string) Outcome {
	const op = "Analyze"
	log := logger.FromContext(ctx, s.log)

	log.Info().
		Int("text_length", len(text)).
		Str("preview", logger.Preview(text, 200)).
		Msg("Starting lease extraction")

	if strings.TrimSpace(text) == "" {
		log.Warn().Msg("Empty document text, returning default extraction")
		return degraded(ErrEmptyText)
	}

	if s.client == nil {
		log.Error().Msg("LLM backend is not configured, returning default extraction")
		return degraded(wrapError(op, ErrNotConfigured, ""))
	}

	raw, err := s.client.Complete(ctx, llm.Request{
		SystemPrompt: SystemPrompt,
		UserMessage:  UserMessage(text, s.config.PromptBudget),
		Temperature:  s.config.Temperature,
		MaxTokens:    s.config.MaxTokens,
	})
	if err != nil {
		cause := ErrTransport
		if errors.Is(err, llm.ErrMissingCredentials) {
			cause = ErrNotConfigured
		}
		log.Error().Err(err).Msg("LLM call failed, returning default extraction")
		return degraded(wrapError(op, cause, err.Error()))
	}

	obj, stage := recovery.ObjectWithStage(raw)
	if stage == recovery.StageNone {
		log.Error().
			Int("response_length", len(raw)).
			Str("response", logger.Preview(raw, 300)).
			Msg("No JSON object in LLM response, returning default extraction")
		return degraded(wrapError(op, ErrUnparseable, ""))
	}

	warnings := s.validator.Warnings(obj)
	if len(warnings) > 0 {
		log.Warn().Strs("violations", warnings).Msg("LLM object does not match lease schema")
	}

	ext, levelValid := merge(obj)
	filled := applyFallback(&ext, fallback.Extract(text))
	finalize(&ext, levelValid)

	log.Info().
		Str("recovery_stage", stage.String()).
		Strs("fallback_fields", filled).
		Int("risk_score", ext.RiskScore).
		Str("risk_level", string(ext.RiskLevel)).
		Int("clauses", len(ext.Clauses)).
		Msg("Lease extraction completed")

	return Outcome{
		Extraction:     ext,
		Stage:          stage,
		FallbackFields: filled,
		SchemaWarnings: warnings,
	}
}

func degraded(cause error) Outcome {
	return Outcome{Extraction: models.DefaultExtraction(), Cause: cause}
}

// baseExtraction is what the merge starts from: the default object, so a
// field the model leaves out reads the same as in a failed analysis. The risk
// label is settled later from the score.
func baseExtraction() models.LeaseExtraction {
	return models.DefaultExtraction()
}

// merge copies every usable field of obj over the base extraction. The second
// result reports whether obj carried a valid risk label.
func merge(obj map[string]any) (models.LeaseExtraction, bool) {
	ext := baseExtraction()

	if v, ok := getString(obj, "rent"); ok {
		ext.Rent = &v
	}
	if v, ok := getString(obj, "deposit"); ok {
		ext.Deposit = &v
	}
	if v, ok := getTerm(obj, "term_months"); ok {
		ext.TermMonths = &v
	}
	if v, ok := getString(obj, "start_date"); ok {
		ext.StartDate = &v
	}
	if v, ok := getString(obj, "end_date"); ok {
		ext.EndDate = &v
	}
	if v, ok := getString(obj, "landlord"); ok {
		ext.Landlord = &v
	}
	if v, ok := getString(obj, "tenant"); ok {
		ext.Tenant = &v
	}

	if v, ok := getInt(obj, "risk_score"); ok {
		ext.RiskScore = v
	}

	levelValid := false
	if v, ok := getString(obj, "risk_level"); ok {
		level := models.RiskLevel(strings.ToLower(v))
		if level.Valid() {
			ext.RiskLevel = level
			levelValid = true
		}
	}

	if v, ok := getStrings(obj, "red_flags"); ok {
		ext.RedFlags = v
	}
	if v, ok := getStrings(obj, "negotiation_tips"); ok {
		ext.NegotiationTips = v
	}
	if v, ok := getString(obj, "summary"); ok {
		ext.Summary = v
	}
	ext.Clauses = getClauses(obj)

	return ext, levelValid
}

// applyFallback fills key terms the model left empty and returns the names of
// the fields it filled. Model values are never replaced.
func applyFallback(ext *models.LeaseExtraction, fb fallback.Result) []string {
	var filled []string
	if ext.Rent == nil && fb.Rent != nil {
		ext.Rent = fb.Rent
		filled = append(filled, fallback.FieldRent)
	}
	if ext.Deposit == nil && fb.Deposit != nil {
		ext.Deposit = fb.Deposit
		filled = append(filled, fallback.FieldDeposit)
	}
	if ext.TermMonths == nil && fb.TermMonths != nil {
		ext.TermMonths = fb.TermMonths
		filled = append(filled, fallback.FieldTermMonths)
	}
	if ext.StartDate == nil && fb.StartDate != nil {
		ext.StartDate = fb.StartDate
		filled = append(filled, fallback.FieldStartDate)
	}
	if ext.EndDate == nil && fb.EndDate != nil {
		ext.EndDate = fb.EndDate
		filled = append(filled, fallback.FieldEndDate)
	}
	return filled
}

// finalize canonicalizes amounts and dates, derives a missing term from the
// dates and settles the risk label.
func finalize(ext *models.LeaseExtraction, levelValid bool) {
	ext.Rent = canonicalAmount(ext.Rent)
	ext.Deposit = canonicalAmount(ext.Deposit)
	ext.StartDate = isoDate(ext.StartDate)
	ext.EndDate = isoDate(ext.EndDate)

	if ext.TermMonths == nil && ext.StartDate != nil && ext.EndDate != nil {
		if months, ok := normalize.MonthsBetween(*ext.StartDate, *ext.EndDate); ok {
			ext.TermMonths = &months
		}
	}

	switch {
	case ext.RiskScore < 0:
		ext.RiskScore = 0
	case ext.RiskScore > 100:
		ext.RiskScore = 100
	}
	if !levelValid {
		ext.RiskLevel = models.RiskFromScore(ext.RiskScore)
	}

	if ext.Clauses == nil {
		ext.Clauses = []models.Clause{}
	}
}

func canonicalAmount(v *string) *string {
	if v == nil {
		return nil
	}
	amount := normalize.CanonicalAmount(*v)
	if amount == "" {
		return nil
	}
	return &amount
}

func isoDate(v *string) *string {
	if v == nil {
		return nil
	}
	date := normalize.Date(*v)
	return &date
}
