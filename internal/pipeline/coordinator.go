// Package pipeline runs a lease analysis end to end: page validation, the
// access gate, OCR, LLM extraction, clause filtering and record keeping.
package pipeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"leasecheck/internal/access"
	"leasecheck/internal/clauses"
	"leasecheck/internal/extraction"
	"leasecheck/internal/logger"
	"leasecheck/internal/ocr"
	"leasecheck/pkg/models"
)

const (
	// DefaultMaxPages is the page limit per analysis.
	DefaultMaxPages = 40

	// PageSeparator joins the text of consecutive pages.
	PageSeparator = "\n\n"
)

var allowedExtensions = []string{".pdf", ".jpg", ".jpeg", ".png"}

// Page is one uploaded file. Name is the client file name used for ordering
// and format checks; Path is where the bytes live.
type Page struct {
	Name string
	Path string
}

func (p Page) name() string {
	if p.Name != "" {
		return p.Name
	}
	return filepath.Base(p.Path)
}

// Releaser disposes of a page file once the analysis no longer needs it.
type Releaser func(path string) error

// RemoveFile is the default Releaser.
func RemoveFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// KeepFile is a Releaser that leaves files in place.
func KeepFile(string) error { return nil }

// Extractor produces the structured analysis of document text.
type Extractor interface {
	Analyze(ctx context.Context, text string) extraction.Outcome
}

// Config tunes the coordinator.
type Config struct {
	MaxPages int
	Releaser Releaser
}

// Coordinator wires the pipeline stages together.
type Coordinator struct {
	recognizer ocr.Recognizer
	extractor  Extractor
	gate       *access.Gate
	records    RecordStore
	config     Config
	log        zerolog.Logger
}

// NewCoordinator creates a coordinator.
func NewCoordinator(recognizer ocr.Recognizer, extractor Extractor, gate *access.Gate, records RecordStore, config Config) *Coordinator {
	if config.MaxPages <= 0 {
		config.MaxPages = DefaultMaxPages
	}
	if config.Releaser == nil {
		config.Releaser = RemoveFile
	}
	return &Coordinator{
		recognizer: recognizer,
		extractor:  extractor,
		gate:       gate,
		records:    records,
		config:     config,
		log:        logger.WithComponent("pipeline"),
	}
}

// Analyze runs the full analysis of pages for userID. Every page path is
// released exactly once before Analyze returns, whatever the outcome.
// A gate rejection is returned as *Denial.
func (c *Coordinator) Analyze(ctx context.Context, pages []Page, userID string) (*models.AnalysisRecord, error) {
	const op = "Analyze"
	defer c.release(pages)

	start := time.Now()
	log := logger.FromContext(ctx, c.log).With().Str("user_id", userID).Logger()

	if err := c.validate(pages); err != nil {
		log.Warn().Err(err).Int("pages", len(pages)).Msg("Rejected analysis request")
		return nil, err
	}

	id := uuid.NewString()
	log = log.With().Str("analysis_id", id).Logger()

	decision, err := c.gate.Admit(ctx, userID, id)
	if err != nil {
		return nil, WrapPipelineError(op, err, "access check failed")
	}
	if !decision.Allowed {
		log.Info().Str("reason", string(decision.Reason)).Msg("Analysis denied")
		return nil, &Denial{Reason: decision.Reason, Message: decision.Message}
	}

	stored := false
	defer func() {
		if stored {
			return
		}
		if err := c.gate.Release(context.WithoutCancel(ctx), decision, userID, id); err != nil {
			log.Error().Err(err).Msg("Failed to release reserved analysis")
		}
	}()

	ordered := slices.Clone(pages)
	slices.SortStableFunc(ordered, func(a, b Page) int {
		return cmp.Or(strings.Compare(a.name(), b.name()), strings.Compare(a.Path, b.Path))
	})

	var lines []models.Line
	var texts []string
	for i, page := range ordered {
		pageLines, err := c.recognizer.Recognize(ctx, page.Path)
		if err != nil {
			log.Warn().Err(err).Str("page", page.name()).Int("index", i).Msg("OCR failed for page, treating as empty")
			continue
		}
		lines = append(lines, pageLines...)
		if text := ocr.JoinLines(pageLines); text != "" {
			texts = append(texts, text)
		}
	}

	fullText := strings.Join(texts, PageSeparator)
	if strings.TrimSpace(fullText) == "" {
		log.Warn().Int("pages", len(pages)).Msg("No text extracted from document")
		return nil, ErrNoText
	}

	log.Info().
		Int("pages", len(pages)).
		Int("lines", len(lines)).
		Int("text_length", len(fullText)).
		Msg("OCR completed")

	outcome := c.extractor.Analyze(ctx, fullText)
	kept, highRisk := clauses.FilterAndEscalate(outcome.Extraction.Clauses)
	ext := outcome.Extraction
	ext.Clauses = kept

	rec := &models.AnalysisRecord{
		ID:              id,
		UserID:          userID,
		Tier:            decision.Tier,
		Extraction:      ext,
		Clauses:         kept,
		HighRiskClauses: highRisk,
		Lines:           lines,
		FullText:        fullText,
		PageCount:       len(pages), // uploaded files, not PDF pages
		CreatedAt:       time.Now(),
	}
	if outcome.Cause != nil {
		rec.Degraded = outcome.Cause.Error()
	}
	rec.ProcessingTime = time.Since(start)

	if err := c.records.Save(ctx, rec); err != nil {
		return nil, WrapPipelineError(op, err, "failed to store analysis")
	}
	stored = true

	if err := c.gate.Commit(ctx, decision, userID, id); err != nil {
		log.Error().Err(err).Msg("Failed to count analysis against grant")
	}

	log.Info().
		Str("tier", string(rec.Tier)).
		Int("risk_score", ext.RiskScore).
		Int("clauses", len(kept)).
		Int("high_risk_clauses", len(highRisk)).
		Bool("degraded", outcome.Degraded()).
		Dur("duration", rec.ProcessingTime).
		Msg("Analysis completed")

	return rec, nil
}

// Report returns the full report of a stored analysis. The owner and any
// user with active paid access may read it.
func (c *Coordinator) Report(ctx context.Context, analysisID, userID string) (models.Report, error) {
	const op = "Report"

	rec, err := c.records.Get(ctx, analysisID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return models.Report{}, ErrRecordNotFound
		}
		return models.Report{}, WrapPipelineError(op, err, "")
	}

	if rec.UserID != userID {
		ok, err := c.gate.HasActiveAccess(ctx, userID)
		if err != nil {
			return models.Report{}, WrapPipelineError(op, err, "access check failed")
		}
		if !ok {
			return models.Report{}, &Denial{
				Reason:  access.ReasonNoAccess,
				Message: "A paid plan is required to view this report.",
			}
		}
	}

	return rec.Report(true), nil
}

func (c *Coordinator) validate(pages []Page) error {
	if len(pages) == 0 {
		return ErrNoPages
	}
	if len(pages) > c.config.MaxPages {
		return fmt.Errorf("%w: %d pages, maximum is %d", ErrTooManyPages, len(pages), c.config.MaxPages)
	}
	for _, p := range pages {
		ext := strings.ToLower(filepath.Ext(p.name()))
		if !slices.Contains(allowedExtensions, ext) {
			return fmt.Errorf("%w: %s", ErrUnsupportedFormat, p.name())
		}
	}
	return nil
}

// release hands every distinct page path to the Releaser once.
func (c *Coordinator) release(pages []Page) {
	seen := make(map[string]bool, len(pages))
	for _, p := range pages {
		if p.Path == "" || seen[p.Path] {
			continue
		}
		seen[p.Path] = true
		if err := c.config.Releaser(p.Path); err != nil {
			c.log.Warn().Err(err).Str("path", p.Path).Msg("Failed to release page file")
		}
	}
}
