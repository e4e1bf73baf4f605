package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"leasecheck/internal/access"
	"leasecheck/internal/billing"
	"leasecheck/internal/config"
	"leasecheck/internal/extraction"
	"leasecheck/internal/llm"
	"leasecheck/internal/ocr"
	"leasecheck/internal/pipeline"
	"leasecheck/internal/preview"
)

// operatorUser is the identity of CLI runs that do not name a user. It is
// admitted without consuming quota.
const operatorUser = "operator"

// stack holds the services built from configuration.
type stack struct {
	cfg         *config.Config
	extractor   *extraction.Service
	completer   llm.Completer
	gate        *access.Gate
	coordinator *pipeline.Coordinator
	preview     *preview.Service
	billing     *billing.Service

	closers []func() error
	log     zerolog.Logger
}

type stackOptions struct {
	// withOCR builds the recognizer and the coordinator.
	withOCR bool
	// withPreview builds the rate-limited preview service.
	withPreview bool
	releaser    pipeline.Releaser
	bypass      []string
}

// Close releases every client in reverse construction order.
func (s *stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildStack(ctx context.Context, cfg *config.Config, opts stackOptions, log zerolog.Logger) (*stack, error) {
	s := &stack{cfg: cfg, log: log}

	s.completer = buildCompleter(cfg, log)
	s.extractor = extraction.NewService(s.completer, extraction.Config{
		Temperature:  cfg.LLMTemperature,
		MaxTokens:    cfg.LLMMaxTokens,
		PromptBudget: cfg.LLMPromptBudget,
	})

	if err := s.buildGate(ctx, opts.bypass); err != nil {
		s.Close()
		return nil, err
	}

	if opts.withOCR {
		recognizer, closeOCR, err := ocr.New(ctx, ocr.Config{
			Provider:        ocr.Provider(cfg.OCRProvider),
			CredentialsJSON: cfg.GoogleCredentials,
			CredentialsFile: cfg.GoogleApplicationCredentials,
			ProjectID:       cfg.GoogleCloudProject,
			Location:        cfg.GoogleCloudLocation,
			ProcessorID:     cfg.DocumentAIProcessorID,
		})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create OCR backend: %w", err)
		}
		s.closers = append(s.closers, closeOCR)

		s.coordinator = pipeline.NewCoordinator(recognizer, s.extractor, s.gate,
			pipeline.NewMemoryRecordStore(cfg.MaxRecords),
			pipeline.Config{MaxPages: cfg.MaxPages, Releaser: opts.releaser})
	}

	if opts.withPreview {
		limiter, err := s.buildLimiter()
		if err != nil {
			s.Close()
			return nil, err
		}
		s.preview = preview.NewService(limiter, preview.NewExplainer(s.completer), preview.Config{
			MaxChars:     cfg.QuickMaxChars,
			HistoryLimit: cfg.QuickHistoryLimit,
			DailyLimit:   cfg.QuickUserLimit,
		})
	}

	s.billing = billing.NewService(s.gate, billing.NewMemoryPendingStore(), billing.Config{
		WebhookSecret:  cfg.PaddleWebhookSecret,
		APIKey:         cfg.PaddleAPIKey,
		VendorID:       cfg.PaddleVendorID,
		PriceID:        cfg.PaddlePriceID,
		Environment:    cfg.PaddleEnv,
		FrontendURL:    cfg.FrontendURL,
		MonthlyPriceID: cfg.PaddleMonthlyPriceID,
		YearlyPriceID:  cfg.PaddleYearlyPriceID,
	})

	return s, nil
}

// buildCompleter returns nil when no API key is configured so extraction
// degrades instead of failing.
func buildCompleter(cfg *config.Config, log zerolog.Logger) llm.Completer {
	client, err := llm.NewChatClient(llm.Config{
		APIKey:  cfg.DeepSeekAPIKey,
		BaseURL: cfg.DeepSeekBaseURL,
		Model:   cfg.DeepSeekModel,
	})
	if err != nil {
		log.Warn().Err(err).Msg("LLM backend unavailable, analyses will use fallback extraction")
		return nil
	}
	return client
}

func (s *stack) buildGate(ctx context.Context, extraBypass []string) error {
	mode, err := access.ParseAdmissionMode(s.cfg.AdmissionMode)
	if err != nil {
		return err
	}
	gateCfg := access.Config{
		LeaseLimit:  s.cfg.LeaseLimit,
		Mode:        mode,
		BypassUsers: append(append([]string{}, s.cfg.BypassUsers...), extraBypass...),
	}

	switch s.cfg.StoreBackend {
	case "postgres":
		store, err := access.NewPostgresStore(ctx, s.cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		s.closers = append(s.closers, func() error { store.Close(); return nil })
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to prepare access schema: %w", err)
		}
		s.gate = access.NewGate(store, store, gateCfg)
	default:
		store := access.NewMemoryStore()
		s.gate = access.NewGate(store, store, gateCfg)
	}

	s.log.Debug().
		Str("store", s.cfg.StoreBackend).
		Str("mode", string(mode)).
		Int("lease_limit", s.gate.LeaseLimit()).
		Msg("Access gate ready")
	return nil
}

func (s *stack) buildLimiter() (*access.Limiter, error) {
	var store access.WindowStore
	switch s.cfg.RateBackend {
	case "redis":
		rs, err := access.NewRedisWindowStore(s.cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		s.closers = append(s.closers, rs.Close)
		store = rs
	default:
		store = access.NewMemoryWindowStore()
	}

	return access.NewLimiter(store, access.LimiterConfig{
		UserLimit: s.cfg.QuickUserLimit,
		IPLimit:   s.cfg.QuickIPLimit,
		Window:    s.cfg.QuickWindow,
	}), nil
}
