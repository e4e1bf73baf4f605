// Package config loads settings from the environment, optionally seeded from
// a YAML file named by LEASECHECK_CONFIG. Environment values win.
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"leasecheck/internal/logger"
)

// FileEnv names the optional YAML file.
const FileEnv = "LEASECHECK_CONFIG"

type Config struct {
	// LLM Configuration
	DeepSeekAPIKey  string
	DeepSeekBaseURL string
	DeepSeekModel   string
	LLMTemperature  float32
	LLMMaxTokens    int
	LLMPromptBudget int

	// OCR Configuration
	OCRProvider                  string
	GoogleCredentials            string
	GoogleApplicationCredentials string
	GoogleCloudProject           string
	GoogleCloudLocation          string
	DocumentAIProcessorID        string

	// Server and storage
	ServerAddr   string
	StoreBackend string
	DatabaseURL  string
	RateBackend  string
	RedisURL     string

	// Access gate and pipeline
	LeaseLimit    int
	MaxPages      int
	MaxRecords    int
	AdmissionMode string
	BypassUsers   []string

	// Quick clause preview
	QuickUserLimit    int
	QuickIPLimit      int
	QuickWindow       time.Duration
	QuickMaxChars     int
	QuickHistoryLimit int

	// Billing
	PaddleWebhookSecret  string
	PaddleAPIKey         string
	PaddleVendorID       string
	PaddleEnv            string
	PaddlePriceID        string
	PaddleMonthlyPriceID string
	PaddleYearlyPriceID  string
	FrontendURL          string
	AdminJWTSecret       string

	// Google Sheets Configuration
	GoogleSheetURL       string
	GoogleSheetWorksheet string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

// source resolves keys from the environment, then the YAML file.
type source struct {
	file map[string]string
	errs []string
}

func newSource() (*source, error) {
	s := &source{file: map[string]string{}}

	path := os.Getenv(FileEnv)
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for k, v := range raw {
		s.file[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return s, nil
}

func (s *source) getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if value, ok := s.file[key]; ok && value != "" {
		return value
	}
	return defaultValue
}

func (s *source) getInt(key string, defaultValue int) int {
	raw := s.getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		s.errs = append(s.errs, fmt.Sprintf("%s must be an integer, got %q", key, raw))
		return defaultValue
	}
	return n
}

func (s *source) getFloat(key string, defaultValue float32) float32 {
	raw := s.getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 32)
	if err != nil {
		s.errs = append(s.errs, fmt.Sprintf("%s must be a number, got %q", key, raw))
		return defaultValue
	}
	return float32(f)
}

func (s *source) getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := s.getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		s.errs = append(s.errs, fmt.Sprintf("%s must be a duration, got %q", key, raw))
		return defaultValue
	}
	return d
}

func (s *source) getList(key string) []string {
	var out []string
	for _, part := range strings.Split(s.getEnv(key, ""), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func Load() (*Config, error) {
	src, err := newSource()
	if err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}

	config := &Config{
		DeepSeekAPIKey:  src.getEnv("DEEPSEEK_API_KEY", ""),
		DeepSeekBaseURL: src.getEnv("DEEPSEEK_BASE_URL", "https://api.deepseek.com/v1"),
		DeepSeekModel:   src.getEnv("DEEPSEEK_MODEL", "deepseek-chat"),
		LLMTemperature:  src.getFloat("LLM_TEMPERATURE", 0.1),
		LLMMaxTokens:    src.getInt("LLM_MAX_TOKENS", 3000),
		LLMPromptBudget: src.getInt("LLM_PROMPT_BUDGET", 7500),

		OCRProvider:                  strings.ToLower(src.getEnv("OCR_PROVIDER", "vision")),
		GoogleCredentials:            src.getEnv("GOOGLE_CREDENTIALS", ""),
		GoogleApplicationCredentials: src.getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		GoogleCloudProject:           src.getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GoogleCloudLocation:          src.getEnv("GOOGLE_CLOUD_LOCATION", "us"),
		DocumentAIProcessorID:        src.getEnv("DOCUMENT_AI_PROCESSOR_ID", ""),

		ServerAddr:   src.getEnv("SERVER_ADDR", ":8000"),
		StoreBackend: strings.ToLower(src.getEnv("STORE_BACKEND", "memory")),
		DatabaseURL:  src.getEnv("DATABASE_URL", ""),
		RateBackend:  strings.ToLower(src.getEnv("RATE_BACKEND", "memory")),
		RedisURL:     src.getEnv("REDIS_URL", ""),

		LeaseLimit:    src.getInt("LEASE_LIMIT", 5),
		MaxPages:      src.getInt("MAX_PAGES", 40),
		MaxRecords:    src.getInt("MAX_RECORDS", 1000),
		AdmissionMode: strings.ToLower(src.getEnv("ADMISSION_MODE", "reserve")),
		BypassUsers:   src.getList("BYPASS_USERS"),

		QuickUserLimit:    src.getInt("QUICK_USER_LIMIT", 3),
		QuickIPLimit:      src.getInt("QUICK_IP_LIMIT", 20),
		QuickWindow:       src.getDuration("QUICK_WINDOW", 24*time.Hour),
		QuickMaxChars:     src.getInt("QUICK_MAX_CHARS", 250),
		QuickHistoryLimit: src.getInt("QUICK_HISTORY_LIMIT", 3),

		PaddleWebhookSecret:  src.getEnv("PADDLE_WEBHOOK_SECRET", ""),
		PaddleAPIKey:         src.getEnv("PADDLE_API_KEY", ""),
		PaddleVendorID:       src.getEnv("PADDLE_VENDOR_ID", ""),
		PaddleEnv:            src.getEnv("PADDLE_ENV", "sandbox"),
		PaddlePriceID:        src.getEnv("PADDLE_PRICE_ID", ""),
		PaddleMonthlyPriceID: src.getEnv("PADDLE_MONTHLY_PRICE_ID", ""),
		PaddleYearlyPriceID:  src.getEnv("PADDLE_YEARLY_PRICE_ID", ""),
		FrontendURL:          strings.TrimRight(src.getEnv("FRONTEND_URL", "https://qiyoga.xyz"), "/"),
		AdminJWTSecret:       src.getEnv("ADMIN_JWT_SECRET", ""),

		GoogleSheetURL:       src.getEnv("GOOGLE_SHEET_URL", ""),
		GoogleSheetWorksheet: src.getEnv("GOOGLE_SHEET_WORKSHEET", "Leases"),

		LogLevel:      src.getEnv("LOG_LEVEL", "info"),
		LogFormat:     src.getEnv("LOG_FORMAT", "console"),
		LogTimeFormat: src.getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:     src.getEnv("LOG_OUTPUT", "stdout"),
	}

	if len(src.errs) > 0 {
		return nil, fmt.Errorf("config validation failed: %s", strings.Join(src.errs, "; "))
	}
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	if !slices.Contains([]string{"vision", "documentai"}, c.OCRProvider) {
		return fmt.Errorf("OCR_PROVIDER must be vision or documentai, got %q", c.OCRProvider)
	}
	if c.OCRProvider == "documentai" && (c.GoogleCloudProject == "" || c.DocumentAIProcessorID == "") {
		return fmt.Errorf("GOOGLE_CLOUD_PROJECT and DOCUMENT_AI_PROCESSOR_ID are required for documentai")
	}
	if !slices.Contains([]string{"memory", "postgres"}, c.StoreBackend) {
		return fmt.Errorf("STORE_BACKEND must be memory or postgres, got %q", c.StoreBackend)
	}
	if c.StoreBackend == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for the postgres store")
	}
	if !slices.Contains([]string{"memory", "redis"}, c.RateBackend) {
		return fmt.Errorf("RATE_BACKEND must be memory or redis, got %q", c.RateBackend)
	}
	if c.RateBackend == "redis" && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required for the redis rate backend")
	}
	if !slices.Contains([]string{"reserve", "check-then-act"}, c.AdmissionMode) {
		return fmt.Errorf("ADMISSION_MODE must be reserve or check-then-act, got %q", c.AdmissionMode)
	}
	if !slices.Contains([]string{"sandbox", "live", "production"}, c.PaddleEnv) {
		return fmt.Errorf("PADDLE_ENV must be sandbox or live, got %q", c.PaddleEnv)
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be between 0 and 2, got %v", c.LLMTemperature)
	}

	positive := []struct {
		key   string
		value int
	}{
		{"LLM_MAX_TOKENS", c.LLMMaxTokens},
		{"LLM_PROMPT_BUDGET", c.LLMPromptBudget},
		{"LEASE_LIMIT", c.LeaseLimit},
		{"MAX_PAGES", c.MaxPages},
		{"MAX_RECORDS", c.MaxRecords},
		{"QUICK_USER_LIMIT", c.QuickUserLimit},
		{"QUICK_IP_LIMIT", c.QuickIPLimit},
		{"QUICK_MAX_CHARS", c.QuickMaxChars},
		{"QUICK_HISTORY_LIMIT", c.QuickHistoryLimit},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.key, p.value)
		}
	}
	if c.QuickWindow <= 0 {
		return fmt.Errorf("QUICK_WINDOW must be positive, got %s", c.QuickWindow)
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}
