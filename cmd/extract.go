package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"leasecheck/internal/clauses"
	"leasecheck/internal/extraction"
	"leasecheck/internal/logger"
	"leasecheck/internal/recovery"
	"leasecheck/pkg/models"
)

var extractCmd = &cobra.Command{
	Use:   "extract [text-file]",
	Short: "Run the LLM extraction on already recognized lease text",
	Long: `Run only the extraction stage on a plain text file, skipping OCR and the
access gate. Useful for checking prompts and the fallback extractor.

Optional environment variables:
  DEEPSEEK_API_KEY - LLM API key (without it the regex fallback is used)`,
	Example: `  leasecheck extract lease.txt
  leasecheck extract lease.txt -o extraction.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

// ExtractOutput is the JSON written by the extract command.
type ExtractOutput struct {
	Extraction      models.LeaseExtraction `json:"extraction"`
	Clauses         []models.Clause        `json:"clauses"`
	HighRiskClauses []models.Clause        `json:"high_risk_clauses"`
	Degraded        string                 `json:"degraded,omitempty"`
	Stage           string                 `json:"recovery_stage,omitempty"`
	FallbackFields  []string               `json:"fallback_fields,omitempty"`
	SchemaWarnings  []string               `json:"schema_warnings,omitempty"`
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	extractCmd.Flags().Int("timeout", 120, "Processing timeout in seconds")
}

func runExtract(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("extract")

	outputPath, _ := cmd.Flags().GetString("output")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read text file: %w", err)
	}
	text := string(raw)
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("text file is empty: %s", args[0])
	}

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(time.Duration(timeoutSecs)*time.Second, log)
	defer cancel()

	extractor := extraction.NewService(buildCompleter(cfg, log), extraction.Config{
		Temperature:  cfg.LLMTemperature,
		MaxTokens:    cfg.LLMMaxTokens,
		PromptBudget: cfg.LLMPromptBudget,
	})

	out := extractText(ctx, extractor, text)
	if out.Degraded != "" {
		log.Warn().Str("cause", out.Degraded).Msg("Extraction degraded to defaults")
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to create JSON output: %w", err)
	}
	return writeOutput(outputPath, data, log)
}

func extractText(ctx context.Context, extractor *extraction.Service, text string) ExtractOutput {
	outcome := extractor.Analyze(ctx, text)
	kept, highRisk := clauses.FilterAndEscalate(outcome.Extraction.Clauses)

	out := ExtractOutput{
		Extraction:      outcome.Extraction,
		Clauses:         kept,
		HighRiskClauses: highRisk,
		FallbackFields:  outcome.FallbackFields,
		SchemaWarnings:  outcome.SchemaWarnings,
	}
	if outcome.Stage != recovery.StageNone {
		out.Stage = outcome.Stage.String()
	}
	if outcome.Degraded() {
		out.Degraded = outcome.Cause.Error()
	}
	if out.Clauses == nil {
		out.Clauses = []models.Clause{}
	}
	if out.HighRiskClauses == nil {
		out.HighRiskClauses = []models.Clause{}
	}
	return out
}
