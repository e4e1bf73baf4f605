package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"leasecheck/internal/logger"
	"leasecheck/internal/preview"
)

var previewCmd = &cobra.Command{
	Use:   "preview [clause]",
	Short: "Quick keyword risk read of a single clause",
	Long: `Classify one lease clause with the keyword rules used by the quick
preview endpoint and print the explanation. When DEEPSEEK_API_KEY is set a
Chinese explanation is added. The local command is not rate limited.`,
	Example: `  leasecheck preview "Tenant responsible for all repairs regardless of fault."
  leasecheck preview "A late fee of 50 dollars applies after the 5th." --json`,
	Args: cobra.ExactArgs(1),
	RunE: runPreview,
}

// PreviewOutput is the JSON written by the preview command.
type PreviewOutput struct {
	ClauseText    string       `json:"clause_text"`
	RiskLevel     string       `json:"risk_level"`
	ExplanationEN string       `json:"explanation_en"`
	ExplanationZH string       `json:"explanation_zh"`
	Risk          preview.Risk `json:"risk"`
	Analysis      string       `json:"analysis"`
	Suggestion    string       `json:"suggestion"`
}

func init() {
	rootCmd.AddCommand(previewCmd)

	previewCmd.Flags().Bool("json", false, "Output as JSON")
	previewCmd.Flags().Bool("no-llm", false, "Skip the Chinese explanation")
}

func runPreview(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("preview")

	jsonOutput, _ := cmd.Flags().GetBool("json")
	noLLM, _ := cmd.Flags().GetBool("no-llm")

	clause := strings.TrimSpace(args[0])
	if clause == "" {
		return fmt.Errorf("clause must not be empty")
	}

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	if n := len([]rune(clause)); n > cfg.QuickMaxChars {
		return fmt.Errorf("clause is too long (%d of %d characters). Use 'leasecheck extract' for full text", n, cfg.QuickMaxChars)
	}

	assessment := preview.Assess(clause)
	out := PreviewOutput{
		ClauseText:    clause,
		RiskLevel:     assessment.Risk.Display(),
		ExplanationEN: preview.ShortExplanation(clause, assessment.Risk),
		Risk:          assessment.Risk,
		Analysis:      assessment.Analysis,
		Suggestion:    assessment.Suggestion,
	}

	if !noLLM {
		ctx, cancel := createContextWithTimeout(60*time.Second, log)
		defer cancel()
		out.ExplanationZH = preview.NewExplainer(buildCompleter(cfg, log)).Explain(ctx, out.ExplanationEN)
	}

	if jsonOutput {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		return writeOutput("", data, log)
	}

	fmt.Printf("Risk: %s\n", out.RiskLevel)
	fmt.Printf("%s\n", out.ExplanationEN)
	if out.ExplanationZH != "" {
		fmt.Printf("%s\n", out.ExplanationZH)
	}
	fmt.Printf("\nAnalysis: %s\n", out.Analysis)
	fmt.Printf("Suggestion: %s\n", out.Suggestion)
	return nil
}
