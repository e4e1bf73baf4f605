package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"leasecheck/internal/logger"
	"leasecheck/internal/ocr"
	"leasecheck/internal/pipeline"
	"leasecheck/pkg/models"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [page-files...]",
	Short: "Analyze lease pages with OCR and the LLM",
	Long: `Run the full lease analysis on one or more page files (PDF, JPEG or PNG).

Pages are ordered by file name, recognized with Google Cloud OCR, joined and
sent to the LLM for structured extraction. Clauses are filtered and the
money or termination related ones escalated to high risk.

Runs without --user-id are not counted against any quota. With --user-id the
access gate applies as it does for the HTTP endpoint.

Required environment variables:
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string
  DEEPSEEK_API_KEY - LLM API key (without it the regex fallback is used)`,
	Example: `  # Analyze a two page scan
  leasecheck analyze page1.jpg page2.jpg

  # Full JSON report to a file
  leasecheck analyze lease.pdf --json -o report.json

  # Count the run against a user's quota
  leasecheck analyze lease.pdf --user-id alice@example.com`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().String("user-id", operatorUser, "User the analysis is admitted for")
	analyzeCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	analyzeCmd.Flags().Bool("json", false, "Output the full report as JSON")
	analyzeCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("analyze")

	userID, _ := cmd.Flags().GetString("user-id")
	outputPath, _ := cmd.Flags().GetString("output")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	var bypass []string
	if !cmd.Flags().Changed("user-id") {
		bypass = []string{operatorUser}
	}

	pages, err := collectPages(args)
	if err != nil {
		return err
	}

	log.Info().
		Int("pages", len(pages)).
		Str("user_id", userID).
		Bool("json", jsonOutput).
		Int("timeout", timeoutSecs).
		Msg("Starting lease analysis")

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(time.Duration(timeoutSecs)*time.Second, log)
	defer cancel()

	st, err := buildStack(ctx, cfg, stackOptions{withOCR: true, releaser: pipeline.KeepFile, bypass: bypass}, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close clients")
		}
	}()

	rec, err := st.coordinator.Analyze(ctx, pages, userID)
	if err != nil {
		return handleAnalyzeError(err, log)
	}

	report := rec.Report(true)
	var data []byte
	if jsonOutput {
		data, err = json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
	} else {
		data = []byte(formatReport(report, rec.Degraded))
	}

	return writeOutput(outputPath, data, log)
}

// collectPages checks that every argument is a readable regular file.
func collectPages(paths []string) ([]pipeline.Page, error) {
	pages := make([]pipeline.Page, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("page file not found: %s", p)
			}
			return nil, fmt.Errorf("error accessing page file: %w", err)
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("path is not a regular file: %s", p)
		}
		pages = append(pages, pipeline.Page{Path: p})
	}
	return pages, nil
}

// handleAnalyzeError turns pipeline failures into messages for the terminal.
func handleAnalyzeError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Lease analysis failed")

	var denial *pipeline.Denial
	switch {
	case errors.As(err, &denial):
		return fmt.Errorf("analysis not allowed: %s", denial.Message)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("analysis timed out. Try increasing --timeout or sending fewer pages")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("analysis was canceled")
	case errors.Is(err, pipeline.ErrTooManyPages):
		return fmt.Errorf("too many pages: %w", err)
	case errors.Is(err, pipeline.ErrUnsupportedFormat):
		return fmt.Errorf("only PDF, JPEG and PNG pages are supported: %w", err)
	case errors.Is(err, pipeline.ErrNoText):
		return fmt.Errorf("no readable text found in the pages. Check the scan quality")
	case errors.Is(err, ocr.ErrMissingCredentials):
		return fmt.Errorf("Google Cloud credentials not configured. Set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS: %w", err)
	default:
		return fmt.Errorf("analysis failed: %w", err)
	}
}

// formatReport renders a report for the terminal.
func formatReport(r models.Report, degraded string) string {
	var b strings.Builder

	b.WriteString(strings.Repeat("=", 60) + "\n")
	b.WriteString("                 LEASE ANALYSIS\n")
	b.WriteString(strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(&b, "Analysis ID: %s\n", r.AnalysisID)
	fmt.Fprintf(&b, "Pages: %d (%.1fs)\n", r.PageCount, r.ProcessingTime)
	if degraded != "" {
		fmt.Fprintf(&b, "Note: structured analysis degraded (%s)\n", degraded)
	}
	b.WriteString("\n")

	k := r.KeyInfo
	fmt.Fprintf(&b, "Landlord:   %s\n", orDash(k.Landlord))
	fmt.Fprintf(&b, "Tenant:     %s\n", orDash(k.Tenant))
	fmt.Fprintf(&b, "Rent:       %s\n", orDash(k.Rent))
	fmt.Fprintf(&b, "Deposit:    %s\n", orDash(k.Deposit))
	if k.TermMonths != nil {
		fmt.Fprintf(&b, "Term:       %d months\n", *k.TermMonths)
	} else {
		b.WriteString("Term:       -\n")
	}
	fmt.Fprintf(&b, "Start/End:  %s / %s\n", orDash(k.StartDate), orDash(k.EndDate))
	b.WriteString("\n")

	fmt.Fprintf(&b, "Risk: %d (%s)\n", r.RiskScore, r.RiskLevel)
	if r.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", r.Summary)
	}
	writeList(&b, "Red flags", r.RedFlags)
	writeList(&b, "Negotiation tips", r.NegotiationTips)

	fmt.Fprintf(&b, "\nClauses: %d, high risk: %d\n", r.TotalClauses, len(r.HighRiskClauses))
	for _, c := range r.HighRiskClauses {
		fmt.Fprintf(&b, "  [%s] %s %s\n", c.Category, c.Number, c.Title)
		if c.SummaryZH != "" {
			fmt.Fprintf(&b, "      %s\n", c.SummaryZH)
		}
	}
	b.WriteString(strings.Repeat("=", 60) + "\n")

	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "  - %s\n", item)
	}
}

func orDash(p *string) string {
	if p == nil || *p == "" {
		return "-"
	}
	return *p
}
