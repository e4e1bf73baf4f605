package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"leasecheck/internal/logger"
	"leasecheck/internal/pipeline"
	"leasecheck/internal/sheets"
)

var batchCmd = &cobra.Command{
	Use:   "batch [folder-path]",
	Short: "Analyze every lease in a folder and write a summary to Google Sheets",
	Long: `Analyze all leases in a folder and append one summary row per lease to a
Google Sheet.

Every subdirectory is treated as one multi-page lease. Page files directly
inside the folder are treated as one-page leases.

Required environment variables:
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string
  DEEPSEEK_API_KEY - LLM API key
  GOOGLE_SHEET_URL - Google Sheets URL to write results (or --sheet-url)

Optional environment variables:
  GOOGLE_SHEET_WORKSHEET - Worksheet name (default: Leases)`,
	Example: `  # Analyze and write to the configured sheet
  leasecheck batch ./leases

  # Dry run with 8 workers
  leasecheck batch ./leases --dry-run --workers 8`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

// leaseJob is one lease to analyze.
type leaseJob struct {
	Name  string
	Pages []pipeline.Page
	Index int
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().String("sheet-url", "", "Google Sheets URL (default: GOOGLE_SHEET_URL)")
	batchCmd.Flags().String("worksheet", "", "Worksheet name (default: GOOGLE_SHEET_WORKSHEET)")
	batchCmd.Flags().Bool("dry-run", false, "Analyze leases but don't write to Google Sheet")
	batchCmd.Flags().Int("workers", 4, "Number of parallel workers")
	batchCmd.Flags().Int("timeout", 30, "Overall timeout in minutes")
}

func runBatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("batch")

	folderPath := args[0]
	sheetURL, _ := cmd.Flags().GetString("sheet-url")
	worksheet, _ := cmd.Flags().GetString("worksheet")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	numWorkers, _ := cmd.Flags().GetInt("workers")
	timeoutMins, _ := cmd.Flags().GetInt("timeout")

	if numWorkers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", numWorkers)
	}

	folderInfo, err := os.Stat(folderPath)
	if err != nil {
		return fmt.Errorf("folder not found: %s", folderPath)
	}
	if !folderInfo.IsDir() {
		return fmt.Errorf("path is not a directory: %s", folderPath)
	}

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	if sheetURL == "" {
		sheetURL = cfg.GoogleSheetURL
	}
	if worksheet == "" {
		worksheet = cfg.GoogleSheetWorksheet
	}
	if !dryRun && sheetURL == "" {
		return fmt.Errorf("GOOGLE_SHEET_URL environment variable or --sheet-url is required")
	}

	jobs, err := findLeases(folderPath)
	if err != nil {
		return fmt.Errorf("failed to find leases: %w", err)
	}
	if len(jobs) == 0 {
		fmt.Println("No lease pages found in folder.")
		return nil
	}

	log.Info().
		Str("folder", folderPath).
		Int("leases", len(jobs)).
		Int("workers", numWorkers).
		Bool("dry_run", dryRun).
		Msg("Starting batch analysis")

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("                         LEASE BATCH ANALYSIS")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Folder: %s\n", folderPath)
	if dryRun {
		fmt.Println("Mode: Dry Run (no Google Sheets update)")
	}
	fmt.Printf("Analyzing %d leases with %d parallel workers...\n\n", len(jobs), numWorkers)

	ctx, cancel := createContextWithTimeout(time.Duration(timeoutMins)*time.Minute, log)
	defer cancel()

	st, err := buildStack(ctx, cfg, stackOptions{
		withOCR:  true,
		releaser: pipeline.KeepFile,
		bypass:   []string{operatorUser},
	}, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close clients")
		}
	}()

	results := analyzeInParallel(ctx, jobs, st.coordinator, numWorkers, log)

	counts := map[string]int{}
	for _, r := range results {
		counts[r.Status()]++
	}

	fmt.Println()
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("                 RESULT")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Succeeded: %d\n", counts["ok"])
	if counts["degraded"] > 0 {
		fmt.Printf("Degraded: %d\n", counts["degraded"])
	}
	if counts["error"] > 0 {
		fmt.Printf("Failed: %d\n", counts["error"])
	}
	fmt.Println()

	if !dryRun {
		fmt.Println("Writing rows to Google Sheet...")

		sheetsService, err := sheets.NewSheetsService(ctx, sheetURL, sheets.Credentials{
			JSON: cfg.GoogleCredentials,
			File: cfg.GoogleApplicationCredentials,
		})
		if err != nil {
			return fmt.Errorf("failed to create Google Sheets service: %w", err)
		}
		if err := sheetsService.WriteBatchResults(ctx, results, worksheet); err != nil {
			return fmt.Errorf("failed to write to Google Sheet: %w", err)
		}

		fmt.Printf("Sheet: %s\n", worksheet)
		fmt.Printf("Rows added: %d\n", len(results))
		fmt.Printf("URL: %s\n", sheetURL)
	}

	fmt.Println(strings.Repeat("=", 80))

	log.Info().
		Int("total", len(results)).
		Int("ok", counts["ok"]).
		Int("degraded", counts["degraded"]).
		Int("errors", counts["error"]).
		Msg("Batch analysis completed")

	return nil
}

// findLeases groups the folder contents into leases. Hidden entries and files
// with other extensions are skipped.
func findLeases(folderPath string) ([]leaseJob, error) {
	entries, err := os.ReadDir(folderPath)
	if err != nil {
		return nil, err
	}

	var jobs []leaseJob
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(folderPath, e.Name())

		if !e.IsDir() {
			if isPageFile(e.Name()) {
				jobs = append(jobs, leaseJob{Name: e.Name(), Pages: []pipeline.Page{{Path: path}}})
			}
			continue
		}

		var pages []pipeline.Page
		err := filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isPageFile(d.Name()) {
				pages = append(pages, pipeline.Page{Path: p})
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if len(pages) > 0 {
			jobs = append(jobs, leaseJob{Name: e.Name(), Pages: pages})
		}
	}

	for i := range jobs {
		jobs[i].Index = i
	}
	return jobs, nil
}

func isPageFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return slices.Contains([]string{".pdf", ".jpg", ".jpeg", ".png"}, ext)
}

// analyzeInParallel runs the coordinator over jobs using a worker pool.
// Results keep the order of jobs.
func analyzeInParallel(ctx context.Context, jobs []leaseJob, coordinator *pipeline.Coordinator, numWorkers int, log zerolog.Logger) []sheets.BatchResult {
	queue := make(chan leaseJob, len(jobs))
	results := make([]sheets.BatchResult, len(jobs))

	var processedCount int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for job := range queue {
				log.Debug().
					Int("worker", workerID).
					Str("lease", job.Name).
					Int("pages", len(job.Pages)).
					Msg("Worker analyzing lease")

				rec, err := coordinator.Analyze(ctx, job.Pages, operatorUser)
				result := sheets.BatchResult{Name: job.Name, Record: rec, Err: err}
				results[job.Index] = result

				mu.Lock()
				processedCount++
				fmt.Printf("[%d/%d] %s - %s", processedCount, len(jobs), job.Name, result.Status())
				if err != nil {
					fmt.Printf(" (%s)", err.Error())
				} else if rec != nil {
					fmt.Printf(" (risk %d, %s)", rec.Extraction.RiskScore, rec.Extraction.RiskLevel)
				}
				fmt.Println()
				mu.Unlock()
			}
		}(w)
	}

	for _, job := range jobs {
		queue <- job
	}
	close(queue)

	wg.Wait()
	return results
}
