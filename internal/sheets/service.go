// Package sheets appends lease analysis summaries to a Google Sheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"leasecheck/internal/logger"
	"leasecheck/pkg/models"
)

// DefaultWorksheet is the tab written when none is given.
const DefaultWorksheet = "Leases"

// ErrInvalidSheetURL is returned for URLs without a spreadsheet id.
var ErrInvalidSheetURL = errors.New("invalid Google Sheets URL format")

// Headers are the column titles, A to Q.
var Headers = []string{
	"Lease", "Analysis ID", "Landlord", "Tenant", "Rent",
	"Deposit", "Term (months)", "Start", "End", "Risk Score",
	"Risk Level", "Clauses", "High-Risk Clauses", "Red Flags", "Summary",
	"Status", "Processed At",
}

// lastColumn is the letter of the final header column.
var lastColumn = string(rune('A' + len(Headers) - 1))

// Credentials locate the service account key. File wins over JSON.
type Credentials struct {
	JSON string
	File string
}

func (c Credentials) load() ([]byte, error) {
	if c.File != "" {
		return os.ReadFile(c.File)
	}
	if c.JSON != "" {
		return []byte(c.JSON), nil
	}
	return nil, errors.New("neither GOOGLE_APPLICATION_CREDENTIALS nor GOOGLE_CREDENTIALS is set")
}

// Service handles Google Sheets operations
type Service struct {
	sheetsService *sheets.Service
	spreadsheetID string
	log           zerolog.Logger
}

// BatchResult is the outcome of analyzing one lease.
type BatchResult struct {
	Name   string
	Record *models.AnalysisRecord
	Err    error
}

// Status is "ok", "degraded" or "error".
func (r BatchResult) Status() string {
	switch {
	case r.Err != nil || r.Record == nil:
		return "error"
	case r.Record.Degraded != "":
		return "degraded"
	default:
		return "ok"
	}
}

// NewSheetsService creates a new Google Sheets service
func NewSheetsService(ctx context.Context, sheetURL string, creds Credentials) (*Service, error) {
	const op = "NewSheetsService"

	log := logger.WithComponent("sheets")

	spreadsheetID, err := ExtractSpreadsheetID(sheetURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Debug().Str("spreadsheet_id", spreadsheetID).Msg("Extracted spreadsheet ID")

	raw, err := creds.load()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read credentials: %w", op, err)
	}

	config, err := google.JWTConfigFromJSON(raw, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse credentials: %w", op, err)
	}

	sheetsService, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create sheets service: %w", op, err)
	}

	return &Service{
		sheetsService: sheetsService,
		spreadsheetID: spreadsheetID,
		log:           log,
	}, nil
}

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// ExtractSpreadsheetID extracts the spreadsheet ID from a Google Sheets URL
func ExtractSpreadsheetID(url string) (string, error) {
	matches := spreadsheetIDPattern.FindStringSubmatch(url)
	if len(matches) < 2 {
		return "", ErrInvalidSheetURL
	}
	return matches[1], nil
}

// WriteBatchResults appends one row per result to the named worksheet,
// creating the tab and its header row when missing.
func (s *Service) WriteBatchResults(ctx context.Context, results []BatchResult, sheetName string) error {
	const op = "WriteBatchResults"

	if sheetName == "" {
		sheetName = DefaultWorksheet
	}

	s.log.Info().
		Str("sheet", sheetName).
		Int("rows", len(results)).
		Msg("Writing batch results to Google Sheet")

	if err := s.ensureSheetWithHeaders(ctx, sheetName); err != nil {
		return fmt.Errorf("%s: failed to ensure sheet exists: %w", op, err)
	}

	values := Rows(results, time.Now())

	_, err := s.sheetsService.Spreadsheets.Values.Append(
		s.spreadsheetID,
		fmt.Sprintf("%s!A:%s", sheetName, lastColumn),
		&sheets.ValueRange{Values: values},
	).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to append values to sheet: %w", op, err)
	}

	s.log.Info().
		Int("rows_written", len(values)).
		Msg("Successfully wrote batch results to Google Sheet")

	return nil
}

// Rows converts results into sheet rows stamped with processedAt.
func Rows(results []BatchResult, processedAt time.Time) [][]interface{} {
	stamp := processedAt.Format("2006-01-02 15:04:05")
	values := make([][]interface{}, 0, len(results))
	for _, r := range results {
		values = append(values, row(r, stamp))
	}
	return values
}

func row(r BatchResult, stamp string) []interface{} {
	if r.Err != nil || r.Record == nil {
		msg := "no analysis"
		if r.Err != nil {
			msg = r.Err.Error()
		}
		out := make([]interface{}, len(Headers))
		for i := range out {
			out[i] = ""
		}
		out[0] = r.Name
		out[14] = "Error: " + msg
		out[15] = r.Status()
		out[16] = stamp
		return out
	}

	rec := r.Record
	ext := rec.Extraction
	term := ""
	if ext.TermMonths != nil {
		term = strconv.Itoa(*ext.TermMonths)
	}

	return []interface{}{
		r.Name,                           // A: Lease
		rec.ID,                           // B: Analysis ID
		deref(ext.Landlord),              // C: Landlord
		deref(ext.Tenant),                // D: Tenant
		deref(ext.Rent),                  // E: Rent
		deref(ext.Deposit),               // F: Deposit
		term,                             // G: Term (months)
		deref(ext.StartDate),             // H: Start
		deref(ext.EndDate),               // I: End
		ext.RiskScore,                    // J: Risk Score
		string(ext.RiskLevel),            // K: Risk Level
		len(rec.Clauses),                 // L: Clauses
		len(rec.HighRiskClauses),         // M: High-Risk Clauses
		strings.Join(ext.RedFlags, "; "), // N: Red Flags
		ext.Summary,                      // O: Summary
		r.Status(),                       // P: Status
		stamp,                            // Q: Processed At
	}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// ensureSheetWithHeaders ensures the sheet exists and has proper headers
func (s *Service) ensureSheetWithHeaders(ctx context.Context, sheetName string) error {
	const op = "ensureSheetWithHeaders"

	spreadsheet, err := s.sheetsService.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to get spreadsheet: %w", op, err)
	}

	var sheetExists bool
	var sheetID int64
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties.Title == sheetName {
			sheetExists = true
			sheetID = sheet.Properties.SheetId
			break
		}
	}

	if !sheetExists {
		s.log.Info().Str("sheet", sheetName).Msg("Creating new sheet")

		batchUpdateReq := &sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{
				{AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: sheetName}}},
			},
		}

		resp, err := s.sheetsService.Spreadsheets.BatchUpdate(s.spreadsheetID, batchUpdateReq).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("%s: failed to create sheet: %w", op, err)
		}

		sheetID = resp.Replies[0].AddSheet.Properties.SheetId
	}

	headerRange := fmt.Sprintf("%s!A1:%s1", sheetName, lastColumn)
	resp, err := s.sheetsService.Spreadsheets.Values.Get(s.spreadsheetID, headerRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to get headers: %w", op, err)
	}

	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}

	s.log.Info().Str("sheet", sheetName).Msg("Adding headers to sheet")

	header := make([]interface{}, len(Headers))
	for i, h := range Headers {
		header[i] = h
	}

	_, err = s.sheetsService.Spreadsheets.Values.Update(
		s.spreadsheetID,
		headerRange,
		&sheets.ValueRange{Values: [][]interface{}{header}},
	).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to add headers: %w", op, err)
	}

	if err := s.formatHeaders(ctx, sheetID); err != nil {
		s.log.Warn().Err(err).Msg("Failed to format headers, continuing anyway")
	}

	return nil
}

// formatHeaders makes the header row bold and applies basic formatting
func (s *Service) formatHeaders(ctx context.Context, sheetID int64) error {
	const op = "formatHeaders"

	columns := int64(len(Headers))
	requests := []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   columns,
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat:      &sheets.TextFormat{Bold: true},
						BackgroundColor: &sheets.Color{Red: 0.9, Green: 0.9, Blue: 0.9},
					},
				},
				Fields: "userEnteredFormat(textFormat,backgroundColor)",
			},
		},
		{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   columns,
				},
			},
		},
	}

	_, err := s.sheetsService.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to format headers: %w", op, err)
	}

	return nil
}
