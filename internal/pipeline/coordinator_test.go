package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"testing"

	"leasecheck/internal/access"
	"leasecheck/internal/extraction"
	"leasecheck/internal/llm/llmtest"
	"leasecheck/internal/ocr/ocrtest"
	"leasecheck/pkg/models"
)

const modelReply = "```json\n" + `{
  "landlord": "Robert Johnson",
  "tenant": "Mary Williams",
  "risk_score": 62,
  "risk_level": "medium",
  "red_flags": ["Security deposit is non-refundable"],
  "negotiation_tips": ["Ask for a refundable deposit"],
  "summary": "One-year lease.",
  "clauses": [
    {"number": "1.", "category": "rent_and_payment", "title_en": "RENT",
     "original_text": "The monthly rent shall be $685.00 payable on the first day of each month.",
     "summary_zh": "每月租金685美元。", "risk_level": "low"},
    {"number": "3.", "category": "deposit", "title_en": "SECURITY DEPOSIT",
     "original_text": "Tenant shall pay a security deposit which is non-refundable.",
     "summary_zh": "押金不退还。", "risk_level": "medium"},
    {"number": "9.", "category": "other", "title_en": "MISC",
     "original_text": "See above.", "risk_level": "low"}
  ]
}` + "\n```"

var leasePages = map[string]string{
	"page1.jpg": "RESIDENTIAL LEASE AGREEMENT\nLandlord: Robert Johnson\nTenant: Mary Williams",
	"page2.jpg": "The monthly rent shall be $685.00\nThe lease shall begin on July 1, 2012 and end on June 30, 2013.",
	"page3.png": "Tenant shall pay a security deposit of $685.00 which is non-refundable.",
}

type releaseLog struct {
	mu    sync.Mutex
	paths []string
}

func (r *releaseLog) release(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return nil
}

func (r *releaseLog) released() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := slices.Clone(r.paths)
	slices.Sort(out)
	return out
}

type fixture struct {
	coord    *Coordinator
	ocr      *ocrtest.Static
	llm      *llmtest.Stub
	gate     *access.Gate
	store    *access.MemoryStore
	records  *MemoryRecordStore
	releases *releaseLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ocr:      &ocrtest.Static{Pages: leasePages},
		llm:      &llmtest.Stub{Response: modelReply},
		store:    access.NewMemoryStore(),
		records:  NewMemoryRecordStore(10),
		releases: &releaseLog{},
	}
	f.gate = access.NewGate(f.store, f.store, access.Config{LeaseLimit: 5})
	f.coord = NewCoordinator(f.ocr, extraction.NewService(f.llm, extraction.DefaultConfig()), f.gate, f.records,
		Config{Releaser: f.releases.release})
	return f
}

func pagesFor(names ...string) []Page {
	pages := make([]Page, len(names))
	for i, n := range names {
		pages[i] = Page{Name: n, Path: "/tmp/upload/" + n}
	}
	return pages
}

func paths(pages []Page) []string {
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = p.Path
	}
	slices.Sort(out)
	return out
}

func TestAnalyzeEndToEnd(t *testing.T) {
	f := newFixture(t)
	pages := pagesFor("page3.png", "page1.jpg", "page2.jpg")

	rec, err := f.coord.Analyze(context.Background(), pages, "alice")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if got := f.ocr.Calls(); !reflect.DeepEqual(got, []string{"page1.jpg", "page2.jpg", "page3.png"}) {
		t.Errorf("OCR order = %v", got)
	}
	if !slices.Equal(f.releases.released(), paths(pages)) {
		t.Errorf("released = %v", f.releases.released())
	}

	if !strings.HasPrefix(rec.FullText, "RESIDENTIAL LEASE AGREEMENT\n") || !strings.Contains(rec.FullText, "Mary Williams\n\nThe monthly rent") {
		t.Errorf("full text = %q", rec.FullText)
	}
	if rec.Tier != models.TierFree || rec.PageCount != 3 || rec.UserID != "alice" {
		t.Errorf("record = tier %s pages %d user %s", rec.Tier, rec.PageCount, rec.UserID)
	}

	ext := rec.Extraction
	if ext.Rent == nil || *ext.Rent != "685" || ext.Deposit == nil || *ext.Deposit != "685" {
		t.Errorf("rent/deposit = %v/%v", ext.Rent, ext.Deposit)
	}
	if ext.StartDate == nil || *ext.StartDate != "2012-07-01" {
		t.Errorf("start_date = %v", ext.StartDate)
	}

	if len(rec.Clauses) != 2 {
		t.Fatalf("kept clauses = %d, want 2 (noise dropped)", len(rec.Clauses))
	}
	if len(rec.HighRiskClauses) != 1 {
		t.Fatalf("high risk clauses = %d, want 1", len(rec.HighRiskClauses))
	}
	deposit := rec.HighRiskClauses[0]
	if deposit.Category != models.CategoryDeposit || deposit.RiskLevel != models.RiskHigh || !deposit.Escalated {
		t.Errorf("deposit clause = %+v", deposit)
	}

	stored, err := f.records.Get(context.Background(), rec.ID)
	if err != nil || stored != rec {
		t.Errorf("record not stored: %v", err)
	}
}

func TestAnalyzePageCountIsUploadedFiles(t *testing.T) {
	f := newFixture(t)
	f.ocr.Pages = map[string]string{
		"lease.pdf": leasePages["page1.jpg"] + "\n" + leasePages["page2.jpg"] + "\n" + leasePages["page3.png"],
	}

	rec, err := f.coord.Analyze(context.Background(), pagesFor("lease.pdf"), "alice")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if rec.PageCount != 1 {
		t.Errorf("PageCount = %d, want 1 for a single uploaded PDF", rec.PageCount)
	}
	if !strings.Contains(rec.FullText, "Mary Williams") || !strings.Contains(rec.FullText, "non-refundable") {
		t.Errorf("full text = %q", rec.FullText)
	}
}

func TestAnalyzeValidation(t *testing.T) {
	f := newFixture(t)
	many := make([]string, 41)
	for i := range many {
		many[i] = fmt.Sprintf("p%02d.jpg", i)
	}

	tests := []struct {
		name  string
		pages []Page
		want  error
	}{
		{"no pages", nil, ErrNoPages},
		{"too many", pagesFor(many...), ErrTooManyPages},
		{"bad format", pagesFor("page1.jpg", "notes.docx"), ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.releases.paths = nil
			_, err := f.coord.Analyze(context.Background(), tt.pages, "bob")
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if !slices.Equal(f.releases.released(), paths(tt.pages)) {
				t.Errorf("released = %v", f.releases.released())
			}
		})
	}

	if used, _ := f.store.Used(context.Background(), "bob"); used {
		t.Error("validation failure consumed the free analysis")
	}
	if len(f.ocr.Calls()) != 0 {
		t.Error("OCR ran for invalid input")
	}
}

func TestAnalyzeDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.Claim(ctx, "carol")

	pages := pagesFor("page1.jpg")
	_, err := f.coord.Analyze(ctx, pages, "carol")

	var denial *Denial
	if !errors.As(err, &denial) || denial.Reason != access.ReasonNoAccess {
		t.Fatalf("error = %v, want no_access denial", err)
	}
	if len(f.ocr.Calls()) != 0 || f.llm.Calls() != 0 {
		t.Error("pipeline ran after denial")
	}
	if !slices.Equal(f.releases.released(), paths(pages)) {
		t.Errorf("released = %v", f.releases.released())
	}
}

func TestAnalyzeNoTextReleasesReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gate.GrantAccess(ctx, access.GrantRequest{UserID: "dave", Plan: models.PlanMonthly})
	f.ocr.Errs = map[string]error{"page1.jpg": errors.New("vision unavailable")}

	_, err := f.coord.Analyze(ctx, pagesFor("page1.jpg", "blank.png"), "dave")
	if !errors.Is(err, ErrNoText) {
		t.Fatalf("error = %v, want ErrNoText", err)
	}
	if f.llm.Calls() != 0 {
		t.Error("LLM called without text")
	}

	g, _ := f.store.Get(ctx, "dave")
	if len(g.AnalysisIDs) != 0 {
		t.Errorf("analysis ids = %v, want reservation released", g.AnalysisIDs)
	}
	if len(f.releases.released()) != 2 {
		t.Errorf("released = %v", f.releases.released())
	}
}

func TestAnalyzePanicReleasesFiles(t *testing.T) {
	f := newFixture(t)
	f.ocr.Panic = "page2.jpg"
	pages := pagesFor("page1.jpg", "page2.jpg")

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic")
			}
		}()
		f.coord.Analyze(context.Background(), pages, "erin")
	}()

	if !slices.Equal(f.releases.released(), paths(pages)) {
		t.Errorf("released = %v", f.releases.released())
	}
}

func TestAnalyzeCountsPaidAnalysis(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gate.GrantAccess(ctx, access.GrantRequest{UserID: "frank", Plan: models.PlanYearly})

	rec, err := f.coord.Analyze(ctx, pagesFor("page1.jpg"), "frank")
	if err != nil {
		t.Fatal(err)
	}
	g, _ := f.store.Get(ctx, "frank")
	if !g.HasAnalysis(rec.ID) || rec.Tier != models.TierPaid {
		t.Errorf("grant = %+v, record tier %s", g, rec.Tier)
	}
}

func TestReportAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.coord.Analyze(ctx, pagesFor("page1.jpg", "page3.png"), "gina")
	if err != nil {
		t.Fatal(err)
	}

	report, err := f.coord.Report(ctx, rec.ID, "gina")
	if err != nil {
		t.Fatalf("owner Report() error = %v", err)
	}
	if !report.HasFullAccess || report.AnalysisID != rec.ID || report.TotalClauses != len(rec.Clauses) {
		t.Errorf("report = %+v", report)
	}

	var denial *Denial
	if _, err := f.coord.Report(ctx, rec.ID, "stranger"); !errors.As(err, &denial) {
		t.Errorf("stranger Report() error = %v, want denial", err)
	}

	f.gate.GrantAccess(ctx, access.GrantRequest{UserID: "subscriber", Plan: models.PlanMonthly})
	if _, err := f.coord.Report(ctx, rec.ID, "subscriber"); err != nil {
		t.Errorf("subscriber Report() error = %v", err)
	}

	if _, err := f.coord.Report(ctx, "missing", "gina"); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("missing Report() error = %v", err)
	}
}

func TestMemoryRecordStoreEvictsOldest(t *testing.T) {
	s := NewMemoryRecordStore(2)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		s.Save(ctx, &models.AnalysisRecord{ID: id})
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("oldest record not evicted: %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d", s.Len())
	}
}
