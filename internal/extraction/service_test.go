package extraction

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"leasecheck/internal/llm"
	"leasecheck/internal/llm/llmtest"
	"leasecheck/internal/recovery"
	"leasecheck/pkg/models"
)

const sampleLease = `RESIDENTIAL LEASE AGREEMENT
Landlord: Robert Johnson
Tenant: Mary Williams

1. Rent: The monthly rent shall be $685.00 payable on the first day of each month.
2. Lease Term: The lease shall begin on July 1, 2012 and end on June 30, 2013.
3. Security Deposit: Tenant shall pay a security deposit of $685.00 which is non-refundable.
`

// A fenced reply that leaves every key term except the parties to the fallback
// and carries an invalid lease-level label.
const partialReply = "```json\n" + `{
  "landlord": "Robert Johnson",
  "tenant": "Mary Williams",
  "rent": null,
  "start_date": "",
  "risk_score": 62,
  "risk_level": "elevated",
  "red_flags": ["Security deposit is non-refundable"],
  "negotiation_tips": [],
  "summary": "One-year lease.",
  "clauses": [
    {"id": "clause_1", "number": "1.", "category": "rent_and_payment", "title_en": "RENT",
     "original_text": "The monthly rent shall be $685.00 payable on the first day of each month.",
     "summary_zh": "每月租金685美元。", "risk_level": "safe"},
    {"number": "3.", "category": "Deposit", "title_en": "SECURITY DEPOSIT",
     "original_text": "Tenant shall pay a security deposit of $685.00 which is non-refundable.",
     "summary_zh": "押金不退还。", "risk_level": "caution"}
  ]
}` + "\n```"

func str(p *string) string {
	if p == nil {
		return "<nil>"
	}
	return *p
}

func TestExtractEmptyText(t *testing.T) {
	stub := &llmtest.Stub{Response: partialReply}
	svc := NewService(stub, DefaultConfig())

	for _, text := range []string{"", "   \n\t"} {
		out := svc.Analyze(context.Background(), text)
		if !errors.Is(out.Cause, ErrEmptyText) {
			t.Errorf("Analyze(%q) cause = %v, want ErrEmptyText", text, out.Cause)
		}
		if !reflect.DeepEqual(out.Extraction, models.DefaultExtraction()) {
			t.Errorf("Analyze(%q) = %+v, want default extraction", text, out.Extraction)
		}
	}
	if stub.Calls() != 0 {
		t.Errorf("LLM called %d times for empty text", stub.Calls())
	}
}

func TestAnalyzeDegradedPaths(t *testing.T) {
	tests := []struct {
		name   string
		client llm.Completer
		want   error
	}{
		{"not configured", nil, ErrNotConfigured},
		{"missing credentials", &llmtest.Stub{Err: llm.ErrMissingCredentials}, ErrNotConfigured},
		{"transport", &llmtest.Stub{Err: errors.New("connection reset")}, ErrTransport},
		{"timeout", &llmtest.Stub{Err: context.DeadlineExceeded}, ErrTransport},
		{"unparseable", &llmtest.Stub{Response: "Sorry, I cannot help with that."}, ErrUnparseable},
		{"truncated", &llmtest.Stub{Response: `{"rent": "685", "clauses": [`}, ErrUnparseable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := NewService(tt.client, DefaultConfig()).Analyze(context.Background(), sampleLease)
			if !errors.Is(out.Cause, tt.want) {
				t.Errorf("cause = %v, want %v", out.Cause, tt.want)
			}
			if !out.Degraded() {
				t.Error("Degraded() = false")
			}
			ext := out.Extraction
			if ext.RiskScore != 50 || ext.RiskLevel != models.RiskMedium {
				t.Errorf("risk = %d/%s, want 50/medium", ext.RiskScore, ext.RiskLevel)
			}
			if ext.Clauses == nil {
				t.Error("clauses is nil")
			}
		})
	}
}

func TestAnalyzeSampleLease(t *testing.T) {
	stub := &llmtest.Stub{Response: partialReply}
	out := NewService(stub, DefaultConfig()).Analyze(context.Background(), sampleLease)

	if out.Cause != nil {
		t.Fatalf("cause = %v", out.Cause)
	}
	if out.Stage != recovery.StageFence {
		t.Errorf("stage = %v, want %v", out.Stage, recovery.StageFence)
	}

	ext := out.Extraction
	if got := str(ext.Rent); got != "685" {
		t.Errorf("rent = %s, want 685", got)
	}
	if got := str(ext.Deposit); got != "685" {
		t.Errorf("deposit = %s, want 685", got)
	}
	if got := str(ext.StartDate); got != "2012-07-01" {
		t.Errorf("start_date = %s", got)
	}
	if got := str(ext.EndDate); got != "2013-06-30" {
		t.Errorf("end_date = %s", got)
	}
	if ext.TermMonths == nil || *ext.TermMonths != 12 {
		t.Errorf("term_months = %v, want 12", ext.TermMonths)
	}
	if got := str(ext.Landlord); got != "Robert Johnson" {
		t.Errorf("landlord = %s", got)
	}
	if ext.RiskLevel != models.RiskMedium {
		t.Errorf("risk_level = %s, want medium (derived from 62)", ext.RiskLevel)
	}
	if len(ext.NegotiationTips) != 0 || ext.NegotiationTips == nil {
		t.Errorf("negotiation_tips = %#v, want empty list", ext.NegotiationTips)
	}

	wantFilled := []string{"rent", "deposit", "start_date", "end_date"}
	if !reflect.DeepEqual(out.FallbackFields, wantFilled) {
		t.Errorf("fallback fields = %v, want %v", out.FallbackFields, wantFilled)
	}

	if len(ext.Clauses) != 2 {
		t.Fatalf("clauses = %d, want 2", len(ext.Clauses))
	}
	deposit := ext.Clauses[1]
	if deposit.ID != "clause_2" || deposit.Category != models.CategoryDeposit || deposit.RiskLevel != models.RiskMedium {
		t.Errorf("deposit clause = %+v", deposit)
	}
	if ext.Clauses[0].RiskLevel != models.RiskLow {
		t.Errorf("rent clause risk = %s, want low", ext.Clauses[0].RiskLevel)
	}

	req := stub.Last()
	if req.Temperature != 0.1 || req.MaxTokens != 3000 {
		t.Errorf("request settings = %v/%d", req.Temperature, req.MaxTokens)
	}
	if !strings.Contains(req.UserMessage, "monthly rent shall be $685.00") {
		t.Error("user message does not carry the document text")
	}
}

func TestModelValuesWin(t *testing.T) {
	stub := &llmtest.Stub{Response: `{"rent": "$1,200.00", "deposit": 900, "term_months": "1 year",
		"start_date": "August 1, 2012", "risk_score": 20, "risk_level": "HIGH", "clauses": null}`}
	ext := NewService(stub, DefaultConfig()).Extract(context.Background(), sampleLease)

	if got := str(ext.Rent); got != "1200" {
		t.Errorf("rent = %s, want 1200", got)
	}
	if got := str(ext.Deposit); got != "900" {
		t.Errorf("deposit = %s, want 900", got)
	}
	if ext.TermMonths == nil || *ext.TermMonths != 12 {
		t.Errorf("term_months = %v, want 12", ext.TermMonths)
	}
	if got := str(ext.StartDate); got != "2012-08-01" {
		t.Errorf("start_date = %s, want 2012-08-01", got)
	}
	if ext.RiskLevel != models.RiskHigh {
		t.Errorf("risk_level = %s, want high", ext.RiskLevel)
	}
	if ext.Clauses == nil {
		t.Error("clauses is nil")
	}
}

func TestRiskLevelDerivation(t *testing.T) {
	tests := []struct {
		reply     string
		wantScore int
		wantLevel models.RiskLevel
	}{
		{`{"risk_score": 85}`, 85, models.RiskHigh},
		{`{"risk_score": 30, "risk_level": "bogus"}`, 30, models.RiskLow},
		{`{"risk_score": "70"}`, 70, models.RiskMedium},
		{`{"risk_score": 41}`, 41, models.RiskMedium},
		{`{"risk_level": "unknown"}`, 50, models.RiskMedium},
		{`{"risk_score": 150}`, 100, models.RiskHigh},
		{`{"risk_score": -5}`, 0, models.RiskLow},
		{`{"risk_score": 90, "risk_level": "low"}`, 90, models.RiskLow},
	}
	for _, tt := range tests {
		stub := &llmtest.Stub{Response: tt.reply}
		ext := NewService(stub, DefaultConfig()).Extract(context.Background(), "Page 1")
		if ext.RiskScore != tt.wantScore || ext.RiskLevel != tt.wantLevel {
			t.Errorf("%s: got %d/%s, want %d/%s", tt.reply, ext.RiskScore, ext.RiskLevel, tt.wantScore, tt.wantLevel)
		}
	}
}

func TestClauseNormalization(t *testing.T) {
	long := strings.Repeat("租", 400)
	stub := &llmtest.Stub{Response: `{"clauses": [
		{"original_text": "` + long + `", "risk_level": "danger", "category": "pets"},
		"not an object",
		{"id": "c9", "text": "Tenant pays utilities.", "risk": "whatever", "title": "UTILITIES"}
	]}`}
	ext := NewService(stub, DefaultConfig()).Extract(context.Background(), "Page 1")

	if len(ext.Clauses) != 2 {
		t.Fatalf("clauses = %d, want 2", len(ext.Clauses))
	}
	first := ext.Clauses[0]
	if first.ID != "clause_1" || first.RiskLevel != models.RiskHigh || first.Category != models.CategoryOther {
		t.Errorf("first clause = %+v", first)
	}
	if n := len([]rune(first.OriginalText)); n != models.MaxClauseTextRunes {
		t.Errorf("original_text length = %d runes, want %d", n, models.MaxClauseTextRunes)
	}
	second := ext.Clauses[1]
	if second.ID != "c9" || second.Title != "UTILITIES" || second.OriginalText != "Tenant pays utilities." || second.RiskLevel != models.RiskMedium {
		t.Errorf("second clause = %+v", second)
	}
}

func TestUserMessageBudget(t *testing.T) {
	text := strings.Repeat("押", 20)
	msg := UserMessage(text, 5)
	if !strings.Contains(msg, "\n押押押押押\n") {
		t.Errorf("UserMessage() = %q, want text truncated to 5 runes", msg)
	}
	if strings.Contains(msg, "押押押押押押") {
		t.Error("UserMessage() exceeded the budget")
	}
}

func TestValidatorWarnings(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator() error = %v", err)
	}
	ok := map[string]any{"risk_score": 20.0, "risk_level": "low", "clauses": []any{}}
	if w := v.Warnings(ok); len(w) != 0 {
		t.Errorf("Warnings(valid) = %v", w)
	}
	bad := map[string]any{"risk_score": 200.0, "risk_level": "elevated"}
	if w := v.Warnings(bad); len(w) == 0 {
		t.Error("Warnings(invalid) returned nothing")
	}
}

func TestOmittedFieldsKeepDefaults(t *testing.T) {
	stub := &llmtest.Stub{Response: `{"risk_score": 80, "clauses": []}`}
	ext := NewService(stub, DefaultConfig()).Extract(context.Background(), sampleLease)
	def := models.DefaultExtraction()

	if ext.Summary != def.Summary {
		t.Errorf("summary = %q, want default %q", ext.Summary, def.Summary)
	}
	if !reflect.DeepEqual(ext.RedFlags, def.RedFlags) || !reflect.DeepEqual(ext.NegotiationTips, def.NegotiationTips) {
		t.Errorf("lists = %v / %v, want defaults", ext.RedFlags, ext.NegotiationTips)
	}
	if ext.RiskScore != 80 || ext.RiskLevel != models.RiskHigh {
		t.Errorf("risk = %d/%s, want 80/high derived from the score", ext.RiskScore, ext.RiskLevel)
	}
}
