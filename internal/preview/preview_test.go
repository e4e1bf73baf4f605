package preview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"leasecheck/internal/access"
	"leasecheck/internal/llm/llmtest"
)

func TestAssess(t *testing.T) {
	tests := []struct {
		clause string
		want   Risk
		prefix string
	}{
		{"Tenant responsible for all repairs and maintenance regardless of fault.", RiskDanger, "This clause puts every repair"},
		{"Landlord may enter at any time.", RiskDanger, "This gives the landlord unrestricted access"},
		{"Tenant agrees to waive any right to a jury trial.", RiskDanger, "Waiving rights"},
		{"This lease has automatic renewal.", RiskDanger, "This clause uses language"},
		{"A late fee of $50 applies after the 5th.", RiskCaution, "Late fees are common"},
		{"The cleaning fee is NON-REFUNDABLE.", RiskCaution, "Non-refundable fees"},
		{"Tenant must pay for parking.", RiskCaution, "This clause may add costs"},
		{"Rent is due on the first of each month.", RiskSafe, "This clause looks standard"},
	}
	for _, tt := range tests {
		got := Assess(tt.clause)
		if got.Risk != tt.want || !strings.HasPrefix(got.Analysis, tt.prefix) || got.Suggestion == "" {
			t.Errorf("Assess(%q) = %+v, want %s %q...", tt.clause, got, tt.want, tt.prefix)
		}
	}
}

func TestShortExplanation(t *testing.T) {
	tests := []struct {
		clause string
		risk   Risk
		want   string
	}{
		{"Tenant responsible for all maintenance.", RiskDanger, "This clause shifts most repair costs to the tenant, regardless of fault."},
		{"No refund of prepaid rent.", RiskDanger, "This clause heavily favors the landlord and may limit your rights significantly."},
		{"Late fee of $25.", RiskCaution, "Late fees are included. Check the amounts against your state's legal limits."},
		{"Pets allowed.", RiskSafe, "This clause appears standard and doesn't raise obvious concerns."},
	}
	for _, tt := range tests {
		if got := ShortExplanation(tt.clause, tt.risk); got != tt.want {
			t.Errorf("ShortExplanation(%q) = %q", tt.clause, got)
		}
	}
}

func TestRiskDisplay(t *testing.T) {
	for risk, want := range map[Risk]string{RiskDanger: "High", RiskCaution: "Medium", RiskSafe: "Low", "other": "Medium"} {
		if got := risk.Display(); got != want {
			t.Errorf("%s.Display() = %s, want %s", risk, got, want)
		}
	}
}

func TestParseBilingual(t *testing.T) {
	reply := "Late fees are included.\n中文解释：合同包含滞纳金。\n\nstray line\n\nSecond line.\n\n中文解释：第二条。"
	got := ParseBilingual(reply)
	if len(got) != 1 {
		t.Fatalf("ParseBilingual() = %+v", got)
	}
	if got[0].English != "Late fees are included." || got[0].Chinese != "合同包含滞纳金。" {
		t.Errorf("block = %+v", got[0])
	}
}

func TestExplainer(t *testing.T) {
	ctx := context.Background()

	stub := &llmtest.Stub{Response: "Late fees are included.\n中文解释：合同包含滞纳金。"}
	if got := NewExplainer(stub).Explain(ctx, "Late fees are included."); got != "合同包含滞纳金。" {
		t.Errorf("Explain() = %q", got)
	}
	if req := stub.Last(); req.Temperature != 0.3 || req.MaxTokens != 1000 || req.SystemPrompt != ExplainerPrompt {
		t.Errorf("request = %+v", req)
	}

	if got := NewExplainer(&llmtest.Stub{Err: errors.New("down")}).Explain(ctx, "x"); got != "" {
		t.Errorf("Explain() on failure = %q", got)
	}
	if got := NewExplainer(nil).Explain(ctx, "x"); got != "" {
		t.Errorf("Explain() without client = %q", got)
	}
}

func newService(t *testing.T) *Service {
	t.Helper()
	clk := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	limiter := access.NewLimiter(access.NewMemoryWindowStore(), access.LimiterConfig{
		UserLimit: 3, IPLimit: 20, Window: 24 * time.Hour,
		Now: func() time.Time { return clk },
	})
	return NewService(limiter, nil, DefaultConfig())
}

func TestServiceAnalyze(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	if _, _, err := s.Analyze(ctx, "   ", "u", "1.1.1.1"); !errors.Is(err, ErrEmptyClause) {
		t.Errorf("empty clause error = %v", err)
	}
	if _, _, err := s.Analyze(ctx, strings.Repeat("租", 251), "u", "1.1.1.1"); !errors.Is(err, ErrClauseTooLong) {
		t.Errorf("long clause error = %v", err)
	}

	for i := range 3 {
		res, remaining, err := s.Analyze(ctx, fmt.Sprintf("Late fee #%d applies.", i), "u", "1.1.1.1")
		if err != nil {
			t.Fatalf("Analyze() error = %v", err)
		}
		if res.RiskLevel != "Medium" || remaining != 2-i {
			t.Errorf("call %d = %s remaining %d", i, res.RiskLevel, remaining)
		}
	}

	_, remaining, err := s.Analyze(ctx, "Late fee applies.", "u", "1.1.1.1")
	var limitErr *LimitError
	if !errors.As(err, &limitErr) || !errors.Is(err, ErrRateLimited) || remaining != 0 {
		t.Errorf("4th call error = %v remaining %d", err, remaining)
	}

	history := s.History("u")
	if len(history) != 3 || history[0].ClauseText != "Late fee #2 applies." {
		t.Errorf("history = %+v", history)
	}
	if len(s.History("someone-else")) != 0 {
		t.Error("history leaked across users")
	}
}

func TestServiceAnalyzeNetworkLimit(t *testing.T) {
	clk := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	limiter := access.NewLimiter(access.NewMemoryWindowStore(), access.LimiterConfig{
		UserLimit: 3, IPLimit: 1, Window: 24 * time.Hour,
		Now: func() time.Time { return clk },
	})
	s := NewService(limiter, nil, DefaultConfig())
	ctx := context.Background()

	if _, _, err := s.Analyze(ctx, "Late fee applies.", "alice", "2.2.2.2"); err != nil {
		t.Fatalf("first call error = %v", err)
	}

	_, remaining, err := s.Analyze(ctx, "Late fee applies.", "bob", "2.2.2.2")
	var limitErr *LimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("shared network call error = %v, want a limit error", err)
	}
	if remaining != 3 {
		t.Errorf("remaining = %d, want bob's untouched quota of 3", remaining)
	}
	if !strings.Contains(limitErr.Message, "network") || strings.Contains(limitErr.Message, "free clause previews") {
		t.Errorf("Message = %q, want the network limit text", limitErr.Message)
	}
}

func ExampleAssess() {
	a := Assess("Landlord may enter at any time.")
	fmt.Println(a.Risk, a.Risk.Display())
	// Output: danger High
}
