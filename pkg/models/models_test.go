package models

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

func TestRiskFromScore(t *testing.T) {
	tests := []struct {
		score int
		want  RiskLevel
	}{
		{0, RiskLow},
		{40, RiskLow},
		{41, RiskMedium},
		{70, RiskMedium},
		{71, RiskHigh},
		{100, RiskHigh},
	}

	for _, tt := range tests {
		if got := RiskFromScore(tt.score); got != tt.want {
			t.Errorf("RiskFromScore(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestValidLabels(t *testing.T) {
	if RiskLevel("critical").Valid() || RiskLevel("").Valid() {
		t.Error("unknown risk level reported valid")
	}
	if !RiskHigh.Valid() {
		t.Error("RiskHigh reported invalid")
	}
	if Category("parking").Valid() {
		t.Error("unknown category reported valid")
	}
	for _, c := range Categories {
		if !c.Valid() {
			t.Errorf("category %s reported invalid", c)
		}
	}
}

func TestParsePlan(t *testing.T) {
	tests := []struct {
		in   string
		want Plan
		days int
	}{
		{"monthly", PlanMonthly, 30},
		{"yearly", PlanYearly, 365},
		{"lifetime", PlanYearly, 365},
		{"", PlanYearly, 365},
	}

	for _, tt := range tests {
		got := ParsePlan(tt.in)
		if got != tt.want {
			t.Errorf("ParsePlan(%q) = %s, want %s", tt.in, got, tt.want)
		}
		if d := got.Duration(); d != time.Duration(tt.days)*24*time.Hour {
			t.Errorf("%s.Duration() = %s, want %d days", got, d, tt.days)
		}
	}
}

func TestAccessGrantActive(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	g := &AccessGrant{ExpiresAt: now.Add(time.Hour), AnalysisIDs: []string{"a1"}}

	if !g.Active(now) {
		t.Error("grant expiring in an hour reported inactive")
	}
	if g.Active(now.Add(time.Hour)) {
		t.Error("grant reported active at its expiry instant")
	}
	if !g.HasAnalysis("a1") || g.HasAnalysis("a2") {
		t.Errorf("HasAnalysis mismatch for %v", g.AnalysisIDs)
	}

	var missing *AccessGrant
	if missing.Active(now) || missing.HasAnalysis("a1") {
		t.Error("nil grant reported active")
	}
}

func TestReportFieldsAlwaysPresent(t *testing.T) {
	rec := &AnalysisRecord{
		ID:             "id-1",
		UserID:         "alice",
		Extraction:     LeaseExtraction{RiskScore: 30, RiskLevel: RiskLow},
		ProcessingTime: 1500 * time.Millisecond,
	}

	r := rec.Report(false)
	if r.ProcessingTime != 1.5 {
		t.Errorf("ProcessingTime = %v, want 1.5", r.ProcessingTime)
	}
	if r.TotalClauses != 0 || r.HasFullAccess {
		t.Errorf("TotalClauses = %d, HasFullAccess = %v", r.TotalClauses, r.HasFullAccess)
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"clauses", "high_risk_clauses", "lines", "red_flags", "negotiation_tips"} {
		if string(fields[key]) != "[]" {
			t.Errorf("%s = %s, want []", key, fields[key])
		}
	}
	for _, key := range []string{"analysis_id", "key_info", "full_text", "page_count", "processing_time"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("report is missing %s", key)
		}
	}
}

func ExampleRiskFromScore() {
	for _, score := range []int{25, 55, 85} {
		fmt.Println(score, RiskFromScore(score))
	}
	// Output:
	// 25 low
	// 55 medium
	// 85 high
}
