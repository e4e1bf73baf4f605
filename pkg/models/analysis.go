package models

import "time"

// Line is one OCR text line with the engine's confidence (0.0 to 1.0).
type Line struct {
	Text       string  `json:"text"`
	Confidence float32 `json:"confidence"`
}

// Tier records how an analysis was admitted.
type Tier string

const (
	TierPaid   Tier = "paid"
	TierFree   Tier = "free"
	TierBypass Tier = "bypass"
)

// AnalysisRecord is the server-side memory of one completed analysis.
type AnalysisRecord struct {
	ID              string          `json:"analysis_id"`
	UserID          string          `json:"user_id"`
	Tier            Tier            `json:"tier"`
	Extraction      LeaseExtraction `json:"extraction"`
	Clauses         []Clause        `json:"clauses"`
	HighRiskClauses []Clause        `json:"high_risk_clauses"`
	Lines           []Line          `json:"lines"`
	FullText        string          `json:"full_text"`
	// PageCount is the number of uploaded page files. A multi-page PDF counts once.
	PageCount       int             `json:"page_count"`
	ProcessingTime  time.Duration   `json:"processing_time"`
	Degraded        string          `json:"degraded,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Report is the payload returned to callers of an analysis or a full-report lookup.
// Every field is always present, even when upstream stages degraded to defaults.
type Report struct {
	AnalysisID string `json:"analysis_id"`
	UserID     string `json:"user_id"`

	KeyInfo         KeyInfo   `json:"key_info"`
	RiskScore       int       `json:"risk_score"`
	RiskLevel       RiskLevel `json:"risk_level"`
	RedFlags        []string  `json:"red_flags"`
	NegotiationTips []string  `json:"negotiation_tips"`
	Summary         string    `json:"summary"`

	Clauses         []Clause `json:"clauses"`
	HighRiskClauses []Clause `json:"high_risk_clauses"`
	TotalClauses    int      `json:"total_clauses"`
	HasFullAccess   bool     `json:"has_full_access"`

	FullText       string  `json:"full_text"`
	Lines          []Line  `json:"lines"`
	PageCount      int     `json:"page_count"`
	ProcessingTime float64 `json:"processing_time"`
}

// Report builds the caller payload for r.
func (r *AnalysisRecord) Report(hasFullAccess bool) Report {
	clauses := r.Clauses
	if clauses == nil {
		clauses = []Clause{}
	}
	highRisk := r.HighRiskClauses
	if highRisk == nil {
		highRisk = []Clause{}
	}
	lines := r.Lines
	if lines == nil {
		lines = []Line{}
	}

	return Report{
		AnalysisID:      r.ID,
		UserID:          r.UserID,
		KeyInfo:         r.Extraction.KeyInfo(),
		RiskScore:       r.Extraction.RiskScore,
		RiskLevel:       r.Extraction.RiskLevel,
		RedFlags:        nonNil(r.Extraction.RedFlags),
		NegotiationTips: nonNil(r.Extraction.NegotiationTips),
		Summary:         r.Extraction.Summary,
		Clauses:         clauses,
		HighRiskClauses: highRisk,
		TotalClauses:    len(clauses),
		HasFullAccess:   hasFullAccess,
		FullText:        r.FullText,
		Lines:           lines,
		PageCount:       r.PageCount,
		ProcessingTime:  float64(r.ProcessingTime.Milliseconds()) / 1000,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
