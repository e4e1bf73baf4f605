package models

// RiskLevel is the categorical risk label used for whole leases and single clauses.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Valid reports whether r is one of the three known labels.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// RiskFromScore maps a 0-100 score onto a label: <=40 low, <=70 medium, above that high.
func RiskFromScore(score int) RiskLevel {
	switch {
	case score <= 40:
		return RiskLow
	case score <= 70:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// Category is the closed set of clause categories.
type Category string

const (
	CategoryLeaseTerm        Category = "lease_term"
	CategoryRentAndPayment   Category = "rent_and_payment"
	CategoryDeposit          Category = "deposit"
	CategoryMaintenance      Category = "maintenance"
	CategoryEarlyTermination Category = "early_termination"
	CategoryRentIncrease     Category = "rent_increase"
	CategoryUseAndPets       Category = "use_and_pets"
	CategoryLandlordEntry    Category = "landlord_entry"
	CategoryLiability        Category = "liability_and_insurance"
	CategoryDispute          Category = "dispute_resolution"
	CategoryOther            Category = "other"
)

// Categories lists every known category in prompt order.
var Categories = []Category{
	CategoryLeaseTerm,
	CategoryRentAndPayment,
	CategoryDeposit,
	CategoryMaintenance,
	CategoryEarlyTermination,
	CategoryRentIncrease,
	CategoryUseAndPets,
	CategoryLandlordEntry,
	CategoryLiability,
	CategoryDispute,
	CategoryOther,
}

// Valid reports whether c belongs to the closed category set.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// MaxClauseTextRunes bounds Clause.OriginalText.
const MaxClauseTextRunes = 300

// Clause is one provision of the lease as reported by the model.
type Clause struct {
	ID           string    `json:"id"`
	Number       string    `json:"number"`
	Category     Category  `json:"category"`
	Title        string    `json:"title_en"`
	OriginalText string    `json:"original_text"`
	SummaryZH    string    `json:"summary_zh"`
	RiskLevel    RiskLevel `json:"risk_level"`

	// Escalated is set when the money/termination keyword rule promoted the clause to high risk.
	Escalated bool `json:"escalated,omitempty"`
}

// LeaseExtraction is the structured result of analyzing one document.
// Optional fields are nil when neither the model nor the regex fallback found them.
type LeaseExtraction struct {
	Rent       *string `json:"rent"`
	Deposit    *string `json:"deposit"`
	TermMonths *int    `json:"term_months"`
	StartDate  *string `json:"start_date"`
	EndDate    *string `json:"end_date"`
	Landlord   *string `json:"landlord"`
	Tenant     *string `json:"tenant"`

	RiskScore       int       `json:"risk_score"`
	RiskLevel       RiskLevel `json:"risk_level"`
	RedFlags        []string  `json:"red_flags"`
	NegotiationTips []string  `json:"negotiation_tips"`
	Summary         string    `json:"summary"`
	Clauses         []Clause  `json:"clauses"`
}

// DefaultExtraction returns the neutral medium-risk result used whenever the
// analysis could not be completed.
func DefaultExtraction() LeaseExtraction {
	return LeaseExtraction{
		RiskScore:       50,
		RiskLevel:       RiskMedium,
		RedFlags:        []string{"Could not parse lease details"},
		NegotiationTips: []string{"Review document manually"},
		Summary:         "Analysis incomplete due to parsing error.",
		Clauses:         []Clause{},
	}
}

// KeyInfo is the compact key-terms view of an extraction.
type KeyInfo struct {
	Rent       *string `json:"rent"`
	Deposit    *string `json:"deposit"`
	TermMonths *int    `json:"term_months"`
	StartDate  *string `json:"start_date"`
	EndDate    *string `json:"end_date"`
	Landlord   *string `json:"landlord"`
	Tenant     *string `json:"tenant"`
}

// KeyInfo returns the key terms of e.
func (e LeaseExtraction) KeyInfo() KeyInfo {
	return KeyInfo{
		Rent:       e.Rent,
		Deposit:    e.Deposit,
		TermMonths: e.TermMonths,
		StartDate:  e.StartDate,
		EndDate:    e.EndDate,
		Landlord:   e.Landlord,
		Tenant:     e.Tenant,
	}
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

// IntPtr returns a pointer to n.
func IntPtr(n int) *int { return &n }
