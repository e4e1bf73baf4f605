// Package preview gives a quick keyword-based risk read of a single lease
// clause. It is the rate-limited teaser in front of the full analysis.
package preview

import "strings"

// Risk is the three-level verdict of the keyword rules.
type Risk string

const (
	RiskDanger  Risk = "danger"
	RiskCaution Risk = "caution"
	RiskSafe    Risk = "safe"
)

// Display returns the label shown to users: High, Medium or Low.
func (r Risk) Display() string {
	switch r {
	case RiskDanger:
		return "High"
	case RiskSafe:
		return "Low"
	default:
		return "Medium"
	}
}

var dangerKeywords = []string{
	"tenant responsible for all",
	"regardless of fault",
	"waive any right",
	"landlord may enter at any time",
	"no refund",
	"tenant liable for",
	"cannot terminate",
	"automatic renewal",
}

var cautionKeywords = []string{
	"late fee",
	"additional charges",
	"landlord discretion",
	"may be charged",
	"tenant must pay",
	"non-refundable",
}

// Assessment is the keyword verdict with its longer analysis and suggestion.
type Assessment struct {
	Risk       Risk   `json:"risk"`
	Analysis   string `json:"analysis"`
	Suggestion string `json:"suggestion"`
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func mentionsAllRepairs(s string) bool {
	return strings.Contains(s, "all") && (strings.Contains(s, "repair") || strings.Contains(s, "maintenance"))
}

func mentionsAnyTimeEntry(s string) bool {
	return strings.Contains(s, "enter") && strings.Contains(s, "any time")
}

// Assess classifies clause by the danger keywords first, then the caution
// keywords. Anything else is safe.
func Assess(clause string) Assessment {
	s := strings.ToLower(clause)

	if containsAny(s, dangerKeywords) {
		switch {
		case mentionsAllRepairs(s):
			return Assessment{RiskDanger,
				"This clause puts every repair on you, even when you did not cause the damage. That is unusual and can get expensive.",
				"Ask to limit your responsibility to damage caused by tenant negligence. Normal wear and tear and structural repairs usually stay with the landlord."}
		case mentionsAnyTimeEntry(s):
			return Assessment{RiskDanger,
				"This gives the landlord unrestricted access to your home. Most places require 24 to 48 hours notice outside emergencies.",
				"Ask for wording such as: 'Landlord may enter with 24-48 hours written notice, except in emergencies.'"}
		case strings.Contains(s, "waive"):
			return Assessment{RiskDanger,
				"Waiving rights can leave you without legal protection, and such clauses are often unenforceable.",
				"Check with a local tenant rights organization before signing. Some rights cannot legally be waived."}
		default:
			return Assessment{RiskDanger,
				"This clause uses language that strongly favors the landlord and may limit your rights as a tenant.",
				"Have this clause reviewed before signing, or ask for it to be removed or reworded."}
		}
	}

	if containsAny(s, cautionKeywords) {
		switch {
		case strings.Contains(s, "late fee"):
			return Assessment{RiskCaution,
				"Late fees are common but should be reasonable. Many states cap the amount.",
				"Make sure there is a grace period of a few days and that the fee stays within the local limit."}
		case strings.Contains(s, "non-refundable"):
			return Assessment{RiskCaution,
				"Non-refundable fees or deposits may not be allowed where you live. Security deposits are normally returned if the unit is left in good condition.",
				"Ask what the fee covers and whether it can be made refundable."}
		default:
			return Assessment{RiskCaution,
				"This clause may add costs or leave important decisions to the landlord.",
				"Ask for specific amounts instead of open terms like 'additional charges' or 'as determined by landlord'."}
		}
	}

	return Assessment{RiskSafe,
		"This clause looks standard and has no obvious red flags. It is still worth reading it in the context of the full lease.",
		"Keep reviewing the rest of the lease. The full analysis checks every clause together."}
}

// ShortExplanation returns the one or two sentence summary shown in the preview.
func ShortExplanation(clause string, risk Risk) string {
	s := strings.ToLower(clause)

	switch risk {
	case RiskDanger:
		switch {
		case mentionsAllRepairs(s):
			return "This clause shifts most repair costs to the tenant, regardless of fault."
		case mentionsAnyTimeEntry(s):
			return "This allows the landlord to enter your unit at any time without notice."
		case strings.Contains(s, "waive"):
			return "This asks you to give up important legal rights as a tenant."
		}
		return "This clause heavily favors the landlord and may limit your rights significantly."
	case RiskCaution:
		switch {
		case strings.Contains(s, "late fee"):
			return "Late fees are included. Check the amounts against your state's legal limits."
		case strings.Contains(s, "non-refundable"):
			return "This fee may not be refundable. Clarify what it covers."
		}
		return "This clause could lead to additional costs. Review the details carefully."
	default:
		return "This clause appears standard and doesn't raise obvious concerns."
	}
}
