// Package clauses drops noise clauses and picks out the ones a tenant should
// look at first.
package clauses

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"leasecheck/pkg/models"
)

// MinTextRunes is the length below which a clause needs a digit, currency
// symbol or date to be kept.
const MinTextRunes = 15

// Keywords promote a medium-risk clause to high risk. Matching is by substring
// on the lower-cased text.
var Keywords = []string{
	"rent", "fee", "deposit", "refund", "termination", "terminate", "penalty",
	"charge", "payment", "late", "evict", "break", "cancel",
	"租金", "费用", "押金", "退还", "终止", "违约", "罚款", "滞纳金", "解约",
}

var datePattern = regexp.MustCompile(`\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`)

// FilterAndEscalate returns the clauses worth keeping and, among them, the
// high-risk ones. Both lists keep input order. Escalated clauses are marked
// high in both lists.
func FilterAndEscalate(clauses []models.Clause) (kept, highRisk []models.Clause) {
	kept = make([]models.Clause, 0, len(clauses))
	highRisk = make([]models.Clause, 0)

	for _, c := range clauses {
		if IsNoise(c.OriginalText) {
			continue
		}

		switch {
		case c.RiskLevel == models.RiskHigh:
			highRisk = append(highRisk, c)
		case c.RiskLevel == models.RiskMedium && HasKeyword(c.OriginalText):
			c.RiskLevel = models.RiskHigh
			c.Escalated = true
			highRisk = append(highRisk, c)
		}
		kept = append(kept, c)
	}

	return kept, highRisk
}

// IsNoise reports whether text is too short to be a clause and carries no
// amount or date.
func IsNoise(text string) bool {
	if utf8.RuneCountInString(text) >= MinTextRunes {
		return false
	}
	return !hasDigit(text) && !strings.ContainsAny(text, "$€£¥￥") && !datePattern.MatchString(text)
}

// HasKeyword reports whether text mentions money or termination.
func HasKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range Keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
