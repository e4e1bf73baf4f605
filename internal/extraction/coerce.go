package extraction

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"leasecheck/internal/normalize"
	"leasecheck/pkg/models"
)

// Model output is loosely typed: numbers arrive as strings, strings as numbers,
// single values where arrays were asked for. These helpers accept what is
// reasonable and report ok=false for null, empty or unusable values.

func getString(m map[string]any, key string) (string, bool) {
	switch v := m[key].(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" || strings.EqualFold(s, "null") {
			return "", false
		}
		return s, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}

func getInt(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case float64:
		return int(math.Round(v)), true
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.Atoi(s); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int(math.Round(f)), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// getTerm reads a term that may be an integer or a phrase like "1 year".
func getTerm(m map[string]any, key string) (int, bool) {
	if n, ok := m[key].(float64); ok {
		months := int(math.Round(n))
		return months, months > 0
	}
	s, ok := getString(m, key)
	if !ok {
		return 0, false
	}
	months := normalize.Term(s, s)
	return months, months > 0
}

// getStrings reads a list of strings. A present but empty array is ok.
func getStrings(m map[string]any, key string) ([]string, bool) {
	switch v := m[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			switch s := item.(type) {
			case string:
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			case nil:
			default:
				out = append(out, fmt.Sprint(s))
			}
		}
		return out, true
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return []string{s}, true
		}
	}
	return nil, false
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := getString(m, key); ok {
			return s
		}
	}
	return ""
}

// clauseRisk maps model risk labels, including the danger/caution/safe
// vocabulary, onto the three levels. Unknown labels become medium.
func clauseRisk(raw string) models.RiskLevel {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "high", "danger", "dangerous", "高":
		return models.RiskHigh
	case "low", "safe", "低":
		return models.RiskLow
	default:
		return models.RiskMedium
	}
}

func category(raw string) models.Category {
	c := models.Category(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), " ", "_"))
	if c.Valid() {
		return c
	}
	return models.CategoryOther
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// getClauses converts the clause array. Entries that are not objects are skipped;
// ids are assigned by position when missing.
func getClauses(m map[string]any) []models.Clause {
	items, _ := m["clauses"].([]any)
	clauses := make([]models.Clause, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		c := models.Clause{
			ID:           firstString(obj, "id"),
			Number:       firstString(obj, "number"),
			Category:     category(firstString(obj, "category")),
			Title:        firstString(obj, "title_en", "title"),
			OriginalText: truncate(firstString(obj, "original_text", "text"), models.MaxClauseTextRunes),
			SummaryZH:    firstString(obj, "summary_zh", "summary_localized", "summary"),
			RiskLevel:    clauseRisk(firstString(obj, "risk_level", "risk")),
		}
		if c.ID == "" {
			c.ID = fmt.Sprintf("clause_%d", len(clauses)+1)
		}
		clauses = append(clauses, c)
	}
	return clauses
}
