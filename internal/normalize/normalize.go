// Package normalize converts raw strings pulled out of lease text into canonical forms:
// plain numeric amounts, ISO-8601 dates and durations in months.
//
// Every function here is total. Bad input yields an empty string, zero, or the
// input itself, never an error.
package normalize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	amountStrip  = regexp.MustCompile(`[$￥¥,\s]`)
	nonNumeric   = regexp.MustCompile(`[^\d.]`)
	zeroFraction = regexp.MustCompile(`\.0*$`)

	monthDayYear = regexp.MustCompile(`^([A-Za-z]+)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})`)
	slashed      = regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})[/-](\d{2,4})`)
	yearFirst    = regexp.MustCompile(`^(\d{4})[/-](\d{1,2})[/-](\d{1,2})`)
	digits       = regexp.MustCompile(`\d+`)
)

var monthNames = map[string]int{
	"january": 1, "february": 2, "march": 3, "april": 4, "may": 5, "june": 6,
	"july": 7, "august": 8, "september": 9, "october": 10, "november": 11, "december": 12,
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "jun": 6, "jul": 7, "aug": 8,
	"sep": 9, "sept": 9, "oct": 10, "nov": 11, "dec": 12,
}

// Amount strips currency symbols, thousands separators and whitespace.
func Amount(raw string) string {
	if raw == "" {
		return ""
	}
	return amountStrip.ReplaceAllString(raw, "")
}

// CanonicalAmount keeps only digits and the decimal point and drops an all-zero
// fraction, so "$1,500.00" and "1500" both become "1500".
func CanonicalAmount(raw string) string {
	cleaned := nonNumeric.ReplaceAllString(Amount(raw), "")
	if strings.Contains(cleaned, ".") {
		cleaned = zeroFraction.ReplaceAllString(cleaned, "")
	}
	return cleaned
}

// Date rewrites "Month D, YYYY", "M/D/YYYY" (or "D/M/YYYY" when the first field
// cannot be a month) and "YYYY/M/D" as YYYY-MM-DD. Two-digit years are read as 20YY.
// Anything else is returned trimmed but otherwise unchanged.
func Date(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}

	if m := monthDayYear.FindStringSubmatch(value); m != nil {
		if month, ok := monthNames[strings.ToLower(m[1])]; ok {
			if iso, ok := isoDate(atoi(m[3]), month, atoi(m[2])); ok {
				return iso
			}
		}
	}

	if m := slashed.FindStringSubmatch(value); m != nil {
		month, day, year := atoi(m[1]), atoi(m[2]), m[3]
		if len(year) == 2 {
			year = "20" + year
		}
		if month > 12 && day <= 12 {
			month, day = day, month
		}
		if iso, ok := isoDate(atoi(year), month, day); ok {
			return iso
		}
	}

	if m := yearFirst.FindStringSubmatch(value); m != nil {
		if iso, ok := isoDate(atoi(m[1]), atoi(m[2]), atoi(m[3])); ok {
			return iso
		}
	}

	return value
}

// Term converts a captured duration to months. context is the text that matched
// around the number; a mention of "year" multiplies by twelve.
func Term(raw, context string) int {
	n := digits.FindString(raw)
	if n == "" {
		return 0
	}
	value, err := strconv.Atoi(n)
	if err != nil {
		return 0
	}
	if strings.Contains(strings.ToLower(context), "year") {
		return value * 12
	}
	return value
}

// MonthsBetween returns the rounded number of 30.44-day months between two
// ISO dates. ok is false when either date does not parse or the span is not positive.
func MonthsBetween(start, end string) (months int, ok bool) {
	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		return 0, false
	}
	e, err := time.Parse("2006-01-02", end)
	if err != nil {
		return 0, false
	}
	days := e.Sub(s).Hours() / 24
	months = int(math.Round(days / 30.44))
	if months <= 0 {
		return 0, false
	}
	return months, true
}

func isoDate(year, month, day int) (string, bool) {
	if year <= 0 || month < 1 || month > 12 || day < 1 || day > 31 {
		return "", false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
