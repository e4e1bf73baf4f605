// Package fallback pulls key lease terms straight out of document text with
// ordered regular expressions. It only fills gaps the model left open; callers
// never let it overwrite a value the model produced.
package fallback

import (
	"regexp"
	"strconv"

	"leasecheck/internal/normalize"
)

// Field names reported by Result.Fields.
const (
	FieldRent       = "rent"
	FieldDeposit    = "deposit"
	FieldTermMonths = "term_months"
	FieldStartDate  = "start_date"
	FieldEndDate    = "end_date"
	FieldLandlord   = "landlord"
	FieldTenant     = "tenant"
)

// Result holds the normalized fallback values. A nil field had no match.
type Result struct {
	Rent       *string
	Deposit    *string
	TermMonths *int
	StartDate  *string
	EndDate    *string
	Landlord   *string
	Tenant     *string
}

// Fields lists the names of the fields that matched, in extraction order.
func (r Result) Fields() []string {
	var found []string
	if r.Rent != nil {
		found = append(found, FieldRent)
	}
	if r.Deposit != nil {
		found = append(found, FieldDeposit)
	}
	if r.TermMonths != nil {
		found = append(found, FieldTermMonths)
	}
	if r.StartDate != nil {
		found = append(found, FieldStartDate)
	}
	if r.EndDate != nil {
		found = append(found, FieldEndDate)
	}
	if r.Landlord != nil {
		found = append(found, FieldLandlord)
	}
	if r.Tenant != nil {
		found = append(found, FieldTenant)
	}
	return found
}

const (
	money     = `[$￥¥]?\s*((?:\d{1,3}(?:,\d{3})+|\d{2,})(?:\.\d{2})?)\b`
	longDate  = `([A-Z][a-z]+\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4})`
	shortDate = `(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`
	isoDate   = `(\d{4}[/-]\d{1,2}[/-]\d{1,2})`
	name      = `([A-Z][A-Za-z .&'-]*?[A-Za-z.])`
	nameEnd   = `\s*(?:,|\.(?:\s|$)|\n|\(|$)`
)

var rentPatterns = compile(
	`(?:rent|monthly\s*rent|base\s*rent|sum\s*of)[:\s]*`+money+`\s*(?:per\s*month|/mo|monthly)?`,
	`rent\s+(?:shall\s+be|is|will\s+be|of)\s*`+money,
	`[$￥¥]\s*(\d[\d,]*(?:\.\d{2})?)\s*(?:per\s*month|/mo|monthly)`,
	`(\d[\d,]*(?:\.\d{2})?)\s*(?:USD|dollars?)\s*(?:per\s*month|monthly)`,
	`(?:pay|paying)\s*`+money+`\s*(?:per\s*month|monthly)?`,
	`租金[:：\s]*`+money,
)

var depositPatterns = compile(
	`(?:security\s*deposit|deposit)[:\s]*`+money,
	`(?:security\s*deposit|deposit)[^.$]{0,80}?[$￥¥]\s*(\d[\d,]*(?:\.\d{2})?)`,
	`押金[:：\s]*`+money,
)

var termPatterns = compile(
	`(?:term|lease|period|duration)\s*(?::|of|is)?\s*(\d{1,2})\s*(?:month|months)`,
	`(\d{1,2})\s*(?:month|months)\s*(?:term|lease|period)`,
	`(?:for|term\s*of)\s*(\d{1,2})\s*(?:year|yr)s?(?:\s*(?:term|lease))?`,
	`租期[:：\s]*(\d{1,2})\s*个月`,
)

var startPatterns = compile(
	`\b(?:beginning|begins?|start(?:s|ing)?|commenc(?:e|es|ing)|effective)(?:\s+on)?[:\s]+`+longDate,
	`\b(?:beginning|begins?|start(?:s|ing)?|commenc(?:e|es|ing)|effective)(?:\s+on)?[:\s]+`+shortDate,
	`\b(?:beginning|begins?|start(?:s|ing)?|commenc(?:e|es|ing)|effective)(?:\s+on)?[:\s]+`+isoDate,
)

var endPatterns = compile(
	`\b(?:ending|ends?|expir(?:e|es|ing)|terminat(?:e|es|ing))(?:\s+on)?[:\s]+`+longDate,
	`\b(?:ending|ends?|expir(?:e|es|ing)|terminat(?:e|es|ing))(?:\s+on)?[:\s]+`+shortDate,
	`\b(?:ending|ends?|expir(?:e|es|ing)|terminat(?:e|es|ing))(?:\s+on)?[:\s]+`+isoDate,
)

// Party patterns only fold case on the label, so a name must start with a
// capital letter and prose after the label is not taken for a name.
var landlordPatterns = compileExact(
	`\b(?i:landlord|lessor|owner)\s*:\s*`+name+nameEnd,
	`\b(?i:landlord|lessor|owner)\s+`+name+`\s*(?:,|\.(?:\s|$)|\n|\(|(?i:tenant)|$)`,
)

var tenantPatterns = compileExact(
	`\b(?i:tenant|lessee|renter)\s*:\s*`+name+nameEnd,
	`\b(?i:tenant|lessee|renter)\s+`+name+nameEnd,
)

// Extract runs every pattern set against text. The first matching pattern per
// field wins; fields without a match stay nil.
func Extract(text string) Result {
	var r Result
	if text == "" {
		return r
	}

	if v, _, ok := first(rentPatterns, text); ok {
		if amount := normalize.CanonicalAmount(v); amount != "" {
			r.Rent = &amount
		}
	}
	if v, _, ok := first(depositPatterns, text); ok {
		if amount := normalize.CanonicalAmount(v); amount != "" {
			r.Deposit = &amount
		}
	}
	if v, match, ok := first(termPatterns, text); ok {
		if months := normalize.Term(v, match); months > 0 {
			r.TermMonths = &months
		}
	}
	if v, _, ok := first(startPatterns, text); ok {
		date := normalize.Date(v)
		r.StartDate = &date
	}
	if v, _, ok := first(endPatterns, text); ok {
		date := normalize.Date(v)
		r.EndDate = &date
	}
	if v, _, ok := first(landlordPatterns, text); ok {
		r.Landlord = &v
	}
	if v, _, ok := first(tenantPatterns, text); ok {
		r.Tenant = &v
	}

	return r
}

// first returns the first capture group of the first pattern that matches,
// together with the whole matched text.
func first(patterns []*regexp.Regexp, text string) (value, match string, ok bool) {
	for _, re := range patterns {
		m := re.FindStringSubmatch(text)
		if m == nil || len(m) < 2 || m[1] == "" {
			continue
		}
		return m[1], m[0], true
	}
	return "", "", false
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		out = append(out, regexp.MustCompile(`(?i)`+expr))
	}
	return out
}

func compileExact(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		out = append(out, regexp.MustCompile(expr))
	}
	return out
}

// String renders a result for logs.
func (r Result) String() string {
	s := "{"
	add := func(k string, v *string) {
		if v == nil {
			return
		}
		if len(s) > 1 {
			s += " "
		}
		s += k + "=" + strconv.Quote(*v)
	}
	add(FieldRent, r.Rent)
	add(FieldDeposit, r.Deposit)
	if r.TermMonths != nil {
		term := strconv.Itoa(*r.TermMonths)
		add(FieldTermMonths, &term)
	}
	add(FieldStartDate, r.StartDate)
	add(FieldEndDate, r.EndDate)
	add(FieldLandlord, r.Landlord)
	add(FieldTenant, r.Tenant)
	return s + "}"
}
