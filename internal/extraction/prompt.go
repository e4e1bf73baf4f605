package extraction

import "strings"

// DefaultPromptBudget is the number of document runes sent to the model.
const DefaultPromptBudget = 7500

// SystemPrompt is the fixed extraction instruction sent with every request.
const SystemPrompt = `You extract structured data from residential lease agreements. Reply with ONE JSON object and nothing else.

FIELDS:
- rent: monthly rent as a plain number string, e.g. "685" (no currency symbol, no thousands separator)
- deposit: security deposit as a plain number string, e.g. "685"
- term_months: lease length in months as an integer, e.g. 12 ("1 year" is 12, "2 years" is 24)
- start_date: first day of the lease as YYYY-MM-DD, e.g. "2012-07-01"
- end_date: last day of the lease as YYYY-MM-DD, e.g. "2013-06-30"
- landlord: landlord or owner name, e.g. "Robert Johnson"
- tenant: tenant name, e.g. "Mary Williams"
- risk_score: integer 0-100 for how unfavourable the lease is to the tenant (0-40 low, 41-70 medium, 71-100 high)
- risk_level: "low", "medium" or "high", consistent with risk_score
- red_flags: array of short strings naming terms that hurt the tenant
- negotiation_tips: array of short strings with concrete advice for the tenant
- summary: two or three sentences describing the lease
- clauses: array of clause objects, see CLAUSES

RULES:
1. Do not return null for rent, deposit, term_months, start_date, landlord or tenant when the text mentions them.
2. When a value is unclear give the most reasonable reading of the text.
3. Amounts: "$1,500.00" becomes "1500", "US$685" becomes "685".
4. Dates: "July 1, 2012" and "7/1/2012" both become "2012-07-01".
5. Without an explicit term, compute term_months from start_date and end_date.
6. Party names usually follow "Landlord:", "Tenant:", "Lessor:" or "Lessee:".
7. Raw JSON only. No markdown fences, no commentary.

CLAUSES:
List every significant clause or numbered section, including low-risk ones. Each object has:
- id: "clause_1", "clause_2", ... in document order
- number: the section marker as printed, e.g. "1.", "2.1" (empty string when there is none)
- category: one of "lease_term", "rent_and_payment", "deposit", "maintenance", "early_termination", "rent_increase", "use_and_pets", "landlord_entry", "liability_and_insurance", "dispute_resolution", "other"
- title_en: the English heading, e.g. "RENT"
- original_text: the key sentence(s) copied from the clause, at most 300 characters, never just a number or heading
- summary_zh: one or two sentences in Chinese (中文) explaining what the clause means for the tenant
- risk_level: "low", "medium" or "high" from the tenant's point of view

EXAMPLE
Input:
---
LEASE AGREEMENT
Landlord: Robert Johnson
Tenant: Mary Williams
1. TERM: The lease runs for one year, beginning July 1, 2012 and ending June 30, 2013.
2. RENT: Tenant shall pay $685 per month on the first day of each month.
3. DEPOSIT: Tenant shall pay a security deposit of $685 which is non-refundable.
---
Output:
{"rent": "685", "deposit": "685", "term_months": 12, "start_date": "2012-07-01", "end_date": "2013-06-30", "landlord": "Robert Johnson", "tenant": "Mary Williams", "risk_score": 55, "risk_level": "medium", "red_flags": ["Security deposit is non-refundable"], "negotiation_tips": ["Ask for the deposit to be refundable minus documented damage"], "summary": "One-year residential lease at $685 per month with an equal security deposit. The deposit is stated to be non-refundable, which is unusual and unfavourable to the tenant.", "clauses": [{"id": "clause_1", "number": "1.", "category": "lease_term", "title_en": "TERM", "original_text": "The lease runs for one year, beginning July 1, 2012 and ending June 30, 2013.", "summary_zh": "租期一年，从2012-07-01到2013-06-30。", "risk_level": "low"}, {"id": "clause_2", "number": "2.", "category": "rent_and_payment", "title_en": "RENT", "original_text": "Tenant shall pay $685 per month on the first day of each month.", "summary_zh": "每月租金685美元，每月第一天支付。", "risk_level": "low"}, {"id": "clause_3", "number": "3.", "category": "deposit", "title_en": "DEPOSIT", "original_text": "Tenant shall pay a security deposit of $685 which is non-refundable.", "summary_zh": "押金685美元且不予退还，对租客不利。", "risk_level": "high"}]}`

// UserMessage wraps the document text, truncated to budget runes.
func UserMessage(text string, budget int) string {
	if budget <= 0 {
		budget = DefaultPromptBudget
	}
	var b strings.Builder
	b.WriteString("Now extract from this lease text:\n")
	b.WriteString(truncateRunes(text, budget))
	b.WriteString("\nRemember: output ONLY raw JSON, no markdown, no explanations. Fill every field the text supports.")
	return b.String()
}

func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
