package extraction

import (
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// leaseSchema describes the object the prompt asks for. It is only used to
// report drift in the model output; the merge is lenient either way.
const leaseSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "rent": {"type": ["string", "number", "null"]},
    "deposit": {"type": ["string", "number", "null"]},
    "term_months": {"type": ["integer", "string", "null"]},
    "start_date": {"type": ["string", "null"]},
    "end_date": {"type": ["string", "null"]},
    "landlord": {"type": ["string", "null"]},
    "tenant": {"type": ["string", "null"]},
    "risk_score": {"type": ["number", "null"], "minimum": 0, "maximum": 100},
    "risk_level": {"enum": ["low", "medium", "high", null]},
    "red_flags": {"type": "array", "items": {"type": "string"}},
    "negotiation_tips": {"type": "array", "items": {"type": "string"}},
    "summary": {"type": ["string", "null"]},
    "clauses": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "id": {"type": "string"},
          "number": {"type": ["string", "number"]},
          "category": {"enum": ["lease_term", "rent_and_payment", "deposit", "maintenance", "early_termination", "rent_increase", "use_and_pets", "landlord_entry", "liability_and_insurance", "dispute_resolution", "other"]},
          "title_en": {"type": "string"},
          "original_text": {"type": "string"},
          "summary_zh": {"type": "string"},
          "risk_level": {"enum": ["low", "medium", "high"]}
        },
        "required": ["original_text", "risk_level"]
      }
    }
  },
  "required": ["risk_score", "risk_level", "clauses"]
}`

// Validator checks recovered objects against the lease schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the lease schema.
func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("lease.json", strings.NewReader(leaseSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("lease.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Warnings returns one line per schema violation in obj, or nil when it conforms.
func (v *Validator) Warnings(obj map[string]any) []string {
	if v == nil {
		return nil
	}
	err := v.schema.Validate(obj)
	if err == nil {
		return nil
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}

	var warnings []string
	for _, e := range ve.BasicOutput().Errors {
		if e.Error == "" || strings.HasPrefix(e.Error, "doesn't validate with") {
			continue
		}
		loc := e.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		warnings = append(warnings, loc+": "+e.Error)
	}
	if len(warnings) == 0 {
		warnings = append(warnings, ve.Error())
	}
	return warnings
}
