// Package recovery pulls a JSON object out of unreliable model output.
//
// Model backends wrap otherwise valid JSON in prose, markdown fences or both, and
// sometimes cut it short. Object runs a cascade of increasingly lenient strategies
// and returns the first JSON object that parses:
//
//  1. the trimmed text as-is
//  2. the text with a leading code fence (any language tag) and trailing fence removed
//  3. the substring from the first '{' to the last '}'
//  4. every brace-balanced candidate, left to right
//
// A total failure is reported with ok=false and is never an error.
package recovery

import (
	"encoding/json"
	"strings"
)

// Stage identifies the strategy that produced an object.
type Stage int

const (
	StageNone Stage = iota
	StageDirect
	StageFence
	StageOuterBraces
	StageBalanced
)

func (s Stage) String() string {
	switch s {
	case StageDirect:
		return "direct"
	case StageFence:
		return "fence"
	case StageOuterBraces:
		return "outer_braces"
	case StageBalanced:
		return "balanced_scan"
	default:
		return "none"
	}
}

// Object returns the first JSON object recovered from raw.
func Object(raw string) (map[string]any, bool) {
	obj, stage := ObjectWithStage(raw)
	return obj, stage != StageNone
}

// ObjectWithStage is Object that also reports which stage succeeded.
func ObjectWithStage(raw string) (map[string]any, Stage) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, StageNone
	}

	if obj, ok := parseObject(text); ok {
		return obj, StageDirect
	}

	if stripped, ok := StripFence(text); ok {
		if obj, ok := parseObject(stripped); ok {
			return obj, StageFence
		}
	}

	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		if obj, ok := parseObject(text[start : end+1]); ok {
			return obj, StageOuterBraces
		}
	}

	for _, candidate := range BalancedCandidates(text) {
		if obj, ok := parseObject(candidate); ok {
			return obj, StageBalanced
		}
	}

	return nil, StageNone
}

// StripFence removes a leading ``` line (with or without a language tag) and a
// trailing ```. ok is false when text does not start with a fence.
func StripFence(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text, false
	}

	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	} else {
		text = strings.TrimPrefix(text, "```")
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text), true
}

// BalancedCandidates returns every brace-balanced substring of text, one for each
// '{' in order of appearance. Braces inside JSON strings are ignored. A '{' that
// never closes yields no candidate.
func BalancedCandidates(text string) []string {
	var out []string
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		if end := matchBrace(text, i); end > 0 {
			out = append(out, text[i:end+1])
		}
	}
	return out
}

// matchBrace returns the index of the '}' closing the '{' at start, or -1.
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func parseObject(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}
