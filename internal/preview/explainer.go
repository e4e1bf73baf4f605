package preview

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"leasecheck/internal/llm"
	"leasecheck/internal/logger"
)

// chineseMarker prefixes the explanation line of every bilingual block.
const chineseMarker = "中文解释："

// ExplainerPrompt asks the model to pair each English line with a short
// Chinese explanation for international students renting in the US.
const ExplainerPrompt = `You explain US rental agreements to Chinese-speaking international students.

Every line of the user message is English lease content: a clause, an analysis or a suggestion.
For each line, answer with exactly two lines:

1. The English line, copied exactly.
2. "` + chineseMarker + `" followed by one to three sentences of natural Chinese that say what the line means, what the tenant should do, and any money impact or risk.

Separate blocks with one blank line. Do not add titles, bullet points, emojis or any other text.`

// Explainer produces Chinese explanations through the LLM backend.
type Explainer struct {
	client llm.Completer
	log    zerolog.Logger
}

// NewExplainer creates an explainer. A nil client disables it.
func NewExplainer(client llm.Completer) *Explainer {
	return &Explainer{client: client, log: logger.WithComponent("explainer")}
}

// Explain returns the Chinese explanation of english, or "" when the backend
// is unavailable or the reply has no explanation line.
func (e *Explainer) Explain(ctx context.Context, english string) string {
	if e == nil || e.client == nil || strings.TrimSpace(english) == "" {
		return ""
	}

	reply, err := e.client.Complete(ctx, llm.Request{
		SystemPrompt: ExplainerPrompt,
		UserMessage:  english,
		Temperature:  0.3,
		MaxTokens:    1000,
	})
	if err != nil {
		e.log.Error().Err(err).Msg("Chinese explanation failed")
		return ""
	}

	blocks := ParseBilingual(reply)
	if len(blocks) == 0 {
		e.log.Warn().Str("reply", logger.Preview(reply, 200)).Msg("No bilingual block in explainer reply")
		return ""
	}
	return blocks[0].Chinese
}

// Bilingual is one English line with its Chinese explanation.
type Bilingual struct {
	English string `json:"clause_text"`
	Chinese string `json:"chinese_explanation"`
}

// ParseBilingual splits a reply into blank-line separated blocks and keeps
// those with at least two lines, one of which carries the Chinese marker.
func ParseBilingual(reply string) []Bilingual {
	var out []Bilingual
	for _, block := range strings.Split(reply, "\n\n") {
		var lines []string
		for _, l := range strings.Split(block, "\n") {
			if strings.TrimSpace(l) != "" {
				lines = append(lines, l)
			}
		}
		if len(lines) < 2 {
			continue
		}
		for _, l := range lines {
			if zh, ok := strings.CutPrefix(l, chineseMarker); ok {
				out = append(out, Bilingual{
					English: strings.TrimSpace(lines[0]),
					Chinese: strings.TrimSpace(zh),
				})
				break
			}
		}
	}
	return out
}
