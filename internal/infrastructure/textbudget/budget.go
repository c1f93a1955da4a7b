// Package textbudget bounds document text before it is sent to a model.
package textbudget

import (
	"strings"
	"unicode"
)

// RunesPerToken approximates BPE tokenization for mixed prose.
const RunesPerToken = 4

type Budget struct {
	MaxTokens int
}

func New(maxTokens int) *Budget {
	if maxTokens <= 0 {
		maxTokens = 100000
	}
	return &Budget{MaxTokens: maxTokens}
}

// EstimateTokens returns the approximate token count of text.
func EstimateTokens(text string) int {
	n := len([]rune(text))
	return (n + RunesPerToken - 1) / RunesPerToken
}

// Truncate normalizes whitespace runs and cuts text to the budget. The cut
// falls on a whitespace boundary when one exists in the last tenth of the
// window. The second return value reports whether text was shortened.
func (b *Budget) Truncate(text string) (string, bool) {
	text = normalizeWhitespace(text)
	runes := []rune(text)
	limit := b.MaxTokens * RunesPerToken
	if len(runes) <= limit {
		return text, false
	}

	cut := limit
	floor := limit - limit/10
	for i := limit; i > floor; i-- {
		if unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
	}
	return strings.TrimSpace(string(runes[:cut])), true
}

func normalizeWhitespace(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
