package chunk

import (
	"regexp"
	"strings"
)

// estimateTokens approximates token count for natural-language prose. Unlike
// the teacher's rune-counting Tokenizer (tuned for source code, where one
// rune is a reasonable proxy for one token), prose tokenizes closer to
// 4 characters per token, so chunk sizing here uses that ratio instead of
// reusing internal/documents.RuneTokenizer directly.
func estimateTokens(s string) int {
	n := len(s) / 4
	if n == 0 && s != "" {
		n = 1
	}
	return n
}

var sentenceBoundaryRe = regexp.MustCompile(`[.!?]['"]?\s+`)

// splitAtSentenceBoundary breaks text into pieces no larger than maxTokens,
// always cutting at a sentence boundary when one exists before the limit,
// per spec.md §4.5's "force split at T_max, at a sentence boundary".
func splitAtSentenceBoundary(text string, maxTokens int) []string {
	if estimateTokens(text) <= maxTokens {
		return []string{text}
	}

	locs := sentenceBoundaryRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return hardSplit(text, maxTokens)
	}

	var out []string
	start := 0
	lastCut := 0
	for _, loc := range locs {
		cut := loc[1]
		if estimateTokens(text[start:cut]) > maxTokens {
			if lastCut > start {
				out = append(out, strings.TrimSpace(text[start:lastCut]))
				start = lastCut
			}
		}
		lastCut = cut
	}
	if start < len(text) {
		out = append(out, strings.TrimSpace(text[start:]))
	}

	var result []string
	for _, piece := range out {
		if estimateTokens(piece) > maxTokens {
			result = append(result, hardSplit(piece, maxTokens)...)
		} else if piece != "" {
			result = append(result, piece)
		}
	}
	return result
}

// hardSplit is the last resort when a single run of text has no sentence
// boundary at all (e.g. a long unbroken line): cut on a token budget.
func hardSplit(text string, maxTokens int) []string {
	maxChars := maxTokens * 4
	if maxChars <= 0 {
		return []string{text}
	}
	var out []string
	for len(text) > maxChars {
		out = append(out, strings.TrimSpace(text[:maxChars]))
		text = text[maxChars:]
	}
	if strings.TrimSpace(text) != "" {
		out = append(out, strings.TrimSpace(text))
	}
	return out
}
