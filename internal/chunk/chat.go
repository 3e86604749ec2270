package chunk

import (
	"regexp"
	"strings"

	"github.com/knowledgeforge/ingest/internal/extract"
)

var topicShiftMarkers = regexp.MustCompile(`(?i)\b(next question|changing topic|switching gears|moving on|new topic)\b`)

var questionWordRe = regexp.MustCompile(`(?i)\b(what|why|how|when|where|who|which)\b`)

const maxTurnPairsPerChunk = 3

// chatTurns implements spec.md §4.5's turn-based chat chunking: group 1-3
// consecutive user/assistant turn-pairs per chunk, splitting on topic shift
// (explicit markers, question-word change, or key-term overlap below 0.2
// between adjacent turns). Each chunk is prefixed with a synthesized
// "### Turn topic" header derived from the first user question in the group.
func (c *Chunker) chatTurns(doc extract.ExtractedDocument) []pendingChunk {
	turns := make([]extract.ChatTurn, len(doc.ChatTurns))
	for i, t := range doc.ChatTurns {
		t.Text = stripIgnoreBlocks(t.Text)
		turns[i] = t
	}
	pairs := pairTurns(turns)
	if len(pairs) == 0 {
		return nil
	}

	var out []pendingChunk
	var group []turnPair

	flush := func() {
		if len(group) == 0 {
			return
		}
		out = append(out, pendingChunk{
			text:      renderTurnGroup(group),
			chunkType: TypeChatTurn,
		})
		group = nil
	}

	for i, p := range pairs {
		if len(group) > 0 {
			prev := group[len(group)-1]
			if len(group) >= maxTurnPairsPerChunk || topicShifted(prev, p) {
				flush()
			}
		}
		group = append(group, p)
		_ = i
	}
	flush()
	return out
}

type turnPair struct {
	user, assistant extract.ChatTurn
}

// pairTurns groups consecutive turns into user/assistant pairs. A trailing
// unanswered user turn becomes a pair with an empty assistant side.
func pairTurns(turns []extract.ChatTurn) []turnPair {
	var pairs []turnPair
	var pending *extract.ChatTurn
	for _, t := range turns {
		if isUserSpeaker(t.Speaker) {
			if pending != nil {
				pairs = append(pairs, turnPair{user: *pending})
			}
			cp := t
			pending = &cp
			continue
		}
		if pending != nil {
			pairs = append(pairs, turnPair{user: *pending, assistant: t})
			pending = nil
		} else {
			pairs = append(pairs, turnPair{assistant: t})
		}
	}
	if pending != nil {
		pairs = append(pairs, turnPair{user: *pending})
	}
	return pairs
}

func isUserSpeaker(speaker string) bool {
	s := strings.ToLower(speaker)
	return s == "user" || s == ""
}

// topicShifted reports whether the transition from prev to next should
// start a new chunk, per spec.md §4.5's three topic-shift signals.
func topicShifted(prev, next turnPair) bool {
	if topicShiftMarkers.MatchString(next.user.Text) {
		return true
	}
	prevQ, nextQ := dominantQuestionWord(prev.user.Text), dominantQuestionWord(next.user.Text)
	if prevQ != "" && nextQ != "" && prevQ != nextQ {
		return true
	}
	if keyTermOverlap(prev.user.Text+" "+prev.assistant.Text, next.user.Text) < 0.2 {
		return true
	}
	return false
}

func dominantQuestionWord(text string) string {
	m := questionWordRe.FindString(strings.ToLower(text))
	return m
}

// keyTermOverlap is a Jaccard-similarity proxy over lowercased word sets,
// good enough to detect a clean subject change between adjacent turns.
func keyTermOverlap(a, b string) float64 {
	setA, setB := wordSet(a), wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 1.0 // nothing to compare against; don't force a split
	}
	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 1.0
	}
	return float64(intersection) / float64(union)
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "it": true, "to": true,
	"and": true, "of": true, "in": true, "for": true, "on": true, "i": true,
	"you": true, "can": true, "do": true, "does": true, "how": true, "what": true,
}

func wordSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if len(w) < 3 || stopWords[w] {
			continue
		}
		out[w] = true
	}
	return out
}

func renderTurnGroup(group []turnPair) string {
	var b strings.Builder
	b.WriteString("### ")
	b.WriteString(synthesizeTopic(group[0].user.Text))
	b.WriteString("\n\n")
	for _, p := range group {
		if strings.TrimSpace(p.user.Text) != "" {
			b.WriteString("**User:** ")
			b.WriteString(p.user.Text)
			b.WriteString("\n\n")
		}
		if strings.TrimSpace(p.assistant.Text) != "" {
			b.WriteString("**Assistant:** ")
			b.WriteString(p.assistant.Text)
			b.WriteString("\n\n")
		}
	}
	return strings.TrimSpace(b.String())
}

// synthesizeTopic derives a short header from the opening user question,
// truncated to keep the header scannable in the vault.
func synthesizeTopic(question string) string {
	q := strings.TrimSpace(strings.Split(question, "\n")[0])
	if q == "" {
		return "Turn topic"
	}
	const maxLen = 80
	if len(q) > maxLen {
		q = strings.TrimSpace(q[:maxLen]) + "…"
	}
	return q
}
