package extract

import (
	"context"
	"regexp"
	"strings"
)

// waLineRe matches WhatsApp's line-oriented export format:
// "M/D/YY, H:MM AM - Author: body" (the exact separators vary by locale and
// export version, so punctuation around the timestamp is permissive).
var waLineRe = regexp.MustCompile(`^\[?(\d{1,2}/\d{1,2}/\d{2,4},?\s+\d{1,2}:\d{2}(?:\s?[APap][Mm])?)\]?\s*[-–]?\s*([^:]{1,60}):\s(.*)$`)

// looksLikeWhatsApp sniffs the first non-empty lines for the WhatsApp
// timestamp-author-body pattern.
func looksLikeWhatsApp(content []byte) bool {
	lines := strings.SplitN(string(content), "\n", 20)
	hits := 0
	for _, l := range lines {
		if waLineRe.MatchString(strings.TrimSpace(l)) {
			hits++
		}
	}
	return hits >= 2
}

// extractWhatsApp parses a WhatsApp chat export line by line, grouping
// consecutive lines without a timestamp into the previous turn's body.
func extractWhatsApp(_ context.Context, raw RawDocument, _ Options) (ExtractedDocument, error) {
	lines := strings.Split(string(raw.Content), "\n")
	var turns []ChatTurn
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		m := waLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if m != nil {
			turns = append(turns, ChatTurn{Timestamp: m[1], Speaker: strings.TrimSpace(m[2]), Text: m[3]})
			continue
		}
		if len(turns) > 0 && strings.TrimSpace(line) != "" {
			turns[len(turns)-1].Text += "\n" + line
		}
	}
	if len(turns) == 0 {
		return ExtractedDocument{}, recoverable(ReasonUnsupportedFormat, nil)
	}

	var b strings.Builder
	for _, t := range turns {
		b.WriteString("**")
		b.WriteString(t.Speaker)
		b.WriteString("** (")
		b.WriteString(t.Timestamp)
		b.WriteString("): ")
		b.WriteString(t.Text)
		b.WriteString("\n")
	}

	return ExtractedDocument{
		Text:         strings.TrimSpace(b.String()),
		DocumentType: TypeWhatsApp,
		ChatTurns:    turns,
	}, nil
}
