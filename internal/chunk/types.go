// Package chunk splits an ExtractedDocument into embeddable Chunks,
// honoring structural boundaries (headings, tables, code) and, for chat
// transcripts, conversational turn boundaries (spec.md §4.5).
package chunk

import "github.com/knowledgeforge/ingest/internal/extract"

// Type enumerates the chunk_type values a Chunk may take.
type Type string

const (
	TypeHeading   Type = "heading"
	TypeParagraph Type = "paragraph"
	TypeTable     Type = "table"
	TypeCode      Type = "code"
	TypeList      Type = "list"
	TypeMixed     Type = "mixed"
	TypeChatTurn  Type = "chat_turn"
)

// Chunk is one embeddable unit produced from a document.
type Chunk struct {
	ChunkID        string // doc_id#sequence
	ParentDocID    string
	Sequence       int
	Text           string
	ChunkType      Type
	SectionTitle   string
	ParentSections []string
	TokenEstimate  int
}

// headingEntry tracks one level of the currently open heading path.
type headingEntry struct {
	level int
	title string
}

func headingPath(stack []headingEntry) []string {
	out := make([]string, len(stack))
	for i, h := range stack {
		out[i] = h.title
	}
	return out
}

// sectionText slices the original, unstripped document text by the
// section's char span, then strips ignore blocks from that slice. Stripping
// per-slice (rather than stripping doc.Text up front) keeps every Section's
// CharStart/CharEnd valid, since those offsets were computed against the
// original text.
func sectionText(doc extract.ExtractedDocument, s extract.Section) string {
	start, end := s.CharStart, s.CharEnd
	if start < 0 {
		start = 0
	}
	if end > len(doc.Text) {
		end = len(doc.Text)
	}
	if start >= end {
		return ""
	}
	return stripIgnoreBlocks(doc.Text[start:end])
}
