package chunk

import (
	"strings"

	"github.com/knowledgeforge/ingest/internal/extract"
)

// structureAware implements spec.md §4.5's non-chat chunking contract:
// tables and code are always standalone chunks; headings anchor
// section_title/parent_sections; paragraphs and lists are greedily
// accumulated to targetTokens and force-split at maxTokens on a sentence
// boundary. Grounded on internal/documents/advanced_splitter.go's
// accumulate-then-flush loop, generalized from brace-depth boundaries to
// document-structure boundaries.
func (c *Chunker) structureAware(doc extract.ExtractedDocument) []pendingChunk {
	sections := doc.StructuralMetadata
	if len(sections) == 0 {
		sections = []extract.Section{{Type: extract.SectionParagraph, CharStart: 0, CharEnd: len(doc.Text)}}
	}

	var out []pendingChunk
	var headingStack []headingEntry
	var acc strings.Builder
	var accType Type

	flush := func() {
		if acc.Len() == 0 {
			return
		}
		text := strings.TrimSpace(acc.String())
		acc.Reset()
		if text == "" {
			return
		}
		for _, piece := range splitAtSentenceBoundary(text, c.maxTokens()) {
			out = append(out, pendingChunk{
				text:           piece,
				chunkType:      accType,
				sectionTitle:   currentTitle(headingStack),
				parentSections: headingPath(headingStack),
			})
		}
		accType = ""
	}

	for _, sec := range sections {
		text := sectionText(doc, sec)
		if strings.TrimSpace(text) == "" {
			continue
		}

		switch sec.Type {
		case extract.SectionHeading:
			flush()
			headingStack = pushHeading(headingStack, sec.HeadingLevel, sec.Title)

		case extract.SectionTable, extract.SectionCode:
			flush()
			ct := TypeTable
			if sec.Type == extract.SectionCode {
				ct = TypeCode
			}
			out = append(out, pendingChunk{
				text:           strings.TrimSpace(text),
				chunkType:      ct,
				sectionTitle:   currentTitle(headingStack),
				parentSections: headingPath(headingStack),
			})

		case extract.SectionParagraph, extract.SectionList:
			ct := TypeParagraph
			if sec.Type == extract.SectionList {
				ct = TypeList
			}
			if accType != "" && accType != ct {
				ct = TypeMixed
			}
			projectedTokens := (acc.Len() + len(text)) / 4
			if projectedTokens > c.targetTokens() && acc.Len() > 0 {
				flush()
				ct = accTypeOrDefault(accType, sec.Type)
			}
			if acc.Len() > 0 {
				acc.WriteString("\n\n")
			}
			acc.WriteString(text)
			accType = ct

		default:
			if acc.Len() > 0 {
				acc.WriteString("\n\n")
			}
			acc.WriteString(text)
			if accType == "" {
				accType = TypeParagraph
			}
		}
	}
	flush()
	return out
}

func accTypeOrDefault(prev Type, sectionType extract.SectionType) Type {
	if sectionType == extract.SectionList {
		return TypeList
	}
	return TypeParagraph
}

func pushHeading(stack []headingEntry, level int, title string) []headingEntry {
	for len(stack) > 0 && stack[len(stack)-1].level >= level && level > 0 {
		stack = stack[:len(stack)-1]
	}
	return append(stack, headingEntry{level: level, title: title})
}

func currentTitle(stack []headingEntry) string {
	if len(stack) == 0 {
		return ""
	}
	return stack[len(stack)-1].title
}

// pendingChunk is a chunk before sequence/ID assignment, kept internal so
// both the structural and chat paths funnel through the same numbering
// logic in chunk.go.
type pendingChunk struct {
	text           string
	chunkType      Type
	sectionTitle   string
	parentSections []string
}
