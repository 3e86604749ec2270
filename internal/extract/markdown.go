package extract

import (
	"context"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	extast "github.com/yuin/goldmark/extension/ast"
	gmext "github.com/yuin/goldmark/extension"
	gmtext "github.com/yuin/goldmark/text"
)

// extractMarkdownOrText passes text through unchanged and builds
// StructuralMetadata by walking a goldmark AST. Plain text is parsed the
// same way: goldmark treats an un-punctuated document as one large
// paragraph, which is the structure a .txt file actually has.
func extractMarkdownOrText(_ context.Context, raw RawDocument, _ Options, dt DocumentType) (ExtractedDocument, error) {
	src := raw.Content
	sections := parseMarkdownStructure(src)
	return ExtractedDocument{
		Text:               string(src),
		DocumentType:       dt,
		StructuralMetadata: sections,
		Source:             SourceMetadata{Title: firstHeading(sections, src)},
	}, nil
}

// parseMarkdownStructure walks the goldmark AST and emits one Section per
// top-level block, in the {type, heading_level?, title?, char_span,
// token_estimate} shape the chunker consumes.
func parseMarkdownStructure(src []byte) []Section {
	md := goldmark.New(goldmark.WithExtensions(gmext.GFM))
	reader := gmtext.NewReader(src)
	doc := md.Parser().Parse(reader)

	var sections []Section
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Parent() != doc {
			return ast.WalkContinue, nil
		}
		sec, ok := sectionFor(n, src)
		if ok {
			sections = append(sections, sec)
		}
		return ast.WalkSkipChildren, nil
	})
	return sections
}

func sectionFor(n ast.Node, src []byte) (Section, bool) {
	lines := n.Lines()
	start, end := 0, 0
	if lines.Len() > 0 {
		start = lines.At(0).Start
		end = lines.At(lines.Len() - 1).Stop
	}

	switch v := n.(type) {
	case *ast.Heading:
		title := string(n.Text(src))
		return Section{
			Type:          SectionHeading,
			HeadingLevel:  v.Level,
			Title:         title,
			CharStart:     start,
			CharEnd:       end,
			TokenEstimate: estimateTokens(title),
		}, true
	case *ast.FencedCodeBlock:
		return sectionFromLines(SectionCode, n, src, start, end), true
	case *ast.CodeBlock:
		return sectionFromLines(SectionCode, n, src, start, end), true
	case *ast.List:
		return sectionFromLines(SectionList, n, src, start, end), true
	case *ast.Paragraph:
		return sectionFromLines(SectionParagraph, n, src, start, end), true
	case *ast.TextBlock:
		return sectionFromLines(SectionParagraph, n, src, start, end), true
	case *extast.Table:
		return tableSection(n, src, start, end), true
	default:
		return Section{}, false
	}
}

// tableSection spans the whole GFM table block, including header and
// delimiter rows, so the chunker can keep a table as one standalone unit.
func tableSection(n ast.Node, src []byte, start, end int) Section {
	// Table nodes may not carry contiguous Lines(); fall back to the span
	// of the first and last child rows when that happens.
	if start == 0 && end == 0 {
		if first := n.FirstChild(); first != nil {
			if l := first.Lines(); l.Len() > 0 {
				start = l.At(0).Start
			}
		}
		if last := n.LastChild(); last != nil {
			if l := last.Lines(); l.Len() > 0 {
				end = l.At(l.Len() - 1).Stop
			}
		}
	}
	text := ""
	if start < end && end <= len(src) {
		text = string(src[start:end])
	}
	return Section{
		Type:          SectionTable,
		CharStart:     start,
		CharEnd:       end,
		TokenEstimate: estimateTokens(text),
	}
}

func sectionFromLines(t SectionType, n ast.Node, src []byte, start, end int) Section {
	text := ""
	if start < end && end <= len(src) {
		text = string(src[start:end])
	} else {
		text = string(n.Text(src))
	}
	return Section{
		Type:          t,
		CharStart:     start,
		CharEnd:       end,
		TokenEstimate: estimateTokens(text),
	}
}

func firstHeading(sections []Section, src []byte) string {
	for _, s := range sections {
		if s.Type == SectionHeading {
			return s.Title
		}
	}
	// Fall back to the first non-empty line.
	for _, line := range strings.Split(string(src), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func estimateTokens(s string) int {
	if len(s) == 0 {
		return 0
	}
	return (len(s) + 3) / 4
}
