package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/richardlehane/mscfb"
	"github.com/richardlehane/msoleps"
	"github.com/xuri/excelize/v2"
)

// extractOffice routes modern OOXML spreadsheets to excelize and legacy
// OLE-compound-file formats (.doc/.xls/.ppt) to a best-effort mscfb/msoleps
// reader. The teacher's own parser.LegacyParser defers these to an external
// conversion service; we extract what can be recovered locally instead,
// since the pipeline has no such service to call.
func extractOffice(_ context.Context, raw RawDocument, _ Options) (ExtractedDocument, error) {
	name := strings.ToLower(raw.Filename)
	switch {
	case strings.HasSuffix(name, ".xlsx"), strings.HasSuffix(name, ".xlsm"):
		return extractSpreadsheet(raw)
	case strings.HasSuffix(name, ".doc"), strings.HasSuffix(name, ".xls"), strings.HasSuffix(name, ".ppt"):
		return extractLegacyOLE(raw)
	}
	return ExtractedDocument{}, fatal(ReasonUnsupportedFormat, nil)
}

func extractSpreadsheet(raw RawDocument) (ExtractedDocument, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw.Content))
	if err != nil {
		return ExtractedDocument{}, fatal(ReasonCorruptInput, err)
	}
	defer f.Close()

	var sections []Section
	var b strings.Builder
	offset := 0
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		start := offset
		b.WriteString("## ")
		b.WriteString(sheet)
		b.WriteString("\n\n")
		offset += len(sheet) + 5
		for _, row := range rows {
			line := "| " + strings.Join(row, " | ") + " |\n"
			b.WriteString(line)
			offset += len(line)
		}
		b.WriteString("\n")
		offset += 1
		sections = append(sections, Section{
			Type:      SectionTable,
			Title:     sheet,
			CharStart: start,
			CharEnd:   offset,
		})
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return ExtractedDocument{}, recoverable(ReasonEmptyText, nil)
	}
	return ExtractedDocument{
		Text:               text,
		DocumentType:       TypeOffice,
		StructuralMetadata: sections,
		ExtractionMethod:   "excelize",
	}, nil
}

// extractLegacyOLE walks an OLE2 compound file with mscfb, pulling document
// properties from the SummaryInformation stream via msoleps and recovering
// body text heuristically from the remaining streams by keeping runs of
// printable UTF-16LE/ASCII text long enough to be real prose. Legacy binary
// Word/Excel/PowerPoint formats have no public pure-Go structural parser in
// the dependency set available here, so this is a best-effort extraction,
// not a full binary-format decoder.
func extractLegacyOLE(raw RawDocument) (ExtractedDocument, error) {
	reader, err := mscfb.New(bytes.NewReader(raw.Content))
	if err != nil {
		return ExtractedDocument{}, fatal(ReasonCorruptInput, err)
	}

	var textParts []string
	var title, author string

	for entry, err := reader.Next(); err == nil; entry, err = reader.Next() {
		switch entry.Name {
		case "\x05SummaryInformation":
			if props, perr := msoleps.New(entry); perr == nil {
				title, author = summaryProps(props)
			}
		case "WordDocument", "Workbook", "PowerPoint Document":
			buf := make([]byte, entry.Size)
			n, _ := entry.Read(buf)
			if t := printableRuns(buf[:n]); t != "" {
				textParts = append(textParts, t)
			}
		}
	}

	text := strings.TrimSpace(strings.Join(textParts, "\n"))
	if text == "" {
		return ExtractedDocument{}, recoverable(ReasonCorruptInput, fmt.Errorf("no recoverable text in legacy OLE stream"))
	}
	return ExtractedDocument{
		Text:             text,
		DocumentType:     TypeOffice,
		Source:           SourceMetadata{Title: title, Author: author},
		ExtractionMethod: "mscfb_heuristic",
	}, nil
}

func summaryProps(props *msoleps.File) (title, author string) {
	for _, p := range props.PropertySets {
		for _, entry := range p.Property {
			switch entry.Name {
			case "Title":
				title = fmt.Sprintf("%v", entry.Value)
			case "Author":
				author = fmt.Sprintf("%v", entry.Value)
			}
		}
	}
	return title, author
}

// printableRuns keeps contiguous runs of printable text at least 4
// characters long, the simplest reliable signal for "readable sentence"
// inside a binary stream that interleaves formatting records with text.
func printableRuns(buf []byte) string {
	var (
		out strings.Builder
		run strings.Builder
	)
	flush := func() {
		if run.Len() >= 4 {
			out.WriteString(run.String())
			out.WriteString("\n")
		}
		run.Reset()
	}
	for i := 0; i < len(buf); i++ {
		c := buf[i]
		// Treat a null-padded UTF-16LE ASCII byte pair ("t\x00e\x00...") as
		// the ASCII byte alone; Word's internal text runs are typically
		// UTF-16LE.
		if c == 0 {
			continue
		}
		r := rune(c)
		if unicode.IsPrint(r) && r < unicode.MaxASCII {
			run.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return strings.TrimSpace(out.String())
}
