package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractMarkdown_HeadingsTablesAndCode(t *testing.T) {
	src := "# Title\n\nSome intro paragraph.\n\n```go\nfmt.Println(\"hi\")\n```\n\n| a | b |\n|---|---|\n| 1 | 2 |\n"
	raw := RawDocument{Content: []byte(src), Filename: "notes.md"}

	doc, err := Extract(context.Background(), raw, Options{})
	require.NoError(t, err)
	assert.Equal(t, TypeMarkdown, doc.DocumentType)
	assert.Equal(t, "Title", doc.Source.Title)

	var sawHeading, sawCode, sawTable bool
	for _, s := range doc.StructuralMetadata {
		switch s.Type {
		case SectionHeading:
			sawHeading = true
		case SectionCode:
			sawCode = true
		case SectionTable:
			sawTable = true
		}
	}
	assert.True(t, sawHeading)
	assert.True(t, sawCode)
	assert.True(t, sawTable)
}

func TestExtractText_SingleParagraph(t *testing.T) {
	raw := RawDocument{Content: []byte("just some plain prose without markup"), Filename: "note.txt"}
	doc, err := Extract(context.Background(), raw, Options{})
	require.NoError(t, err)
	assert.Equal(t, TypeText, doc.DocumentType)
}

func TestExtract_EmptyTextIsRecoverableFailure(t *testing.T) {
	raw := RawDocument{Content: []byte("   \n\n  "), Filename: "blank.txt"}
	_, err := Extract(context.Background(), raw, Options{})
	require.Error(t, err)
	var xerr *ExtractionError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, ReasonEmptyText, xerr.Reason)
}

func TestExtract_TruncatesToMaxContentChars(t *testing.T) {
	raw := RawDocument{Content: []byte("abcdefghij"), Filename: "note.txt"}
	doc, err := Extract(context.Background(), raw, Options{MaxContentChars: 5})
	require.NoError(t, err)
	assert.True(t, doc.Truncated)
	assert.Equal(t, "abcde", doc.Text)
}
