package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestPrintableRuns_KeepsLongRunsDropsNoise(t *testing.T) {
	buf := []byte("\x00\x00Hello world\x00\x01\x02abc\x03meaningful text here\x00")
	out := printableRuns(buf)
	assert.Contains(t, out, "Hello world")
	assert.Contains(t, out, "meaningful text here")
	assert.NotContains(t, out, "abc")
}

func TestExtractSpreadsheet_BuildsTableSections(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetCellValue(sheet, "A1", "Name"))
	require.NoError(t, f.SetCellValue(sheet, "B1", "Role"))
	require.NoError(t, f.SetCellValue(sheet, "A2", "Ada"))
	require.NoError(t, f.SetCellValue(sheet, "B2", "Engineer"))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	doc, err := extractSpreadsheet(RawDocument{Content: buf.Bytes(), Filename: "roster.xlsx"})
	require.NoError(t, err)
	assert.Equal(t, TypeOffice, doc.DocumentType)
	assert.Equal(t, "excelize", doc.ExtractionMethod)
	assert.Contains(t, doc.Text, "Name")
	assert.Contains(t, doc.Text, "Ada")
	require.Len(t, doc.StructuralMetadata, 1)
	assert.Equal(t, SectionTable, doc.StructuralMetadata[0].Type)
}
