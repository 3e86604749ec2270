package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractImage_HighConfidenceOCRSkipsVisual(t *testing.T) {
	raw := RawDocument{Content: []byte{0x89, 'P', 'N', 'G'}, Filename: "scan.png"}
	opt := Options{
		OCR:                          fakeOCR{text: "the quick brown fox jumps", confidence: 0.95},
		Visual:                       fakeVisual{text: "should not be used"},
		VisualLLMConfidenceThreshold: 0.5,
		DictionaryWordRatioThreshold: 0.5,
	}

	doc, err := extractImage(context.Background(), raw, opt)
	require.NoError(t, err)
	assert.Equal(t, "ocr", doc.ExtractionMethod)
	assert.Contains(t, doc.Text, "quick brown fox")
	assert.Equal(t, 0, doc.PageCost)
}

func TestExtractImage_LowConfidenceEscalatesToVisual(t *testing.T) {
	raw := RawDocument{Content: []byte{0x89, 'P', 'N', 'G'}, Filename: "scan.png"}
	opt := Options{
		OCR:                          fakeOCR{text: "##$@!!", confidence: 0.1},
		Visual:                       fakeVisual{text: "a handwritten note about the budget"},
		VisualLLMConfidenceThreshold: 0.5,
		DictionaryWordRatioThreshold: 0.5,
	}

	doc, err := extractImage(context.Background(), raw, opt)
	require.NoError(t, err)
	assert.Equal(t, "visual_llm", doc.ExtractionMethod)
	assert.Equal(t, 1, doc.PageCost)
}

func TestExtractImage_NoCollaboratorsFails(t *testing.T) {
	raw := RawDocument{Content: []byte{0x89, 'P', 'N', 'G'}, Filename: "scan.png"}
	_, err := extractImage(context.Background(), raw, Options{})
	require.Error(t, err)
}
