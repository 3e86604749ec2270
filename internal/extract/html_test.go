package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractOther_HTMLToMarkdown(t *testing.T) {
	html := `<html><head><title>Example Article</title></head><body>
<article><h1>Example Article</h1><p>This is the body of the article with enough words to count as real content for the readability extractor to latch onto.</p></article>
</body></html>`
	raw := RawDocument{Content: []byte(html), Filename: "clip.html"}

	doc, err := extractOther(context.Background(), raw, Options{})
	require.NoError(t, err)
	assert.Equal(t, TypeOther, doc.DocumentType)
	assert.Equal(t, "html_to_markdown", doc.ExtractionMethod)
	assert.Contains(t, doc.Text, "body of the article")
}

func TestExtractOther_AudioWithoutTranscriberFails(t *testing.T) {
	raw := RawDocument{Content: []byte{0}, Filename: "memo.wav"}
	_, err := extractOther(context.Background(), raw, Options{})
	require.Error(t, err)
}

func TestExtractOther_UnsupportedFails(t *testing.T) {
	raw := RawDocument{Content: []byte("???"), Filename: "mystery.xyz"}
	_, err := extractOther(context.Background(), raw, Options{})
	require.Error(t, err)
}
