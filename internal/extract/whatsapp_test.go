package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractWhatsApp_GroupsContinuationLines(t *testing.T) {
	src := "1/2/24, 9:41 AM - Alice: Hey are we still on for lunch?\n" +
		"continued thought on the next line\n" +
		"1/2/24, 9:42 AM - Bob: yep, noon works\n"
	raw := RawDocument{Content: []byte(src), Filename: "chat.txt"}

	doc, err := Extract(context.Background(), raw, Options{})
	require.NoError(t, err)
	assert.Equal(t, TypeWhatsApp, doc.DocumentType)
	require.Len(t, doc.ChatTurns, 2)
	assert.Equal(t, "Alice", doc.ChatTurns[0].Speaker)
	assert.Contains(t, doc.ChatTurns[0].Text, "continued thought")
	assert.Equal(t, "Bob", doc.ChatTurns[1].Speaker)
}

func TestLooksLikeWhatsApp_RequiresMultipleHits(t *testing.T) {
	assert.False(t, looksLikeWhatsApp([]byte("just some regular notes\nwith no timestamps")))
	assert.True(t, looksLikeWhatsApp([]byte("1/2/24, 9:41 AM - Alice: hi\n1/2/24, 9:42 AM - Bob: hello")))
}
