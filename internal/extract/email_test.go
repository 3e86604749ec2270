package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractEmail_PlainTextBody(t *testing.T) {
	src := "From: alice@example.com\r\n" +
		"To: bob@example.com\r\n" +
		"Subject: Lunch plans\r\n" +
		"Message-ID: <abc123@example.com>\r\n" +
		"Date: Mon, 2 Jan 2026 09:00:00 +0000\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"Let's meet at noon.\r\n"
	raw := RawDocument{Content: []byte(src), Filename: "note.eml"}

	doc, err := Extract(context.Background(), raw, Options{})
	require.NoError(t, err)
	assert.Equal(t, TypeEmail, doc.DocumentType)
	assert.Equal(t, "Lunch plans", doc.Source.Subject)
	assert.Contains(t, doc.Text, "Let's meet at noon.")
	assert.Equal(t, "<abc123@example.com>", doc.Source.MessageID)
}

func TestDecodeTransferEncoding_Base64(t *testing.T) {
	decoded := decodeTransferEncoding([]byte("aGVsbG8gd29ybGQ="), "base64")
	assert.Equal(t, "hello world", string(decoded))
}

func TestDecodeTransferEncoding_Passthrough(t *testing.T) {
	decoded := decodeTransferEncoding([]byte("plain"), "")
	assert.Equal(t, "plain", string(decoded))
}
