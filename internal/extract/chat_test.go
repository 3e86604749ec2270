package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractLLMChat_Claude(t *testing.T) {
	src := `{
		"name": "Planning session",
		"chat_messages": [
			{"sender": "human", "text": "What's next?", "created_at": "2026-01-01T00:00:00Z"},
			{"sender": "assistant", "text": "Ship the release."}
		]
	}`
	raw := RawDocument{Content: []byte(src), Filename: "export.json"}
	doc, err := Extract(context.Background(), raw, Options{})
	require.NoError(t, err)
	assert.Equal(t, TypeLLMChat, doc.DocumentType)
	require.Len(t, doc.ChatTurns, 2)
	assert.Equal(t, "user", doc.ChatTurns[0].Speaker)
	assert.Equal(t, "assistant", doc.ChatTurns[1].Speaker)
	assert.Equal(t, "Planning session", doc.Source.Title)
}

func TestExtractLLMChat_ChatGPT(t *testing.T) {
	// Keys are deliberately out of chronological order (map iteration order
	// is randomized) so this only passes if turnsFromChatGPT sorts by
	// create_time instead of trusting map order.
	src := `{
		"title": "Debugging help",
		"mapping": {
			"b": {"message": {"author": {"role": "assistant"}, "content": {"parts": ["check the pointer"]}, "create_time": 1700000020}},
			"c": {"message": null},
			"a": {"message": {"author": {"role": "user"}, "content": {"parts": ["why is this nil"]}, "create_time": 1700000010}}
		}
	}`
	raw := RawDocument{Content: []byte(src), Filename: "conversations.json"}
	doc, err := Extract(context.Background(), raw, Options{})
	require.NoError(t, err)
	assert.Equal(t, TypeLLMChat, doc.DocumentType)
	require.Len(t, doc.ChatTurns, 2)
	assert.Equal(t, "user", doc.ChatTurns[0].Speaker)
	assert.Equal(t, "why is this nil", doc.ChatTurns[0].Text)
	assert.Equal(t, "assistant", doc.ChatTurns[1].Speaker)
	assert.Equal(t, "check the pointer", doc.ChatTurns[1].Text)
}

func TestExtractLLMChat_ChatGPTOrderIsDeterministicAcrossRuns(t *testing.T) {
	src := `{
		"title": "Debugging help",
		"mapping": {
			"z": {"message": {"author": {"role": "user"}, "content": {"parts": ["first"]}, "create_time": 1}},
			"m": {"message": {"author": {"role": "assistant"}, "content": {"parts": ["second"]}, "create_time": 2}},
			"a": {"message": {"author": {"role": "user"}, "content": {"parts": ["third"]}, "create_time": 3}}
		}
	}`
	raw := RawDocument{Content: []byte(src), Filename: "conversations.json"}

	first, err := Extract(context.Background(), raw, Options{})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		doc, err := Extract(context.Background(), raw, Options{})
		require.NoError(t, err)
		assert.Equal(t, first.ChatTurns, doc.ChatTurns)
	}
}
