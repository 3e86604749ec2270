package extract

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// chatGPTExport and claudeExport model the two exported-transcript JSON
// shapes from ChatGPT and Claude. Only a single conversation object of
// either shape is parsed; a top-level JSON array (of conversations or of
// messages) is not.
type chatGPTMessage struct {
	Author struct {
		Role string `json:"role"`
	} `json:"author"`
	Content struct {
		Parts []string `json:"parts"`
	} `json:"content"`
	CreateTime float64 `json:"create_time"`
}

type chatGPTExport struct {
	Title            string                    `json:"title"`
	MappingByMessage map[string]chatGPTMapping `json:"mapping"`
}

type chatGPTMapping struct {
	Message *chatGPTMessage `json:"message"`
}

type claudeMessage struct {
	Sender    string `json:"sender"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

type claudeExport struct {
	Name         string          `json:"name"`
	ChatMessages []claudeMessage `json:"chat_messages"`
}

// looksLikeChatExport sniffs for the distinguishing keys of either export
// shape without fully unmarshalling.
func looksLikeChatExport(content []byte) bool {
	return strings.Contains(string(content), `"mapping"`) ||
		strings.Contains(string(content), `"chat_messages"`)
}

// extractLLMChat parses a ChatGPT or Claude JSON export into alternating
// turns, retaining turn boundaries as explicit structural markers.
func extractLLMChat(_ context.Context, raw RawDocument, _ Options) (ExtractedDocument, error) {
	var turns []ChatTurn
	title := ""

	var cg chatGPTExport
	if err := json.Unmarshal(raw.Content, &cg); err == nil && len(cg.MappingByMessage) > 0 {
		title = cg.Title
		turns = turnsFromChatGPT(cg)
	} else {
		var cl claudeExport
		if err := json.Unmarshal(raw.Content, &cl); err == nil && len(cl.ChatMessages) > 0 {
			title = cl.Name
			turns = turnsFromClaude(cl)
		}
	}
	if len(turns) == 0 {
		return ExtractedDocument{}, recoverable(ReasonUnsupportedFormat, nil)
	}

	var b strings.Builder
	for _, t := range turns {
		b.WriteString("### ")
		b.WriteString(strings.Title(t.Speaker))
		b.WriteString("\n")
		b.WriteString(t.Text)
		b.WriteString("\n\n")
	}

	return ExtractedDocument{
		Text:         strings.TrimSpace(b.String()),
		DocumentType: TypeLLMChat,
		ChatTurns:    turns,
		Source:       SourceMetadata{Title: title},
	}, nil
}

// turnsFromChatGPT walks the export's message map and orders turns by
// CreateTime. The map itself (keyed by node ID) has no stable iteration
// order, so sorting here is what makes ChatTurns — and therefore
// content_sha256 and the turn-pair chunker's topic-shift detection —
// deterministic across runs of the same export.
func turnsFromChatGPT(cg chatGPTExport) []ChatTurn {
	type timedTurn struct {
		turn       ChatTurn
		createTime float64
	}
	entries := make([]timedTurn, 0, len(cg.MappingByMessage))
	for _, m := range cg.MappingByMessage {
		if m.Message == nil {
			continue
		}
		role := m.Message.Author.Role
		if role != "user" && role != "assistant" {
			continue
		}
		text := strings.Join(m.Message.Content.Parts, "\n")
		if strings.TrimSpace(text) == "" {
			continue
		}
		turn := ChatTurn{Speaker: role, Text: text}
		if m.Message.CreateTime > 0 {
			turn.Timestamp = time.Unix(int64(m.Message.CreateTime), 0).UTC().Format(time.RFC3339)
		}
		entries = append(entries, timedTurn{turn: turn, createTime: m.Message.CreateTime})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].createTime < entries[j].createTime })

	turns := make([]ChatTurn, len(entries))
	for i, e := range entries {
		turns[i] = e.turn
	}
	return turns
}

func turnsFromClaude(cl claudeExport) []ChatTurn {
	turns := make([]ChatTurn, 0, len(cl.ChatMessages))
	for _, m := range cl.ChatMessages {
		role := m.Sender
		if role == "" {
			role = m.Role
		}
		if role == "human" {
			role = "user"
		}
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		turns = append(turns, ChatTurn{Speaker: role, Text: m.Text, Timestamp: m.CreatedAt})
	}
	return turns
}
