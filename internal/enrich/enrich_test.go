package enrich

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowledgeforge/ingest/internal/extract"
	"github.com/knowledgeforge/ingest/internal/llm"
	"github.com/knowledgeforge/ingest/internal/triage"
	"github.com/knowledgeforge/ingest/internal/vocab"
)

const testVocabYAML = `
concepts:
  - id: vocab:fedora
    pref_label: Fedora
    type: Software
  - id: vocab:qemu
    pref_label: QEMU
    type: Software
  - id: vocab:homelab
    pref_label: Homelab
    type: Topic
  - id: vocab:watchtower
    pref_label: Project Watchtower
    type: Project
    watchlist: [watchtower]
`

func loadTestVocab(t *testing.T) *vocab.Vocabulary {
	t.Helper()
	path := filepath.Join(t.TempDir(), "concepts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testVocabYAML), 0o644))
	v, err := vocab.Load(path)
	require.NoError(t, err)
	return v
}

// toolCallProvider is a deterministic test double implementing llm.Provider:
// it always answers by emitting the configured tool call args, mirroring
// how a structured-output provider behaves on the happy path.
type toolCallProvider struct {
	toolName string
	args     any
	err      error
	calls    int
}

func (p *toolCallProvider) Chat(_ context.Context, _ []llm.Message, _ []llm.ToolSchema, model string) (llm.Message, error) {
	p.calls++
	if p.err != nil {
		return llm.Message{}, p.err
	}
	raw, _ := json.Marshal(p.args)
	return llm.Message{
		Role: "assistant",
		ToolCalls: []llm.ToolCall{
			{Name: p.toolName, Args: raw},
		},
	}, nil
}

func (p *toolCallProvider) ChatStream(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, h llm.StreamHandler) error {
	msg, err := p.Chat(ctx, msgs, tools, model)
	if err != nil {
		return err
	}
	for _, tc := range msg.ToolCalls {
		h.OnToolCall(tc)
	}
	return nil
}

// emptyProvider never returns a tool call, simulating invalid_response.
type emptyProvider struct{ calls int }

func (p *emptyProvider) Chat(_ context.Context, _ []llm.Message, _ []llm.ToolSchema, _ string) (llm.Message, error) {
	p.calls++
	return llm.Message{Role: "assistant", Content: "sure, here is a summary..."}, nil
}

func (p *emptyProvider) ChatStream(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, h llm.StreamHandler) error {
	_, err := p.Chat(ctx, msgs, tools, model)
	return err
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestEnrich_VocabularyEnforcement(t *testing.T) {
	v := loadTestVocab(t)
	provider := &toolCallProvider{
		toolName: toolName,
		args: candidate{
			Title:        "Rebuilding the Fedora QEMU lab from scratch",
			Summary:      "Notes on reinstalling a Fedora host running QEMU virtual machines for the homelab.",
			Topics:       []string{"Homelab", "Containers"}, // Containers is not in vocab -> suggestion
			People:       []string{"Fedora", "QEMU"},         // both are Software, not people
			Technologies: []string{"Fedora"},
		},
	}
	e := &Enricher{
		Chain:      []ChainEntry{{Provider: provider, Model: "test-model", Name: "test"}},
		Vocabulary: v,
		Now:        fixedNow(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	}

	doc := extract.ExtractedDocument{Text: "Reinstalled Fedora and reconfigured QEMU for the homelab.", DocumentType: extract.TypeMarkdown}
	m, err := e.Enrich(context.Background(), doc, "notes.md", "notes", time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), triage.CategoryArchival)

	require.NoError(t, err)
	assert.False(t, m.EnrichmentFailed)
	assert.Empty(t, m.People, "Fedora/QEMU must be reclassified out of people")
	assert.Len(t, m.Technologies, 2, "Fedora (named in both people and technologies) and QEMU should each land in technologies once")
	assert.Contains(t, m.Topics, "vocab:homelab")
	assert.Contains(t, m.SuggestedVocabularyAdditions, "Containers")
}

func TestEnrich_WatchlistAutoAttach(t *testing.T) {
	v := loadTestVocab(t)
	provider := &toolCallProvider{
		toolName: toolName,
		args: candidate{
			Title:   "Status update on the infrastructure migration",
			Summary: "Progress notes, no project named explicitly.",
		},
	}
	e := &Enricher{
		Chain:      []ChainEntry{{Provider: provider, Model: "test-model", Name: "test"}},
		Vocabulary: v,
		Now:        fixedNow(time.Now()),
	}

	doc := extract.ExtractedDocument{Text: "The watchtower service redeployed cleanly overnight.", DocumentType: extract.TypeMarkdown}
	m, err := e.Enrich(context.Background(), doc, "status.md", "status", time.Now(), triage.CategoryArchival)

	require.NoError(t, err)
	assert.Contains(t, m.Projects, "vocab:watchtower")
}

func TestEnrich_GenericTitleFallsBackToFilename(t *testing.T) {
	v := loadTestVocab(t)
	provider := &toolCallProvider{
		toolName: toolName,
		args: candidate{
			Title:   "Untitled",
			Summary: "Some notes.",
		},
	}
	e := &Enricher{
		Chain:      []ChainEntry{{Provider: provider, Model: "test-model", Name: "test"}},
		Vocabulary: v,
		Now:        fixedNow(time.Now()),
	}

	created := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	doc := extract.ExtractedDocument{Text: "some notes", DocumentType: extract.TypeMarkdown}
	m, err := e.Enrich(context.Background(), doc, "project_kickoff_notes.txt", "", created, triage.CategoryArchival)

	require.NoError(t, err)
	assert.Equal(t, "2025-06-15 - project kickoff notes", m.Title)
}

func TestEnrich_ChainExhaustionFailsClosed(t *testing.T) {
	p1 := &emptyProvider{}
	p2 := &emptyProvider{}
	e := &Enricher{
		Chain: []ChainEntry{
			{Provider: p1, Model: "cheap", Name: "fast-provider"},
			{Provider: p2, Model: "expensive", Name: "fallback-provider"},
		},
		Vocabulary: vocab.New(),
		Now:        fixedNow(time.Now()),
	}

	doc := extract.ExtractedDocument{Text: "some content", DocumentType: extract.TypeMarkdown}
	m, err := e.Enrich(context.Background(), doc, "raw_dump_2025.txt", "raw dump", time.Now(), triage.CategoryArchival)

	require.NoError(t, err)
	assert.True(t, m.EnrichmentFailed)
	assert.Equal(t, 2, p1.calls, "one initial attempt plus one stricter re-ask before falling back")
	assert.Equal(t, 2, p2.calls)
}

func TestEnrich_RecordsCost(t *testing.T) {
	v := vocab.New()
	provider := &toolCallProvider{
		toolName: toolName,
		args:     candidate{Title: "A perfectly reasonable title here", Summary: "A summary of sufficient length."},
	}
	acc := NewCostAccumulator()
	e := &Enricher{
		Chain:      []ChainEntry{{Provider: provider, Model: "gpt-4o-mini", Name: "openai"}},
		Vocabulary: v,
		Cost:       acc,
		Now:        fixedNow(time.Now()),
	}

	doc := extract.ExtractedDocument{Text: "content", DocumentType: extract.TypeMarkdown}
	_, err := e.Enrich(context.Background(), doc, "f.md", "f", time.Now(), triage.CategoryArchival)
	require.NoError(t, err)

	totals := acc.Totals()
	assert.Equal(t, 1, totals.Calls)
}
