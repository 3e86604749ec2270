package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/knowledgeforge/ingest/internal/chunk"
	"github.com/knowledgeforge/ingest/internal/config"
	"github.com/knowledgeforge/ingest/internal/enrich"
	"github.com/knowledgeforge/ingest/internal/extract"
	"github.com/knowledgeforge/ingest/internal/llm"
	"github.com/knowledgeforge/ingest/internal/objectstore"
	"github.com/knowledgeforge/ingest/internal/persistence/databases"
	"github.com/knowledgeforge/ingest/internal/rag/embedder"
	"github.com/knowledgeforge/ingest/internal/store"
	"github.com/knowledgeforge/ingest/internal/triage"
	"github.com/knowledgeforge/ingest/internal/vocab"
)

// staticProvider is a deterministic llm.Provider test double that always
// emits the same tool call arguments, mirroring the toolCallProvider
// pattern used in internal/enrich's own tests.
type staticProvider struct {
	mu    sync.Mutex
	args  map[string]any
	calls int
}

func (p *staticProvider) Chat(_ context.Context, _ []llm.Message, tools []llm.ToolSchema, _ string) (llm.Message, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	raw, _ := json.Marshal(p.args)
	name := ""
	if len(tools) > 0 {
		name = tools[0].Name
	}
	return llm.Message{Role: "assistant", ToolCalls: []llm.ToolCall{{Name: name, Args: raw}}}, nil
}

func (p *staticProvider) ChatStream(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, h llm.StreamHandler) error {
	msg, err := p.Chat(ctx, msgs, tools, model)
	if err != nil {
		return err
	}
	for _, tc := range msg.ToolCalls {
		h.OnToolCall(tc)
	}
	return nil
}

const testVocabYAML = `
concepts:
  - id: vocab:fedora
    pref_label: Fedora
    type: Software
  - id: vocab:qemu
    pref_label: QEMU
    type: Software
`

func newTestPipeline(t *testing.T, llmArgs map[string]any) (*Pipeline, databases.VectorStore) {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Vault.RootDir = t.TempDir()

	vocabPath := filepath.Join(t.TempDir(), "concepts.yaml")
	require.NoError(t, os.WriteFile(vocabPath, []byte(testVocabYAML), 0o644))
	v, err := vocab.Load(vocabPath)
	require.NoError(t, err)

	if llmArgs == nil {
		llmArgs = map[string]any{
			"title":   "A perfectly descriptive generated title",
			"summary": "A short summary of the content for testing purposes.",
		}
	}
	provider := &staticProvider{args: llmArgs}

	cost := enrich.NewCostAccumulator()
	enricher := &enrich.Enricher{
		Chain:           []enrich.ChainEntry{{Provider: provider, Model: "test-model", Name: "test"}},
		Vocabulary:      v,
		Cost:            cost,
		MaxContentChars: cfg.Enrich.MaxContentChars,
	}

	vec := databases.NewMemoryVector()
	scalar := triage.NewScalarIndex()
	triageSvc := triage.NewService(triage.MultiLookup{scalar}, triage.NewFuzzyIndex(), cfg.Triage.SimilarityThreshold)

	p := &Pipeline{
		cfg: cfg,
		log: noopLogger{},
		extractOpts: extract.Options{
			MaxContentChars:               cfg.Enrich.MaxContentChars,
			MaxConcurrentImageExtractions: 2,
		},
		triageSvc:   triageSvc,
		enricher:    enricher,
		cost:        cost,
		chunker:     chunk.New(cfg.Chunking),
		vault:       store.NewVault(cfg.Vault),
		vec:         vec,
		emb:         embedder.NewDeterministic(8, false, 1),
		objStore:    objectstore.NewMemoryStore(),
		scalarIndex: scalar,
		llmSem:      semaphore.NewWeighted(4),
	}
	return p, vec
}

// Scenario 1: duplicate detection (spec.md §8.1).
func TestPipeline_DuplicateDetection(t *testing.T) {
	p, _ := newTestPipeline(t, nil)
	ctx := context.Background()

	raw := extract.RawDocument{Content: []byte("Kita schedule: Mon 08:00, Wed 08:00"), Filename: "schedule.txt"}

	first, err := p.Ingest(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, StatusStored, first.Status)
	assert.Equal(t, "unique", first.Action)
	require.Len(t, first.ChunkIDs, 1)

	second, err := p.Ingest(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, second.Status)
	assert.Equal(t, "duplicate", second.Action)
	assert.Equal(t, first.DocID, second.MatchedDocID)
}

// Scenario 2: email created_date drives the export filename/frontmatter,
// not ingestion time (spec.md §8.2).
func TestPipeline_EmailCreatedDate(t *testing.T) {
	p, _ := newTestPipeline(t, nil)
	ctx := context.Background()

	src := "From: alice@example.com\r\n" +
		"To: bob@example.com\r\n" +
		"Subject: Quarterly planning notes and follow-ups\r\n" +
		"Message-ID: <plan-2024@example.com>\r\n" +
		"Date: Mon, 22 Jan 2024 10:30:00 +0000\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"We discussed the roadmap for the next two quarters and agreed on priorities.\r\n"
	raw := extract.RawDocument{Content: []byte(src), Filename: "planning.eml"}

	res, err := p.Ingest(ctx, raw)
	require.NoError(t, err)
	require.Equal(t, StatusStored, res.Status)
	assert.Contains(t, filepath.Base(res.ExportPath), "2024-01-22__email__")

	data, err := os.ReadFile(res.ExportPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "created_date: 2024-01-22")

	dayNote := filepath.Join(p.cfg.Vault.RootDir, p.cfg.Vault.DailyNotesDir, "2024-01-22.md")
	dayData, err := os.ReadFile(dayNote)
	require.NoError(t, err)
	assert.Contains(t, string(dayData), res.DocID)
}

// Scenario 3: controlled-vocabulary enforcement (spec.md §8.3).
func TestPipeline_ControlledVocabularyEnforcement(t *testing.T) {
	args := map[string]any{
		"title":         "Rebuilding the homelab on Fedora and QEMU",
		"summary":       "Notes on migrating homelab virtualization to Fedora with QEMU.",
		"topics":        []string{"super-linux"},
		"technologies":  []string{"Fedora", "QEMU"},
		"people":        []string{},
		"organizations": []string{},
	}
	p, _ := newTestPipeline(t, args)
	ctx := context.Background()

	raw := extract.RawDocument{
		Content:  []byte("Long-form notes about reinstalling the homelab hypervisor using Fedora Linux and QEMU for virtual machines, with details on networking and storage passthrough configuration that make this worth indexing."),
		Filename: "homelab.txt",
	}
	res, err := p.Ingest(ctx, raw)
	require.NoError(t, err)
	require.Equal(t, StatusStored, res.Status)

	data, err := os.ReadFile(res.ExportPath)
	require.NoError(t, err)
	body := string(data)
	assert.Contains(t, body, "Fedora")
	assert.Contains(t, body, "QEMU")
	assert.Contains(t, body, "suggested_vocabulary_additions")
	assert.Contains(t, body, "super-linux")
	assert.NotContains(t, body, "people:\n    - Fedora")
}

// Scenario 4: chat-log chunking never spans a topic boundary (spec.md §8.4).
func TestPipeline_ChatLogChunking(t *testing.T) {
	p, _ := newTestPipeline(t, nil)
	ctx := context.Background()

	turns := []map[string]string{
		{"sender": "human", "text": "How do I create a bootable Fedora USB drive for installation?"},
		{"sender": "assistant", "text": "Use Fedora Media Writer to write the Fedora ISO image to the USB drive."},
		{"sender": "human", "text": "What tool writes the Fedora ISO image fastest on Linux?"},
		{"sender": "assistant", "text": "dd or Fedora Media Writer both write the Fedora ISO image reliably."},
		{"sender": "human", "text": "Next question: why won't macOS Internet Recovery start on my Mac?"},
		{"sender": "assistant", "text": "Internet Recovery on macOS needs Option-Command-R held at startup over a wired connection."},
		{"sender": "human", "text": "Which macOS Internet Recovery key combo reinstalls the original shipped macOS version?"},
		{"sender": "assistant", "text": "Shift-Option-Command-R reinstalls the macOS version the Mac originally shipped with."},
	}
	chatJSON, _ := json.Marshal(map[string]any{
		"name":          "Mixed support session",
		"chat_messages": turns,
	})
	raw := extract.RawDocument{Content: chatJSON, Filename: "conversations.json"}

	res, err := p.Ingest(ctx, raw)
	require.NoError(t, err)
	require.Equal(t, StatusStored, res.Status)
	require.GreaterOrEqual(t, len(res.ChunkIDs), 2)
}

// Scenario 5: a markdown table embedded in prose survives into the export
// (spec.md §8.5). Only the export is checked; chunk boundaries are not.
func TestPipeline_TablePreservation(t *testing.T) {
	p, _ := newTestPipeline(t, nil)
	ctx := context.Background()

	var table string
	table += "| Day | Slot |\n|---|---|\n"
	for i := 1; i <= 10; i++ {
		table += "| Day " + string(rune('0'+i%10)) + " | Slot " + string(rune('0'+i%10)) + " |\n"
	}
	md := "# Weekly Plan\n\nSome introductory prose about the week ahead and what it covers.\n\n" + table + "\nMore prose discussing follow-ups after the table.\n"
	raw := extract.RawDocument{Content: []byte(md), Filename: "weekly-plan.md"}

	res, err := p.Ingest(ctx, raw)
	require.NoError(t, err)
	require.Equal(t, StatusStored, res.Status)

	data, err := os.ReadFile(res.ExportPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Slot 1")
}

// Scenario 6: gating a near-empty document yields no vectors and a gated
// export (spec.md §8.6).
func TestPipeline_GatingNearEmptyDocument(t *testing.T) {
	p, vec := newTestPipeline(t, nil)
	ctx := context.Background()

	raw := extract.RawDocument{Content: []byte("Quick note"), Filename: "note.txt"}
	res, err := p.Ingest(ctx, raw)
	require.NoError(t, err)
	assert.False(t, res.DoIndex)
	assert.Empty(t, res.ChunkIDs)

	data, err := os.ReadFile(res.ExportPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "gated: true")

	hits, err := vec.SimilaritySearch(ctx, make([]float32, 8), 10, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
