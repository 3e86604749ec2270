package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowledgeforge/ingest/internal/config"
	"github.com/knowledgeforge/ingest/internal/enrich"
	"github.com/knowledgeforge/ingest/internal/extract"
)

func testVaultConfig(t *testing.T) config.VaultConfig {
	root := t.TempDir()
	return config.VaultConfig{
		RootDir:         root,
		EntitiesDir:     "entities",
		DailyNotesDir:   "daily",
		WeeklyNotesDir:  "weekly",
		MonthlyNotesDir: "monthly",
	}
}

func TestWriteDocument_FrontmatterAndRollups(t *testing.T) {
	cfg := testVaultConfig(t)
	v := NewVault(cfg)

	meta := enrich.Metadata{
		Title:                        "Homelab notes on Fedora and QEMU",
		Summary:                      "Reinstalling the homelab hypervisor.",
		Topics:                       []string{"virtualization"},
		SuggestedVocabularyAdditions: []string{"super-linux"},
		EnrichmentVersion:            enrich.CurrentEnrichmentVersion,
		People:                       []enrich.Entity{},
		Organizations:                []enrich.Entity{},
		Technologies: []enrich.Entity{
			{Label: "Fedora", PrefLabel: "Fedora"},
			{Label: "QEMU", PrefLabel: "QEMU"},
		},
	}
	doc := extract.ExtractedDocument{Text: "Notes about Fedora and QEMU networking.", DocumentType: extract.TypeMarkdown}
	refs := BuildEntityRefs(meta)

	created := time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC)
	path, err := v.WriteDocument(WriteOptions{
		DocID:       "doc-12345678",
		Filename:    "homelab.md",
		DocType:     extract.TypeMarkdown,
		CreatedDate: created,
		IngestedAt:  created,
		Gated:       false,
	}, meta, doc, nil, refs)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	body := string(data)

	assert.Contains(t, body, "created_date: 2024-01-22")
	assert.Contains(t, body, "gated: false")
	assert.Contains(t, body, "suggested_vocabulary_additions")
	assert.Contains(t, body, "super-linux")
	assert.Contains(t, body, "[[refs/technologies/fedora|Fedora]]")

	stub := filepath.Join(cfg.RootDir, cfg.EntitiesDir, "technologies", "fedora.md")
	_, err = os.Stat(stub)
	require.NoError(t, err, "entity stub should be created under the vault root")

	daily := filepath.Join(cfg.RootDir, cfg.DailyNotesDir, "2024-01-22.md")
	dailyData, err := os.ReadFile(daily)
	require.NoError(t, err, "daily note should be created under the vault root")
	assert.Contains(t, string(dailyData), "doc-12345678")

	week := filepath.Join(cfg.RootDir, cfg.WeeklyNotesDir, "2024-W04.md")
	_, err = os.Stat(week)
	require.NoError(t, err, "weekly roll-up should be created under the vault root")
}

func TestWriteDocument_PlacesTagsAndDates(t *testing.T) {
	cfg := testVaultConfig(t)
	v := NewVault(cfg)

	meta := enrich.Metadata{
		Title:              "Road trip planning",
		Summary:            "Routing through the Pacific Northwest.",
		Topics:             []string{"travel"},
		Projects:           []string{"roadtrip-2024"},
		Places:             []string{"Seattle"},
		EnrichmentVersion:  enrich.CurrentEnrichmentVersion,
		Dates: []enrich.DateRecord{
			{Raw: "next Friday", ISO: "2024-06-14", Type: "relative"},
		},
	}
	doc := extract.ExtractedDocument{Text: "We'll leave for Seattle next Friday.", DocumentType: extract.TypeMarkdown}
	refs := BuildEntityRefs(meta)
	require.Len(t, refs.Places, 1)
	assert.Equal(t, "places", refs.Places[0].Kind)

	created := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	path, err := v.WriteDocument(WriteOptions{
		DocID:        "doc-roadtrip",
		Filename:     "roadtrip.md",
		DocType:      extract.TypeMarkdown,
		CreatedDate:  created,
		IngestedAt:   created,
		SourceSHA256: "abcdef0123456789",
	}, meta, doc, nil, refs)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	body := string(data)

	assert.Contains(t, body, "[[refs/places/seattle|Seattle]]")
	assert.Contains(t, body, "topic/travel")
	assert.Contains(t, body, "project/roadtrip-2024")
	assert.Contains(t, body, "place/Seattle")
	assert.Contains(t, body, "doc/markdown")
	assert.Contains(t, body, "iso: 2024-06-14")

	assert.Equal(t, "2024-06-01__markdown__road-trip-planning__abcd.md", filepath.Base(path))

	placeStub := filepath.Join(cfg.RootDir, cfg.EntitiesDir, "places", "seattle.md")
	_, err = os.Stat(placeStub)
	require.NoError(t, err, "place entity stub should be created under the vault root")

	dateStub := filepath.Join(cfg.RootDir, cfg.EntitiesDir, "dates", "2024-06-14.md")
	_, err = os.Stat(dateStub)
	require.NoError(t, err, "date stub should be created under the vault root")
}

func TestWriteDocument_ReingestDedupesDailyNoteEntry(t *testing.T) {
	cfg := testVaultConfig(t)
	v := NewVault(cfg)

	meta := enrich.Metadata{Title: "Quick note", EnrichmentVersion: enrich.CurrentEnrichmentVersion}
	doc := extract.ExtractedDocument{Text: "short", DocumentType: extract.TypeMarkdown}
	created := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	opts := WriteOptions{DocID: "dup-doc-id", Filename: "n.md", DocType: extract.TypeMarkdown, CreatedDate: created, IngestedAt: created}

	_, err := v.WriteDocument(opts, meta, doc, nil, EntityRefs{})
	require.NoError(t, err)
	_, err = v.WriteDocument(opts, meta, doc, nil, EntityRefs{})
	require.NoError(t, err)

	daily := filepath.Join(cfg.RootDir, cfg.DailyNotesDir, "2024-03-01.md")
	data, err := os.ReadFile(daily)
	require.NoError(t, err)
	assert.Equal(t, 1, countOccurrences(string(data), "(dup-doc-id)"))
}

func countOccurrences(s, substr string) int {
	count := 0
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			count++
			i += len(substr) - 1
		}
	}
	return count
}
