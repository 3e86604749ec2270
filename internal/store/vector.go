package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/knowledgeforge/ingest/internal/chunk"
	"github.com/knowledgeforge/ingest/internal/enrich"
	"github.com/knowledgeforge/ingest/internal/persistence/databases"
	"github.com/knowledgeforge/ingest/internal/rag/embedder"
	"github.com/knowledgeforge/ingest/internal/triage"
)

// UpsertChunks embeds every chunk's text and writes it to the vector store,
// flattening EnrichedMetadata onto each point per spec.md §4.5's "Vector
// persistence" contract. Grounded on internal/rag/ingest/index_vector.go's
// embed-then-upsert shape, adapted from a generic ingest request to the
// document's own enrichment record. fp's scalar fields are carried onto
// every point so a later Triage pass can find this document by exact
// content/title/format-key match via triage.VectorLookup.
func UpsertChunks(ctx context.Context, vec databases.VectorStore, emb embedder.Embedder, docID string, chunks []chunk.Chunk, m enrich.Metadata, fp triage.Fingerprint, createdAt, ingestedAt time.Time) ([]string, error) {
	if vec == nil || emb == nil || len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := emb.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, &StorageError{DocID: docID, Err: fmt.Errorf("embed chunks: %w", err)}
	}

	base := baseMetadata(docID, m, createdAt, ingestedAt)
	base["content_sha256"] = fp.ContentSHA256
	base["title_sha"] = fp.TitleSHA
	if fp.FormatKey != "" {
		base["email_message_id"] = fp.FormatKey
	}

	ids := make([]string, 0, len(chunks))
	for i, c := range chunks {
		md := copyMap(base)
		md["sequence"] = strconv.Itoa(c.Sequence)
		md["chunk_type"] = string(c.ChunkType)
		md["section_title"] = c.SectionTitle
		md["parent_sections"] = strings.Join(c.ParentSections, ", ")
		if err := vec.Upsert(ctx, c.ChunkID, vectors[i], md); err != nil {
			// Roll back the chunks already written so no partial batch stays committed.
			for _, id := range ids {
				_ = vec.Delete(ctx, id)
			}
			return nil, &StorageError{DocID: docID, Err: fmt.Errorf("upsert chunk %s: %w", c.ChunkID, err)}
		}
		ids = append(ids, c.ChunkID)
	}
	return ids, nil
}

func baseMetadata(docID string, m enrich.Metadata, createdAt, ingestedAt time.Time) map[string]string {
	return map[string]string{
		"doc_id":        docID,
		"topics":        strings.Join(m.Topics, ", "),
		"projects":      strings.Join(m.Projects, ", "),
		"places":        strings.Join(m.Places, ", "),
		"people":        entityLabels(m.People),
		"organizations": entityLabels(m.Organizations),
		"technologies":  entityLabels(m.Technologies),
		"created_at":    createdAt.UTC().Format(time.RFC3339),
		"ingested_at":   ingestedAt.UTC().Format(time.RFC3339),
		"signalness":    strconv.FormatFloat(m.Signalness, 'f', 4, 64),
		"recency_score": strconv.FormatFloat(m.RecencyScore, 'f', 4, 64),
		"quality_score": strconv.FormatFloat(m.QualityScore, 'f', 4, 64),
	}
}

func entityLabels(entities []enrich.Entity) string {
	labels := make([]string, len(entities))
	for i, e := range entities {
		if e.PrefLabel != "" {
			labels[i] = e.PrefLabel
		} else {
			labels[i] = e.Label
		}
	}
	return strings.Join(labels, ", ")
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
