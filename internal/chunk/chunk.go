package chunk

import (
	"fmt"

	"github.com/knowledgeforge/ingest/internal/config"
	"github.com/knowledgeforge/ingest/internal/extract"
)

// Chunker splits ExtractedDocuments into Chunks per spec.md §4.5.
type Chunker struct {
	cfg config.ChunkingConfig
}

// New returns a Chunker configured from the pipeline's chunking settings.
func New(cfg config.ChunkingConfig) *Chunker {
	return &Chunker{cfg: cfg}
}

func (c *Chunker) targetTokens() int {
	if c.cfg.TargetTokens > 0 {
		return c.cfg.TargetTokens
	}
	return 500
}

func (c *Chunker) maxTokens() int {
	if c.cfg.MaxTokens > 0 {
		return c.cfg.MaxTokens
	}
	return 800
}

// Split produces the ordered list of Chunks for docID from doc. Ignore
// blocks are stripped first so their content never reaches embeddings;
// chat-typed documents use turn-based chunking, everything else uses
// structure-aware splitting.
func (c *Chunker) Split(docID string, doc extract.ExtractedDocument) []Chunk {
	var pending []pendingChunk
	switch doc.DocumentType {
	case extract.TypeLLMChat, extract.TypeWhatsApp:
		pending = c.chatTurns(doc)
	default:
		pending = c.structureAware(doc)
	}

	out := make([]Chunk, 0, len(pending))
	for i, p := range pending {
		out = append(out, Chunk{
			ChunkID:        fmt.Sprintf("%s#%d", docID, i),
			ParentDocID:    docID,
			Sequence:       i,
			Text:           p.text,
			ChunkType:      p.chunkType,
			SectionTitle:   p.sectionTitle,
			ParentSections: p.parentSections,
			TokenEstimate:  estimateTokens(p.text),
		})
	}
	return out
}
