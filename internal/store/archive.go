package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/knowledgeforge/ingest/internal/objectstore"
)

// ArchiveRaw stores the document's original bytes via the configured
// ObjectStore, keyed by content hash so repeated ingestion of identical
// bytes is a pure overwrite rather than duplicate storage. Returns the
// object key for provenance (spec.md §3 "original path" / sha256 field).
func ArchiveRaw(ctx context.Context, objStore objectstore.ObjectStore, docID string, raw []byte, contentType string) (string, error) {
	if objStore == nil {
		return "", nil
	}
	sum := sha256.Sum256(raw)
	key := fmt.Sprintf("raw/%s/%s", docID, hex.EncodeToString(sum[:]))
	if _, err := objStore.Put(ctx, key, bytes.NewReader(raw), objectstore.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"doc_id": docID},
	}); err != nil {
		return "", &StorageError{DocID: docID, Err: fmt.Errorf("archive raw bytes: %w", err)}
	}
	return key, nil
}
