package triage

import (
	"context"
	"sync"
)

// ScalarIndex is an in-process registry of scalar fingerprint fields to
// doc_id, populated for every document Triage has ever decided on —
// gated (do_index=false) or not. It exists because spec.md's own
// invariant ("documents with do_index=false have no vectors in the store")
// rules out recording a gated document's fingerprint as a chunk vector, the
// mechanism VectorLookup otherwise uses. ScalarIndex gives gated documents
// a dedup home that never touches the chunk vector store, while indexed
// documents are additionally discoverable through their real chunk vectors
// via VectorLookup once stored.
type ScalarIndex struct {
	mu      sync.RWMutex
	byField map[string]map[string]string // field -> value -> docID
}

// NewScalarIndex returns an empty, ready-to-use ScalarIndex.
func NewScalarIndex() *ScalarIndex {
	return &ScalarIndex{byField: make(map[string]map[string]string)}
}

// Put registers docID under field=value for future ByScalar lookups. A
// no-op when value is empty, matching ByScalar's own no-op-on-empty rule.
func (s *ScalarIndex) Put(field, value, docID string) {
	if value == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byField[field]
	if !ok {
		m = make(map[string]string)
		s.byField[field] = m
	}
	m[value] = docID
}

// ByScalar implements Lookup.
func (s *ScalarIndex) ByScalar(_ context.Context, field, value string) (string, bool, error) {
	if value == "" {
		return "", false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	docID, ok := s.byField[field][value]
	return docID, ok, nil
}

// MultiLookup tries each Lookup in order and returns the first hit,
// letting Triage consult a fast in-process ScalarIndex before falling back
// to a durable, vector-store-backed VectorLookup.
type MultiLookup []Lookup

func (m MultiLookup) ByScalar(ctx context.Context, field, value string) (string, bool, error) {
	for _, l := range m {
		if l == nil {
			continue
		}
		docID, ok, err := l.ByScalar(ctx, field, value)
		if err != nil {
			return "", false, err
		}
		if ok {
			return docID, true, nil
		}
	}
	return "", false, nil
}
