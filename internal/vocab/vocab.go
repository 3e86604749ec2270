// Package vocab loads and serves the controlled vocabulary that constrains
// enrichment output: topics, projects (with watchlists), places,
// technologies, and people-roles. The vocabulary is read-mostly and
// hot-reloadable, consumed from internal/enrich behind a read-write lock so
// a live pipeline always sees a consistent snapshot across a reload.
package vocab

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ConceptType enumerates the kinds a VocabularyConcept may take.
type ConceptType string

const (
	Software     ConceptType = "Software"
	Hardware     ConceptType = "Hardware"
	PersonRole   ConceptType = "Person-role"
	Place        ConceptType = "Place"
	Project      ConceptType = "Project"
	Topic        ConceptType = "Topic"
)

// Concept is a single controlled-vocabulary entry.
type Concept struct {
	ID        string      `yaml:"id"`
	PrefLabel string      `yaml:"pref_label"`
	AltLabels []string    `yaml:"alt_labels,omitempty"`
	Type      ConceptType `yaml:"type"`
	Broader   []string    `yaml:"broader,omitempty"`
	Related   []string    `yaml:"related,omitempty"`
	// Watchlist is only meaningful for Type == Project: keywords that, when
	// present in a document, auto-attach the project even if the LLM never
	// names it.
	Watchlist []string `yaml:"watchlist,omitempty"`
}

// conceptsFile is the on-disk shape loaded from VocabularyConfig.ConceptsPath.
type conceptsFile struct {
	Concepts []Concept `yaml:"concepts"`
}

// Vocabulary is the loaded, queryable controlled vocabulary. Zero value is
// usable (empty vocabulary); use Load or Reload to populate it.
type Vocabulary struct {
	mu sync.RWMutex

	byID    map[string]Concept
	byLabel map[string]Concept // lowercased pref/alt label -> concept
	byType  map[ConceptType][]Concept
}

// New returns an empty, ready-to-use Vocabulary.
func New() *Vocabulary {
	return &Vocabulary{
		byID:    map[string]Concept{},
		byLabel: map[string]Concept{},
		byType:  map[ConceptType][]Concept{},
	}
}

// Load reads concepts from path and returns a populated Vocabulary. An empty
// path yields an empty vocabulary (enrichment then treats everything as a
// suggestion).
func Load(path string) (*Vocabulary, error) {
	v := New()
	if path == "" {
		return v, nil
	}
	if err := v.Reload(path); err != nil {
		return nil, err
	}
	return v, nil
}

// Reload re-reads path and atomically swaps the in-memory snapshot so
// concurrent readers (Match, Watchlists, All) never observe a half-updated
// vocabulary.
func (v *Vocabulary) Reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read vocabulary %q: %w", path, err)
	}
	var f conceptsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse vocabulary %q: %w", path, err)
	}

	byID := make(map[string]Concept, len(f.Concepts))
	byLabel := make(map[string]Concept, len(f.Concepts)*2)
	byType := make(map[ConceptType][]Concept)
	for _, c := range f.Concepts {
		byID[c.ID] = c
		byLabel[strings.ToLower(c.PrefLabel)] = c
		for _, alt := range c.AltLabels {
			byLabel[strings.ToLower(alt)] = c
		}
		byType[c.Type] = append(byType[c.Type], c)
	}

	v.mu.Lock()
	v.byID, v.byLabel, v.byType = byID, byLabel, byType
	v.mu.Unlock()
	return nil
}

// Get returns the concept by its vocabulary ID (e.g. "vocab:Fedora").
func (v *Vocabulary) Get(id string) (Concept, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	c, ok := v.byID[id]
	return c, ok
}

// Match resolves a surface-form label against the vocabulary by exact or
// case-insensitive alt-label match, then by nearest-neighbor reconciliation
// at edit distance <= 2. Returns the matched concept and true, or the zero
// value and false.
func (v *Vocabulary) Match(label string) (Concept, bool) {
	if label == "" {
		return Concept{}, false
	}
	v.mu.RLock()
	defer v.mu.RUnlock()

	norm := strings.ToLower(strings.TrimSpace(label))
	if c, ok := v.byLabel[norm]; ok {
		return c, true
	}
	var best Concept
	bestDist := 3 // anything >2 is not a match
	found := false
	for lbl, c := range v.byLabel {
		d := levenshtein(norm, lbl)
		if d < bestDist {
			bestDist, best, found = d, c, true
		}
	}
	if found && bestDist <= 2 {
		return best, true
	}
	return Concept{}, false
}

// MatchType is like Match but only considers concepts of the given type,
// used by entity-type enforcement to check "is this label a Software/
// Hardware concept" without crossing into unrelated categories.
func (v *Vocabulary) MatchType(label string, t ConceptType) (Concept, bool) {
	c, ok := v.Match(label)
	if !ok || c.Type != t {
		return Concept{}, false
	}
	return c, true
}

// All returns every concept of the given type, used to build the enrichment
// prompt's "here is the full controlled vocabulary for this field" section.
func (v *Vocabulary) All(t ConceptType) []Concept {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]Concept, len(v.byType[t]))
	copy(out, v.byType[t])
	return out
}

// Labels returns the PrefLabel of every concept of type t, sorted by the
// order they were loaded in, suitable for direct inclusion in an LLM prompt.
func (v *Vocabulary) Labels(t ConceptType) []string {
	all := v.All(t)
	out := make([]string, len(all))
	for i, c := range all {
		out[i] = c.PrefLabel
	}
	return out
}

// MatchingWatchlists returns the IDs of every Project concept whose
// watchlist keyword appears (case-insensitively) in text.
func (v *Vocabulary) MatchingWatchlists(text string) []string {
	v.mu.RLock()
	projects := v.byType[Project]
	v.mu.RUnlock()

	lower := strings.ToLower(text)
	var hits []string
	for _, p := range projects {
		for _, kw := range p.Watchlist {
			if kw == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(kw)) {
				hits = append(hits, p.ID)
				break
			}
		}
	}
	return hits
}

// levenshtein computes edit distance, used only for short vocabulary labels
// so the O(len(a)*len(b)) table is negligible.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}
	prev := make([]int, lb+1)
	cur := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		cur[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := cur[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			cur[j] = m
		}
		prev, cur = cur, prev
	}
	return prev[lb]
}
