// Package triage computes document fingerprints and decides, cheaply,
// whether a document is worth the enrichment LLM's budget. It is the one
// stage that is deliberately fail-open: an internal triage bug must never
// cost the pipeline a document (see Decide).
package triage

import (
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"
	"math/bits"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// shingleSize is the token k-gram width used to build the fuzzy SimHash,
// per spec.md §4.2 ("k≈5 tokens").
const shingleSize = 5

// Fingerprint is the tuple of identity hashes Triage computes for every
// document. It is persisted alongside the document so later passes (and
// other processes) can perform the same exact/near-duplicate lookups.
type Fingerprint struct {
	ContentSHA256 string
	TitleSHA      string
	EntitySetSHA  string
	FuzzyHash     uint64
	// FormatKey is the format-specific extra identity key: an email
	// Message-ID, or a hash of the first two chat turns. Empty when the
	// format has none.
	FormatKey string
}

// diacriticsStripper removes combining marks after NFD decomposition, so
// "café" and "cafe" normalize to the same content hash.
var diacriticsStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeText collapses whitespace, strips diacritics, and lowercases s,
// the normalization spec.md §4.2 requires before hashing document content.
func NormalizeText(s string) string {
	folded, _, err := transform.String(diacriticsStripper, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	fields := strings.Fields(folded)
	return strings.Join(fields, " ")
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Compute builds a Fingerprint from normalized text, a title (may be
// empty), a sorted set of canonical entity names known at this stage (may
// be empty on a first pass, per spec.md), and a format-specific key.
func Compute(text, title string, entityNames []string, formatKey string) Fingerprint {
	normalized := NormalizeText(text)

	sortedEntities := append([]string(nil), entityNames...)
	sort.Strings(sortedEntities)

	return Fingerprint{
		ContentSHA256: sha256Hex(normalized),
		TitleSHA:      sha256Hex(NormalizeText(title)),
		EntitySetSHA:  sha256Hex(strings.Join(sortedEntities, "\x1f")),
		FuzzyHash:     SimHash(normalized, shingleSize),
		FormatKey:     formatKey,
	}
}

// SimHash computes a 64-bit SimHash over k-token shingles of text, giving a
// fingerprint where small edits to the document move only a few bits —
// the property duplicate detection relies on via Hamming distance.
func SimHash(text string, k int) uint64 {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return 0
	}
	if k <= 0 {
		k = shingleSize
	}

	var votes [64]int
	addShingle := func(sh string) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(sh))
		hv := h.Sum64()
		for b := 0; b < 64; b++ {
			if hv&(1<<uint(b)) != 0 {
				votes[b]++
			} else {
				votes[b]--
			}
		}
	}

	if len(tokens) <= k {
		addShingle(strings.Join(tokens, " "))
	} else {
		for i := 0; i+k <= len(tokens); i++ {
			addShingle(strings.Join(tokens[i:i+k], " "))
		}
	}

	var out uint64
	for b := 0; b < 64; b++ {
		if votes[b] > 0 {
			out |= 1 << uint(b)
		}
	}
	return out
}

// Similarity converts a Hamming distance between two 64-bit SimHashes into
// the [0,1] similarity score spec.md's 0.92 duplicate_fuzzy_threshold is
// expressed in.
func Similarity(a, b uint64) float64 {
	d := bits.OnesCount64(a ^ b)
	return 1 - float64(d)/64
}
