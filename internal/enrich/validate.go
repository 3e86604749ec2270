package enrich

import (
	"regexp"
	"strings"
	"time"

	"github.com/knowledgeforge/ingest/internal/vocab"
)

var genericTitlePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^untitled$`),
	regexp.MustCompile(`(?i)^here (are|is) (the )?(key points|a summary|some)`),
	regexp.MustCompile(`(?i)^document\s*\d*$`),
	regexp.MustCompile(`(?i)^\s*$`),
}

var filenameShapedRe = regexp.MustCompile(`^[\w-]+\.(pdf|docx?|xlsx?|txt|eml|md|png|jpe?g)$`)

// isGenericTitle reports whether title fails spec.md §4.3's title-quality
// bar: too short/long, or a known generic/filename-shaped pattern.
func isGenericTitle(title string) bool {
	t := strings.TrimSpace(title)
	if len(t) < 10 || len(t) > 80 {
		return true
	}
	for _, re := range genericTitlePatterns {
		if re.MatchString(t) {
			return true
		}
	}
	if filenameShapedRe.MatchString(t) {
		return true
	}
	return false
}

// fallbackTitle builds the last-resort title spec.md §4.3 mandates when the
// LLM cannot produce a non-generic title even after one re-ask: the
// filename stem with a date prefix.
func fallbackTitle(filename string, created time.Time) string {
	stem := filename
	if idx := strings.LastIndex(stem, "."); idx > 0 {
		stem = stem[:idx]
	}
	stem = strings.ReplaceAll(stem, "_", " ")
	stem = strings.ReplaceAll(stem, "-", " ")
	if stem == "" {
		stem = "document"
	}
	return created.Format("2006-01-02") + " - " + stem
}

// resolveVocabList resolves a list of LLM-proposed surface-form labels
// against a closed-vocabulary field (topics/projects/places). Matches
// become vocabulary IDs; misses are appended to suggestions and dropped
// from the returned list, per spec.md §3's controlled-vocabulary invariant.
func resolveVocabList(v *vocab.Vocabulary, labels []string, suggestions *[]string) []string {
	seen := map[string]bool{}
	var out []string
	for _, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		if c, ok := v.Match(label); ok {
			if !seen[c.ID] {
				seen[c.ID] = true
				out = append(out, c.ID)
			}
			continue
		}
		*suggestions = append(*suggestions, label)
	}
	return out
}

// resolveEntities resolves a list of free-form entity labels against the
// vocabulary, attaching concept links on hit and flagging suggestions on
// miss, per spec.md §4.3's "Concept linking".
func resolveEntities(v *vocab.Vocabulary, labels []string, category string) []Entity {
	var out []Entity
	for _, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		e := Entity{Label: label, Category: category}
		if c, ok := v.Match(label); ok {
			e.ConceptID = c.ID
			e.PrefLabel = c.PrefLabel
			e.Broader = c.Broader
			e.Category = string(c.Type)
		} else {
			e.SuggestedForVocab = true
		}
		out = append(out, e)
	}
	return out
}

// enforceEntityTypes implements spec.md §4.3's "Entity type enforcement":
// any `people` entry that actually matches a Software/Hardware concept is
// reclassified into technologies, because software is never a person. A
// concept already present in technologies is not added a second time.
func enforceEntityTypes(v *vocab.Vocabulary, people, technologies []Entity) ([]Entity, []Entity) {
	seen := map[string]bool{}
	for _, t := range technologies {
		if t.ConceptID != "" {
			seen[t.ConceptID] = true
		}
	}
	var keptPeople []Entity
	for _, p := range people {
		if c, ok := v.MatchType(p.Label, vocab.Software); ok {
			if !seen[c.ID] {
				seen[c.ID] = true
				technologies = append(technologies, Entity{Label: p.Label, Category: string(c.Type), ConceptID: c.ID, PrefLabel: c.PrefLabel, Broader: c.Broader})
			}
			continue
		}
		if c, ok := v.MatchType(p.Label, vocab.Hardware); ok {
			if !seen[c.ID] {
				seen[c.ID] = true
				technologies = append(technologies, Entity{Label: p.Label, Category: string(c.Type), ConceptID: c.ID, PrefLabel: c.PrefLabel, Broader: c.Broader})
			}
			continue
		}
		keptPeople = append(keptPeople, p)
	}
	return keptPeople, technologies
}

// attachWatchlistProjects unions any Project concept whose watchlist
// keyword appears in text into projects, auto-attaching it even when the
// LLM never named the project explicitly (spec.md glossary, "Watchlist").
func attachWatchlistProjects(v *vocab.Vocabulary, text string, projects []string) []string {
	seen := map[string]bool{}
	for _, p := range projects {
		seen[p] = true
	}
	for _, id := range v.MatchingWatchlists(text) {
		if !seen[id] {
			seen[id] = true
			projects = append(projects, id)
		}
	}
	return projects
}
