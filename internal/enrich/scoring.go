package enrich

import (
	"math"
	"time"

	"github.com/knowledgeforge/ingest/internal/extract"
	"github.com/knowledgeforge/ingest/internal/triage"
)

// recencyScore implements spec.md §4.3: exp(-age_days / tau).
func recencyScore(created time.Time, now time.Time, tauDays float64) float64 {
	if tauDays <= 0 {
		tauDays = 180
	}
	ageDays := now.Sub(created).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-ageDays / tauDays)
}

// entityRichness is a simple heuristic over entity counts, clamped to [0,1].
func entityRichness(m Metadata) float64 {
	n := len(m.People) + len(m.Organizations) + len(m.Technologies) + len(m.Events) + len(m.Concepts)
	return clamp01(float64(n) / 10)
}

// contentDepth is a simple heuristic over text length, clamped to [0,1].
func contentDepth(textLen int) float64 {
	return clamp01(float64(textLen) / 4000)
}

// extractionConfidence reflects how much to trust the extracted text based
// on which extraction path produced it.
func extractionConfidence(method string) float64 {
	switch method {
	case "embedded_text", "":
		return 1.0
	case "ocr":
		return 0.7
	case "visual_llm":
		return 0.5
	default:
		return 0.9
	}
}

// qualityScore aggregates the sub-heuristics into a single [0,1] score.
func qualityScore(recency, richness, depth, confidence float64) float64 {
	return clamp01((recency + richness + depth + confidence) / 4)
}

// actionabilityFromCategory maps a triage category onto a baseline
// actionability score; actionable/* categories are, by definition, more
// likely to need follow-up than an archival note.
func actionabilityFromCategory(cat triage.Category) float64 {
	switch cat {
	case triage.CategoryActionableFinancial, triage.CategoryActionableLegal,
		triage.CategoryActionableMedical, triage.CategoryActionableScheduling:
		return 0.8
	case triage.CategoryArchival:
		return 0.4
	default:
		return 0.5
	}
}

// score populates Metadata's recency/quality/signalness fields in place.
func score(m *Metadata, doc extract.ExtractedDocument, created, now time.Time, tauDays float64, category triage.Category) {
	m.RecencyScore = recencyScore(created, now, tauDays)
	richness := entityRichness(*m)
	depth := contentDepth(len(doc.Text))
	confidence := extractionConfidence(doc.ExtractionMethod)
	m.QualityScore = qualityScore(m.RecencyScore, richness, depth, confidence)
	if m.Novelty == 0 {
		m.Novelty = 1.0
	}
	m.Actionability = actionabilityFromCategory(category)
	m.Signalness = clamp01(m.QualityScore * m.Novelty * m.Actionability)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
