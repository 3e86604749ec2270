// Package gate implements the Quality Gate: a pure function over
// enrichment output deciding whether a document continues to chunking and
// storage or stops with a metadata-only, gated artifact (spec.md §4.4).
package gate

import (
	"github.com/knowledgeforge/ingest/internal/config"
	"github.com/knowledgeforge/ingest/internal/enrich"
	"github.com/knowledgeforge/ingest/internal/triage"
)

// Action is the Quality Gate's binary verdict.
type Action string

const (
	Continue Action = "continue"
	Stop     Action = "stop"
)

// Verdict is the Quality Gate's decision for one document.
type Verdict struct {
	Action Action
	Reason string
}

// Decide applies the STOP/CONTINUE decision order from spec.md §4.4, in the
// exact order specified: enrichment failure, then signalness floor, then
// junk category, then (when enabled) critic floor. The first matching
// condition wins; anything else CONTINUEs.
func Decide(cfg config.QualityGateConfig, m enrich.Metadata, decision triage.Decision) Verdict {
	if m.EnrichmentFailed {
		return Verdict{Action: Stop, Reason: "enrichment_failed"}
	}
	if m.Signalness < cfg.MinSignalness {
		return Verdict{Action: Stop, Reason: "signalness_below_threshold"}
	}
	if decision.Category == triage.CategoryJunk {
		return Verdict{Action: Stop, Reason: "category_junk"}
	}
	if cfg.EnableCritic && m.Critic != nil && m.Critic.Weighted < cfg.MinCriticScore {
		return Verdict{Action: Stop, Reason: "critic_below_threshold"}
	}
	return Verdict{Action: Continue, Reason: "passed"}
}
