package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/knowledgeforge/ingest/internal/config"
	"github.com/knowledgeforge/ingest/internal/enrich"
	"github.com/knowledgeforge/ingest/internal/triage"
)

func baseConfig() config.QualityGateConfig {
	return config.QualityGateConfig{
		MinSignalness:  0.2,
		EnableCritic:   true,
		MinCriticScore: 2.0,
	}
}

func TestDecide_EnrichmentFailedStopsRegardlessOfScores(t *testing.T) {
	m := enrich.Metadata{EnrichmentFailed: true, Signalness: 0.9}
	v := Decide(baseConfig(), m, triage.Decision{Category: triage.CategoryArchival})
	assert.Equal(t, Stop, v.Action)
	assert.Equal(t, "enrichment_failed", v.Reason)
}

func TestDecide_LowSignalnessStops(t *testing.T) {
	m := enrich.Metadata{Signalness: 0.05}
	v := Decide(baseConfig(), m, triage.Decision{Category: triage.CategoryArchival})
	assert.Equal(t, Stop, v.Action)
	assert.Equal(t, "signalness_below_threshold", v.Reason)
}

func TestDecide_JunkCategoryStops(t *testing.T) {
	m := enrich.Metadata{Signalness: 0.9}
	v := Decide(baseConfig(), m, triage.Decision{Category: triage.CategoryJunk})
	assert.Equal(t, Stop, v.Action)
	assert.Equal(t, "category_junk", v.Reason)
}

func TestDecide_LowCriticScoreStopsWhenEnabled(t *testing.T) {
	m := enrich.Metadata{Signalness: 0.9, Critic: &enrich.QualityScores{Weighted: 1.5}}
	v := Decide(baseConfig(), m, triage.Decision{Category: triage.CategoryArchival})
	assert.Equal(t, Stop, v.Action)
	assert.Equal(t, "critic_below_threshold", v.Reason)
}

func TestDecide_CriticIgnoredWhenDisabled(t *testing.T) {
	cfg := baseConfig()
	cfg.EnableCritic = false
	m := enrich.Metadata{Signalness: 0.9, Critic: &enrich.QualityScores{Weighted: 0.1}}
	v := Decide(cfg, m, triage.Decision{Category: triage.CategoryArchival})
	assert.Equal(t, Continue, v.Action)
}

func TestDecide_PassesThrough(t *testing.T) {
	m := enrich.Metadata{Signalness: 0.9, Critic: &enrich.QualityScores{Weighted: 4.2}}
	v := Decide(baseConfig(), m, triage.Decision{Category: triage.CategoryArchival})
	assert.Equal(t, Continue, v.Action)
	assert.Equal(t, "passed", v.Reason)
}
