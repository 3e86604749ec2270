package enrich

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/knowledgeforge/ingest/internal/extract"
	"github.com/knowledgeforge/ingest/internal/llm"
)

const criticToolName = "emit_critic_score"

// critic runs the optional second-pass self-review spec.md §4.3 describes:
// a structured call scoring the just-produced Metadata across several
// rubric dimensions, used by the Quality Gate's critic<2.0 STOP condition.
func (e *Enricher) critic(ctx context.Context, doc extract.ExtractedDocument, m Metadata) (*QualityScores, error) {
	if len(e.Chain) == 0 {
		return nil, fmt.Errorf("enrichment: no providers configured")
	}
	schema, err := criticSchema()
	if err != nil {
		return nil, fmt.Errorf("build critic schema: %w", err)
	}
	tools := []llm.ToolSchema{{
		Name:        criticToolName,
		Description: "Score the quality of a previously generated enrichment record.",
		Parameters:  schema,
	}}

	content := truncate(doc.Text, e.maxChars())
	sys := "You critique a document's extracted metadata for quality. " +
		"Score each dimension from 0 to 5. Respond only by calling " + criticToolName + "."
	user := fmt.Sprintf("Document content:\n%s\n\nGenerated title: %q\nGenerated summary: %q\nTopics: %v\nPeople: %d entries\nTechnologies: %d entries",
		content, m.Title, m.Summary, m.Topics, len(m.People), len(m.Technologies))
	messages := []llm.Message{
		{Role: "system", Content: sys},
		{Role: "user", Content: user},
	}

	entry := e.Chain[0]
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout())
	defer cancel()

	before := llm.TokenTotalsSnapshot()
	msg, err := entry.Provider.Chat(callCtx, messages, tools, entry.Model)
	if err != nil {
		return nil, err
	}
	e.recordCost(entry, before)

	for _, tc := range msg.ToolCalls {
		if tc.Name != criticToolName {
			continue
		}
		var cc criticCandidate
		if err := json.Unmarshal(tc.Args, &cc); err != nil {
			return nil, err
		}
		return criticScores(cc), nil
	}
	return nil, fmt.Errorf("critic: invalid_response")
}

func criticScores(cc criticCandidate) *QualityScores {
	qs := &QualityScores{
		SchemaCompliance:    cc.SchemaCompliance,
		EntityQuality:       cc.EntityQuality,
		TopicRelevance:      cc.TopicRelevance,
		SummaryQuality:      cc.SummaryQuality,
		TaskIdentification:  cc.TaskIdentification,
		Privacy:             cc.Privacy,
		ChunkingSuitability: cc.ChunkingSuitability,
		Suggestions:         cc.Suggestions,
	}
	qs.Weighted = (qs.SchemaCompliance + qs.EntityQuality + qs.TopicRelevance +
		qs.SummaryQuality + qs.TaskIdentification + qs.Privacy + qs.ChunkingSuitability) / 7
	return qs
}

// estimateUSD converts token counts to a rough dollar cost using static
// per-model rates, for the cost dashboard spec.md §4.3 calls out. Unknown
// models fall back to a conservative mid-tier rate rather than zero, so
// cost totals never silently under-count.
func estimateUSD(model string, tokensIn, tokensOut int) float64 {
	rate, ok := modelRates[model]
	if !ok {
		rate = rateUSDPerMillion{in: 1.0, out: 3.0}
	}
	return float64(tokensIn)*rate.in/1e6 + float64(tokensOut)*rate.out/1e6
}

type rateUSDPerMillion struct {
	in, out float64
}

var modelRates = map[string]rateUSDPerMillion{
	"gpt-4o-mini":       {in: 0.15, out: 0.60},
	"gpt-4o":            {in: 2.50, out: 10.00},
	"claude-3-5-haiku":  {in: 0.80, out: 4.00},
	"claude-3-5-sonnet": {in: 3.00, out: 15.00},
	"gemini-1.5-flash":  {in: 0.075, out: 0.30},
	"gemini-1.5-pro":    {in: 1.25, out: 5.00},
	"gemini-2.0-flash":  {in: 0.10, out: 0.40},
}
