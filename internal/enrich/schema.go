package enrich

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// candidate is the raw shape the LLM must emit. Surface-form labels (people,
// organizations, technologies, topics, projects, places) are resolved
// against the controlled vocabulary afterward by validate(); the LLM itself
// never sees vocabulary IDs, only prefLabels.
type candidate struct {
	Title    string   `json:"title" jsonschema:"required,description=A descriptive title between 10 and 80 characters. Never 'Untitled' or a restatement of the instructions."`
	Summary  string   `json:"summary" jsonschema:"required,description=A two-to-four sentence summary of the document's content."`
	Topics   []string `json:"topics,omitempty" jsonschema:"description=Topic labels drawn from the supplied controlled vocabulary where possible."`
	Projects []string `json:"projects,omitempty" jsonschema:"description=Project labels drawn from the supplied controlled vocabulary where possible."`
	Places   []string `json:"places,omitempty" jsonschema:"description=Place labels drawn from the supplied controlled vocabulary where possible."`

	People        []string `json:"people,omitempty" jsonschema:"description=Real persons named in the document. Never include software, tools, or products here."`
	Organizations []string `json:"organizations,omitempty"`
	Technologies  []string `json:"technologies,omitempty" jsonschema:"description=Software, hardware, and technical products or standards named in the document."`
	Events        []string `json:"events,omitempty"`
	Concepts      []string `json:"concepts,omitempty"`

	Dates []candidateDate `json:"dates,omitempty"`

	Domain     string `json:"domain,omitempty"`
	Complexity string `json:"complexity,omitempty" jsonschema:"enum=low,enum=medium,enum=high"`
}

type candidateDate struct {
	Raw              string `json:"raw" jsonschema:"required"`
	Type             string `json:"type" jsonschema:"required,enum=absolute,enum=relative,enum=implicit"`
	ContextReference string `json:"context_reference,omitempty"`
}

type criticCandidate struct {
	SchemaCompliance    float64  `json:"schema_compliance" jsonschema:"required,minimum=0,maximum=5"`
	EntityQuality       float64  `json:"entity_quality" jsonschema:"required,minimum=0,maximum=5"`
	TopicRelevance      float64  `json:"topic_relevance" jsonschema:"required,minimum=0,maximum=5"`
	SummaryQuality      float64  `json:"summary_quality" jsonschema:"required,minimum=0,maximum=5"`
	TaskIdentification  float64  `json:"task_identification" jsonschema:"required,minimum=0,maximum=5"`
	Privacy             float64  `json:"privacy" jsonschema:"required,minimum=0,maximum=5"`
	ChunkingSuitability float64  `json:"chunking_suitability" jsonschema:"required,minimum=0,maximum=5"`
	Suggestions         []string `json:"suggestions,omitempty"`
}

// buildSchema reflects v (a pointer to a zero value of the target shape)
// into a JSON Schema map suitable for llm.ToolSchema.Parameters, following
// the same invopop/jsonschema reflection approach used elsewhere in the
// pack for structured LLM output contracts.
func buildSchema(v any) (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(v)
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	delete(m, "$schema")
	delete(m, "$id")
	return m, nil
}

func enrichmentSchema() (map[string]any, error) {
	return buildSchema(&candidate{})
}

func criticSchema() (map[string]any, error) {
	return buildSchema(&criticCandidate{})
}
