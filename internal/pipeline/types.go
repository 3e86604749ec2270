// Package pipeline wires the six stages (Extract, Triage, Enrich, Quality
// Gate, Chunk, Storage+Export) into the single per-document sequential
// pipeline spec.md §2 describes, runs N of them concurrently across
// documents (spec.md §5), and exposes the four programmatic functions
// (ingest, batch_ingest, reingest, stats) the HTTP collaborator layer
// wraps (spec.md §6). It owns no business rule of its own — every decision
// is delegated to the owning stage package — only sequencing, concurrency,
// and per-document error isolation.
package pipeline

import "time"

// Status is the terminal outcome of one Ingest call.
type Status string

const (
	StatusStored           Status = "stored"
	StatusStoredUnexported Status = "stored_unexported"
	StatusDuplicate        Status = "duplicate"
	StatusGated            Status = "gated"
	StatusFailed           Status = "failed"
	StatusCancelled        Status = "cancelled"
	StatusTimeout          Status = "timeout"
)

// Stage names the pipeline stage an IngestResult's Kind/Message pertain to.
type Stage string

const (
	StageExtract  Stage = "extract"
	StageTriage   Stage = "triage"
	StageEnrich   Stage = "enrich"
	StageGate     Stage = "gate"
	StageChunk    Stage = "chunk"
	StageStore    Stage = "store"
	StagePipeline Stage = "pipeline"
)

// Kind classifies a failure by its spec.md §7 error kind. Empty on success.
type Kind string

const (
	KindExtraction Kind = "extraction_error"
	KindTriage     Kind = "triage_error"
	KindLLM        Kind = "llm_error"
	KindValidation Kind = "validation_error"
	KindStorage    Kind = "storage_error"
	KindExport     Kind = "export_error"
	KindBudget     Kind = "budget_exceeded"
)

// IngestResult is the structured, never-a-stack-trace response spec.md §7
// requires for every document, success or failure.
type IngestResult struct {
	DocID        string
	Status       Status
	Stage        Stage
	Kind         Kind
	Message      string
	Action       string // "unique" | "duplicate" | "" for non-triage outcomes
	MatchedDocID string
	ChunkIDs     []string
	ExportPath   string
	DoIndex      bool
	IngestedAt   time.Time
}

// BudgetExceeded is returned (wrapped into IngestResult, never panicked)
// when a document's end-to-end processing time exceeds its configured
// per-document budget (spec.md §5, §7).
type BudgetExceeded struct {
	DocID string
	Stage Stage
}

func (e *BudgetExceeded) Error() string {
	return "pipeline: document " + e.DocID + " exceeded its budget during " + string(e.Stage)
}

// Counts summarizes how many documents landed in each terminal status,
// the shape spec.md §6's stats() function returns.
type Counts struct {
	Stored           int
	StoredUnexported int
	Duplicate        int
	Gated            int
	Failed           int
	Cancelled        int
	Timeout          int
}

// Stats is the full payload spec.md §6's stats() function returns.
type Stats struct {
	Counts        Counts
	CostCalls     int
	CostTokensIn  int
	CostTokensOut int
	CostUSD       float64
}
