package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"golang.org/x/sync/semaphore"

	"github.com/knowledgeforge/ingest/internal/chunk"
	"github.com/knowledgeforge/ingest/internal/config"
	"github.com/knowledgeforge/ingest/internal/enrich"
	"github.com/knowledgeforge/ingest/internal/extract"
	"github.com/knowledgeforge/ingest/internal/gate"
	"github.com/knowledgeforge/ingest/internal/llm/providers"
	"github.com/knowledgeforge/ingest/internal/logging"
	"github.com/knowledgeforge/ingest/internal/objectstore"
	"github.com/knowledgeforge/ingest/internal/persistence/databases"
	"github.com/knowledgeforge/ingest/internal/rag/embedder"
	"github.com/knowledgeforge/ingest/internal/store"
	"github.com/knowledgeforge/ingest/internal/triage"
	"github.com/knowledgeforge/ingest/internal/vocab"
)

// Logger is the narrow structured-logging capability the pipeline needs,
// satisfied by observability.PipelineLogger (a zerolog adapter) in
// production and a recording fake in tests. Shaped after the teacher's own
// rag/service.Logger interface.
type Logger interface {
	Info(msg string, fields map[string]any)
	Error(msg string, err error, fields map[string]any)
}

// noopLogger discards everything; used when Pipeline is built without an
// explicit Logger.
type noopLogger struct{}

func (noopLogger) Info(string, map[string]any)         {}
func (noopLogger) Error(string, error, map[string]any) {}

// Metrics is the narrow counter/histogram capability the pipeline needs,
// shaped after the teacher's internal/rag/service.Metrics interface and
// satisfied by observability.OtelMetrics.
type Metrics interface {
	IncCounter(name string, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
}

// noopMetrics discards everything; used when Pipeline is built without an
// explicit Metrics.
type noopMetrics struct{}

func (noopMetrics) IncCounter(string, map[string]string)                {}
func (noopMetrics) ObserveHistogram(string, float64, map[string]string) {}

// Pipeline owns every collaborator the six stages need and sequences them
// per document. A Pipeline is safe for concurrent use: Ingest may be
// called from many goroutines at once (spec.md §5 "cross-document
// parallelism"); the worker pool in batch.go is a convenience wrapper
// around that same safety, not a requirement of it.
type Pipeline struct {
	cfg     config.Config
	log     Logger
	metrics Metrics

	extractOpts extract.Options

	triageSvc *triage.Service

	enricher *enrich.Enricher
	cost     *enrich.CostAccumulator

	chunker *chunk.Chunker

	vault    *store.Vault
	vec      databases.VectorStore
	emb      embedder.Embedder
	objStore objectstore.ObjectStore

	scalarIndex *triage.ScalarIndex
	llmSem      *semaphore.Weighted

	queueOnce sync.Once
	wp        *workerpool.WorkerPool

	ingestSemOnce sync.Once
	ingestSem     chan struct{}

	countsMu sync.Mutex
	counts   Counts
}

// Options bundles the collaborators that have no config-driven default and
// must be supplied by the caller (OCR/visual-LLM/transcriber engines, plus
// test-only overrides). Zero value is fine for a pipeline that never
// touches images or audio.
type Options struct {
	OCR         extract.OCREngine
	Visual      extract.VisualLLM
	Transcriber extract.Transcriber
	Logger      Logger
	Metrics     Metrics
	HTTPClient  *http.Client
}

// Build wires a Pipeline from fully-resolved configuration, following the
// "load once, pass explicit services" discipline spec.md §9 requires: no
// package below this one reads configuration or environment directly.
func Build(ctx context.Context, cfg config.Config, opt Options) (*Pipeline, error) {
	log := opt.Logger
	if log == nil {
		log = noopLogger{}
	}
	metrics := opt.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	httpClient := opt.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	dbs, err := databases.NewManager(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("pipeline: build databases: %w", err)
	}

	var obj objectstore.ObjectStore
	switch cfg.ObjectStore.Backend {
	case "", "memory":
		obj = objectstore.NewMemoryStore()
	case "s3":
		s3, err := objectstore.NewS3Store(ctx, cfg.ObjectStore.S3)
		if err != nil {
			return nil, fmt.Errorf("pipeline: build object store: %w", err)
		}
		obj = s3
	default:
		return nil, fmt.Errorf("pipeline: unsupported object store backend %q", cfg.ObjectStore.Backend)
	}

	// Projects (with their watchlists) live in the same concepts file as
	// every other vocabulary type; ProjectsPath is kept in configuration for
	// deployments that split it out, but the loader does not yet support
	// merging a second file (see DESIGN.md).
	v, err := vocab.Load(cfg.Vocabulary.ConceptsPath)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load vocabulary: %w", err)
	}

	chain, err := providers.BuildChain(cfg.LLMChain, httpClient)
	if err != nil {
		return nil, fmt.Errorf("pipeline: build llm chain: %w", err)
	}
	entries := make([]enrich.ChainEntry, len(chain))
	for i, p := range chain {
		entries[i] = enrich.ChainEntry{Provider: p, Model: cfg.LLMChain[i].Model, Name: firstNonEmpty(cfg.LLMChain[i].Name, "openai")}
	}

	cost := enrich.NewCostAccumulator()
	enricher := &enrich.Enricher{
		Chain:           entries,
		Vocabulary:      v,
		Cost:            cost,
		MaxContentChars: cfg.Enrich.MaxContentChars,
		CallTimeout:     cfg.LLMTimeout(),
		RecencyTauDays:  cfg.Gate.RecencyHalfLifeDays,
		EnableCritic:    cfg.Gate.EnableCritic,
	}

	emb := embedder.NewClient(cfg.Embedding, cfg.DB.Vector.Dimensions)

	llmConcurrency := cfg.Resources.LLMConcurrency
	if llmConcurrency <= 0 {
		llmConcurrency = 4
	}

	scalar := triage.NewScalarIndex()
	lookup := triage.MultiLookup{scalar, triage.VectorLookup{Store: dbs.Vector, Dimensions: cfg.DB.Vector.Dimensions}}
	triageSvc := triage.NewService(lookup, triage.NewFuzzyIndex(), cfg.Triage.SimilarityThreshold)

	p := &Pipeline{
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		extractOpts: extract.Options{
			OCR:                           opt.OCR,
			Visual:                        opt.Visual,
			Transcriber:                   opt.Transcriber,
			MaxContentChars:               cfg.Enrich.MaxContentChars,
			MaxConcurrentImageExtractions: 2,
		},
		triageSvc: triageSvc,
		enricher:  enricher,
		cost:      cost,
		chunker:   chunk.New(cfg.Chunking),
		vault:     store.NewVault(cfg.Vault),
		vec:         dbs.Vector,
		emb:         emb,
		objStore:    obj,
		scalarIndex: scalar,
		llmSem:      semaphore.NewWeighted(int64(llmConcurrency)),
	}
	return p, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// docBudget returns the configured end-to-end per-document deadline.
func (p *Pipeline) docBudget() time.Duration {
	d := p.cfg.DocBudget()
	if d <= 0 {
		d = 5 * time.Minute
	}
	return d
}

// Ingest runs the full six-stage pipeline for one raw document and returns
// its terminal IngestResult. It never panics and never returns a non-nil
// error for a document-local failure: those are reported on the result
// itself (spec.md §7); a non-nil error return is reserved for programming
// bugs that prevented the pipeline from even starting.
func (p *Pipeline) Ingest(ctx context.Context, raw extract.RawDocument) (IngestResult, error) {
	return p.ingest(ctx, raw, false)
}

// Reingest re-runs the full pipeline for a previously-archived document,
// bypassing Triage's duplicate check (spec.md §4.6 "If Triage is bypassed
// (force flag), writes overwrite by chunk_id").
func (p *Pipeline) Reingest(ctx context.Context, docID string) (IngestResult, error) {
	listing, err := p.objStore.List(ctx, objectstore.ListOptions{Prefix: "raw/" + docID + "/", MaxKeys: 1})
	if err != nil || len(listing.Objects) == 0 {
		msg := "no archived raw bytes for doc_id"
		if err != nil {
			msg = err.Error()
		}
		return IngestResult{DocID: docID, Status: StatusFailed, Stage: StageStore, Kind: KindStorage, Message: msg}, nil
	}
	key := listing.Objects[0].Key

	rc, attrs, err := p.objStore.Get(ctx, key)
	if err != nil {
		return IngestResult{DocID: docID, Status: StatusFailed, Stage: StageStore, Kind: KindStorage, Message: err.Error()}, nil
	}
	defer rc.Close()
	buf := make([]byte, 0, attrs.Size)
	tmp := make([]byte, 32*1024)
	for {
		n, rerr := rc.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if rerr != nil {
			break
		}
	}
	// The archived object carries only content-addressed provenance, not the
	// original filename; extraction falls back to content sniffing, which is
	// exactly what it does for any upload with no declared type.
	raw := extract.RawDocument{Content: buf}
	return p.ingest(ctx, raw, true)
}

func (p *Pipeline) ingest(ctx context.Context, raw extract.RawDocument, force bool) (IngestResult, error) {
	cctx, cancel := context.WithTimeout(ctx, p.docBudget())
	defer cancel()

	start := time.Now()
	res, err := p.run(cctx, raw, force)
	if cctx.Err() == context.DeadlineExceeded && res.Status != StatusStored && res.Status != StatusDuplicate {
		res = IngestResult{DocID: res.DocID, Status: StatusTimeout, Stage: res.Stage, Kind: KindBudget,
			Message: (&BudgetExceeded{DocID: res.DocID, Stage: res.Stage}).Error()}
	}
	p.metricsOrNoop().ObserveHistogram("pipeline_ingest_duration_seconds", time.Since(start).Seconds(), map[string]string{"status": string(res.Status)})
	p.record(res)
	return res, err
}

// metricsOrNoop returns p.metrics, falling back to a shared noop when the
// Pipeline was assembled by hand (tests) without going through Build.
func (p *Pipeline) metricsOrNoop() Metrics {
	if p.metrics == nil {
		return noopMetrics{}
	}
	return p.metrics
}

func (p *Pipeline) run(ctx context.Context, raw extract.RawDocument, force bool) (IngestResult, error) {
	now := time.Now()

	doc, err := extract.Extract(ctx, raw, p.extractOpts)
	if err != nil {
		return IngestResult{Status: StatusFailed, Stage: StageExtract, Kind: KindExtraction, Message: err.Error(), IngestedAt: now}, nil
	}

	title := extractedTitle(doc)
	formatKey := formatKeyFor(doc)
	fp := triage.Compute(doc.Text, title, nil, formatKey)
	docID := "doc_" + fp.ContentSHA256[:16]

	if ctx.Err() != nil {
		return IngestResult{DocID: docID, Status: StatusCancelled, Stage: StageExtract}, nil
	}

	decision := triage.Decision{Action: triage.ActionContinue, Category: triage.CategoryUnique, Confidence: 1.0}
	if !force {
		decision = p.triageSvc.Decide(ctx, doc, fp)
	}

	if decision.Action == triage.ActionStop {
		return p.handleTriageStop(ctx, docID, raw, doc, fp, decision, now)
	}

	archivedKey, err := p.archiveRaw(ctx, docID, raw)
	if err != nil {
		p.log.Error("archive raw bytes failed", err, map[string]any{"doc_id": docID})
	}

	created := createdDate(doc, now)

	if err := p.llmSem.Acquire(ctx, 1); err != nil {
		return IngestResult{DocID: docID, Status: StatusCancelled, Stage: StageEnrich}, nil
	}
	meta, err := p.enricher.Enrich(ctx, doc, raw.Filename, title, created, decision.Category)
	p.llmSem.Release(1)
	if err != nil {
		return IngestResult{DocID: docID, Status: StatusFailed, Stage: StageEnrich, Kind: KindLLM, Message: err.Error(), IngestedAt: now}, nil
	}

	verdict := gate.Decide(p.cfg.Gate, meta, decision)

	if verdict.Action == gate.Stop {
		return p.storeGated(docID, raw, doc, meta, fp, created, now, verdict.Reason, archivedKey)
	}

	chunks := p.chunker.Split(docID, doc)

	chunkIDs, err := store.UpsertChunks(ctx, p.vec, p.emb, docID, chunks, meta, fp, created, now)
	if err != nil {
		return IngestResult{DocID: docID, Status: StatusFailed, Stage: StageStore, Kind: KindStorage, Message: err.Error(), IngestedAt: now}, nil
	}

	refs := store.BuildEntityRefs(meta)
	path, exportErr := p.vault.WriteDocument(store.WriteOptions{
		DocID:        docID,
		Filename:     raw.Filename,
		DocType:      doc.DocumentType,
		CreatedDate:  created,
		IngestedAt:   now,
		Gated:        false,
		SourcePath:   archivedKey,
		SourceSHA256: fp.ContentSHA256,
	}, meta, doc, chunks, refs)

	p.scalarIndex.Put("content_sha256", fp.ContentSHA256, docID)
	p.scalarIndex.Put("title_sha", fp.TitleSHA, docID)
	if fp.FormatKey != "" && doc.DocumentType == extract.TypeEmail {
		p.scalarIndex.Put("email_message_id", fp.FormatKey, docID)
	}
	p.triageSvc.Fuzzy.Add(docID, fp.FuzzyHash)

	res := IngestResult{
		DocID:      docID,
		Status:     StatusStored,
		Stage:      StageStore,
		Action:     "unique",
		ChunkIDs:   chunkIDs,
		ExportPath: path,
		DoIndex:    true,
		IngestedAt: now,
	}
	if exportErr != nil {
		logging.QueueRepair(docID, path, exportErr)
		res.Status = StatusStoredUnexported
		res.Kind = KindExport
		res.Message = exportErr.Error()
	}

	go p.ingestAttachments(raw, doc)

	return res, nil
}

// handleTriageStop records the gated/duplicate outcome spec.md §2 demands
// ("STOP short-circuits later stages but still records a gated artifact")
// without ever calling the enrichment LLM (spec.md §4.3).
func (p *Pipeline) handleTriageStop(ctx context.Context, docID string, raw extract.RawDocument, doc extract.ExtractedDocument, fp triage.Fingerprint, decision triage.Decision, now time.Time) (IngestResult, error) {
	if decision.Category == triage.CategoryDuplicate {
		return IngestResult{
			DocID:        docID,
			Status:       StatusDuplicate,
			Stage:        StageTriage,
			Action:       "duplicate",
			MatchedDocID: decision.MatchedDocID,
			IngestedAt:   now,
		}, nil
	}

	// near_duplicate and junk still get a metadata-only, gated export per
	// spec.md §4.4, using a minimal shell since Enrich never ran.
	shell := enrich.Metadata{Title: fallbackTitleFor(raw.Filename, now), EnrichmentVersion: enrich.CurrentEnrichmentVersion}
	created := createdDate(doc, now)
	res, _ := p.storeGated(docID, raw, doc, shell, fp, created, now, string(decision.Category), "")
	res.Stage = StageTriage
	if decision.Category == triage.CategoryNearDuplicate {
		res.MatchedDocID = decision.MatchedDocID
	}
	return res, nil
}

// storeGated persists the metadata-only artifact spec.md §4.4 requires for
// any STOP outcome: a markdown export with gated:true and zero vectors.
func (p *Pipeline) storeGated(docID string, raw extract.RawDocument, doc extract.ExtractedDocument, meta enrich.Metadata, fp triage.Fingerprint, created, now time.Time, reason, archivedKey string) (IngestResult, error) {
	refs := store.BuildEntityRefs(meta)
	path, exportErr := p.vault.WriteDocument(store.WriteOptions{
		DocID:        docID,
		Filename:     raw.Filename,
		DocType:      doc.DocumentType,
		CreatedDate:  created,
		IngestedAt:   now,
		Gated:        true,
		SourcePath:   archivedKey,
		SourceSHA256: fp.ContentSHA256,
	}, meta, doc, nil, refs)

	p.scalarIndex.Put("content_sha256", fp.ContentSHA256, docID)
	p.scalarIndex.Put("title_sha", fp.TitleSHA, docID)
	if fp.FormatKey != "" && doc.DocumentType == extract.TypeEmail {
		p.scalarIndex.Put("email_message_id", fp.FormatKey, docID)
	}
	p.triageSvc.Fuzzy.Add(docID, fp.FuzzyHash)

	res := IngestResult{
		DocID:      docID,
		Status:     StatusGated,
		Stage:      StageGate,
		Kind:       "",
		Message:    reason,
		DoIndex:    false,
		ExportPath: path,
		IngestedAt: now,
	}
	if exportErr != nil {
		logging.QueueRepair(docID, path, exportErr)
		res.Kind = KindExport
		res.Message = exportErr.Error()
	}
	return res, nil
}

func (p *Pipeline) archiveRaw(ctx context.Context, docID string, raw extract.RawDocument) (string, error) {
	if p.objStore == nil {
		return "", nil
	}
	return store.ArchiveRaw(ctx, p.objStore, docID, raw.Content, mimeFor(raw))
}

func mimeFor(raw extract.RawDocument) string {
	if raw.MIMEHint != "" {
		return raw.MIMEHint
	}
	return "application/octet-stream"
}

// ingestAttachments re-ingests each attachment RawDocument discovered during
// extraction as its own independent document, linked by ParentMessageID
// (spec.md §4.1 "attachments emitted as sibling RawDocuments"). Run
// fire-and-forget in a goroutine of its own, outside the worker pool, so a
// slow attachment never blocks the parent's own IngestResult.
func (p *Pipeline) ingestAttachments(parent extract.RawDocument, doc extract.ExtractedDocument) {
	if len(doc.Attachments) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.docBudget())
	defer cancel()
	for _, att := range doc.Attachments {
		if _, err := p.Ingest(ctx, att); err != nil {
			p.log.Error("attachment ingest failed", err, map[string]any{"parent_message_id": att.ParentMessageID})
		}
	}
}

func (p *Pipeline) record(res IngestResult) {
	p.countsMu.Lock()
	switch res.Status {
	case StatusStored:
		p.counts.Stored++
	case StatusStoredUnexported:
		p.counts.StoredUnexported++
	case StatusDuplicate:
		p.counts.Duplicate++
	case StatusGated:
		p.counts.Gated++
	case StatusFailed:
		p.counts.Failed++
	case StatusCancelled:
		p.counts.Cancelled++
	case StatusTimeout:
		p.counts.Timeout++
	}
	p.countsMu.Unlock()

	p.metricsOrNoop().IncCounter("pipeline_ingest_total", map[string]string{
		"status": string(res.Status),
		"stage":  string(res.Stage),
	})
}

// Stats returns the ingest counters and cumulative LLM cost accumulated
// since the pipeline was built (spec.md §6 stats()).
func (p *Pipeline) Stats() Stats {
	t := p.cost.Totals()
	p.countsMu.Lock()
	counts := p.counts
	p.countsMu.Unlock()
	return Stats{
		Counts:        counts,
		CostCalls:     t.Calls,
		CostTokensIn:  t.TokensIn,
		CostTokensOut: t.TokensOut,
		CostUSD:       t.USD,
	}
}

func extractedTitle(doc extract.ExtractedDocument) string {
	if doc.Source.Title != "" {
		return doc.Source.Title
	}
	for _, s := range doc.StructuralMetadata {
		if s.Type == extract.SectionHeading && strings.TrimSpace(s.Title) != "" {
			return s.Title
		}
	}
	return ""
}

func formatKeyFor(doc extract.ExtractedDocument) string {
	if doc.DocumentType == extract.TypeEmail && doc.Source.MessageID != "" {
		return doc.Source.MessageID
	}
	if doc.DocumentType == extract.TypeLLMChat && len(doc.ChatTurns) >= 2 {
		return triage.Compute(doc.ChatTurns[0].Text+"\x1f"+doc.ChatTurns[1].Text, "", nil, "").ContentSHA256
	}
	return ""
}

func createdDate(doc extract.ExtractedDocument, fallback time.Time) time.Time {
	if doc.CreatedDate != "" {
		if t, err := time.Parse(time.RFC3339, doc.CreatedDate); err == nil {
			return t.UTC()
		}
	}
	return fallback.UTC()
}

func fallbackTitleFor(filename string, now time.Time) string {
	stem := filename
	if i := strings.LastIndex(stem, "."); i > 0 {
		stem = stem[:i]
	}
	if stem == "" {
		stem = "untitled"
	}
	return now.Format("2006-01-02") + " " + stem
}
