package pipeline

import (
	"context"
	"errors"

	"github.com/gammazero/workerpool"

	"github.com/knowledgeforge/ingest/internal/extract"
)

// ErrQueueFull is returned by TrySubmit when the ingest queue is at capacity
// (spec.md §5 "producers block or receive 429 when full"). The HTTP
// collaborator maps this to a 429 response; callers that would rather
// block should use Ingest directly or retry after backoff.
var ErrQueueFull = errors.New("pipeline: ingest queue full")

// queue lazily builds the bounded worker pool the first time batch work is
// submitted, sized from cfg.Resources.MaxWorkers. A Pipeline used only via
// Ingest never pays for it.
func (p *Pipeline) queue() *workerpool.WorkerPool {
	p.queueOnce.Do(func() {
		n := p.cfg.Resources.MaxWorkers
		if n <= 0 {
			n = 4
		}
		p.wp = workerpool.New(n)
	})
	return p.wp
}

// queueCapacity mirrors spec.md §5's "bounded capacity" ingest queue: the
// number of documents allowed to sit submitted-but-not-yet-running before
// TrySubmit starts rejecting with ErrQueueFull. gammazero/workerpool itself
// has no bounded-submit primitive, so the cap is enforced here with a
// counting semaphore sized from configuration.
func (p *Pipeline) queueCapacity() int {
	n := p.cfg.Resources.IngestQueueSize
	if n <= 0 {
		n = 256
	}
	return n
}

// BatchIngest runs every raw document through the full pipeline using the
// configured max_workers (spec.md §5 "cross-document parallelism"),
// preserving per-input order in the returned slice even though completion
// order across workers is unspecified. A single document's failure never
// aborts its siblings (spec.md §7): each result is independent.
func (p *Pipeline) BatchIngest(ctx context.Context, raws []extract.RawDocument) ([]IngestResult, error) {
	wp := p.queue()
	results := make([]IngestResult, len(raws))
	sem := make(chan struct{}, p.queueCapacity())

	for i, raw := range raws {
		i, raw := i, raw
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			results[i] = IngestResult{Status: StatusCancelled, Stage: StagePipeline}
			continue
		}
		wp.Submit(func() {
			defer func() { <-sem }()
			res, err := p.Ingest(ctx, raw)
			if err != nil {
				res = IngestResult{Status: StatusFailed, Stage: StagePipeline, Message: err.Error()}
			}
			results[i] = res
		})
	}
	wp.StopWait()
	return results, nil
}

// TrySubmit enqueues a single document for asynchronous ingestion, honoring
// the bounded-queue backpressure contract (spec.md §5): it returns
// ErrQueueFull immediately rather than blocking when the queue is at
// capacity, so an HTTP handler can turn that into a 429. The caller
// receives the IngestResult via the supplied callback once processing
// completes; errors from the pipeline itself (not document-local failures)
// are passed to the callback as a failed-stage result.
func (p *Pipeline) TrySubmit(ctx context.Context, raw extract.RawDocument, done func(IngestResult)) error {
	wp := p.queue()
	select {
	case p.ingestSemFor() <- struct{}{}:
	default:
		return ErrQueueFull
	}
	wp.Submit(func() {
		defer func() { <-p.ingestSemFor() }()
		res, err := p.Ingest(ctx, raw)
		if err != nil {
			res = IngestResult{Status: StatusFailed, Stage: StagePipeline, Message: err.Error()}
		}
		if done != nil {
			done(res)
		}
	})
	return nil
}

// ingestSemFor lazily sizes the TrySubmit backpressure semaphore from
// configuration exactly once, independent of BatchIngest's own per-call
// semaphore.
func (p *Pipeline) ingestSemFor() chan struct{} {
	p.ingestSemOnce.Do(func() {
		p.ingestSem = make(chan struct{}, p.queueCapacity())
	})
	return p.ingestSem
}
