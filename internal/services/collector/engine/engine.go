// Package engine executes the generic collector run algorithm over any
// family source: ordered enumeration, filtering, size caps, hash dedup
// against the state ledger, batched submission, and stat folding.
//
// All ledger mutation and counter folding happens on the single owning
// goroutine; only the submission calls themselves fan out, bounded by the
// request concurrency. That keeps exactly one dedup decision per hash
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ChrisPatten/haven-sub004/internal/adapters/ingest"
	"github.com/ChrisPatten/haven-sub004/internal/core/hash"
	"github.com/ChrisPatten/haven-sub004/internal/core/runresp"
	"github.com/ChrisPatten/haven-sub004/internal/platform/logger"
	ptime "github.com/ChrisPatten/haven-sub004/internal/platform/time"
	"github.com/ChrisPatten/haven-sub004/internal/services/collector/domain"
	"github.com/ChrisPatten/haven-sub004/internal/state"
)

// default flush size when batch mode is requested without an explicit size
const defaultBatchSize = 25

// Engine runs one collector invocation end to end
type Engine struct {
	Sub domain.Submitter

	// Enr is optional; nil disables enrichment
	Enr domain.Enricher
}

// pendingItem is a new (unseen or forced) item waiting for submission
type pendingItem struct {
	item    *domain.Item
	content *domain.Content
	hash    string
	key     string
}

// outcome is the per-item submission result folded back on the owner
type outcome struct {
	p   pendingItem
	err error
}

// Run drives one collector invocation over src. Hard failures
// (unreachable source, broken enumeration) return an error; per-item
// failures land in the builder and enumeration continues
func (e *Engine) Run(ctx context.Context, src domain.Source, p domain.Params, st *state.State, b *runresp.Builder) error {
	log := logger.C(ctx)

	if err := src.Check(ctx, p); err != nil {
		return err
	}
	iter, err := src.Items(ctx, p)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := iter.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("close item iterator")
		}
	}()

	disp, _ := src.(domain.Disposer)

	flushSize := p.BatchSize
	if flushSize <= 0 {
		if p.Batch {
			flushSize = defaultBatchSize
		} else if flushSize = p.Concurrency; flushSize < 1 {
			flushSize = 1
		}
	}

	var (
		scanned, matched, skipped, submitted int
		earliest, latest                     *time.Time
		pending                              []pendingItem
		newCount                             int
	)

	flush := func() {
		if len(pending) > 0 {
			sub, skip := e.deliver(ctx, p, st, b, disp, pending)
			submitted += sub
			skipped += skip
			pending = pending[:0]
		}
		if scanned == 0 && matched == 0 && submitted == 0 && skipped == 0 {
			return
		}
		b.IncrementBatch(scanned, matched, submitted, skipped, earliest, latest)
		scanned, matched, submitted, skipped = 0, 0, 0, 0
		earliest, latest = nil, nil
	}

	for {
		if ctx.Err() != nil {
			b.Warn("run deadline reached, stopping enumeration early")
			if n := len(pending); n > 0 {
				b.Warn(fmt.Sprintf("%d pending items left unsubmitted for the next run", n))
				skipped += n
				pending = pending[:0]
			}
			break
		}

		item, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			flush()
			return err
		}

		scanned++
		seenAt := time.Now().UTC()

		// hidden items are always skipped; symlinks only surface from
		// sources configured to follow them
		if item.Hidden || item.Symlink {
			skipped++
			continue
		}
		if !p.Filters.Match(item.Path) {
			skipped++
			continue
		}
		matched++
		earliest = ptime.FoldMin(earliest, item.Touched)
		latest = ptime.FoldMax(latest, item.Touched)

		if p.MaxItemBytes > 0 && item.Size > p.MaxItemBytes {
			b.Warn(fmt.Sprintf("%s: %d bytes exceeds limit %d, skipped", item.Path, item.Size, p.MaxItemBytes))
			skipped++
			continue
		}

		content, err := item.Load(ctx)
		if err != nil {
			b.Error(fmt.Sprintf("%s: read failed: %v", item.Path, err))
			skipped++
			continue
		}

		h := contentHash(content)
		if _, seen := st.Lookup(h); seen && !p.Force {
			st.Touch(h, item.Path, seenAt, item.Tags)
			skipped++
			continue
		}

		pending = append(pending, pendingItem{
			item:    item,
			content: content,
			hash:    h,
			key:     ingest.IdempotencyKey(src.Name(), item.ID, h, p.Force),
		})
		newCount++

		if len(pending) >= flushSize {
			flush()
		}
		if p.Limit > 0 && newCount >= p.Limit {
			log.Debug().Int("limit", p.Limit).Msg("item limit reached")
			break
		}
	}

	flush()
	return nil
}

func contentHash(c *domain.Content) string {
	if c.Bytes != nil {
		return hash.Bytes(c.Bytes)
	}
	return hash.Text(c.Text)
}

// deliver submits one flush worth of pending items and folds the results
// serially. Returns (submitted, skipped) deltas
func (e *Engine) deliver(ctx context.Context, p domain.Params, st *state.State, b *runresp.Builder, disp domain.Disposer, pending []pendingItem) (int, int) {
	if p.DryRun {
		for _, pi := range pending {
			b.Warn(fmt.Sprintf("dry-run: would submit %s (hash %.12s)", pi.item.Path, pi.hash))
		}
		// would-be submissions count as submitted; the ledger is untouched
		return len(pending), 0
	}

	var docs, files []pendingItem
	for _, pi := range pending {
		if pi.content.Bytes != nil {
			files = append(files, pi)
		} else {
			docs = append(docs, pi)
		}
	}

	outcomes := make([]outcome, 0, len(pending))
	if p.Batch && len(docs) > 0 {
		outcomes = append(outcomes, e.deliverDocBatch(ctx, p, b, docs)...)
	} else if len(docs) > 0 {
		outcomes = append(outcomes, e.deliverParallel(ctx, p, b, docs, false)...)
	}
	if len(files) > 0 {
		outcomes = append(outcomes, e.deliverParallel(ctx, p, b, files, true)...)
	}

	var submitted, skipped int
	now := time.Now().UTC()
	for _, o := range outcomes {
		if o.err != nil {
			b.Error(fmt.Sprintf("%s: submit failed: %v", o.p.item.Path, o.err))
			skipped++
			continue
		}
		submitted++
		st.Upsert(o.p.hash, state.Entry{
			Path:      o.p.item.Path,
			FirstSeen: now,
			LastSeen:  now,
			Size:      o.p.item.Size,
			Tags:      o.p.item.Tags,
		})
		if disp != nil {
			if derr := disp.Dispose(ctx, o.p.item); derr != nil {
				b.Warn(fmt.Sprintf("%s: disposal failed: %v", o.p.item.Path, derr))
			}
		}
	}
	return submitted, skipped
}

// deliverDocBatch pushes documents through the batch endpoint (the client
// falls back to sequential submissions when the endpoint is absent)
func (e *Engine) deliverDocBatch(ctx context.Context, p domain.Params, b *runresp.Builder, docs []pendingItem) []outcome {
	payloads := make([]domain.DocumentPayload, len(docs))
	keys := make([]string, len(docs))
	for i, pi := range docs {
		payloads[i] = e.docPayload(ctx, p, b, pi)
		keys[i] = pi.key
	}

	results, err := e.Sub.SubmitBatch(ctx, payloads, keys)
	out := make([]outcome, len(docs))
	for i := range docs {
		out[i] = outcome{p: docs[i]}
		if err != nil {
			out[i].err = err
			continue
		}
		if results[i].Err != nil {
			out[i].err = results[i].Err
		}
	}
	return out
}

// deliverParallel submits items one call each, fanned out over at most
// p.Concurrency workers. Results come back positional so folding stays
// deterministic
func (e *Engine) deliverParallel(ctx context.Context, p domain.Params, b *runresp.Builder, items []pendingItem, asFiles bool) []outcome {
	out := make([]outcome, len(items))

	conc := p.Concurrency
	if conc < 1 {
		conc = 1
	}
	if conc > len(items) {
		conc = len(items)
	}

	// enrichment runs on the owner before fan-out so builder access stays
	// single-threaded
	var payloads []domain.DocumentPayload
	if !asFiles {
		payloads = make([]domain.DocumentPayload, len(items))
		for i, pi := range items {
			payloads[i] = e.docPayload(ctx, p, b, pi)
		}
	}

	sem := make(chan struct{}, conc)
	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			pi := items[i]
			var err error
			if asFiles {
				_, err = e.Sub.UploadFile(ctx, domain.FilePayload{
					SourceType:  p.Collector,
					SourceID:    pi.item.ID,
					ContentHash: pi.hash,
					Filename:    pi.content.Filename,
					MimeType:    pi.content.MimeType,
					Bytes:       pi.content.Bytes,
					Metadata:    pi.content.Metadata,
				}, pi.key)
			} else {
				_, err = e.Sub.SubmitDocument(ctx, payloads[i], pi.key)
			}
			out[i] = outcome{p: pi, err: err}
		}(i)
	}
	wg.Wait()
	return out
}

// docPayload builds the document payload, attaching enrichment annotations
// when an enricher is configured. Enrichment failures degrade to a warning
func (e *Engine) docPayload(ctx context.Context, p domain.Params, b *runresp.Builder, pi pendingItem) domain.DocumentPayload {
	occurred := pi.content.OccurredAt
	if occurred == nil {
		occurred = ptime.Ptr(pi.item.Touched)
	}
	payload := domain.DocumentPayload{
		SourceType:  p.Collector,
		SourceID:    pi.item.ID,
		ContentHash: pi.hash,
		Title:       pi.content.Title,
		Text:        pi.content.Text,
		OccurredAt:  occurred,
		Metadata:    pi.content.Metadata,
		Redaction:   p.Redaction,
	}
	if e.Enr != nil {
		ann, err := e.Enr.Enrich(ctx, domain.EnrichDocument{
			SourceType:  p.Collector,
			ContentHash: pi.hash,
			Text:        pi.content.Text,
			MimeType:    pi.content.MimeType,
		})
		if err != nil {
			b.Warn(fmt.Sprintf("%s: enrichment failed: %v", pi.item.Path, err))
		} else {
			payload.Annotations = ann
		}
	}
	return payload
}
