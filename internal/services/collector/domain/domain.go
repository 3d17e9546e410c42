// Package domain holds the shared collector vocabulary: resolved run
// parameters, the source port every collector family implements, and the
// items sources emit
package domain

import (
	"context"
	"time"

	"github.com/ChrisPatten/haven-sub004/internal/adapters/enrich"
	"github.com/ChrisPatten/haven-sub004/internal/adapters/ingest"
	"github.com/ChrisPatten/haven-sub004/internal/core/runreq"
)

// wire types shared with the ingest and enrichment boundaries
type (
	// DocumentPayload is a normalized document ready for submission
	DocumentPayload = ingest.DocumentPayload

	// FilePayload is raw bytes plus metadata for the upload boundary
	FilePayload = ingest.FilePayload

	// SubmissionResponse is the downstream acknowledgement
	SubmissionResponse = ingest.SubmissionResponse

	// BatchResult pairs one submitted document with its outcome
	BatchResult = ingest.BatchResult

	// EnrichDocument is the enrichment input
	EnrichDocument = enrich.Document
)

// DefaultLookback bounds enumeration when a request names neither a
// date_range nor a time_window
const DefaultLookback = 90 * 24 * time.Hour

// Params is the collector-specific execution plan resolved from a validated
// run request
type Params struct {
	Collector string
	Family    runreq.Family

	DryRun bool
	Force  bool

	Order       runreq.Order
	Limit       int // 0 means unlimited
	Concurrency int

	Since *time.Time
	Until *time.Time

	Batch     bool
	BatchSize int

	Filters   *runreq.Filters
	Redaction map[string]bool

	// MaxItemBytes caps individual item size; 0 disables the cap
	MaxItemBytes int64

	Scope runreq.Scope
}

// Resolve builds the family-independent part of Params from req. now is
// injectable for tests; the since/until window comes from date_range, else
// now minus time_window, else now minus DefaultLookback
func Resolve(collector string, req *runreq.RunRequest, now time.Time) Params {
	p := Params{
		Collector:   collector,
		Family:      req.Family,
		DryRun:      req.DryRun(),
		Force:       req.Force,
		Order:       req.Order,
		Concurrency: req.Concurrency,
		Batch:       req.Batch,
		Filters:     req.Filters,
		Redaction:   req.RedactionOverride,
		Scope:       req.Scope,
	}
	if req.Limit != nil {
		p.Limit = *req.Limit
	}
	if req.BatchSize != nil {
		p.BatchSize = *req.BatchSize
	}

	switch {
	case !req.DateRange.IsZero():
		p.Since = req.DateRange.Since
		p.Until = req.DateRange.Until
	case req.Window != nil:
		since := now.Add(-*req.Window)
		p.Since = &since
	default:
		since := now.Add(-DefaultLookback)
		p.Since = &since
	}
	return p
}

// InWindow reports whether t falls inside the resolved window
func (p Params) InWindow(t time.Time) bool {
	if p.Since != nil && t.Before(*p.Since) {
		return false
	}
	if p.Until != nil && t.After(*p.Until) {
		return false
	}
	return true
}

// Content is the loaded payload for one item. Bytes non-nil means a file
// upload; otherwise Text is submitted as a document
type Content struct {
	Text     string
	Bytes    []byte
	Filename string
	MimeType string

	Title      string
	OccurredAt *time.Time
	Metadata   map[string]any
}

// Item is one enumeration candidate. Load defers content reads until the
// item survives filtering and the size cap
type Item struct {
	// ID is the stable source identifier (path, message id, card uid)
	ID string

	// Path is the location used for filter matching and ledger bookkeeping
	Path string

	Size    int64
	Touched time.Time

	Hidden  bool
	Symlink bool

	// Tags land on the ledger entry
	Tags []string

	Load func(ctx context.Context) (*Content, error)
}

// Source is the per-family enumeration port
type Source interface {
	// Name returns the family id used in logs and payload source_type
	Name() string

	// Check validates the source root/endpoint is reachable. A Check
	// failure is a hard run failure, not a per-item skip
	Check(ctx context.Context, p Params) error

	// Items opens an iterator over candidates in p.Order, bounded by the
	// resolved window where the backend supports it
	Items(ctx context.Context, p Params) (ItemIter, error)
}

// ItemIter walks candidates one at a time; Next returns io.EOF when done
type ItemIter interface {
	Next(ctx context.Context) (*Item, error)
	Close() error
}

// Disposer is an optional source capability: called after a successful real
// submission to move or delete the original item per scope configuration
type Disposer interface {
	Dispose(ctx context.Context, item *Item) error
}

// Submitter is the downstream ingest port consumed by the engine
type Submitter interface {
	SubmitDocument(ctx context.Context, p DocumentPayload, idemKey string) (*SubmissionResponse, error)
	UploadFile(ctx context.Context, p FilePayload, idemKey string) (*SubmissionResponse, error)
	SubmitBatch(ctx context.Context, docs []DocumentPayload, keys []string) ([]BatchResult, error)
}

// Enricher matches the optional enrichment boundary
type Enricher interface {
	Enrich(ctx context.Context, doc EnrichDocument) (map[string]any, error)
}
