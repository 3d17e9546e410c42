// Package runresp assembles the uniform run-result envelope from per-batch
// statistics
package runresp

import (
	"time"

	ptime "github.com/ChrisPatten/haven-sub004/internal/platform/time"
)

// Status is the terminal state of a run
type Status string

// Run statuses
const (
	StatusOK      Status = "ok"
	StatusPartial Status = "partial"
	StatusError   Status = "error"
)

// Stats are the aggregated per-run counters
type Stats struct {
	Scanned   int `json:"scanned"`
	Matched   int `json:"matched"`
	Submitted int `json:"submitted"`
	Skipped   int `json:"skipped"`
	Batches   int `json:"batches"`

	EarliestTouched *time.Time `json:"earliest_touched"`
	LatestTouched   *time.Time `json:"latest_touched"`
}

// RunResponse is the immutable envelope returned for every run
type RunResponse struct {
	Status     Status    `json:"status"`
	Collector  string    `json:"collector"`
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Stats      Stats     `json:"stats"`
	Warnings   []string  `json:"warnings"`
	Errors     []string  `json:"errors"`
}

// Elapsed returns the run duration
func (r *RunResponse) Elapsed() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Builder accumulates batch counters into a RunResponse. Not safe for
// concurrent use: the engine serializes all folding onto a single owner
type Builder struct {
	collector string
	runID     string
	startedAt time.Time

	stats    Stats
	warnings []string
	errors   []string

	finished bool
}

// New starts a builder for one run
func New(collector, runID string, startedAt time.Time) *Builder {
	return &Builder{collector: collector, runID: runID, startedAt: startedAt}
}

// IncrementBatch folds one logical batch of work into the stats. Counters are
// purely additive; touched timestamps widen monotonically and never narrow
func (b *Builder) IncrementBatch(scanned, matched, submitted, skipped int, earliest, latest *time.Time) {
	b.mustOpen()
	b.stats.Scanned += scanned
	b.stats.Matched += matched
	b.stats.Submitted += submitted
	b.stats.Skipped += skipped
	b.stats.Batches++
	if earliest != nil {
		b.stats.EarliestTouched = ptime.FoldMin(b.stats.EarliestTouched, *earliest)
	}
	if latest != nil {
		b.stats.LatestTouched = ptime.FoldMax(b.stats.LatestTouched, *latest)
	}
}

// Warn appends a non-fatal message
func (b *Builder) Warn(msg string) {
	b.mustOpen()
	b.warnings = append(b.warnings, msg)
}

// Warns appends multiple non-fatal messages in order
func (b *Builder) Warns(msgs []string) {
	b.mustOpen()
	b.warnings = append(b.warnings, msgs...)
}

// Error appends a fatal or per-item error message
func (b *Builder) Error(msg string) {
	b.mustOpen()
	b.errors = append(b.errors, msg)
}

// HasErrors reports whether any error has been appended
func (b *Builder) HasErrors() bool { return len(b.errors) > 0 }

// Submitted returns the submitted counter so far
func (b *Builder) Submitted() int { return b.stats.Submitted }

// Finish seals the builder and returns the envelope. Status derives from the
// accumulated outcome: ok with no errors, partial when failures sit alongside
// successes, error when nothing was delivered. Calling Finish twice panics
func (b *Builder) Finish(finishedAt time.Time) *RunResponse {
	b.mustOpen()
	b.finished = true

	status := StatusOK
	if len(b.errors) > 0 {
		if b.stats.Submitted > 0 {
			status = StatusPartial
		} else {
			status = StatusError
		}
	}
	return b.seal(status, finishedAt)
}

// Fail seals the builder with status error regardless of counters, for runs
// that cannot proceed past validation or connection
func (b *Builder) Fail(finishedAt time.Time, msg string) *RunResponse {
	b.mustOpen()
	if msg != "" {
		b.errors = append(b.errors, msg)
	}
	b.finished = true
	return b.seal(StatusError, finishedAt)
}

func (b *Builder) seal(status Status, finishedAt time.Time) *RunResponse {
	warnings := b.warnings
	if warnings == nil {
		warnings = []string{}
	}
	errs := b.errors
	if errs == nil {
		errs = []string{}
	}
	return &RunResponse{
		Status:     status,
		Collector:  b.collector,
		RunID:      b.runID,
		StartedAt:  b.startedAt,
		FinishedAt: finishedAt,
		Stats:      b.stats,
		Warnings:   warnings,
		Errors:     errs,
	}
}

func (b *Builder) mustOpen() {
	if b.finished {
		panic("runresp: builder used after Finish")
	}
}
