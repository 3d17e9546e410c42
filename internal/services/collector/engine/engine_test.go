package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ChrisPatten/haven-sub004/internal/core/runreq"
	"github.com/ChrisPatten/haven-sub004/internal/core/runresp"
	"github.com/ChrisPatten/haven-sub004/internal/services/collector/domain"
	"github.com/ChrisPatten/haven-sub004/internal/state"
)

// fakeSource serves a fixed slice of items
type fakeSource struct {
	name     string
	items    []*domain.Item
	checkErr error
	disposed []string
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) Check(context.Context, domain.Params) error { return s.checkErr }

func (s *fakeSource) Dispose(_ context.Context, it *domain.Item) error {
	s.disposed = append(s.disposed, it.Path)
	return nil
}

func (s *fakeSource) Items(context.Context, domain.Params) (domain.ItemIter, error) {
	return &sliceIter{items: s.items}, nil
}

type sliceIter struct {
	items []*domain.Item
	pos   int
}

func (it *sliceIter) Next(context.Context) (*domain.Item, error) {
	if it.pos >= len(it.items) {
		return nil, io.EOF
	}
	item := it.items[it.pos]
	it.pos++
	return item, nil
}

func (it *sliceIter) Close() error { return nil }

// fakeSubmitter records calls; failFor paths reject with a permanent error
type fakeSubmitter struct {
	mu      sync.Mutex
	docs    []domain.DocumentPayload
	files   []domain.FilePayload
	keys    []string
	failFor map[string]bool
}

func (f *fakeSubmitter) SubmitDocument(_ context.Context, p domain.DocumentPayload, key string) (*domain.SubmissionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[p.SourceID] {
		return nil, errors.New("rejected")
	}
	f.docs = append(f.docs, p)
	f.keys = append(f.keys, key)
	return &domain.SubmissionResponse{SubmissionID: "s-" + key}, nil
}

func (f *fakeSubmitter) UploadFile(_ context.Context, p domain.FilePayload, key string) (*domain.SubmissionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[p.SourceID] {
		return nil, errors.New("rejected")
	}
	f.files = append(f.files, p)
	f.keys = append(f.keys, key)
	return &domain.SubmissionResponse{SubmissionID: "s-" + key}, nil
}

func (f *fakeSubmitter) SubmitBatch(ctx context.Context, docs []domain.DocumentPayload, keys []string) ([]domain.BatchResult, error) {
	out := make([]domain.BatchResult, len(docs))
	for i := range docs {
		resp, err := f.SubmitDocument(ctx, docs[i], keys[i])
		out[i] = domain.BatchResult{Key: keys[i], Resp: resp, Err: err}
	}
	return out, nil
}

func (f *fakeSubmitter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs) + len(f.files)
}

func textItem(path, text string, touched time.Time) *domain.Item {
	return &domain.Item{
		ID:      path,
		Path:    path,
		Size:    int64(len(text)),
		Touched: touched,
		Load: func(context.Context) (*domain.Content, error) {
			return &domain.Content{Text: text}, nil
		},
	}
}

func baseParams() domain.Params {
	return domain.Params{
		Collector:   "localfs.docs",
		Family:      runreq.FamilyLocalfs,
		Order:       runreq.OrderAsc,
		Concurrency: 2,
	}
}

func run(t *testing.T, src domain.Source, sub *fakeSubmitter, p domain.Params, st *state.State) *runresp.RunResponse {
	t.Helper()
	e := &Engine{Sub: sub}
	b := runresp.New(p.Collector, "run-1", time.Now().UTC())
	if err := e.Run(context.Background(), src, p, st, b); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return b.Finish(time.Now().UTC())
}

func TestRunSubmitsThenDeduplicates(t *testing.T) {
	touched := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{name: "localfs", items: []*domain.Item{
		textItem("/in/a.txt", "alpha", touched),
		textItem("/in/b.txt", "beta", touched.Add(time.Hour)),
	}}
	sub := &fakeSubmitter{}
	st := state.New()

	resp := run(t, src, sub, baseParams(), st)
	if resp.Status != runresp.StatusOK {
		t.Fatalf("status = %s, errors = %v", resp.Status, resp.Errors)
	}
	if resp.Stats.Submitted != 2 || resp.Stats.Scanned != 2 {
		t.Fatalf("first run stats: %+v", resp.Stats)
	}
	if st.Len() != 2 {
		t.Fatalf("ledger entries = %d", st.Len())
	}

	// identical second pass: everything dedups against the ledger
	src2 := &fakeSource{name: "localfs", items: []*domain.Item{
		textItem("/in/a.txt", "alpha", touched),
		textItem("/in/b.txt", "beta", touched.Add(time.Hour)),
	}}
	resp2 := run(t, src2, sub, baseParams(), st)
	if resp2.Stats.Submitted != 0 || resp2.Stats.Skipped != 2 {
		t.Fatalf("second run stats: %+v", resp2.Stats)
	}
	if sub.calls() != 2 {
		t.Fatalf("submitter called %d times across both runs, want 2", sub.calls())
	}
	if !st.Dirty() {
		t.Fatal("dedup touch must mark the ledger dirty")
	}
}

func TestRunForceResubmits(t *testing.T) {
	touched := time.Now().UTC()
	make2 := func() []*domain.Item {
		return []*domain.Item{textItem("/in/a.txt", "alpha", touched)}
	}
	sub := &fakeSubmitter{}
	st := state.New()

	run(t, &fakeSource{name: "localfs", items: make2()}, sub, baseParams(), st)

	p := baseParams()
	p.Force = true
	resp := run(t, &fakeSource{name: "localfs", items: make2()}, sub, p, st)
	if resp.Stats.Submitted != 1 {
		t.Fatalf("force run stats: %+v", resp.Stats)
	}
	if sub.calls() != 2 {
		t.Fatalf("submitter calls = %d, want 2", sub.calls())
	}
	if sub.keys[0] == sub.keys[1] {
		t.Fatal("forced resubmission must carry a fresh idempotency key")
	}
}

func TestRunPartialFailureAggregation(t *testing.T) {
	touched := time.Now().UTC()
	var items []*domain.Item
	for i := 0; i < 5; i++ {
		path := fmt.Sprintf("/in/doc-%d.txt", i)
		items = append(items, textItem(path, fmt.Sprintf("body %d", i), touched))
	}
	src := &fakeSource{name: "localfs", items: items}
	sub := &fakeSubmitter{failFor: map[string]bool{
		"/in/doc-1.txt": true,
		"/in/doc-3.txt": true,
	}}

	resp := run(t, src, sub, baseParams(), state.New())
	if resp.Status != runresp.StatusPartial {
		t.Fatalf("status = %s", resp.Status)
	}
	s := resp.Stats
	if s.Scanned != 5 || s.Matched != 5 || s.Submitted != 3 || s.Skipped != 2 {
		t.Fatalf("stats: %+v", s)
	}
	if len(resp.Errors) != 2 {
		t.Fatalf("errors: %v", resp.Errors)
	}
}

func TestRunDryRunTouchesNothing(t *testing.T) {
	touched := time.Now().UTC()
	src := &fakeSource{name: "localfs", items: []*domain.Item{
		textItem("/in/a.txt", "alpha", touched),
		textItem("/in/b.txt", "beta", touched),
	}}
	sub := &fakeSubmitter{}
	st := state.New()

	p := baseParams()
	p.DryRun = true
	resp := run(t, src, sub, p, st)

	if sub.calls() != 0 {
		t.Fatalf("dry-run made %d submission calls", sub.calls())
	}
	if st.Len() != 0 || st.Dirty() {
		t.Fatal("dry-run must not write the ledger")
	}
	if resp.Stats.Submitted != 2 {
		t.Fatalf("stats: %+v", resp.Stats)
	}
	var wouldSubmit int
	for _, w := range resp.Warnings {
		if strings.HasPrefix(w, "dry-run: would submit") {
			wouldSubmit++
		}
	}
	if wouldSubmit != 2 {
		t.Fatalf("warnings: %v", resp.Warnings)
	}
}

func TestRunSkipsHiddenAndSymlinks(t *testing.T) {
	touched := time.Now().UTC()
	hidden := textItem("/in/.secret", "x", touched)
	hidden.Hidden = true
	link := textItem("/in/link.txt", "x", touched)
	link.Symlink = true
	src := &fakeSource{name: "localfs", items: []*domain.Item{
		hidden, link, textItem("/in/plain.txt", "plain", touched),
	}}
	sub := &fakeSubmitter{}

	resp := run(t, src, sub, baseParams(), state.New())
	s := resp.Stats
	if s.Scanned != 3 || s.Matched != 1 || s.Submitted != 1 || s.Skipped != 2 {
		t.Fatalf("stats: %+v", s)
	}
}

func TestRunAppliesFiltersAndSizeCap(t *testing.T) {
	touched := time.Now().UTC()
	big := textItem("/in/big.txt", strings.Repeat("x", 100), touched)
	src := &fakeSource{name: "localfs", items: []*domain.Item{
		textItem("/in/keep.txt", "keep", touched),
		textItem("/in/skip.log", "skip", touched),
		big,
	}}
	sub := &fakeSubmitter{}

	p := baseParams()
	p.MaxItemBytes = 50
	p.Filters = &runreq.Filters{
		DefaultAction: runreq.ActionInclude,
		Rules:         []runreq.Rule{{Action: runreq.ActionExclude, Pattern: "*.log"}},
	}

	resp := run(t, src, sub, p, state.New())
	s := resp.Stats
	if s.Scanned != 3 || s.Matched != 2 || s.Submitted != 1 || s.Skipped != 2 {
		t.Fatalf("stats: %+v", s)
	}
	if len(resp.Warnings) != 1 || !strings.Contains(resp.Warnings[0], "exceeds limit") {
		t.Fatalf("warnings: %v", resp.Warnings)
	}
}

func TestRunReadFailureIsPerItem(t *testing.T) {
	touched := time.Now().UTC()
	broken := &domain.Item{
		ID: "/in/broken.txt", Path: "/in/broken.txt", Size: 4, Touched: touched,
		Load: func(context.Context) (*domain.Content, error) {
			return nil, errors.New("permission denied")
		},
	}
	src := &fakeSource{name: "localfs", items: []*domain.Item{
		broken, textItem("/in/ok.txt", "fine", touched),
	}}
	sub := &fakeSubmitter{}

	resp := run(t, src, sub, baseParams(), state.New())
	if resp.Status != runresp.StatusPartial {
		t.Fatalf("status = %s", resp.Status)
	}
	if resp.Stats.Submitted != 1 || resp.Stats.Skipped != 1 {
		t.Fatalf("stats: %+v", resp.Stats)
	}
	if len(resp.Errors) != 1 || !strings.Contains(resp.Errors[0], "read failed") {
		t.Fatalf("errors: %v", resp.Errors)
	}
}

func TestRunHonorsLimit(t *testing.T) {
	touched := time.Now().UTC()
	var items []*domain.Item
	for i := 0; i < 10; i++ {
		items = append(items, textItem(fmt.Sprintf("/in/%d.txt", i), fmt.Sprintf("body %d", i), touched))
	}
	sub := &fakeSubmitter{}

	p := baseParams()
	p.Limit = 3
	resp := run(t, &fakeSource{name: "localfs", items: items}, sub, p, state.New())
	if resp.Stats.Submitted != 3 {
		t.Fatalf("stats: %+v", resp.Stats)
	}
	if resp.Stats.Scanned >= 10 {
		t.Fatalf("limit did not stop enumeration early: %+v", resp.Stats)
	}
}

func TestRunCheckFailureIsHard(t *testing.T) {
	src := &fakeSource{name: "localfs", checkErr: errors.New("root missing")}
	e := &Engine{Sub: &fakeSubmitter{}}
	b := runresp.New("localfs.docs", "run-1", time.Now().UTC())
	if err := e.Run(context.Background(), src, baseParams(), state.New(), b); err == nil {
		t.Fatal("expected hard failure from source check")
	}
}

func TestRunDisposesAfterSubmit(t *testing.T) {
	touched := time.Now().UTC()
	src := &fakeSource{name: "localfs", items: []*domain.Item{
		textItem("/in/a.txt", "alpha", touched),
	}}
	sub := &fakeSubmitter{}

	run(t, src, sub, baseParams(), state.New())
	if len(src.disposed) != 1 || src.disposed[0] != "/in/a.txt" {
		t.Fatalf("disposed: %v", src.disposed)
	}
}

func TestRunBatchModeFoldsTouchedWindow(t *testing.T) {
	t1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	t3 := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{name: "localfs", items: []*domain.Item{
		textItem("/in/a.txt", "a", t2),
		textItem("/in/b.txt", "b", t1),
		textItem("/in/c.txt", "c", t3),
	}}
	sub := &fakeSubmitter{}

	p := baseParams()
	p.Batch = true
	p.BatchSize = 2
	resp := run(t, src, sub, p, state.New())

	if resp.Stats.Batches != 2 {
		t.Fatalf("batches = %d", resp.Stats.Batches)
	}
	if resp.Stats.EarliestTouched == nil || !resp.Stats.EarliestTouched.Equal(t1) {
		t.Fatalf("earliest = %v", resp.Stats.EarliestTouched)
	}
	if resp.Stats.LatestTouched == nil || !resp.Stats.LatestTouched.Equal(t2) {
		t.Fatalf("latest = %v", resp.Stats.LatestTouched)
	}
}
