package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ChrisPatten/haven-sub004/internal/adapters/ingest"
	"github.com/ChrisPatten/haven-sub004/internal/core/runreq"
	"github.com/ChrisPatten/haven-sub004/internal/core/runresp"
	perr "github.com/ChrisPatten/haven-sub004/internal/platform/errors"
	cdomain "github.com/ChrisPatten/haven-sub004/internal/services/collector/domain"
	"github.com/ChrisPatten/haven-sub004/internal/services/runs/domain"
)

func ingestStub(t *testing.T, calls *int, mu *sync.Mutex) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		*calls++
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(ingest.SubmissionResponse{SubmissionID: "s-1", Status: "accepted"})
	}))
}

func newService(t *testing.T, ingestURL string) *Service {
	t.Helper()
	return New(
		Config{StateDir: t.TempDir()},
		domain.NewRegistry(),
		ingest.New(ingest.Config{BaseURL: ingestURL}),
		nil,
		nil,
	)
}

func localfsBody(t *testing.T, dir, mode string) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"mode":  mode,
		"scope": map[string]any{"paths": []string{dir}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func seedDir(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		p := filepath.Join(dir, fmt.Sprintf("doc-%d.txt", i))
		if err := os.WriteFile(p, []byte(fmt.Sprintf("body %d", i)), 0o644); err != nil {
			t.Fatal(err)
		}
		mod := time.Now().Add(-time.Duration(i+1) * time.Hour)
		if err := os.Chtimes(p, mod, mod); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestRunEndToEndThenDedup(t *testing.T) {
	var (
		calls int
		mu    sync.Mutex
	)
	srv := ingestStub(t, &calls, &mu)
	defer srv.Close()

	s := newService(t, srv.URL)
	dir := seedDir(t, 3)

	env, err := s.Run(context.Background(), "localfs", localfsBody(t, dir, "real"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if env.Status != runresp.StatusOK || env.Stats.Submitted != 3 {
		t.Fatalf("first envelope: %+v", env)
	}
	if env.RunID == "" || env.Collector != "localfs" {
		t.Fatalf("envelope identity: %+v", env)
	}

	statePath := filepath.Join(s.cfg.StateDir, "localfs.state.json")
	if _, err := os.Stat(statePath); err != nil {
		t.Fatalf("state ledger not written: %v", err)
	}

	env2, err := s.Run(context.Background(), "localfs", localfsBody(t, dir, "real"))
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if env2.Stats.Submitted != 0 || env2.Stats.Skipped != 3 {
		t.Fatalf("second envelope: %+v", env2.Stats)
	}
	if calls != 3 {
		t.Fatalf("ingest calls = %d, want 3", calls)
	}
}

func TestRunDryRunWritesNoState(t *testing.T) {
	var (
		calls int
		mu    sync.Mutex
	)
	srv := ingestStub(t, &calls, &mu)
	defer srv.Close()

	s := newService(t, srv.URL)
	dir := seedDir(t, 2)

	env, err := s.Run(context.Background(), "localfs", localfsBody(t, dir, "simulate"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if env.Stats.Submitted != 2 {
		t.Fatalf("envelope: %+v", env.Stats)
	}
	if calls != 0 {
		t.Fatalf("dry run hit ingest %d times", calls)
	}
	if _, err := os.Stat(filepath.Join(s.cfg.StateDir, "localfs.state.json")); !os.IsNotExist(err) {
		t.Fatal("dry run wrote the state ledger")
	}
}

func TestRunUnknownCollector(t *testing.T) {
	s := newService(t, "http://127.0.0.1:0")
	_, err := s.Run(context.Background(), "telegraph", []byte(`{"mode":"real"}`))
	if err == nil {
		t.Fatal("expected unknown collector error")
	}
	if perr.CodeOf(err) != perr.ErrorCodeNotFound {
		t.Fatalf("error = %v", err)
	}
}

func TestRunValidationErrorIsNotAnEnvelope(t *testing.T) {
	s := newService(t, "http://127.0.0.1:0")
	env, err := s.Run(context.Background(), "localfs", []byte(`{"mode":"real","batch_size":0}`))
	if err == nil {
		t.Fatalf("expected validation error, got envelope %+v", env)
	}
}

func TestRunMissingRootFailsAsEnvelope(t *testing.T) {
	s := newService(t, "http://127.0.0.1:0")
	missing := filepath.Join(t.TempDir(), "gone")

	env, err := s.Run(context.Background(), "localfs", localfsBody(t, missing, "real"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if env.Status != runresp.StatusError || len(env.Errors) == 0 {
		t.Fatalf("envelope: %+v", env)
	}
}

func TestRunConflictWhileActive(t *testing.T) {
	s := newService(t, "http://127.0.0.1:0")
	if !s.acquire("localfs") {
		t.Fatal("acquire failed on idle collector")
	}
	defer s.release("localfs")

	_, err := s.Run(context.Background(), "localfs", localfsBody(t, t.TempDir(), "real"))
	if err == nil {
		t.Fatal("expected conflict error")
	}
	if perr.CodeOf(err) != perr.ErrorCodeConflict {
		t.Fatalf("error = %v", err)
	}
}

func TestHistoryDisabledWithoutStore(t *testing.T) {
	s := newService(t, "http://127.0.0.1:0")
	if _, err := s.History(context.Background(), "", 10); err == nil {
		t.Fatal("expected unavailable error")
	}
	if _, err := s.HistoryGet(context.Background(), "r-1"); err == nil {
		t.Fatal("expected unavailable error")
	}
}

// haltSource yields its items, then the iterator fails hard, as a broken
// enumeration mid-run would
type haltSource struct {
	items []*cdomain.Item
	err   error
}

func (h *haltSource) Name() string { return "halt" }

func (h *haltSource) Check(context.Context, cdomain.Params) error { return nil }

func (h *haltSource) Items(context.Context, cdomain.Params) (cdomain.ItemIter, error) {
	return &haltIter{items: h.items, err: h.err}, nil
}

type haltIter struct {
	items []*cdomain.Item
	err   error
	pos   int
}

func (it *haltIter) Next(context.Context) (*cdomain.Item, error) {
	if it.pos < len(it.items) {
		it.pos++
		return it.items[it.pos-1], nil
	}
	return nil, it.err
}

func (it *haltIter) Close() error { return nil }

func haltItem(id, text string) *cdomain.Item {
	return &cdomain.Item{
		ID:      id,
		Path:    id,
		Size:    int64(len(text)),
		Touched: time.Now().UTC(),
		Load: func(context.Context) (*cdomain.Content, error) {
			return &cdomain.Content{Text: text}, nil
		},
	}
}

func TestRunHardErrorPersistsSubmittedWork(t *testing.T) {
	var (
		calls int
		mu    sync.Mutex
	)
	srv := ingestStub(t, &calls, &mu)
	defer srv.Close()

	s := newService(t, srv.URL)
	s.srcFn = func(runreq.Family, *runreq.RunRequest, *cdomain.Params) (cdomain.Source, error) {
		return &haltSource{
			items: []*cdomain.Item{haltItem("note-1", "meeting notes")},
			err:   errors.New("folder listing lost mid-run"),
		}, nil
	}

	env, err := s.Run(context.Background(), "localfs", localfsBody(t, t.TempDir(), "real"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if env.Status != runresp.StatusError || env.Stats.Submitted != 1 {
		t.Fatalf("first envelope: %+v", env)
	}

	// the submitted item must be in the ledger despite the hard failure
	if _, err := os.Stat(filepath.Join(s.cfg.StateDir, "localfs.state.json")); err != nil {
		t.Fatalf("ledger not persisted after hard error: %v", err)
	}

	env2, err := s.Run(context.Background(), "localfs", localfsBody(t, t.TempDir(), "real"))
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if env2.Stats.Submitted != 0 || env2.Stats.Skipped != 1 {
		t.Fatalf("second envelope re-submitted completed work: %+v", env2.Stats)
	}
	if calls != 1 {
		t.Fatalf("ingest calls = %d, want 1", calls)
	}
}

func TestScopedCollectorIDKeepsSeparateLedger(t *testing.T) {
	var (
		calls int
		mu    sync.Mutex
	)
	srv := ingestStub(t, &calls, &mu)
	defer srv.Close()

	s := newService(t, srv.URL)
	dir := seedDir(t, 1)

	if _, err := s.Run(context.Background(), "localfs.docs", localfsBody(t, dir, "real")); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.cfg.StateDir, "localfs.docs.state.json")); err != nil {
		t.Fatalf("scoped ledger missing: %v", err)
	}

	// same content under a different collector id submits again
	env, err := s.Run(context.Background(), "localfs", localfsBody(t, dir, "real"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if env.Stats.Submitted != 1 {
		t.Fatalf("cross-collector dedup leaked: %+v", env.Stats)
	}
}
