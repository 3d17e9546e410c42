package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	perr "github.com/ChrisPatten/haven-sub004/internal/platform/errors"
	"github.com/ChrisPatten/haven-sub004/internal/platform/testkit"
)

func ts(h int) time.Time { return time.Date(2024, 6, 1, h, 0, 0, 0, time.UTC) }

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Len() != 0 || s.Dirty() {
		t.Fatalf("expected clean empty state, got len=%d dirty=%v", s.Len(), s.Dirty())
	}
}

func TestLoadCorruptFileIsHardError(t *testing.T) {
	p := testkit.WriteFile(t, t.TempDir(), "state.json", []byte(`{"version": 1, "by_hash": {`))
	_, err := Load(p)
	if err == nil {
		t.Fatal("corrupt file must fail loudly")
	}
	if !perr.IsCode(err, perr.ErrorCodeState) {
		t.Fatalf("expected state error code, got %v", perr.CodeOf(err))
	}
}

func TestLoadNewerVersionRejected(t *testing.T) {
	p := testkit.WriteFile(t, t.TempDir(), "state.json", []byte(`{"version": 99, "by_hash": {}}`))
	if _, err := Load(p); err == nil {
		t.Fatal("newer version must be rejected")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "localfs.json")

	s := New()
	s.Upsert("abc123", Entry{Path: "/in/a.txt", LastSeen: ts(1), Size: 42, Tags: []string{"localfs"}})
	if !s.Dirty() {
		t.Fatal("upsert should mark dirty")
	}
	if err := s.Save(p); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if s.Dirty() {
		t.Fatal("save should clear dirty")
	}

	got, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	e, ok := got.Lookup("abc123")
	if !ok {
		t.Fatal("entry lost in round trip")
	}
	if e.Path != "/in/a.txt" || e.Size != 42 || !e.FirstSeen.Equal(ts(1)) {
		t.Fatalf("entry mangled: %+v", e)
	}
}

func TestUpsertPreservesFirstSeen(t *testing.T) {
	s := New()
	s.Upsert("h", Entry{Path: "/a", FirstSeen: ts(1), LastSeen: ts(1)})
	s.Upsert("h", Entry{Path: "/b", LastSeen: ts(5)})

	e, _ := s.Lookup("h")
	if !e.FirstSeen.Equal(ts(1)) {
		t.Fatalf("first_seen rewritten to %v", e.FirstSeen)
	}
	if !e.LastSeen.Equal(ts(5)) || e.Path != "/b" {
		t.Fatalf("last sighting not recorded: %+v", e)
	}
}

func TestTouchUpdatesWithoutCreating(t *testing.T) {
	s := New()
	if s.Touch("ghost", "/x", ts(1), nil) {
		t.Fatal("touch of unknown hash should report false")
	}

	s.Upsert("h", Entry{Path: "/a", FirstSeen: ts(1), LastSeen: ts(1), Tags: []string{"one"}})
	if !s.Touch("h", "/moved", ts(3), []string{"one", "two"}) {
		t.Fatal("touch of known hash should report true")
	}
	e, _ := s.Lookup("h")
	if e.Path != "/moved" || !e.LastSeen.Equal(ts(3)) {
		t.Fatalf("touch did not update sighting: %+v", e)
	}
	if len(e.Tags) != 2 {
		t.Fatalf("tags should merge without duplicates: %v", e.Tags)
	}
	if !e.FirstSeen.Equal(ts(1)) {
		t.Fatal("touch must not move first_seen")
	}
}

func TestSaveSkipsWhenClean(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "state.json")

	s := New()
	if err := s.Save(p); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Fatal("clean state should not touch disk")
	}
}

func TestSaveAtomicityLeavesNoTempDebris(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "state.json")

	s := New()
	s.Upsert("h1", Entry{Path: "/a", LastSeen: ts(1)})
	if err := s.Save(p); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// a second save over the existing file must also leave exactly one file
	s.Upsert("h2", Entry{Path: "/b", LastSeen: ts(2)})
	if err := s.Save(p); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "state.json" {
		t.Fatalf("expected only state.json, found %v", entries)
	}

	got, err := Load(p)
	if err != nil {
		t.Fatalf("Load after rewrite: %v", err)
	}
	if got.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", got.Len())
	}
}

func TestSaveFailureSurfaces(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions are advisory for root")
	}
	dir := t.TempDir()
	if err := os.Chmod(dir, 0o500); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	s := New()
	s.Upsert("h", Entry{Path: "/a", LastSeen: ts(1)})
	err := s.Save(filepath.Join(dir, "state.json"))
	if err == nil {
		t.Fatal("save into unwritable dir must fail")
	}
	if !perr.IsCode(err, perr.ErrorCodeState) {
		t.Fatalf("expected state error code, got %v", perr.CodeOf(err))
	}
}
