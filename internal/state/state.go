// Package state implements the persistent per-collector dedup ledger, a
// versioned JSON file keyed by content hash. One run owns a ledger
// exclusively for its duration; the atomic save discipline keeps the on-disk
// file loadable across crashes and restarts
package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"time"

	perr "github.com/ChrisPatten/haven-sub004/internal/platform/errors"
)

// Version is the current ledger file format version
const Version = 1

// Entry tracks one content hash across runs
type Entry struct {
	Path      string    `json:"path"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Size      int64     `json:"size"`
	Tags      []string  `json:"tags,omitempty"`
}

type fileShape struct {
	Version int              `json:"version"`
	ByHash  map[string]Entry `json:"by_hash"`
}

// State is the in-memory ledger. Not safe for concurrent use; the engine
// serializes all mutation onto the run owner
type State struct {
	byHash map[string]Entry
	dirty  bool
}

// New returns an empty ledger
func New() *State {
	return &State{byHash: map[string]Entry{}}
}

// Load reads the ledger at path. A missing file yields an empty ledger; a
// file that exists but cannot be decoded is a hard error, never silently
// dropped, because losing the ledger causes re-submission storms
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, perr.Wrapf(err, perr.ErrorCodeState, "read state file %q", path)
	}

	var f fileShape
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeState, "state file %q is corrupt", path)
	}
	if f.Version > Version {
		return nil, perr.Statef("state file %q has version %d, newer than supported %d", path, f.Version, Version)
	}
	if f.ByHash == nil {
		f.ByHash = map[string]Entry{}
	}
	return &State{byHash: f.ByHash}, nil
}

// Lookup returns the entry for hash, if any
func (s *State) Lookup(hash string) (Entry, bool) {
	e, ok := s.byHash[hash]
	return e, ok
}

// Len returns the number of tracked hashes
func (s *State) Len() int { return len(s.byHash) }

// Dirty reports whether the ledger has unsaved changes
func (s *State) Dirty() bool { return s.dirty }

// Upsert records a new sighting of hash, preserving FirstSeen on update
func (s *State) Upsert(hash string, e Entry) {
	if prev, ok := s.byHash[hash]; ok && !prev.FirstSeen.IsZero() {
		e.FirstSeen = prev.FirstSeen
	} else if e.FirstSeen.IsZero() {
		e.FirstSeen = e.LastSeen
	}
	s.byHash[hash] = e
	s.dirty = true
}

// Touch updates last-seen bookkeeping for a known hash without changing its
// submitted identity; tags are merged, not replaced
func (s *State) Touch(hash, path string, seenAt time.Time, tags []string) bool {
	e, ok := s.byHash[hash]
	if !ok {
		return false
	}
	e.LastSeen = seenAt
	if path != "" {
		e.Path = path
	}
	for _, t := range tags {
		if !slices.Contains(e.Tags, t) {
			e.Tags = append(e.Tags, t)
		}
	}
	s.byHash[hash] = e
	s.dirty = true
	return true
}

// Save atomically writes the ledger to path when dirty. Write-temp-then-rename
// keeps a valid prior version on disk if the process dies mid-write. A save
// failure must surface as a run-level fatal error
func (s *State) Save(path string) error {
	if !s.dirty {
		return nil
	}

	payload, err := json.MarshalIndent(fileShape{Version: Version, ByHash: s.byHash}, "", "  ")
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeState, "encode state")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeState, "create state dir %q", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeState, "create temp state file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return perr.Wrapf(err, perr.ErrorCodeState, "write temp state file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return perr.Wrapf(err, perr.ErrorCodeState, "sync temp state file")
	}
	if err := tmp.Close(); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeState, "close temp state file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeState, "replace state file %q", path)
	}

	s.dirty = false
	return nil
}
