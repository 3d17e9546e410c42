// Package localfs enumerates files under configured watch roots. Hidden
// entries are surfaced flagged rather than silently dropped so the run stats
// account for them; directories starting with a dot are pruned entirely
package localfs

import (
	"context"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ChrisPatten/haven-sub004/internal/core/runreq"
	perr "github.com/ChrisPatten/haven-sub004/internal/platform/errors"
	"github.com/ChrisPatten/haven-sub004/internal/services/collector/domain"
)

// mime prefixes submitted as text documents; everything else uploads as bytes
var textualTypes = map[string]bool{
	"application/json":       true,
	"application/xml":        true,
	"application/x-yaml":     true,
	"application/javascript": true,
}

// Source walks one or more filesystem roots
type Source struct {
	scope *runreq.LocalfsScope
}

// New builds a filesystem source from its run scope
func New(scope *runreq.LocalfsScope) *Source {
	return &Source{scope: scope}
}

// Name implements domain.Source
func (s *Source) Name() string { return "localfs" }

// Check verifies every watch root exists and is a directory
func (s *Source) Check(_ context.Context, _ domain.Params) error {
	if s.scope == nil || len(s.scope.Paths) == 0 {
		return perr.InvalidArgf("localfs: scope with at least one path is required")
	}
	for _, root := range s.scope.Paths {
		info, err := os.Stat(root)
		if err != nil {
			return perr.Wrapf(err, perr.ErrorCodeNotFound, "localfs: root %s", root)
		}
		if !info.IsDir() {
			return perr.InvalidArgf("localfs: root %s is not a directory", root)
		}
	}
	if s.scope.ArchiveDir != "" {
		if err := os.MkdirAll(s.scope.ArchiveDir, 0o755); err != nil {
			return perr.Wrapf(err, perr.ErrorCodeState, "localfs: archive dir %s", s.scope.ArchiveDir)
		}
	}
	return nil
}

// Items walks the roots, applies glob preselection and the resolved window,
// and yields candidates ordered by modification time
func (s *Source) Items(ctx context.Context, p domain.Params) (domain.ItemIter, error) {
	var items []*domain.Item
	for _, root := range s.scope.Paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		collected, err := s.walkRoot(root, p)
		if err != nil {
			return nil, err
		}
		items = append(items, collected...)
	}

	sort.Slice(items, func(i, j int) bool {
		if p.Order == runreq.OrderDesc {
			return items[i].Touched.After(items[j].Touched)
		}
		return items[i].Touched.Before(items[j].Touched)
	})
	return &sliceIter{items: items}, nil
}

func (s *Source) walkRoot(root string, p domain.Params) ([]*domain.Item, error) {
	var items []*domain.Item
	err := filepath.WalkDir(root, func(fpath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		dotted := strings.HasPrefix(name, ".") && fpath != root

		if d.IsDir() {
			if dotted {
				return fs.SkipDir
			}
			return nil
		}

		symlink := d.Type()&fs.ModeSymlink != 0
		if symlink && s.scope.FollowSymlinks {
			info, serr := os.Stat(fpath)
			if serr != nil || !info.Mode().IsRegular() {
				return nil
			}
			items = append(items, s.item(fpath, info.Size(), info.ModTime(), dotted, false, p))
			return nil
		}
		if symlink {
			// surfaced so the run counts it as scanned and skipped
			items = append(items, s.item(fpath, 0, time.Time{}, dotted, true, p))
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, ierr := d.Info()
		if ierr != nil {
			return ierr
		}
		items = append(items, s.item(fpath, info.Size(), info.ModTime(), dotted, false, p))
		return nil
	})
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeState, "localfs: walk %s", root)
	}

	out := items[:0]
	for _, it := range items {
		if it.Hidden || it.Symlink {
			out = append(out, it)
			continue
		}
		if !s.globMatch(it.Path) {
			continue
		}
		if !p.InWindow(it.Touched) {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func (s *Source) item(fpath string, size int64, touched time.Time, hidden, symlink bool, _ domain.Params) *domain.Item {
	return &domain.Item{
		ID:      fpath,
		Path:    fpath,
		Size:    size,
		Touched: touched.UTC(),
		Hidden:  hidden,
		Symlink: symlink,
		Load:    loadFile(fpath),
	}
}

// globMatch preselects on base name; no globs means everything qualifies
func (s *Source) globMatch(fpath string) bool {
	if len(s.scope.Globs) == 0 {
		return true
	}
	base := strings.ToLower(filepath.Base(fpath))
	for _, g := range s.scope.Globs {
		if ok, err := path.Match(strings.ToLower(g), base); err == nil && ok {
			return true
		}
	}
	return false
}

func loadFile(fpath string) func(context.Context) (*domain.Content, error) {
	return func(context.Context) (*domain.Content, error) {
		data, err := os.ReadFile(fpath)
		if err != nil {
			return nil, err
		}
		base := filepath.Base(fpath)
		mt := mime.TypeByExtension(filepath.Ext(fpath))
		if mt == "" {
			mt = "application/octet-stream"
		}
		if mtype, _, merr := mime.ParseMediaType(mt); merr == nil {
			mt = mtype
		}

		if strings.HasPrefix(mt, "text/") || textualTypes[mt] {
			return &domain.Content{
				Text:     string(data),
				Title:    base,
				MimeType: mt,
				Metadata: map[string]any{"path": fpath},
			}, nil
		}
		return &domain.Content{
			Bytes:    data,
			Filename: base,
			MimeType: mt,
			Metadata: map[string]any{"path": fpath},
		}, nil
	}
}

type sliceIter struct {
	items []*domain.Item
	pos   int
}

func (it *sliceIter) Next(ctx context.Context) (*domain.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.pos >= len(it.items) {
		return nil, io.EOF
	}
	item := it.items[it.pos]
	it.pos++
	return item, nil
}

func (it *sliceIter) Close() error { return nil }

// Dispose archives or deletes the source file after a real submission,
// per scope configuration. A scope with neither option is a no-op
func (s *Source) Dispose(_ context.Context, item *domain.Item) error {
	switch {
	case s.scope.ArchiveDir != "":
		dst := filepath.Join(s.scope.ArchiveDir, filepath.Base(item.Path))
		return os.Rename(item.Path, dst)
	case s.scope.DeleteAfterSubmit:
		return os.Remove(item.Path)
	}
	return nil
}
