// Package messages reads chat exports: one JSON object per line, each a
// single message with optional attachment references resolved relative to
// the export file
package messages

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ChrisPatten/haven-sub004/internal/core/runreq"
	perr "github.com/ChrisPatten/haven-sub004/internal/platform/errors"
	"github.com/ChrisPatten/haven-sub004/internal/services/collector/domain"
)

// scanner buffer for long message lines
const maxLineBytes = 4 << 20

// exportLine is one message row in the export
type exportLine struct {
	ID          string           `json:"id"`
	ChatID      string           `json:"chat_id"`
	Sender      string           `json:"sender"`
	SentAt      time.Time        `json:"sent_at"`
	Text        string           `json:"text"`
	Attachments []exportAttached `json:"attachments"`
}

type exportAttached struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Path     string `json:"path"`
}

// Source reads one chat export file
type Source struct {
	scope *runreq.MessagesScope
}

// New builds a chat-export source from its run scope
func New(scope *runreq.MessagesScope) *Source {
	return &Source{scope: scope}
}

// Name implements domain.Source
func (s *Source) Name() string { return "messages" }

// Check verifies the export file exists and is readable
func (s *Source) Check(_ context.Context, _ domain.Params) error {
	if s.scope == nil || s.scope.ExportPath == "" {
		return perr.InvalidArgf("messages: scope with export_path is required")
	}
	info, err := os.Stat(s.scope.ExportPath)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeNotFound, "messages: export %s", s.scope.ExportPath)
	}
	if info.IsDir() {
		return perr.InvalidArgf("messages: export %s is a directory", s.scope.ExportPath)
	}
	return nil
}

// Items scans the export line by line, keeps messages inside the window and
// the chat_ids restriction, and orders them by sent_at. Unparsable lines
// surface as per-item read failures so one bad row never kills the run
func (s *Source) Items(ctx context.Context, p domain.Params) (domain.ItemIter, error) {
	f, err := os.Open(s.scope.ExportPath)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeNotFound, "messages: open export")
	}
	defer func() { _ = f.Close() }()

	wantChat := map[string]bool{}
	for _, id := range s.scope.ChatIDs {
		wantChat[id] = true
	}
	baseDir := filepath.Dir(s.scope.ExportPath)

	var items []*domain.Item
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64<<10), maxLineBytes)
	for lineNo := 1; sc.Scan(); lineNo++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}

		var line exportLine
		if uerr := json.Unmarshal([]byte(raw), &line); uerr != nil {
			items = append(items, brokenLine(s.scope.ExportPath, lineNo, uerr))
			continue
		}
		if len(wantChat) > 0 && !wantChat[line.ChatID] {
			continue
		}
		if !p.InWindow(line.SentAt) {
			continue
		}

		items = append(items, s.messageItem(line))
		if s.scope.IncludeAttachments {
			for _, att := range line.Attachments {
				items = append(items, s.attachmentItem(line, att, baseDir))
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeState, "messages: scan export")
	}

	sort.SliceStable(items, func(i, j int) bool {
		if p.Order == runreq.OrderDesc {
			return items[i].Touched.After(items[j].Touched)
		}
		return items[i].Touched.Before(items[j].Touched)
	})
	return &sliceIter{items: items}, nil
}

func (s *Source) messageItem(line exportLine) *domain.Item {
	sentAt := line.SentAt
	content := &domain.Content{
		Text:       line.Text,
		Title:      fmt.Sprintf("%s: %s", line.ChatID, line.Sender),
		OccurredAt: &sentAt,
		Metadata: map[string]any{
			"chat_id": line.ChatID,
			"sender":  line.Sender,
		},
	}
	id := line.ChatID + "/" + line.ID
	return &domain.Item{
		ID:      id,
		Path:    id,
		Size:    int64(len(line.Text)),
		Touched: line.SentAt,
		Load:    func(context.Context) (*domain.Content, error) { return content, nil },
	}
}

func (s *Source) attachmentItem(line exportLine, att exportAttached, baseDir string) *domain.Item {
	fpath := att.Path
	if !filepath.IsAbs(fpath) {
		fpath = filepath.Join(baseDir, fpath)
	}
	id := line.ChatID + "/" + line.ID + "/" + att.Filename

	var size int64
	if info, err := os.Stat(fpath); err == nil {
		size = info.Size()
	}
	return &domain.Item{
		ID:      id,
		Path:    fpath,
		Size:    size,
		Touched: line.SentAt,
		Tags:    []string{"attachment"},
		Load: func(context.Context) (*domain.Content, error) {
			data, err := os.ReadFile(fpath)
			if err != nil {
				return nil, err
			}
			return &domain.Content{
				Bytes:    data,
				Filename: att.Filename,
				MimeType: att.MimeType,
				Metadata: map[string]any{"chat_id": line.ChatID, "message_id": line.ID},
			}, nil
		},
	}
}

func brokenLine(export string, lineNo int, cause error) *domain.Item {
	id := fmt.Sprintf("%s:%d", export, lineNo)
	return &domain.Item{
		ID:      id,
		Path:    id,
		Touched: time.Now().UTC(),
		Load: func(context.Context) (*domain.Content, error) {
			return nil, fmt.Errorf("malformed export line: %w", cause)
		},
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
