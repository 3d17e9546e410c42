// Package imapmail enumerates mailbox messages over IMAP. The Mailbox port
// keeps the wire protocol swappable; message bodies parse with net/mail and
// attachments surface as separate file items when the scope asks for them
package imapmail

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/ChrisPatten/haven-sub004/internal/core/runreq"
	perr "github.com/ChrisPatten/haven-sub004/internal/platform/errors"
	"github.com/ChrisPatten/haven-sub004/internal/services/collector/domain"
)

// Mailbox is the minimal IMAP surface the source needs
type Mailbox interface {
	// Folders lists selectable mailboxes
	Folders(ctx context.Context) ([]string, error)

	// Search returns UIDs of messages in folder received on or after since
	Search(ctx context.Context, folder string, since time.Time) ([]uint32, error)

	// Fetch returns the raw RFC 5322 message for one UID
	Fetch(ctx context.Context, folder string, uid uint32) ([]byte, error)

	Close() error
}

// DialFunc opens a mailbox session for the given scope
type DialFunc func(ctx context.Context, scope *runreq.ImapScope) (Mailbox, error)

// Source walks one or more IMAP folders
type Source struct {
	scope *runreq.ImapScope
	dial  DialFunc

	box Mailbox
}

// New builds a mailbox source; dial defaults to the TLS IMAP client
func New(scope *runreq.ImapScope, dial DialFunc) *Source {
	if dial == nil {
		dial = dialTLS
	}
	return &Source{scope: scope, dial: dial}
}

// Name implements domain.Source
func (s *Source) Name() string { return "imapmail" }

// Check opens the session and keeps it for enumeration. Connection or login
// failure is a hard run failure
func (s *Source) Check(ctx context.Context, _ domain.Params) error {
	if s.scope == nil {
		return perr.InvalidArgf("imapmail: scope with host and username is required")
	}
	box, err := s.dial(ctx, s.scope)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "imapmail: connect %s", s.scope.Host)
	}
	s.box = box
	return nil
}

type msgRef struct {
	folder string
	uid    uint32
}

// Items searches each configured folder (all folders when the scope names
// none) and yields one item per message, fetched lazily on Next
func (s *Source) Items(ctx context.Context, p domain.Params) (domain.ItemIter, error) {
	if s.box == nil {
		return nil, perr.Statef("imapmail: Items before Check")
	}

	folders := s.scope.Folders
	if len(folders) == 0 {
		all, err := s.box.Folders(ctx)
		if err != nil {
			s.closeBox()
			return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "imapmail: list folders")
		}
		folders = all
	}

	since := time.Time{}
	if p.Since != nil {
		since = *p.Since
	}

	var refs []msgRef
	for _, folder := range folders {
		uids, err := s.box.Search(ctx, folder, since)
		if err != nil {
			s.closeBox()
			return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "imapmail: search %s", folder)
		}
		for _, uid := range uids {
			refs = append(refs, msgRef{folder: folder, uid: uid})
		}
	}

	// UIDs ascend with arrival order inside a folder
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].folder != refs[j].folder {
			return refs[i].folder < refs[j].folder
		}
		if p.Order == runreq.OrderDesc {
			return refs[i].uid > refs[j].uid
		}
		return refs[i].uid < refs[j].uid
	})

	return &msgIter{src: s, params: p, refs: refs}, nil
}

// closeBox releases the session when enumeration cannot start; the iterator
// owns the session otherwise
func (s *Source) closeBox() {
	if s.box != nil {
		_ = s.box.Close()
		s.box = nil
	}
}

type msgIter struct {
	src    *Source
	params domain.Params
	refs   []msgRef
	pos    int

	// queue holds attachment items spilled from the last fetched message
	queue []*domain.Item
}

// Next yields the next in-window message, draining queued attachments first.
// Out-of-window messages advance the loop rather than recurse so a narrow
// window over a large mailbox stays flat on the stack
func (it *msgIter) Next(ctx context.Context) (*domain.Item, error) {
	for {
		if len(it.queue) > 0 {
			item := it.queue[0]
			it.queue = it.queue[1:]
			return item, nil
		}
		if it.pos >= len(it.refs) {
			return nil, io.EOF
		}
		ref := it.refs[it.pos]
		it.pos++

		id := fmt.Sprintf("%s/%d", ref.folder, ref.uid)
		raw, err := it.src.box.Fetch(ctx, ref.folder, ref.uid)
		if err != nil {
			// surfaced through Load so a single bad message stays per-item
			return &domain.Item{
				ID:   id,
				Path: id,
				Load: func(context.Context) (*domain.Content, error) { return nil, err },
			}, nil
		}

		msg, err := parseMessage(raw)
		if err != nil {
			return &domain.Item{
				ID:      id,
				Path:    id,
				Size:    int64(len(raw)),
				Touched: time.Now().UTC(),
				Load:    func(context.Context) (*domain.Content, error) { return nil, err },
			}, nil
		}

		// SINCE has day granularity; re-check the resolved window exactly
		if !it.params.InWindow(msg.date) {
			continue
		}

		return it.emit(ref, raw, msg), nil
	}
}

// emit builds the message item and queues attachment items when the scope
// asks for them
func (it *msgIter) emit(ref msgRef, raw []byte, msg *parsedMessage) *domain.Item {
	id := fmt.Sprintf("%s/%d", ref.folder, ref.uid)
	if it.src.scope.IncludeAttachments {
		for i, att := range msg.attachments {
			att := att
			attID := fmt.Sprintf("%s/att/%d", id, i)
			it.queue = append(it.queue, &domain.Item{
				ID:      attID,
				Path:    attID + "/" + att.filename,
				Size:    int64(len(att.data)),
				Touched: msg.date,
				Tags:    []string{"attachment"},
				Load: func(context.Context) (*domain.Content, error) {
					return &domain.Content{
						Bytes:    att.data,
						Filename: att.filename,
						MimeType: att.mimeType,
						Metadata: map[string]any{"folder": ref.folder, "message_uid": ref.uid},
					}, nil
				},
			})
		}
	}

	content := &domain.Content{
		Text:       msg.text,
		Title:      msg.subject,
		OccurredAt: &msg.date,
		Metadata: map[string]any{
			"folder":     ref.folder,
			"from":       msg.from,
			"to":         msg.to,
			"message_id": msg.messageID,
		},
	}
	return &domain.Item{
		ID:      id,
		Path:    id,
		Size:    int64(len(raw)),
		Touched: msg.date,
		Load:    func(context.Context) (*domain.Content, error) { return content, nil },
	}
}

func (it *msgIter) Close() error {
	if it.src.box == nil {
		return nil
	}
	err := it.src.box.Close()
	it.src.box = nil
	return err
}
