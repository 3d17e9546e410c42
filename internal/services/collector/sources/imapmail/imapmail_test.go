package imapmail

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/ChrisPatten/haven-sub004/internal/core/runreq"
	"github.com/ChrisPatten/haven-sub004/internal/services/collector/domain"
)

const plainMessage = "From: Alice <alice@example.com>\r\n" +
	"To: bob@example.com\r\n" +
	"Subject: lunch plans\r\n" +
	"Message-Id: <m1@example.com>\r\n" +
	"Date: Mon, 02 Mar 2026 10:00:00 +0000\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"tacos at noon?\r\n"

const multipartMessage = "From: Alice <alice@example.com>\r\n" +
	"Subject: report attached\r\n" +
	"Date: Tue, 03 Mar 2026 09:00:00 +0000\r\n" +
	"Content-Type: multipart/mixed; boundary=xyz\r\n" +
	"\r\n" +
	"--xyz\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"see attachment\r\n" +
	"--xyz\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"q1.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0=\r\n" +
	"--xyz--\r\n"

type fakeBox struct {
	folders   map[string]map[uint32]string
	fetchErr  map[uint32]error
	searchErr error
	closed    bool
}

func (f *fakeBox) Folders(context.Context) ([]string, error) {
	var out []string
	for name := range f.folders {
		out = append(out, name)
	}
	return out, nil
}

func (f *fakeBox) Search(_ context.Context, folder string, _ time.Time) ([]uint32, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var uids []uint32
	for uid := range f.folders[folder] {
		uids = append(uids, uid)
	}
	return uids, nil
}

func (f *fakeBox) Fetch(_ context.Context, folder string, uid uint32) ([]byte, error) {
	if err := f.fetchErr[uid]; err != nil {
		return nil, err
	}
	return []byte(f.folders[folder][uid]), nil
}

func (f *fakeBox) Close() error {
	f.closed = true
	return nil
}

func newSource(t *testing.T, box *fakeBox, scope *runreq.ImapScope) *Source {
	t.Helper()
	src := New(scope, func(context.Context, *runreq.ImapScope) (Mailbox, error) {
		return box, nil
	})
	if err := src.Check(context.Background(), domain.Params{}); err != nil {
		t.Fatalf("Check: %v", err)
	}
	return src
}

func drainAll(t *testing.T, src *Source, p domain.Params) []*domain.Item {
	t.Helper()
	iter, err := src.Items(context.Background(), p)
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	defer iter.Close()

	var out []*domain.Item
	for {
		item, err := iter.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, item)
	}
	return out
}

func TestParsePlainMessage(t *testing.T) {
	msg, err := parseMessage([]byte(plainMessage))
	if err != nil {
		t.Fatalf("parseMessage: %v", err)
	}
	if msg.subject != "lunch plans" {
		t.Errorf("subject = %q", msg.subject)
	}
	if !strings.Contains(msg.text, "tacos at noon?") {
		t.Errorf("text = %q", msg.text)
	}
	if msg.messageID != "m1@example.com" {
		t.Errorf("message id = %q", msg.messageID)
	}
	want := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	if !msg.date.Equal(want) {
		t.Errorf("date = %v", msg.date)
	}
}

func TestParseMultipartSplitsAttachment(t *testing.T) {
	msg, err := parseMessage([]byte(multipartMessage))
	if err != nil {
		t.Fatalf("parseMessage: %v", err)
	}
	if !strings.Contains(msg.text, "see attachment") {
		t.Errorf("text = %q", msg.text)
	}
	if len(msg.attachments) != 1 {
		t.Fatalf("attachments = %d", len(msg.attachments))
	}
	att := msg.attachments[0]
	if att.filename != "q1.pdf" || att.mimeType != "application/pdf" {
		t.Errorf("attachment meta: %+v", att)
	}
	if string(att.data) != "%PDF-" {
		t.Errorf("attachment data = %q", att.data)
	}
}

func TestItemsEmitsMessagesAndAttachments(t *testing.T) {
	box := &fakeBox{folders: map[string]map[uint32]string{
		"INBOX": {1: plainMessage, 2: multipartMessage},
	}}
	scope := &runreq.ImapScope{Host: "mail.example.com", Username: "alice", IncludeAttachments: true}
	src := newSource(t, box, scope)

	items := drainAll(t, src, domain.Params{Order: runreq.OrderAsc})
	if len(items) != 3 {
		t.Fatalf("items = %d, want message+message+attachment", len(items))
	}

	var docs, atts int
	for _, it := range items {
		c, err := it.Load(context.Background())
		if err != nil {
			t.Fatalf("%s: %v", it.ID, err)
		}
		if c.Bytes != nil {
			atts++
			if c.Filename != "q1.pdf" {
				t.Errorf("attachment filename = %q", c.Filename)
			}
		} else {
			docs++
		}
	}
	if docs != 2 || atts != 1 {
		t.Fatalf("docs = %d atts = %d", docs, atts)
	}
}

func TestFetchFailureStaysPerItem(t *testing.T) {
	box := &fakeBox{
		folders:  map[string]map[uint32]string{"INBOX": {1: plainMessage, 2: plainMessage}},
		fetchErr: map[uint32]error{2: errors.New("uid expunged")},
	}
	scope := &runreq.ImapScope{Host: "mail.example.com", Username: "alice", Folders: []string{"INBOX"}}
	src := newSource(t, box, scope)

	items := drainAll(t, src, domain.Params{Order: runreq.OrderAsc})
	if len(items) != 2 {
		t.Fatalf("items = %d", len(items))
	}

	var loadErrs int
	for _, it := range items {
		if _, err := it.Load(context.Background()); err != nil {
			loadErrs++
		}
	}
	if loadErrs != 1 {
		t.Fatalf("load errors = %d, want 1", loadErrs)
	}
}

func TestCloseReleasesSession(t *testing.T) {
	box := &fakeBox{folders: map[string]map[uint32]string{"INBOX": {}}}
	scope := &runreq.ImapScope{Host: "mail.example.com", Username: "alice", Folders: []string{"INBOX"}}
	src := newSource(t, box, scope)

	iter, err := src.Items(context.Background(), domain.Params{})
	if err != nil {
		t.Fatal(err)
	}
	if err := iter.Close(); err != nil {
		t.Fatal(err)
	}
	if !box.closed {
		t.Fatal("mailbox session not closed")
	}
}

func TestItemsFailureClosesSession(t *testing.T) {
	box := &fakeBox{
		folders:   map[string]map[uint32]string{"INBOX": {1: plainMessage}},
		searchErr: errors.New("mailbox gone"),
	}
	scope := &runreq.ImapScope{Host: "mail.example.com", Username: "alice", Folders: []string{"INBOX"}}
	src := newSource(t, box, scope)

	if _, err := src.Items(context.Background(), domain.Params{}); err == nil {
		t.Fatal("expected search failure")
	}
	if !box.closed {
		t.Fatal("session leaked after Items failure")
	}
}

func TestNarrowWindowDrainsLargeMailbox(t *testing.T) {
	msgs := map[uint32]string{}
	for uid := uint32(1); uid <= 500; uid++ {
		msgs[uid] = plainMessage
	}
	box := &fakeBox{folders: map[string]map[uint32]string{"INBOX": msgs}}
	scope := &runreq.ImapScope{Host: "mail.example.com", Username: "alice", Folders: []string{"INBOX"}}
	src := newSource(t, box, scope)

	// every message dates before the window opens
	since := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	items := drainAll(t, src, domain.Params{Order: runreq.OrderAsc, Since: &since})
	if len(items) != 0 {
		t.Fatalf("items = %d, want none inside the window", len(items))
	}
}
