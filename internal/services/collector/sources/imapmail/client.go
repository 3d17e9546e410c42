package imapmail

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"

	"github.com/ChrisPatten/haven-sub004/internal/core/runreq"
	"github.com/ChrisPatten/haven-sub004/internal/platform/config"
	perr "github.com/ChrisPatten/haven-sub004/internal/platform/errors"
)

const (
	defaultIMAPPort = 993
	dialTimeout     = 15 * time.Second
)

// session adapts a go-imap client to the Mailbox port. Folder selection is
// memoized since Search and Fetch alternate within one folder
type session struct {
	c        *imapclient.Client
	selected string
}

// dialTLS is the default DialFunc. The password comes from IMAP_PASSWORD so
// credentials never ride in a run request
func dialTLS(_ context.Context, scope *runreq.ImapScope) (Mailbox, error) {
	password := config.New().Prefix("IMAP_").MayString("PASSWORD", "")
	if password == "" {
		return nil, perr.InvalidArgf("imap: IMAP_PASSWORD is not set")
	}

	port := scope.Port
	if port == 0 {
		port = defaultIMAPPort
	}
	addr := net.JoinHostPort(scope.Host, strconv.Itoa(port))

	c, err := imapclient.DialWithDialerTLS(
		&net.Dialer{Timeout: dialTimeout}, addr, &tls.Config{ServerName: scope.Host})
	if err != nil {
		return nil, err
	}
	if err := c.Login(scope.Username, password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	return &session{c: c}, nil
}

// Folders implements Mailbox via LIST
func (s *session) Folders(_ context.Context) ([]string, error) {
	ch := make(chan *imap.MailboxInfo, 16)
	done := make(chan error, 1)
	go func() { done <- s.c.List("", "*", ch) }()

	var folders []string
	for mb := range ch {
		folders = append(folders, mb.Name)
	}
	if err := <-done; err != nil {
		return nil, err
	}
	return folders, nil
}

// Search implements Mailbox via SELECT + UID SEARCH
func (s *session) Search(_ context.Context, folder string, since time.Time) ([]uint32, error) {
	if err := s.selectFolder(folder); err != nil {
		return nil, err
	}
	criteria := imap.NewSearchCriteria()
	if !since.IsZero() {
		criteria.Since = since
	}
	return s.c.UidSearch(criteria)
}

// Fetch implements Mailbox via UID FETCH of the whole message body
func (s *session) Fetch(_ context.Context, folder string, uid uint32) ([]byte, error) {
	if err := s.selectFolder(folder); err != nil {
		return nil, err
	}

	seq := new(imap.SeqSet)
	seq.AddNum(uid)
	section := &imap.BodySectionName{}

	ch := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() { done <- s.c.UidFetch(seq, []imap.FetchItem{section.FetchItem()}, ch) }()

	var (
		raw     []byte
		readErr error
	)
	for msg := range ch {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, readErr = io.ReadAll(body)
	}
	if err := <-done; err != nil {
		return nil, err
	}
	if readErr != nil {
		return nil, readErr
	}
	if raw == nil {
		return nil, fmt.Errorf("imap fetch: no body for uid %d", uid)
	}
	return raw, nil
}

func (s *session) selectFolder(folder string) error {
	if s.selected == folder {
		return nil
	}
	if _, err := s.c.Select(folder, true); err != nil {
		return err
	}
	s.selected = folder
	return nil
}

// Close logs out and drops the connection
func (s *session) Close() error {
	return s.c.Logout()
}
