// Package domain holds the run orchestration vocabulary: the collector
// registry and the persisted run record
package domain

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ChrisPatten/haven-sub004/internal/core/runreq"
	"github.com/ChrisPatten/haven-sub004/internal/core/runresp"
	perr "github.com/ChrisPatten/haven-sub004/internal/platform/errors"
)

// Collector is one runnable collector instance
type Collector struct {
	ID          string        `json:"id"`
	Family      runreq.Family `json:"family"`
	Description string        `json:"description,omitempty"`
}

// RunRecord is a persisted run envelope for the history API
type RunRecord struct {
	RunID      string               `json:"run_id"`
	Collector  string               `json:"collector"`
	Status     string               `json:"status"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	Envelope   *runresp.RunResponse `json:"envelope"`
}

// Registry maps collector ids to their family. The four families are always
// registered under their own name; additional ids derive their family from
// the segment before the first dot ("localfs.docs" runs as localfs)
type Registry struct {
	mu   sync.RWMutex
	byID map[string]Collector
}

// NewRegistry seeds the built-in collectors
func NewRegistry() *Registry {
	r := &Registry{byID: map[string]Collector{}}
	r.Register(Collector{ID: "localfs", Family: runreq.FamilyLocalfs, Description: "filesystem watch roots"})
	r.Register(Collector{ID: "imapmail", Family: runreq.FamilyImapmail, Description: "IMAP mailboxes"})
	r.Register(Collector{ID: "messages", Family: runreq.FamilyMessages, Description: "chat export files"})
	r.Register(Collector{ID: "contacts", Family: runreq.FamilyContacts, Description: "vCard directories"})
	return r
}

// Register adds or replaces a collector
func (r *Registry) Register(c Collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[c.ID] = c
}

// Get resolves a collector id. Unregistered ids still resolve when their
// family prefix is valid, so scoped ids work without pre-registration
func (r *Registry) Get(id string) (Collector, error) {
	r.mu.RLock()
	c, ok := r.byID[id]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	fam := runreq.Family(id)
	if i := strings.IndexByte(id, '.'); i > 0 {
		fam = runreq.Family(id[:i])
	}
	if fam.Valid() {
		return Collector{ID: id, Family: fam}, nil
	}
	return Collector{}, perr.NotFoundf("unknown collector %q", id)
}

// List returns registered collectors sorted by id
func (r *Registry) List() []Collector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Collector, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
