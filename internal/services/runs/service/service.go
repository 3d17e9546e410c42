// Package service orchestrates collector runs: request parsing, per-collector
// locking, state ledger lifecycle, engine execution, and history recording
package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	cdomain "github.com/ChrisPatten/haven-sub004/internal/services/collector/domain"
	"github.com/ChrisPatten/haven-sub004/internal/services/collector/engine"
	"github.com/ChrisPatten/haven-sub004/internal/services/collector/sources/contacts"
	"github.com/ChrisPatten/haven-sub004/internal/services/collector/sources/imapmail"
	"github.com/ChrisPatten/haven-sub004/internal/services/collector/sources/localfs"
	"github.com/ChrisPatten/haven-sub004/internal/services/collector/sources/messages"

	"github.com/ChrisPatten/haven-sub004/internal/core/runreq"
	"github.com/ChrisPatten/haven-sub004/internal/core/runresp"
	"github.com/ChrisPatten/haven-sub004/internal/platform/config"
	perr "github.com/ChrisPatten/haven-sub004/internal/platform/errors"
	"github.com/ChrisPatten/haven-sub004/internal/platform/logger"
	"github.com/ChrisPatten/haven-sub004/internal/services/runs/domain"
	"github.com/ChrisPatten/haven-sub004/internal/services/runs/repo"
	"github.com/ChrisPatten/haven-sub004/internal/state"
)

// Config for the runs service
type Config struct {
	// StateDir holds one ledger file per collector id
	StateDir string
}

// FromConf reads AGENT_* env settings
func FromConf(cfg config.Conf) Config {
	c := cfg.Prefix("AGENT_")
	return Config{
		StateDir: c.MayString("STATE_DIR", "state"),
	}
}

// Service runs collectors and serves run history
type Service struct {
	cfg Config
	log *logger.Logger

	reg *domain.Registry
	sub cdomain.Submitter
	enr cdomain.Enricher

	// hist is nil when history persistence is disabled
	hist repo.Storage

	// srcFn overrides source construction in tests
	srcFn func(fam runreq.Family, req *runreq.RunRequest, p *cdomain.Params) (cdomain.Source, error)

	mu     sync.Mutex
	active map[string]bool
}

// New constructs the runs service. enr and hist may be nil
func New(cfg Config, reg *domain.Registry, sub cdomain.Submitter, enr cdomain.Enricher, hist repo.Storage) *Service {
	return &Service{
		cfg:    cfg,
		log:    logger.Named("runs"),
		reg:    reg,
		sub:    sub,
		enr:    enr,
		hist:   hist,
		active: map[string]bool{},
	}
}

// Collectors lists the registered collectors
func (s *Service) Collectors() []domain.Collector { return s.reg.List() }

// History lists persisted run envelopes, newest first
func (s *Service) History(ctx context.Context, collector string, limit int) ([]domain.RunRecord, error) {
	if s.hist == nil {
		return nil, perr.Unavailablef("run history persistence is disabled")
	}
	return s.hist.List(ctx, collector, limit)
}

// HistoryGet fetches one persisted run envelope
func (s *Service) HistoryGet(ctx context.Context, runID string) (domain.RunRecord, error) {
	if s.hist == nil {
		return domain.RunRecord{}, perr.Unavailablef("run history persistence is disabled")
	}
	return s.hist.Get(ctx, runID)
}

// Run executes one collector invocation from a raw request body and returns
// the uniform envelope. Request validation failures return an error (HTTP
// 4xx); failures past validation return an error-status envelope instead
func (s *Service) Run(ctx context.Context, collectorID string, raw []byte) (*runresp.RunResponse, error) {
	col, err := s.reg.Get(collectorID)
	if err != nil {
		return nil, err
	}
	req, err := runreq.Parse(raw, col.Family)
	if err != nil {
		return nil, err
	}

	if !s.acquire(collectorID) {
		return nil, perr.Conflictf("collector %q already has a run in progress", collectorID)
	}
	defer s.release(collectorID)

	startedAt := time.Now().UTC()
	runID := uuid.NewString()
	log := s.log.With().Str("collector", collectorID).Str("run_id", runID).Logger()

	b := runresp.New(collectorID, runID, startedAt)
	b.Warns(req.Warnings)

	env := s.execute(ctx, col, req, b, log)
	s.record(ctx, env, log)

	log.Info().
		Str("status", string(env.Status)).
		Int("scanned", env.Stats.Scanned).
		Int("submitted", env.Stats.Submitted).
		Int("skipped", env.Stats.Skipped).
		Dur("elapsed", env.Elapsed()).
		Msg("run finished")
	return env, nil
}

func (s *Service) execute(ctx context.Context, col domain.Collector, req *runreq.RunRequest, b *runresp.Builder, log logger.Logger) *runresp.RunResponse {
	p := cdomain.Resolve(col.ID, req, time.Now().UTC())
	srcFor := s.source
	if s.srcFn != nil {
		srcFor = s.srcFn
	}
	src, err := srcFor(col.Family, req, &p)
	if err != nil {
		return b.Fail(time.Now().UTC(), err.Error())
	}

	statePath := s.statePath(col.ID)
	st, err := state.Load(statePath)
	if err != nil {
		// a corrupt ledger risks duplicate submissions; refuse to run
		return b.Fail(time.Now().UTC(), err.Error())
	}

	eng := &engine.Engine{Sub: s.sub, Enr: s.enr}
	if err := eng.Run(ctx, src, p, st, b); err != nil {
		// items submitted before the failure are in the ledger; losing them
		// means re-submitting everything next run
		if !p.DryRun && st.Dirty() {
			if serr := st.Save(statePath); serr != nil {
				log.Error().Err(serr).Str("path", statePath).Msg("state save failed")
				b.Error("state save failed: " + serr.Error())
			}
		}
		return b.Fail(time.Now().UTC(), err.Error())
	}

	if !p.DryRun {
		if err := st.Save(statePath); err != nil {
			log.Error().Err(err).Str("path", statePath).Msg("state save failed")
			return b.Fail(time.Now().UTC(), "state save failed: "+err.Error())
		}
	}
	return b.Finish(time.Now().UTC())
}

// source builds the family source and applies family-specific param knobs
func (s *Service) source(fam runreq.Family, req *runreq.RunRequest, p *cdomain.Params) (cdomain.Source, error) {
	switch fam {
	case runreq.FamilyLocalfs:
		if sc := req.Scope.Localfs; sc != nil {
			p.MaxItemBytes = sc.MaxFileBytes
		}
		return localfs.New(req.Scope.Localfs), nil
	case runreq.FamilyImapmail:
		return imapmail.New(req.Scope.Imap, nil), nil
	case runreq.FamilyMessages:
		return messages.New(req.Scope.Messages), nil
	case runreq.FamilyContacts:
		return contacts.New(req.Scope.Contacts), nil
	}
	return nil, perr.InvalidArgf("no source for family %q", fam)
}

func (s *Service) statePath(collectorID string) string {
	_ = os.MkdirAll(s.cfg.StateDir, 0o755)
	return filepath.Join(s.cfg.StateDir, collectorID+".state.json")
}

func (s *Service) record(ctx context.Context, env *runresp.RunResponse, log logger.Logger) {
	if s.hist == nil {
		return
	}
	rec := domain.RunRecord{
		RunID:      env.RunID,
		Collector:  env.Collector,
		Status:     string(env.Status),
		StartedAt:  env.StartedAt,
		FinishedAt: env.FinishedAt,
		Envelope:   env,
	}
	if err := s.hist.Insert(ctx, rec); err != nil {
		// history is advisory; the envelope already went to the caller
		log.Warn().Err(err).Msg("record run history")
	}
}

func (s *Service) acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[id] {
		return false
	}
	s.active[id] = true
	return true
}

func (s *Service) release(id string) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}
