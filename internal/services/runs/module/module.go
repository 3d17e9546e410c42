// Package module wires the runs service into the agent API using modkit
package module

import (
	"net/http"

	modkit "github.com/ChrisPatten/haven-sub004/internal/modkit"
	"github.com/ChrisPatten/haven-sub004/internal/modkit/httpkit"
	"github.com/ChrisPatten/haven-sub004/internal/modkit/repokit"
	str "github.com/ChrisPatten/haven-sub004/internal/platform/strings"

	"github.com/ChrisPatten/haven-sub004/internal/adapters/enrich"
	"github.com/ChrisPatten/haven-sub004/internal/adapters/ingest"
	cdomain "github.com/ChrisPatten/haven-sub004/internal/services/collector/domain"
	runsdomain "github.com/ChrisPatten/haven-sub004/internal/services/runs/domain"
	runshttp "github.com/ChrisPatten/haven-sub004/internal/services/runs/http"
	runsrepo "github.com/ChrisPatten/haven-sub004/internal/services/runs/repo"
	runssvc "github.com/ChrisPatten/haven-sub004/internal/services/runs/service"
)

// Module implements the runs module
type Module struct {
	deps   modkit.Deps
	name   string
	prefix string

	mws       []func(http.Handler) http.Handler
	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)

	svc *runssvc.Service
}

var _ modkit.Module = (*Module)(nil)

// New constructs the runs module. History persistence activates only when
// deps carry a Postgres runner
func New(deps modkit.Deps, opts ...modkit.Option) *Module {
	b := modkit.Build(append([]modkit.Option{modkit.WithName("runs"), modkit.WithPrefix("/")}, opts...)...)

	var hist runsrepo.Storage
	if deps.PG != nil {
		hist = repokit.MustBind(runsrepo.NewPG(), deps.PG)
	}

	var enr cdomain.Enricher
	if c := enrich.New(enrich.FromConf(deps.Cfg)); c != nil {
		enr = c
	}

	svc := runssvc.New(
		runssvc.FromConf(deps.Cfg),
		runsdomain.NewRegistry(),
		ingest.New(ingest.FromConf(deps.Cfg)),
		enr,
		hist,
	)

	m := &Module{
		deps:      deps,
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		subrouter: b.Subrouter,
		svc:       svc,
	}

	external := b.Register
	m.register = func(r httpkit.Router) {
		runshttp.Register(r, m.svc)
		if external != nil {
			external(r)
		}
	}
	return m
}

// Service exposes the wired runs service for the CLI runner
func (m *Module) Service() *runssvc.Service { return m.svc }

// MountRoutes mounts the module routes on the given router
func (m *Module) MountRoutes(r httpkit.Router) {
	httpkit.MountUnder(r, m.prefix, m.mws, func(rr httpkit.Router) {
		if m.subrouter != nil {
			rr = m.subrouter(rr)
		}
		if m.register != nil {
			m.register(rr)
		}
	})
}

// Name returns the module name
func (m *Module) Name() string { return str.MustString(m.name, "module name") }

// Prefix returns the module route prefix
func (m *Module) Prefix() string { return str.MustPrefix(m.prefix) }

// Middlewares returns the module middlewares
func (m *Module) Middlewares() []func(http.Handler) http.Handler { return m.mws }
