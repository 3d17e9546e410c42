package main

import (
	"context"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ChrisPatten/haven-sub004/internal/core/version"
	modkit "github.com/ChrisPatten/haven-sub004/internal/modkit"
	"github.com/ChrisPatten/haven-sub004/internal/modkit/httpkit"
	"github.com/ChrisPatten/haven-sub004/internal/modkit/repokit"
	"github.com/ChrisPatten/haven-sub004/internal/platform/config"
	"github.com/ChrisPatten/haven-sub004/internal/platform/logger"
	phttp "github.com/ChrisPatten/haven-sub004/internal/platform/net/http"
	"github.com/ChrisPatten/haven-sub004/internal/platform/store"

	runsmod "github.com/ChrisPatten/haven-sub004/internal/services/runs/module"
	runsrepo "github.com/ChrisPatten/haven-sub004/internal/services/runs/repo"
)

func main() {
	// agent config lives under AGENT_*, postgres under AGENT_PGSQL_*
	root := config.New()
	agentCfg := root.Prefix("AGENT_")
	pgCfg := root.Prefix("AGENT_PGSQL_")

	l := logger.Get()

	deps := modkit.Deps{Cfg: root, Log: *l}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// run history is optional; the agent serves live envelopes without it
	if pgCfg.MayBool("ENABLED", false) {
		st, err := store.Open(ctx, store.Config{
			AppName: "haven-agent",
			PG: store.PGConfig{
				Enabled:     true,
				URL:         pgCfg.MustString("DBURL"),
				MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 4)),
				SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
				LogSQL:      pgCfg.MayBool("LOG_SQL", false),
			},
		}, store.WithLogger(*l))
		if err != nil {
			l.Panic().Err(err).Msg("store.Open failed")
		}
		defer func() {
			if err := st.Close(context.Background()); err != nil {
				l.Error().Err(err).Msg("failed to close store")
			}
		}()

		repokit.MustGuard(ctx, st)

		if err := runsrepo.EnsureSchema(ctx, st.PG); err != nil {
			l.Panic().Err(err).Msg("run history schema failed")
		}
		deps.PG = st.PG
	}

	srv := phttp.NewServer(agentCfg)
	srv.Router().Get("/version", httpkit.Call(func(*stdhttp.Request) (any, error) {
		return version.Info(), nil
	}))

	m := runsmod.New(deps)
	httpkit.MountAPIV1(srv.Router(), httpkit.CommonStack(), func(api httpkit.Router) {
		m.MountRoutes(api)
	})

	if err := srv.Run(ctx); err != nil {
		l.Panic().Err(err).Msg("http server stopped")
	}
}
