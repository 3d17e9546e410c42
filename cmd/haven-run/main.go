package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"time"

	modkit "github.com/ChrisPatten/haven-sub004/internal/modkit"
	"github.com/ChrisPatten/haven-sub004/internal/platform/config"
	"github.com/ChrisPatten/haven-sub004/internal/platform/logger"

	"github.com/ChrisPatten/haven-sub004/internal/core/runresp"
	runsmod "github.com/ChrisPatten/haven-sub004/internal/services/runs/module"
)

func main() {
	root := config.New()
	l := logger.Get()

	var (
		fCollector = flag.String("collector", "", "collector id to run (localfs, imapmail, messages, contacts, or a scoped id like localfs.docs)")
		fRequest   = flag.String("request", "-", "path to the run request JSON, - for stdin")
		fTimeout   = flag.Duration("timeout", 0, "advisory run deadline; in-flight work drains, pending work is dropped")
	)
	flag.Parse()

	if *fCollector == "" {
		l.Panic().Msg("must provide -collector")
	}

	raw, err := readRequest(*fRequest)
	if err != nil {
		l.Panic().Err(err).Str("request", *fRequest).Msg("read run request")
	}

	ctx := context.Background()
	if *fTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *fTimeout)
		defer cancel()
	}

	// history persistence is an agent concern; the one-shot runner skips it
	m := runsmod.New(modkit.Deps{Cfg: root, Log: *l})

	start := time.Now()
	env, err := m.Service().Run(ctx, *fCollector, raw)
	if err != nil {
		l.Fatal().Err(err).Str("collector", *fCollector).Msg("run rejected")
	}

	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")
	if err := out.Encode(env); err != nil {
		l.Fatal().Err(err).Msg("encode envelope")
	}

	l.Info().
		Str("status", string(env.Status)).
		Dur("elapsed", time.Since(start)).
		Msg("run complete")

	if env.Status == runresp.StatusError {
		os.Exit(1)
	}
}

func readRequest(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
