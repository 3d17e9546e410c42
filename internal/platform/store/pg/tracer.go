package pg

import (
	"context"
	"strings"

	"github.com/ChrisPatten/haven-sub004/internal/platform/logger"

	"github.com/rs/zerolog"
)

// QueryEvent is one executed statement as seen by the tracer
type QueryEvent struct {
	SQL       string
	Args      any
	ElapsedUS int64
	Err       error
	Slow      bool
}

// QueryTracer observes statements when SQL logging is on
type QueryTracer interface {
	OnQuery(ctx context.Context, ev QueryEvent)
}

// Tracer builds a zerolog-backed tracer pinned at debug level so LOG_SQL
// output is independent of the process-wide log level
func Tracer(root logger.Logger) QueryTracer {
	ll := root.Level(zerolog.DebugLevel).With().Str("component", "pg").Logger()
	return &zlTracer{log: ll}
}

type zlTracer struct{ log logger.Logger }

func (z *zlTracer) OnQuery(_ context.Context, ev QueryEvent) {
	evt := z.log.Info()
	if ev.Slow {
		evt = z.log.Warn()
	}
	evt.Float64("elapsed_ms", float64(ev.ElapsedUS)/1000.0).
		Bool("slow", ev.Slow).
		Str("sql", compact(ev.SQL)).
		Interface("args", ev.Args).
		Err(ev.Err).
		Msg("pg query")
}

// compact collapses whitespace runs so multi-line SQL logs as one line
func compact(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch r {
		case ' ', '\n', '\t', '\r':
			if !space {
				b.WriteByte(' ')
				space = true
			}
		default:
			space = false
			b.WriteRune(r)
		}
	}
	return b.String()
}
