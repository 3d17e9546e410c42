package middleware

import (
	"net/http"
	"time"

	"github.com/ChrisPatten/haven-sub004/internal/platform/logger"
)

// AccessLogOptions configures the access log middleware
type AccessLogOptions struct {
	// Slow promotes requests that take at least this long to warn level.
	// Zero keeps everything at info
	Slow time.Duration
}

// statusWriter records the status code and body size a handler produced
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	n, err := sw.ResponseWriter.Write(b)
	sw.bytes += n
	return n, err
}

// AccessLog emits one structured line per request through the ctx-scoped
// logger so request ids carry over
func AccessLog(opt AccessLogOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(sw, r)

			elapsed := time.Since(start)
			log := logger.C(r.Context())
			evt := log.Info()
			if opt.Slow > 0 && elapsed >= opt.Slow {
				evt = log.Warn()
			}
			evt.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", sw.status).
				Int("bytes", sw.bytes).
				Dur("elapsed", elapsed).
				Msg("request done")
		})
	}
}
