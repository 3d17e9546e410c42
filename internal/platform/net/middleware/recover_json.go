package middleware

import (
	stdjson "encoding/json"
	stdhttp "net/http"
	"runtime/debug"

	perr "github.com/ChrisPatten/haven-sub004/internal/platform/errors"
	"github.com/ChrisPatten/haven-sub004/internal/platform/logger"
	pnet "github.com/ChrisPatten/haven-sub004/internal/platform/net"
)

type panicWire struct {
	StatusCode int    `json:"status_code"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

// RecoverJSON turns a handler panic into a JSON 500. The stack goes to the
// log with the request id; the client only sees the generic envelope
func RecoverJSON(next stdhttp.Handler) stdhttp.Handler {
	return stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			reqID := pnet.RequestID(r.Context())

			log := logger.C(r.Context())
			if log == nil {
				log = logger.Named("http")
			}
			log.Error().
				Str("request_id", reqID).
				Interface("panic", v).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			writePanicJSON(w, reqID)
		}()
		next.ServeHTTP(w, r)
	})
}

func writePanicJSON(w stdhttp.ResponseWriter, reqID string) {
	if reqID != "" {
		w.Header().Set("X-Request-ID", reqID)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(stdhttp.StatusInternalServerError)
	_ = stdjson.NewEncoder(w).Encode(panicWire{
		StatusCode: stdhttp.StatusInternalServerError,
		Status:     stdhttp.StatusText(stdhttp.StatusInternalServerError),
		Error:      perr.Root(perr.PanicErrf("panic recovered")).Error(),
		RequestID:  reqID,
	})
}
