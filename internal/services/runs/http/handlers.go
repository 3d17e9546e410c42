// Package http provides the runs transport: trigger a collector run, list
// collectors, and browse run history
package http

import (
	"io"
	stdhttp "net/http"
	"strconv"

	"github.com/ChrisPatten/haven-sub004/internal/modkit/httpkit"
	perr "github.com/ChrisPatten/haven-sub004/internal/platform/errors"
	svc "github.com/ChrisPatten/haven-sub004/internal/services/runs/service"
)

// request bodies are bounded; run requests are small control documents
const maxBodyBytes = 1 << 20

// Register mounts the runs endpoints on the given router
func Register(r httpkit.Router, s *svc.Service) {
	h := &handlers{svc: s}

	httpkit.Get(r, "/collectors", h.collectors)
	r.Post("/collectors/{id}/runs", httpkit.Call(h.run))
	httpkit.Get(r, "/runs", h.history)
	httpkit.Get(r, "/runs/{id}", h.historyGet)
}

type handlers struct{ svc *svc.Service }

func (h *handlers) collectors(*stdhttp.Request) (any, error) {
	return h.svc.Collectors(), nil
}

// run reads the body raw: runreq owns strict decoding so unknown-field and
// scope errors carry the offending key names
func (h *handlers) run(r *stdhttp.Request) (any, error) {
	id := httpkit.Param(r, "id")
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, perr.InvalidArgf("read request body: %v", err)
	}
	return h.svc.Run(r.Context(), id, raw)
}

func (h *handlers) history(r *stdhttp.Request) (any, error) {
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, perr.Validationf("limit must be a positive integer")
		}
		limit = n
	}
	return h.svc.History(r.Context(), q.Get("collector"), limit)
}

func (h *handlers) historyGet(r *stdhttp.Request) (any, error) {
	return h.svc.HistoryGet(r.Context(), httpkit.Param(r, "id"))
}
