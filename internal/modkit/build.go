package modkit

import (
	"net/http"

	"github.com/ChrisPatten/haven-sub004/internal/modkit/httpkit"
)

// Built is the resolved module configuration after options run
type Built struct {
	Name   string
	Prefix string
	Mw     []func(http.Handler) http.Handler

	// router hooks, always non-nil after Build
	Subrouter func(httpkit.Router) httpkit.Router
	Register  func(httpkit.Router)
}

// Build folds Option funcs into a Built with safe defaults
func Build(opts ...Option) Built {
	var c buildCfg
	for _, o := range opts {
		o(&c)
	}
	if c.subrouter == nil {
		c.subrouter = func(r httpkit.Router) httpkit.Router { return r }
	}
	if c.register == nil {
		c.register = func(httpkit.Router) {}
	}
	return Built{
		Name:      c.name,
		Prefix:    c.prefix,
		Mw:        append([]func(http.Handler) http.Handler(nil), c.mw...),
		Subrouter: c.subrouter,
		Register:  c.register,
	}
}
