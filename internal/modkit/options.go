package modkit

import (
	"net/http"

	phttp "github.com/ChrisPatten/haven-sub004/internal/platform/net/http"
)

// Option adjusts how a module is built
type Option func(*buildCfg)

type buildCfg struct {
	name      string
	prefix    string
	mw        []func(http.Handler) http.Handler
	subrouter func(phttp.Router) phttp.Router
	register  func(phttp.Router)
}

// WithName overrides the module name used in logs
func WithName(name string) Option {
	return func(c *buildCfg) { c.name = name }
}

// WithPrefix overrides the route prefix the module mounts under
func WithPrefix(prefix string) Option {
	return func(c *buildCfg) { c.prefix = prefix }
}

// WithMiddlewares appends per-module middleware, applied in order
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(c *buildCfg) { c.mw = append(c.mw, mw...) }
}

// WithSubrouter wraps the module router before routes are registered,
// useful for tests that want to observe or narrow the seam
func WithSubrouter(fn func(phttp.Router) phttp.Router) Option {
	return func(c *buildCfg) { c.subrouter = fn }
}

// WithRegister adds extra endpoints after the module's own registration
func WithRegister(fn func(phttp.Router)) Option {
	return func(c *buildCfg) { c.register = fn }
}
