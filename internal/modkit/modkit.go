// Package modkit holds the small amount of glue a service module needs to
// mount itself on the agent router
package modkit

import (
	phttp "github.com/ChrisPatten/haven-sub004/internal/platform/net/http"
)

// Module is what main expects from anything it mounts. The agent composes a
// single process, so the contract stays route-shaped and nothing more
type Module interface {
	// MountRoutes attaches the module's endpoints under the given router seam
	MountRoutes(r phttp.Router)

	// Name identifies the module in logs
	Name() string

	// Prefix is the route prefix the module mounts under
	Prefix() string
}
