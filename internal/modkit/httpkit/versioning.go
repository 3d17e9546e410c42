package httpkit

import (
	"net/http"
	"strings"
)

// MountAPI scopes a router under /api/<version> with the given middleware
// stack, then lets mount register routes on it. Version may be passed with or
// without a leading slash
func MountAPI(r Router, version string, mw []func(http.Handler) http.Handler, mount func(Router)) {
	MountUnder(r, "/api/"+strings.TrimPrefix(version, "/"), mw, mount)
}

// MountAPIV1 mounts under /api/v1, the only version the agent serves today
func MountAPIV1(r Router, mw []func(http.Handler) http.Handler, mount func(Router)) {
	MountAPI(r, "v1", mw, mount)
}
