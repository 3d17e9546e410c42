package http

import "net/http"

// Handler is the function shape every route in the agent registers
type Handler = func(http.ResponseWriter, *http.Request)

// Router is the routing seam modules mount against. The chi adapter is the
// only implementation; keeping the seam small keeps modules off chi directly
type Router interface {
	Get(path string, h Handler)
	Post(path string, h Handler)
	Put(path string, h Handler)
	Patch(path string, h Handler)
	Delete(path string, h Handler)

	Handle(path string, h http.Handler)
	Use(mw ...func(http.Handler) http.Handler)
	Group(fn func(Router))
	Route(pattern string, fn func(Router))

	// Mux exposes the underlying handler for the server and for tests
	Mux() http.Handler
}
