package http

import (
	stdhttp "net/http"

	"github.com/ChrisPatten/haven-sub004/internal/platform/net/http/bind"
)

// JSONHandler adapts a typed JSON handler to the platform Handler type.
// The body is parsed strictly via bind.ParseJSON and validation failures
// surface as 400s through the standard envelope
func JSONHandler[T any](fn func(*stdhttp.Request, T) (any, error)) Handler {
	return Handle(func(r *stdhttp.Request) Response {
		in, err := bind.ParseJSON[T](r)
		if err != nil {
			return Error(err)
		}
		out, err := fn(r, in)
		if err != nil {
			return Error(err)
		}
		if resp, ok := out.(Response); ok {
			return resp
		}
		return OK(out)
	})
}
