// Package middleware wraps server procedures with cross-cutting behaviour.
package middleware

import (
	"context"

	"chanrpc/message"
)

// HandlerFunc serves one request envelope and returns the procedure result.
type HandlerFunc func(ctx context.Context, req *message.Envelope) (any, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines several middlewares into one. The first one is outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
