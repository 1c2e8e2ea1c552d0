package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"chanrpc/message"
)

// Logging records the method, duration and failure of every request.
func Logging(logger zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) (any, error) {
			start := time.Now()
			result, err := next(ctx, req)

			ev := logger.Debug()
			if err != nil {
				ev = logger.Warn().Err(err)
			}
			ev.Str("method", req.Method).
				Str("uid", req.UID).
				Dur("duration", time.Since(start)).
				Msg("rpc request")
			return result, err
		}
	}
}
