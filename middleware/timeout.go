package middleware

import (
	"context"
	"errors"
	"time"

	"chanrpc/errcodec"
	"chanrpc/message"
)

// ErrTimedOut is returned when a procedure outlives the Timeout middleware.
var ErrTimedOut = errors.New("request timed out")

type outcome struct {
	result any
	err    error
}

// Timeout fails a request that takes longer than d. The procedure keeps its
// context, which is cancelled when the deadline passes. Cancellation of the
// parent context is reported as the parent's error, not as ErrTimedOut.
func Timeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(parent context.Context, req *message.Envelope) (any, error) {
			ctx, cancel := context.WithTimeout(parent, d)
			defer cancel()

			done := make(chan outcome, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						done <- outcome{err: errcodec.FromPanic(r)}
					}
				}()
				result, err := next(ctx, req)
				done <- outcome{result: result, err: err}
			}()

			select {
			case o := <-done:
				return o.result, o.err
			case <-ctx.Done():
				if err := parent.Err(); err != nil {
					return nil, err
				}
				return nil, ErrTimedOut
			}
		}
	}
}
