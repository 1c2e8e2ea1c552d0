package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"chanrpc/message"
)

// Retryable reports whether a failed attempt may be repeated.
type Retryable func(err error) bool

// TransientOnly retries timeouts only.
func TransientOnly(err error) bool {
	return errors.Is(err, ErrTimedOut) || errors.Is(err, context.DeadlineExceeded)
}

// Retry repeats a failed request up to maxRetries times with exponential
// backoff starting at baseDelay. A nil retryable means TransientOnly.
func Retry(maxRetries int, baseDelay time.Duration, retryable Retryable) Middleware {
	if retryable == nil {
		retryable = TransientOnly
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) (any, error) {
			result, err := next(ctx, req)
			for i := 0; i < maxRetries; i++ {
				if err == nil || !retryable(err) {
					return result, err
				}
				log.Debug().Err(err).Str("method", req.Method).Int("attempt", i+1).Msg("retrying request")

				timer := time.NewTimer(baseDelay * time.Duration(1<<i))
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil, ctx.Err()
				case <-timer.C:
				}
				result, err = next(ctx, req)
			}
			return result, err
		}
	}
}
