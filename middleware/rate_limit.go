package middleware

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"chanrpc/message"
)

// ErrRateLimited is returned when the token bucket is empty.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimit admits r requests per second with the given burst (token bucket).
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) (any, error) {
			if !limiter.Allow() {
				return nil, ErrRateLimited
			}
			return next(ctx, req)
		}
	}
}
