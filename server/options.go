package server

import (
	"github.com/rs/zerolog"

	"chanrpc/codec"
	"chanrpc/middleware"
	"chanrpc/registry"
)

type Option func(*Server)

// WithMiddleware appends middlewares. They are applied in the order given:
// the first one is outermost.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(s *Server) { s.middlewares = append(s.middlewares, mws...) }
}

// WithLogger sets the server logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithTransferDetection switches automatic transferable detection for
// replies and events without an explicit transfer list. On by default.
func WithTransferDetection(enabled bool) Option {
	return func(s *Server) { s.detect = enabled }
}

// WithCodec selects the frame body codec for connections accepted by Serve.
func WithCodec(ct codec.CodecType) Option {
	return func(s *Server) { s.codec = ct }
}

// WithRegistry announces the server under serviceName when Serve starts
// listening. advertiseAddr is the routable address clients should dial;
// empty means the listener address.
func WithRegistry(reg registry.Registry, serviceName, advertiseAddr string, weight int, ttl int64) Option {
	return func(s *Server) {
		s.registry = reg
		s.serviceName = serviceName
		s.advertiseAddr = advertiseAddr
		s.weight = weight
		s.ttl = ttl
	}
}
