// Package server exposes a fixed set of procedures to callers on the far side
// of one or more channels.
//
// Request processing pipeline:
//
//	channel message → handle (parse, method lookup)
//	  → go serveRequest (parallel processing)
//	    → Middleware Chain → Procedure → reply / fail → same channel
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"chanrpc/codec"
	"chanrpc/errcodec"
	"chanrpc/message"
	"chanrpc/middleware"
	"chanrpc/registry"
	"chanrpc/transfer"
	"chanrpc/transport"
)

// Procedure is a remotely callable function. A returned *transfer.Result
// carries an explicit transfer list for its value.
type Procedure func(ctx context.Context, data any) (any, error)

// Methods maps procedure names to procedures.
type Methods map[string]Procedure

type attachment struct {
	ch     transport.Channel
	cancel func()
}

// Server dispatches requests from attached channels to its procedures.
type Server struct {
	methods     Methods                 // Immutable after New
	middlewares []middleware.Middleware // Applied in order
	handler     middleware.HandlerFunc  // middleware(middleware(...(invoke)))
	logger      zerolog.Logger
	detect      bool

	ctx    context.Context // Parent of every request context, cancelled by Shutdown
	cancel context.CancelFunc
	wg     sync.WaitGroup // Tracks in-flight requests for graceful shutdown

	mu       sync.Mutex
	nextID   int
	attached map[int]attachment

	// Networking
	codec         codec.CodecType
	listener      net.Listener
	shutdown      atomic.Bool // Set during shutdown to suppress Accept errors
	registry      registry.Registry
	serviceName   string
	advertiseAddr string
	weight        int
	ttl           int64
}

// New creates a server for methods. The map is copied, so later changes to
// it have no effect.
func New(methods Methods, opts ...Option) *Server {
	s := &Server{
		methods:  make(Methods, len(methods)),
		logger:   log.Logger,
		detect:   true,
		attached: make(map[int]attachment),
		ttl:      10,
	}
	for name, fn := range methods {
		s.methods[name] = fn
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	// Chain(A, B, C)(invoke) → A(B(C(invoke)))
	s.handler = middleware.Chain(s.middlewares...)(s.invoke)
	return s
}

// Methods returns the names of the registered procedures.
func (s *Server) Methods() []string {
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	return names
}

// Attach starts serving requests arriving on ch. Replies go back to the same
// channel. The returned function detaches it again.
func (s *Server) Attach(ch transport.Channel) (detach func()) {
	return s.attach(ch, func(err error) {
		s.logger.Warn().Err(err).Msg("channel fault")
	})
}

func (s *Server) attach(ch transport.Channel, onFault func(error)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()

	cancel := ch.Subscribe(func(msg any) { s.handle(ch, msg) }, onFault)

	s.mu.Lock()
	s.attached[id] = attachment{ch: ch, cancel: cancel}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.attached, id)
		s.mu.Unlock()
		cancel()
	}
}

func (s *Server) channels() []transport.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]transport.Channel, 0, len(s.attached))
	for _, a := range s.attached {
		list = append(list, a.ch)
	}
	return list
}

// handle runs on the channel's delivery goroutine, so it must not block:
// every request is dispatched to its own goroutine.
func (s *Server) handle(ch transport.Channel, raw any) {
	env, ok := message.Parse(raw)
	if !ok || env.Kind() != message.KindCall {
		return
	}

	if _, ok := s.methods[env.Method]; !ok {
		s.logger.Debug().Str("method", env.Method).Msg("unknown method")
		s.fail(ch, env.UID, unknownMethod(env.Method))
		return
	}

	// Add under mu so it never races the Wait in Shutdown
	s.mu.Lock()
	if s.shutdown.Load() {
		s.mu.Unlock()
		s.fail(ch, env.UID, errcodec.New(errcodec.KindError, "Server is shutting down"))
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	go s.serveRequest(ch, env)
}

func unknownMethod(method string) error {
	err := errcodec.New(errcodec.KindError, `Unknown RPC method "`+method+`"`)
	err.Props = map[string]any{"method": method}
	return err
}

func (s *Server) serveRequest(ch transport.Channel, env *message.Envelope) {
	defer s.wg.Done()

	result, err := s.run(env)
	if err != nil {
		s.fail(ch, env.UID, err)
		return
	}
	s.reply(ch, env, result)
}

// run passes the request through the middleware chain. A panic anywhere in it
// is a failure like any returned error.
func (s *Server) run(env *message.Envelope) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("method", env.Method).Interface("panic", r).Msg("procedure panicked")
			result, err = nil, errcodec.FromPanic(r)
		}
	}()
	return s.handler(s.ctx, env)
}

// invoke is the innermost handler: it calls the procedure itself.
func (s *Server) invoke(ctx context.Context, req *message.Envelope) (any, error) {
	return s.methods[req.Method](ctx, req.Data)
}

func (s *Server) reply(ch transport.Channel, req *message.Envelope, result any) {
	value, transferables, explicit := transfer.Unwrap(result)
	if !explicit && s.detect {
		transferables = transfer.Detect(value)
	}
	if err := ch.Send(message.NewResponse(req.UID, req.Method, value), transferables); err != nil {
		s.logger.Warn().Err(err).Str("method", req.Method).Msg("reply failed, sending error instead")
		s.fail(ch, req.UID, err)
	}
}

func (s *Server) fail(ch transport.Channel, uid string, failure error) {
	if err := ch.Send(message.NewError(uid, errcodec.Encode(failure)), nil); err != nil {
		s.logger.Error().Err(err).Str("uid", uid).Msg("error reply failed")
	}
}

// Emit pushes an event to every attached channel. Without an explicit list the
// transferables are detected from data.
func (s *Server) Emit(eventName string, data any, transferables ...any) error {
	if len(transferables) == 0 && s.detect {
		transferables = transfer.Detect(data)
	}
	var errs []error
	for _, ch := range s.channels() {
		if err := ch.Send(message.NewEvent(eventName, data), transferables); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Serve listens on the given address, registers with the registry when one
// is configured, and attaches every accepted connection. It returns nil after
// Shutdown.
func (s *Server) Serve(network, address string) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.shutdown.Load() {
		s.mu.Unlock()
		listener.Close()
		return nil
	}
	s.listener = listener
	s.mu.Unlock()

	if s.registry != nil {
		if s.advertiseAddr == "" {
			s.advertiseAddr = listener.Addr().String()
		}
		inst := registry.ServiceInstance{Addr: s.advertiseAddr, Weight: s.weight, Codec: s.codec.String()}
		if err := s.registry.Register(s.ctx, s.serviceName, inst, s.ttl); err != nil {
			listener.Close()
			return fmt.Errorf("register %s: %w", s.serviceName, err)
		}
		s.logger.Info().Str("service", s.serviceName).Str("addr", s.advertiseAddr).Msg("registered")
	}
	s.logger.Info().Str("addr", listener.Addr().String()).Str("codec", s.codec.String()).Msg("serving")

	for {
		nc, err := listener.Accept()
		if err != nil {
			// listener.Close() during Shutdown makes Accept fail
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		s.serveConn(nc)
	}
}

func (s *Server) serveConn(nc net.Conn) {
	conn := transport.NewConn(nc, s.codec, transport.WithConnLogger(s.logger))
	s.attach(conn, func(err error) {
		s.logger.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("connection closed")
		s.detachChannel(conn)
		conn.Close()
	})
}

func (s *Server) detachChannel(ch transport.Channel) {
	s.mu.Lock()
	var cancels []func()
	for id, a := range s.attached {
		if a.ch == ch {
			cancels = append(cancels, a.cancel)
			delete(s.attached, id)
		}
	}
	s.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// Addr returns the listener address once Serve is running.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown performs graceful shutdown:
//  1. Deregister from the registry so clients stop routing here
//  2. Set the shutdown flag so the Accept error is recognized as intentional
//     and late requests are refused
//  3. Close the listener
//  4. Wait for in-flight requests to finish (with timeout)
//  5. Detach and close every channel
func (s *Server) Shutdown(timeout time.Duration) error {
	if s.registry != nil && s.advertiseAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := s.registry.Deregister(ctx, s.serviceName, s.advertiseAddr); err != nil {
			s.logger.Warn().Err(err).Msg("deregister failed")
		}
		cancel()
	}

	s.mu.Lock()
	s.shutdown.Store(true)
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = fmt.Errorf("timeout waiting for ongoing requests to finish")
	}
	s.cancel()

	s.mu.Lock()
	attached := s.attached
	s.attached = make(map[int]attachment)
	s.mu.Unlock()
	for _, a := range attached {
		a.cancel()
		a.ch.Close()
	}
	return err
}
