// Package client calls procedures exposed by a server on the far side of one
// or more channels.
//
// Every call gets a unique id and is parked in the call registry until the
// matching response, a timeout or Close settles it. Responses may arrive in
// any order and on any channel; the id alone routes them.
//
//	Go(method) ──Send(request uid=1)──→ channel[balancer.Pick]
//	handle:    ←── response(uid=1) → registry.take(1) → call.Done
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chanrpc/errcodec"
	"chanrpc/events"
	"chanrpc/loadbalance"
	"chanrpc/message"
	"chanrpc/transport"
)

var (
	// ErrTimeout matches every *TimeoutError.
	ErrTimeout = errors.New("timeout exceeded")
	// ErrClosed settles calls that were outstanding when Close ran.
	ErrClosed = errors.New("client closed")
	// ErrNoChannels is returned by New without channels.
	ErrNoChannels = loadbalance.ErrNoChannels
)

// TimeoutError reports a call that got no response in time.
type TimeoutError struct {
	Method string
}

func (e *TimeoutError) Error() string {
	return `Timeout exceeded for RPC method "` + e.Method + `"`
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// Client issues calls over a pool of channels. Unsolicited events pushed by
// the server are re-emitted through the embedded Emitter; transport faults
// are emitted as "error".
type Client struct {
	events.Emitter

	channels []transport.Channel
	cancels  []func()
	balancer loadbalance.Balancer
	calls    *callRegistry
	timeout  time.Duration
	newID    func() string
	logger   zerolog.Logger
	owns     bool // Close also closes the channels

	closeOnce sync.Once
}

// New creates a client over channels and subscribes to each of them.
func New(channels []transport.Channel, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newClient(channels, o)
}

func newClient(channels []transport.Channel, o options) (*Client, error) {
	if len(channels) == 0 {
		return nil, ErrNoChannels
	}
	if o.balancer == nil {
		o.balancer = &loadbalance.RoundRobinBalancer{}
	}
	c := &Client{
		channels: append([]transport.Channel(nil), channels...),
		balancer: o.balancer,
		calls:    newCallRegistry(),
		timeout:  o.timeout,
		newID:    o.newID,
		logger:   o.logger,
		owns:     o.ownsChans,
	}
	for _, ch := range c.channels {
		c.cancels = append(c.cancels, ch.Subscribe(c.handle, c.fault))
	}
	return c, nil
}

// Channels returns the channels the client sends on.
func (c *Client) Channels() []transport.Channel {
	return append([]transport.Channel(nil), c.channels...)
}

// Pending reports how many calls are outstanding.
func (c *Client) Pending() int {
	return c.calls.len()
}

// Go invokes method asynchronously. The returned Call's Done channel
// receives it once it is settled.
func (c *Client) Go(method string, data any, opts ...CallOption) *Call {
	co := callOptions{timeout: c.timeout}
	for _, opt := range opts {
		opt(&co)
	}

	call := &Call{
		UID:    c.newID(),
		Method: method,
		Data:   data,
		Done:   make(chan *Call, 1),
	}
	err := c.calls.add(call, co.timeout, func() {
		c.settle(call.UID, nil, &TimeoutError{Method: method})
	})
	if err != nil {
		call.Error = err
		call.done()
		return call
	}

	idx, err := c.balancer.Pick(method, len(c.channels))
	if err != nil {
		c.settle(call.UID, nil, err)
		return call
	}
	req := message.NewRequest(call.UID, method, data)
	if err := c.channels[idx].Send(req, co.transfer); err != nil {
		c.settle(call.UID, nil, fmt.Errorf("send %q: %w", method, err))
	}
	return call
}

// Call invokes method and waits for the outcome.
func (c *Client) Call(method string, data any, opts ...CallOption) (any, error) {
	call := <-c.Go(method, data, opts...).Done
	return call.Reply, call.Error
}

// CallContext is Call that stops waiting when ctx ends. The request has
// already been sent by then; only the local wait is abandoned.
func (c *Client) CallContext(ctx context.Context, method string, data any, opts ...CallOption) (any, error) {
	call := c.Go(method, data, opts...)
	select {
	case <-call.Done:
		return call.Reply, call.Error
	case <-ctx.Done():
		if c.calls.take(call.UID) != nil {
			return nil, ctx.Err()
		}
		// Settled concurrently
		<-call.Done
		return call.Reply, call.Error
	}
}

// settle resolves or rejects the call for uid if it is still outstanding.
func (c *Client) settle(uid string, reply any, err error) bool {
	call := c.calls.take(uid)
	if call == nil {
		return false
	}
	call.Reply, call.Error = reply, err
	call.done()
	return true
}

// handle is subscribed to every channel.
func (c *Client) handle(raw any) {
	env, ok := message.Parse(raw)
	if !ok {
		return
	}
	switch env.Kind() {
	case message.KindError:
		if !c.settle(env.UID, nil, errcodec.Decode(env.Error)) {
			c.logger.Debug().Str("uid", env.UID).Msg("error response for unknown call")
		}
	case message.KindCall:
		if !c.settle(env.UID, env.Data, nil) {
			c.logger.Debug().Str("uid", env.UID).Str("method", env.Method).Msg("response for unknown call")
		}
	case message.KindEvent:
		c.Emit(env.EventName, env.Data)
	}
}

// fault forwards transport faults. Outstanding calls are left to their
// timeouts.
func (c *Client) fault(err error) {
	c.logger.Warn().Err(err).Msg("channel fault")
	c.Emit("error", err)
}

// Close unsubscribes from every channel and rejects the outstanding calls
// with ErrClosed.
func (c *Client) Close() error {
	var errs []error
	c.closeOnce.Do(func() {
		for _, cancel := range c.cancels {
			cancel()
		}
		for _, call := range c.calls.drain() {
			call.Error = ErrClosed
			call.done()
		}
		if c.owns {
			for _, ch := range c.channels {
				if err := ch.Close(); err != nil {
					errs = append(errs, err)
				}
			}
		}
	})
	return errors.Join(errs...)
}
