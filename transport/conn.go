package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"chanrpc/codec"
	"chanrpc/message"
	"chanrpc/protocol"
)

// DefaultHeartbeat is the interval between keepalive frames.
const DefaultHeartbeat = 30 * time.Second

// Conn carries channel messages over a net.Conn.
//
// Many goroutines may Send concurrently; the sending mutex makes every frame
// (header + body) an atomic write, otherwise frames from different calls would
// interleave and corrupt the stream. A single recvLoop goroutine reads frames
// because a byte stream must be parsed sequentially.
//
//	goroutine-1 ──Send(call)──┐
//	goroutine-2 ──Send(call)──┼──→ single TCP conn ──→ peer
//	goroutine-3 ──Send(event)─┘
//
//	recvLoop:  ←── frame → decode envelope → subscribers
type Conn struct {
	conn    net.Conn        // Underlying connection
	codec   codec.CodecType // Body encoding for envelopes sent on this conn
	seq     uint32          // Frame counter (protected by sending mutex)
	sending sync.Mutex      // Write lock, one frame at a time
	hub     *hub
	logger  zerolog.Logger

	heartbeat time.Duration
	closed    atomic.Bool
	done      chan struct{}
}

type ConnOption func(*Conn)

// WithHeartbeat sets the keepalive interval. Zero disables heartbeats.
func WithHeartbeat(d time.Duration) ConnOption {
	return func(c *Conn) { c.heartbeat = d }
}

// WithConnLogger sets the logger used for connection diagnostics.
func WithConnLogger(logger zerolog.Logger) ConnOption {
	return func(c *Conn) { c.logger = logger }
}

// NewConn wraps nc and starts two background goroutines:
//   - recvLoop: reads frames and hands decoded messages to subscribers
//   - heartbeatLoop: sends periodic heartbeat frames to detect dead peers
func NewConn(nc net.Conn, codecType codec.CodecType, opts ...ConnOption) *Conn {
	c := &Conn{
		conn:      nc,
		codec:     codecType,
		hub:       newHub(),
		logger:    log.Logger,
		heartbeat: DefaultHeartbeat,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("remote", nc.RemoteAddr().String()).Logger()

	go c.recvLoop()
	if c.heartbeat > 0 {
		go c.heartbeatLoop(c.heartbeat)
	}
	return c
}

// Send encodes msg into one frame. RPC envelopes use the connection codec;
// any other value is sent as a raw JSON frame. Transfer lists have no meaning
// across a network and are ignored.
func (c *Conn) Send(msg any, _ []any) error {
	if c.closed.Load() {
		return ErrClosed
	}

	msgType := protocol.MsgTypeRaw
	codecType := codec.CodecTypeJSON
	var body []byte
	var err error
	if env, ok := message.Parse(msg); ok {
		msgType = frameType(env.Kind())
		codecType = c.codec
		body, err = codec.GetCodec(codecType).Encode(env)
	} else {
		body, err = json.Marshal(msg)
	}
	if err != nil {
		return fmt.Errorf("transport: encode message: %w", err)
	}

	c.sending.Lock()
	defer c.sending.Unlock()
	c.seq++
	header := protocol.Header{
		CodecType: byte(codecType),
		MsgType:   msgType,
		Seq:       c.seq,
	}
	if err := protocol.Encode(c.conn, &header, body); err != nil {
		return fmt.Errorf("transport: write frame: %w", err)
	}
	return nil
}

func frameType(k message.Kind) protocol.MsgType {
	switch k {
	case message.KindError:
		return protocol.MsgTypeError
	case message.KindEvent:
		return protocol.MsgTypeEvent
	default:
		return protocol.MsgTypeCall
	}
}

func (c *Conn) Subscribe(onMessage func(any), onFault func(error)) func() {
	return c.hub.subscribe(onMessage, onFault)
}

// Close shuts the connection down. Subscribers are not notified.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.done)
	return c.conn.Close()
}

// Done is closed when the connection has been closed locally.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// recvLoop runs in a dedicated goroutine. It starts reading once somebody
// subscribed, so early frames are not lost, and ends on the first read or
// decode failure, which is reported as a fault.
func (c *Conn) recvLoop() {
	select {
	case <-c.hub.ready:
	case <-c.done:
		return
	}
	for {
		header, body, err := protocol.Decode(c.conn)
		if err != nil {
			if c.closed.Load() {
				return
			}
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf("%w: connection closed by peer", ErrClosed)
			}
			c.logger.Debug().Err(err).Msg("connection read failed")
			c.hub.fault(err)
			c.Close()
			return
		}

		switch header.MsgType {
		case protocol.MsgTypeHeartbeat:
			continue
		case protocol.MsgTypeRaw:
			c.hub.message(json.RawMessage(body))
			continue
		}

		env := new(message.Envelope)
		if err := codec.GetCodec(codec.CodecType(header.CodecType)).Decode(body, env); err != nil {
			c.logger.Warn().Err(err).Str("type", header.MsgType.String()).Msg("dropping undecodable frame")
			c.hub.fault(fmt.Errorf("transport: decode frame %d: %w", header.Seq, err))
			continue
		}
		c.hub.message(env)
	}
}

// heartbeatLoop sends periodic heartbeat frames so idle peers and
// middleboxes keep the connection open. Heartbeat frames carry no body.
func (c *Conn) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}
		header := &protocol.Header{MsgType: protocol.MsgTypeHeartbeat}
		c.sending.Lock()
		err := protocol.Encode(c.conn, header, nil)
		c.sending.Unlock()
		if err != nil {
			c.logger.Debug().Err(err).Msg("heartbeat failed")
			return
		}
	}
}
