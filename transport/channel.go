// Package transport provides the message channels RPC runs over.
//
// A Channel is an asynchronous, bidirectional message pipe with no built-in
// correlation: Send posts one message, Subscribe receives every message the
// other side posts plus transport-level faults. Implementations:
//
//	Pipe    in-process pair of ends with structured-clone semantics
//	Worker  a goroutine wired to one end of a Pipe; panics surface as faults
//	Conn    framed messages over a net.Conn, heartbeats keep it alive
package transport

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrClosed is returned by Send after the channel was closed.
	ErrClosed = errors.New("transport: channel closed")
	// ErrDataClone is returned by Send when the message cannot be copied,
	// e.g. it holds a function or a channel that is not listed for transfer.
	ErrDataClone = errors.New("transport: value could not be cloned")
)

// Channel is the bidirectional message pipe the client and server share.
type Channel interface {
	// Send posts msg to the other side. Values listed in transfer are handed
	// over by reference instead of being copied.
	Send(msg any, transfer []any) error
	// Subscribe registers callbacks for incoming messages and faults. Each
	// channel invokes them from a single goroutine, one message at a time.
	Subscribe(onMessage func(msg any), onFault func(err error)) (cancel func())
	Close() error
}

// Fault describes an uncaught failure on the far side of a channel.
type Fault struct {
	Message string
	File    string
	Line    int
	Err     error // original panic value when it was an error
}

func (f *Fault) Error() string {
	if f.File == "" {
		return f.Message
	}
	return fmt.Sprintf("%s (%s:%d)", f.Message, f.File, f.Line)
}

func (f *Fault) Unwrap() error { return f.Err }

type subscriber struct {
	id        int
	onMessage func(any)
	onFault   func(error)
}

// hub fans incoming traffic out to subscribers. Delivery loops wait on ready,
// so nothing is dropped before the first subscriber arrives.
type hub struct {
	mu        sync.Mutex
	nextID    int
	subs      []subscriber
	ready     chan struct{}
	readyOnce sync.Once
}

func newHub() *hub {
	return &hub{ready: make(chan struct{})}
}

func (h *hub) subscribe(onMessage func(any), onFault func(error)) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs = append(h.subs, subscriber{id: id, onMessage: onMessage, onFault: onFault})
	h.mu.Unlock()
	h.readyOnce.Do(func() { close(h.ready) })

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			for i, s := range h.subs {
				if s.id == id {
					h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (h *hub) snapshot() []subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subs
}

func (h *hub) message(msg any) {
	for _, s := range h.snapshot() {
		if s.onMessage != nil {
			s.onMessage(msg)
		}
	}
}

func (h *hub) fault(err error) {
	for _, s := range h.snapshot() {
		if s.onFault != nil {
			s.onFault(err)
		}
	}
}
