package client

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Call represents an active call. Done receives the Call itself once it is
// settled by a response, an error, a timeout or Close.
type Call struct {
	UID    string
	Method string
	Data   any
	Reply  any   // Response data after success
	Error  error // After completion, the error status
	Done   chan *Call

	timer *time.Timer
}

func (call *Call) done() {
	select {
	case call.Done <- call:
	default:
		// Done is buffered; a full channel means the caller reused it badly.
		log.Debug().Str("method", call.Method).Msg("discarding call reply due to insufficient Done chan capacity")
	}
}

// callRegistry holds the outstanding calls. Removing an entry is the single
// settlement gate: whoever takes a call settles it, everybody else finds
// nothing.
type callRegistry struct {
	mu     sync.Mutex
	calls  map[string]*Call
	closed bool // set by drain, refuses later adds
}

func newCallRegistry() *callRegistry {
	return &callRegistry{calls: make(map[string]*Call)}
}

// add registers call and arms its timeout under the same lock, so the timer
// can never observe a half-registered call. After drain it returns ErrClosed.
func (r *callRegistry) add(call *Call, timeout time.Duration, onTimeout func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.calls[call.UID] = call
	if timeout > 0 {
		call.timer = time.AfterFunc(timeout, onTimeout)
	}
	return nil
}

// take removes and returns the call for uid, stopping its timer. It returns
// nil when the call is unknown or already settled.
func (r *callRegistry) take(uid string) *Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	call, ok := r.calls[uid]
	if !ok {
		return nil
	}
	delete(r.calls, uid)
	if call.timer != nil {
		call.timer.Stop()
	}
	return call
}

// drain removes every outstanding call and closes the registry.
func (r *callRegistry) drain() []*Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	calls := make([]*Call, 0, len(r.calls))
	for uid, call := range r.calls {
		if call.timer != nil {
			call.timer.Stop()
		}
		calls = append(calls, call)
		delete(r.calls, uid)
	}
	return calls
}

func (r *callRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
