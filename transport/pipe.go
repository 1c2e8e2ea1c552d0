package transport

import (
	"sync"
)

type pipeItem struct {
	msg   any
	fault error
}

// PipeEnd is one side of an in-process channel created by Pipe.
type PipeEnd struct {
	peer *PipeEnd
	hub  *hub

	mu     sync.Mutex
	queue  []pipeItem
	signal chan struct{}
	closed bool
	done   chan struct{}
}

// Pipe returns two connected ends. A message sent on one end is delivered to
// the subscribers of the other, asynchronously and in send order. Messages
// are structurally cloned unless listed for transfer, so neither side
// observes the other's mutations of maps, slices, pointers and exported
// struct fields. Unexported struct fields are copied by value only; see Clone.
func Pipe() (*PipeEnd, *PipeEnd) {
	a, b := newPipeEnd(), newPipeEnd()
	a.peer, b.peer = b, a
	go a.deliverLoop()
	go b.deliverLoop()
	return a, b
}

func newPipeEnd() *PipeEnd {
	return &PipeEnd{
		hub:    newHub(),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Send clones msg and queues it for the peer.
func (p *PipeEnd) Send(msg any, transfer []any) error {
	if p.isClosed() {
		return ErrClosed
	}
	cloned, err := Clone(msg, transfer)
	if err != nil {
		return err
	}
	return p.peer.enqueue(pipeItem{msg: cloned})
}

// Fault delivers err to this end's fault subscribers, after any message
// already queued for them.
func (p *PipeEnd) Fault(err error) {
	p.enqueue(pipeItem{fault: err})
}

func (p *PipeEnd) Subscribe(onMessage func(any), onFault func(error)) func() {
	return p.hub.subscribe(onMessage, onFault)
}

// Close shuts both ends down. Queued messages are discarded.
func (p *PipeEnd) Close() error {
	p.shutdown()
	p.peer.shutdown()
	return nil
}

func (p *PipeEnd) shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.queue = nil
	close(p.done)
}

func (p *PipeEnd) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *PipeEnd) enqueue(item pipeItem) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.queue = append(p.queue, item)
	p.mu.Unlock()

	select {
	case p.signal <- struct{}{}:
	default:
	}
	return nil
}

func (p *PipeEnd) drain() []pipeItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	items := p.queue
	p.queue = nil
	return items
}

// deliverLoop waits for the first subscriber, then hands queued items over
// one at a time.
func (p *PipeEnd) deliverLoop() {
	select {
	case <-p.hub.ready:
	case <-p.done:
		return
	}
	for {
		select {
		case <-p.done:
			return
		case <-p.signal:
		}
		for _, item := range p.drain() {
			if p.isClosed() {
				return
			}
			if item.fault != nil {
				p.hub.fault(item.fault)
				continue
			}
			p.hub.message(item.msg)
		}
	}
}
