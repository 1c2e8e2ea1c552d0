// Package events provides a small synchronous event emitter.
package events

import "sync"

// Listener receives the data passed to Emit.
type Listener func(data any)

// ListenerID identifies a registration returned by On or Once.
type ListenerID uint64

type entry struct {
	id   ListenerID
	fn   Listener
	once bool
}

// Emitter dispatches named events to registered listeners. The zero value is
// ready to use.
type Emitter struct {
	mu        sync.Mutex
	nextID    ListenerID
	listeners map[string][]entry
}

// On registers fn for the named event.
func (e *Emitter) On(name string, fn Listener) ListenerID {
	return e.add(name, fn, false)
}

// Once registers fn to run on the next emission of the named event only.
func (e *Emitter) Once(name string, fn Listener) ListenerID {
	return e.add(name, fn, true)
}

func (e *Emitter) add(name string, fn Listener, once bool) ListenerID {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[string][]entry)
	}
	e.nextID++
	e.listeners[name] = append(e.listeners[name], entry{id: e.nextID, fn: fn, once: once})
	return e.nextID
}

// Off removes a listener. It reports whether the listener was registered.
func (e *Emitter) Off(name string, id ListenerID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remove(name, id)
}

func (e *Emitter) remove(name string, id ListenerID) bool {
	list := e.listeners[name]
	for i, l := range list {
		if l.id != id {
			continue
		}
		rest := make([]entry, 0, len(list)-1)
		rest = append(rest, list[:i]...)
		rest = append(rest, list[i+1:]...)
		if len(rest) == 0 {
			delete(e.listeners, name)
		} else {
			e.listeners[name] = rest
		}
		return true
	}
	return false
}

// Emit calls every listener of the named event in registration order and
// returns how many ran. Listeners added or removed during the emission do not
// affect it.
func (e *Emitter) Emit(name string, data any) int {
	e.mu.Lock()
	snapshot := e.listeners[name]
	for _, l := range snapshot {
		if l.once {
			e.remove(name, l.id)
		}
	}
	e.mu.Unlock()

	for _, l := range snapshot {
		l.fn(data)
	}
	return len(snapshot)
}

// ListenerCount returns the number of listeners for the named event.
func (e *Emitter) ListenerCount(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[name])
}
