package errcodec

import "sync"

// Constructor turns a decoded base error into the caller's own error type.
// The base already carries every property that travelled on the wire.
type Constructor func(base *Error) error

var (
	constructorsMu sync.RWMutex
	constructors   = map[string]Constructor{}
)

func init() {
	for _, k := range []Kind{
		KindError,
		KindEvalError,
		KindRangeError,
		KindReferenceError,
		KindSyntaxError,
		KindTypeError,
		KindURIError,
		KindAggregateError,
	} {
		constructors[string(k)] = base
	}
}

func base(e *Error) error { return e }

// Register installs a constructor for errors named name, replacing any
// previous one.
func Register(name string, ctor Constructor) {
	if ctor == nil {
		ctor = base
	}
	constructorsMu.Lock()
	defer constructorsMu.Unlock()
	constructors[name] = ctor
}

// Unregister removes a constructor. Built-in kinds can be removed too; they
// then decode through the base constructor like any unknown name.
func Unregister(name string) {
	constructorsMu.Lock()
	defer constructorsMu.Unlock()
	delete(constructors, name)
}

// Lookup returns the constructor registered for name.
func Lookup(name string) (Constructor, bool) {
	constructorsMu.RLock()
	defer constructorsMu.RUnlock()
	ctor, ok := constructors[name]
	return ctor, ok
}
