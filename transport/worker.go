package transport

import (
	"context"
	"fmt"
	"runtime"
	"strings"
)

// Worker runs a function on its own goroutine and talks to it over a Pipe.
// The Worker itself is the outer end of the pipe.
type Worker struct {
	*PipeEnd
	inner  *PipeEnd
	cancel context.CancelFunc
	done   chan struct{}
}

// Spawn starts fn with the inner end of a fresh pipe. A panic in fn does not
// crash the process: it is reported as a *Fault to the Worker's fault
// subscribers.
func Spawn(fn func(ctx context.Context, ch Channel)) *Worker {
	outer, inner := Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{PipeEnd: outer, inner: inner, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(w.done)
		defer func() {
			if r := recover(); r != nil {
				outer.Fault(panicFault(r))
			}
		}()
		fn(ctx, inner)
	}()
	return w
}

// Terminate cancels the worker's context and closes the pipe. It does not
// wait for fn to return; use Done for that.
func (w *Worker) Terminate() {
	w.cancel()
	w.PipeEnd.Close()
}

// Close is Terminate.
func (w *Worker) Close() error {
	w.Terminate()
	return nil
}

// Done is closed once fn has returned.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

func panicFault(r any) *Fault {
	f := &Fault{Message: fmt.Sprint(r)}
	if err, ok := r.(error); ok {
		f.Err = err
		f.Message = err.Error()
	}
	f.File, f.Line = panicSite()
	return f
}

// panicSite reports the first non-runtime frame above the deferred recover,
// which is where the panic was raised.
func panicSite() (string, int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(4, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") {
			return frame.File, frame.Line
		}
		if !more {
			return "", 0
		}
	}
}
