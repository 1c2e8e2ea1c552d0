package transport

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestWorkerEcho(t *testing.T) {
	w := Spawn(func(ctx context.Context, ch Channel) {
		ch.Subscribe(func(msg any) { ch.Send(msg, nil) }, nil)
		<-ctx.Done()
	})
	defer w.Terminate()

	got := make(chan any, 1)
	w.Subscribe(func(msg any) { got <- msg }, nil)
	w.Send("ping", nil)
	if v := receive(t, got); v != "ping" {
		t.Fatalf("expect ping, got %v", v)
	}
}

func TestWorkerPanicBecomesFault(t *testing.T) {
	w := Spawn(func(ctx context.Context, ch Channel) {
		panic("worker exploded")
	})
	defer w.Terminate()

	faults := make(chan any, 1)
	w.Subscribe(nil, func(err error) { faults <- err })

	err := receive(t, faults).(error)
	var fault *Fault
	if !errors.As(err, &fault) {
		t.Fatalf("expect *Fault, got %T", err)
	}
	if fault.Message != "worker exploded" {
		t.Fatalf("unexpected message %q", fault.Message)
	}
	if !strings.HasSuffix(fault.File, "worker_test.go") || fault.Line == 0 {
		t.Fatalf("expect panic site in worker_test.go, got %s:%d", fault.File, fault.Line)
	}
}

func TestWorkerPanicWithError(t *testing.T) {
	boom := errors.New("boom")
	w := Spawn(func(ctx context.Context, ch Channel) {
		panic(boom)
	})
	defer w.Terminate()

	faults := make(chan any, 1)
	w.Subscribe(nil, func(err error) { faults <- err })
	if err := receive(t, faults).(error); !errors.Is(err, boom) {
		t.Fatalf("expect fault wrapping boom, got %v", err)
	}
}

func TestWorkerTerminate(t *testing.T) {
	w := Spawn(func(ctx context.Context, ch Channel) {
		<-ctx.Done()
	})
	w.Terminate()

	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	if err := w.Send(1, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expect ErrClosed, got %v", err)
	}
}
