package transport

import (
	"errors"
	"testing"
	"time"
)

func receive(t *testing.T, ch <-chan any) any {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestPipeOrderedDelivery(t *testing.T) {
	a, b := Pipe()
	defer a.Close()

	got := make(chan any, 100)
	b.Subscribe(func(msg any) { got <- msg }, nil)

	for i := 0; i < 100; i++ {
		if err := a.Send(i, nil); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 100; i++ {
		if v := receive(t, got); v != i {
			t.Fatalf("expect %d, got %v", i, v)
		}
	}
}

func TestPipeQueuesUntilSubscribed(t *testing.T) {
	a, b := Pipe()
	defer a.Close()

	if err := a.Send("early", nil); err != nil {
		t.Fatal(err)
	}
	got := make(chan any, 1)
	b.Subscribe(func(msg any) { got <- msg }, nil)
	if v := receive(t, got); v != "early" {
		t.Fatalf("expect early message, got %v", v)
	}
}

func TestPipeIsAsynchronous(t *testing.T) {
	a, b := Pipe()
	defer a.Close()

	release := make(chan struct{})
	b.Subscribe(func(any) { <-release }, nil)

	// Send must return while the receiver is still busy
	done := make(chan struct{})
	go func() {
		a.Send(1, nil)
		a.Send(2, nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Send blocked on a busy receiver")
	}
	close(release)
}

func TestPipeClonesMessages(t *testing.T) {
	a, b := Pipe()
	defer a.Close()

	got := make(chan any, 1)
	b.Subscribe(func(msg any) { got <- msg }, nil)

	orig := map[string]any{"n": 1}
	a.Send(orig, nil)
	received := receive(t, got).(map[string]any)
	received["n"] = 2
	if orig["n"] != 1 {
		t.Fatal("receiver mutation leaked to sender")
	}
}

func TestPipeSendUncloneable(t *testing.T) {
	a, _ := Pipe()
	defer a.Close()

	if err := a.Send(func() {}, nil); !errors.Is(err, ErrDataClone) {
		t.Fatalf("expect ErrDataClone, got %v", err)
	}
}

func TestPipeFault(t *testing.T) {
	a, _ := Pipe()
	defer a.Close()

	faults := make(chan any, 1)
	a.Subscribe(nil, func(err error) { faults <- err })

	boom := errors.New("boom")
	a.Fault(boom)
	if err := receive(t, faults); err != boom {
		t.Fatalf("expect injected fault, got %v", err)
	}
}

func TestPipeUnsubscribe(t *testing.T) {
	a, b := Pipe()
	defer a.Close()

	first := make(chan any, 10)
	second := make(chan any, 10)
	cancel := b.Subscribe(func(msg any) { first <- msg }, nil)
	b.Subscribe(func(msg any) { second <- msg }, nil)

	a.Send(1, nil)
	receive(t, first)
	receive(t, second)

	cancel()
	cancel()
	a.Send(2, nil)
	if v := receive(t, second); v != 2 {
		t.Fatalf("expect 2, got %v", v)
	}
	select {
	case v := <-first:
		t.Fatalf("cancelled subscriber received %v", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPipeClose(t *testing.T) {
	a, b := Pipe()
	a.Close()

	if err := a.Send(1, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expect ErrClosed, got %v", err)
	}
	if err := b.Send(1, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expect ErrClosed on peer, got %v", err)
	}
}
