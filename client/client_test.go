package client

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"chanrpc/errcodec"
	"chanrpc/message"
	"chanrpc/server"
	"chanrpc/transfer"
	"chanrpc/transport"
)

var methods = server.Methods{
	"add": func(ctx context.Context, data any) (any, error) {
		m := data.(map[string]any)
		return m["x"].(int) + m["y"].(int), nil
	},
	"echo": func(ctx context.Context, data any) (any, error) {
		return data, nil
	},
	"sleep": func(ctx context.Context, data any) (any, error) {
		time.Sleep(data.(time.Duration))
		return "woke up", nil
	},
	"rangeError": func(ctx context.Context, data any) (any, error) {
		err := errcodec.New(errcodec.KindRangeError, "out of range")
		err.Props = map[string]any{"limit": 10}
		return nil, err
	},
}

// newPair wires a client and a server through an in-memory pipe.
func newPair(t *testing.T, opts ...Option) (*Client, *server.Server, *transport.PipeEnd) {
	t.Helper()
	a, b := transport.Pipe()
	srv := server.New(methods)
	srv.Attach(b)
	c, err := New([]transport.Channel{a}, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		c.Close()
		a.Close()
	})
	return c, srv, b
}

func TestCall(t *testing.T) {
	c, _, _ := newPair(t)

	reply, err := c.Call("add", map[string]any{"x": 1, "y": 2})
	if err != nil {
		t.Fatal(err)
	}
	if reply != 3 {
		t.Fatalf("expect 3, got %v", reply)
	}
	if c.Pending() != 0 {
		t.Fatalf("expect no pending calls, got %d", c.Pending())
	}
}

func TestConcurrentCalls(t *testing.T) {
	c, _, _ := newPair(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, err := c.Call("add", map[string]any{"x": i, "y": i})
			if err != nil {
				t.Errorf("call %d: %v", i, err)
				return
			}
			if reply != 2*i {
				t.Errorf("call %d: expect %d, got %v", i, 2*i, reply)
			}
		}()
	}
	wg.Wait()
}

func TestTimeoutSettlesOnce(t *testing.T) {
	c, _, _ := newPair(t)

	call := c.Go("sleep", 300*time.Millisecond, WithTimeout(100*time.Millisecond))
	settled := <-call.Done
	if !errors.Is(settled.Error, ErrTimeout) {
		t.Fatalf("expect timeout, got %v", settled.Error)
	}
	var te *TimeoutError
	if !errors.As(settled.Error, &te) || settled.Error.Error() != `Timeout exceeded for RPC method "sleep"` {
		t.Fatalf("unexpected timeout error %v", settled.Error)
	}

	// The late success response must be dropped
	time.Sleep(400 * time.Millisecond)
	select {
	case <-call.Done:
		t.Fatal("call settled twice")
	default:
	}
	if settled.Reply != nil {
		t.Fatalf("late reply leaked into the call: %v", settled.Reply)
	}
}

func TestZeroTimeoutDisablesTimer(t *testing.T) {
	c, _, _ := newPair(t, WithDefaultTimeout(10*time.Millisecond))

	reply, err := c.Call("sleep", 50*time.Millisecond, WithTimeout(0))
	if err != nil || reply != "woke up" {
		t.Fatalf("expect reply without timeout, got %v, %v", reply, err)
	}
	if _, err := c.Call("sleep", 50*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expect default timeout, got %v", err)
	}
}

func TestUnknownMethod(t *testing.T) {
	c, _, _ := newPair(t)

	_, err := c.Call("nonexistent", nil)
	if err == nil || !strings.Contains(err.Error(), "nonexistent") {
		t.Fatalf("expect error naming the method, got %v", err)
	}
	var remote *errcodec.Error
	if !errors.As(err, &remote) {
		t.Fatalf("expect decoded remote error, got %T", err)
	}
	if method, _ := remote.Get("method"); method != "nonexistent" {
		t.Fatalf("expect method property, got %v", method)
	}
}

func TestRemoteErrorKeepsKindAndProps(t *testing.T) {
	c, _, _ := newPair(t)

	_, err := c.Call("rangeError", nil)
	if !errors.Is(err, errcodec.KindRangeError) {
		t.Fatalf("expect RangeError, got %v", err)
	}
	var remote *errcodec.Error
	errors.As(err, &remote)
	if remote.Message != "out of range" {
		t.Fatalf("unexpected message %q", remote.Message)
	}
	if limit, _ := remote.Get("limit"); limit != int64(10) {
		t.Fatalf("expect limit property, got %#v", limit)
	}
}

func TestBareStringErrors(t *testing.T) {
	a, b := transport.Pipe()
	defer a.Close()
	c, _ := New([]transport.Channel{a}, SequentialIDs())
	defer c.Close()

	b.Subscribe(func(msg any) {
		env := msg.(*message.Envelope)
		b.Send(message.NewError(env.UID, "plain failure"), nil)
	}, nil)

	_, err := c.Call("anything", nil)
	if !errors.Is(err, errcodec.KindNonError) || !strings.Contains(err.Error(), "plain failure") {
		t.Fatalf("expect NonError with the text, got %v", err)
	}
}

// recordChannel remembers which requests were sent on it and never answers.
type recordChannel struct {
	mu   sync.Mutex
	sent []*message.Envelope
	err  error
}

func (r *recordChannel) Send(msg any, _ []any) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg.(*message.Envelope))
	return nil
}

func (r *recordChannel) Subscribe(func(any), func(error)) func() { return func() {} }
func (r *recordChannel) Close() error                           { return nil }

func (r *recordChannel) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func TestRoundRobinDistribution(t *testing.T) {
	chans := []*recordChannel{{}, {}, {}}
	c, err := New([]transport.Channel{chans[0], chans[1], chans[2]}, WithDefaultTimeout(0))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	for i := 0; i < 3; i++ {
		c.Go("m", i)
		for j, ch := range chans {
			want := 0
			if j <= i {
				want = 1
			}
			if ch.count() != want {
				t.Fatalf("after call %d channel %d has %d requests, expect %d", i, j, ch.count(), want)
			}
		}
	}
	// Wraps around to the first channel
	c.Go("m", 3)
	if chans[0].count() != 2 || chans[1].count() != 1 || chans[2].count() != 1 {
		t.Fatal("expect the 4th call on channel 0")
	}
}

func TestSequentialIDs(t *testing.T) {
	ch := &recordChannel{}
	c, _ := New([]transport.Channel{ch}, SequentialIDs(), WithDefaultTimeout(0))
	defer c.Close()

	c.Go("a", nil)
	c.Go("b", nil)
	if ch.sent[0].UID != "1" || ch.sent[1].UID != "2" {
		t.Fatalf("expect ids 1 and 2, got %q and %q", ch.sent[0].UID, ch.sent[1].UID)
	}
	if ch.sent[0].Method != "a" || !ch.sent[0].LibRPC {
		t.Fatalf("unexpected request %+v", ch.sent[0])
	}
}

func TestSendFailureSettlesCall(t *testing.T) {
	boom := errors.New("boom")
	c, _ := New([]transport.Channel{&recordChannel{err: boom}})
	defer c.Close()

	if _, err := c.Call("m", nil); !errors.Is(err, boom) {
		t.Fatalf("expect send error, got %v", err)
	}
	if c.Pending() != 0 {
		t.Fatal("failed call left in the registry")
	}
}

func TestCloseRejectsPending(t *testing.T) {
	c, _ := New([]transport.Channel{&recordChannel{}}, WithDefaultTimeout(0))

	call := c.Go("never", nil)
	if c.Pending() != 1 {
		t.Fatalf("expect 1 pending call, got %d", c.Pending())
	}
	c.Close()
	if settled := <-call.Done; !errors.Is(settled.Error, ErrClosed) {
		t.Fatalf("expect ErrClosed, got %v", settled.Error)
	}
	if _, err := c.Call("after", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expect ErrClosed after Close, got %v", err)
	}
}

func TestCallRegistryRefusesAfterDrain(t *testing.T) {
	r := newCallRegistry()
	if err := r.add(&Call{UID: "1"}, 0, nil); err != nil {
		t.Fatal(err)
	}
	if drained := r.drain(); len(drained) != 1 {
		t.Fatalf("expect 1 drained call, got %d", len(drained))
	}
	if err := r.add(&Call{UID: "2"}, 0, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expect ErrClosed after drain, got %v", err)
	}
	if r.len() != 0 {
		t.Fatalf("expect empty registry, got %d", r.len())
	}
}

// Calls racing Close on a channel the client does not own must all settle,
// even without a timeout to fall back on.
func TestCallsRacingCloseAllSettle(t *testing.T) {
	for round := 0; round < 50; round++ {
		c, _ := New([]transport.Channel{&recordChannel{}}, WithDefaultTimeout(0))

		var wg sync.WaitGroup
		calls := make(chan *Call, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				calls <- c.Go("never", nil)
			}()
		}
		c.Close()
		wg.Wait()
		close(calls)

		for call := range calls {
			select {
			case settled := <-call.Done:
				if !errors.Is(settled.Error, ErrClosed) {
					t.Fatalf("expect ErrClosed, got %v", settled.Error)
				}
			case <-time.After(time.Second):
				t.Fatal("call left unsettled after Close")
			}
		}
	}
}

func TestCallContext(t *testing.T) {
	c, _ := New([]transport.Channel{&recordChannel{}}, WithDefaultTimeout(0))
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.CallContext(ctx, "never", nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expect deadline exceeded, got %v", err)
	}
	if c.Pending() != 0 {
		t.Fatal("abandoned call left in the registry")
	}
}

func TestNewWithoutChannels(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrNoChannels) {
		t.Fatalf("expect ErrNoChannels, got %v", err)
	}
}

func TestIgnoresForeignAndUnmatchedMessages(t *testing.T) {
	c, _, b := newPair(t)

	b.Send(map[string]any{"uid": "x", "method": "add", "data": 1}, nil)
	b.Send("not rpc", nil)
	b.Send(message.NewResponse("unknown-uid", "add", 1), nil)
	b.Send(message.NewError("unknown-uid", "nope"), nil)

	reply, err := c.Call("echo", "still works")
	if err != nil || reply != "still works" {
		t.Fatalf("expect echo, got %v, %v", reply, err)
	}
}

// spyChannel records the transfer lists passed to Send.
type spyChannel struct {
	transport.Channel
	lists chan []any
}

func (s *spyChannel) Send(msg any, list []any) error {
	s.lists <- list
	return s.Channel.Send(msg, list)
}

func TestTransferPassthrough(t *testing.T) {
	buf := []byte{1, 2, 3}
	a, b := transport.Pipe()
	defer a.Close()
	spy := &spyChannel{Channel: b, lists: make(chan []any, 1)}
	server.New(server.Methods{"buffer": func(context.Context, any) (any, error) {
		return transfer.Wrap(map[string]any{"buf": buf}, buf), nil
	}}).Attach(spy)

	c, _ := New([]transport.Channel{a})
	defer c.Close()

	reply, err := c.Call("buffer", nil)
	if err != nil {
		t.Fatal(err)
	}
	list := <-spy.lists
	if len(list) != 1 || reflect.ValueOf(list[0]).Pointer() != reflect.ValueOf(buf).Pointer() {
		t.Fatalf("expect exactly the declared transfer list, got %v", list)
	}
	got := reply.(map[string]any)["buf"].([]byte)
	if reflect.ValueOf(got).Pointer() != reflect.ValueOf(buf).Pointer() {
		t.Fatal("transferred buffer must arrive by reference")
	}
}

func TestCallerTransferables(t *testing.T) {
	buf := []byte{1, 2, 3}
	a, b := transport.Pipe()
	defer a.Close()
	received := make(chan []byte, 1)
	server.New(server.Methods{"take": func(_ context.Context, data any) (any, error) {
		received <- data.([]byte)
		return nil, nil
	}}).Attach(b)

	c, _ := New([]transport.Channel{a})
	defer c.Close()
	if _, err := c.Call("take", buf, WithTransferables(buf)); err != nil {
		t.Fatal(err)
	}
	if got := <-received; reflect.ValueOf(got).Pointer() != reflect.ValueOf(buf).Pointer() {
		t.Fatal("caller transferables must arrive by reference")
	}
}

func TestEventDelivery(t *testing.T) {
	c, srv, _ := newPair(t)

	got := make(chan any, 1)
	id := c.On("x", func(data any) { got <- data })

	payload := map[string]any{"n": 1, "list": []any{"a", "b"}}
	if err := srv.Emit("x", payload); err != nil {
		t.Fatal(err)
	}
	select {
	case data := <-got:
		if !reflect.DeepEqual(data, payload) {
			t.Fatalf("expect %v, got %v", payload, data)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	c.Off("x", id)
	srv.Emit("x", payload)
	select {
	case data := <-got:
		t.Fatalf("unsubscribed listener received %v", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWorkerFaultEmitsError(t *testing.T) {
	crash := make(chan struct{})
	w := transport.Spawn(func(ctx context.Context, ch transport.Channel) {
		server.New(methods).Attach(ch)
		<-crash
		panic("worker crashed")
	})
	defer w.Terminate()

	c, _ := New([]transport.Channel{w})
	defer c.Close()

	faults := make(chan error, 1)
	c.On("error", func(data any) { faults <- data.(error) })

	if reply, err := c.Call("echo", "before"); err != nil || reply != "before" {
		t.Fatalf("expect echo, got %v, %v", reply, err)
	}

	pending := c.Go("sleep", time.Second, WithTimeout(200*time.Millisecond))
	close(crash)

	select {
	case err := <-faults:
		var fault *transport.Fault
		if !errors.As(err, &fault) || fault.Message != "worker crashed" {
			t.Fatalf("expect worker fault, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("fault not emitted")
	}

	// Faults leave calls to their timeouts
	if settled := <-pending.Done; !errors.Is(settled.Error, ErrTimeout) {
		t.Fatalf("expect timeout, got %v", settled.Error)
	}
}
