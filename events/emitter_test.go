package events

import (
	"reflect"
	"testing"
)

func TestEmitOrder(t *testing.T) {
	var e Emitter
	var got []string
	e.On("tick", func(data any) { got = append(got, "a:"+data.(string)) })
	e.On("tick", func(data any) { got = append(got, "b:"+data.(string)) })
	e.On("other", func(any) { t.Fatal("wrong event") })

	if n := e.Emit("tick", "1"); n != 2 {
		t.Fatalf("expect 2 listeners, got %d", n)
	}
	if want := []string{"a:1", "b:1"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expect %v, got %v", want, got)
	}
}

func TestOnce(t *testing.T) {
	var e Emitter
	calls := 0
	e.Once("ready", func(any) { calls++ })

	e.Emit("ready", nil)
	e.Emit("ready", nil)
	if calls != 1 {
		t.Fatalf("expect 1 call, got %d", calls)
	}
	if n := e.ListenerCount("ready"); n != 0 {
		t.Fatalf("expect no listeners, got %d", n)
	}
}

func TestOff(t *testing.T) {
	var e Emitter
	id := e.On("x", func(any) { t.Fatal("removed listener ran") })
	if !e.Off("x", id) {
		t.Fatal("expect Off to report removal")
	}
	if e.Off("x", id) {
		t.Fatal("second Off must report false")
	}
	if n := e.Emit("x", nil); n != 0 {
		t.Fatalf("expect 0 listeners, got %d", n)
	}
}

func TestListenerMayUnsubscribeDuringEmit(t *testing.T) {
	var e Emitter
	calls := 0
	var id ListenerID
	id = e.On("x", func(any) {
		calls++
		e.Off("x", id)
	})
	e.On("x", func(any) { calls++ })

	e.Emit("x", nil)
	e.Emit("x", nil)
	if calls != 3 {
		t.Fatalf("expect 3 calls, got %d", calls)
	}
}
