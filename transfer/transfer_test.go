package transfer

import (
	"bytes"
	"image"
	"testing"
)

type handle struct{ id int }

func (*handle) Transferable() {}

func TestUnwrap(t *testing.T) {
	buf := []byte{1, 2, 3}
	value, list, ok := Unwrap(Wrap("payload", buf))
	if !ok || value != "payload" {
		t.Fatalf("unexpected unwrap: %v %v", value, ok)
	}
	if len(list) != 1 {
		t.Fatalf("expect 1 transferable, got %d", len(list))
	}

	value, list, ok = Unwrap(42)
	if ok || value != 42 || list != nil {
		t.Fatalf("plain values must pass through, got %v %v %v", value, list, ok)
	}
}

func TestDetect(t *testing.T) {
	buf := []byte("abc")
	ch := make(chan int)
	h := &handle{id: 1}
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	b := bytes.NewBufferString("x")

	v := map[string]any{
		"buf":   buf,
		"again": buf,
		"ch":    ch,
		"nested": []any{
			struct {
				Handle *handle
				Name   string
			}{Handle: h, Name: "n"},
		},
		"img":  img,
		"text": "no",
		"num":  3,
		"b":    b,
	}

	found := Detect(v)
	if len(found) != 5 {
		t.Fatalf("expect 5 transferables, got %d: %v", len(found), found)
	}
}

func TestDetectNothing(t *testing.T) {
	if found := Detect(map[string]any{"x": 1, "y": "z"}); len(found) != 0 {
		t.Fatalf("expect nothing, got %v", found)
	}
	if found := Detect(nil); len(found) != 0 {
		t.Fatalf("expect nothing for nil, got %v", found)
	}
}

func TestDetectCycle(t *testing.T) {
	m := map[string]any{"buf": []byte{1}}
	m["self"] = m
	if found := Detect(m); len(found) != 1 {
		t.Fatalf("expect 1 transferable, got %d", len(found))
	}
}
