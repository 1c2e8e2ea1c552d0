package message

import (
	"encoding/json"
	"testing"
)

func TestMarshalShapes(t *testing.T) {
	cases := []struct {
		name   string
		env    *Envelope
		expect string
	}{
		{"request", NewRequest("1", "add", map[string]any{"x": 1}), `{"uid":"1","method":"add","data":{"x":1},"libRpc":true}`},
		{"error", NewError("2", "boom"), `{"uid":"2","error":"boom","libRpc":true}`},
		{"event", NewEvent("tick", 3), `{"eventName":"tick","data":3,"libRpc":true}`},
		{"null data", NewResponse("3", "noop", nil), `{"uid":"3","method":"noop","data":null,"libRpc":true}`},
	}

	for _, tc := range cases {
		data, err := json.Marshal(tc.env)
		if err != nil {
			t.Fatalf("%s: marshal failed: %v", tc.name, err)
		}
		if string(data) != tc.expect {
			t.Fatalf("%s: expect %s, got %s", tc.name, tc.expect, data)
		}
	}
}

func TestParseIgnoresForeignTraffic(t *testing.T) {
	foreign := []any{
		nil,
		"hello",
		42,
		map[string]any{"uid": "1", "method": "add"},
		map[string]any{"uid": "1", "method": "add", "libRpc": "true"},
		[]byte(`{"type":"ping"}`),
		[]byte(`not json`),
		&Envelope{UID: "1", Method: "add"},
		(*Envelope)(nil),
	}
	for i, raw := range foreign {
		if env, ok := Parse(raw); ok {
			t.Fatalf("case %d: expect message to be ignored, got %+v", i, env)
		}
	}
}

func TestParseKinds(t *testing.T) {
	cases := []struct {
		raw  any
		kind Kind
	}{
		{map[string]any{"uid": "1", "method": "add", "data": 2.0, "libRpc": true}, KindCall},
		{map[string]any{"uid": "1", "error": map[string]any{"message": "x"}, "libRpc": true}, KindError},
		{map[string]any{"uid": "1", "error": "", "method": "add", "libRpc": true}, KindCall},
		{map[string]any{"eventName": "tick", "data": nil, "libRpc": true}, KindEvent},
		{map[string]any{"libRpc": true}, KindUnknown},
		{json.RawMessage(`{"eventName":"tick","data":[1,2],"libRpc":true}`), KindEvent},
		{*NewRequest("9", "echo", "hi"), KindCall},
	}
	for i, tc := range cases {
		env, ok := Parse(tc.raw)
		if !ok {
			t.Fatalf("case %d: expect envelope to parse", i)
		}
		if env.Kind() != tc.kind {
			t.Fatalf("case %d: expect kind %s, got %s", i, tc.kind, env.Kind())
		}
	}
}

func TestParseCopiesEnvelope(t *testing.T) {
	orig := NewRequest("1", "add", 1)
	env, ok := Parse(orig)
	if !ok {
		t.Fatal("expect envelope to parse")
	}
	env.UID = "changed"
	if orig.UID != "1" {
		t.Fatalf("Parse must not alias the original envelope, uid is now %s", orig.UID)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	req := NewRequest("abc", "sum", []any{1.0, 2.0})
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	var got Envelope
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Failed to unmarshal request: %v", err)
	}
	if got.UID != "abc" || got.Method != "sum" || !got.LibRPC {
		t.Fatalf("unexpected envelope: %+v", got)
	}
	if args, ok := got.Data.([]any); !ok || len(args) != 2 {
		t.Fatalf("unexpected data: %#v", got.Data)
	}
}
