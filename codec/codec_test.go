package codec

import (
	"errors"
	"reflect"
	"testing"

	"chanrpc/message"
)

var envelopes = []*message.Envelope{
	message.NewRequest("uid-1", "add", map[string]any{"x": float64(1), "y": float64(2)}),
	message.NewResponse("uid-1", "add", float64(3)),
	message.NewError("uid-2", map[string]any{"name": "TypeError", "message": "boom", "stack": "TypeError: boom"}),
	message.NewError("uid-3", `Unknown RPC method "nope"`),
	message.NewEvent("tick", []any{"a", true, nil}),
	message.NewRequest("uid-4", "ping", nil),
}

func TestCodecs(t *testing.T) {
	for _, c := range []Codec{&JSONCodec{}, &BinaryCodec{}} {
		t.Run(c.Type().String(), func(t *testing.T) {
			for _, orig := range envelopes {
				data, err := c.Encode(orig)
				if err != nil {
					t.Fatalf("Encode failed: %v", err)
				}
				var decoded message.Envelope
				if err := c.Decode(data, &decoded); err != nil {
					t.Fatalf("Decode failed: %v", err)
				}
				if !reflect.DeepEqual(*orig, decoded) {
					t.Errorf("envelope mismatch:\n got %#v\nwant %#v", decoded, *orig)
				}
			}
		})
	}
}

func TestBinaryCodecRejectsTruncatedBody(t *testing.T) {
	c := &BinaryCodec{}
	data, err := c.Encode(message.NewRequest("uid", "method", "data"))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	var env message.Envelope
	if err := c.Decode(data[:len(data)-5], &env); !errors.Is(err, errShortBody) {
		t.Fatalf("expect errShortBody, got %v", err)
	}
}

func TestBinaryCodecRejectsOtherTypes(t *testing.T) {
	c := &BinaryCodec{}
	if _, err := c.Encode("not an envelope"); err == nil {
		t.Fatal("expect error for non-envelope value")
	}
}

func TestGetCodec(t *testing.T) {
	if GetCodec(CodecTypeJSON).Type() != CodecTypeJSON {
		t.Fatal("expect JSON codec")
	}
	if GetCodec(CodecTypeBinary).Type() != CodecTypeBinary {
		t.Fatal("expect binary codec")
	}
	if ct, ok := ParseCodecType("binary"); !ok || ct != CodecTypeBinary {
		t.Fatal("expect binary codec type")
	}
	if _, ok := ParseCodecType("xml"); ok {
		t.Fatal("expect unknown codec name to fail")
	}
}

func BenchmarkCodecJSON(b *testing.B) {
	cdc := GetCodec(CodecTypeJSON)
	msg := message.NewRequest("uid-1", "Arith.Add", map[string]any{"A": 1, "B": 2})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data, _ := cdc.Encode(msg)
		var out message.Envelope
		cdc.Decode(data, &out)
	}
}

func BenchmarkCodecBinary(b *testing.B) {
	cdc := GetCodec(CodecTypeBinary)
	msg := message.NewRequest("uid-1", "Arith.Add", map[string]any{"A": 1, "B": 2})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data, _ := cdc.Encode(msg)
		var out message.Envelope
		cdc.Decode(data, &out)
	}
}
