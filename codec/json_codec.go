package codec

import (
	"encoding/json"
)

// JSONCodec writes envelopes in their wire JSON shape.
// Pros: human-readable, identical to what in-process channels carry.
// Cons: field names repeated in every frame.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
