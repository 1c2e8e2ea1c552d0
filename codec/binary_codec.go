package codec

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"chanrpc/message"
)

const (
	flagLibRPC byte = 1 << iota
	flagData
	flagError
)

var errShortBody = errors.New("BinaryCodec: truncated body")

// BinaryCodec packs the envelope's string fields with length prefixes and
// carries data and error as JSON blobs.
//
//	flags(1) | uidLen(2) uid | methodLen(2) method | eventLen(2) eventName |
//	dataLen(4) data | errLen(4) error
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	env, ok := v.(*message.Envelope)
	if !ok {
		return nil, errors.New("BinaryCodec: v must be *message.Envelope")
	}

	var flags byte
	if env.LibRPC {
		flags |= flagLibRPC
	}
	var data, errBlob []byte
	var err error
	if env.Data != nil {
		flags |= flagData
		if data, err = json.Marshal(env.Data); err != nil {
			return nil, fmt.Errorf("BinaryCodec: encode data: %w", err)
		}
	}
	if env.Error != nil {
		flags |= flagError
		if errBlob, err = json.Marshal(env.Error); err != nil {
			return nil, fmt.Errorf("BinaryCodec: encode error: %w", err)
		}
	}

	for _, s := range []string{env.UID, env.Method, env.EventName} {
		if len(s) > 0xFFFF {
			return nil, fmt.Errorf("BinaryCodec: field too long: %d bytes", len(s))
		}
	}

	total := 1 + 2 + len(env.UID) + 2 + len(env.Method) + 2 + len(env.EventName) + 4 + len(data) + 4 + len(errBlob)
	buf := make([]byte, 0, total)
	buf = append(buf, flags)
	buf = appendString(buf, env.UID)
	buf = appendString(buf, env.Method)
	buf = appendString(buf, env.EventName)
	buf = appendBlob(buf, data)
	buf = appendBlob(buf, errBlob)
	return buf, nil
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

func appendBlob(buf []byte, b []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	env, ok := v.(*message.Envelope)
	if !ok {
		return errors.New("BinaryCodec: v must be *message.Envelope")
	}

	r := reader{buf: data}
	flags := r.byte()
	uid := r.string()
	method := r.string()
	eventName := r.string()
	dataBlob := r.blob()
	errBlob := r.blob()
	if r.err != nil {
		return r.err
	}

	*env = message.Envelope{
		UID:       uid,
		Method:    method,
		EventName: eventName,
		LibRPC:    flags&flagLibRPC != 0,
	}
	if flags&flagData != 0 {
		if err := json.Unmarshal(dataBlob, &env.Data); err != nil {
			return fmt.Errorf("BinaryCodec: decode data: %w", err)
		}
	}
	if flags&flagError != 0 {
		if err := json.Unmarshal(errBlob, &env.Error); err != nil {
			return fmt.Errorf("BinaryCodec: decode error: %w", err)
		}
	}
	return nil
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}

type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.err = errShortBody
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) byte() byte {
	b := r.next(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) string() string {
	n := r.next(2)
	if n == nil {
		return ""
	}
	return string(r.next(int(binary.BigEndian.Uint16(n))))
}

func (r *reader) blob() []byte {
	n := r.next(4)
	if n == nil {
		return nil
	}
	return r.next(int(binary.BigEndian.Uint32(n)))
}
