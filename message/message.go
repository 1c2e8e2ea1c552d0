// Package message defines the envelope exchanged between client and server.
//
// Every envelope carries the `libRpc: true` marker. It is the only thing that
// separates RPC traffic from unrelated messages sharing the same channel, so
// Parse rejects anything without it.
//
//   - Request:          {uid, method, data, libRpc}
//   - Response-success: {uid, method, data, libRpc}
//   - Response-error:   {uid, error, libRpc}
//   - Event:            {eventName, data, libRpc}
package message

import (
	"encoding/json"
)

// Kind tells which of the envelope shapes is populated.
type Kind int

const (
	KindUnknown Kind = iota
	KindCall         // request or success response, distinguished only by direction
	KindError
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindCall:
		return "call"
	case KindError:
		return "error"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Envelope is one message unit on a channel.
type Envelope struct {
	UID       string // Correlation id, absent on events
	Method    string // Remote procedure name (request and success response)
	Data      any    // Arguments, result or event payload
	Error     any    // errcodec.Object or a bare string
	EventName string // Pushed event name
	LibRPC    bool   // Must be true for the envelope to be considered at all
}

// NewRequest builds the envelope the client sends for a call.
func NewRequest(uid, method string, data any) *Envelope {
	return &Envelope{UID: uid, Method: method, Data: data, LibRPC: true}
}

// NewResponse builds a success response for uid.
func NewResponse(uid, method string, data any) *Envelope {
	return &Envelope{UID: uid, Method: method, Data: data, LibRPC: true}
}

// NewError builds an error response for uid.
func NewError(uid string, err any) *Envelope {
	return &Envelope{UID: uid, Error: err, LibRPC: true}
}

// NewEvent builds an unsolicited event.
func NewEvent(eventName string, data any) *Envelope {
	return &Envelope{EventName: eventName, Data: data, LibRPC: true}
}

// HasError reports whether the error field is meaningfully populated.
func (e *Envelope) HasError() bool {
	switch v := e.Error.(type) {
	case nil:
		return false
	case string:
		return v != ""
	case bool:
		return v
	default:
		return true
	}
}

// Kind classifies the envelope using the same precedence the client applies:
// error first, then method, then eventName.
func (e *Envelope) Kind() Kind {
	switch {
	case e.HasError():
		return KindError
	case e.Method != "":
		return KindCall
	case e.EventName != "":
		return KindEvent
	default:
		return KindUnknown
	}
}

type callWire struct {
	UID    string `json:"uid"`
	Method string `json:"method"`
	Data   any    `json:"data"`
	LibRPC bool   `json:"libRpc"`
}

type errorWire struct {
	UID    string `json:"uid"`
	Error  any    `json:"error"`
	LibRPC bool   `json:"libRpc"`
}

type eventWire struct {
	EventName string `json:"eventName"`
	Data      any    `json:"data"`
	LibRPC    bool   `json:"libRpc"`
}

type looseWire struct {
	UID       string `json:"uid,omitempty"`
	Method    string `json:"method,omitempty"`
	EventName string `json:"eventName,omitempty"`
	Data      any    `json:"data,omitempty"`
	Error     any    `json:"error,omitempty"`
	LibRPC    bool   `json:"libRpc"`
}

// MarshalJSON writes only the fields that belong to the envelope's kind.
func (e Envelope) MarshalJSON() ([]byte, error) {
	switch e.Kind() {
	case KindError:
		return json.Marshal(errorWire{UID: e.UID, Error: e.Error, LibRPC: e.LibRPC})
	case KindCall:
		return json.Marshal(callWire{UID: e.UID, Method: e.Method, Data: e.Data, LibRPC: e.LibRPC})
	case KindEvent:
		return json.Marshal(eventWire{EventName: e.EventName, Data: e.Data, LibRPC: e.LibRPC})
	default:
		return json.Marshal(looseWire{
			UID: e.UID, Method: e.Method, EventName: e.EventName,
			Data: e.Data, Error: e.Error, LibRPC: e.LibRPC,
		})
	}
}

// UnmarshalJSON accepts any JSON object; fields of the wrong type are left empty.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*e = fromMap(m)
	return nil
}

// Parse turns a raw incoming message into an envelope. The second result is
// false when the message is not RPC traffic.
func Parse(raw any) (*Envelope, bool) {
	var env Envelope
	switch v := raw.(type) {
	case *Envelope:
		if v == nil {
			return nil, false
		}
		env = *v
	case Envelope:
		env = v
	case map[string]any:
		env = fromMap(v)
	case json.RawMessage:
		if err := env.UnmarshalJSON(v); err != nil {
			return nil, false
		}
	case []byte:
		if err := env.UnmarshalJSON(v); err != nil {
			return nil, false
		}
	default:
		return nil, false
	}
	if !env.LibRPC {
		return nil, false
	}
	return &env, true
}

func fromMap(m map[string]any) Envelope {
	var env Envelope
	env.LibRPC, _ = m["libRpc"].(bool)
	env.UID, _ = m["uid"].(string)
	env.Method, _ = m["method"].(string)
	env.EventName, _ = m["eventName"].(string)
	env.Data = m["data"]
	env.Error = m["error"]
	return env
}
