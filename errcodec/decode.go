package errcodec

import "reflect"

// IsErrorLike reports whether v is a mapping carrying string name, message
// and stack fields, the shape Encode produces for errors.
func IsErrorLike(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	for _, key := range []string{"name", "message", "stack"} {
		if _, ok := m[key].(string); !ok {
			return false
		}
	}
	return true
}

// decodable is the minimum shape Decode reconstructs: a mapping with a string
// message. Anything else becomes a NonError.
func decodable(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	if _, ok := m["message"].(string); !ok {
		return nil, false
	}
	return m, true
}

// Decode reconstructs an error from its encoded form. Errors pass through
// unchanged; values that are not error shaped are wrapped as NonError.
func Decode(v any) error {
	d := &decoder{ancestors: make(map[uintptr]bool)}
	return d.decode(v)
}

type decoder struct {
	ancestors map[uintptr]bool
}

func (d *decoder) decode(v any) error {
	if err, ok := v.(error); ok {
		return err
	}
	m, ok := decodable(v)
	if !ok {
		return NonError(v)
	}
	key := reflect.ValueOf(m).Pointer()
	if d.ancestors[key] {
		return NonError(Circular)
	}
	d.ancestors[key] = true
	defer delete(d.ancestors, key)

	base := &Error{Name: string(KindError)}
	base.Message, _ = m["message"].(string)
	if name, ok := m["name"].(string); ok {
		base.Name = name
	}
	base.Stack, _ = m["stack"].(string)

	for k, val := range m {
		switch k {
		case "name", "message", "stack":
			if _, ok := val.(string); ok {
				continue
			}
			base.setProp(k, val)
		case "cause":
			if _, ok := decodable(val); ok {
				base.Cause = d.decode(val)
				continue
			}
			if val != nil {
				base.setProp(k, val)
			}
		case "errors":
			list, ok := val.([]any)
			if !ok {
				base.setProp(k, val)
				continue
			}
			base.Errors = make([]error, 0, len(list))
			for _, item := range list {
				base.Errors = append(base.Errors, d.decode(item))
			}
		default:
			if IsErrorLike(val) {
				base.setProp(k, d.decode(val))
				continue
			}
			base.setProp(k, val)
		}
	}

	if ctor, ok := Lookup(base.Name); ok {
		if err := ctor(base); err != nil {
			return err
		}
	}
	return base
}

func (e *Error) setProp(k string, v any) {
	if e.Props == nil {
		e.Props = make(map[string]any)
	}
	e.Props[k] = v
}
