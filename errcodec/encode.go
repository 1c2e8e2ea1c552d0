package errcodec

import (
	"encoding/json"
	"errors"
	"fmt"
	"go/token"
	"io"
	"reflect"
	"strings"
	"time"
)

// DefaultMaxDepth bounds how many property hops Encode follows.
const DefaultMaxDepth = 10

// Circular replaces a value that is already an ancestor on the current path.
const Circular = "[Circular]"

const isoMillis = "2006-01-02T15:04:05.000Z"

type options struct {
	useToJSON bool
	maxDepth  int
}

// Option tunes Encode.
type Option func(*options)

// WithMaxDepth sets the number of nested hops kept. Zero yields an empty mapping.
func WithMaxDepth(n int) Option {
	return func(o *options) { o.maxDepth = n }
}

// WithToJSON controls whether custom json.Marshaler implementations shape the output.
func WithToJSON(enabled bool) Option {
	return func(o *options) { o.useToJSON = enabled }
}

// WithoutToJSON is WithToJSON(false).
func WithoutToJSON() Option { return WithToJSON(false) }

// Encode serializes v into a plain mapping. Errors, maps and structs are
// walked; any other value is wrapped as a NonError first. The input is never
// modified and the result shares no containers with it.
func Encode(v any, opts ...Option) Object {
	o := options{useToJSON: true, maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(&o)
	}
	enc := &encoder{opts: o, ancestors: make(map[ref]int)}
	if v != nil {
		if out, keep := enc.value(reflect.ValueOf(v), 0); keep {
			if obj, ok := out.(Object); ok {
				return obj
			}
		}
	}
	out, _ := enc.value(reflect.ValueOf(NonError(v)), 0)
	return out.(Object)
}

type encoder struct {
	opts      options
	ancestors map[ref]int
}

// ref identifies a reference value. The type is part of the key because a
// struct and its first field share an address.
type ref struct {
	typ reflect.Type
	ptr uintptr
	n   int
}

func refOf(v reflect.Value) (ref, bool) {
	switch v.Kind() {
	case reflect.Ptr, reflect.Map:
		if v.IsNil() {
			return ref{}, false
		}
		return ref{typ: v.Type(), ptr: v.Pointer()}, true
	case reflect.Slice:
		if v.Len() == 0 {
			return ref{}, false
		}
		return ref{typ: v.Type(), ptr: v.Pointer(), n: v.Len()}, true
	}
	return ref{}, false
}

// value encodes v found depth hops below the root. keep is false when the
// value must be dropped from its parent.
func (e *encoder) value(v reflect.Value, depth int) (out any, keep bool) {
	for v.IsValid() && v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, true
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return nil, true
	}

	switch v.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return nil, false
	case reflect.Ptr:
		if v.IsNil() {
			return nil, true
		}
	default:
		if out, ok := basic(v); ok {
			if err, isErr := asError(v); isErr {
				return e.errorValue(err, v, depth), true
			}
			return out, true
		}
	}
	if !v.CanInterface() {
		return nil, false
	}

	if r, ok := refOf(v); ok {
		if e.ancestors[r] > 0 {
			return Circular, true
		}
		e.ancestors[r]++
		defer func() { e.ancestors[r]-- }()
	}

	iface := v.Interface()
	switch x := iface.(type) {
	case time.Time:
		return x.UTC().Format(isoMillis), true
	case *time.Time:
		return x.UTC().Format(isoMillis), true
	case []byte:
		if x == nil {
			return nil, true
		}
		return append([]byte(nil), x...), true
	}
	if e.opts.useToJSON {
		if m, ok := customMarshaler(iface); ok {
			return e.fromJSON(m, depth)
		}
	}
	if err, ok := iface.(error); ok {
		return e.errorValue(err, v, depth), true
	}
	if _, ok := iface.(io.Reader); ok {
		return "[object Stream]", true
	}

	switch v.Kind() {
	case reflect.Ptr:
		return e.value(v.Elem(), depth)
	case reflect.Map:
		return e.mapValue(v, depth), true
	case reflect.Slice, reflect.Array:
		return e.sliceValue(v, depth), true
	case reflect.Struct:
		obj := Object{}
		if depth < e.opts.maxDepth {
			e.structFields(v, depth, obj)
		}
		return obj, true
	}
	return fmt.Sprint(iface), true
}

// basic returns the plain form of scalar kinds.
func basic(v reflect.Value) (any, bool) {
	switch v.Kind() {
	case reflect.Bool:
		return v.Bool(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint(), true
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	case reflect.Complex64, reflect.Complex128:
		return fmt.Sprint(v.Complex()), true
	case reflect.String:
		return v.String(), true
	}
	return nil, false
}

func asError(v reflect.Value) (error, bool) {
	if !v.CanInterface() {
		return nil, false
	}
	err, ok := v.Interface().(error)
	return err, ok
}

func customMarshaler(v any) (json.Marshaler, bool) {
	switch v.(type) {
	case *Error, Kind:
		return nil, false
	}
	m, ok := v.(json.Marshaler)
	return m, ok
}

// fromJSON encodes whatever a custom marshaler produced in place of the value.
func (e *encoder) fromJSON(m json.Marshaler, depth int) (any, bool) {
	raw, ok := try(func() []byte {
		b, err := m.MarshalJSON()
		if err != nil {
			return nil
		}
		return b
	})
	if !ok || raw == nil {
		return nil, false
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, false
	}
	return e.value(reflect.ValueOf(decoded), depth)
}

func (e *encoder) mapValue(v reflect.Value, depth int) Object {
	obj := Object{}
	if depth >= e.opts.maxDepth {
		return obj
	}
	iter := v.MapRange()
	for iter.Next() {
		if out, keep := e.value(iter.Value(), depth+1); keep {
			obj[keyString(iter.Key())] = out
		}
	}
	return obj
}

func (e *encoder) sliceValue(v reflect.Value, depth int) []any {
	if depth >= e.opts.maxDepth {
		return []any{}
	}
	out := make([]any, v.Len())
	for i := range out {
		if item, keep := e.value(v.Index(i), depth+1); keep {
			out[i] = item
		}
	}
	return out
}

// structFields copies exported fields into obj using their JSON names.
// Embedded errors are skipped: the outer error already carries their text.
func (e *encoder) structFields(v reflect.Value, depth int, obj Object) {
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		fv := v.Field(i)
		name, omitEmpty, skip := fieldName(f)
		if skip {
			continue
		}
		if f.Anonymous && name == "" {
			if fv.CanInterface() {
				if _, isErr := fv.Interface().(error); isErr {
					continue
				}
			}
			e.structFields(fv, depth, obj)
			continue
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		if omitEmpty && fv.IsZero() {
			continue
		}
		if out, keep := e.value(fv, depth+1); keep {
			obj[name] = out
		}
	}
}

func fieldName(f reflect.StructField) (name string, omitEmpty, skip bool) {
	tag, ok := f.Tag.Lookup("json")
	if !ok {
		return "", false, false
	}
	if tag == "-" {
		return "", false, true
	}
	parts := strings.Split(tag, ",")
	for _, p := range parts[1:] {
		if p == "omitempty" {
			omitEmpty = true
		}
	}
	return parts[0], omitEmpty, false
}

func (e *encoder) errorValue(err error, v reflect.Value, depth int) Object {
	obj := Object{}
	if depth >= e.opts.maxDepth {
		return obj
	}

	var (
		cause   error
		list    []error
		message string
	)
	if ce, ok := err.(*Error); ok {
		for k, val := range ce.Props {
			if out, keep := e.value(reflect.ValueOf(val), depth+1); keep {
				obj[k] = out
			}
		}
		cause, list, message = ce.Cause, ce.Errors, ce.Message
	} else {
		e.structFields(v, depth, obj)
		cause, _ = try(func() error { return errors.Unwrap(err) })
		if multi, ok := err.(interface{ Unwrap() []error }); ok {
			list, _ = try(multi.Unwrap)
		}
		message, _ = try(err.Error)
	}

	name := errorName(err)
	obj["name"] = name
	obj["message"] = message
	obj["stack"] = errorStack(err, name, message)

	if cause != nil {
		if out, keep := e.value(reflect.ValueOf(cause), depth+1); keep && out != nil {
			obj["cause"] = out
		}
	}
	if len(list) > 0 {
		obj["errors"] = e.sliceValue(reflect.ValueOf(list), depth+1)
	}
	return obj
}

func errorName(err error) string {
	if n, ok := err.(interface{ ErrorName() string }); ok {
		if name, ok := try(n.ErrorName); ok && name != "" {
			return name
		}
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if name := t.Name(); name != "" && token.IsExported(name) {
		return name
	}
	if _, ok := err.(interface{ Unwrap() []error }); ok {
		return string(KindAggregateError)
	}
	return string(KindError)
}

func errorStack(err error, name, message string) string {
	if s, ok := err.(interface{ ErrorStack() string }); ok {
		if stack, ok := try(s.ErrorStack); ok && stack != "" {
			return stack
		}
	}
	if message == "" {
		return name
	}
	return name + ": " + message
}

func keyString(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	if k.CanInterface() {
		return fmt.Sprint(k.Interface())
	}
	return k.String()
}

// try runs fn and reports false if it panicked. Reads of user values go
// through it so one broken accessor does not abort the whole walk.
func try[T any](fn func() T) (out T, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	return fn(), true
}
