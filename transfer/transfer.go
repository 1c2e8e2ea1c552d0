// Package transfer describes values whose ownership moves to the receiver of a
// message instead of being copied.
package transfer

import (
	"bytes"
	"image"
	"reflect"
)

// maxDepth bounds how far Detect descends into nested containers.
const maxDepth = 8

// Transferable is implemented by values that a channel should hand over by
// reference.
type Transferable interface {
	Transferable()
}

// Result is a procedure result carrying an explicit transfer list.
type Result struct {
	Value         any
	Transferables []any
}

// Wrap pairs a value with the objects that should be transferred with it.
func Wrap(value any, transferables ...any) *Result {
	return &Result{Value: value, Transferables: transferables}
}

// Unwrap splits a Result into its value and transfer list. ok is false when v
// is not a Result, in which case v is returned unchanged.
func Unwrap(v any) (value any, transferables []any, ok bool) {
	switch r := v.(type) {
	case *Result:
		if r == nil {
			return nil, nil, true
		}
		return r.Value, r.Transferables, true
	case Result:
		return r.Value, r.Transferables, true
	}
	return v, nil, false
}

// Detect collects the transferable objects reachable from v: byte slices,
// buffers, images, channels and Transferable implementations. Each object is
// reported once.
func Detect(v any) []any {
	d := &detector{seen: make(map[uintptr]bool), visiting: make(map[uintptr]bool)}
	d.walk(reflect.ValueOf(v), 0)
	return d.found
}

type detector struct {
	found    []any
	seen     map[uintptr]bool
	visiting map[uintptr]bool
}

func (d *detector) add(v reflect.Value) {
	key := identity(v)
	if key != 0 {
		if d.seen[key] {
			return
		}
		d.seen[key] = true
	}
	d.found = append(d.found, v.Interface())
}

func identity(v reflect.Value) uintptr {
	switch v.Kind() {
	case reflect.Ptr, reflect.Chan, reflect.Map, reflect.Slice, reflect.UnsafePointer, reflect.Func:
		return v.Pointer()
	}
	return 0
}

func isTransferable(v reflect.Value) bool {
	if v.Kind() == reflect.Chan {
		return true
	}
	if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
		return v.Len() > 0
	}
	if !v.CanInterface() {
		return false
	}
	switch v.Interface().(type) {
	case Transferable, *bytes.Buffer, image.Image:
		return true
	}
	return false
}

func (d *detector) walk(v reflect.Value, depth int) {
	for v.IsValid() && v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if !v.IsValid() || depth > maxDepth {
		return
	}
	if (v.Kind() == reflect.Ptr || v.Kind() == reflect.Chan) && v.IsNil() {
		return
	}
	if isTransferable(v) {
		d.add(v)
		return
	}

	if key := identity(v); key != 0 {
		if d.visiting[key] {
			return
		}
		d.visiting[key] = true
		defer delete(d.visiting, key)
	}

	switch v.Kind() {
	case reflect.Ptr:
		d.walk(v.Elem(), depth)
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			d.walk(iter.Value(), depth+1)
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			d.walk(v.Index(i), depth+1)
		}
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			d.walk(v.Field(i), depth+1)
		}
	}
}
