package transport

import (
	"fmt"
	"reflect"
)

// Clone returns a deep copy of v in which every value listed in transfer is
// kept by reference. Shared references and cycles are preserved. Functions,
// unsafe pointers and channels that are not transferred cannot be cloned.
//
// Struct fields are cloned deeply only when exported. Unexported fields are
// copied by value, so maps, slices and pointers they hold stay shared between
// v and the copy.
func Clone(v any, transfer []any) (any, error) {
	if v == nil {
		return nil, nil
	}
	c := &cloner{
		transfer: make(map[cloneKey]bool, len(transfer)),
		memo:     make(map[cloneKey]reflect.Value),
	}
	for _, t := range transfer {
		if key, ok := keyOf(reflect.ValueOf(t)); ok {
			c.transfer[key] = true
		}
	}
	out, err := c.clone(reflect.ValueOf(v))
	if err != nil {
		return nil, err
	}
	return out.Interface(), nil
}

type cloneKey struct {
	typ reflect.Type
	ptr uintptr
	n   int
}

func keyOf(v reflect.Value) (cloneKey, bool) {
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Chan:
		if v.IsNil() {
			return cloneKey{}, false
		}
		return cloneKey{typ: v.Type(), ptr: v.Pointer()}, true
	case reflect.Slice:
		if v.IsNil() || v.Len() == 0 {
			return cloneKey{}, false
		}
		return cloneKey{typ: v.Type(), ptr: v.Pointer(), n: v.Len()}, true
	}
	return cloneKey{}, false
}

type cloner struct {
	transfer map[cloneKey]bool
	memo     map[cloneKey]reflect.Value
}

func (c *cloner) clone(v reflect.Value) (reflect.Value, error) {
	key, hasKey := keyOf(v)
	if hasKey {
		if c.transfer[key] {
			return v, nil
		}
		if out, ok := c.memo[key]; ok {
			return out, nil
		}
	}

	switch v.Kind() {
	case reflect.Func, reflect.UnsafePointer:
		if v.IsNil() {
			return reflect.Zero(v.Type()), nil
		}
		return reflect.Value{}, fmt.Errorf("%w: %s", ErrDataClone, v.Type())
	case reflect.Chan:
		if v.IsNil() {
			return reflect.Zero(v.Type()), nil
		}
		return reflect.Value{}, fmt.Errorf("%w: %s is not transferred", ErrDataClone, v.Type())

	case reflect.Interface:
		if v.IsNil() {
			return reflect.Zero(v.Type()), nil
		}
		elem, err := c.clone(v.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(elem)
		return out, nil

	case reflect.Ptr:
		if v.IsNil() {
			return reflect.Zero(v.Type()), nil
		}
		out := reflect.New(v.Type().Elem())
		c.memo[key] = out
		elem, err := c.clone(v.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		out.Elem().Set(elem)
		return out, nil

	case reflect.Map:
		if v.IsNil() {
			return reflect.Zero(v.Type()), nil
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		c.memo[key] = out
		iter := v.MapRange()
		for iter.Next() {
			k, err := c.clone(iter.Key())
			if err != nil {
				return reflect.Value{}, err
			}
			val, err := c.clone(iter.Value())
			if err != nil {
				return reflect.Value{}, err
			}
			out.SetMapIndex(k, val)
		}
		return out, nil

	case reflect.Slice:
		if v.IsNil() {
			return reflect.Zero(v.Type()), nil
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		if hasKey {
			c.memo[key] = out
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			reflect.Copy(out, v)
			return out, nil
		}
		for i := 0; i < v.Len(); i++ {
			elem, err := c.clone(v.Index(i))
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(elem)
		}
		return out, nil

	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			elem, err := c.clone(v.Index(i))
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(elem)
		}
		return out, nil

	case reflect.Struct:
		// Unexported fields are copied as they are; exported ones deeply.
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			field, err := c.clone(v.Field(i))
			if err != nil {
				return reflect.Value{}, err
			}
			out.Field(i).Set(field)
		}
		return out, nil
	}

	// Scalars and strings are immutable values
	return v, nil
}
