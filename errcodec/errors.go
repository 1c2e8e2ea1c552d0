// Package errcodec converts errors and arbitrary values into a plain,
// transport-safe mapping and reconstructs typed errors from it.
//
// Encode walks the value reflectively: exported struct fields, map entries and
// slice elements are copied, functions and channels are dropped, back edges on
// the current path become "[Circular]" and anything deeper than the configured
// depth becomes an empty mapping. Decode picks a constructor by the "name" field
// from a process-wide registry and restores cause chains and aggregated errors.
package errcodec

import (
	"encoding/json"
	"fmt"
	"reflect"
	"runtime/debug"
	"strings"
)

// Object is the serialized form of an error (PlainErrorLike).
type Object = map[string]any

// Kind names an error kind. Kinds are usable as errors.Is targets against
// decoded errors.
type Kind string

const (
	KindError          Kind = "Error"
	KindEvalError      Kind = "EvalError"
	KindRangeError     Kind = "RangeError"
	KindReferenceError Kind = "ReferenceError"
	KindSyntaxError    Kind = "SyntaxError"
	KindTypeError      Kind = "TypeError"
	KindURIError       Kind = "URIError"
	KindAggregateError Kind = "AggregateError"
	KindNonError       Kind = "NonError"
)

func (k Kind) Error() string { return string(k) }
func (k Kind) ErrorName() string { return string(k) }

// Error is the reconstructed form of a remote error.
type Error struct {
	Name    string
	Message string
	Stack   string
	Cause   error
	Errors  []error        // aggregated errors
	Props   map[string]any // every other property that travelled with the error
}

// New returns an error of the given kind with the current stack attached.
func New(kind Kind, message string) *Error {
	return &Error{Name: string(kind), Message: message, Stack: captureStack(string(kind), message)}
}

// Newf is New with formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// NonError wraps a value that was used where an error was expected.
func NonError(v any) *Error {
	return New(KindNonError, "Non-error value: "+render(v))
}

// FromPanic turns a recovered panic value into an error. Panicking with an
// error keeps that error; anything else becomes a NonError.
func FromPanic(v any) error {
	if err, ok := v.(error); ok {
		return err
	}
	return NonError(v)
}

func (e *Error) Error() string {
	switch {
	case e.Message == "":
		return e.ErrorName()
	case e.Name == "":
		return e.Message
	default:
		return e.Name + ": " + e.Message
	}
}

// ErrorName reports the kind name used on the wire.
func (e *Error) ErrorName() string {
	if e.Name == "" {
		return string(KindError)
	}
	return e.Name
}

// ErrorStack reports the stack that travelled with the error.
func (e *Error) ErrorStack() string { return e.Stack }

// Unwrap exposes the cause followed by the aggregated errors.
func (e *Error) Unwrap() []error {
	if e.Cause == nil && len(e.Errors) == 0 {
		return nil
	}
	out := make([]error, 0, len(e.Errors)+1)
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return append(out, e.Errors...)
}

// Is matches kinds by name.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && string(k) == e.ErrorName()
}

// Get returns a property that travelled with the error.
func (e *Error) Get(key string) (any, bool) {
	v, ok := e.Props[key]
	return v, ok
}

// MarshalJSON writes the encoded form of the error.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(Encode(e))
}

func captureStack(name, message string) string {
	var b strings.Builder
	b.WriteString(name)
	if message != "" {
		b.WriteString(": ")
		b.WriteString(message)
	}
	b.WriteByte('\n')
	b.Write(debug.Stack())
	return b.String()
}

// render is the best-effort string form of a non-error value.
func render(v any) string {
	if v == nil {
		return "null"
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return fmt.Sprintf("%T", v)
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Ptr, reflect.Struct, reflect.Interface:
		return fmt.Sprintf("%T", v)
	}
	return fmt.Sprint(v)
}

