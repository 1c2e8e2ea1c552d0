package server

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
)

type methodType struct {
	method    reflect.Method
	withCtx   bool
	ArgType   reflect.Type
	ReplyType reflect.Type
}

type service struct {
	name   string
	rcvr   reflect.Value
	typ    reflect.Type
	method map[string]*methodType
}

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// MethodsOf turns the exported methods of rcvr into procedures named
// "Type.Method". Eligible methods look like
//
//	func (t *T) Name(args *Args, reply *Reply) error
//	func (t *T) Name(ctx context.Context, args *Args, reply *Reply) error
//
// Incoming data that is not already an *Args is converted through JSON.
func MethodsOf(rcvr any) (Methods, error) {
	svc, err := newService(rcvr)
	if err != nil {
		return nil, err
	}
	if len(svc.method) == 0 {
		return nil, fmt.Errorf("rpc: type %s has no exported methods of suitable type", svc.name)
	}
	methods := make(Methods, len(svc.method))
	for name, mt := range svc.method {
		methods[svc.name+"."+name] = svc.procedure(mt)
	}
	return methods, nil
}

func newService(rcvr any) (*service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("rpc: rcvr must be a pointer, got %T", rcvr)
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("rpc: rcvr must point to a struct, got %s", typ.Elem().Kind())
	}
	// Type name becomes the service name
	s := &service{
		name:   typ.Elem().Name(),
		rcvr:   reflect.ValueOf(rcvr),
		typ:    typ,
		method: make(map[string]*methodType),
	}
	s.registerMethods()
	return s, nil
}

// registerMethods keeps the exported methods matching one of the RPC shapes.
func (s *service) registerMethods() {
	for i := 0; i < s.typ.NumMethod(); i++ {
		method := s.typ.Method(i)
		mt := method.Type
		if mt.NumOut() != 1 || mt.Out(0) != errorType {
			continue
		}
		first := 1
		withCtx := mt.NumIn() == 4 && mt.In(1) == contextType
		if withCtx {
			first = 2
		} else if mt.NumIn() != 3 {
			continue
		}
		if mt.In(first).Kind() != reflect.Ptr || mt.In(first+1).Kind() != reflect.Ptr {
			continue
		}

		s.method[method.Name] = &methodType{
			method:    method,
			withCtx:   withCtx,
			ArgType:   mt.In(first).Elem(),
			ReplyType: mt.In(first + 1).Elem(),
		}
	}
}

func (s *service) procedure(mt *methodType) Procedure {
	return func(ctx context.Context, data any) (any, error) {
		argv, err := convertArgs(data, mt.ArgType)
		if err != nil {
			return nil, err
		}
		replyv := reflect.New(mt.ReplyType)
		if err := s.call(ctx, mt, argv, replyv); err != nil {
			return nil, err
		}
		return replyv.Interface(), nil
	}
}

// call invokes the method via reflection.
func (s *service) call(ctx context.Context, mt *methodType, argv, replyv reflect.Value) error {
	args := []reflect.Value{s.rcvr, argv, replyv}
	if mt.withCtx {
		args = []reflect.Value{s.rcvr, reflect.ValueOf(ctx), argv, replyv}
	}
	results := mt.method.Func.Call(args)
	if !results[0].IsNil() {
		return results[0].Interface().(error)
	}
	return nil
}

// convertArgs produces an *Args from whatever arrived on the channel.
func convertArgs(data any, argType reflect.Type) (reflect.Value, error) {
	if data != nil {
		v := reflect.ValueOf(data)
		if v.Type() == reflect.PointerTo(argType) {
			return v, nil
		}
		if v.Type() == argType {
			argv := reflect.New(argType)
			argv.Elem().Set(v)
			return argv, nil
		}
	}
	argv := reflect.New(argType)
	raw, err := json.Marshal(data)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("rpc: encode arguments: %w", err)
	}
	if err := json.Unmarshal(raw, argv.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("rpc: decode arguments into %s: %w", argType, err)
	}
	return argv, nil
}
