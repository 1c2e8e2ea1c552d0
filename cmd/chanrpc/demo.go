package main

import (
	"context"
	"time"

	"chanrpc/errcodec"
	"chanrpc/server"
)

type Args struct {
	A, B int
}

type Reply struct {
	Result int
}

// Arith is the procedure set served by `chanrpc serve`.
type Arith struct{}

func (a *Arith) Add(args *Args, reply *Reply) error {
	reply.Result = args.A + args.B
	return nil
}

func (a *Arith) Multiply(args *Args, reply *Reply) error {
	reply.Result = args.A * args.B
	return nil
}

func (a *Arith) Divide(ctx context.Context, args *Args, reply *Reply) error {
	if args.B == 0 {
		err := errcodec.New(errcodec.KindRangeError, "division by zero")
		err.Props = map[string]any{"dividend": args.A}
		return err
	}
	reply.Result = args.A / args.B
	return nil
}

func demoMethods() (server.Methods, error) {
	methods, err := server.MethodsOf(&Arith{})
	if err != nil {
		return nil, err
	}
	methods["echo"] = func(_ context.Context, data any) (any, error) {
		return data, nil
	}
	methods["sleep"] = func(ctx context.Context, data any) (any, error) {
		ms, _ := data.(float64)
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
			return ms, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return methods, nil
}
