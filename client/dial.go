package client

import (
	"context"
	"fmt"

	"chanrpc/codec"
	"chanrpc/loadbalance"
	"chanrpc/registry"
	"chanrpc/transport"
)

// Dial opens poolSize connections to addr and returns a client over them.
// Closing the client closes the connections.
func Dial(ctx context.Context, network, addr string, poolSize int, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if poolSize <= 0 {
		poolSize = 1
	}
	conns, err := transport.DialPool(ctx, network, addr, poolSize, o.codec, o.connOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	o.ownsChans = true
	return newClient(asChannels(conns), o)
}

// Discover looks serviceName up in reg and dials poolSize connections to
// every instance found. Unless a balancer is given, calls are spread by
// instance weight.
func Discover(ctx context.Context, reg registry.Registry, serviceName string, poolSize int, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if poolSize <= 0 {
		poolSize = 1
	}

	instances, err := reg.Discover(ctx, serviceName)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", serviceName, err)
	}
	if len(instances) == 0 {
		return nil, fmt.Errorf("discover %s: %w", serviceName, ErrNoChannels)
	}

	var channels []transport.Channel
	var weights []int
	for _, inst := range instances {
		ct := o.codec
		if parsed, ok := codec.ParseCodecType(inst.Codec); ok && inst.Codec != "" {
			ct = parsed
		}
		conns, err := transport.DialPool(ctx, "tcp", inst.Addr, poolSize, ct, o.connOpts...)
		if err != nil {
			closeAll(channels)
			return nil, fmt.Errorf("dial %s: %w", inst.Addr, err)
		}
		for _, conn := range conns {
			channels = append(channels, conn)
			weights = append(weights, inst.Weight)
		}
	}

	if o.balancer == nil {
		o.balancer = &loadbalance.WeightedRandomBalancer{Weights: weights}
	}
	o.ownsChans = true
	return newClient(channels, o)
}

func asChannels(conns []*transport.Conn) []transport.Channel {
	channels := make([]transport.Channel, len(conns))
	for i, conn := range conns {
		channels[i] = conn
	}
	return channels
}

func closeAll(channels []transport.Channel) {
	for _, ch := range channels {
		ch.Close()
	}
}
