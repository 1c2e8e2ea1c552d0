package main

import (
	"context"
	"fmt"

	"chanrpc/client"
	"chanrpc/codec"
	"chanrpc/config"
	"chanrpc/loadbalance"
	"chanrpc/registry"
)

// openRegistry returns nil when discovery is disabled.
func openRegistry(ctx context.Context, cfg config.RegistryConfig) (registry.Registry, func(), error) {
	switch cfg.Kind {
	case "etcd":
		reg, err := registry.NewEtcdRegistry(cfg.Endpoints, cfg.DialTimeout.Duration)
		if err != nil {
			return nil, nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout.Duration)
		defer cancel()
		if err := reg.Ping(pingCtx); err != nil {
			reg.Close()
			return nil, nil, fmt.Errorf("etcd unreachable: %w", err)
		}
		return reg, func() { reg.Close() }, nil
	}
	return nil, func() {}, nil
}

// dialClient connects to addr, or discovers the configured service when an
// etcd registry is configured and no address override was given.
func (c *commandContext) dialClient(ctx context.Context, addrOverride string) (*client.Client, func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}

	ct, _ := codec.ParseCodecType(cfg.Client.Codec)
	opts := []client.Option{
		client.WithDefaultTimeout(cfg.Client.Timeout.Duration),
		client.WithCodec(ct),
		client.WithLogger(c.logger),
	}
	if b, ok := loadbalance.ByName(cfg.Client.Balancer); ok && cfg.Client.Balancer != "" {
		opts = append(opts, client.WithBalancer(b))
	}

	if addrOverride == "" && cfg.Registry.Kind == "etcd" {
		reg, closeReg, err := openRegistry(ctx, cfg.Registry)
		if err != nil {
			return nil, nil, err
		}
		cli, err := client.Discover(ctx, reg, cfg.Client.Service, cfg.Client.Pool, opts...)
		if err != nil {
			closeReg()
			return nil, nil, err
		}
		return cli, func() {
			cli.Close()
			closeReg()
		}, nil
	}

	addr := addrOverride
	if addr == "" {
		addr = cfg.Client.Address
	}
	cli, err := client.Dial(ctx, "tcp", addr, cfg.Client.Pool, opts...)
	if err != nil {
		return nil, nil, err
	}
	return cli, func() { cli.Close() }, nil
}
