// Package registry lets networked servers announce themselves and lets
// clients find them.
package registry

import "context"

// ServiceInstance describes one server endpoint.
type ServiceInstance struct {
	Addr    string `json:"addr"`
	Weight  int    `json:"weight"`          // Weight for load balancing
	Codec   string `json:"codec,omitempty"` // Frame body codec the server speaks
	Version string `json:"version,omitempty"`
}

type Registry interface {
	Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, serviceName string, addr string) error
	Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error)
	// Watch emits the full instance list after every change until ctx ends.
	Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance
}

// Prefix is the key namespace used by EtcdRegistry.
const Prefix = "/chanrpc/"

func serviceKey(serviceName string) string {
	return Prefix + serviceName + "/"
}
