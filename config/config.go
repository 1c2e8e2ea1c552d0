// Package config loads the TOML configuration used by the chanrpc command.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"chanrpc/codec"
	"chanrpc/loadbalance"
)

// Duration decodes TOML strings such as "2s" or "150ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ServerConfig configures `chanrpc serve`.
type ServerConfig struct {
	Network        string   `toml:"network"`
	Address        string   `toml:"address"`
	Codec          string   `toml:"codec"`
	Service        string   `toml:"service"`
	Advertise      string   `toml:"advertise"`
	Weight         int      `toml:"weight"`
	TTL            int64    `toml:"ttl"`
	RequestTimeout Duration `toml:"requestTimeout"`
	RateLimit      float64  `toml:"rateLimit"`
	RateBurst      int      `toml:"rateBurst"`
	Retries        int      `toml:"retries"`
	RetryDelay     Duration `toml:"retryDelay"`
	TickInterval   Duration `toml:"tickInterval"`
}

// ClientConfig configures `chanrpc call` and `chanrpc watch`.
type ClientConfig struct {
	Address  string   `toml:"address"`
	Service  string   `toml:"service"`
	Pool     int      `toml:"pool"`
	Timeout  Duration `toml:"timeout"`
	Balancer string   `toml:"balancer"` // empty picks the client default
	Codec    string   `toml:"codec"`
}

// RegistryConfig selects service discovery.
type RegistryConfig struct {
	Kind        string   `toml:"kind"` // "none" or "etcd"
	Endpoints   []string `toml:"endpoints"`
	DialTimeout Duration `toml:"dialTimeout"`
}

// LogConfig controls logger construction.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "console" or "json"
}

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Client   ClientConfig   `toml:"client"`
	Registry RegistryConfig `toml:"registry"`
	Log      LogConfig      `toml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Network:        "tcp",
			Address:        "127.0.0.1:7400",
			Codec:          "json",
			Service:        "chanrpc",
			Weight:         1,
			TTL:            10,
			RequestTimeout: Duration{5 * time.Second},
			RetryDelay:     Duration{50 * time.Millisecond},
			TickInterval:   Duration{5 * time.Second},
		},
		Client: ClientConfig{
			Address:  "127.0.0.1:7400",
			Service:  "chanrpc",
			Pool:     1,
			Timeout:  Duration{2 * time.Second},
			Balancer: "",
			Codec:    "json",
		},
		Registry: RegistryConfig{
			Kind:        "none",
			Endpoints:   []string{"127.0.0.1:2379"},
			DialTimeout: Duration{5 * time.Second},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the TOML file at path over Default. An empty path yields the
// defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return &cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks enumerated values and fills zero values with defaults.
func (cfg *Config) Validate() error {
	def := Default()

	if cfg.Server.Network == "" {
		cfg.Server.Network = def.Server.Network
	}
	if cfg.Server.Address == "" {
		return fmt.Errorf("server.address required")
	}
	if _, ok := codec.ParseCodecType(cfg.Server.Codec); !ok {
		return fmt.Errorf("server.codec: unknown codec %q", cfg.Server.Codec)
	}
	if cfg.Server.Weight <= 0 {
		cfg.Server.Weight = def.Server.Weight
	}
	if cfg.Server.TTL <= 0 {
		cfg.Server.TTL = def.Server.TTL
	}
	if cfg.Server.RateLimit < 0 {
		return fmt.Errorf("server.rateLimit must not be negative")
	}
	if cfg.Server.RateLimit > 0 && cfg.Server.RateBurst <= 0 {
		cfg.Server.RateBurst = 1
	}
	if cfg.Server.Retries < 0 {
		return fmt.Errorf("server.retries must not be negative")
	}
	if cfg.Server.RetryDelay.Duration < 0 {
		return fmt.Errorf("server.retryDelay must not be negative")
	}

	if cfg.Client.Pool <= 0 {
		cfg.Client.Pool = def.Client.Pool
	}
	if cfg.Client.Timeout.Duration < 0 {
		return fmt.Errorf("client.timeout must not be negative")
	}
	if _, ok := codec.ParseCodecType(cfg.Client.Codec); !ok {
		return fmt.Errorf("client.codec: unknown codec %q", cfg.Client.Codec)
	}
	if _, ok := loadbalance.ByName(cfg.Client.Balancer); !ok {
		return fmt.Errorf("client.balancer: unknown balancer %q", cfg.Client.Balancer)
	}

	switch cfg.Registry.Kind {
	case "":
		cfg.Registry.Kind = "none"
	case "none":
	case "etcd":
		if len(cfg.Registry.Endpoints) == 0 {
			return fmt.Errorf("registry.endpoints required for etcd")
		}
	case "memory":
		// A process-local registry is invisible to other chanrpc processes
		return fmt.Errorf("registry.kind: %q only works inside one process, use \"etcd\"", cfg.Registry.Kind)
	default:
		return fmt.Errorf("registry.kind: unknown kind %q", cfg.Registry.Kind)
	}
	if cfg.Registry.DialTimeout.Duration <= 0 {
		cfg.Registry.DialTimeout = def.Registry.DialTimeout
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch cfg.Log.Format {
	case "":
		cfg.Log.Format = def.Log.Format
	case "console", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", cfg.Log.Format)
	}
	return nil
}
