package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chanrpc/codec"
	"chanrpc/config"
	"chanrpc/middleware"
	"chanrpc/server"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo procedures over TCP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Address = addr
			}
			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return ctx.serve(sigCtx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.address)")
	return cmd
}

func (c *commandContext) buildServer(ctx context.Context, cfg *config.Config) (*server.Server, func(), error) {
	methods, err := demoMethods()
	if err != nil {
		return nil, nil, err
	}

	ct, _ := codec.ParseCodecType(cfg.Server.Codec)
	opts := []server.Option{
		server.WithLogger(c.logger),
		server.WithCodec(ct),
		server.WithMiddleware(c.serverMiddleware(cfg.Server)...),
	}

	reg, closeReg, err := openRegistry(ctx, cfg.Registry)
	if err != nil {
		return nil, nil, err
	}
	if reg != nil {
		opts = append(opts, server.WithRegistry(reg, cfg.Server.Service, cfg.Server.Advertise, cfg.Server.Weight, cfg.Server.TTL))
	}
	return server.New(methods, opts...), closeReg, nil
}

// serverMiddleware orders the chain outermost first: one rate token per
// request, then retries, each attempt with its own deadline.
func (c *commandContext) serverMiddleware(cfg config.ServerConfig) []middleware.Middleware {
	mws := []middleware.Middleware{middleware.Logging(c.logger)}
	if cfg.RateLimit > 0 {
		mws = append(mws, middleware.RateLimit(cfg.RateLimit, cfg.RateBurst))
	}
	if cfg.Retries > 0 {
		mws = append(mws, middleware.Retry(cfg.Retries, cfg.RetryDelay.Duration, middleware.TransientOnly))
	}
	if d := cfg.RequestTimeout.Duration; d > 0 {
		mws = append(mws, middleware.Timeout(d))
	}
	return mws
}

// serve runs until ctx is done or the listener fails.
func (c *commandContext) serve(ctx context.Context, cfg *config.Config) error {
	svr, closeReg, err := c.buildServer(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeReg()

	errCh := make(chan error, 1)
	go func() { errCh <- svr.Serve(cfg.Server.Network, cfg.Server.Address) }()

	var tick <-chan time.Time
	if d := cfg.Server.TickInterval.Duration; d > 0 {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		tick = ticker.C
	}

	var seq int
	for {
		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		case now := <-tick:
			seq++
			if err := svr.Emit("tick", map[string]any{"seq": seq, "time": now.Format(time.RFC3339)}); err != nil {
				c.logger.Debug().Err(err).Msg("tick not delivered to every channel")
			}
		case <-ctx.Done():
			c.logger.Info().Msg("shutting down")
			if err := svr.Shutdown(shutdownTimeout); err != nil {
				return err
			}
			return <-errCh
		}
	}
}
