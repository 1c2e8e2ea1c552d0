package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var addr string
	var count int

	cmd := &cobra.Command{
		Use:   "watch <event>",
		Short: "Print events pushed by a server, one JSON document per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cli, closeCli, err := ctx.dialClient(sigCtx, addr)
			if err != nil {
				return err
			}
			defer closeCli()

			watchCtx, cancel := context.WithCancelCause(sigCtx)
			defer cancel(nil)

			events := make(chan any, 16)
			cli.On(args[0], func(data any) {
				select {
				case events <- data:
				default:
					ctx.logger.Warn().Str("event", args[0]).Msg("dropping event, output is behind")
				}
			})
			cli.On("error", func(data any) {
				if err, ok := data.(error); ok {
					cancel(err)
				}
			})

			seen := 0
			for {
				select {
				case data := <-events:
					line, err := json.Marshal(data)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), string(line))
					seen++
					if count > 0 && seen >= count {
						return nil
					}
				case <-watchCtx.Done():
					if cause := context.Cause(watchCtx); cause != nil && cause != context.Canceled {
						return cause
					}
					return nil
				}
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Server address (overrides client.address and discovery)")
	cmd.Flags().IntVar(&count, "count", 0, "Exit after this many events (0 waits for a signal)")
	return cmd
}

func parseTimeout(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid timeout %q: negative", s)
	}
	return d, nil
}
