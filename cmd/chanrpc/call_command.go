package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"chanrpc/client"
	"chanrpc/errcodec"
)

func newCallCommand(ctx *commandContext) *cobra.Command {
	var addr string
	var timeout string

	cmd := &cobra.Command{
		Use:   "call <method> [json]",
		Short: "Call a remote procedure and print its result as JSON",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data any
			if len(args) == 2 {
				if err := json.Unmarshal([]byte(args[1]), &data); err != nil {
					return fmt.Errorf("invalid JSON argument: %w", err)
				}
			}
			var callOpts []client.CallOption
			if timeout != "" {
				d, err := parseTimeout(timeout)
				if err != nil {
					return err
				}
				callOpts = append(callOpts, client.WithTimeout(d))
			}

			cli, closeCli, err := ctx.dialClient(cmd.Context(), addr)
			if err != nil {
				return err
			}
			defer closeCli()

			result, err := cli.CallContext(cmd.Context(), args[0], data, callOpts...)
			if err != nil {
				return describeError(err)
			}
			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Server address (overrides client.address and discovery)")
	cmd.Flags().StringVar(&timeout, "timeout", "", "Per-call timeout, e.g. 500ms (0 disables)")
	return cmd
}

// describeError renders a decoded remote error with its extra properties.
func describeError(err error) error {
	var remote *errcodec.Error
	if !errors.As(err, &remote) || len(remote.Props) == 0 {
		return err
	}
	props, _ := json.Marshal(remote.Props)
	return fmt.Errorf("%w %s", err, props)
}
