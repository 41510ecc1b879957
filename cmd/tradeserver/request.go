package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cyberinferno/tradeserver/terminal"
)

type requestOptions struct {
	server       string
	price        float64
	stopDistance float64
	step         int64
	timeout      time.Duration
	keep         bool
}

// newRequestCommand asks a running server how much volume a trade would get,
// acting as a trading terminal. The grant is returned right away unless
// --keep is set, in which case the server reclaims it on disconnect.
func newRequestCommand() *cobra.Command {
	opts := requestOptions{step: 1000, timeout: 10 * time.Second}

	cmd := &cobra.Command{
		Use:   "request SYMBOL",
		Short: "Ask a running server for trade volume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := terminal.DefaultConfig(opts.server)
			cfg.ConnectionTimeout = opts.timeout
			cfg.RequestTimeout = opts.timeout

			client, err := terminal.Dial(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			symbol := strings.ToUpper(args[0])
			grant, err := client.RequestVolume(symbol, opts.price, opts.stopDistance, opts.step)
			if err != nil {
				return fmt.Errorf("request %s: %w", symbol, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: lease %d, volume %d\n", symbol, grant.ID, grant.Volume)
			if opts.keep {
				return nil
			}

			_, err = client.ReleaseVolume(grant.ID)
			return err
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&opts.server, "server", "127.0.0.1:6474", "address of the trade server")
	fs.Float64Var(&opts.price, "price", 0, "current price of the symbol")
	fs.Float64Var(&opts.stopDistance, "stop-distance", 0, "price distance to the stop loss")
	fs.Int64Var(&opts.step, "step", opts.step, "volume granularity in base units")
	fs.DurationVar(&opts.timeout, "timeout", opts.timeout, "connection and request timeout")
	fs.BoolVar(&opts.keep, "keep", false, "do not return the volume before disconnecting")
	_ = cmd.MarkFlagRequired("price")
	_ = cmd.MarkFlagRequired("stop-distance")

	return cmd
}
