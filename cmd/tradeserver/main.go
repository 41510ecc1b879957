package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cyberinferno/tradeserver/config"
)

func main() {
	cfg := config.Default()
	envErr := config.LoadDotEnv()
	if envErr == nil {
		envErr = cfg.FromEnv(os.LookupEnv)
	}

	if err := newRootCommand(cfg, envErr).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// newRootCommand builds the CLI. Flags default to cfg, which already holds
// the environment, so flags given on the command line take precedence.
func newRootCommand(cfg config.Config, envErr error) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "tradeserver",
		Short:        "Lend tradeable volume to connected trading terminals",
		Long:         "Accepts trading terminals over TCP and decides how much volume each trade may use, based on one shared account.",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if envErr != nil {
				return fmt.Errorf("read environment: %w", envErr)
			}

			return run(cmd.Context(), cfg)
		},
	}

	cfg.BindFlags(cmd.PersistentFlags())
	cmd.AddCommand(newConfigCommand(&cfg), newRequestCommand())
	return cmd
}

func newConfigCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration and check it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", redacted(*cfg))
			return cfg.Validate()
		},
	}
}

func redacted(cfg config.Config) config.Config {
	if cfg.DiscordWebhook != "" {
		cfg.DiscordWebhook = "<redacted>"
	}

	return cfg
}
