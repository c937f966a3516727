package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/gridrank/internal/config"
)

type configKey struct{}

// newRootCmd creates the root command. The config file is loaded once in
// PersistentPreRunE and handed to subcommands through the command context.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "gridrank",
		Short: "Local visibility grid scanner.",
		Long: `gridrank estimates how a business ranks for a search query across a
geographic neighborhood by sampling a location-biased place search at every
point of a small grid around a center location.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cmd.SetContext(withConfig(cmd.Context(), &cfg))
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env vars use the GRIDRANK_ prefix")

	cmd.AddCommand(newServeCmd(), newScanCmd(), newMigrateCmd(), newTokenCmd())
	return cmd
}

func withConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

func configFrom(cmd *cobra.Command) (*config.Config, error) {
	cfg, ok := cmd.Context().Value(configKey{}).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}
