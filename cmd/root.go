package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fieldbio/sightings/cmd/dedupe"
	"github.com/fieldbio/sightings/cmd/pull"
	"github.com/fieldbio/sightings/cmd/recent"
	"github.com/fieldbio/sightings/cmd/validate"
	"github.com/fieldbio/sightings/internal/config"
)

// RootCommand creates and returns the root command
func RootCommand(ctx *config.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "sightings",
		Short:         "eBird sighting tracker and survey-site validator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, ctx); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		pull.Command(ctx),
		validate.Command(ctx),
		recent.Command(ctx),
		dedupe.Command(ctx),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return ctx.Initialize()
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, ctx *config.Context) error {
	rootCmd.PersistentFlags().StringVar(&ctx.ConfigFile, "config", "", "Config file (default: ./config.yaml or ~/.config/sightings/config.yaml)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&ctx.LogLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().String("metrics-textfile", "", "Write Prometheus metrics to this textfile after the run")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	if err := viper.BindPFlag("metrics.textfile", rootCmd.PersistentFlags().Lookup("metrics-textfile")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
