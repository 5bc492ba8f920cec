// Package cmd assembles the command line interface.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kinderlab/tnsmarshal/cmd/daily"
	"github.com/kinderlab/tnsmarshal/cmd/expire"
	"github.com/kinderlab/tnsmarshal/cmd/fetch"
	"github.com/kinderlab/tnsmarshal/cmd/stats"
	"github.com/kinderlab/tnsmarshal/cmd/status"
	"github.com/kinderlab/tnsmarshal/internal/conf"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tnsmarshal",
		Short: "TNS transient ingestion and follow-up pipeline",
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		cobra.CheckErr(err)
	}

	subcommands := []*cobra.Command{
		fetch.Command(settings),
		daily.Command(settings),
		expire.Command(settings),
		status.Command(settings),
		stats.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
