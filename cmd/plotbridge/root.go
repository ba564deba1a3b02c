package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/plotbridge/internal/cli"
	"github.com/aretw0/plotbridge/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "plotbridge",
	Short: "plotbridge relays plots from a backend to presentation surfaces",
	Long: `plotbridge discovers a plotting backend through its session descriptor,
keeps a websocket connection to it (falling back to a relay when the direct
socket cannot be opened) and serves the plot list to any number of surfaces.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("dir", ".", "Workspace directory")
	rootCmd.PersistentFlags().String("config", "", "Configuration file (default <dir>/plotbridge.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().Bool("log-json", false, "Log as JSON")
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	dir, _ := cmd.Flags().GetString("dir")
	file, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(dir, file)
	if err != nil {
		return cfg, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	debug, _ := cmd.Flags().GetBool("debug")
	asJSON, _ := cmd.Flags().GetBool("log-json")
	return cli.NewLogger(cfg.Level(), debug, asJSON)
}
