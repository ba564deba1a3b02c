package main

import (
	"context"
	"os"

	"github.com/aretw0/plotbridge"
	"github.com/aretw0/plotbridge/internal/cli"
	"github.com/aretw0/plotbridge/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to the backend and serve presentation surfaces",
	Long: `Starts the bridge: watches the session descriptor for the backend port,
connects to the backend and serves surfaces over HTTP.

  /            viewer page (open with ?role=main for the primary surface)
  /ws          websocket surfaces
  /events      read-only SSE surfaces
  /plots       current plot list
  /actions     POST surface actions
  /live /ready health probes
  /metrics     Prometheus metrics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("listen") {
			cfg.Listen, _ = cmd.Flags().GetString("listen")
		}
		if cmd.Flags().Changed("port") {
			cfg.Port, _ = cmd.Flags().GetInt("port")
		}
		logger := newLogger(cmd, cfg)

		app, err := cli.Open(cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
			tui.PrintBanner(os.Stdout, plotbridge.Version)
			cli.PrintSystemMessage(os.Stdout, "Session %s", app.Paths.ID)
			cli.PrintSystemMessage(os.Stdout, "Backend descriptor: %s", app.Paths.Primary)
			cli.PrintSystemMessage(os.Stdout, "Surfaces: http://%s/?role=main", cfg.Listen)
		}

		life := cli.WatchShutdown(context.Background(), logger)
		defer life.Stop()

		return app.Serve(life)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "", "Address the surface server listens on")
	serveCmd.Flags().IntP("port", "p", 0, "Backend port; skips descriptor discovery")
	serveCmd.Flags().BoolP("quiet", "q", false, "Do not print the banner")
}
