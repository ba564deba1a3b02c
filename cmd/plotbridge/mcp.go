package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"

	"github.com/aretw0/plotbridge/internal/cli"
	"github.com/aretw0/plotbridge/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts the bridge and exposes its plot list as MCP tools, so agents can
list plots, annotate them and ask the backend to delete them.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		transport, _ := cmd.Flags().GetString("transport")
		addr, _ := cmd.Flags().GetString("addr")
		logger := newLogger(cmd, cfg)

		app, err := cli.Open(cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		sigCtx := cli.WatchShutdown(context.Background(), logger)
		defer sigCtx.Stop()
		go func() { _ = app.Bridge.Run(sigCtx) }()
		if cfg.Port != 0 {
			app.Bridge.SetEndpoint(sigCtx, cfg.Port)
		}

		srv := mcp.NewServer(app.Bridge, logger)
		switch transport {
		case "stdio":
			// Ensure logs don't corrupt JSON-RPC on Stdout
			log.SetOutput(os.Stderr)
			logger.Info("Starting plotbridge MCP Server (Stdio)")
			return srv.ServeStdio()
		case "sse":
			err := srv.ServeSSE(sigCtx, addr)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		default:
			return errors.New("unknown transport: use 'stdio' or 'sse'")
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().String("addr", "127.0.0.1:8761", "Address to listen on (only for SSE)")
}
