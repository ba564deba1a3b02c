package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aretw0/plotbridge/internal/cli"
	"github.com/aretw0/plotbridge/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the workspace session, backend port and stored annotations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, _, closeStore, err := cli.OpenStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		rep, err := cli.BuildReport(cmd.Context(), cfg, cli.WorkspaceState(cfg), store)
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		}
		fmt.Print(tui.Render(os.Stdout, rep.Markdown()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Bool("json", false, "Print the report as JSON")
}
