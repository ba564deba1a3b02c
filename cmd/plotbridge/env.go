package main

import (
	"fmt"
	"path/filepath"

	"github.com/aretw0/plotbridge/internal/cli"
	"github.com/aretw0/plotbridge/internal/config"
	"github.com/aretw0/plotbridge/pkg/descriptor"
	"github.com/spf13/cobra"
)

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Print the environment the backend needs to find this session",
	Long: `Prints PLOTBRIDGE_CONFIG=<descriptor path>. The backend writes {"port": N}
to that path once it listens. With --write the assignment is merged into the
workspace .env file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		paths, err := descriptor.OpenSession(cli.WorkspaceState(cfg), cfg.Layout())
		if err != nil {
			return err
		}

		if write, _ := cmd.Flags().GetBool("write"); write {
			path := filepath.Join(cfg.WorkspaceDir, config.EnvFile)
			if err := cli.WriteEnvFile(path, paths); err != nil {
				return err
			}
			fmt.Printf("Wrote %s to %s\n", descriptor.EnvVar, path)
			return nil
		}
		fmt.Println(paths.Env())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(envCmd)
	envCmd.Flags().Bool("write", false, "Merge the assignment into <dir>/.env")
}
