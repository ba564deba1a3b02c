package main

import (
	"errors"
	"fmt"

	"github.com/aretw0/plotbridge/internal/cli"
	"github.com/aretw0/plotbridge/pkg/descriptor"
	"github.com/aretw0/plotbridge/pkg/domain"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage the workspace session",
	Long:  `Show or reset the session identifier stored in .plotbridge/workspace.json.`,
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the session identifier and descriptor paths",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		paths, err := descriptor.OpenSession(cli.WorkspaceState(cfg), cfg.Layout())
		if err != nil {
			return err
		}
		fmt.Printf("Session:    %s\n", paths.ID)
		fmt.Printf("Descriptor: %s\n", paths.Primary)
		if paths.Legacy != "" {
			fmt.Printf("Legacy:     %s\n", paths.Legacy)
		}
		return nil
	},
}

var sessionResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the session identifier so the next run generates a new one",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		state := cli.WorkspaceState(cfg)
		old, ok, err := state.Get(descriptor.SessionKey)
		if err != nil {
			return err
		}

		if purge, _ := cmd.Flags().GetBool("purge"); purge && ok && old != "" {
			store, _, closeStore, err := cli.OpenStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()
			if err := store.Delete(cmd.Context(), old); err != nil && !errors.Is(err, domain.ErrAnnotationsNotFound) {
				return fmt.Errorf("delete annotations of %s: %w", old, err)
			}
		}

		if err := descriptor.ResetSession(state); err != nil {
			return err
		}
		if ok && old != "" {
			fmt.Printf("Reset session '%s'\n", old)
		} else {
			fmt.Println("No session to reset.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionResetCmd)
	sessionResetCmd.Flags().Bool("purge", false, "Also delete the stored annotations of the session")
}
