package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/plotbridge"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of plotbridge",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("plotbridge version %s\n", strings.TrimSpace(plotbridge.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
