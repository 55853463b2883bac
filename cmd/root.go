package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"CrateFM/server"
)

var rootCmd = &cobra.Command{
	Use:   "cratefm",
	Short: "CrateFM is a reactive playlist library with content-addressable sync.",
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
