// Command fabricctl is a small operator CLI over the fabric packages: it
// wires a demo channel end to end so behavior can be inspected manually,
// without a full integration harness.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fabricctl",
		Short: "fabricctl - inspect and exercise a fabric message-processing channel",
	}

	rootCmd.AddCommand(
		demoCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the fabricctl version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("fabricctl dev")
			return nil
		},
	}
}
