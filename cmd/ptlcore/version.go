package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// VersionCmd returns the version command.
func VersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ptlcore %s (commit %s, built %s, %s)\n",
				version, commit, date, runtime.Version())
		},
	}
}
