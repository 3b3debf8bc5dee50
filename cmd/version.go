package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smazurov/svisor/internal/version"
)

// CreateVersionCmd creates the version command.
func CreateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(c *cobra.Command, _ []string) {
			info := version.Get()
			fmt.Fprintln(c.OutOrStdout(), "svisor", version.Short())
			fmt.Fprintf(c.OutOrStdout(), "commit %s, built %s, %s %s\n",
				info.GitCommit, info.BuildDate, info.GoVersion, info.Platform)
		},
	}
}
