package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sitemedic/sitemedic/pkg/version"
)

// NewVersionCommand prints build metadata.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Get()
			fmt.Printf("%s %s (commit %s, built %s)\n",
				cliExecutable, info.Version, info.Commit, info.BuildDate)
		},
	}
}
