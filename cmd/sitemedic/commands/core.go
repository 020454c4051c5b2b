package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sitemedic/sitemedic/cmd/sitemedic/internal/format"
)

// NewCoreCommand groups core file operations.
func NewCoreCommand(state *State) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "core",
		Short: "Core file operations",
	}
	cmd.AddCommand(newCoreReinstallCommand(state))
	return cmd
}

func newCoreReinstallCommand(state *State) *cobra.Command {
	var (
		version       string
		preservePaths []string
		createBackup  bool
	)

	cmd := &cobra.Command{
		Use:   "reinstall",
		Short: "Replace core files with a freshly downloaded release",
		RunE: func(cmd *cobra.Command, args []string) error {
			tk, err := newToolkit(state)
			if err != nil {
				return err
			}

			result, err := tk.replacer(state).Reinstall(cmd.Context(), version,
				preservePaths, createBackup, "")
			if err != nil {
				return err
			}

			f := format.New(state.JSON)
			if err := f.Success(fmt.Sprintf("Core %s reinstalled, %d files replaced",
				result.Version, result.FilesReplaced), result); err != nil {
				return err
			}
			for _, p := range result.Preserved {
				f.Line("  preserved %s", p)
			}
			for _, p := range result.PreserveFailures {
				f.Warn("could not preserve " + p)
			}
			if !result.BaselineRecorded {
				f.Warn("trust baseline not recorded")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&version, "version", "latest", "Core version to install")
	cmd.Flags().StringSliceVar(&preservePaths, "preserve", []string{"wp-config.php", "wp-content/"},
		"Paths kept byte-identical through the replacement")
	cmd.Flags().BoolVar(&createBackup, "backup", true, "Back up core directories first")
	return cmd
}
