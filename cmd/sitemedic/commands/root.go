// Package commands defines the sitemedic CLI.
package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sitemedic/sitemedic/pkg/config"
	"github.com/sitemedic/sitemedic/pkg/logging"
	"github.com/sitemedic/sitemedic/pkg/workspace"
)

const cliExecutable = "sitemedic"

// State carries the loaded configuration and prepared workspace to every
// subcommand.
type State struct {
	Config    config.Config
	Workspace string
	JSON      bool
}

// NewCommand constructs the top-level sitemedic CLI command, wiring global
// flags, config loading, logging, and workspace preparation.
func NewCommand() *cobra.Command {
	var (
		configFile   string
		workspaceDir string
		jsonOut      bool
	)
	state := &State{}

	cmd := &cobra.Command{
		Use:   cliExecutable,
		Short: "SiteMedic repairs and scans WordPress installations",
		Long: "SiteMedic reinstalls WordPress core and plugin files from trusted origins\n" +
			"to remove tampering, and scans database content and files for malware\n" +
			"signatures.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")

			mgr := config.NewManager()
			if err := mgr.Load(config.DefaultSources(configFile, cmd.Flags(), debug)); err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			state.Config = mgr.Get()
			state.JSON = jsonOut

			if err := logging.ConfigureGlobalLogging(state.Config.Log.Level, state.Config.Log.Format); err != nil {
				return fmt.Errorf("configure logging: %w", err)
			}

			prepared, err := workspace.Prepare(firstNonEmpty(workspaceDir, state.Config.Server.WorkspaceDir))
			if err != nil {
				return fmt.Errorf("prepare workspace: %w", err)
			}
			state.Workspace = prepared
			log.Debug().Str("workspace", prepared).Msg("Workspace ready")

			cmd.SetContext(workspace.WithContext(cmd.Context(), prepared))
			return nil
		},
	}

	cmd.SilenceUsage = true

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	cmd.PersistentFlags().StringVar(&workspaceDir, "workspace-dir", "", "Override workspace root directory")
	cmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "JSON output")
	config.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCommand(state))
	cmd.AddCommand(NewAnalyzeCommand(state))
	cmd.AddCommand(NewScanCommand(state))
	cmd.AddCommand(NewCoreCommand(state))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
