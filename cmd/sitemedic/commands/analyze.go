package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sitemedic/sitemedic/cmd/sitemedic/internal/format"
)

// NewAnalyzeCommand classifies every installed plugin.
func NewAnalyzeCommand(state *State) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Classify installed plugins by reinstall origin",
		RunE: func(cmd *cobra.Command, args []string) error {
			tk, err := newToolkit(state)
			if err != nil {
				return err
			}

			result, err := tk.analyzer(state).Analyze(cmd.Context(), "")
			if err != nil {
				return err
			}

			f := format.New(state.JSON)
			if err := f.Success(fmt.Sprintf("Analyzed %d plugins", result.Total), result); err != nil {
				return err
			}
			f.Line("  repository:     %d", len(result.Repository))
			f.Line("  premium:        %d", len(result.Premium))
			f.Line("  non-repository: %d", len(result.NonRepository))
			f.Line("  suspicious:     %d", len(result.Suspicious))
			if result.DemoDeleted {
				f.Warn("demo plugin removed")
			}
			return nil
		},
	}
}
