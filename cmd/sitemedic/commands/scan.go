package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sitemedic/sitemedic/cmd/sitemedic/internal/format"
	"github.com/sitemedic/sitemedic/pkg/sigscan"
)

// NewScanCommand groups the signature scan subcommands.
func NewScanCommand(state *State) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for malware signatures",
	}
	cmd.AddCommand(newScanDBCommand(state))
	cmd.AddCommand(newScanFilesCommand(state))
	return cmd
}

func newScanDBCommand(state *State) *cobra.Command {
	return &cobra.Command{
		Use:   "db",
		Short: "Scan high-risk database fields",
		RunE: func(cmd *cobra.Command, args []string) error {
			tk, err := newToolkit(state)
			if err != nil {
				return err
			}
			defer tk.close()

			sigs, err := tk.signatures(state)
			if err != nil {
				return err
			}
			querier, err := tk.openDB(state)
			if err != nil {
				return err
			}

			scanner := sigscan.NewDBScanner(querier, sigs.Set(), state.Config.Site.TablePrefix)
			matches, err := scanner.Scan(cmd.Context())
			if err != nil {
				return err
			}
			return printMatches(state, matches)
		},
	}
}

func newScanFilesCommand(state *State) *cobra.Command {
	var maxDepth int

	cmd := &cobra.Command{
		Use:   "files [path]",
		Short: "Scan the configuration file and content tree, or one path",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tk, err := newToolkit(state)
			if err != nil {
				return err
			}
			sigs, err := tk.signatures(state)
			if err != nil {
				return err
			}

			depth := maxDepth
			if depth == 0 {
				depth = state.Config.Scanner.MaxDepth
			}
			scanner := sigscan.NewFileScanner(sigs.Set(), state.Config.Site.Root, depth)

			var matches []sigscan.ThreatMatch
			if len(args) == 1 {
				matches, err = scanner.ScanPath(cmd.Context(), args[0])
			} else {
				matches, err = scanner.ScanDefault(cmd.Context())
			}
			if err != nil {
				return err
			}
			return printMatches(state, matches)
		},
	}
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "Directory depth limit (0 uses configuration)")
	return cmd
}

func printMatches(state *State, matches []sigscan.ThreatMatch) error {
	f := format.New(state.JSON)
	if len(matches) == 0 {
		return f.Success("No threats found", map[string]any{"success": true, "count": 0})
	}

	if state.JSON {
		return f.PrintJSON(map[string]any{"success": true, "count": len(matches), "matches": matches})
	}

	f.Fail(fmt.Sprintf("%d potential threats found", len(matches)))
	for _, m := range matches {
		location := m.Source
		if m.Line > 0 {
			location = fmt.Sprintf("%s:%d", m.Source, m.Line)
		}
		f.Line("  [%s] %s at %s", m.Severity, m.SignatureID, location)
		f.Line("      %s", m.Preview)
	}
	return nil
}
