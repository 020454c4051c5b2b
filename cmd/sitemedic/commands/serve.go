package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sitemedic/sitemedic/pkg/server/app"
)

// NewServeCommand starts the HTTP server.
func NewServeCommand(state *State) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the maintenance API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := log.With().Str("component", "server").Logger()
			a, err := app.New(ctx, state.Config, logger)
			if err != nil {
				return err
			}
			return a.Run(ctx)
		},
	}
}
