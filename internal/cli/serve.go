package cli

import (
	"github.com/spf13/cobra"

	"github.com/rahul/trailhead/internal/server"
	"github.com/rahul/trailhead/internal/store"
	"github.com/rahul/trailhead/internal/tour"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:          "serve",
		Short:        "Serve the tour status API",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			ctx := cmd.Context()

			cat, err := tour.LoadDir(cfg.Tour.Dir)
			if err != nil {
				return err
			}
			if cfg.Tour.Watch {
				if err := tour.Watch(ctx, cfg.Tour.Dir, cat); err != nil {
					return err
				}
			}

			statuses, err := store.NewStatusStore(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer statuses.Close()

			srv := server.New(server.Config{
				Addr:     cfg.Server.Addr,
				Statuses: statuses,
				Catalog:  cat,
			})
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
