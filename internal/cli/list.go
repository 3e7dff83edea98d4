package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rahul/trailhead/internal/store"
	"github.com/rahul/trailhead/internal/tour"
)

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var withStatus bool

	cmd := &cobra.Command{
		Use:          "list [tours-dir]",
		Short:        "List the available tours",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			cat, err := tour.LoadDir(toursDir(cfg, args))
			if err != nil {
				return err
			}

			var done map[string]bool
			if withStatus {
				statuses, err := store.NewStatusStore(cfg.Store.Path)
				if err != nil {
					return err
				}
				defer statuses.Close()
				if done, err = statuses.GetStatus(cmd.Context(), cfg.App.UserID); err != nil {
					return err
				}
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, name := range cat.Names() {
				def, _ := cat.Get(name)
				line := fmt.Sprintf("%s\t%d steps", name, def.Len())
				if withStatus {
					mark := "not completed"
					if done[name] {
						mark = "completed"
					}
					line += "\t" + mark
				}
				fmt.Fprintln(w, line)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&withStatus, "status", false, "show completion for the configured user")
	return cmd
}
