package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rahul/trailhead/internal/tour"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "validate [tours-dir]",
		Short:        "Check tour definition files without running them",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			dir := toursDir(cfg, args)
			cat, err := tour.LoadDir(dir)
			if err != nil {
				return fmt.Errorf("%s: %w", dir, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %d tours valid in %s\n", len(cat.Names()), dir)
			return nil
		},
	}
}
