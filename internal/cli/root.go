// Package cli holds the trailhead command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/rahul/trailhead/pkg/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
}

func (o *RootOptions) loadConfig() (*config.Config, error) {
	return config.Load(o.ConfigPath)
}

// NewRootCommand creates the root command for the trailhead CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "trailhead",
		Short: "Trailhead - guided product tours",
		Long:  "Runs step-by-step product tours over a live web application, across page navigations.",
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "config.json", "path to the JSON config file")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// toursDir picks the directory argument over the configured one.
func toursDir(cfg *config.Config, args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return cfg.Tour.Dir
}
