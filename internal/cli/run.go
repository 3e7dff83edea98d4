package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rahul/trailhead/internal/bridge"
	"github.com/rahul/trailhead/internal/browser"
	"github.com/rahul/trailhead/internal/engine"
	"github.com/rahul/trailhead/internal/governance"
	"github.com/rahul/trailhead/internal/observability"
	"github.com/rahul/trailhead/internal/progress"
	"github.com/rahul/trailhead/internal/resolver"
	"github.com/rahul/trailhead/internal/store"
	"github.com/rahul/trailhead/internal/tour"
	"github.com/rahul/trailhead/internal/tourapi"
	"github.com/rahul/trailhead/pkg/config"
)

type runOptions struct {
	from        int
	screenshots string
	force       bool
	plain       bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <tour>",
		Short: "Run a tour against the configured application",
		Long: `Opens the application in Chrome and walks through the named tour.

The popover buttons drive the tour; the terminal accepts the same
commands: n(ext), b(ack), s(kip), f(inish).`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			return runTour(cmd, cfg, args[0], opts)
		},
	}

	cmd.Flags().IntVar(&opts.from, "from", 0, "step index to start at")
	cmd.Flags().StringVar(&opts.screenshots, "screenshots", "", "save a screenshot of every shown step into this directory")
	cmd.Flags().BoolVar(&opts.force, "force", false, "run even if the tour is already completed")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "plain log output without the status line")
	return cmd
}

func runTour(cmd *cobra.Command, cfg *config.Config, name string, opts *runOptions) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	out := cmd.OutOrStdout()

	cat, err := tour.LoadDir(cfg.Tour.Dir)
	if err != nil {
		return err
	}
	def, err := cat.Get(name)
	if err != nil {
		return err
	}

	backend, err := openStatusBackend(cfg)
	if err != nil {
		return err
	}
	defer backend.close()

	if !opts.force {
		done, err := backend.read(ctx)
		if err != nil {
			log.Printf("Warning: could not read tour status: %v", err)
		} else if done[name] {
			fmt.Fprintf(out, "Tour %s is already completed; use --force to run it again\n", name)
			return nil
		}
	}

	logger := observability.NewLogger(observability.NewTermWriter(), cfg.Log.EventFile)
	progressStore := progress.NewStore().WithSink(backend.sink)
	progressStore.OnPersistError = logger.LogPersistError
	defer progressStore.Close()

	session := browser.NewSession(browser.Options{
		BaseURL:        cfg.Browser.BaseURL,
		Headless:       cfg.Browser.Headless,
		ExecPath:       cfg.Browser.ExecPath,
		SoftNavigation: cfg.Browser.SoftNavigation,
		ActionTimeout:  cfg.Browser.ActionTimeout.Std(),
	})
	if err := session.Open(ctx, cfg.Browser.StartPath); err != nil {
		return err
	}
	defer session.Close()

	var renderer engine.Renderer = session
	if opts.screenshots != "" {
		renderer = &screenshotRenderer{Session: session, dir: opts.screenshots}
	}

	status := observability.NewStatus()
	res := resolver.New(session, resolver.Options{
		Timeout:      cfg.Tour.ResolveTimeout.Std(),
		PollInterval: cfg.Tour.PollInterval.Std(),
		Settle:       cfg.Tour.ScrollSettle.Std(),
	})
	eng := engine.New(progressStore, res, renderer, engine.Options{
		AutoAdvanceDelay: cfg.Tour.AutoAdvanceDelay.Std(),
		Logger:           logger,
		OnTransition: func(tr engine.Transition) {
			status.Set(tr.Tour, tr.To.String(), tr.Index)
		},
	})

	policy, err := routePolicy(cfg.Routes)
	if err != nil {
		return err
	}
	br := bridge.New(progressStore, session, eng, bridge.Options{
		MountSettle: cfg.Tour.MountSettle.Std(),
		PendingTTL:  cfg.Tour.PendingTTL.Std(),
		Policy:      policy,
		Logger:      logger,
	})
	eng.SetNavigator(br)
	go br.Sweep(ctx, 0)

	if err := session.WatchRoutes(ctx, func(ctx context.Context, path string) {
		br.OnRouteChange(ctx, path)
	}); err != nil {
		return err
	}
	session.OnControl(func(c browser.Control) {
		run := eng.Current()
		if run == nil || run.ID() != c.RunID {
			return
		}
		if err := apply(run, c.Action); err != nil {
			log.Printf("Warning: popover %s failed: %v", c.Action, err)
		}
	})

	if observability.IsTerminal() && !opts.plain {
		observability.PrintBanner()
		observability.InitializeTerminal()
		defer observability.CleanupTerminal()
		log.SetOutput(observability.NewTermWriter())

		stop := make(chan struct{})
		defer close(stop)
		go observability.NewStatusLine(status).Run(stop, time.Second)
	}

	if _, err := eng.Start(ctx, def, opts.from); err != nil {
		return err
	}
	fmt.Fprintln(out, "Commands: n(ext), b(ack), s(kip), f(inish)")

	return drive(ctx, eng, readLines(cmd.InOrStdin()))
}

// drive feeds terminal commands to the live run until no run is left.
func drive(ctx context.Context, eng *engine.Engine, commands <-chan string) error {
	for {
		run := eng.Current()
		if run == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			_ = run.Cancel()
			return nil
		case <-run.Done():
		case line, ok := <-commands:
			if !ok {
				// stdin closed; the popover buttons still work
				commands = nil
				continue
			}
			if err := apply(run, strings.TrimSpace(line)); err != nil {
				log.Printf("Warning: %v", err)
			}
		}
	}
}

func apply(run *engine.Run, action string) error {
	switch strings.ToLower(action) {
	case "":
		return nil
	case "n", "next":
		return run.Next()
	case "b", "back":
		return run.Back()
	case "s", "skip", "c", "cancel":
		return run.Cancel()
	case "f", "finish":
		return run.Complete()
	}
	return fmt.Errorf("unknown command %q", action)
}

func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func routePolicy(cfg config.RoutesConfig) (*governance.RoutePolicy, error) {
	policy := governance.NewRoutePolicy()
	for _, prefix := range cfg.Allow {
		policy.AllowPrefix(prefix)
	}
	for _, pattern := range cfg.Deny {
		if err := policy.DenyPath(pattern); err != nil {
			return nil, fmt.Errorf("invalid route deny pattern %q: %w", pattern, err)
		}
	}
	return policy, nil
}

// statusBackend is where completion flags live: the remote API when one is
// configured, the local sqlite file otherwise.
type statusBackend struct {
	sink  progress.Sink
	read  func(ctx context.Context) (map[string]bool, error)
	close func() error
}

func openStatusBackend(cfg *config.Config) (*statusBackend, error) {
	userID := cfg.App.UserID
	if cfg.Server.APIURL != "" {
		client, err := tourapi.NewClient(tourapi.Config{BaseURL: cfg.Server.APIURL, UserID: userID})
		if err != nil {
			return nil, err
		}
		return &statusBackend{
			sink:  client,
			read:  client.FetchStatus,
			close: func() error { return nil },
		}, nil
	}

	statuses, err := store.NewStatusStore(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	return &statusBackend{
		sink: statuses.ForUser(userID),
		read: func(ctx context.Context) (map[string]bool, error) {
			return statuses.GetStatus(ctx, userID)
		},
		close: statuses.Close,
	}, nil
}

// screenshotRenderer captures the page after every step is drawn.
type screenshotRenderer struct {
	*browser.Session
	dir string
}

func (r *screenshotRenderer) Show(ctx context.Context, v engine.View) error {
	if err := r.Session.Show(ctx, v); err != nil {
		return err
	}
	name := fmt.Sprintf("%s_%02d_%s", v.Tour, v.Position, shortID(v.RunID))
	path, err := r.Session.Screenshot(ctx, r.dir, name)
	if err != nil {
		log.Printf("Warning: %v", err)
		return nil
	}
	log.Printf("Screenshot saved to %s", path)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
