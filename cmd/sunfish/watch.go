package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/modelfoxdotdev/sunfish/internal/api"
	"github.com/modelfoxdotdev/sunfish/internal/config"
	"github.com/modelfoxdotdev/sunfish/internal/cycle"
	"github.com/modelfoxdotdev/sunfish/internal/frontdoor"
	"github.com/modelfoxdotdev/sunfish/internal/journal"
	"github.com/modelfoxdotdev/sunfish/internal/logbuf"
	"github.com/modelfoxdotdev/sunfish/internal/metrics"
	"github.com/modelfoxdotdev/sunfish/internal/port"
	"github.com/modelfoxdotdev/sunfish/internal/proxy"
	"github.com/modelfoxdotdev/sunfish/internal/state"
	"github.com/modelfoxdotdev/sunfish/internal/watch"
)

const shutdownTimeout = 5 * time.Second

var watchCmd = &cobra.Command{
	Use:   "watch [flags] [-- command]",
	Short: "Run the supervisor",
	Long: "Watch the configured roots, run the server command under sh -c with HOST and PORT set, " +
		"and serve it through a proxy that holds requests while a new build starts.",
	RunE: runWatch,
}

func init() {
	f := watchCmd.Flags()
	f.String("host", "", "front door bind host (default 127.0.0.1)")
	f.Int("port", 0, "front door port (default 8080)")
	f.String("child-host", "", "host the child binds (default 127.0.0.1)")
	f.Int("child-port", 0, "port the child binds; 0 picks a free port (default 8081)")
	f.StringSlice("watch", nil, "directories to watch (default .)")
	f.StringSlice("ignore", nil, "path prefixes to ignore")
	f.String("command", "", "shell command that builds and runs the server")
	f.Duration("debounce", 0, "debounce window (default 10ms)")
	f.Int("batch-limit", 0, "signals per batch before a rebuild is forced")
	f.Duration("probe-interval", 0, "readiness poll interval (default 100ms)")
	f.Duration("ready-timeout", 0, "stop waiting for the child to listen after this long")
	f.Duration("kill-timeout", 0, "SIGTERM grace period before SIGKILL")
	f.String("state-file", "", "where the running child is recorded")
	f.String("journal", "", "append rebuild history as JSON lines to this file")
	f.Int("log-lines", 0, "child output lines kept for the admin API (default 1000)")
	rootCmd.AddCommand(watchCmd)
}

// loadConfig reads the config file and applies flag and environment overrides.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	v, err := config.NewViper(cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}
	cfg.Overlay(v)

	if n := cmd.ArgsLenAtDash(); n >= 0 && len(args) > n {
		// Quoted so sh -c sees the same argv the user typed after --.
		cfg.Command = shellquote.Join(args[n:]...)
	}
	return cfg, nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}
	cfg = cfg.Resolve(cwd)
	logger := slog.Default()

	if cfg.ChildPort == 0 {
		p, err := port.Pick(cfg.ChildHost, cfg.Port)
		if err != nil {
			return err
		}
		cfg.ChildPort = p
		logger.Info("picked child port", "port", p)
	}

	statePath, err := stateFilePath(cfg)
	if err != nil {
		return err
	}
	sf := state.New(statePath)
	if _, err := cycle.ReapStale(sf, logger); err != nil {
		logger.Warn("could not reap stale child", "error", err, "state_file", statePath)
	}

	var jr *journal.Journal
	if cfg.Journal != "" {
		jr, err = journal.Open(cfg.Journal)
		if err != nil {
			return err
		}
		defer jr.Close()
	}

	m := metrics.New()
	ring := logbuf.New(cfg.LogLines)
	signals := watch.NewSignals()

	w, err := watch.New(cfg.Watch, cfg.Ignore, signals, logger.With("component", "watch"))
	if err != nil {
		return err
	}
	m.WatchedPaths.Set(float64(w.Paths()))

	sup := cycle.New(cycle.Config{
		Command:       cfg.Command,
		ChildHost:     cfg.ChildHost,
		ChildPort:     cfg.ChildPort,
		WorkingDir:    cwd,
		ProbeInterval: cfg.ProbeInterval.Duration,
		ReadyTimeout:  cfg.ReadyTimeout.Duration,
		KillTimeout:   cfg.KillTimeout.Duration,
	}, cycle.Options{
		Logger:  logger,
		Output:  ring,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Metrics: m,
		State:   sf,
		Journal: jr,
	})

	front := frontdoor.New(frontdoor.Handler(sup, proxy.New(cfg.ChildAddr(), m, logger), m), logger)
	if err := front.Bind(cfg.Addr()); err != nil {
		return fmt.Errorf("binding front door: %w", err)
	}

	var admin *api.Server
	if cfg.AdminAddr != "" {
		admin = api.NewServer(sup, signals, ring, m.Handler())
		if err := admin.Bind(cfg.AdminAddr); err != nil {
			front.Shutdown(context.Background())
			return fmt.Errorf("binding admin API: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	triggers := watch.Debounce(gctx, signals, cfg.Debounce.Duration, cfg.BatchLimit)

	g.Go(func() error {
		return w.Run(gctx)
	})
	g.Go(func() error {
		runRebuilds(gctx, sup, triggers, logger)
		return nil
	})
	g.Go(front.Serve)
	if admin != nil {
		g.Go(admin.Serve)
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if admin != nil {
			if err := admin.Shutdown(shutdownCtx); err != nil {
				logger.Warn("admin API shutdown", "error", err)
			}
		}
		return front.Shutdown(shutdownCtx)
	})

	logger.Info("sunfish ready",
		"addr", cfg.Addr(),
		"child_addr", cfg.ChildAddr(),
		"command", cfg.Command,
		"admin_addr", cfg.AdminAddr,
	)

	err = g.Wait()
	logger.Info("sunfish stopped")
	return err
}

// runRebuilds drives the rebuild loop. A failed rebuild ends the loop but not
// the process: the front door keeps answering, with 503s once no child is
// listening, until the user interrupts.
func runRebuilds(ctx context.Context, sup *cycle.Supervisor, triggers <-chan int, logger *slog.Logger) {
	if err := sup.Run(ctx, triggers); err != nil {
		logger.Error("rebuild loop stopped; fix the command and restart sunfish", "error", err)
	}
}
