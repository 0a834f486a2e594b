package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m0rik/panenap/internal/config"
	"github.com/m0rik/panenap/internal/daemon"
	"github.com/m0rik/panenap/internal/db"
	"github.com/m0rik/panenap/internal/dispatch"
	"github.com/m0rik/panenap/internal/engine"
	"github.com/m0rik/panenap/internal/observer"
	"github.com/m0rik/panenap/internal/proctable"
	"github.com/m0rik/panenap/internal/registry"
	"github.com/m0rik/panenap/internal/runner"
	"github.com/m0rik/panenap/internal/visibility"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := db.Open(ctx, cfg.DBPath)
	if err != nil {
		fatal(err)
	}
	defer store.Close() //nolint:errcheck

	if err := db.ApplyMigrations(ctx, store.DB()); err != nil {
		fatal(err)
	}

	executor := runner.NewExecutor(cfg)
	reg := registry.New()
	eng := engine.New(engine.Deps{
		Entities:        reg,
		Table:           proctable.NewPS(executor),
		Dispatcher:      dispatch.New(dispatch.KillSignaler{}),
		Recorder:        store,
		ExcludeCommands: cfg.ExcludeCommands,
		Logf:            func(format string, args ...any) { logErr(fmt.Sprintf(format, args...), nil) },
	})
	obs := observer.New(executor, reg, eng, visibility.NewTmux(executor))

	startObserverLoop(ctx, obs, reg, store, cfg.PollInterval)
	startRetentionLoop(ctx, store, cfg.HistoryLimit)

	srv := daemon.NewServer(cfg, store, reg, eng)
	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fatal(err)
	}

	// Shutdown must leave nothing stopped behind us.
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer drainCancel()
	if _, err := eng.Drain(drainCtx); err != nil {
		logErr("drain on shutdown", err)
	}
}

func loadConfig(args []string) (config.Config, error) {
	cfg := config.DefaultConfig()
	fs := flag.NewFlagSet("panenapd", flag.ContinueOnError)
	configPath := fs.String("config", "", "yaml config file path")
	fs.StringVar(&cfg.SocketPath, "socket", cfg.SocketPath, "UDS path for panenapd")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite path")
	fs.DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "tmux poll interval")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if *configPath != "" {
		fc, err := config.LoadFile(*configPath)
		if err != nil {
			return cfg, err
		}
		cfg, err = cfg.Apply(fc)
		if err != nil {
			return cfg, err
		}
		// Flags passed explicitly win over the file overlay.
		var reparse []string
		fs.Visit(func(f *flag.Flag) {
			if f.Name != "config" {
				reparse = append(reparse, "-"+f.Name, f.Value.String())
			}
		})
		if len(reparse) > 0 {
			rfs := flag.NewFlagSet("panenapd", flag.ContinueOnError)
			rfs.StringVar(&cfg.SocketPath, "socket", cfg.SocketPath, "")
			rfs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "")
			rfs.DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "")
			if err := rfs.Parse(reparse); err != nil {
				return cfg, err
			}
		}
	}
	if cfg.PollInterval <= 0 {
		return cfg, fmt.Errorf("poll interval must be positive")
	}
	return cfg, nil
}

func startObserverLoop(ctx context.Context, obs *observer.TmuxObserver, reg *registry.Registry, store *db.Store, interval time.Duration) {
	run := func() {
		if err := obs.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logErr("observer tick", err)
		}
		if err := store.SyncEntities(ctx, reg.List()); err != nil && !errors.Is(err, context.Canceled) {
			logErr("sync entities", err)
		}
	}
	run()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
}

func startRetentionLoop(ctx context.Context, store *db.Store, keep int) {
	run := func() {
		if err := store.PurgeCycles(ctx, keep); err != nil && !errors.Is(err, context.Canceled) {
			logErr("cycle retention purge", err)
		}
	}
	run()
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
}

func logErr(scope string, err error) {
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "panenapd: %s: %v\n", scope, err)
		return
	}
	_, _ = fmt.Fprintf(os.Stderr, "panenapd: %s\n", scope)
}

func fatal(err error) {
	_, _ = fmt.Fprintf(os.Stderr, "panenapd: %v\n", err)
	os.Exit(1)
}
