// Package main provides the conductor daemon entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/conductor/internal/config"
	db "github.com/thebtf/conductor/internal/db/gorm"
	"github.com/thebtf/conductor/internal/engine"
	"github.com/thebtf/conductor/internal/server"
	"github.com/thebtf/conductor/internal/watcher"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	listenAddr := flag.String("listen", "", "Listen address (default from settings)")
	dbPath := flag.String("db", "", "SQLite database path (default from settings)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	if err := config.EnsureAll(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure data directories")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := db.NewStore(db.Config{
		Driver:   cfg.DBDriver,
		Path:     cfg.DBPath,
		DSN:      cfg.DBDSN,
		MaxConns: cfg.MaxConns,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer store.Close()

	events := engine.NewEventLog(db.NewEventStore(store))
	manager := engine.NewManager(store, events, engine.DefaultRegistry(), engine.NopExecutor{}, engine.Config{
		CancelGrace: cfg.CancelGrace(),
		Background:  cfg.BackgroundExecution,
	})
	svc := server.NewService(Version, cfg, store, manager, events)

	// Restarting on settings changes lets a supervisor hand us the new
	// configuration cleanly.
	settingsWatcher, err := watcher.New(config.SettingsPath(), func() {
		log.Info().Msg("Settings changed, shutting down for restart")
		stop()
	})
	if err != nil {
		log.Warn().Err(err).Msg("Settings watcher unavailable")
	} else if err := settingsWatcher.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start settings watcher")
	} else {
		defer settingsWatcher.Stop()
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", cfg.ListenAddr).Str("version", Version).Msg("Conductor listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.SweepInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				manager.Sweep(ctx)
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Conductor exited with error")
	}
	log.Info().Msg("Conductor stopped")
}
