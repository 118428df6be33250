package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"livecollab/config"
	"livecollab/config/database"
	docHandler "livecollab/internal/document"
	"livecollab/internal/document/repository"
	"livecollab/internal/document/service"
	"livecollab/internal/presence"
	"livecollab/internal/session"
	"livecollab/pkg/logger"
	"livecollab/pkg/metrics"
	"livecollab/router"
	"livecollab/socket"
	"livecollab/store"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var (
	flagAddr     string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:          "livecollab",
	Short:        "Shared plain-text editing server with last-write-wins sync",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			cfg.Addr = flagAddr
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = flagLogLevel
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := logger.Init(cfg.LogLevel); err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	rootCmd.Flags().StringVar(&flagAddr, "addr", ":8080", "Address the HTTP server listens on (overrides ADDR)")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "info", "Log level (overrides LOG_LEVEL)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	m, err := metrics.New()
	if err != nil {
		return err
	}

	// 1. The in-memory engine: documents, presence and per-participant sessions.
	docs := store.New()
	tracker := presence.NewTracker()
	sessions := session.NewRegistry(docs, tracker, session.Config{
		DebounceInterval: cfg.DebounceInterval,
		LivenessWindow:   cfg.LivenessWindow,
	}, session.WithMetrics(m))

	svc := service.NewDocumentService(docs, tracker, sessions, cfg.LivenessWindow)
	svc.Metrics = m

	// 2. Snapshots go to Postgres only when a database is configured.
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()

		archive := repository.NewArchiveRepository(db)
		if err := archive.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to prepare archive schema: %w", err)
		}
		svc.Archive = archive
	} else {
		logger.Sugar.Info("DATABASE_URL not set, snapshot archive disabled")
	}

	// 3. Transports.
	hub := socket.NewHub(svc, cfg.PollInterval)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router.Setup(docHandler.NewDocumentHandler(svc), hub, m, cfg.AllowedOrigin),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Sugar.Infof("Server listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		tracker.RunSweeper(gctx, cfg.SweepInterval, cfg.LivenessWindow)
		return nil
	})
	g.Go(func() error {
		svc.ArchiveWorker(gctx, cfg.ArchiveInterval)
		return nil
	})

	err = g.Wait()

	// Commit whatever is still pending, then archive it.
	sessions.CloseAll()
	svc.ArchiveChanged(context.Background())

	logger.Sugar.Info("Server stopped")
	return err
}
