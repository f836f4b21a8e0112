package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/kbsearch/internal/api/handlers"
	"github.com/cloo-solutions/kbsearch/internal/config"
	"github.com/cloo-solutions/kbsearch/internal/domain"
	"github.com/cloo-solutions/kbsearch/internal/jobs"
	"github.com/cloo-solutions/kbsearch/internal/logging"
	"github.com/cloo-solutions/kbsearch/internal/server"
	"github.com/cloo-solutions/kbsearch/internal/telemetry"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the search server",
		Long:  "Load the knowledge base, keep it in sync on a schedule and serve the search API",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides KBSEARCH_PORT)")
	cmd.Flags().String("host", "", "Host to bind (overrides KBSEARCH_HOST)")

	cmd.Annotations = envAnnotations(envVendor, envSnapshot, envSearch, envServe)

	return cmd
}

// newServeApp builds the app for serve. Without vendor credentials the
// daemon can still serve a fresh local snapshot but cannot sync.
func newServeApp(cfg *config.Config, log logrus.FieldLogger) (*app, error) {
	if !cfg.HasCredentials() {
		log.Warn("vendor credentials not set, serving the local snapshot without sync")
	}
	return newApp(cfg, cfg.HasCredentials())
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetString("port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Host, _ = cmd.Flags().GetString("host")
	}

	shutdownTelemetry := initTelemetry(cfg)
	defer shutdownTelemetry()

	log := logging.Component("server")

	a, err := newServeApp(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.sync.Initialize(ctx); err != nil {
		telemetry.CaptureError(ctx, err)
		return err
	}

	scheduler, err := jobs.NewScheduler(a.sync, cfg.SyncInterval)
	if err != nil {
		return err
	}
	a.sync.SetSchedule(scheduler)
	scheduler.Start(ctx)

	if cfg.WatchSnapshot {
		go func() {
			err := a.store.Watch(ctx, func(snap *domain.Snapshot) {
				a.sync.InstallSnapshot(snap)
			})
			if err != nil {
				log.WithError(err).Warn("snapshot watcher stopped")
			}
		}()
	}

	router := server.NewRouter(server.RouterConfig{
		KnowledgeHandler: handlers.NewKnowledgeHandler(a.knowledge, handlers.SearchDefaults{
			MaxResults:        cfg.MaxResults,
			MinSimilarity:     cfg.MinSimilarity,
			HotQuestionsLimit: cfg.HotQuestionsLimit,
		}),
		SyncHandler: handlers.NewSyncHandler(a.sync),
		Metrics:     a.metrics.Handler(),
		Logger:      logrus.StandardLogger(),
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Addr()).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("shutting down...")
	case err := <-serveErr:
		cancel()
		_ = scheduler.Stop()
		return fmt.Errorf("server failed: %w", err)
	}

	cancel()
	if err := scheduler.Stop(); err != nil {
		log.WithError(err).Warn("scheduler did not stop cleanly")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited")
	return nil
}
