// Package daemon implements the kbsearchd commands.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/cloo-solutions/kbsearch/internal/cli"
	"github.com/cloo-solutions/kbsearch/internal/config"
	"github.com/cloo-solutions/kbsearch/internal/domain"
	"github.com/cloo-solutions/kbsearch/internal/logging"
	"github.com/cloo-solutions/kbsearch/internal/qiyu"
	"github.com/cloo-solutions/kbsearch/internal/search"
	"github.com/cloo-solutions/kbsearch/internal/service"
	"github.com/cloo-solutions/kbsearch/internal/snapshot"
	"github.com/cloo-solutions/kbsearch/internal/telemetry"
	"github.com/sirupsen/logrus"
)

// app holds the components shared by the commands.
type app struct {
	cfg       *config.Config
	metrics   *telemetry.Metrics
	store     *snapshot.FileStore
	index     *search.Index
	knowledge *service.KnowledgeService
	sync      *service.SyncService
}

// loadConfig reads configuration and configures logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.LogLevel
	if cfg.Debug {
		level = "debug"
	}
	logging.Init(logging.Config{Level: level, Format: cfg.LogFormat})
	return cfg, nil
}

// newApp wires the store, index and services. The vendor client is only
// created when withVendor is set, since it requires credentials.
func newApp(cfg *config.Config, withVendor bool) (*app, error) {
	a := &app{
		cfg:     cfg,
		metrics: telemetry.NewMetrics(),
		store:   snapshot.NewFileStore(cfg.DataFile, cfg.CacheTimeout),
		index:   search.NewIndex(),
	}
	a.knowledge = service.NewKnowledgeService(a.index, cfg.QueryCacheTTL, a.metrics)

	var fetcher service.KnowledgeFetcher = unconfiguredFetcher{}
	if withVendor {
		client, err := qiyu.NewClient(qiyu.Config{
			AppKey:            cfg.AppKey,
			AppSecret:         cfg.AppSecret,
			APIURL:            cfg.APIURL,
			PageSize:          cfg.BatchSize,
			Timeout:           cfg.RequestTimeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
			MaxPages:          cfg.MaxPages,
			Metrics:           a.metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create vendor client (set KBSEARCH_APP_KEY and KBSEARCH_APP_SECRET): %w", err)
		}
		fetcher = client
	}
	a.sync = service.NewSyncService(fetcher, a.store, a.index, a.metrics)

	return a, nil
}

// initTelemetry starts Sentry when a DSN is configured. The returned
// function flushes pending events.
func initTelemetry(cfg *config.Config) func() {
	if !cfg.HasSentry() {
		return func() {}
	}

	// Default to 10% sampling in production, 100% in development
	sampleRate := 0.1
	if cfg.Environment == "development" {
		sampleRate = 1.0
	}

	shutdown, err := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		TracesSampleRate: sampleRate,
		Debug:            cfg.Debug,
	})
	if err != nil {
		logrus.WithError(err).Warn("telemetry init failed, continuing without tracing")
		return func() {}
	}
	return shutdown
}

func printJSON(w io.Writer, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// loadLocal installs the saved snapshot regardless of its age.
func (a *app) loadLocal(ctx context.Context) (*domain.Snapshot, error) {
	snap, err := a.store.Read(ctx)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeNotFound,
				fmt.Sprintf("no local snapshot at %s, run 'kbsearchd sync' first", a.store.Path()), err)
		}
		return nil, err
	}
	a.index.Update(snap.Records)
	return snap, nil
}

// Environment variables read by each command, surfaced by --help-json.
var (
	envCommon = []string{"KBSEARCH_DEBUG", "KBSEARCH_LOG_FORMAT", "KBSEARCH_LOG_LEVEL"}

	envVendor = []string{
		"KBSEARCH_APP_KEY", "KBSEARCH_APP_SECRET", "KBSEARCH_API_URL", "KBSEARCH_BATCH_SIZE",
		"KBSEARCH_REQUEST_TIMEOUT", "KBSEARCH_REQUESTS_PER_SECOND", "KBSEARCH_MAX_PAGES",
	}

	envSnapshot = []string{"KBSEARCH_DATA_FILE", "KBSEARCH_CACHE_TIMEOUT"}

	envSearch = []string{"KBSEARCH_MIN_SIMILARITY", "KBSEARCH_MAX_RESULTS"}

	envServe = []string{
		"KBSEARCH_HOST", "KBSEARCH_PORT", "KBSEARCH_SYNC_INTERVAL", "KBSEARCH_WATCH_SNAPSHOT",
		"KBSEARCH_HOT_QUESTIONS_LIMIT", "KBSEARCH_QUERY_CACHE_TTL",
		"KBSEARCH_SENTRY_DSN", "KBSEARCH_ENVIRONMENT",
	}
)

func envAnnotations(groups ...[]string) map[string]string {
	var vars []string
	for _, g := range groups {
		vars = append(vars, g...)
	}
	return map[string]string{cli.EnvAnnotation: strings.Join(append(vars, envCommon...), ",")}
}

