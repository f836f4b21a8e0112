package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cloo-solutions/kbsearch/internal/domain"
	"github.com/cloo-solutions/kbsearch/internal/logging"
	"github.com/cloo-solutions/kbsearch/internal/telemetry"
	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

// Sync triggers, used as span tags and metric labels
const (
	TriggerInitialize = "initialize"
	TriggerScheduled  = "scheduled"
	TriggerManual     = "manual"
	TriggerWatch      = "watch"
)

// KnowledgeFetcher retrieves the complete record set from the vendor
type KnowledgeFetcher interface {
	FetchAll(ctx context.Context) ([]domain.KnowledgeRecord, error)
	TestConnection(ctx context.Context) domain.ConnectionResult
}

// SnapshotStore persists the record set between runs
type SnapshotStore interface {
	Load(ctx context.Context) (*domain.Snapshot, bool)
	Save(ctx context.Context, records []domain.KnowledgeRecord) (*domain.Snapshot, error)
}

// RecordIndex receives installed record sets
type RecordIndex interface {
	Update(records []domain.KnowledgeRecord)
	Statistics() domain.Statistics
}

// NextRunProvider reports when the next scheduled sync fires
type NextRunProvider interface {
	NextRun() (time.Time, bool)
}

// SyncService coordinates fetch, persist and install. At most one sync runs
// at a time; a request arriving while one is running is rejected, not queued.
type SyncService struct {
	fetcher KnowledgeFetcher
	store   SnapshotStore
	index   RecordIndex
	metrics *telemetry.Metrics
	now     func() time.Time
	log     *logrus.Entry

	// installMu orders installs so the newest snapshot always lands last.
	installMu sync.Mutex

	mu          sync.Mutex
	syncing     bool
	lastSync    *domain.SyncResult
	installedAt time.Time
	schedule    NextRunProvider
}

// NewSyncService creates a new SyncService instance
func NewSyncService(fetcher KnowledgeFetcher, store SnapshotStore, index RecordIndex, metrics *telemetry.Metrics) *SyncService {
	return &SyncService{
		fetcher: fetcher,
		store:   store,
		index:   index,
		metrics: metrics,
		now:     time.Now,
		log:     logging.Component("sync"),
	}
}

// SetSchedule attaches the scheduler used to report the next sync time.
func (s *SyncService) SetSchedule(schedule NextRunProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedule = schedule
}

// Initialize installs the local snapshot when it is fresh, otherwise runs a
// full sync. With neither a usable snapshot nor a successful sync the service
// has nothing to serve and a STARTUP_FAILURE is returned.
func (s *SyncService) Initialize(ctx context.Context) error {
	if snap, ok := s.store.Load(ctx); ok {
		s.install(snap)
		s.log.WithFields(logrus.Fields{
			"records":     snap.Count(),
			"captured_at": snap.CapturedAt,
		}).Info("initialized from local snapshot")
		return nil
	}

	result, err := s.run(ctx, TriggerInitialize)
	if err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeStartupFailure, "no usable local snapshot and initial sync failed", err)
	}

	s.log.WithField("records", result.Count).Info("initialized from vendor")
	return nil
}

// ScheduledSync runs a full sync for the scheduler. Failures are logged and
// leave the active record set untouched.
func (s *SyncService) ScheduledSync(ctx context.Context) {
	result, err := s.run(ctx, TriggerScheduled)
	switch {
	case domain.HasCode(err, domain.ErrCodeSyncInProgress):
		s.log.Info("scheduled sync skipped, a sync is already running")
	case err != nil:
		s.log.WithError(err).Error("scheduled sync failed, keeping current data")
	default:
		s.log.WithField("records", result.Count).Info("scheduled sync completed")
	}
}

// ManualSync runs a full sync on request and reports the outcome.
func (s *SyncService) ManualSync(ctx context.Context) domain.SyncResult {
	result, err := s.run(ctx, TriggerManual)
	if err != nil {
		s.log.WithError(err).Warn("manual sync did not complete")
	}
	return result
}

// Syncing reports whether a sync is running
func (s *SyncService) Syncing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncing
}

// Status combines index statistics with scheduler and sync state.
func (s *SyncService) Status(ctx context.Context) domain.Status {
	s.mu.Lock()
	syncing := s.syncing
	schedule := s.schedule
	var last *domain.SyncResult
	if s.lastSync != nil {
		copied := *s.lastSync
		last = &copied
	}
	s.mu.Unlock()

	status := domain.Status{
		Statistics: s.index.Statistics(),
		Syncing:    syncing,
		LastSync:   last,
	}
	if schedule != nil {
		if next, ok := schedule.NextRun(); ok {
			status.NextSync = next
		}
	}
	return status
}

// TestConnection checks vendor reachability. Nothing is installed or saved.
func (s *SyncService) TestConnection(ctx context.Context) domain.ConnectionResult {
	ctx, span := telemetry.StartSpan(ctx, "SyncService.TestConnection", telemetry.SpanAttributes{
		Operation: "test_connection",
	})
	defer span.End()

	result := s.fetcher.TestConnection(ctx)
	span.SetRecords(result.Count)
	if !result.Success {
		span.SetStatus(sentry.SpanStatusUnavailable)
	}
	return result
}

// InstallSnapshot installs a snapshot written by another process when it is
// newer than the active one. It returns whether the snapshot was installed.
func (s *SyncService) InstallSnapshot(snap *domain.Snapshot) bool {
	if snap == nil {
		return false
	}

	s.installMu.Lock()
	defer s.installMu.Unlock()

	s.mu.Lock()
	stale := s.syncing || !snap.CapturedAt.After(s.installedAt)
	s.mu.Unlock()
	if stale {
		return false
	}

	s.installLocked(snap)
	s.metrics.ObserveSync(TriggerWatch, "installed", 0)
	s.log.WithFields(logrus.Fields{
		"records":     snap.Count(),
		"captured_at": snap.CapturedAt,
	}).Info("installed snapshot written by another process")
	return true
}

func (s *SyncService) install(snap *domain.Snapshot) {
	s.installMu.Lock()
	defer s.installMu.Unlock()
	s.installLocked(snap)
}

// installLocked requires installMu.
func (s *SyncService) installLocked(snap *domain.Snapshot) {
	s.index.Update(snap.Records)

	s.mu.Lock()
	s.installedAt = snap.CapturedAt
	s.mu.Unlock()

	s.metrics.SetIndexedRecords(snap.Count())
}

func (s *SyncService) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.syncing {
		return false
	}
	s.syncing = true
	return true
}

func (s *SyncService) release(result domain.SyncResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncing = false
	s.lastSync = &result
}

// run executes one single-flight sync attempt for trigger.
func (s *SyncService) run(ctx context.Context, trigger string) (domain.SyncResult, error) {
	if !s.acquire() {
		s.metrics.ObserveSync(trigger, "busy", 0)
		return domain.NewSyncFailure(domain.ErrSyncInProgress, s.now()), domain.ErrSyncInProgress
	}

	started := s.now()
	count, err := s.perform(ctx, trigger)
	finished := s.now()

	var result domain.SyncResult
	if err != nil {
		result = domain.NewSyncFailure(err, finished)
		s.metrics.ObserveSync(trigger, "failure", finished.Sub(started))
	} else {
		result = domain.NewSyncSuccess(count, finished)
		s.metrics.ObserveSync(trigger, "success", finished.Sub(started))
	}

	s.release(result)
	return result, err
}

func (s *SyncService) perform(ctx context.Context, trigger string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "SyncService.Sync", telemetry.SpanAttributes{
		Operation: "sync",
		Trigger:   trigger,
	})
	defer span.End()

	log := s.log.WithField("trigger", trigger)
	log.Info("sync started")

	records, err := s.fetcher.FetchAll(ctx)
	if err != nil {
		span.SetError(err)
		return 0, err
	}
	if len(records) == 0 {
		span.SetError(domain.ErrNoRecords)
		return 0, domain.ErrNoRecords
	}
	span.SetRecords(len(records))
	telemetry.AddBreadcrumb(ctx, "sync", fmt.Sprintf("fetched %d records", len(records)))

	snap, err := s.store.Save(ctx, records)
	if err != nil {
		log.WithError(err).Warn("failed to save local snapshot, serving fetched data anyway")
		telemetry.CaptureError(ctx, err)
		snap = domain.NewSnapshot(s.now(), records)
	}

	s.install(snap)
	log.WithField("records", snap.Count()).Info("sync completed")
	return snap.Count(), nil
}
