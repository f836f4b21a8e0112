package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloo-solutions/kbsearch/internal/domain"
	"github.com/cloo-solutions/kbsearch/internal/search"
	"github.com/cloo-solutions/kbsearch/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockFetcher is a mock implementation of KnowledgeFetcher
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) FetchAll(ctx context.Context) ([]domain.KnowledgeRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.KnowledgeRecord), args.Error(1)
}

func (m *MockFetcher) TestConnection(ctx context.Context) domain.ConnectionResult {
	args := m.Called(ctx)
	return args.Get(0).(domain.ConnectionResult)
}

// MockSnapshotStore is a mock implementation of SnapshotStore
type MockSnapshotStore struct {
	mock.Mock
}

func (m *MockSnapshotStore) Load(ctx context.Context) (*domain.Snapshot, bool) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*domain.Snapshot), args.Bool(1)
}

func (m *MockSnapshotStore) Save(ctx context.Context, records []domain.KnowledgeRecord) (*domain.Snapshot, error) {
	args := m.Called(ctx, records)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Snapshot), args.Error(1)
}

// MockSchedule is a mock implementation of NextRunProvider
type MockSchedule struct {
	mock.Mock
}

func (m *MockSchedule) NextRun() (time.Time, bool) {
	args := m.Called()
	return args.Get(0).(time.Time), args.Bool(1)
}

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func sampleRecords() []domain.KnowledgeRecord {
	return []domain.KnowledgeRecord{
		{ID: 1, Question: "办公时间", Answer: "9:00-18:00", Category: "general"},
		{ID: 2, Question: "联系电话多少", Answer: "400-000-0000"},
		{ID: 3, Question: "如何退款", Answer: "联系客服"},
	}
}

type syncFixture struct {
	fetcher *MockFetcher
	store   *MockSnapshotStore
	index   *search.Index
	metrics *telemetry.Metrics
	svc     *SyncService
}

func newSyncFixture() *syncFixture {
	f := &syncFixture{
		fetcher: new(MockFetcher),
		store:   new(MockSnapshotStore),
		index:   search.NewIndex(),
		metrics: telemetry.NewMetrics(),
	}
	f.svc = NewSyncService(f.fetcher, f.store, f.index, f.metrics)
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func TestSyncService_Initialize_FreshSnapshot(t *testing.T) {
	f := newSyncFixture()
	snap := domain.NewSnapshot(fixedNow.Add(-10*time.Minute), sampleRecords())
	f.store.On("Load", mock.Anything).Return(snap, true)

	err := f.svc.Initialize(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, f.index.Len())
	f.fetcher.AssertNotCalled(t, "FetchAll", mock.Anything)
	f.store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	assert.Equal(t, float64(3), testutil.ToFloat64(f.metrics.IndexedRecords))
}

func TestSyncService_Initialize_MissThenSync(t *testing.T) {
	f := newSyncFixture()
	records := sampleRecords()
	f.store.On("Load", mock.Anything).Return(nil, false)
	f.fetcher.On("FetchAll", mock.Anything).Return(records, nil)
	f.store.On("Save", mock.Anything, records).Return(domain.NewSnapshot(fixedNow, records), nil)

	err := f.svc.Initialize(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, f.index.Len())
	f.fetcher.AssertExpectations(t)
	f.store.AssertExpectations(t)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.SyncAttempts.WithLabelValues(TriggerInitialize, "success")))
}

func TestSyncService_Initialize_StartupFailure(t *testing.T) {
	f := newSyncFixture()
	f.store.On("Load", mock.Anything).Return(nil, false)
	f.fetcher.On("FetchAll", mock.Anything).Return(nil, domain.NewNetworkError("vendor unreachable", errors.New("dial tcp")))

	err := f.svc.Initialize(context.Background())

	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.ErrCodeStartupFailure))
	assert.True(t, domain.HasCode(err, domain.ErrCodeNetwork))
	assert.Equal(t, 0, f.index.Len())
	f.store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestSyncService_ManualSync_Success(t *testing.T) {
	f := newSyncFixture()
	records := sampleRecords()
	f.fetcher.On("FetchAll", mock.Anything).Return(records, nil)
	f.store.On("Save", mock.Anything, records).Return(domain.NewSnapshot(fixedNow, records), nil)

	result := f.svc.ManualSync(context.Background())

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Count)
	assert.Equal(t, fixedNow, result.Timestamp)
	assert.Equal(t, 3, f.index.Len())

	status := f.svc.Status(context.Background())
	require.NotNil(t, status.LastSync)
	assert.True(t, status.LastSync.Success)
	assert.False(t, status.Syncing)
}

func TestSyncService_ManualSync_FetchFailureKeepsData(t *testing.T) {
	f := newSyncFixture()
	f.index.Update(sampleRecords())
	generation := f.index.Generation()
	f.fetcher.On("FetchAll", mock.Anything).Return(nil, domain.NewMalformedResponseError("bad payload", nil))

	result := f.svc.ManualSync(context.Background())

	assert.False(t, result.Success)
	assert.Equal(t, domain.ErrCodeMalformedResponse, result.Code)
	assert.NotEmpty(t, result.Error)
	assert.Equal(t, 3, f.index.Len())
	assert.Equal(t, generation, f.index.Generation())
	f.store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestSyncService_ManualSync_ZeroRecordsIsFailure(t *testing.T) {
	f := newSyncFixture()
	f.index.Update(sampleRecords())
	f.fetcher.On("FetchAll", mock.Anything).Return([]domain.KnowledgeRecord{}, nil)

	result := f.svc.ManualSync(context.Background())

	assert.False(t, result.Success)
	assert.Equal(t, domain.ErrCodeEmptyDataset, result.Code)
	assert.Equal(t, 3, f.index.Len())
	f.store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestSyncService_ManualSync_SaveFailureIsNotFatal(t *testing.T) {
	f := newSyncFixture()
	records := sampleRecords()[:2]
	f.fetcher.On("FetchAll", mock.Anything).Return(records, nil)
	f.store.On("Save", mock.Anything, records).Return(nil, domain.NewDomainError(domain.ErrCodeCachePersist, "disk full"))

	result := f.svc.ManualSync(context.Background())

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Count)
	assert.Equal(t, 2, f.index.Len())
}

func TestSyncService_ManualSync_Busy(t *testing.T) {
	f := newSyncFixture()
	records := sampleRecords()
	release := make(chan struct{})
	f.fetcher.On("FetchAll", mock.Anything).
		Run(func(args mock.Arguments) { <-release }).
		Return(records, nil).
		Once()
	f.store.On("Save", mock.Anything, records).Return(domain.NewSnapshot(fixedNow, records), nil)

	first := make(chan domain.SyncResult, 1)
	go func() {
		first <- f.svc.ManualSync(context.Background())
	}()

	require.Eventually(t, f.svc.Syncing, time.Second, 5*time.Millisecond)

	busy := f.svc.ManualSync(context.Background())
	assert.False(t, busy.Success)
	assert.Equal(t, "sync already in progress", busy.Error)
	assert.Equal(t, domain.ErrCodeSyncInProgress, busy.Code)
	assert.True(t, f.svc.Status(context.Background()).Syncing)

	close(release)
	result := <-first
	assert.True(t, result.Success)
	assert.False(t, f.svc.Syncing())
	f.fetcher.AssertNumberOfCalls(t, "FetchAll", 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.SyncAttempts.WithLabelValues(TriggerManual, "busy")))
}

func TestSyncService_ScheduledSync(t *testing.T) {
	f := newSyncFixture()
	records := sampleRecords()
	f.fetcher.On("FetchAll", mock.Anything).Return(records, nil)
	f.store.On("Save", mock.Anything, records).Return(domain.NewSnapshot(fixedNow, records), nil)

	f.svc.ScheduledSync(context.Background())

	assert.Equal(t, 3, f.index.Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.SyncAttempts.WithLabelValues(TriggerScheduled, "success")))
}

func TestSyncService_ScheduledSync_FailureLeavesIndex(t *testing.T) {
	f := newSyncFixture()
	f.index.Update(sampleRecords()[:1])
	f.fetcher.On("FetchAll", mock.Anything).Return(nil, domain.NewNetworkError("timeout", nil))

	f.svc.ScheduledSync(context.Background())

	assert.Equal(t, 1, f.index.Len())
	status := f.svc.Status(context.Background())
	require.NotNil(t, status.LastSync)
	assert.False(t, status.LastSync.Success)
	assert.Equal(t, domain.ErrCodeNetwork, status.LastSync.Code)
}

func TestSyncService_Status(t *testing.T) {
	f := newSyncFixture()
	f.index.Update(sampleRecords())
	next := fixedNow.Add(time.Hour)
	schedule := new(MockSchedule)
	schedule.On("NextRun").Return(next, true)
	f.svc.SetSchedule(schedule)

	status := f.svc.Status(context.Background())

	assert.Equal(t, 3, status.TotalQuestions)
	assert.Equal(t, map[string]int{"general": 1}, status.Categories)
	assert.Equal(t, next, status.NextSync)
	assert.Nil(t, status.LastSync)
	assert.False(t, status.Syncing)
}

func TestSyncService_Status_NoSchedule(t *testing.T) {
	f := newSyncFixture()

	status := f.svc.Status(context.Background())

	assert.True(t, status.NextSync.IsZero())
	assert.Equal(t, 0, status.TotalQuestions)
}

func TestSyncService_TestConnection(t *testing.T) {
	f := newSyncFixture()
	f.fetcher.On("TestConnection", mock.Anything).Return(domain.ConnectionResult{
		Success: true,
		Count:   3,
		Message: "connection succeeded",
	})

	result := f.svc.TestConnection(context.Background())

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Count)
	assert.Equal(t, 0, f.index.Len())
	f.store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestSyncService_InstallSnapshot(t *testing.T) {
	f := newSyncFixture()
	older := domain.NewSnapshot(fixedNow.Add(-time.Hour), sampleRecords()[:1])
	newer := domain.NewSnapshot(fixedNow, sampleRecords())

	assert.True(t, f.svc.InstallSnapshot(older))
	assert.Equal(t, 1, f.index.Len())

	assert.True(t, f.svc.InstallSnapshot(newer))
	assert.Equal(t, 3, f.index.Len())

	assert.False(t, f.svc.InstallSnapshot(older), "older snapshots are ignored")
	assert.False(t, f.svc.InstallSnapshot(newer), "the installed snapshot is not reinstalled")
	assert.False(t, f.svc.InstallSnapshot(nil))
	assert.Equal(t, 3, f.index.Len())
}

// gatedIndex blocks its first Update until release is closed.
type gatedIndex struct {
	*search.Index
	entered chan struct{}
	release chan struct{}
	once    sync.Once

	mu    sync.Mutex
	sizes []int
}

func newGatedIndex() *gatedIndex {
	return &gatedIndex{
		Index:   search.NewIndex(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (g *gatedIndex) Update(records []domain.KnowledgeRecord) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}

	g.Index.Update(records)
	g.mu.Lock()
	g.sizes = append(g.sizes, len(records))
	g.mu.Unlock()
}

func (g *gatedIndex) updates() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int(nil), g.sizes...)
}

func TestSyncService_InstallSnapshot_SyncFinishingMidInstallWins(t *testing.T) {
	fetcher := new(MockFetcher)
	store := new(MockSnapshotStore)
	idx := newGatedIndex()
	svc := NewSyncService(fetcher, store, idx, telemetry.NewMetrics())
	svc.now = func() time.Time { return fixedNow }

	records := sampleRecords()
	saved := make(chan struct{})
	fetcher.On("FetchAll", mock.Anything).Return(records, nil)
	store.On("Save", mock.Anything, records).
		Run(func(args mock.Arguments) { close(saved) }).
		Return(domain.NewSnapshot(fixedNow, records), nil)

	watched := domain.NewSnapshot(fixedNow.Add(-time.Hour), records[:1])
	installed := make(chan bool, 1)
	go func() { installed <- svc.InstallSnapshot(watched) }()
	<-idx.entered

	results := make(chan domain.SyncResult, 1)
	go func() { results <- svc.ManualSync(context.Background()) }()
	<-saved
	close(idx.release)

	assert.True(t, <-installed)
	result := <-results
	require.True(t, result.Success)

	assert.Equal(t, []int{1, 3}, idx.updates(), "the synced set is installed after the watched one")
	assert.Equal(t, 3, idx.Len())
	assert.False(t, svc.InstallSnapshot(watched))
}
