package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockSyncRunner is a mock implementation of SyncRunner
type MockSyncRunner struct {
	mock.Mock
}

func (m *MockSyncRunner) ScheduledSync(ctx context.Context) {
	m.Called(ctx)
}

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 * * * *", false},
		{"*/15 * * * *", false},
		{"0 9 * * 1-5", false},
		{"", true},
		{"every hour", true},
		{"0 0 * * * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := ParseSchedule(tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewScheduler_InvalidExpression(t *testing.T) {
	s, err := NewScheduler(new(MockSyncRunner), "not a cron")

	assert.Nil(t, s)
	assert.Error(t, err)
}

func TestNewScheduler_DefaultExpression(t *testing.T) {
	s, err := NewScheduler(new(MockSyncRunner), "")
	require.NoError(t, err)
	defer s.Stop()

	assert.Equal(t, DefaultSyncInterval, s.Expression())
}

func TestScheduler_NextRunBeforeStart(t *testing.T) {
	s, err := NewScheduler(new(MockSyncRunner), "0 * * * *")
	require.NoError(t, err)
	defer s.Stop()

	now := time.Date(2025, 6, 1, 12, 34, 56, 0, time.Local)
	s.now = func() time.Time { return now }

	next, ok := s.NextRun()

	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 6, 1, 13, 0, 0, 0, time.Local), next)
}

func TestScheduler_StartStop(t *testing.T) {
	runner := new(MockSyncRunner)
	s, err := NewScheduler(runner, "0 * * * *")
	require.NoError(t, err)

	s.Start(context.Background())

	next, ok := s.NextRun()
	require.True(t, ok)
	assert.True(t, next.After(time.Now()))
	assert.True(t, next.Before(time.Now().Add(time.Hour+time.Minute)))
	assert.Equal(t, 0, next.Minute())

	assert.NoError(t, s.Stop())
	runner.AssertNotCalled(t, "ScheduledSync", mock.Anything)
}

func TestScheduler_RunUsesStartContext(t *testing.T) {
	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "scheduled")

	runner := new(MockSyncRunner)
	runner.On("ScheduledSync", mock.MatchedBy(func(c context.Context) bool {
		return c.Value(ctxKey{}) == "scheduled"
	})).Return()

	s, err := NewScheduler(runner, "0 * * * *")
	require.NoError(t, err)
	s.Start(ctx)
	defer s.Stop()

	s.run()

	runner.AssertExpectations(t)
}
