package publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "signaccess/pkg/domain-errors"
	audit "signaccess/pkg/platform/audit"
	"signaccess/pkg/platform/audit/metrics"
	"signaccess/pkg/platform/audit/store/memory"
)

type failingStore struct {
	err error
}

func (s *failingStore) Append(_ context.Context, _ audit.Event) error {
	return s.err
}

func (s *failingStore) ListByUser(_ context.Context, _ string) ([]audit.Event, error) {
	return nil, nil
}

func (s *failingStore) ListRecent(_ context.Context, _ int) ([]audit.Event, error) {
	return nil, nil
}

type blockingStore struct {
	release chan struct{}
}

func (s *blockingStore) Append(_ context.Context, _ audit.Event) error {
	<-s.release
	return nil
}

func (s *blockingStore) ListByUser(_ context.Context, _ string) ([]audit.Event, error) {
	return nil, nil
}

func (s *blockingStore) ListRecent(_ context.Context, _ int) ([]audit.Event, error) {
	return nil, nil
}

func TestPublisher_EmitStoresEvent(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)

	err := pub.Emit(context.Background(), audit.Event{
		Username: "alice",
		Action:   string(audit.EventTaskCreated),
	})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventTaskCreated), events[0].Action)
}

func TestPublisher_SetsTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)

	before := time.Now()
	err := pub.Emit(context.Background(), audit.Event{Username: "alice", Action: string(audit.EventTaskCreated)})
	require.NoError(t, err)
	after := time.Now()

	events, err := pub.List(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.True(t, !events[0].Timestamp.Before(before), "timestamp should be >= before")
	assert.True(t, !events[0].Timestamp.After(after), "timestamp should be <= after")
}

func TestPublisher_PreservesExistingTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)

	customTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	err := pub.Emit(context.Background(), audit.Event{
		Username:  "alice",
		Action:    string(audit.EventTaskCreated),
		Timestamp: customTime,
	})
	require.NoError(t, err)

	events, err := pub.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, customTime, events[0].Timestamp)
}

func TestPublisher_EmitReturnsError(t *testing.T) {
	storeErr := errors.New("append failed")
	pub := NewPublisher(&failingStore{err: storeErr})

	err := pub.Emit(context.Background(), audit.Event{Action: string(audit.EventTaskCreated)})
	require.ErrorIs(t, err, storeErr)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(16))

	for i := 0; i < 10; i++ {
		require.NoError(t, pub.Emit(context.Background(), audit.Event{Username: "bob", Action: string(audit.EventNotFound)}))
	}
	pub.Close()
	pub.Close()

	events, err := pub.List(context.Background(), "bob")
	require.NoError(t, err)
	assert.Len(t, events, 10)
}

func TestPublisher_AsyncBufferFull(t *testing.T) {
	store := &blockingStore{release: make(chan struct{})}
	pub := NewPublisher(store, WithAsyncBuffer(1))

	var full error
	for i := 0; i < 5 && full == nil; i++ {
		full = pub.Emit(context.Background(), audit.Event{Action: string(audit.EventAuthFailed)})
	}
	require.Error(t, full)
	assert.True(t, dErrors.HasCode(full, dErrors.CodeInternal))

	close(store.release)
	pub.Close()
}

func TestPublisher_Metrics(t *testing.T) {
	t.Run("sync writes count as processed or failed", func(t *testing.T) {
		m := metrics.New(prometheus.NewRegistry())
		ok := NewPublisher(memory.NewInMemoryStore(), WithMetrics(m))
		failing := NewPublisher(&failingStore{err: errors.New("disk full")}, WithMetrics(m))

		require.NoError(t, ok.Emit(context.Background(), audit.Event{Action: string(audit.EventTaskCreated)}))
		require.Error(t, failing.Emit(context.Background(), audit.Event{Action: string(audit.EventTaskCreated)}))

		assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsProcessed))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.PersistFailures))
	})

	t.Run("async queue drains to zero", func(t *testing.T) {
		m := metrics.New(prometheus.NewRegistry())
		pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(8), WithMetrics(m))
		for i := 0; i < 3; i++ {
			require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: string(audit.EventDuplicateFound)}))
		}
		pub.Close()

		assert.Equal(t, float64(3), testutil.ToFloat64(m.EventsEnqueued))
		assert.Equal(t, float64(3), testutil.ToFloat64(m.EventsProcessed))
		assert.Equal(t, float64(0), testutil.ToFloat64(m.QueueDepth))
	})

	t.Run("drops are counted", func(t *testing.T) {
		m := metrics.New(prometheus.NewRegistry())
		store := &blockingStore{release: make(chan struct{})}
		pub := NewPublisher(store, WithAsyncBuffer(1), WithMetrics(m))

		var full error
		for i := 0; i < 5 && full == nil; i++ {
			full = pub.Emit(context.Background(), audit.Event{Action: string(audit.EventAuthFailed)})
		}
		require.Error(t, full)
		assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsDropped))

		close(store.release)
		pub.Close()
	})
}
