package poller

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"hello-backend/config"
	"hello-backend/internal/fetcher"
	"hello-backend/internal/metrics"
	"hello-backend/internal/model"
	"hello-backend/internal/notification"
)

// mockFetcher is a mock implementation of fetcher.DataFetcher.
type mockFetcher struct {
	calls         int32
	FetchDataFunc func(ctx context.Context) (fetcher.Payload, error)
}

func (m *mockFetcher) FetchData(ctx context.Context) (fetcher.Payload, error) {
	atomic.AddInt32(&m.calls, 1)
	return m.FetchDataFunc(ctx)
}

// mockStore is a mock implementation of the store.Store interface. Only the
// snapshot writes used by the poller are wired to Func fields.
type mockStore struct {
	SaveSnapshotFunc   func(ctx context.Context, fetchedAt time.Time, payload any) (model.Snapshot, error)
	PruneSnapshotsFunc func(ctx context.Context, keep int) (int64, error)
}

func (m *mockStore) SaveSnapshot(ctx context.Context, fetchedAt time.Time, payload any) (model.Snapshot, error) {
	return m.SaveSnapshotFunc(ctx, fetchedAt, payload)
}

func (m *mockStore) PruneSnapshots(ctx context.Context, keep int) (int64, error) {
	if m.PruneSnapshotsFunc == nil {
		return 0, nil
	}
	return m.PruneSnapshotsFunc(ctx, keep)
}

func (m *mockStore) LatestSnapshot(ctx context.Context) (model.Snapshot, error) {
	return model.Snapshot{}, errors.New("not implemented")
}

func (m *mockStore) GetSnapshot(ctx context.Context, id string) (model.Snapshot, error) {
	return model.Snapshot{}, errors.New("not implemented")
}

func (m *mockStore) ListSnapshots(ctx context.Context, limit int) ([]model.Snapshot, error) {
	return nil, errors.New("not implemented")
}

func (m *mockStore) UpsertSubscription(ctx context.Context, sub model.PushSubscription) error {
	return errors.New("not implemented")
}

func (m *mockStore) GetSubscription(ctx context.Context, endpoint string) (model.PushSubscription, error) {
	return model.PushSubscription{}, errors.New("not implemented")
}

func (m *mockStore) ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	return nil, nil
}

func (m *mockStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return nil
}

func (m *mockStore) DB() *gorm.DB {
	return nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Poller.Enabled = true
	cfg.Poller.KeepSnapshots = 3
	return cfg
}

func TestPollOnce_DispatchesChangedSnapshot(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	var savedPayload any
	var savedAt time.Time
	var prunedKeep int

	f := &mockFetcher{FetchDataFunc: func(ctx context.Context) (fetcher.Payload, error) {
		return map[string]any{"message": "hello"}, nil
	}}
	s := &mockStore{
		SaveSnapshotFunc: func(ctx context.Context, fetchedAt time.Time, payload any) (model.Snapshot, error) {
			savedPayload, savedAt = payload, fetchedAt
			return model.Snapshot{ID: "snap-1", Changed: true}, nil
		},
		PruneSnapshotsFunc: func(ctx context.Context, keep int) (int64, error) {
			prunedKeep = keep
			return 0, nil
		},
	}

	service := NewService(testConfig(), f, s)
	service.now = func() time.Time { return fixed }
	service.workerPool = notification.NewWorkerPool(1, s, nil)

	service.PollOnce(context.Background())

	select {
	case id := <-service.workerPool.Jobs():
		assert.Equal(t, "snap-1", id)
	case <-time.After(time.Second):
		t.Fatal("changed snapshot was not dispatched")
	}
	assert.Equal(t, map[string]any{"message": "hello"}, savedPayload)
	assert.Equal(t, fixed, savedAt)
	assert.Equal(t, 3, prunedKeep)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.calls))
}

func TestPollOnce_FullNotificationQueueDoesNotStallPolling(t *testing.T) {
	var pruned int32
	f := &mockFetcher{FetchDataFunc: func(ctx context.Context) (fetcher.Payload, error) {
		return map[string]any{"message": "hello"}, nil
	}}
	s := &mockStore{
		SaveSnapshotFunc: func(ctx context.Context, fetchedAt time.Time, payload any) (model.Snapshot, error) {
			return model.Snapshot{ID: "snap-new", Changed: true}, nil
		},
		PruneSnapshotsFunc: func(ctx context.Context, keep int) (int64, error) {
			atomic.AddInt32(&pruned, 1)
			return 0, nil
		},
	}

	service := NewService(testConfig(), f, s)
	service.workerPool = notification.NewWorkerPool(1, s, nil)
	require.True(t, service.workerPool.Dispatch("snap-pending"))

	done := make(chan struct{})
	go func() {
		service.PollOnce(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PollOnce blocked on a full notification queue")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&pruned), "the cycle still prunes after dropping the notification")
	assert.Equal(t, "snap-pending", <-service.workerPool.Jobs())
}

func TestPollOnce_UnchangedSnapshotIsNotDispatched(t *testing.T) {
	f := &mockFetcher{FetchDataFunc: func(ctx context.Context) (fetcher.Payload, error) {
		return map[string]any{"message": "hello"}, nil
	}}
	s := &mockStore{
		SaveSnapshotFunc: func(ctx context.Context, fetchedAt time.Time, payload any) (model.Snapshot, error) {
			return model.Snapshot{ID: "snap-2", Changed: false}, nil
		},
	}

	service := NewService(testConfig(), f, s)
	service.PollOnce(context.Background())

	assert.Empty(t, service.workerPool.Jobs())
}

func TestPollOnce_FetchErrorSkipsStore(t *testing.T) {
	f := &mockFetcher{FetchDataFunc: func(ctx context.Context) (fetcher.Payload, error) {
		return nil, fetcher.ErrFetch
	}}
	s := &mockStore{
		SaveSnapshotFunc: func(ctx context.Context, fetchedAt time.Time, payload any) (model.Snapshot, error) {
			t.Fatal("SaveSnapshot must not be called after a failed fetch")
			return model.Snapshot{}, nil
		},
		PruneSnapshotsFunc: func(ctx context.Context, keep int) (int64, error) {
			t.Fatal("PruneSnapshots must not be called after a failed fetch")
			return 0, nil
		},
	}

	service := NewService(testConfig(), f, s)
	service.PollOnce(context.Background())

	assert.Equal(t, int32(1), atomic.LoadInt32(&f.calls), "a failed fetch is not retried")
	assert.Empty(t, service.workerPool.Jobs())
}

func TestPollOnce_SaveErrorSkipsDispatch(t *testing.T) {
	f := &mockFetcher{FetchDataFunc: func(ctx context.Context) (fetcher.Payload, error) {
		return "x", nil
	}}
	s := &mockStore{
		SaveSnapshotFunc: func(ctx context.Context, fetchedAt time.Time, payload any) (model.Snapshot, error) {
			return model.Snapshot{}, errors.New("disk full")
		},
	}

	service := NewService(testConfig(), f, s)
	service.PollOnce(context.Background())

	assert.Empty(t, service.workerPool.Jobs())
}

func TestPollOnce_RecordsMetrics(t *testing.T) {
	fail := true
	f := &mockFetcher{FetchDataFunc: func(ctx context.Context) (fetcher.Payload, error) {
		if fail {
			return nil, fetcher.ErrFetch
		}
		return "hello", nil
	}}
	s := &mockStore{
		SaveSnapshotFunc: func(ctx context.Context, fetchedAt time.Time, payload any) (model.Snapshot, error) {
			return model.Snapshot{ID: "snap", Changed: true}, nil
		},
	}

	reg := prometheus.NewRegistry()
	service := NewService(testConfig(), f, s).WithMetrics(metrics.NewPoller(reg))
	service.workerPool = notification.NewWorkerPool(1, s, nil)

	service.PollOnce(context.Background())
	fail = false
	service.PollOnce(context.Background())

	expected := `
# HELP hello_payload_changes_total Number of snapshots whose payload differed from the previous one.
# TYPE hello_payload_changes_total counter
hello_payload_changes_total 1
# HELP hello_polls_total Number of poll cycles by result.
# TYPE hello_polls_total counter
hello_polls_total{result="fetch_error"} 1
hello_polls_total{result="ok"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "hello_polls_total", "hello_payload_changes_total"))
	assert.Equal(t, "snap", <-service.workerPool.Jobs())
}

func TestRun_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Poller.Enabled = false
	f := &mockFetcher{FetchDataFunc: func(ctx context.Context) (fetcher.Payload, error) {
		return nil, nil
	}}

	service := NewService(cfg, f, &mockStore{})
	service.Run(context.Background())

	assert.Zero(t, atomic.LoadInt32(&f.calls))
}

func TestRun_PollsOnScheduleUntilCancelled(t *testing.T) {
	cfg := testConfig()
	cfg.Poller.Schedule = "@every 1s"

	f := &mockFetcher{FetchDataFunc: func(ctx context.Context) (fetcher.Payload, error) {
		return "same", nil
	}}
	s := &mockStore{
		SaveSnapshotFunc: func(ctx context.Context, fetchedAt time.Time, payload any) (model.Snapshot, error) {
			return model.Snapshot{ID: "snap", Changed: false}, nil
		},
	}

	service := NewService(cfg, f, s)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		service.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&f.calls) >= 2
	}, 5*time.Second, 20*time.Millisecond, "expected the immediate poll plus at least one scheduled poll")

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
