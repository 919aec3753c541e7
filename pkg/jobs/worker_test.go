package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockStore struct {
	mu         sync.Mutex
	pending    []AutoCloseJob
	done       []int64
	failed     []int64
	claimErr   error
	claimCalls int
}

func (m *mockStore) EnqueueAutoClose(_ context.Context, wikiID, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, AutoCloseJob{
		ID:       int64(len(m.pending) + 1),
		WikiID:   wikiID,
		Username: username,
	})
	return nil
}

func (m *mockStore) ClaimPending(_ context.Context, wikiID string, limit int) ([]AutoCloseJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.claimCalls++
	if m.claimErr != nil {
		return nil, m.claimErr
	}

	var claimed []AutoCloseJob
	var rest []AutoCloseJob
	for _, j := range m.pending {
		if j.WikiID == wikiID && len(claimed) < limit {
			j.Attempts++
			claimed = append(claimed, j)
		} else {
			rest = append(rest, j)
		}
	}
	m.pending = rest
	return claimed, nil
}

func (m *mockStore) MarkDone(_ context.Context, jobID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done = append(m.done, jobID)
	return nil
}

func (m *mockStore) MarkFailed(_ context.Context, jobID int64, _ error, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, jobID)
	return nil
}

func (m *mockStore) snapshot() (done, failed []int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.done...), append([]int64(nil), m.failed...)
}

type mockHandler struct {
	mu      sync.Mutex
	handled []string
	errFor  map[string]error
}

func (m *mockHandler) HandleAutoClose(_ context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handled = append(m.handled, username)
	if m.errFor != nil {
		return m.errFor[username]
	}
	return nil
}

func TestWorker_ProcessesClaimedJobs(t *testing.T) {
	store := &mockStore{}
	require.NoError(t, store.EnqueueAutoClose(context.Background(), "enwiki", "Sockmaster"))
	require.NoError(t, store.EnqueueAutoClose(context.Background(), "dewiki", "Elsewhere"))

	handler := &mockHandler{}
	w := NewWorker(store, handler, WorkerConfig{WikiID: "enwiki"}, zap.NewNop())

	require.NoError(t, w.runOnce(context.Background()))

	assert.Equal(t, []string{"Sockmaster"}, handler.handled, "only local wiki jobs are claimed")
	done, failed := store.snapshot()
	assert.Equal(t, []int64{1}, done)
	assert.Empty(t, failed)
}

func TestWorker_FailedJobIsMarkedFailed(t *testing.T) {
	store := &mockStore{}
	require.NoError(t, store.EnqueueAutoClose(context.Background(), "enwiki", "Sockmaster"))

	handler := &mockHandler{errFor: map[string]error{"Sockmaster": errors.New("store down")}}
	w := NewWorker(store, handler, WorkerConfig{WikiID: "enwiki"}, zap.NewNop())

	require.NoError(t, w.runOnce(context.Background()))

	done, failed := store.snapshot()
	assert.Empty(t, done)
	assert.Equal(t, []int64{1}, failed)
}

func TestWorker_OneFailureDoesNotStopBatch(t *testing.T) {
	store := &mockStore{}
	require.NoError(t, store.EnqueueAutoClose(context.Background(), "enwiki", "Bad"))
	require.NoError(t, store.EnqueueAutoClose(context.Background(), "enwiki", "Good"))

	handler := &mockHandler{errFor: map[string]error{"Bad": errors.New("boom")}}
	w := NewWorker(store, handler, WorkerConfig{WikiID: "enwiki"}, zap.NewNop())

	require.NoError(t, w.runOnce(context.Background()))

	assert.Equal(t, []string{"Bad", "Good"}, handler.handled)
	done, failed := store.snapshot()
	assert.Equal(t, []int64{2}, done)
	assert.Equal(t, []int64{1}, failed)
}

func TestWorker_RunStopsOnContextCancel(t *testing.T) {
	store := &mockStore{}
	handler := &mockHandler{}
	w := NewWorker(store, handler, WorkerConfig{WikiID: "enwiki", PollInterval: time.Millisecond}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}

func TestWorker_PermanentClaimErrorIsNotRetried(t *testing.T) {
	store := &mockStore{claimErr: errors.New(`relation "autoclose_jobs" does not exist`)}
	w := NewWorker(store, &mockHandler{}, WorkerConfig{WikiID: "enwiki"}, zap.NewNop())

	err := w.runOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, store.claimCalls, "a non-transient claim error must not be retried")
}

func TestNewWorker_AppliesDefaults(t *testing.T) {
	w := NewWorker(&mockStore{}, &mockHandler{}, WorkerConfig{WikiID: "enwiki"}, zap.NewNop())

	assert.Equal(t, 5*time.Second, w.cfg.PollInterval)
	assert.Equal(t, 10, w.cfg.BatchSize)
	assert.Equal(t, 3, w.cfg.MaxAttempts)
}
