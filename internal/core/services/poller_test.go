package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driving"
)

// mockRunOrchestrator implements driving.RunOrchestrator for poller testing.
// Only ProcessNextQueuedRun is exercised.
type mockRunOrchestrator struct {
	driving.RunOrchestrator

	mu     sync.Mutex
	queued int
	failed int
	calls  int
	err    error
	panic  bool
}

func (m *mockRunOrchestrator) ProcessNextQueuedRun(_ context.Context) (*domain.TrainingRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.panic {
		panic("store corrupted")
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.queued == 0 {
		return nil, nil
	}
	m.queued--
	run := &domain.TrainingRun{ID: fmt.Sprintf("run-%d", m.calls), State: domain.RunReady}
	if m.failed > 0 {
		m.failed--
		run.State = domain.RunFailed
	}
	return run, nil
}

func (m *mockRunOrchestrator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func testWorkerConfig() domain.WorkerConfig {
	return domain.WorkerConfig{
		Enabled:         true,
		PollInterval:    10 * time.Millisecond,
		MaxRunsPerCycle: 3,
		StopTimeout:     time.Second,
		HistoryKeep:     5,
	}
}

func TestRunPoller_RunOnce(t *testing.T) {
	tests := []struct {
		name      string
		orch      *mockRunOrchestrator
		wantRuns  []string
		wantFail  int
		wantCalls int
		wantOK    bool
		wantError string
	}{
		{"empty queue", &mockRunOrchestrator{}, nil, 0, 1, true, ""},
		{"partial queue", &mockRunOrchestrator{queued: 2}, []string{"run-1", "run-2"}, 0, 3, true, ""},
		{"bounded by max runs", &mockRunOrchestrator{queued: 5}, []string{"run-1", "run-2", "run-3"}, 0, 3, true, ""},
		{"failed runs counted", &mockRunOrchestrator{queued: 2, failed: 1}, []string{"run-1", "run-2"}, 1, 3, true, ""},
		{"store error", &mockRunOrchestrator{queued: 5, err: errors.New("database locked")}, nil, 0, 1, false, "database locked"},
		{"panic recovered", &mockRunOrchestrator{panic: true}, nil, 0, 1, false, "store corrupted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			poller := NewRunPoller(testWorkerConfig(), tt.orch, env.history)

			result := poller.RunOnce(context.Background())

			assert.Equal(t, domain.DefaultPoller, result.Poller)
			assert.Equal(t, tt.wantRuns, result.RunIDs)
			assert.Equal(t, tt.wantFail, result.RunsFailed)
			assert.Equal(t, tt.wantOK, result.Success)
			assert.Contains(t, result.Error, tt.wantError)
			assert.Equal(t, tt.wantCalls, tt.orch.callCount())
			assert.False(t, result.EndedAt.Before(result.StartedAt))

			history, err := poller.History(context.Background(), 10)
			require.NoError(t, err)
			require.Len(t, history, 1)
			assert.Equal(t, result.RunIDs, history[0].RunIDs)
		})
	}
}

func TestRunPoller_HistoryPruned(t *testing.T) {
	env := newTestEnv(t)
	poller := NewRunPoller(testWorkerConfig(), &mockRunOrchestrator{}, env.history)

	for i := 0; i < 8; i++ {
		poller.RunOnce(context.Background())
	}

	history, err := poller.History(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, history, 5)
}

func TestRunPoller_NoHistoryStore(t *testing.T) {
	poller := NewRunPoller(testWorkerConfig(), &mockRunOrchestrator{queued: 1}, nil)

	result := poller.RunOnce(context.Background())
	assert.Equal(t, 1, result.Processed())

	history, err := poller.History(context.Background(), 10)
	require.NoError(t, err)
	assert.Nil(t, history)
}

func TestRunPoller_StartStop(t *testing.T) {
	env := newTestEnv(t)
	orch := &mockRunOrchestrator{queued: 4}
	poller := NewRunPoller(testWorkerConfig(), orch, env.history)

	errCh := make(chan error, 1)
	go func() { errCh <- poller.Start(context.Background()) }()

	assert.Eventually(t, func() bool { return orch.callCount() >= 6 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, poller.Stop())
	require.NoError(t, <-errCh)

	history, err := poller.History(context.Background(), 100)
	require.NoError(t, err)
	total := 0
	for _, r := range history {
		total += r.Processed()
	}
	assert.Equal(t, 4, total)

	// Stopping twice is harmless.
	assert.NoError(t, poller.Stop())
}

func TestRunPoller_StopBeforeStart(t *testing.T) {
	orch := &mockRunOrchestrator{queued: 2}
	poller := NewRunPoller(testWorkerConfig(), orch, nil)

	require.NoError(t, poller.Stop())

	errCh := make(chan error, 1)
	go func() { errCh <- poller.Start(context.Background()) }()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start ignored the earlier Stop")
	}
	assert.Zero(t, orch.callCount())

	// The request is consumed; the next Start polls until stopped.
	go func() { errCh <- poller.Start(context.Background()) }()
	assert.Eventually(t, func() bool { return orch.callCount() >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, poller.Stop())
	require.NoError(t, <-errCh)
}

func TestRunPoller_StartHonorsContext(t *testing.T) {
	poller := NewRunPoller(testWorkerConfig(), &mockRunOrchestrator{}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- poller.Start(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop on context cancellation")
	}
}

func TestRunPoller_DrivesQueuedRuns(t *testing.T) {
	env := newTestEnv(t)
	ds := env.buildDataset(t)
	first := env.createRun(t, ds)
	second := env.createRun(t, ds)

	poller := NewRunPoller(testWorkerConfig(), env.orchestrator, env.history)
	result := poller.RunOnce(context.Background())

	assert.True(t, result.Success)
	assert.ElementsMatch(t, []string{first.ID, second.ID}, result.RunIDs)
	for _, id := range []string{first.ID, second.ID} {
		run, err := env.orchestrator.GetRun(context.Background(), testTenant, testProject, id)
		require.NoError(t, err)
		assert.Equal(t, domain.RunReady, run.State)
	}
}
