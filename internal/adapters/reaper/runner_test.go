package reaper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/cashier/internal/observability/statsd"
	"github.com/target/cashier/internal/testutil"
)

type fakePruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	n       int64
	err     error
}

func (f *fakePruner) DeleteFinishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.n, f.err
}

func (f *fakePruner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

func TestNewRunner_Validation(t *testing.T) {
	_, err := NewRunner(RunnerOptions{Retention: time.Hour})
	require.Error(t, err)

	_, err = NewRunner(RunnerOptions{Repo: &fakePruner{}})
	require.Error(t, err)
}

func TestRunner_PruneUsesRetentionCutoff(t *testing.T) {
	repo := &fakePruner{n: 3}
	rec := &statsd.Recorder{}
	r, err := NewRunner(RunnerOptions{
		Repo:      repo,
		Retention: 24 * time.Hour,
		Now:       testutil.TestTime,
		Metrics:   rec,
	})
	require.NoError(t, err)

	n, err := r.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.Len(t, repo.cutoffs, 1)
	assert.Equal(t, testutil.TestTime().Add(-24*time.Hour), repo.cutoffs[0])
	assert.Equal(t, int64(3), rec.CountTotal("archive.pruned", nil))
}

func TestRunner_PruneError(t *testing.T) {
	repo := &fakePruner{err: errors.New("db down")}
	r, err := NewRunner(RunnerOptions{Repo: repo, Retention: time.Hour})
	require.NoError(t, err)

	_, err = r.Prune(context.Background())
	require.Error(t, err)
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	repo := &fakePruner{}
	r, err := NewRunner(RunnerOptions{Repo: repo, Retention: time.Hour, Interval: 10 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return repo.calls() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
}
