package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReconciler struct {
	calls     atomic.Int32
	olderThan atomic.Int64
	err       error
}

func (r *countingReconciler) ReconcileStale(ctx context.Context, olderThan time.Duration) (int, error) {
	r.calls.Add(1)
	r.olderThan.Store(int64(olderThan))
	return 1, r.err
}

func TestRunOnce(t *testing.T) {
	r := &countingReconciler{}
	s := NewScheduler(r, "0 0 * * * *", 15*time.Minute)

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(15*time.Minute), r.olderThan.Load())
}

func TestStart_RunsOnSchedule(t *testing.T) {
	r := &countingReconciler{err: errors.New("store down")}
	s := NewScheduler(r, "* * * * * *", time.Minute)
	require.NoError(t, s.Start())
	defer func() { <-s.Stop().Done() }()

	assert.Eventually(t, func() bool { return r.calls.Load() > 0 }, 3*time.Second, 20*time.Millisecond)
}

func TestStart_BadSpec(t *testing.T) {
	s := NewScheduler(&countingReconciler{}, "every tuesday", time.Minute)
	assert.Error(t, s.Start())
}
