package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/trust-router/internal/model"
	"github.com/sells-group/trust-router/internal/resilience"
)

// memRepo is an in-memory Repository whose writes can be made to fail.
type memRepo struct {
	mu       sync.Mutex
	obs      []model.Observation
	failures int
	writes   int
}

func (r *memRepo) AppendObservations(_ context.Context, obs []model.Observation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	if r.failures > 0 {
		r.failures--
		return errors.New("database is locked")
	}
	r.obs = append(r.obs, obs...)
	return nil
}

func (r *memRepo) ListObservations(_ context.Context, w model.Window) ([]model.Observation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Observation
	for _, o := range r.obs {
		if w.Contains(o.RecordedAt) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.obs)
}

func fastOptions() Options {
	return Options{
		FlushInterval: time.Hour,
		BatchSize:     10,
		MaxPending:    100,
		Retry: resilience.RetryConfig{
			MaxAttempts:    1,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
		},
	}
}

func report(id string, passed bool, conf float64) model.ValidationReport {
	return model.ValidationReport{ClaimID: id, OverallPassed: passed, ConfidenceScore: conf, RiskLevel: model.SeverityMedium}
}

func TestTracker_RecordIsAsyncAndCloseDrains(t *testing.T) {
	repo := &memRepo{}
	tr := NewTracker(repo, fastOptions())

	tr.Record(report("c1", true, 0.9), model.OutcomeUnknown)
	tr.Record(report("c2", false, 0.2), model.OutcomeUnknown)
	assert.Equal(t, 0, repo.count(), "nothing written before a flush trigger")

	require.NoError(t, tr.Close(context.Background()))
	assert.Equal(t, 2, repo.count())
	assert.Equal(t, 0, tr.Pending())

	obs, err := repo.ListObservations(context.Background(), model.Window{Start: time.Now().Add(-time.Hour), End: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, "c1", obs[0].ClaimID)
	assert.Equal(t, model.SeverityMedium, obs[0].RiskLevel)
	assert.False(t, obs[1].OverallPassed)
}

func TestTracker_FullBatchFlushes(t *testing.T) {
	repo := &memRepo{}
	opts := fastOptions()
	opts.BatchSize = 3
	tr := NewTracker(repo, opts)
	defer tr.Close(context.Background()) //nolint:errcheck

	for i := range 3 {
		tr.Record(report(string(rune('a'+i)), true, 0.8), model.OutcomeUnknown)
	}

	assert.Eventually(t, func() bool { return repo.count() == 3 }, 2*time.Second, 10*time.Millisecond)
}

func TestTracker_FailedBatchIsRequeued(t *testing.T) {
	repo := &memRepo{failures: 1}
	tr := NewTracker(repo, fastOptions())

	tr.Record(report("c1", true, 0.9), model.OutcomeUnknown)
	err := tr.flush(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, tr.Pending(), "batch back on the queue")
	assert.Equal(t, 0, repo.count())

	require.NoError(t, tr.Close(context.Background()))
	assert.Equal(t, 1, repo.count())
}

func TestTracker_RequeueKeepsOrder(t *testing.T) {
	repo := &memRepo{}
	tr := NewTracker(repo, fastOptions())
	defer tr.Close(context.Background()) //nolint:errcheck

	tr.Record(report("late", true, 0.9), model.OutcomeUnknown)
	tr.requeue([]model.Observation{{ClaimID: "early"}})

	batch := tr.take()
	require.Len(t, batch, 2)
	assert.Equal(t, "early", batch[0].ClaimID)
	assert.Equal(t, "late", batch[1].ClaimID)
}

func TestTracker_QueueBoundDropsOldest(t *testing.T) {
	repo := &memRepo{}
	opts := fastOptions()
	opts.MaxPending = 2
	tr := NewTracker(repo, opts)

	tr.Record(report("c1", true, 0.9), model.OutcomeUnknown)
	tr.Record(report("c2", true, 0.9), model.OutcomeUnknown)
	tr.Record(report("c3", true, 0.9), model.OutcomeUnknown)

	assert.Equal(t, 2, tr.Pending())
	assert.Equal(t, 1, tr.Dropped())

	require.NoError(t, tr.Close(context.Background()))
	obs, err := repo.ListObservations(context.Background(), model.Window{Start: time.Now().Add(-time.Hour), End: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, "c2", obs[0].ClaimID)
}

func TestTracker_CloseReportsUnflushed(t *testing.T) {
	repo := &memRepo{failures: 100}
	tr := NewTracker(repo, fastOptions())

	tr.Record(report("c1", true, 0.9), model.OutcomeUnknown)
	err := tr.Close(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 observations not flushed")
}

func TestTracker_CloseIsIdempotent(t *testing.T) {
	tr := NewTracker(&memRepo{}, fastOptions())
	require.NoError(t, tr.Close(context.Background()))
	require.NoError(t, tr.Close(context.Background()))
}

func TestTracker_Label(t *testing.T) {
	repo := &memRepo{failures: 1}
	opts := fastOptions()
	opts.Retry.MaxAttempts = 2
	tr := NewTracker(repo, opts)
	defer tr.Close(context.Background()) //nolint:errcheck

	require.NoError(t, tr.Label(context.Background(), report("c1", false, 0.3), model.OutcomeInvalid))
	assert.Equal(t, 1, repo.count(), "label written synchronously after one retry")
	assert.Equal(t, 2, repo.writes)
}

func TestTracker_LabelRejectsBadInput(t *testing.T) {
	tr := NewTracker(&memRepo{}, fastOptions())
	defer tr.Close(context.Background()) //nolint:errcheck

	err := tr.Label(context.Background(), report("", true, 0.9), model.OutcomeValid)
	assert.True(t, eris.Is(err, model.ErrInvalidInput))

	err = tr.Label(context.Background(), report("c1", true, 0.9), model.OutcomeUnknown)
	assert.True(t, eris.Is(err, model.ErrInvalidInput))
}

func TestTracker_Calculate(t *testing.T) {
	repo := &memRepo{}
	tr := NewTracker(repo, fastOptions())
	defer tr.Close(context.Background()) //nolint:errcheck

	require.NoError(t, tr.Label(context.Background(), report("c1", false, 0.1), model.OutcomeInvalid))
	require.NoError(t, tr.Label(context.Background(), report("c2", true, 0.9), model.OutcomeValid))

	now := time.Now()
	m, err := tr.Calculate(context.Background(), model.Window{Start: now.Add(-time.Hour), End: now.Add(time.Hour)}, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Samples)
	assert.InDelta(t, 1.0, m.Accuracy, 1e-9)
	assert.InDelta(t, 1.0, m.F1, 1e-9)
}
