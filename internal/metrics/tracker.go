// Package metrics records validation outcomes, computes accuracy and
// calibration over labeled history and detects drift between windows.
package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trust-router/internal/model"
	"github.com/sells-group/trust-router/internal/resilience"
)

// Repository is the append-only observation log. store.Store satisfies it.
type Repository interface {
	AppendObservations(ctx context.Context, obs []model.Observation) error
	ListObservations(ctx context.Context, w model.Window) ([]model.Observation, error)
}

// Options tunes the write-behind flusher.
type Options struct {
	FlushInterval time.Duration
	BatchSize     int
	// MaxPending caps the in-memory queue. When full the oldest entries
	// are dropped and counted.
	MaxPending int
	Retry      resilience.RetryConfig
}

func (o Options) withDefaults() Options {
	if o.FlushInterval <= 0 {
		o.FlushInterval = 5 * time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.MaxPending <= 0 {
		o.MaxPending = 10000
	}
	if o.Retry.MaxAttempts == 0 {
		o.Retry = resilience.DefaultRetryConfig()
	}
	if o.Retry.ShouldRetry == nil {
		o.Retry.ShouldRetry = retryWrite
	}
	if o.Retry.OnRetry == nil {
		o.Retry.OnRetry = resilience.RetryLogger("metrics", "observations")
	}
	return o
}

// retryWrite retries any storage error except caller cancellation.
func retryWrite(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// Tracker is the write-behind observation recorder. Record never blocks on
// storage; a background goroutine flushes batches and re-queues a batch
// whose write failed, so delivery is at-least-once.
type Tracker struct {
	repo Repository
	opts Options
	log  *zap.Logger

	mu      sync.Mutex
	pending []model.Observation
	dropped int

	signal chan struct{}
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
	now    func() time.Time
}

// NewTracker starts the flusher. Call Close to drain it.
func NewTracker(repo Repository, opts Options) *Tracker {
	t := &Tracker{
		repo:   repo,
		opts:   opts.withDefaults(),
		log:    zap.L().With(zap.String("component", "metrics.tracker")),
		signal: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		now:    func() time.Time { return time.Now().UTC() },
	}
	go t.loop()
	return t
}

// Record queues one observation for report. It returns immediately.
func (t *Tracker) Record(report model.ValidationReport, outcome model.Outcome) {
	t.enqueue(t.observation(report, outcome))
}

// Label appends a ground-truth label for a validated claim and waits for
// the write. Labels are append-only; the latest label for a claim wins.
func (t *Tracker) Label(ctx context.Context, report model.ValidationReport, outcome model.Outcome) error {
	if report.ClaimID == "" {
		return eris.Wrap(model.ErrInvalidInput, "metrics: label requires a claim id")
	}
	if outcome == model.OutcomeUnknown {
		return eris.Wrap(model.ErrInvalidInput, "metrics: label requires a known outcome")
	}
	obs := []model.Observation{t.observation(report, outcome)}
	err := resilience.Do(ctx, t.opts.Retry, func(ctx context.Context) error {
		return t.repo.AppendObservations(ctx, obs)
	})
	if err != nil {
		return eris.Wrapf(err, "metrics: label claim %s", report.ClaimID)
	}
	observationsFlushed.Add(1)
	t.log.Info("metrics: claim labeled",
		zap.String("claim_id", report.ClaimID),
		zap.Stringer("outcome", outcome),
	)
	return nil
}

// Pending returns the number of queued observations.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Dropped returns how many observations were discarded because the queue
// was full.
func (t *Tracker) Dropped() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// Close stops the flusher after a final drain. It returns an error if
// observations are still queued when ctx ends or the final write fails.
func (t *Tracker) Close(ctx context.Context) error {
	t.once.Do(func() { close(t.stop) })
	select {
	case <-t.done:
	case <-ctx.Done():
		return eris.Wrapf(ctx.Err(), "metrics: close with %d pending", t.Pending())
	}
	if n := t.Pending(); n > 0 {
		return eris.Errorf("metrics: %d observations not flushed", n)
	}
	return nil
}

func (t *Tracker) observation(report model.ValidationReport, outcome model.Outcome) model.Observation {
	return model.Observation{
		ClaimID:       report.ClaimID,
		OverallPassed: report.OverallPassed,
		Confidence:    report.ConfidenceScore,
		RiskLevel:     report.RiskLevel,
		Outcome:       outcome,
		RecordedAt:    t.now(),
	}
}

func (t *Tracker) enqueue(o model.Observation) {
	t.mu.Lock()
	if len(t.pending) >= t.opts.MaxPending {
		t.pending = t.pending[1:]
		t.dropped++
		observationsDropped.Inc()
	}
	t.pending = append(t.pending, o)
	full := len(t.pending) >= t.opts.BatchSize
	t.mu.Unlock()

	observationsRecorded.Inc()
	if full {
		t.wake()
	}
}

func (t *Tracker) wake() {
	select {
	case t.signal <- struct{}{}:
	default:
	}
}

func (t *Tracker) loop() {
	defer close(t.done)

	ticker := time.NewTicker(t.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			// Final drain gets a bounded window of its own.
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := t.flush(ctx); err != nil {
				t.log.Error("metrics: final flush failed", zap.Error(err), zap.Int("pending", t.Pending()))
			}
			cancel()
			return
		case <-ticker.C:
		case <-t.signal:
		}
		if err := t.flush(context.Background()); err != nil {
			t.log.Warn("metrics: flush failed, batch re-queued", zap.Error(err), zap.Int("pending", t.Pending()))
		}
	}
}

// flush writes queued observations in batches until the queue is empty or
// a write fails.
func (t *Tracker) flush(ctx context.Context) error {
	for {
		batch := t.take()
		if len(batch) == 0 {
			return nil
		}
		err := resilience.Do(ctx, t.opts.Retry, func(ctx context.Context) error {
			return t.repo.AppendObservations(ctx, batch)
		})
		if err != nil {
			t.requeue(batch)
			flushErrors.Inc()
			return eris.Wrapf(err, "metrics: flush %d observations", len(batch))
		}
		observationsFlushed.Add(float64(len(batch)))
		t.log.Debug("metrics: observations flushed", zap.Int("count", len(batch)))
	}
}

func (t *Tracker) take() []model.Observation {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := min(len(t.pending), t.opts.BatchSize)
	if n == 0 {
		return nil
	}
	batch := make([]model.Observation, n)
	copy(batch, t.pending[:n])
	t.pending = t.pending[n:]
	return batch
}

// requeue puts a failed batch back at the head of the queue, ahead of
// anything recorded since it was taken.
func (t *Tracker) requeue(batch []model.Observation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	merged := make([]model.Observation, 0, len(batch)+len(t.pending))
	merged = append(merged, batch...)
	merged = append(merged, t.pending...)
	if over := len(merged) - t.opts.MaxPending; over > 0 {
		merged = merged[over:]
		t.dropped += over
		observationsDropped.Add(float64(over))
	}
	t.pending = merged
}
