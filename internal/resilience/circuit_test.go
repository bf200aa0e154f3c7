package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/trust-router/internal/policy"
)

func failing(_ context.Context) error { return errors.New("fail") }

func TestCircuitBreaker_ClosedPassesThrough(t *testing.T) {
	cb := NewCircuitBreaker("haiku", DefaultCircuitBreakerConfig())

	var calls int
	err := cb.Execute(context.Background(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed, got %s", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("opus", CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), failing)
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	err := cb.Execute(context.Background(), func(_ context.Context) error {
		t.Error("should not be called when circuit is open")
		return nil
	})
	if !eris.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_CancellationDoesNotTrip(t *testing.T) {
	cb := NewCircuitBreaker("sonnet", CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute})

	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), func(_ context.Context) error { return context.Canceled })
	}
	if cb.State() != CircuitClosed {
		t.Errorf("quorum cancellations must not open the circuit, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("haiku", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Second})
	cb.nowFunc = func() time.Time { return now }

	_ = cb.Execute(context.Background(), failing)
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	now = now.Add(11 * time.Second)
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open, got %s", cb.State())
	}

	if err := cb.Execute(context.Background(), func(_ context.Context) error { return nil }); err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed after probe, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("haiku", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Second})
	cb.nowFunc = func() time.Time { return now }

	_ = cb.Execute(context.Background(), failing)
	now = now.Add(11 * time.Second)
	_ = cb.Execute(context.Background(), failing)

	if cb.State() != CircuitOpen {
		t.Errorf("expected reopened circuit, got %s", cb.State())
	}
	if s := cb.Snapshot(); s.Trips != 2 || s.LastFailure != "fail" {
		t.Errorf("unexpected snapshot %+v", s)
	}
}

func TestCircuitBreaker_StateChangeCallback(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	cb := NewCircuitBreaker("gpt-4o", CircuitBreakerConfig{
		FailureThreshold: 1,
		OnStateChange: func(name string, from, to CircuitState) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, name+":"+from.String()+"->"+to.String())
		},
	})
	_ = cb.Execute(context.Background(), failing)
	cb.Reset()

	mu.Lock()
	defer mu.Unlock()
	want := []string{"gpt-4o:closed->open", "gpt-4o:open->closed"}
	if len(seen) != len(want) || seen[0] != want[0] || seen[1] != want[1] {
		t.Errorf("expected %v, got %v", want, seen)
	}
}

func TestModelBreakers_GetIsStable(t *testing.T) {
	mb := NewModelBreakers(DefaultCircuitBreakerConfig())

	var wg sync.WaitGroup
	got := make([]*CircuitBreaker, 20)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = mb.Get("haiku")
		}(i)
	}
	wg.Wait()
	for _, cb := range got {
		if cb != got[0] {
			t.Fatal("expected a single breaker per model")
		}
	}
	if _, ok := mb.Snapshots()["haiku"]; !ok {
		t.Error("expected snapshot for haiku")
	}
}

func TestFromPolicy(t *testing.T) {
	p := policy.Default().Ensemble
	p.MaxAttempts = 4
	p.BreakerThreshold = 7

	rc := RetryFromPolicy(p)
	if rc.MaxAttempts != 4 || rc.InitialBackoff != p.InitialBackoff {
		t.Errorf("unexpected retry config %+v", rc)
	}
	bc := BreakerFromPolicy(p)
	if bc.FailureThreshold != 7 || bc.ResetTimeout != p.BreakerReset {
		t.Errorf("unexpected breaker config %+v", bc)
	}
}
