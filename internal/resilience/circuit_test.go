package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func tripped(t *testing.T, cfg CircuitBreakerConfig) (*CircuitBreaker, *time.Time) {
	t.Helper()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(cfg)
	cb.now = func() time.Time { return now }
	for range cfg.FailureThreshold {
		_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("down") })
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %s, want open", cb.State())
	}
	return cb, &now
}

func TestCircuitBreaker_ClosedPassesThrough(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())
	v, err := ExecuteVal(context.Background(), cb, func(context.Context) (int, error) { return 3, nil })
	if err != nil || v != 3 {
		t.Fatalf("got %d, %v", v, err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("state = %s", cb.State())
	}
}

func TestCircuitBreaker_OpensAndRejects(t *testing.T) {
	cb, _ := tripped(t, CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	err := cb.Execute(context.Background(), func(context.Context) error {
		t.Error("fn must not run while open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3})
	fail := func(context.Context) error { return errors.New("x") }
	ok := func(context.Context) error { return nil }

	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), ok)
	if cb.Failures() != 0 {
		t.Errorf("failures = %d, want 0", cb.Failures())
	}
	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), fail)
	if cb.State() != CircuitClosed {
		t.Errorf("state = %s, want closed", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	var transitions []string
	cfg := CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+">"+to.String())
		},
	}
	cb, now := tripped(t, cfg)

	*now = now.Add(2 * time.Minute)
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("state = %s, want half-open", cb.State())
	}
	if err := cb.Execute(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("state = %s, want closed", cb.State())
	}
	want := []string{"closed>open", "open>half-open", "half-open>closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, now := tripped(t, CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})

	*now = now.Add(2 * time.Minute)
	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("still down") })
	if cb.State() != CircuitOpen {
		t.Errorf("state = %s, want open", cb.State())
	}
}

func TestCircuitBreaker_ShouldTripFilters(t *testing.T) {
	benign := errors.New("bad payload")
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ShouldTrip:       func(err error) bool { return !errors.Is(err, benign) },
	})
	for range 5 {
		_ = cb.Execute(context.Background(), func(context.Context) error { return benign })
	}
	if cb.State() != CircuitClosed {
		t.Errorf("state = %s, want closed", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := tripped(t, CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	cb.Reset()
	if cb.State() != CircuitClosed || cb.Failures() != 0 {
		t.Errorf("after reset: state=%s failures=%d", cb.State(), cb.Failures())
	}
}

func TestCircuitBreaker_Concurrent(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1000})
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cb.Execute(context.Background(), func(context.Context) error {
				if i%2 == 0 {
					return errors.New("x")
				}
				return nil
			})
			_ = cb.State()
		}()
	}
	wg.Wait()
}

func TestFromCircuitConfig(t *testing.T) {
	cfg := FromCircuitConfig(3, 10)
	if cfg.FailureThreshold != 3 || cfg.ResetTimeout != 10*time.Second {
		t.Errorf("unexpected cfg %+v", cfg)
	}
	def := FromCircuitConfig(0, 0)
	if def.FailureThreshold != 5 || def.ResetTimeout != 30*time.Second {
		t.Errorf("defaults not applied: %+v", def)
	}
}
