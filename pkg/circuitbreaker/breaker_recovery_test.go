package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

func tripBreaker(cb *CircuitBreaker, failures int) {
	err := errors.New("backend down")
	for i := 0; i < failures; i++ {
		_, _ = cb.Execute(func() (any, error) {
			return nil, err
		})
	}
}

// TestBreakerTripsAndFailsFast verifies that requests are rejected
// immediately once the failure threshold is reached.
func TestBreakerTripsAndFailsFast(t *testing.T) {
	cb := NewCircuitBreaker(Settings{
		Name:        "test-trip",
		MaxRequests: 3,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	if cb.State() != StateClosed {
		t.Errorf("Expected initial state to be CLOSED, got %v", cb.State())
	}

	tripBreaker(cb, 3)

	if cb.State() != StateOpen {
		t.Errorf("Expected state to be OPEN after failures, got %v", cb.State())
	}

	executed := false
	_, err := cb.Execute(func() (any, error) {
		executed = true
		return nil, nil
	})
	if !errors.Is(err, ErrCircuitBreakerOpen) {
		t.Errorf("Expected ErrCircuitBreakerOpen, got %v", err)
	}
	if executed {
		t.Error("Request must not execute while the breaker is open")
	}
}

// TestBreakerRecovery simulates a backend outage and recovery: the
// breaker opens on failures, half-opens after the cooldown and closes
// again once a probe request succeeds.
func TestBreakerRecovery(t *testing.T) {
	var stateChanges []string
	cb := NewCircuitBreaker(Settings{
		Name:        "test-recovery",
		MaxRequests: 3,
		Timeout:     50 * time.Millisecond,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from State, to State) {
			stateChanges = append(stateChanges, from.String()+"->"+to.String())
		},
	})

	tripBreaker(cb, 3)

	if cb.State() != StateOpen {
		t.Fatalf("Expected OPEN state, got %v", cb.State())
	}

	// Wait out the cooldown; the next State observation moves to half-open.
	time.Sleep(60 * time.Millisecond)

	if cb.State() != StateHalfOpen {
		t.Fatalf("Expected HALF_OPEN state after timeout, got %v", cb.State())
	}

	result, err := cb.Execute(func() (any, error) {
		return "backend is healthy", nil
	})
	if err != nil {
		t.Errorf("Probe request failed: %v", err)
	}
	if result != "backend is healthy" {
		t.Errorf("Unexpected result: %v", result)
	}

	if cb.State() != StateClosed {
		t.Errorf("Expected CLOSED state after successful probe, got %v", cb.State())
	}

	expectedTransitions := []string{
		"CLOSED->OPEN",
		"OPEN->HALF_OPEN",
		"HALF_OPEN->CLOSED",
	}
	if len(stateChanges) != len(expectedTransitions) {
		t.Fatalf("Expected %d state changes, got %d: %v", len(expectedTransitions), len(stateChanges), stateChanges)
	}
	for i, expected := range expectedTransitions {
		if stateChanges[i] != expected {
			t.Errorf("State change %d: expected %s, got %s", i, expected, stateChanges[i])
		}
	}
}

// TestBreakerHalfOpenLimitsProbes verifies that half-open admits at most
// MaxRequests concurrent probes.
func TestBreakerHalfOpenLimitsProbes(t *testing.T) {
	cb := NewCircuitBreaker(Settings{
		Name:        "test-halfopen-limit",
		MaxRequests: 1,
		Timeout:     20 * time.Millisecond,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	})

	tripBreaker(cb, 2)
	time.Sleep(30 * time.Millisecond)

	if cb.State() != StateHalfOpen {
		t.Fatalf("Expected HALF_OPEN state, got %v", cb.State())
	}

	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = cb.Execute(func() (any, error) {
			<-release
			return nil, nil
		})
	}()

	// Give the in-flight probe time to register before the second attempt.
	time.Sleep(10 * time.Millisecond)

	_, err := cb.Execute(func() (any, error) {
		return nil, nil
	})
	if !errors.Is(err, ErrTooManyRequests) {
		t.Errorf("Expected ErrTooManyRequests, got %v", err)
	}

	close(release)
	<-done

	if cb.State() != StateClosed {
		t.Errorf("Expected CLOSED state after probe succeeded, got %v", cb.State())
	}
}

// TestBreakerFailedProbeReopens verifies that a failing probe in
// half-open trips the breaker again.
func TestBreakerFailedProbeReopens(t *testing.T) {
	cb := NewCircuitBreaker(Settings{
		Name:        "test-reopen",
		MaxRequests: 1,
		Timeout:     20 * time.Millisecond,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
	})

	tripBreaker(cb, 1)
	time.Sleep(30 * time.Millisecond)

	if cb.State() != StateHalfOpen {
		t.Fatalf("Expected HALF_OPEN state, got %v", cb.State())
	}

	_, _ = cb.Execute(func() (any, error) {
		return nil, errors.New("still down")
	})

	if cb.State() != StateOpen {
		t.Errorf("Expected OPEN state after failed probe, got %v", cb.State())
	}
}
