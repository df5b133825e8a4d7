package scheduler

import (
	"errors"
	"testing"
	"time"

	"trendcast/faults"
)

func testBreaker(cooldown time.Duration) *CircuitBreaker {
	return NewCircuitBreaker(BreakerConfig{
		WindowSize:       4,
		MinSamples:       4,
		FailureThreshold: 0.5,
		Cooldown:         cooldown,
	})
}

func TestCircuitBreaker_ClosedAllowsRequests(t *testing.T) {
	cb := testBreaker(time.Minute)

	for i := 0; i < 10; i++ {
		probe, err := cb.Allow("render-api")
		if err != nil {
			t.Fatalf("Allow failed in closed state: %v", err)
		}
		if probe {
			t.Fatal("Allow claimed a probe in closed state")
		}
	}
}

func TestCircuitBreaker_OpensOnFailureFraction(t *testing.T) {
	cb := testBreaker(time.Minute)
	boom := errors.New("boom")

	// Two failures and two successes: fraction 0.5 at min samples.
	cb.RecordSuccess("render-api")
	cb.RecordFailure("render-api", boom)
	cb.RecordSuccess("render-api")
	cb.RecordFailure("render-api", boom)

	if state := cb.State("render-api"); state != CircuitOpen {
		t.Errorf("state = %v after 50%% failures, want open", state)
	}
	if _, err := cb.Allow("render-api"); faults.KindOf(err) != faults.CircuitOpen {
		t.Errorf("Allow error kind = %q, want %q", faults.KindOf(err), faults.CircuitOpen)
	}
}

func TestCircuitBreaker_StaysClosedBelowMinSamples(t *testing.T) {
	cb := testBreaker(time.Minute)
	boom := errors.New("boom")

	// Three failures, but MinSamples is 4.
	cb.RecordFailure("render-api", boom)
	cb.RecordFailure("render-api", boom)
	cb.RecordFailure("render-api", boom)

	if state := cb.State("render-api"); state != CircuitClosed {
		t.Errorf("state = %v below min samples, want closed", state)
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb := testBreaker(30 * time.Millisecond)
	boom := errors.New("boom")

	for i := 0; i < 4; i++ {
		cb.RecordFailure("render-api", boom)
	}
	if _, err := cb.Allow("render-api"); err == nil {
		t.Fatal("Allow succeeded on open circuit")
	}

	time.Sleep(40 * time.Millisecond)

	// First request after cooldown becomes the probe.
	probe, err := cb.Allow("render-api")
	if err != nil {
		t.Fatalf("probe Allow failed: %v", err)
	}
	if !probe {
		t.Fatal("Allow did not mark the admitted request as the probe")
	}
	// A second request while the probe is in flight is rejected.
	if _, err := cb.Allow("render-api"); err == nil {
		t.Fatal("second Allow succeeded while probe in flight")
	}

	// Probe success closes the circuit.
	cb.RecordSuccess("render-api")
	if state := cb.State("render-api"); state != CircuitClosed {
		t.Errorf("state = %v after probe success, want closed", state)
	}
	if _, err := cb.Allow("render-api"); err != nil {
		t.Errorf("Allow failed after circuit closed: %v", err)
	}
}

func TestCircuitBreaker_ProbeFailureReopens(t *testing.T) {
	cb := testBreaker(30 * time.Millisecond)
	boom := errors.New("boom")

	for i := 0; i < 4; i++ {
		cb.RecordFailure("render-api", boom)
	}
	time.Sleep(40 * time.Millisecond)

	if _, err := cb.Allow("render-api"); err != nil {
		t.Fatalf("probe Allow failed: %v", err)
	}
	cb.RecordFailure("render-api", boom)

	if _, err := cb.Allow("render-api"); faults.KindOf(err) != faults.CircuitOpen {
		t.Errorf("Allow error kind = %q after probe failure, want %q",
			faults.KindOf(err), faults.CircuitOpen)
	}
}

func TestCircuitBreaker_AbandonedProbeAdmitsFreshProbe(t *testing.T) {
	cb := testBreaker(30 * time.Millisecond)
	boom := errors.New("boom")

	for i := 0; i < 4; i++ {
		cb.RecordFailure("render-api", boom)
	}
	time.Sleep(40 * time.Millisecond)

	probe, err := cb.Allow("render-api")
	if err != nil || !probe {
		t.Fatalf("Allow = (%v, %v), want probe admission", probe, err)
	}

	// The probe's call never ran; releasing the claim reopens the circuit.
	cb.AbandonProbe("render-api")
	if _, err := cb.Allow("render-api"); faults.KindOf(err) != faults.CircuitOpen {
		t.Fatalf("Allow error kind = %q right after abandon, want %q",
			faults.KindOf(err), faults.CircuitOpen)
	}

	// The next cooldown admits a fresh probe instead of waiting forever.
	time.Sleep(40 * time.Millisecond)
	probe, err = cb.Allow("render-api")
	if err != nil {
		t.Fatalf("Allow after abandoned probe cooldown failed: %v", err)
	}
	if !probe {
		t.Error("Allow did not admit a fresh probe after the abandoned one")
	}
}

func TestCircuitBreaker_AbandonProbeWithoutClaimIsNoop(t *testing.T) {
	cb := testBreaker(time.Minute)

	cb.AbandonProbe("render-api")
	if _, err := cb.Allow("render-api"); err != nil {
		t.Errorf("Allow failed after no-op abandon: %v", err)
	}
	if state := cb.State("render-api"); state != CircuitClosed {
		t.Errorf("state = %v after no-op abandon, want closed", state)
	}
}

func TestCircuitBreaker_SuccessWhileOpenCloses(t *testing.T) {
	cb := testBreaker(time.Minute)
	boom := errors.New("boom")

	for i := 0; i < 4; i++ {
		cb.RecordFailure("render-api", boom)
	}
	if state := cb.State("render-api"); state != CircuitOpen {
		t.Fatalf("state = %v, want open", state)
	}

	// A completed call succeeded against the resource: closing evidence.
	cb.RecordSuccess("render-api")
	if state := cb.State("render-api"); state != CircuitClosed {
		t.Errorf("state = %v after success while open, want closed", state)
	}
	if _, err := cb.Allow("render-api"); err != nil {
		t.Errorf("Allow failed after circuit closed: %v", err)
	}
}

func TestCircuitBreaker_ValidationErrorsIgnored(t *testing.T) {
	cb := NewCircuitBreaker(DefaultBreakerConfig())

	// Item-level failures say nothing about resource health.
	for i := 0; i < 20; i++ {
		cb.RecordFailure("generation-api", faults.New(faults.ValidationError, "bad item"))
	}

	if state := cb.State("generation-api"); state != CircuitClosed {
		t.Errorf("state = %v after validation errors, want closed", state)
	}
}

func TestCircuitBreaker_ResourcesIndependent(t *testing.T) {
	cb := testBreaker(time.Minute)
	boom := errors.New("boom")

	for i := 0; i < 4; i++ {
		cb.RecordFailure("render-api", boom)
	}

	if _, err := cb.Allow("render-api"); err == nil {
		t.Fatal("Allow succeeded on open render-api circuit")
	}
	if _, err := cb.Allow("publish-api"); err != nil {
		t.Errorf("publish-api affected by render-api circuit: %v", err)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := testBreaker(time.Minute)
	boom := errors.New("boom")

	for i := 0; i < 4; i++ {
		cb.RecordFailure("render-api", boom)
	}
	cb.Reset("render-api")

	if _, err := cb.Allow("render-api"); err != nil {
		t.Errorf("Allow failed after Reset: %v", err)
	}
}

func TestCircuitBreaker_NilSafe(t *testing.T) {
	var cb *CircuitBreaker

	if _, err := cb.Allow("x"); err != nil {
		t.Errorf("nil breaker Allow returned %v", err)
	}
	cb.RecordSuccess("x")
	cb.RecordFailure("x", errors.New("boom"))
	cb.AbandonProbe("x")
	if state := cb.State("x"); state != CircuitClosed {
		t.Errorf("nil breaker state = %v, want closed", state)
	}
}
