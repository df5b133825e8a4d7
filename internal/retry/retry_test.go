package retry

import (
	"context"
	"testing"
	"time"
)

func TestDelay_ExponentialGrowth(t *testing.T) {
	cfg := Config{
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		CapDelay:    10 * time.Second,
	}

	// Expected pre-jitter delays: 100ms, 200ms, 400ms, 800ms.
	expected := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
	}

	for attempt, want := range expected {
		for i := 0; i < 20; i++ {
			got := cfg.Delay(attempt)
			lo := time.Duration(float64(want) * 0.5)
			hi := time.Duration(float64(want) * 1.5)
			if got < lo || got > hi {
				t.Errorf("Delay(%d) = %v, want in [%v, %v]", attempt, got, lo, hi)
			}
		}
	}
}

func TestDelay_CappedAtMax(t *testing.T) {
	cfg := Config{
		MaxAttempts: 10,
		BaseDelay:   1 * time.Second,
		CapDelay:    5 * time.Second,
	}

	// Large attempt numbers must stay within the jittered cap.
	for i := 0; i < 50; i++ {
		got := cfg.Delay(20)
		if got > time.Duration(float64(cfg.CapDelay)*1.5) {
			t.Errorf("Delay(20) = %v, exceeds jittered cap", got)
		}
		if got < time.Duration(float64(cfg.CapDelay)*0.5) {
			t.Errorf("Delay(20) = %v, below jittered cap floor", got)
		}
	}
}

func TestDelay_NegativeAttempt(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.Delay(-1); got <= 0 {
		t.Errorf("Delay(-1) = %v, want positive", got)
	}
}

func TestSleep_Completes(t *testing.T) {
	start := time.Now()
	if err := Sleep(context.Background(), 20*time.Millisecond); err != nil {
		t.Fatalf("Sleep returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("Sleep returned after %v, want >= 20ms", elapsed)
	}
}

func TestSleep_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Sleep(ctx, 10*time.Second); err != context.Canceled {
		t.Errorf("Sleep returned %v, want context.Canceled", err)
	}
}

func TestSleep_ZeroDuration(t *testing.T) {
	if err := Sleep(context.Background(), 0); err != nil {
		t.Errorf("Sleep(0) returned %v, want nil", err)
	}
}
