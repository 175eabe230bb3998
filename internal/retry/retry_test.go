package retry

import (
	"context"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestBackoffWaitsApproximatelyInitialDelay(t *testing.T) {
	b := New(20*time.Millisecond, time.Second, 2.0)

	start := time.Now()
	if err := b.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	elapsed := time.Since(start)

	if elapsed < 10*time.Millisecond {
		t.Errorf("Wait() returned too quickly: %v, want at least ~20ms", elapsed)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	b := New(5*time.Millisecond, 15*time.Millisecond, 4.0)

	for i := 0; i < 3; i++ {
		if err := b.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() attempt %d error = %v", i, err)
		}
	}

	if b.Attempt() != 3 {
		t.Errorf("Attempt() = %d, want 3", b.Attempt())
	}

	// 5ms grows to 20ms, 80ms, 320ms; each is above the 15ms cap.
	if got, want := b.limiter.Limit(), rate.Every(15*time.Millisecond); got != want {
		t.Errorf("limit after 3 attempts = %v, want %v (the 15ms cap)", got, want)
	}
}

func TestBackoffRespectsContextCancellation(t *testing.T) {
	b := New(time.Hour, time.Hour, 2.0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := b.Wait(ctx); err == nil {
		t.Fatalf("Wait() error = nil, want context cancellation error")
	}
}
