package backoff_test

import (
	"context"
	"testing"
	"time"

	"genbatch/internal/backoff"
)

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := backoff.NewConstant(5 * time.Second)
	for retry := 1; retry <= 10; retry++ {
		if got := c.Delay(retry); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want %v", retry, got, 5*time.Second)
		}
	}
}

func TestConstant_NegativeIntervalIsZero(t *testing.T) {
	if got := backoff.NewConstant(-time.Second).Delay(1); got != 0 {
		t.Errorf("Delay = %v, want 0", got)
	}
}

func TestFunc_Delegates(t *testing.T) {
	f := backoff.Func(func(retry int) time.Duration { return time.Duration(retry) * time.Millisecond })
	if got := f.Delay(3); got != 3*time.Millisecond {
		t.Errorf("Delay(3) = %v, want 3ms", got)
	}
}

func TestWait_ReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := backoff.Wait(ctx, time.Minute); err != context.Canceled {
		t.Fatalf("Wait error = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Wait blocked for %v after cancel", elapsed)
	}
}

func TestWait_Sleeps(t *testing.T) {
	start := time.Now()
	if err := backoff.Wait(context.Background(), 20*time.Millisecond); err != nil {
		t.Fatalf("Wait error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("Wait returned after %v, want >= 20ms", elapsed)
	}
}
