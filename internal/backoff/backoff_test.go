package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPolicyNextGrowsAndCaps(t *testing.T) {
	t.Parallel()

	p := Policy{
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    400 * time.Millisecond,
	}

	tests := []struct {
		attempt int
		want    time.Duration
		wantOK  bool
	}{
		{attempt: 1, want: 100 * time.Millisecond, wantOK: true},
		{attempt: 2, want: 200 * time.Millisecond, wantOK: true},
		{attempt: 3, want: 400 * time.Millisecond, wantOK: true},
		{attempt: 4, want: 400 * time.Millisecond, wantOK: true},
		{attempt: 5, wantOK: false},
	}

	for _, tt := range tests {
		got, ok := p.Next(tt.attempt)
		if ok != tt.wantOK {
			t.Fatalf("Next(%d) ok = %v, want %v", tt.attempt, ok, tt.wantOK)
		}
		if ok && got != tt.want {
			t.Fatalf("Next(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestPolicyNextRefusesOutOfRangeAttempts(t *testing.T) {
	t.Parallel()

	p := Interactive(2)

	if _, ok := p.Next(0); ok {
		t.Fatal("Next(0) should not permit a retry")
	}
	if _, ok := p.Next(2); ok {
		t.Fatal("Next at max attempts should not permit a retry")
	}
}

func TestPolicyNextJitterIsAdditiveAndBounded(t *testing.T) {
	t.Parallel()

	p := Policy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    400 * time.Millisecond,
		JitterMax:   50 * time.Millisecond,
		randIntn:    func(n int) int { return n - 1 },
	}

	got, ok := p.Next(1)
	if !ok {
		t.Fatal("Next(1) should permit a retry")
	}
	if got != 150*time.Millisecond {
		t.Fatalf("Next(1) = %v, want base plus max jitter 150ms", got)
	}

	p.randIntn = func(n int) int { return 0 }
	got, _ = p.Next(1)
	if got != 100*time.Millisecond {
		t.Fatalf("Next(1) = %v, want bare base delay with zero jitter", got)
	}
}

func TestSleepHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Sleep(ctx, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Sleep() error = %v, want context.Canceled", err)
	}

	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("Sleep() unexpected error = %v", err)
	}
}
