package backoff

import (
	"context"
	"math/rand"
	"time"
)

// Policy computes the retry schedule for a bounded attempt sequence.
// It carries no state across calls; Next is pure apart from jitter.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	JitterMax   time.Duration

	randIntn func(n int) int
}

// Interactive returns the schedule used on request-serving paths, where total
// added latency must stay in the low hundreds of milliseconds.
func Interactive(maxAttempts int) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    400 * time.Millisecond,
		JitterMax:   50 * time.Millisecond,
	}
}

// Next reports whether another attempt is permitted after the given 1-based
// attempt, and the delay to wait before it. Delay doubles per attempt, capped
// at MaxDelay, with additive jitter to spread simultaneous retries.
func (p Policy) Next(attempt int) (time.Duration, bool) {
	if attempt < 1 || attempt >= p.MaxAttempts {
		return 0, false
	}

	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			break
		}
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	return delay + p.jitter(), true
}

func (p Policy) jitter() time.Duration {
	if p.JitterMax <= 0 {
		return 0
	}

	intn := p.randIntn
	if intn == nil {
		intn = rand.Intn
	}

	return time.Duration(intn(int(p.JitterMax.Milliseconds())+1)) * time.Millisecond
}

// Sleep waits for the given duration or until the context is done.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
