package breaker

import (
	"sync"
	"time"

	"github.com/subwise/resilience/internal/observability"
	"go.uber.org/zap"
)

const (
	defaultThreshold   = 3
	defaultResetWindow = 60 * time.Second
)

// State is the observable condition of one guarded resource.
type State string

const (
	StateClosed State = "closed"
	StateOpen   State = "open"
)

// Breaker tracks consecutive failures per named resource and short-circuits
// calls to resources that have crossed the failure threshold. The reset is
// purely time-based: once the reset window has elapsed the breaker closes and
// lets the next call through, without a half-open probe.
//
// State is in-memory and per-process. A multi-instance deployment would need a
// shared store to coordinate breaker state; this implementation does not.
type Breaker struct {
	threshold   int
	resetWindow time.Duration
	logger      *zap.Logger
	metrics     *observability.Metrics

	mu        sync.Mutex
	resources map[string]*resourceState
	now       func() time.Time
}

type resourceState struct {
	failures int
	open     bool
	openedAt time.Time
}

func New(threshold int, resetWindow time.Duration, logger *zap.Logger) *Breaker {
	if threshold < 1 {
		threshold = defaultThreshold
	}
	if resetWindow <= 0 {
		resetWindow = defaultResetWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Breaker{
		threshold:   threshold,
		resetWindow: resetWindow,
		logger:      logger,
		resources:   make(map[string]*resourceState),
		now:         time.Now,
	}
}

// Allow reports whether a call to the resource may proceed. An open breaker
// whose reset window has elapsed closes here, so the caller that observes the
// elapsed window is the one let through.
func (b *Breaker) Allow(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.resources[key]
	if !ok || !state.open {
		return true
	}

	if b.now().Sub(state.openedAt) < b.resetWindow {
		return false
	}

	state.open = false
	state.failures = 0
	b.logger.Info("circuit breaker closed after reset window",
		zap.String("resource", key),
		zap.Duration("resetWindow", b.resetWindow),
	)
	return true
}

func (b *Breaker) SetMetrics(metrics *observability.Metrics) {
	if b == nil {
		return
	}
	b.metrics = metrics
}

// RecordSuccess clears the failure count for the resource.
func (b *Breaker) RecordSuccess(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.resources[key]
	if !ok {
		return
	}
	state.failures = 0
	state.open = false
}

// RecordFailure counts one failure and opens the breaker at the threshold.
func (b *Breaker) RecordFailure(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.resources[key]
	if !ok {
		state = &resourceState{}
		b.resources[key] = state
	}

	state.failures++
	if !state.open && state.failures >= b.threshold {
		state.open = true
		state.openedAt = b.now()
		b.metrics.IncBreakerOpened(key)
		b.logger.Warn("circuit breaker opened",
			zap.String("resource", key),
			zap.Int("failures", state.failures),
			zap.Duration("resetWindow", b.resetWindow),
		)
	}
}

// State returns the current condition of the resource without mutating it.
func (b *Breaker) State(key string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.resources[key]
	if !ok || !state.open {
		return StateClosed
	}
	if b.now().Sub(state.openedAt) >= b.resetWindow {
		return StateClosed
	}
	return StateOpen
}
