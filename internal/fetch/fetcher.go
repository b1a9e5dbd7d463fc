package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/subwise/resilience/internal/backoff"
	"github.com/subwise/resilience/internal/breaker"
	"github.com/subwise/resilience/internal/observability"
	"go.uber.org/zap"
)

const (
	defaultFetchAttempts  = 3
	defaultAttemptTimeout = 8 * time.Second
	defaultCacheTTL       = 5 * time.Minute
)

// Status classifies how a fetch result was produced.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusCached   Status = "cached"
	StatusFallback Status = "fallback"
	StatusError    Status = "error"
)

// Degradation reasons surfaced in Result.Reason.
const (
	ReasonBreakerOpen      = "circuit_breaker_open"
	ReasonRetriesExhausted = "retries_exhausted"
	ReasonInvalidRequest   = "invalid_request"
)

// Request describes one upstream read. Key identifies the resource for the
// breaker and the cache; Fallback is the static payload used when both the
// origin and the cache are unavailable.
type Request struct {
	Key      string
	URL      string
	Headers  map[string]string
	Timeout  time.Duration
	CacheTTL time.Duration
	Fallback json.RawMessage
}

// Result is always returned, whatever happened upstream. Status tells the
// caller which degradation level produced Data; Error is only set when there
// was nothing to serve at all.
type Result struct {
	Data      json.RawMessage `json:"data,omitempty"`
	Status    Status          `json:"status"`
	FromCache bool            `json:"fromCache"`
	Reason    string          `json:"reason,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Fetcher reads JSON resources from upstream services with retries, a circuit
// breaker per resource key, and cache-then-fallback degradation. Fetch never
// returns an error; failures degrade into the Result.
type Fetcher struct {
	client  *resty.Client
	cache   Cache
	breaker *breaker.Breaker
	policy  backoff.Policy
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewFetcher(cache Cache, brk *breaker.Breaker, policy backoff.Policy, logger *zap.Logger) (*Fetcher, error) {
	client := resty.New()
	client.SetRetryCount(0)

	return NewFetcherWithClient(cache, brk, policy, logger, client)
}

func NewFetcherWithClient(cache Cache, brk *breaker.Breaker, policy backoff.Policy, logger *zap.Logger, client *resty.Client) (*Fetcher, error) {
	if cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if brk == nil {
		return nil, fmt.Errorf("circuit breaker is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = defaultFetchAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client.SetRetryCount(0)

	return &Fetcher{
		client:  client,
		cache:   cache,
		breaker: brk,
		policy:  policy,
		logger:  logger,
		now:     time.Now,
		sleep:   backoff.Sleep,
	}, nil
}

func (f *Fetcher) SetMetrics(metrics *observability.Metrics) {
	if f == nil {
		return
	}
	f.metrics = metrics
}

// Fetch reads the requested resource, degrading through fresh cache and then
// the static fallback when the origin cannot be reached.
func (f *Fetcher) Fetch(ctx context.Context, req Request) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	log := observability.WithContextLogger(f.logger, ctx)

	req.Key = strings.TrimSpace(req.Key)
	if req.Key == "" || strings.TrimSpace(req.URL) == "" {
		return f.degrade(ctx, req, ReasonInvalidRequest, fmt.Errorf("fetch request needs a key and a url"))
	}
	if req.Timeout <= 0 {
		req.Timeout = defaultAttemptTimeout
	}
	if req.CacheTTL <= 0 {
		req.CacheTTL = defaultCacheTTL
	}

	if !f.breaker.Allow(req.Key) {
		log.Warn("fetch short-circuited, breaker open",
			zap.String("resource", req.Key),
		)
		return f.degrade(ctx, req, ReasonBreakerOpen, nil)
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		payload, err := f.attempt(ctx, req)
		if err == nil {
			entry := Entry{Payload: payload, FetchedAt: f.now().UTC()}
			if cacheErr := f.cache.Set(ctx, req.Key, entry); cacheErr != nil {
				log.Warn("failed to cache fetched payload",
					zap.String("resource", req.Key),
					zap.Error(cacheErr),
				)
			}

			f.breaker.RecordSuccess(req.Key)
			f.metrics.IncFetchResult(req.Key, string(StatusSuccess))
			return Result{Data: payload, Status: StatusSuccess}
		}

		lastErr = err
		log.Warn("fetch attempt failed",
			zap.String("resource", req.Key),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		delay, ok := f.policy.Next(attempt)
		if !ok {
			break
		}
		if sleepErr := f.sleep(ctx, delay); sleepErr != nil {
			lastErr = fmt.Errorf("retry wait interrupted: %w", sleepErr)
			break
		}
	}

	f.breaker.RecordFailure(req.Key)
	return f.degrade(ctx, req, ReasonRetriesExhausted, lastErr)
}

func (f *Fetcher) attempt(ctx context.Context, req Request) (json.RawMessage, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	response, err := f.client.R().
		SetContext(attemptCtx).
		SetHeaders(req.Headers).
		Get(req.URL)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("upstream returned status %d", statusCode)
	}

	body := response.Body()
	payload := make(json.RawMessage, len(body))
	copy(payload, body)
	return payload, nil
}

// degrade serves the freshest substitute available: a cache entry still within
// its TTL, then the static fallback, then an error result. The returned Result
// is complete either way; callers never see a panic or a Go error.
func (f *Fetcher) degrade(ctx context.Context, req Request, reason string, cause error) Result {
	log := observability.WithContextLogger(f.logger, ctx)
	if entry, ok, err := f.cache.Get(ctx, req.Key); err != nil {
		log.Warn("cache read failed during degradation",
			zap.String("resource", req.Key),
			zap.Error(err),
		)
	} else if ok && entry.Fresh(f.now(), req.CacheTTL) {
		f.metrics.IncFetchResult(req.Key, string(StatusCached))
		log.Info("serving cached payload",
			zap.String("resource", req.Key),
			zap.String("reason", reason),
			zap.Time("fetchedAt", entry.FetchedAt),
		)
		return Result{Data: entry.Payload, Status: StatusCached, FromCache: true, Reason: reason}
	}

	if len(req.Fallback) > 0 {
		f.metrics.IncFetchResult(req.Key, string(StatusFallback))
		log.Info("serving static fallback",
			zap.String("resource", req.Key),
			zap.String("reason", reason),
		)
		return Result{Data: req.Fallback, Status: StatusFallback, Reason: reason}
	}

	f.metrics.IncFetchResult(req.Key, string(StatusError))
	result := Result{Status: StatusError, Reason: reason}
	if cause != nil {
		result.Error = cause.Error()
	}
	return result
}
