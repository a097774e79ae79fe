package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrBreakerOpen возвращается, пока предохранитель не пропускает вызовы
var ErrBreakerOpen = errors.New("circuit breaker open")

// RetryAfterError — внешняя сторона попросила подождать (например, Redis BUSY)
type RetryAfterError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *RetryAfterError) Unwrap() error { return e.Cause }

type ReliabilityConfig struct {
	Name             string
	RatePerSecond    float64
	Burst            int
	Attempts         uint
	CallTimeout      time.Duration
	BreakerFailures  uint32
	BreakerOpenAfter time.Duration
}

func DefaultReliabilityConfig(name string) ReliabilityConfig {
	return ReliabilityConfig{
		Name:             name,
		RatePerSecond:    100,
		Burst:            20,
		Attempts:         3,
		CallTimeout:      5 * time.Second,
		BreakerFailures:  5,
		BreakerOpenAfter: 30 * time.Second,
	}
}

// ReliabilityWrapper оборачивает исходящие вызовы в Redis/Postgres:
// лимитер -> предохранитель -> повторы с бэкоффом.
type ReliabilityWrapper struct {
	cfg     ReliabilityConfig
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewReliabilityWrapper(cfg ReliabilityConfig, metrics *Metrics) *ReliabilityWrapper {
	if cfg.Attempts == 0 {
		cfg.Attempts = 1
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Second
	}
	threshold := cfg.BreakerFailures

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     cfg.BreakerOpenAfter, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return threshold > 0 && counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.breakerState(name, to == gobreaker.StateOpen)
		},
	})

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := max(cfg.Burst, 1)

	return &ReliabilityWrapper{
		cfg:     cfg,
		cb:      cb,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (w *ReliabilityWrapper) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit exceeded: %w", err)
	}

	// 2. Circuit Breaker
	_, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.cfg.Attempts),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				var tErr *RetryAfterError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}
				return retry.BackOffDelay(n, err, config)
			}),
		)

		return nil, r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
			defer cancel()
			return fn(tCtx)
		})
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", w.cfg.Name, ErrBreakerOpen)
	}
	return err
}

func (w *ReliabilityWrapper) State() gobreaker.State {
	return w.cb.State()
}
