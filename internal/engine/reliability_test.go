package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func fastConfig(name string) ReliabilityConfig {
	return ReliabilityConfig{
		Name:             name,
		Attempts:         3,
		CallTimeout:      time.Second,
		BreakerFailures:  2,
		BreakerOpenAfter: time.Minute,
	}
}

func TestReliabilityRetriesUntilSuccess(t *testing.T) {
	w := NewReliabilityWrapper(fastConfig("redis"), nil)
	var calls atomic.Int32
	err := w.Do(context.Background(), func(ctx context.Context) error {
		if calls.Add(1) < 3 {
			return &RetryAfterError{RetryAfter: time.Millisecond, Cause: errors.New("BUSY")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestReliabilityBreakerOpens(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	w := NewReliabilityWrapper(fastConfig("postgres"), m)
	boom := &RetryAfterError{RetryAfter: time.Millisecond, Cause: errors.New("down")}

	for i := 0; i < 2; i++ {
		if err := w.Do(context.Background(), func(context.Context) error { return boom }); err == nil {
			t.Fatal("expected failure")
		}
	}

	var calls atomic.Int32
	err := w.Do(context.Background(), func(context.Context) error {
		calls.Add(1)
		return nil
	})
	if !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("err = %v, want ErrBreakerOpen", err)
	}
	if calls.Load() != 0 {
		t.Fatal("open breaker must not call through")
	}
	if got := testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("postgres")); got != 1 {
		t.Fatalf("breaker gauge = %v", got)
	}
}

func TestReliabilityRespectsContext(t *testing.T) {
	cfg := fastConfig("redis")
	cfg.RatePerSecond = 0.001
	cfg.Burst = 1
	w := NewReliabilityWrapper(cfg, nil)

	// первый вызов съедает burst
	_ = w.Do(context.Background(), func(context.Context) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Do(ctx, func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected rate limiter error on cancelled context")
	}
}
