package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/latch-escrow/internal/domain"
	"go.uber.org/zap"
)

// MessageBus — транспорт для рассылки событий (Redis Pub/Sub в проде, фейк в тестах)
type MessageBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// RedisBus адаптирует go-redis к MessageBus
type RedisBus struct {
	rdb redis.UniversalClient
}

func NewRedisBus(rdb redis.UniversalClient) *RedisBus {
	return &RedisBus{rdb: rdb}
}

func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Publisher рассылает доменные события во внешний канал.
// Emit вызывается под мьютексом контроллера, поэтому только кладет событие в буфер.
type Publisher struct {
	bus     MessageBus
	channel string
	rw      *ReliabilityWrapper
	metrics *Metrics
	logger  *zap.Logger

	ch chan domain.Event
	wg sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewPublisher(bus MessageBus, channel string, rw *ReliabilityWrapper, metrics *Metrics, logger *zap.Logger, buffer int) *Publisher {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Publisher{
		bus:     bus,
		channel: channel,
		rw:      rw,
		metrics: metrics,
		logger:  logger.With(zap.String("mod", "publisher")),
		ch:      make(chan domain.Event, buffer),
	}
}

func (p *Publisher) Start() {
	p.wg.Add(1)
	go p.worker()
}

func (p *Publisher) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.ch)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("publisher stopped")
}

// Emit реализует EventSink
func (p *Publisher) Emit(ev domain.Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return
	}
	select {
	case p.ch <- ev:
	default:
		p.metrics.dropped("events")
		p.logger.Warn("event dropped: publish buffer full",
			zap.String("event_id", ev.ID),
			zap.String("operation", string(ev.Operation)))
	}
}

func (p *Publisher) worker() {
	defer p.wg.Done()
	for ev := range p.ch {
		payload, err := json.Marshal(ev)
		if err != nil {
			p.logger.Error("event marshal failed", zap.String("event_id", ev.ID), zap.Error(err))
			continue
		}
		err = p.rw.Do(context.Background(), func(ctx context.Context) error {
			return p.bus.Publish(ctx, p.channel, payload)
		})
		if err != nil {
			p.metrics.dropped("events")
			p.logger.Warn("event publish failed", zap.String("event_id", ev.ID), zap.Error(err))
		}
	}
}
