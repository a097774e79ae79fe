package audit

/*
Файл archiver.go реализует асинхронную доставку журнала активности в долговременное хранилище.

- Non-blocking: Log никогда не блокирует операцию жизненного цикла vault. При переполнении
  буфера запись сбрасывается в zap (Load Shedding), журнал в памяти остается полным.
- Batching: записи копятся и пишутся пачкой по 100 штук или по таймеру.
- Drain: Stop закрывает вход, воркер вычитывает остаток канала и делает финальный flush.
*/

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xela07ax/latch-escrow/internal/domain"
	"go.uber.org/zap"
)

// Storage определяет, куда физически будут сохраняться записи
type Storage interface {
	// WriteBatch сохраняет пачку записей за один раз
	WriteBatch(ctx context.Context, entries []domain.ActivityEntry) error
}

// Guard оборачивает запись пачки (лимитер, предохранитель, повторы)
type Guard interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

type Options struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	// BufferFill — опциональный gauge заполненности буфера (backpressure)
	BufferFill prometheus.Gauge
	Guard      Guard
}

type Archiver struct {
	ch     chan domain.ActivityEntry
	repo   Storage
	logger *zap.Logger
	opts   Options
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewArchiver(repo Storage, logger *zap.Logger, opts Options) *Archiver {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 10000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 500 * time.Millisecond
	}
	return &Archiver{
		ch:     make(chan domain.ActivityEntry, opts.BufferSize),
		repo:   repo,
		logger: logger.With(zap.String("mod", "archiver")),
		opts:   opts,
	}
}

func (a *Archiver) Start() {
	a.wg.Add(1)
	go a.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (a *Archiver) Stop() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.logger.Info("stopping archiver: closing channel and flushing buffer...")
	close(a.ch)
	a.mu.Unlock()

	a.wg.Wait()
	a.logger.Info("archiver stopped gracefully")
}

// Log реализует ledger.Sink
func (a *Archiver) Log(entry domain.ActivityEntry) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		a.logger.Warn("activity entry dropped: archiver is stopping", zap.String("id", entry.ID))
		return
	}

	select {
	case a.ch <- entry:
		a.observeFill()
	default:
		a.logger.Error("archive_buffer_overflow",
			zap.String("id", entry.ID),
			zap.String("message", entry.Message),
		)
	}
}

func (a *Archiver) observeFill() {
	if a.opts.BufferFill != nil {
		a.opts.BufferFill.Set(float64(len(a.ch)))
	}
}

func (a *Archiver) write(ctx context.Context, batch []domain.ActivityEntry) error {
	if a.opts.Guard == nil {
		return a.repo.WriteBatch(ctx, batch)
	}
	return a.opts.Guard.Do(ctx, func(ctx context.Context) error {
		return a.repo.WriteBatch(ctx, batch)
	})
}

func (a *Archiver) worker() {
	defer a.wg.Done()

	batch := make([]domain.ActivityEntry, 0, a.opts.BatchSize)
	ticker := time.NewTicker(a.opts.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: основной контекст к этому моменту может быть уже отменен
		if err := a.write(context.Background(), batch); err != nil {
			a.logger.Error("archive flush failed", zap.Int("count", len(batch)), zap.Error(err))
		}
		batch = make([]domain.ActivityEntry, 0, a.opts.BatchSize)
		a.observeFill()
	}

	for {
		select {
		case entry, ok := <-a.ch:
			if !ok {
				flush() // Финальный сброс
				a.logger.Info("archive worker finished")
				return
			}
			batch = append(batch, entry)
			if len(batch) >= a.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
