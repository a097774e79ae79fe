// Package ledger — журнал активности только на добавление.
// Записи не редактируются и не удаляются поштучно, допускается только полная очистка оператором.
package ledger

import (
	"sync"
	"time"

	"github.com/xela07ax/latch-escrow/internal/domain"
)

// Sink получает каждую добавленную запись (например, асинхронный архив в Postgres)
type Sink interface {
	Log(entry domain.ActivityEntry)
}

type Option func(*Ledger)

// WithClock подменяет часы (для тестов)
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithSink(s Sink) Option {
	return func(l *Ledger) { l.sinks = append(l.sinks, s) }
}

type Ledger struct {
	mu      sync.RWMutex
	entries []domain.ActivityEntry
	now     func() time.Time
	sinks   []Sink
}

func New(opts ...Option) *Ledger {
	l := &Ledger{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append создает запись со свежим id и текущим временем
func (l *Ledger) Append(message string) domain.ActivityEntry {
	entry := domain.ActivityEntry{
		ID:        domain.NewActivityID(),
		Timestamp: l.now().UnixMilli(),
		Message:   message,
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()

	for _, s := range l.sinks {
		s.Log(entry)
	}
	return entry
}

// Fail добавляет запись с маркером отказа
func (l *Ledger) Fail(reason string) domain.ActivityEntry {
	return l.Append(domain.MarkFailure + " " + reason)
}

// List возвращает копию в порядке добавления (хронологически)
func (l *Ledger) List() []domain.ActivityEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.ActivityEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func (l *Ledger) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

// Restore заменяет содержимое журнала снимком из хранилища. Sink'и не уведомляются,
// записи уже были заархивированы при первом добавлении.
func (l *Ledger) Restore(entries []domain.ActivityEntry) {
	cp := make([]domain.ActivityEntry, len(entries))
	copy(cp, entries)
	l.mu.Lock()
	l.entries = cp
	l.mu.Unlock()
}
