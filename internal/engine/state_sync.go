package engine

import (
	"context"
	"sync"

	"github.com/xela07ax/latch-escrow/internal/domain"
	"go.uber.org/zap"
)

// StateRepository — долговременное key-value хранилище снимка (rediskv.StateRepo)
type StateRepository interface {
	SaveState(ctx context.Context, st domain.State) error
	LoadState(ctx context.Context) (domain.State, error)
}

// StateSyncer сохраняет снимок состояния в фоне. Побеждает последний снимок:
// если воркер не успел записать предыдущий, он заменяется новым.
type StateSyncer struct {
	repo   StateRepository
	rw     *ReliabilityWrapper
	logger *zap.Logger

	mu      sync.Mutex
	pending *domain.State
	closed  bool

	wake chan struct{}
	done chan struct{}
}

func NewStateSyncer(repo StateRepository, rw *ReliabilityWrapper, logger *zap.Logger) *StateSyncer {
	return &StateSyncer{
		repo:   repo,
		rw:     rw,
		logger: logger.With(zap.String("mod", "state_sync")),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Load читает сохраненное состояние для Controller.Restore
func (s *StateSyncer) Load(ctx context.Context) (domain.State, error) {
	var st domain.State
	err := s.rw.Do(ctx, func(ctx context.Context) error {
		var err error
		st, err = s.repo.LoadState(ctx)
		return err
	})
	return st, err
}

func (s *StateSyncer) Start() {
	go s.worker()
}

// Save реализует StateSink и никогда не блокирует
func (s *StateSyncer) Save(st domain.State) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = &st
	select {
	case s.wake <- struct{}{}:
	default:
	}
	s.mu.Unlock()
}

// Stop дописывает последний снимок и останавливает воркер
func (s *StateSyncer) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.wake)
	s.mu.Unlock()

	<-s.done
	s.logger.Info("state syncer stopped")
}

func (s *StateSyncer) take() *domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.pending
	s.pending = nil
	return st
}

func (s *StateSyncer) worker() {
	defer close(s.done)
	for range s.wake {
		s.flush()
	}
	s.flush() // Финальный снимок
}

func (s *StateSyncer) flush() {
	st := s.take()
	if st == nil {
		return
	}
	err := s.rw.Do(context.Background(), func(ctx context.Context) error {
		return s.repo.SaveState(ctx, *st)
	})
	if err != nil {
		s.logger.Warn("state snapshot not persisted",
			zap.Int("vaults", len(st.Vaults)),
			zap.Int("activity", len(st.Activity)),
			zap.Error(err))
	}
}
