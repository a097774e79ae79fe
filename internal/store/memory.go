package store

import (
	"fmt"
	"sync"

	"github.com/xela07ax/latch-escrow/internal/domain"
)

// MemoryStore — потокобезопасная in-memory реализация VaultStore.
// Порядок вставки сохраняется, чтобы стабильная сортировка давала предсказуемый результат.
type MemoryStore struct {
	mu     sync.RWMutex
	vaults map[string]domain.Vault
	order  []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vaults: make(map[string]domain.Vault),
	}
}

func (s *MemoryStore) Insert(v domain.Vault) error {
	if v.ID == "" {
		return fmt.Errorf("store: empty vault id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vaults[v.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, v.ID)
	}
	s.vaults[v.ID] = v
	s.order = append(s.order, v.ID)
	return nil
}

func (s *MemoryStore) Get(id string) (domain.Vault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.vaults[id]
	if !ok {
		return domain.Vault{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return v, nil
}

func (s *MemoryStore) SetStatus(id string, status domain.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.vaults[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	v.Status = status
	s.vaults[id] = v
	return nil
}

func (s *MemoryStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vaults[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.vaults, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) ListAll() []domain.Vault {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Пустой слайс вместо nil, чтобы в JSON был []
	out := make([]domain.Vault, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.vaults[id])
	}
	return out
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vaults = make(map[string]domain.Vault)
	s.order = nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vaults)
}
