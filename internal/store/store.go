// Package store владеет коллекцией vault-записей.
// Хранилище ничего не знает о допустимости переходов, это работа контроллера.
package store

import (
	"errors"

	"github.com/xela07ax/latch-escrow/internal/domain"
)

var (
	ErrNotFound    = errors.New("vault not found")
	ErrDuplicateID = errors.New("vault id already exists")
)

// VaultStore — id-индексированная коллекция с гарантией уникальности ключа
type VaultStore interface {
	Insert(v domain.Vault) error
	Get(id string) (domain.Vault, error)
	SetStatus(id string, status domain.Status) error
	Remove(id string) error
	// ListAll отдает копии в неопределенном порядке, сортирует QueryEngine
	ListAll() []domain.Vault
	Clear()
}
