package domain

import (
	"encoding/json"
	"time"
)

type ExportKind string

const (
	ExportVault    ExportKind = "vault"
	ExportActivity ExportKind = "activity_log"
)

// ExportSnapshot — сериализуемый снимок для буфера обмена или скачивания файла.
// Транспорт (copy/download) внешний, ядро только формирует структуру.
type ExportSnapshot struct {
	Type        ExportKind      `json:"type"`
	ExportedAt  time.Time       `json:"exportedAt"`
	RoleContext Role            `json:"roleContext"`
	Vault       *Vault          `json:"vault,omitempty"`
	Events      []ActivityEntry `json:"events,omitempty"`
}

// MarshalJSON: для activity_log поле events присутствует всегда, даже пустое
func (s ExportSnapshot) MarshalJSON() ([]byte, error) {
	exportedAt := s.ExportedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	if s.Type == ExportActivity {
		events := s.Events
		if events == nil {
			events = []ActivityEntry{}
		}
		return json.Marshal(struct {
			Type        ExportKind      `json:"type"`
			ExportedAt  string          `json:"exportedAt"`
			RoleContext Role            `json:"roleContext"`
			Events      []ActivityEntry `json:"events"`
		}{s.Type, exportedAt, s.RoleContext, events})
	}
	return json.Marshal(struct {
		Type        ExportKind `json:"type"`
		ExportedAt  string     `json:"exportedAt"`
		RoleContext Role       `json:"roleContext"`
		Vault       *Vault     `json:"vault"`
	}{s.Type, exportedAt, s.RoleContext, s.Vault})
}
