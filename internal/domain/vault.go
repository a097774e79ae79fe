package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status — состояние vault в конечном автомате
type Status string

const (
	StatusDraft    Status = "draft"
	StatusFunded   Status = "funded"
	StatusReleased Status = "released"
	StatusRefunded Status = "refunded"
)

var (
	ErrInvalidTransition = errors.New("invalid vault status transition")
	ErrAlreadySettled    = errors.New("vault already settled")
	ErrUnknownStatus     = errors.New("unknown vault status")
	ErrFundsLocked       = errors.New("funded vault cannot be removed")
)

// Граф переходов. Released/Refunded терминальные, выход из них только удалением.
var transitions = map[Status][]Status{
	StatusDraft:  {StatusFunded},
	StatusFunded: {StatusReleased, StatusRefunded},
}

// ParseStatus принимает как "funded", так и "Funded"
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case StatusDraft, StatusFunded, StatusReleased, StatusRefunded:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
}

// Label — человекочитаемое имя для журнала и UI
func (s Status) Label() string {
	switch s {
	case StatusDraft:
		return "Draft"
	case StatusFunded:
		return "Funded"
	case StatusReleased:
		return "Released"
	case StatusRefunded:
		return "Refunded"
	}
	return string(s)
}

func (s Status) IsTerminal() bool {
	return s == StatusReleased || s == StatusRefunded
}

// Vault — escrow-запись. После создания меняется только Status.
// JSON-теги совпадают со схемой персистентного хранилища (amountSol, createdAt в мс).
type Vault struct {
	ID           string `json:"id"`
	CreatedAt    int64  `json:"createdAt"`
	Amount       Amount `json:"amountSol"`
	Counterparty string `json:"counterparty"`
	Status       Status `json:"status"`
	Memo         string `json:"memo,omitempty"`
}

// CanTransitionTo проверяет правила конечного автомата
func (v *Vault) CanTransitionTo(next Status) error {
	if v.Status.IsTerminal() {
		return ErrAlreadySettled
	}
	for _, allowed := range transitions[v.Status] {
		if allowed == next {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, v.Status, next)
}

// CanDelete: удалить можно любой vault, кроме Funded (средства заблокированы)
func (v *Vault) CanDelete() error {
	if v.Status == StatusFunded {
		return ErrFundsLocked
	}
	return nil
}

func (v Vault) Created() time.Time {
	return time.UnixMilli(v.CreatedAt).UTC()
}

// SearchText — строка, по которой идет полнотекстовый поиск (id, counterparty, memo, status)
func (v Vault) SearchText() string {
	return strings.ToLower(v.ID + " " + v.Counterparty + " " + v.Memo + " " + string(v.Status))
}

// NewVaultID генерирует непрозрачный идентификатор вида vault_<hex>
func NewVaultID() string {
	return "vault_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ShortID — первые 10 символов id с многоточием, формат журнала
func ShortID(id string) string {
	r := []rune(id)
	if len(r) > 10 {
		r = r[:10]
	}
	return string(r) + "…"
}

// ShortAddr сокращает адрес кошелька до 4…4
func ShortAddr(s string) string {
	r := []rune(s)
	if len(r) <= 10 {
		return s
	}
	return string(r[:4]) + "…" + string(r[len(r)-4:])
}
