package domain

import "time"

type Outcome string

const (
	OutcomeAllowed Outcome = "allowed"
	OutcomeDenied  Outcome = "denied"
)

// Event — доменное событие, которое контроллер публикует на каждую попытку перехода.
// Слой представления подписывается и сам решает, как анимировать изменения.
type Event struct {
	ID        string    `json:"id"`
	At        time.Time `json:"at"`
	Operation Operation `json:"operation"`
	Outcome   Outcome   `json:"outcome"`
	Role      Role      `json:"role,omitempty"`
	VaultID   string    `json:"vault_id,omitempty"`
	Status    Status    `json:"status,omitempty"`
	Amount    *Amount   `json:"amount,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	EntryID   string    `json:"entry_id,omitempty"`
	// Selected — vault стал выбранным (после CreateDraft)
	Selected bool `json:"selected,omitempty"`
}

func (e Event) Allowed() bool {
	return e.Outcome == OutcomeAllowed
}
