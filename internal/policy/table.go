package policy

import "github.com/xela07ax/latch-escrow/internal/domain"

// Rule — одна строка таблицы политик.
// Проверки идут в порядке: наличие vault -> состояние vault -> роль.
type Rule struct {
	Operation domain.Operation

	RequiresVault bool
	// Vault должен находиться в одном из этих состояний (пусто = любое)
	AllowedStatuses []domain.Status
	// Vault не должен находиться ни в одном из этих состояний
	ForbiddenStatuses []domain.Status
	Roles             []domain.Role

	MissingReason string
	StatusReason  string
	RoleReason    string
}

const ReasonSelectVault = "Select a vault first."

// DefaultTable — политика UI-mode: Creator ведет vault, Arbitrator разрешает спор по Funded
var DefaultTable = []Rule{
	{
		Operation:  domain.OpCreateDraft,
		Roles:      []domain.Role{domain.RoleCreator},
		RoleReason: "Only the Creator can create vaults.",
	},
	{
		Operation:       domain.OpFund,
		RequiresVault:   true,
		AllowedStatuses: []domain.Status{domain.StatusDraft},
		Roles:           []domain.Role{domain.RoleCreator},
		MissingReason:   ReasonSelectVault,
		StatusReason:    "Only Draft vaults can be funded.",
		RoleReason:      "Only the Creator can fund a vault.",
	},
	{
		Operation:       domain.OpRelease,
		RequiresVault:   true,
		AllowedStatuses: []domain.Status{domain.StatusFunded},
		Roles:           []domain.Role{domain.RoleCreator, domain.RoleArbitrator},
		MissingReason:   ReasonSelectVault,
		StatusReason:    "Only Funded vaults can be released.",
		RoleReason:      "Only Creator or Arbitrator can release.",
	},
	{
		Operation:       domain.OpRefund,
		RequiresVault:   true,
		AllowedStatuses: []domain.Status{domain.StatusFunded},
		Roles:           []domain.Role{domain.RoleCreator, domain.RoleArbitrator},
		MissingReason:   ReasonSelectVault,
		StatusReason:    "Only Funded vaults can be refunded.",
		RoleReason:      "Only Creator or Arbitrator can refund.",
	},
	{
		Operation:         domain.OpDelete,
		RequiresVault:     true,
		ForbiddenStatuses: []domain.Status{domain.StatusFunded},
		Roles:             []domain.Role{domain.RoleCreator},
		MissingReason:     ReasonSelectVault,
		StatusReason:      "Funded vaults cannot be deleted.",
		RoleReason:        "Only the Creator can delete vault records.",
	},
}
