package policy

import (
	"slices"

	"github.com/xela07ax/latch-escrow/internal/domain"
)

// Decision — результат проверки. Отказ всегда несет конкретную причину.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func Allow() Decision { return Decision{Allowed: true} }

func Deny(reason string) Decision { return Decision{Reason: reason} }

// Enforcer — точка принятия решения (PDP). Чистая функция без кэша решений.
type Enforcer interface {
	Evaluate(role domain.Role, vault *domain.Vault, op domain.Operation) Decision
}

// Engine интерпретирует таблицу правил
type Engine struct {
	rules map[domain.Operation]Rule
}

// NewEngine строит движок из таблицы. Без аргументов используется DefaultTable.
func NewEngine(rules ...Rule) *Engine {
	if len(rules) == 0 {
		rules = DefaultTable
	}
	m := make(map[domain.Operation]Rule, len(rules))
	for _, r := range rules {
		m[r.Operation] = r
	}
	return &Engine{rules: m}
}

func (e *Engine) Evaluate(role domain.Role, vault *domain.Vault, op domain.Operation) Decision {
	rule, ok := e.rules[op]
	if !ok {
		// Default Deny: операции нет в таблице
		return Deny("Operation is not permitted.")
	}

	if rule.RequiresVault {
		if vault == nil {
			return Deny(rule.MissingReason)
		}
		if len(rule.AllowedStatuses) > 0 && !slices.Contains(rule.AllowedStatuses, vault.Status) {
			return Deny(rule.StatusReason)
		}
		if slices.Contains(rule.ForbiddenStatuses, vault.Status) {
			return Deny(rule.StatusReason)
		}
	}

	if !slices.Contains(rule.Roles, role) {
		return Deny(rule.RoleReason)
	}
	return Allow()
}
