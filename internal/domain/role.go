package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Role — кто сейчас действует. Криптографической привязки к кошельку нет.
type Role string

const (
	RoleCreator      Role = "creator"
	RoleCounterparty Role = "counterparty"
	RoleArbitrator   Role = "arbitrator"
)

var ErrUnknownRole = errors.New("unknown role")

func Roles() []Role {
	return []Role{RoleCreator, RoleCounterparty, RoleArbitrator}
}

func ParseRole(raw string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	switch r {
	case RoleCreator, RoleCounterparty, RoleArbitrator:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
}

func (r Role) Label() string {
	switch r {
	case RoleCreator:
		return "Creator"
	case RoleCounterparty:
		return "Counterparty"
	case RoleArbitrator:
		return "Arbitrator"
	}
	return string(r)
}

// Operation — запрашиваемое действие над vault
type Operation string

const (
	OpCreateDraft Operation = "create_draft"
	OpFund        Operation = "fund"
	OpRelease     Operation = "release"
	OpRefund      Operation = "refund"
	OpDelete      Operation = "delete"

	// Служебные действия, не проходящие через PermissionEngine
	OpExport     Operation = "export"
	OpAdminReset Operation = "admin_reset"
	OpSelectRole Operation = "select_role"
)

// ProtocolOperations — действия, регулируемые политикой
func ProtocolOperations() []Operation {
	return []Operation{OpCreateDraft, OpFund, OpRelease, OpRefund, OpDelete}
}
