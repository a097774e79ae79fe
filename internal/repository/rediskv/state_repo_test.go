package rediskv

import (
	"errors"
	"strings"
	"testing"

	"github.com/xela07ax/latch-escrow/internal/domain"
	"github.com/xela07ax/latch-escrow/internal/infra"
)

func TestEncodeDecodeState(t *testing.T) {
	st := domain.State{
		Vaults: []domain.Vault{{
			ID:           "vault_1",
			CreatedAt:    1700000000000,
			Amount:       domain.MustAmount("1.5"),
			Counterparty: "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
			Status:       domain.StatusFunded,
		}},
		Activity:   []domain.ActivityEntry{{ID: "a_1", Timestamp: 1700000000000, Message: "✓ Draft created"}},
		Role:       domain.RoleArbitrator,
		SelectedID: "vault_1",
	}
	raw, err := encodeState(st)
	if err != nil {
		t.Fatal(err)
	}
	if raw[infra.RedisKeyRole] != "arbitrator" {
		t.Errorf("role must be a bare string, got %q", raw[infra.RedisKeyRole])
	}
	if !strings.Contains(raw[infra.RedisKeyVaults], `"amountSol":1.5`) {
		t.Errorf("vaults json = %s", raw[infra.RedisKeyVaults])
	}

	got, err := decodeState(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Vaults) != 1 || got.Vaults[0].Status != domain.StatusFunded || !got.Vaults[0].Amount.Equal(st.Vaults[0].Amount.Decimal) {
		t.Errorf("vaults = %+v", got.Vaults)
	}
	if got.Role != domain.RoleArbitrator || got.SelectedID != "vault_1" || len(got.Activity) != 1 {
		t.Errorf("state = %+v", got)
	}
}

func TestDecodeStateEmpty(t *testing.T) {
	got, err := decodeState(map[string]string{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Vaults == nil || got.Activity == nil || len(got.Vaults) != 0 {
		t.Errorf("empty state must have empty non-nil lists: %+v", got)
	}
	if got.Role != domain.RoleCreator {
		t.Errorf("role = %q, want creator", got.Role)
	}
}

func TestDecodeStateUnknownRole(t *testing.T) {
	got, err := decodeState(map[string]string{infra.RedisKeyRole: "root"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Role != domain.RoleCreator {
		t.Errorf("role = %q", got.Role)
	}
}

func TestDecodeStateCorrupt(t *testing.T) {
	_, err := decodeState(map[string]string{infra.RedisKeyVaults: "{not json"})
	if !errors.Is(err, ErrCorruptState) {
		t.Fatalf("err = %v", err)
	}
}
