// Package rediskv хранит снимок состояния контроллера в Redis под теми же ключами,
// что использует клиентское локальное хранилище.
package rediskv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/latch-escrow/internal/domain"
	"github.com/xela07ax/latch-escrow/internal/infra"
)

var ErrCorruptState = errors.New("stored state is corrupt")

type StateRepo struct {
	rdb redis.UniversalClient
}

func NewStateRepo(rdb redis.UniversalClient) *StateRepo {
	return &StateRepo{rdb: rdb}
}

// SaveState пишет все ключи одной транзакцией, чтобы vaults и activity не разъезжались
func (r *StateRepo) SaveState(ctx context.Context, st domain.State) error {
	vals, err := encodeState(st)
	if err != nil {
		return err
	}
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range []string{infra.RedisKeyVaults, infra.RedisKeyActivity, infra.RedisKeyRole} {
			pipe.Set(ctx, key, vals[key], 0)
		}
		if st.SelectedID == "" {
			pipe.Del(ctx, infra.RedisKeySelected)
		} else {
			pipe.Set(ctx, infra.RedisKeySelected, st.SelectedID, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: save state: %w", err)
	}
	return nil
}

// LoadState: отсутствующие ключи означают пустое состояние
func (r *StateRepo) LoadState(ctx context.Context) (domain.State, error) {
	res, err := r.rdb.MGet(ctx, infra.RedisKeyVaults, infra.RedisKeyActivity, infra.RedisKeyRole, infra.RedisKeySelected).Result()
	if err != nil {
		return domain.State{}, fmt.Errorf("redis: load state: %w", err)
	}
	raw := make(map[string]string, len(res))
	keys := []string{infra.RedisKeyVaults, infra.RedisKeyActivity, infra.RedisKeyRole, infra.RedisKeySelected}
	for i, v := range res {
		if s, ok := v.(string); ok {
			raw[keys[i]] = s
		}
	}
	return decodeState(raw)
}

func encodeState(st domain.State) (map[string]string, error) {
	vaults := st.Vaults
	if vaults == nil {
		vaults = []domain.Vault{}
	}
	activity := st.Activity
	if activity == nil {
		activity = []domain.ActivityEntry{}
	}
	v, err := json.Marshal(vaults)
	if err != nil {
		return nil, fmt.Errorf("redis: encode vaults: %w", err)
	}
	a, err := json.Marshal(activity)
	if err != nil {
		return nil, fmt.Errorf("redis: encode activity: %w", err)
	}
	role := st.Role
	if role == "" {
		role = domain.RoleCreator
	}
	return map[string]string{
		infra.RedisKeyVaults:   string(v),
		infra.RedisKeyActivity: string(a),
		infra.RedisKeyRole:     string(role), // Роль хранится голой строкой, без JSON
		infra.RedisKeySelected: st.SelectedID,
	}, nil
}

func decodeState(raw map[string]string) (domain.State, error) {
	st := domain.State{
		Vaults:     []domain.Vault{},
		Activity:   []domain.ActivityEntry{},
		Role:       domain.RoleCreator,
		SelectedID: raw[infra.RedisKeySelected],
	}
	if s := raw[infra.RedisKeyVaults]; s != "" {
		if err := json.Unmarshal([]byte(s), &st.Vaults); err != nil {
			return domain.State{}, fmt.Errorf("%w: vaults: %v", ErrCorruptState, err)
		}
	}
	if s := raw[infra.RedisKeyActivity]; s != "" {
		if err := json.Unmarshal([]byte(s), &st.Activity); err != nil {
			return domain.State{}, fmt.Errorf("%w: activity: %v", ErrCorruptState, err)
		}
	}
	// Неизвестная роль откатывается к Creator
	if r, err := domain.ParseRole(raw[infra.RedisKeyRole]); err == nil {
		st.Role = r
	}
	return st, nil
}
