package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/latch-escrow/internal/domain"
)

type UserRepo struct {
	db DBTX
}

func NewUserRepo(db DBTX) *UserRepo {
	return &UserRepo{db: db}
}

// GetUserByUsername возвращает nil, nil, если пользователя нет
func (r *UserRepo) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT id, username, password_hash, role, created_at FROM users WHERE username = $1`

	u := &domain.User{}
	err := r.db.QueryRow(ctx, query, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: get user: %w", err)
	}
	return u, nil
}

func (r *UserRepo) CreateUser(ctx context.Context, u domain.User) error {
	query := `INSERT INTO users (id, username, password_hash, role) VALUES ($1, $2, $3, $4)`
	if _, err := r.db.Exec(ctx, query, u.ID, u.Username, u.PasswordHash, string(u.Role)); err != nil {
		return fmt.Errorf("postgres: create user: %w", err)
	}
	return nil
}
