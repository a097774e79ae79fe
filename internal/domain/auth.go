package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims — токен несет роль, под которой действует пользователь
type CustomClaims struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
	jwt.RegisteredClaims
}

// Secure Token Issuing
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
	Role        Role   `json:"role"`
}

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Никогда не отправляем на фронт
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}
