package auth

import (
	"context"
	"net/http"

	"github.com/xela07ax/latch-escrow/internal/domain"
	"go.uber.org/zap"
)

// RoleHeader — объявленная клиентом роль, когда аутентификация выключена
const RoleHeader = "X-Escrow-Role"

// TokenValidator — интерфейс, который реализуют HTTP и gRPC слои
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.CustomClaims, error)
}

// Тип для ключа в контексте (избегаем коллизий)
type ctxKey string

const (
	roleKey   ctxKey = "role"
	userIDKey ctxKey = "user_id"
)

func WithRole(ctx context.Context, r domain.Role) context.Context {
	return context.WithValue(ctx, roleKey, r)
}

// RoleFrom возвращает роль вызывающего, если она была установлена middleware
func RoleFrom(ctx context.Context) (domain.Role, bool) {
	r, ok := ctx.Value(roleKey).(domain.Role)
	return r, ok && r != ""
}

func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

func UserIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// NewMiddleware требует валидный Bearer токен и кладет роль из claims в контекст
func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Прокидываем данные в контекст
			ctx := WithRole(r.Context(), claims.Role)
			ctx = WithUserID(ctx, claims.UserID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewHeaderRoleMiddleware — режим без аутентификации: роль из X-Escrow-Role.
// Неизвестная роль отклоняется, отсутствующая означает выбранную по умолчанию.
func NewHeaderRoleMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(RoleHeader)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			role, err := domain.ParseRole(raw)
			if err != nil {
				logger.Debug("rejected role header", zap.String("role", raw))
				http.Error(w, "unknown role", http.StatusBadRequest)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithRole(r.Context(), role)))
		})
	}
}
