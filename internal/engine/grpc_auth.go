package engine

import (
	"context"

	"github.com/xela07ax/latch-escrow/internal/domain"
	"github.com/xela07ax/latch-escrow/internal/infra/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	grpcTokenKey = "x-escrow-token"
	grpcRoleKey  = "x-escrow-role"
	grpcTraceKey = "x-trace-id"
)

// UnaryAuthInterceptor достает роль вызывающего из метаданных gRPC.
// С валидатором роль берется только из подписанного токена, без него — из x-escrow-role.
func UnaryAuthInterceptor(v auth.TokenValidator) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		// 1. Извлекаем метаданные (в gRPC ключи в нижнем регистре)
		md, _ := metadata.FromIncomingContext(ctx)

		if ids := md.Get(grpcTraceKey); len(ids) > 0 {
			ctx = WithTraceID(ctx, ids[0])
		}

		// 2. Режим без аутентификации: роль объявляется клиентом
		if v == nil {
			if roles := md.Get(grpcRoleKey); len(roles) > 0 {
				role, err := domain.ParseRole(roles[0])
				if err != nil {
					return nil, status.Errorf(codes.InvalidArgument, "invalid role: %v", err)
				}
				ctx = auth.WithRole(ctx, role)
			}
			return handler(ctx, req)
		}

		// 3. Проверяем токен
		tokens := md.Get(grpcTokenKey)
		if len(tokens) == 0 {
			return nil, status.Errorf(codes.Unauthenticated, "missing access token")
		}
		claims, err := v.VerifyToken(tokens[0])
		if err != nil {
			return nil, status.Errorf(codes.Unauthenticated, "invalid access token")
		}
		role, err := domain.ParseRole(string(claims.Role))
		if err != nil {
			return nil, status.Errorf(codes.PermissionDenied, "token carries no escrow role")
		}

		// 4. Обогащаем контекст и идем дальше по цепочке
		ctx = auth.WithRole(ctx, role)
		ctx = auth.WithUserID(ctx, claims.UserID)
		return handler(ctx, req)
	}
}
