package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xela07ax/latch-escrow/internal/console/handler"
	"github.com/xela07ax/latch-escrow/internal/engine"
	"github.com/xela07ax/latch-escrow/internal/infra/auth"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Handlers — обработчики бизнес-доменов. Auth может быть nil (логин выключен).
type Handlers struct {
	Auth      *handler.AuthHandler      // /auth/token
	Vaults    *handler.VaultHandler     // /v1/vaults
	Activity  *handler.ActivityHandler  // /v1/activity
	Dashboard *handler.DashboardHandler // /v1/stats
	Roles     *handler.RoleHandler      // /v1/role
}

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger

	// Интерфейс для проверки токенов (RS256). nil — режим без аутентификации,
	// роль объявляется заголовком X-Escrow-Role.
	authValidator auth.TokenValidator
	limiter       *rate.Limiter

	h Handlers
}

// NewConsoleServer инициализирует HTTP API со всеми зависимостями
func NewConsoleServer(logger *zap.Logger, validator auth.TokenValidator, limiter *rate.Limiter, h Handlers) *ConsoleServer {
	s := &ConsoleServer{
		router:        chi.NewRouter(),
		logger:        logger.Named("console-api"),
		authValidator: validator,
		limiter:       limiter,
		h:             h,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(engine.TracingMiddleware)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		if s.h.Auth != nil {
			r.Post("/auth/token", s.h.Auth.Login)
		}
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. API vault'ов (роль из токена или из заголовка) ---
	r.Group(func(r chi.Router) {
		if s.authValidator != nil {
			r.Use(auth.NewMiddleware(s.authValidator, s.logger))
		} else {
			r.Use(auth.NewHeaderRoleMiddleware(s.logger))
		}
		r.Use(engine.RateLimitMiddleware(s.limiter))

		r.Get("/v1/stats", s.h.Dashboard.GetStats)

		r.Get("/v1/role", s.h.Roles.Get)
		r.Put("/v1/role", s.h.Roles.Put)

		r.Route("/v1/vaults", func(r chi.Router) {
			r.Get("/", s.h.Vaults.List)
			r.Post("/", s.h.Vaults.Create)
			r.Get("/selected", s.h.Vaults.Selected)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.h.Vaults.Get)
				r.Delete("/", s.h.Vaults.Delete)
				r.Post("/fund", s.h.Vaults.Fund)
				r.Post("/release", s.h.Vaults.Release)
				r.Post("/refund", s.h.Vaults.Refund)
				r.Post("/select", s.h.Vaults.Select)
				r.Post("/export", s.h.Vaults.Export)
			})
		})

		r.Route("/v1/activity", func(r chi.Router) {
			r.Get("/", s.h.Activity.List)
			r.Post("/export", s.h.Activity.Export)
			r.Get("/archive", s.h.Activity.Archive)
		})

		// Операторская очистка: мимо PermissionEngine, но за аутентификацией
		r.Post("/v1/admin/reset", s.h.Vaults.Reset)
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
