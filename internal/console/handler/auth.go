package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/xela07ax/latch-escrow/internal/console/service"
	"github.com/xela07ax/latch-escrow/internal/domain"
	"go.uber.org/zap"
)

type AuthHandler struct {
	service *service.AuthService
	logger  *zap.Logger
}

func NewAuthHandler(s *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{service: s, logger: logger}
}

// Login POST /auth/token {"username": "...", "password": "..."} -> RS256 токен с ролью
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	resp, err := h.service.GenerateToken(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		// не уточняем, что именно неверно: логин или пароль
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	case err != nil:
		h.logger.Error("token issue failed", zap.String("username", req.Username), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}
