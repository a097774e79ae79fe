package handler

import (
	"encoding/json"
	"net/http"

	"github.com/xela07ax/latch-escrow/internal/domain"
	"github.com/xela07ax/latch-escrow/internal/engine"
	"github.com/xela07ax/latch-escrow/internal/infra/auth"
	"github.com/xela07ax/latch-escrow/internal/policy"
)

type errorBody struct {
	Error string                `json:"error"`
	Entry *domain.ActivityEntry `json:"entry,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg})
}

// writeResult переводит Result контроллера в HTTP:
// отказ политики -> 403, невалидный ввод -> 422, неизвестный vault -> 404
func writeResult(w http.ResponseWriter, okCode int, res engine.Result) {
	if res.Allowed() {
		writeJSON(w, okCode, res)
		return
	}
	code := http.StatusForbidden
	switch {
	case res.Invalid:
		code = http.StatusUnprocessableEntity
	case res.Decision.Reason == policy.ReasonSelectVault:
		code = http.StatusNotFound
	}
	entry := res.Entry
	writeJSON(w, code, errorBody{Error: res.Decision.Reason, Entry: &entry})
}

// actingRole: роль из токена/заголовка, иначе выбранная на сервере
func actingRole(r *http.Request, ctrl *engine.Controller) domain.Role {
	if role, ok := auth.RoleFrom(r.Context()); ok {
		return role
	}
	return ctrl.Role()
}
