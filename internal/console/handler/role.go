package handler

import (
	"encoding/json"
	"net/http"

	"github.com/xela07ax/latch-escrow/internal/domain"
	"github.com/xela07ax/latch-escrow/internal/engine"
)

type RoleHandler struct {
	ctrl *engine.Controller
}

func NewRoleHandler(ctrl *engine.Controller) *RoleHandler {
	return &RoleHandler{ctrl: ctrl}
}

type roleBody struct {
	Role  domain.Role `json:"role"`
	Label string      `json:"label,omitempty"`
}

func (h *RoleHandler) Get(w http.ResponseWriter, r *http.Request) {
	role := h.ctrl.Role()
	writeJSON(w, http.StatusOK, roleBody{Role: role, Label: role.Label()})
}

// Put PUT /v1/role {"role": "arbitrator"}
func (h *RoleHandler) Put(w http.ResponseWriter, r *http.Request) {
	var body roleBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	role, err := domain.ParseRole(string(body.Role))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.ctrl.SelectRole(role)
	writeJSON(w, http.StatusOK, roleBody{Role: role, Label: role.Label()})
}
