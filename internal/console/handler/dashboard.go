package handler

import (
	"net/http"

	"github.com/xela07ax/latch-escrow/internal/engine"
)

type DashboardHandler struct {
	ctrl *engine.Controller
}

func NewDashboardHandler(ctrl *engine.Controller) *DashboardHandler {
	return &DashboardHandler{ctrl: ctrl}
}

// GetStats GET /v1/stats — заблокированный баланс и разбивка по статусам
func (h *DashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Balance())
}
