package handler

import (
	"net/http"
	"strconv"

	"github.com/xela07ax/latch-escrow/internal/console/service"
	"github.com/xela07ax/latch-escrow/internal/domain"
	"github.com/xela07ax/latch-escrow/internal/engine"
)

type ActivityHandler struct {
	ctrl    *engine.Controller
	archive *service.AuditService // nil, если Postgres не настроен
}

func NewActivityHandler(ctrl *engine.Controller, archive *service.AuditService) *ActivityHandler {
	return &ActivityHandler{ctrl: ctrl, archive: archive}
}

// List GET /v1/activity — живой журнал в порядке добавления (старые записи первыми)
func (h *ActivityHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Activity())
}

// Export POST /v1/activity/export. Экспорт пишет запись в журнал, поэтому не GET.
func (h *ActivityHandler) Export(w http.ResponseWriter, r *http.Request) {
	snap := h.ctrl.ExportActivity(r.Context(), actingRole(r, h.ctrl))
	w.Header().Set("Content-Disposition", `attachment; filename="latch-activity.json"`)
	writeJSON(w, http.StatusOK, snap)
}

type archivePage struct {
	Entries []domain.ActivityEntry `json:"entries"`
	// Next — курсор следующей страницы; пустая страница означает конец архива
	Next *domain.ActivityCursor `json:"next,omitempty"`
}

// Archive GET /v1/activity/archive?before=<ms>&before_id=<id>&limit=<n>
func (h *ActivityHandler) Archive(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "activity archive is not configured")
		return
	}
	q := r.URL.Query()
	var cur domain.ActivityCursor
	if raw := q.Get("before"); raw != "" {
		before, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || before < 0 {
			writeError(w, http.StatusBadRequest, "before must be a unix timestamp in milliseconds")
			return
		}
		cur = domain.ActivityCursor{Before: before, BeforeID: q.Get("before_id")}
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	logs, err := h.archive.FetchHistory(r.Context(), cur, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch activity archive")
		return
	}
	if logs == nil {
		logs = []domain.ActivityEntry{}
	}
	page := archivePage{Entries: logs}
	if len(logs) > 0 {
		next := domain.NextActivityCursor(logs)
		page.Next = &next
	}
	writeJSON(w, http.StatusOK, page)
}
