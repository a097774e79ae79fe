package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/latch-escrow/internal/engine"
	"github.com/xela07ax/latch-escrow/internal/query"
	"github.com/xela07ax/latch-escrow/internal/store"
	"go.uber.org/zap"
)

type VaultHandler struct {
	ctrl   *engine.Controller
	logger *zap.Logger
}

func NewVaultHandler(ctrl *engine.Controller, logger *zap.Logger) *VaultHandler {
	return &VaultHandler{ctrl: ctrl, logger: logger.Named("vault-handler")}
}

// List GET /v1/vaults?status=&q=&sort=
func (h *VaultHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := query.ParseFilter(q.Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sortKey, err := query.ParseSort(q.Get("sort"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	vaults := h.ctrl.Vaults(query.Params{Filter: filter, Search: q.Get("q"), Sort: sortKey})
	writeJSON(w, http.StatusOK, vaults)
}

func (h *VaultHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.ctrl.Vault(chi.URLParam(r, "id"))
	if err != nil {
		h.notFound(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Create POST /v1/vaults {"amount": "1.5", "counterparty": "...", "memo": "..."}
func (h *VaultHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Amount       json.RawMessage `json:"amount"`
		Counterparty string          `json:"counterparty"`
		Memo         string          `json:"memo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	in := engine.CreateDraftInput{
		Amount:       rawAmount(body.Amount),
		Counterparty: body.Counterparty,
		Memo:         body.Memo,
	}
	writeResult(w, http.StatusCreated, h.ctrl.CreateDraft(r.Context(), actingRole(r, h.ctrl), in))
}

func (h *VaultHandler) Fund(w http.ResponseWriter, r *http.Request) {
	writeResult(w, http.StatusOK, h.ctrl.Fund(r.Context(), actingRole(r, h.ctrl), chi.URLParam(r, "id")))
}

func (h *VaultHandler) Release(w http.ResponseWriter, r *http.Request) {
	writeResult(w, http.StatusOK, h.ctrl.Release(r.Context(), actingRole(r, h.ctrl), chi.URLParam(r, "id")))
}

func (h *VaultHandler) Refund(w http.ResponseWriter, r *http.Request) {
	writeResult(w, http.StatusOK, h.ctrl.Refund(r.Context(), actingRole(r, h.ctrl), chi.URLParam(r, "id")))
}

func (h *VaultHandler) Delete(w http.ResponseWriter, r *http.Request) {
	writeResult(w, http.StatusOK, h.ctrl.Delete(r.Context(), actingRole(r, h.ctrl), chi.URLParam(r, "id")))
}

// Select POST /v1/vaults/{id}/select
func (h *VaultHandler) Select(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Select(chi.URLParam(r, "id")); err != nil {
		h.notFound(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Selected GET /v1/vaults/selected
func (h *VaultHandler) Selected(w http.ResponseWriter, r *http.Request) {
	v, ok := h.ctrl.Selected()
	if !ok {
		writeError(w, http.StatusNotFound, "no vault selected")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Export POST /v1/vaults/{id}/export. Попытка экспорта пишется в журнал.
func (h *VaultHandler) Export(w http.ResponseWriter, r *http.Request) {
	snap, res := h.ctrl.ExportVault(r.Context(), actingRole(r, h.ctrl), chi.URLParam(r, "id"))
	if !res.Allowed() {
		writeResult(w, http.StatusOK, res)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+snap.Vault.ID+`.json"`)
	writeJSON(w, http.StatusOK, snap)
}

// Reset POST /v1/admin/reset — операторская очистка без проверки политики
func (h *VaultHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.ctrl.AdminReset(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *VaultHandler) notFound(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "vault not found")
		return
	}
	h.logger.Error("vault lookup failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

// rawAmount принимает и число, и строку: 1.5 и "1.5"
func rawAmount(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
