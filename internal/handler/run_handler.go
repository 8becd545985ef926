package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/mailcampaign/internal/service"
)

// RunHandler serves persisted run history
type RunHandler struct {
	Service *service.RunHistoryService
}

// ListRunsHandler returns a paginated list of finished runs
func (h *RunHandler) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
	page := 1
	pageSize := 20
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}
	if ps, err := strconv.Atoi(r.URL.Query().Get("page_size")); err == nil && ps > 0 {
		pageSize = ps
	}

	runs, pagination, err := h.Service.ListRuns(r.Context(), page, pageSize, r.URL.Query().Get("email"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":       runs,
		"pagination": pagination,
	})
}

// GetRunHandler returns one run with its per-recipient results
func (h *RunHandler) GetRunHandler(w http.ResponseWriter, r *http.Request) {
	details, err := h.Service.GetRunDetails(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}
