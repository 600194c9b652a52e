package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/shohag/webhookd/internal/models"
	"github.com/shohag/webhookd/internal/storage"
)

type DeliveryHandler struct {
	store storage.Storage
}

func NewDeliveryHandler(store storage.Storage) *DeliveryHandler {
	return &DeliveryHandler{store: store}
}

// List returns the workspace's delivery log, newest first.
func (h *DeliveryHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := storage.LogFilter{
		WorkspaceID: chi.URLParam(r, "workspaceID"),
		WebhookID:   r.URL.Query().Get("webhook_id"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, CodeInvalidInput, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	entries, err := h.store.ListDeliveryLogs(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to list deliveries")
		return
	}
	if entries == nil {
		entries = []models.DeliveryLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
