package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shohag/webhookd/internal/delivery"
	"github.com/shohag/webhookd/internal/models"
	"github.com/shohag/webhookd/internal/storage"
)

const defaultRetryCount = 3

type WebhookHandler struct {
	store   storage.Storage
	guard   delivery.URLChecker
	maxBody int64
}

func NewWebhookHandler(store storage.Storage, guard delivery.URLChecker, maxBody int64) *WebhookHandler {
	return &WebhookHandler{store: store, guard: guard, maxBody: maxBody}
}

type createWebhookRequest struct {
	Name    string            `json:"name"`
	URL     string            `json:"url"`
	Secret  *string           `json:"secret"`
	Events  []string          `json:"events"`
	Headers map[string]string `json:"headers"`
	Active  *bool             `json:"is_active"`
}

func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	var req createWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "invalid request body")
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "url is required")
		return
	}
	if err := h.guard.Check(r.Context(), req.URL); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "url is not allowed: "+err.Error())
		return
	}

	events := make(models.EventSet, 0, len(req.Events))
	for _, e := range req.Events {
		if e = strings.TrimSpace(e); e != "" {
			events = append(events, e)
		}
	}
	if len(events) == 0 {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "at least one event is required")
		return
	}

	// an omitted secret gets a generated one; an explicit "" disables signing
	var secret string
	if req.Secret != nil {
		secret = *req.Secret
	} else {
		generated, err := models.NewSecret()
		if err != nil {
			writeError(w, http.StatusInternalServerError, CodeInternal, "failed to generate secret")
			return
		}
		secret = generated
	}

	now := time.Now().UTC()
	wh := &models.Webhook{
		ID:          models.NewID("wh"),
		WorkspaceID: workspaceID,
		Name:        req.Name,
		URL:         req.URL,
		Secret:      secret,
		Events:      events,
		Headers:     req.Headers,
		IsActive:    req.Active == nil || *req.Active,
		RetryCount:  defaultRetryCount,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if wh.Headers == nil {
		wh.Headers = models.Headers{}
	}

	if err := h.store.CreateWebhook(r.Context(), wh); err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to create webhook")
		return
	}

	writeJSON(w, http.StatusCreated, wh)
}

func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	wh, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, redact(*wh))
}

func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	webhooks, err := h.store.ListWebhooks(r.Context(), chi.URLParam(r, "workspaceID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to list webhooks")
		return
	}
	out := make([]models.Webhook, 0, len(webhooks))
	for _, wh := range webhooks {
		out = append(out, redact(wh))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.store.DeleteWebhook(r.Context(), chi.URLParam(r, "webhookID"), chi.URLParam(r, "workspaceID"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, CodeNotFound, "webhook not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to delete webhook")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WebhookHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	wh, ok := h.load(w, r)
	if !ok {
		return
	}

	newActive := !wh.IsActive
	if err := h.store.SetWebhookActive(r.Context(), wh.ID, wh.WorkspaceID, newActive); err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to toggle webhook")
		return
	}

	wh.IsActive = newActive
	writeJSON(w, http.StatusOK, redact(*wh))
}

func (h *WebhookHandler) load(w http.ResponseWriter, r *http.Request) (*models.Webhook, bool) {
	wh, err := h.store.GetWebhook(r.Context(), chi.URLParam(r, "webhookID"), chi.URLParam(r, "workspaceID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to get webhook")
		return nil, false
	}
	if wh == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "webhook not found")
		return nil, false
	}
	return wh, true
}

// Secrets are only returned once, on create.
func redact(wh models.Webhook) models.Webhook {
	wh.Secret = ""
	return wh
}
