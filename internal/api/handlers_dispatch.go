package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/shohag/webhookd/internal/delivery"
)

const (
	ActionPing    = "ping"
	ActionTrigger = "trigger"
	ActionTest    = "test"
)

type DispatchHandler struct {
	dispatcher   Dispatcher
	maxBody      int64
	writeTimeout time.Duration
	log          zerolog.Logger
}

func NewDispatchHandler(dispatcher Dispatcher, maxBody int64, writeTimeout time.Duration, log zerolog.Logger) *DispatchHandler {
	return &DispatchHandler{dispatcher: dispatcher, maxBody: maxBody, writeTimeout: writeTimeout, log: log}
}

type dispatchRequest struct {
	Action      string          `json:"action"`
	WorkspaceID string          `json:"workspace_id"`
	EventType   string          `json:"event_type"`
	Data        json.RawMessage `json:"data"`
	WebhookID   string          `json:"webhook_id"`
}

type triggerRequest struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

// Dispatch serves the single-endpoint action envelope.
func (h *DispatchHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if !h.decode(w, r, &req) {
		return
	}

	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case ActionPing:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case ActionTrigger:
		if !h.scoped(w, r, req.WorkspaceID) {
			return
		}
		h.writeResult(w, r, func() (delivery.Result, error) {
			return h.dispatcher.Trigger(r.Context(), req.WorkspaceID, req.EventType, req.Data)
		})
	case ActionTest:
		if !h.scoped(w, r, req.WorkspaceID) {
			return
		}
		h.writeResult(w, r, func() (delivery.Result, error) {
			return h.dispatcher.Test(r.Context(), req.WorkspaceID, req.WebhookID)
		})
	default:
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "action must be one of ping, trigger, test")
	}
}

func (h *DispatchHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if !h.decode(w, r, &req) {
		return
	}
	workspaceID := chi.URLParam(r, "workspaceID")
	h.writeResult(w, r, func() (delivery.Result, error) {
		return h.dispatcher.Trigger(r.Context(), workspaceID, req.EventType, req.Data)
	})
}

func (h *DispatchHandler) Test(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")
	webhookID := chi.URLParam(r, "webhookID")
	h.writeResult(w, r, func() (delivery.Result, error) {
		return h.dispatcher.Test(r.Context(), workspaceID, webhookID)
	})
}

func (h *DispatchHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "invalid request body")
		return false
	}
	return true
}

// scoped validates the envelope's workspace before any auth decision so a
// missing id is always a 400.
func (h *DispatchHandler) scoped(w http.ResponseWriter, r *http.Request, workspaceID string) bool {
	if strings.TrimSpace(workspaceID) == "" {
		writeDispatchError(w, h.log, delivery.ErrWorkspaceRequired)
		return false
	}
	return authorizeWorkspace(w, r, workspaceID)
}

func (h *DispatchHandler) writeResult(w http.ResponseWriter, r *http.Request, run func() (delivery.Result, error)) {
	res, err := run()
	h.extendWriteDeadline(w)
	if err != nil {
		writeDispatchError(w, h.log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger(), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// extendWriteDeadline restarts server.write_timeout once dispatch returns.
// A fan-out may take ceil(n/workers) delivery timeouts, which can exceed
// the deadline set when the request was read.
func (h *DispatchHandler) extendWriteDeadline(w http.ResponseWriter) {
	if h.writeTimeout <= 0 {
		return
	}
	if err := http.NewResponseController(w).SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
		h.log.Debug().Err(err).Msg("cannot extend write deadline")
	}
}
