package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/rs/zerolog"

	"github.com/shohag/webhookd/internal/models"
	"github.com/shohag/webhookd/internal/signing"
)

const (
	HeaderEvent     = "X-Webhook-Event"
	HeaderSignature = "X-Webhook-Signature"
	HeaderDelivery  = "X-Webhook-Delivery"

	defaultUserAgent      = "webhookd/1.0"
	defaultMaxErrorLength = 512
)

// Subscriber-supplied headers with these names are dropped.
var reservedHeaders = map[string]struct{}{
	"Content-Type":      {},
	"Content-Length":    {},
	"Host":              {},
	HeaderEvent:         {},
	HeaderSignature:     {},
	HeaderDelivery:      {},
	"User-Agent":        {},
	"Transfer-Encoding": {},
	"Connection":        {},
}

// Worker performs one delivery attempt to one webhook and records it.
type Worker struct {
	sender      Sender
	recorder    *Recorder
	userAgent   string
	maxErrorLen int
	now         func() time.Time
	log         zerolog.Logger
}

func NewWorker(sender Sender, recorder *Recorder, userAgent string, maxErrorLen int, log zerolog.Logger) *Worker {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	if maxErrorLen <= 0 {
		maxErrorLen = defaultMaxErrorLength
	}
	return &Worker{
		sender:      sender,
		recorder:    recorder,
		userAgent:   userAgent,
		maxErrorLen: maxErrorLen,
		now:         time.Now,
		log:         log,
	}
}

// Process sends the event to wh and reports whether it got a 2xx.
func (w *Worker) Process(ctx context.Context, wh models.Webhook, eventType string, data json.RawMessage) bool {
	deliveryID := uuid.NewString()
	now := w.now().UTC()
	env := models.NewEnvelope(eventType, data, now)

	entry := &models.DeliveryLogEntry{
		ID:          deliveryID,
		WebhookID:   wh.ID,
		WorkspaceID: wh.WorkspaceID,
		EventType:   eventType,
		Payload:     types.JSONText(env.Data),
		CreatedAt:   now,
	}

	body, err := json.Marshal(env)
	if err != nil {
		w.fail(ctx, entry, fmt.Sprintf("encode payload: %v", err))
		return false
	}

	result := w.send(ctx, &Request{
		URL:     wh.URL,
		Headers: buildHeaders(wh, eventType, deliveryID, w.userAgent, body),
		Body:    body,
	})

	entry.ResponseStatus = result.StatusCode
	entry.ResponseBody = result.ResponseBody
	entry.DurationMs = result.LatencyMs

	if result.Error == "" && models.IsSuccess(result.StatusCode) {
		w.recorder.Record(ctx, entry)
		w.log.Info().
			Str("delivery_id", deliveryID).
			Str("webhook_id", wh.ID).
			Str("workspace_id", wh.WorkspaceID).
			Str("event_type", eventType).
			Int("status_code", result.StatusCode).
			Int64("latency_ms", result.LatencyMs).
			Msg("delivery succeeded")
		return true
	}

	reason := result.Error
	if reason == "" {
		reason = fmt.Sprintf("HTTP %d", result.StatusCode)
	}
	w.fail(ctx, entry, reason)
	return false
}

func (w *Worker) fail(ctx context.Context, entry *models.DeliveryLogEntry, reason string) {
	reason = truncate(reason, w.maxErrorLen)
	entry.ErrorMessage = &reason
	w.recorder.Record(ctx, entry)
	w.log.Warn().
		Str("delivery_id", entry.ID).
		Str("webhook_id", entry.WebhookID).
		Str("workspace_id", entry.WorkspaceID).
		Str("event_type", entry.EventType).
		Int("status_code", entry.ResponseStatus).
		Int64("latency_ms", entry.DurationMs).
		Str("error", reason).
		Msg("delivery failed")
}

// send turns a panicking Sender into an ordinary failed result.
func (w *Worker) send(ctx context.Context, req *Request) (result *SendResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = &SendResult{
				Error:     fmt.Sprintf("panic: %v", r),
				LatencyMs: time.Since(start).Milliseconds(),
			}
		}
	}()
	result = w.sender.Send(ctx, req)
	if result == nil {
		result = &SendResult{Error: "no result", LatencyMs: time.Since(start).Milliseconds()}
	}
	return result
}

func buildHeaders(wh models.Webhook, eventType, deliveryID, userAgent string, body []byte) map[string]string {
	h := make(map[string]string, len(wh.Headers)+5)
	for k, v := range wh.Headers {
		name := http.CanonicalHeaderKey(strings.TrimSpace(k))
		if name == "" {
			continue
		}
		if _, reserved := reservedHeaders[name]; reserved {
			continue
		}
		h[name] = v
	}

	h["Content-Type"] = "application/json"
	h["User-Agent"] = userAgent
	h[HeaderEvent] = eventType
	h[HeaderDelivery] = deliveryID
	if wh.Secret != "" {
		h[HeaderSignature] = signing.Sign(body, wh.Secret)
	}
	return h
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}
