package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// DeliveryLogEntry is the append-only audit row written for every
// delivery attempt.
type DeliveryLogEntry struct {
	ID             string         `json:"id" db:"id"`
	WebhookID      string         `json:"webhook_id" db:"webhook_id"`
	WorkspaceID    string         `json:"workspace_id" db:"workspace_id"`
	EventType      string         `json:"event_type" db:"event_type"`
	Payload        types.JSONText `json:"payload" db:"payload"`
	ResponseStatus int            `json:"response_status" db:"response_status"`
	ResponseBody   string         `json:"response_body" db:"response_body"`
	DurationMs     int64          `json:"duration_ms" db:"duration_ms"`
	ErrorMessage   *string        `json:"error_message,omitempty" db:"error_message"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// Succeeded reports whether the attempt got a 2xx response.
func (e *DeliveryLogEntry) Succeeded() bool {
	return e.ErrorMessage == nil && IsSuccess(e.ResponseStatus)
}

func IsSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
