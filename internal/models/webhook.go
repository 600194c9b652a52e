package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// WildcardEvent subscribes a webhook to every event type.
const WildcardEvent = "*"

type Webhook struct {
	ID              string     `json:"id" db:"id"`
	WorkspaceID     string     `json:"workspace_id" db:"workspace_id"`
	Name            string     `json:"name" db:"name"`
	URL             string     `json:"url" db:"url"`
	Secret          string     `json:"secret,omitempty" db:"secret"`
	Events          EventSet   `json:"events" db:"events"`
	Headers         Headers    `json:"headers,omitempty" db:"headers"`
	IsActive        bool       `json:"is_active" db:"is_active"`
	RetryCount      int        `json:"retry_count" db:"retry_count"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty" db:"last_triggered_at"`
	LastStatus      *int       `json:"last_status,omitempty" db:"last_status"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// Subscribes reports whether the webhook wants eventType. "*" matches
// everything and "lead.*" matches every event under "lead.".
func (w *Webhook) Subscribes(eventType string) bool {
	for _, sub := range w.Events {
		if sub == WildcardEvent || sub == eventType {
			return true
		}
		if strings.HasSuffix(sub, ".*") {
			prefix := strings.TrimSuffix(sub, "*")
			if strings.HasPrefix(eventType, prefix) && len(eventType) > len(prefix) {
				return true
			}
		}
	}
	return false
}

// EventSet is stored as a JSON array column.
type EventSet []string

func (e EventSet) Value() (driver.Value, error) {
	if e == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(e))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (e *EventSet) Scan(src any) error {
	return scanJSON(src, e)
}

// Headers is stored as a JSON object column.
type Headers map[string]string

func (h Headers) Value() (driver.Value, error) {
	if h == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]string(h))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (h *Headers) Scan(src any) error {
	return scanJSON(src, h)
}

func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	default:
		return fmt.Errorf("unsupported column type %T", src)
	}
}
