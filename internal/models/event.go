package models

import (
	"encoding/json"
	"time"
)

// Envelope is the JSON body POSTed to every subscriber.
type Envelope struct {
	Event     string          `json:"event"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func NewEnvelope(eventType string, data json.RawMessage, at time.Time) Envelope {
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	return Envelope{
		Event:     eventType,
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		Data:      data,
	}
}
