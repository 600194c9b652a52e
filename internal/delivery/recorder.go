package delivery

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/shohag/webhookd/internal/models"
)

type LogWriter interface {
	InsertDeliveryLog(ctx context.Context, entry *models.DeliveryLogEntry) error
	UpdateWebhookHealth(ctx context.Context, id string, triggeredAt time.Time, status int) error
}

// Recorder persists delivery outcomes. Storage failures are logged and
// never reach the caller.
type Recorder struct {
	store LogWriter
	log   zerolog.Logger
}

func NewRecorder(store LogWriter, log zerolog.Logger) *Recorder {
	return &Recorder{store: store, log: log}
}

func (r *Recorder) Record(ctx context.Context, entry *models.DeliveryLogEntry) {
	if err := r.store.InsertDeliveryLog(ctx, entry); err != nil {
		r.log.Error().Err(err).
			Str("delivery_id", entry.ID).
			Str("webhook_id", entry.WebhookID).
			Msg("failed to record delivery")
	}
	if err := r.store.UpdateWebhookHealth(ctx, entry.WebhookID, entry.CreatedAt, entry.ResponseStatus); err != nil {
		r.log.Error().Err(err).
			Str("webhook_id", entry.WebhookID).
			Msg("failed to update webhook health")
	}
}
