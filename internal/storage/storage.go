package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shohag/webhookd/internal/models"
)

var ErrNotFound = errors.New("storage: not found")

type Storage interface {
	// Webhooks
	CreateWebhook(ctx context.Context, wh *models.Webhook) error
	GetWebhook(ctx context.Context, id, workspaceID string) (*models.Webhook, error)
	ListWebhooks(ctx context.Context, workspaceID string) ([]models.Webhook, error)
	FindActiveWebhooks(ctx context.Context, workspaceID string) ([]models.Webhook, error)
	SetWebhookActive(ctx context.Context, id, workspaceID string, active bool) error
	DeleteWebhook(ctx context.Context, id, workspaceID string) error
	UpdateWebhookHealth(ctx context.Context, id string, triggeredAt time.Time, status int) error

	// Delivery log
	InsertDeliveryLog(ctx context.Context, entry *models.DeliveryLogEntry) error
	ListDeliveryLogs(ctx context.Context, filter LogFilter) ([]models.DeliveryLogEntry, error)

	// Stats
	GetStats(ctx context.Context, workspaceID string) (*Stats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

type LogFilter struct {
	WorkspaceID string
	WebhookID   string
	Limit       int
}

type Stats struct {
	TotalWebhooks   int64   `json:"total_webhooks" db:"total_webhooks"`
	ActiveWebhooks  int64   `json:"active_webhooks" db:"active_webhooks"`
	TotalDeliveries int64   `json:"total_deliveries" db:"total_deliveries"`
	SuccessCount    int64   `json:"success_count" db:"success_count"`
	FailedCount     int64   `json:"failed_count" db:"failed_count"`
	SuccessRate     float64 `json:"success_rate" db:"-"`
}
