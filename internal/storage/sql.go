package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/shohag/webhookd/internal/models"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

// SQLStorage implements Storage on SQLite or Postgres. Queries are written
// with ? placeholders and rebound for the active driver.
type SQLStorage struct {
	db *sqlx.DB
}

func NewSQLite(path string) (*SQLStorage, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	}
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &SQLStorage{db: db}, nil
}

func NewPostgres(dsn string, maxOpenConns int) (*SQLStorage, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	db.SetConnMaxLifetime(time.Hour)
	return &SQLStorage{db: db}, nil
}

// NewWithDB wraps an existing connection, e.g. a sqlmock handle in tests.
func NewWithDB(db *sqlx.DB) *SQLStorage {
	return &SQLStorage{db: db}
}

func (s *SQLStorage) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS webhooks (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL,
			secret TEXT NOT NULL DEFAULT '',
			events TEXT NOT NULL DEFAULT '[]',
			headers TEXT NOT NULL DEFAULT '{}',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			retry_count INTEGER NOT NULL DEFAULT 3,
			last_triggered_at TIMESTAMP,
			last_status INTEGER,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS webhook_deliveries (
			id TEXT PRIMARY KEY,
			webhook_id TEXT NOT NULL,
			workspace_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			response_status INTEGER NOT NULL DEFAULT 0,
			response_body TEXT NOT NULL DEFAULT '',
			duration_ms BIGINT NOT NULL DEFAULT 0,
			error_message TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_webhooks_workspace_active ON webhooks(workspace_id, is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_workspace_created ON webhook_deliveries(workspace_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_webhook ON webhook_deliveries(webhook_id)`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStorage) Close() error {
	return s.db.Close()
}

// --- Webhooks ---

const webhookColumns = `id, workspace_id, name, url, secret, events, headers, is_active, retry_count, last_triggered_at, last_status, created_at, updated_at`

func (s *SQLStorage) CreateWebhook(ctx context.Context, wh *models.Webhook) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO webhooks (`+webhookColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		wh.ID, wh.WorkspaceID, wh.Name, wh.URL, wh.Secret, wh.Events, wh.Headers, wh.IsActive,
		wh.RetryCount, wh.LastTriggeredAt, wh.LastStatus, wh.CreatedAt.UTC(), wh.UpdatedAt.UTC(),
	)
	return err
}

func (s *SQLStorage) GetWebhook(ctx context.Context, id, workspaceID string) (*models.Webhook, error) {
	var wh models.Webhook
	err := s.db.GetContext(ctx, &wh, s.db.Rebind(
		`SELECT `+webhookColumns+` FROM webhooks WHERE id = ? AND workspace_id = ?`), id, workspaceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wh, nil
}

func (s *SQLStorage) ListWebhooks(ctx context.Context, workspaceID string) ([]models.Webhook, error) {
	var webhooks []models.Webhook
	err := s.db.SelectContext(ctx, &webhooks, s.db.Rebind(
		`SELECT `+webhookColumns+` FROM webhooks WHERE workspace_id = ? ORDER BY created_at DESC`), workspaceID)
	return webhooks, err
}

func (s *SQLStorage) FindActiveWebhooks(ctx context.Context, workspaceID string) ([]models.Webhook, error) {
	var webhooks []models.Webhook
	err := s.db.SelectContext(ctx, &webhooks, s.db.Rebind(
		`SELECT `+webhookColumns+` FROM webhooks WHERE workspace_id = ? AND is_active = ? ORDER BY created_at`),
		workspaceID, true)
	return webhooks, err
}

func (s *SQLStorage) SetWebhookActive(ctx context.Context, id, workspaceID string, active bool) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE webhooks SET is_active = ?, updated_at = ? WHERE id = ? AND workspace_id = ?`),
		active, time.Now().UTC(), id, workspaceID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (s *SQLStorage) DeleteWebhook(ctx context.Context, id, workspaceID string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`DELETE FROM webhooks WHERE id = ? AND workspace_id = ?`), id, workspaceID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (s *SQLStorage) UpdateWebhookHealth(ctx context.Context, id string, triggeredAt time.Time, status int) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE webhooks SET last_triggered_at = ?, last_status = ? WHERE id = ?`),
		triggeredAt.UTC(), status, id)
	return err
}

// --- Delivery log ---

func (s *SQLStorage) InsertDeliveryLog(ctx context.Context, e *models.DeliveryLogEntry) error {
	// payload goes in as a string so Postgres stores text rather than bytea
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO webhook_deliveries (id, webhook_id, workspace_id, event_type, payload, response_status, response_body, duration_ms, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		e.ID, e.WebhookID, e.WorkspaceID, e.EventType, e.Payload.String(), e.ResponseStatus,
		e.ResponseBody, e.DurationMs, e.ErrorMessage, e.CreatedAt.UTC(),
	)
	return err
}

func (s *SQLStorage) ListDeliveryLogs(ctx context.Context, f LogFilter) ([]models.DeliveryLogEntry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}

	query := `SELECT id, webhook_id, workspace_id, event_type, payload, response_status, response_body, duration_ms, error_message, created_at
		FROM webhook_deliveries WHERE workspace_id = ?`
	args := []any{f.WorkspaceID}
	if f.WebhookID != "" {
		query += ` AND webhook_id = ?`
		args = append(args, f.WebhookID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	var entries []models.DeliveryLogEntry
	err := s.db.SelectContext(ctx, &entries, s.db.Rebind(query), args...)
	return entries, err
}

// --- Stats ---

func (s *SQLStorage) GetStats(ctx context.Context, workspaceID string) (*Stats, error) {
	var stats Stats
	err := s.db.GetContext(ctx, &stats, s.db.Rebind(
		`SELECT
			(SELECT COUNT(*) FROM webhooks WHERE workspace_id = ?) AS total_webhooks,
			(SELECT COUNT(*) FROM webhooks WHERE workspace_id = ? AND is_active = ?) AS active_webhooks,
			(SELECT COUNT(*) FROM webhook_deliveries WHERE workspace_id = ?) AS total_deliveries,
			(SELECT COUNT(*) FROM webhook_deliveries WHERE workspace_id = ? AND error_message IS NULL
				AND response_status >= 200 AND response_status < 300) AS success_count`),
		workspaceID, workspaceID, true, workspaceID, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("load stats: %w", err)
	}

	stats.FailedCount = stats.TotalDeliveries - stats.SuccessCount
	if stats.TotalDeliveries > 0 {
		stats.SuccessRate = float64(stats.SuccessCount) / float64(stats.TotalDeliveries) * 100
	}
	return &stats, nil
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Storage = (*SQLStorage)(nil)
