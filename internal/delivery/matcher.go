package delivery

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/shohag/webhookd/internal/models"
)

type WebhookFinder interface {
	FindActiveWebhooks(ctx context.Context, workspaceID string) ([]models.Webhook, error)
}

// URLChecker is satisfied by *urlguard.Guard.
type URLChecker interface {
	Check(ctx context.Context, rawURL string) error
}

// Matcher selects the webhooks that should receive an event.
type Matcher struct {
	finder       WebhookFinder
	guard        URLChecker
	checkTimeout time.Duration
	log          zerolog.Logger
}

// NewMatcher returns a Matcher. checkTimeout bounds each URL check,
// including any DNS lookup; zero means the default.
func NewMatcher(finder WebhookFinder, guard URLChecker, checkTimeout time.Duration, log zerolog.Logger) *Matcher {
	if checkTimeout <= 0 {
		checkTimeout = defaultTimeout
	}
	return &Matcher{finder: finder, guard: guard, checkTimeout: checkTimeout, log: log}
}

// Match returns the tenant's active webhooks that subscribe to eventType
// and whose URL is currently safe to call. No match is not an error.
func (m *Matcher) Match(ctx context.Context, workspaceID, eventType string) ([]models.Webhook, error) {
	candidates, err := m.finder.FindActiveWebhooks(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	matched := make([]models.Webhook, 0, len(candidates))
	for _, wh := range candidates {
		if !wh.IsActive || !wh.Subscribes(eventType) {
			continue
		}
		if err := m.check(ctx, wh.URL); err != nil {
			m.log.Warn().Err(err).
				Str("webhook_id", wh.ID).
				Str("workspace_id", workspaceID).
				Msg("skipping webhook with blocked url")
			continue
		}
		matched = append(matched, wh)
	}
	return matched, nil
}

func (m *Matcher) check(ctx context.Context, rawURL string) error {
	ctx, cancel := context.WithTimeout(ctx, m.checkTimeout)
	defer cancel()
	return m.guard.Check(ctx, rawURL)
}
