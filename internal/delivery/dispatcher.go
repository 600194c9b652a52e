package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/shohag/webhookd/internal/config"
	"github.com/shohag/webhookd/internal/models"
	"github.com/shohag/webhookd/internal/ratelimit"
)

// TestEventType is the synthetic event sent by Dispatcher.Test.
const TestEventType = "webhook.test"

const defaultWorkers = 8

var (
	ErrWorkspaceRequired = errors.New("workspace_id is required")
	ErrEventTypeRequired = errors.New("event_type is required")
	ErrWebhookIDRequired = errors.New("webhook_id is required")
	ErrInvalidData       = errors.New("data must be valid JSON")
	ErrWebhookNotFound   = errors.New("webhook not found")
)

// Store is the persistence the dispatcher needs; storage.Storage satisfies it.
type Store interface {
	WebhookFinder
	LogWriter
	GetWebhook(ctx context.Context, id, workspaceID string) (*models.Webhook, error)
}

// Result counts delivery outcomes. Failed subscribers are reported here,
// never as an error.
type Result struct {
	Triggered int `json:"triggered"`
	Success   int `json:"success"`
	Failed    int `json:"failed"`
}

type Dispatcher struct {
	store   Store
	limiter ratelimit.Limiter
	matcher *Matcher
	worker  *Worker
	workers int
	log     zerolog.Logger

	inflight atomic.Int64
}

func NewDispatcher(cfg config.DeliveryConfig, store Store, limiter ratelimit.Limiter, guard URLChecker, sender Sender, log zerolog.Logger) *Dispatcher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	log = log.With().Str("component", "dispatcher").Logger()

	return &Dispatcher{
		store:   store,
		limiter: limiter,
		matcher: NewMatcher(store, guard, cfg.Timeout, log),
		worker:  NewWorker(sender, NewRecorder(store, log), cfg.UserAgent, cfg.MaxErrorLength, log),
		workers: workers,
		log:     log,
	}
}

// Trigger delivers eventType to every matching webhook of the workspace.
func (d *Dispatcher) Trigger(ctx context.Context, workspaceID, eventType string, data json.RawMessage) (Result, error) {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return Result{}, ErrWorkspaceRequired
	}
	if strings.TrimSpace(eventType) == "" {
		return Result{}, ErrEventTypeRequired
	}
	if len(data) > 0 && !json.Valid(data) {
		return Result{}, ErrInvalidData
	}
	if err := d.admit(workspaceID); err != nil {
		return Result{}, err
	}

	hooks, err := d.matcher.Match(ctx, workspaceID, eventType)
	if err != nil {
		return Result{}, fmt.Errorf("match webhooks: %w", err)
	}

	res := d.deliver(ctx, hooks, eventType, data)
	d.log.Info().
		Str("workspace_id", workspaceID).
		Str("event_type", eventType).
		Int("triggered", res.Triggered).
		Int("success", res.Success).
		Int("failed", res.Failed).
		Msg("event dispatched")
	return res, nil
}

// Test sends a synthetic event to a single webhook, bypassing event
// matching. Inactive or blocked webhooks are skipped, not errors.
func (d *Dispatcher) Test(ctx context.Context, workspaceID, webhookID string) (Result, error) {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return Result{}, ErrWorkspaceRequired
	}
	webhookID = strings.TrimSpace(webhookID)
	if webhookID == "" {
		return Result{}, ErrWebhookIDRequired
	}
	if err := d.admit(workspaceID); err != nil {
		return Result{}, err
	}

	wh, err := d.store.GetWebhook(ctx, webhookID, workspaceID)
	if err != nil {
		return Result{}, fmt.Errorf("load webhook: %w", err)
	}
	if wh == nil {
		return Result{}, ErrWebhookNotFound
	}
	if !wh.IsActive {
		d.log.Info().Str("webhook_id", wh.ID).Msg("test skipped, webhook inactive")
		return Result{}, nil
	}
	if err := d.matcher.check(ctx, wh.URL); err != nil {
		d.log.Warn().Err(err).Str("webhook_id", wh.ID).Msg("test skipped, url blocked")
		return Result{}, nil
	}

	data, _ := json.Marshal(map[string]string{
		"message":    "This is a test event from webhookd",
		"webhook_id": wh.ID,
	})
	return d.deliver(ctx, []models.Webhook{*wh}, TestEventType, data), nil
}

func (d *Dispatcher) admit(workspaceID string) error {
	if d.limiter.Admit(workspaceID) {
		return nil
	}
	retryAfter := d.limiter.RetryAfter(workspaceID)
	d.log.Warn().
		Str("workspace_id", workspaceID).
		Dur("retry_after", retryAfter).
		Msg("rate limit exceeded")
	return &ratelimit.ExceededError{WorkspaceID: workspaceID, RetryAfter: retryAfter}
}

// deliver fans out over at most d.workers goroutines and waits for every
// attempt. Attempts outlive the caller's context.
func (d *Dispatcher) deliver(ctx context.Context, hooks []models.Webhook, eventType string, data json.RawMessage) Result {
	res := Result{Triggered: len(hooks)}
	if len(hooks) == 0 {
		return res
	}

	d.inflight.Add(1)
	defer d.inflight.Add(-1)

	ctx = context.WithoutCancel(ctx)
	var succeeded atomic.Int64

	p := pool.New().WithMaxGoroutines(d.workers)
	for _, wh := range hooks {
		wh := wh
		p.Go(func() {
			if d.attempt(ctx, wh, eventType, data) {
				succeeded.Add(1)
			}
		})
	}
	p.Wait()

	res.Success = int(succeeded.Load())
	res.Failed = res.Triggered - res.Success
	return res
}

// Drain blocks until every in-flight fan-out has finished or ctx is done.
// Each attempt is bounded by delivery.timeout, so without a deadline it
// returns after at most ceil(n/workers) timeouts of the largest batch.
func (d *Dispatcher) Drain(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for d.inflight.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (d *Dispatcher) attempt(ctx context.Context, wh models.Webhook, eventType string, data json.RawMessage) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().
				Str("webhook_id", wh.ID).
				Interface("panic", r).
				Msg("delivery panicked")
			ok = false
		}
	}()
	return d.worker.Process(ctx, wh, eventType, data)
}
