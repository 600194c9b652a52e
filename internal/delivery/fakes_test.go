package delivery

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/shohag/webhookd/internal/models"
)

type sentRequest struct {
	URL     string
	Headers http.Header
	Body    []byte
	CtxErr  error
}

type fakeSender struct {
	mu       sync.Mutex
	requests []sentRequest
	// respond picks the outcome per URL; nil means 200 OK.
	respond func(url string) *SendResult
}

func (s *fakeSender) Send(ctx context.Context, req *Request) *SendResult {
	h := http.Header{}
	for k, v := range req.Headers {
		h.Set(k, v)
	}
	s.mu.Lock()
	s.requests = append(s.requests, sentRequest{URL: req.URL, Headers: h, Body: req.Body, CtxErr: ctx.Err()})
	s.mu.Unlock()

	if s.respond != nil {
		return s.respond(req.URL)
	}
	return &SendResult{StatusCode: http.StatusOK, ResponseBody: "ok", LatencyMs: 1}
}

func (s *fakeSender) sent() []sentRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentRequest(nil), s.requests...)
}

type health struct {
	at     time.Time
	status int
}

type fakeStore struct {
	mu       sync.Mutex
	webhooks []models.Webhook
	logs     []models.DeliveryLogEntry
	health   map[string]health
	findErr  error
	finds    int
}

func newFakeStore(hooks ...models.Webhook) *fakeStore {
	return &fakeStore{webhooks: hooks, health: map[string]health{}}
}

func (s *fakeStore) FindActiveWebhooks(_ context.Context, workspaceID string) ([]models.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finds++
	if s.findErr != nil {
		return nil, s.findErr
	}
	var out []models.Webhook
	for _, wh := range s.webhooks {
		if wh.WorkspaceID == workspaceID && wh.IsActive {
			out = append(out, wh)
		}
	}
	return out, nil
}

func (s *fakeStore) GetWebhook(_ context.Context, id, workspaceID string) (*models.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, wh := range s.webhooks {
		if wh.ID == id && wh.WorkspaceID == workspaceID {
			return &wh, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) InsertDeliveryLog(_ context.Context, e *models.DeliveryLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, *e)
	return nil
}

func (s *fakeStore) UpdateWebhookHealth(_ context.Context, id string, at time.Time, status int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health[id] = health{at: at, status: status}
	return nil
}

func (s *fakeStore) deliveryLogs() []models.DeliveryLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.DeliveryLogEntry(nil), s.logs...)
}

var errStoreDown = errors.New("store down")

func webhook(id, workspaceID, url string, events ...string) models.Webhook {
	return models.Webhook{
		ID:          id,
		WorkspaceID: workspaceID,
		URL:         url,
		Events:      events,
		IsActive:    true,
		RetryCount:  3,
	}
}
