package delivery

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shohag/webhookd/internal/urlguard"
)

func TestMatcher_Match(t *testing.T) {
	inactive := webhook("wh_off", "ws_1", "https://off.example.com", "*")
	inactive.IsActive = false
	store := newFakeStore(
		webhook("wh_exact", "ws_1", "https://exact.example.com", "lead.created"),
		webhook("wh_all", "ws_1", "https://all.example.com", "*"),
		webhook("wh_prefix", "ws_1", "https://prefix.example.com", "deal.*"),
		webhook("wh_private", "ws_1", "http://192.168.1.50/hook", "*"),
		inactive,
	)
	m := NewMatcher(store, urlguard.New(nil), time.Second, zerolog.Nop())

	tests := []struct {
		event string
		want  []string
	}{
		{"lead.created", []string{"wh_exact", "wh_all"}},
		{"lead.updated", []string{"wh_all"}},
		{"deal.won", []string{"wh_all", "wh_prefix"}},
		{"deal", []string{"wh_all"}},
	}
	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			got, err := m.Match(context.Background(), "ws_1", tt.event)
			require.NoError(t, err)
			var ids []string
			for _, wh := range got {
				ids = append(ids, wh.ID)
			}
			assert.ElementsMatch(t, tt.want, ids)
		})
	}
}

func TestMatcher_StoreError(t *testing.T) {
	store := newFakeStore()
	store.findErr = errStoreDown
	m := NewMatcher(store, urlguard.New(nil), time.Second, zerolog.Nop())

	got, err := m.Match(context.Background(), "ws_1", "lead.created")
	assert.ErrorIs(t, err, errStoreDown)
	assert.Nil(t, got)
}

// hangingChecker blocks until its context is done, like a stalled resolver.
type hangingChecker struct{}

func (hangingChecker) Check(ctx context.Context, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestMatcher_BoundsEachURLCheck(t *testing.T) {
	store := newFakeStore(
		webhook("wh_a", "ws_1", "https://slow-a.example.com", "*"),
		webhook("wh_b", "ws_1", "https://slow-b.example.com", "*"),
	)
	m := NewMatcher(store, hangingChecker{}, 20*time.Millisecond, zerolog.Nop())

	start := time.Now()
	got, err := m.Match(context.Background(), "ws_1", "lead.created")
	require.NoError(t, err)
	assert.Empty(t, got, "a check that times out fails closed")
	assert.Less(t, time.Since(start), time.Second)
}
