package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"itslive-telegram-bot/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *database.Store {
	t.Helper()
	store, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	m := NewBotMetrics()
	m.CommandProcessed()
	m.CommandProcessed()
	m.AlertsFired(3)
	m.EventReceived("nowLive")
	m.EventReceived("market_cap_update")
	m.EventReceived("market_cap_update")
	m.Notification("live", "ok")
	m.Notification("edit", "unchanged")
	require.NoError(t, m.Save(ctx, store))

	restored := NewBotMetrics()
	require.NoError(t, restored.Load(ctx, store))

	assert.Equal(t, 2.0, GetMetricValue(restored.CommandsProcessed))
	assert.Equal(t, 3.0, GetMetricValue(restored.AlertsFiredTotal))
	assert.Equal(t, 1.0, GetMetricValue(restored.EventsReceived.WithLabelValues("nowLive")))
	assert.Equal(t, 2.0, GetMetricValue(restored.EventsReceived.WithLabelValues("market_cap_update")))
	assert.Equal(t, 1.0, GetMetricValue(restored.Notifications.WithLabelValues("live", "ok")))
	assert.Equal(t, 1.0, GetMetricValue(restored.Notifications.WithLabelValues("edit", "unchanged")))
}

func TestLoad_EmptyDatabase(t *testing.T) {
	m := NewBotMetrics()
	require.NoError(t, m.Load(context.Background(), newTestStore(t)))
	assert.Equal(t, 0.0, GetMetricValue(m.CommandsProcessed))
}

func TestFeedConnectedGauge(t *testing.T) {
	m := NewBotMetrics()
	m.SetFeedConnected(true)
	assert.Equal(t, 1.0, GetMetricValue(m.FeedConnected))
	m.SetFeedConnected(false)
	assert.Equal(t, 0.0, GetMetricValue(m.FeedConnected))
}

func TestHandler(t *testing.T) {
	m := NewBotMetrics()
	m.EventReceived("streamOffline")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `itslive_telegram_bot_events_received{event="streamOffline"} 1`)
	assert.Contains(t, string(body), "itslive_telegram_bot_feed_connected 0")
}
