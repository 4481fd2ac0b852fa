package database

import (
	"context"
	"testing"

	"itslive-telegram-bot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSubscriptions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	inserted, err := store.InsertSubscription(ctx, "100", "MintA")
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.InsertSubscription(ctx, "100", "MintA")
	require.NoError(t, err)
	assert.False(t, inserted, "duplicate subscription must be ignored")

	_, err = store.InsertSubscription(ctx, "200", "MintA")
	require.NoError(t, err)
	_, err = store.InsertSubscription(ctx, "100", "MintB")
	require.NoError(t, err)

	chats, err := store.FindSubscriberChats(ctx, "MintA")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"100", "200"}, chats)

	subs, err := store.FindTokensByChat(ctx, "100")
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "MintB", subs[0].TokenAddress, "newest subscription first")

	removed, err := store.DeleteSubscription(ctx, "100", "MintA")
	require.NoError(t, err)
	assert.True(t, removed)

	chats, err = store.FindSubscriberChats(ctx, "MintA")
	require.NoError(t, err)
	assert.Equal(t, []string{"200"}, chats)
}

func TestPinnedMessages(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.UpsertPinnedMessage(ctx, "1", "MintA", 10))
	require.NoError(t, store.UpsertPinnedMessage(ctx, "1", "MintA", 11))
	require.NoError(t, store.UpsertPinnedMessage(ctx, "2", "MintA", 20))

	pinned, err := store.FindPinnedMessages(ctx, "MintA")
	require.NoError(t, err)
	assert.ElementsMatch(t, []types.PinnedMessage{
		{ChatID: "1", TokenAddress: "MintA", MessageID: 11},
		{ChatID: "2", TokenAddress: "MintA", MessageID: 20},
	}, pinned)

	require.NoError(t, store.DeletePinnedMessage(ctx, "1", "MintA"))
	pinned, err = store.FindPinnedMessages(ctx, "MintA")
	require.NoError(t, err)
	require.Len(t, pinned, 1)
	assert.Equal(t, "2", pinned[0].ChatID)
}

func TestAlerts_InsertOrIgnore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first := types.MarketCapAlert{
		ChatID: "1", TokenAddress: "MintA", MessageID: 5,
		Kind: types.KindThreshold, ThresholdPercent: 10, Direction: types.DirectionUp,
	}
	inserted, err := store.InsertAlert(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	second := first
	second.Kind = types.KindAmount
	second.AmountUSD = 5000
	second.Direction = types.DirectionDown
	inserted, err = store.InsertAlert(ctx, second)
	require.NoError(t, err)
	assert.False(t, inserted, "second alert for the same pair is a no-op")

	stored, found, err := store.FindAlert(ctx, "1", "MintA")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, types.KindThreshold, stored.Kind)
	assert.Equal(t, types.DirectionUp, stored.Direction)
	assert.Equal(t, 10.0, stored.ThresholdPercent)
	assert.Equal(t, 5, stored.MessageID)
}

func TestAlerts_ReplaceAndDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	a := types.MarketCapAlert{
		ChatID: "1", TokenAddress: "MintA", MessageID: 5,
		Kind: types.KindThreshold, ThresholdPercent: 10, Direction: types.DirectionUp,
	}
	_, err := store.InsertAlert(ctx, a)
	require.NoError(t, err)
	_, err = store.InsertAlert(ctx, types.MarketCapAlert{
		ChatID: "2", TokenAddress: "MintA", MessageID: 6,
		Kind: types.KindAmount, AmountUSD: 50000, Direction: types.DirectionDown,
	})
	require.NoError(t, err)

	a.Direction = types.DirectionDown
	a.MessageID = 7
	replaced, err := store.ReplaceAlert(ctx, a)
	require.NoError(t, err)
	assert.True(t, replaced)

	alerts, err := store.FindAlertsForToken(ctx, "MintA")
	require.NoError(t, err)
	require.Len(t, alerts, 2)

	byChat, err := store.FindAlertsByChat(ctx, "1")
	require.NoError(t, err)
	require.Len(t, byChat, 1)
	assert.Equal(t, types.DirectionDown, byChat[0].Direction)
	assert.Equal(t, 7, byChat[0].MessageID)

	removed, err := store.DeleteAlert(ctx, "1", "MintA")
	require.NoError(t, err)
	assert.True(t, removed)

	_, found, err := store.FindAlert(ctx, "1", "MintA")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMarketCap_Upsert(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, found, err := store.GetMarketCap(ctx, "MintA")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.UpsertMarketCap(ctx, "MintA", 100000))
	require.NoError(t, store.UpsertMarketCap(ctx, "MintA", 100000))
	require.NoError(t, store.UpsertMarketCap(ctx, "MintA", 115000.5))

	state, found, err := store.GetMarketCap(ctx, "MintA")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 115000.5, state.MarketCapUSD)
	assert.False(t, state.LastUpdated.IsZero())

	var rows int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM token_mc WHERE token_address = ?`, "MintA").Scan(&rows))
	assert.Equal(t, 1, rows, "exactly one row per token")
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	value, err := store.GetMetric(ctx, "alerts_fired")
	require.NoError(t, err)
	assert.Zero(t, value)

	require.NoError(t, store.SaveMetric(ctx, "alerts_fired", 3))
	require.NoError(t, store.SaveMetric(ctx, "alerts_fired", 4))
	value, err = store.GetMetric(ctx, "alerts_fired")
	require.NoError(t, err)
	assert.Equal(t, 4.0, value)

	require.NoError(t, store.SaveMetricWithLabels(ctx, "events_received", "event", "nowLive", 2))
	require.NoError(t, store.SaveMetricWithLabels(ctx, "events_received", "event", "streamOffline", 1))

	labelled, err := store.GetMetricsWithLabels(ctx, "events_received")
	require.NoError(t, err)
	assert.Equal(t, map[string]map[string]float64{
		"event": {"nowLive": 2, "streamOffline": 1},
	}, labelled)
}
