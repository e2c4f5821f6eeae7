package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gatebot/internal/heartbeat"
	"gatebot/internal/trader"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubBroadcastsTraderEvents(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	conn := dialHub(t, h)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	h.Observe(trader.Event{Kind: trader.KindEntrySubmitted, Symbol: "BTC_USDT", Side: "long", Size: 1})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var env struct {
		Type    string       `json:"type"`
		Payload trader.Event `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, "trader_event", env.Type)
	assert.Equal(t, trader.KindEntrySubmitted, env.Payload.Kind)
	assert.Equal(t, "BTC_USDT", env.Payload.Symbol)
}

func TestHubUnsubscribe(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	conn := dialHub(t, h)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "unsubscribe", Channels: []string{ChannelHeartbeat}}))

	var c *client
	h.mu.RLock()
	for cl := range h.clients {
		c = cl
	}
	h.mu.RUnlock()
	require.Eventually(t, func() bool { return !c.isSubscribed(ChannelHeartbeat) }, time.Second, 10*time.Millisecond)

	h.PublishHeartbeat(heartbeat.Message{Kind: heartbeat.MsgHeartbeat, Seq: 1})
	h.Observe(trader.Event{Kind: trader.KindTaskRemoved, Symbol: "ETH_USDT"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"trader_event"`, "heartbeat frame is skipped")
}

func TestPublishDropsWhenFull(t *testing.T) {
	h := NewHub()
	for i := 0; i < cap(h.broadcast)+5; i++ {
		h.PublishPrices(trader.RoiBatch{"BTC_USDT": {Symbol: "BTC_USDT", LastPrice: 1}})
	}
	assert.Len(t, h.broadcast, cap(h.broadcast))
}
