package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"gatebot/internal/trader"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (c *captureNotifier) SendText(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return nil
}

func (c *captureNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.texts)
}

func TestRenderEventFiltersKinds(t *testing.T) {
	_, ok := renderEvent(trader.Event{Kind: trader.KindEntryAdmitted, Symbol: "BTC_USDT"})
	assert.False(t, ok)
	_, ok = renderEvent(trader.Event{Kind: trader.KindEntryRejected, Symbol: "BTC_USDT"})
	assert.False(t, ok)

	msg, ok := renderEvent(trader.Event{Kind: trader.KindPositionClosed, Symbol: "BTC_USDT", Side: "long", Size: 2, Reason: trader.ReasonTakeProfit, ReturnPct: 20})
	require.True(t, ok)
	text := msg.Markdown()
	assert.Contains(t, text, "平仓 TP")
	assert.Contains(t, text, "roi: 20.00%")
	assert.Contains(t, text, "symbol: BTC_USDT")

	msg, ok = renderEvent(trader.Event{Kind: trader.KindEntryFailed, Symbol: "ETH_USDT", Error: "insufficient margin"})
	require.True(t, ok)
	assert.Contains(t, msg.Markdown(), "error: insufficient margin")
}

func TestAlertsDeliverQueued(t *testing.T) {
	out := &captureNotifier{}
	alerts := NewAlerts(out, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go alerts.Run(ctx)

	alerts.Observe(trader.Event{Kind: trader.KindEntryFailed, Symbol: "BTC_USDT"})
	alerts.Observe(trader.Event{Kind: trader.KindEntrySubmitted, Symbol: "BTC_USDT"})
	alerts.Observe(trader.Event{Kind: trader.KindCloseFailed, Symbol: "BTC_USDT", Attempts: 1})

	assert.Eventually(t, func() bool { return out.count() == 2 }, time.Second, 10*time.Millisecond)
}

func TestAlertsQueueFullDrops(t *testing.T) {
	alerts := NewAlerts(&captureNotifier{}, time.Hour)
	for i := 0; i < alertQueueSize+10; i++ {
		alerts.Post(Alert{Title: "x"})
	}
	assert.Len(t, alerts.queue, alertQueueSize)
}

func TestTelegramSendText(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottoken/sendMessage", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := NewTelegram("token", "42")
	tg.BaseURL = srv.URL
	require.NoError(t, tg.SendText(context.Background(), "hello"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "hello", got["text"])

	assert.Error(t, NewTelegram("", "").SendText(context.Background(), "x"))
}
