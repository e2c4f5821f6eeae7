package gate

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuanto map[string]float64

func (f fakeQuanto) Multiplier(_ context.Context, contract string) (float64, error) {
	v, ok := f[contract]
	if !ok {
		return 0, errors.New("unknown contract")
	}
	return v, nil
}

func TestParseTickers(t *testing.T) {
	t.Run("array", func(t *testing.T) {
		raw := json.RawMessage(`[{"contract":"BTC_USDT","last":"65000.1","mark_price":"65001"},{"contract":"ETH_USDT","last":"3100"}]`)
		ticks := parseTickers(raw)
		require.Len(t, ticks, 2)
		assert.Equal(t, "BTC_USDT", ticks[0].Contract)
		assert.Equal(t, "65000.1", ticks[0].Last)
	})
	t.Run("single object", func(t *testing.T) {
		ticks := parseTickers(json.RawMessage(`{"contract":"SOL_USDT","last":"150"}`))
		require.Len(t, ticks, 1)
		assert.Equal(t, "SOL_USDT", ticks[0].Contract)
	})
	t.Run("garbage", func(t *testing.T) {
		assert.Nil(t, parseTickers(json.RawMessage(`"subscribed"`)))
		assert.Nil(t, parseTickers(nil))
	})
}

func TestObserveKeepsNewestPrice(t *testing.T) {
	f := &TickerFeed{latest: make(map[string]float64)}
	f.observe([]tickerPayload{{Contract: "btc_usdt", Last: "100"}})
	f.observe([]tickerPayload{{Contract: "BTC_USDT", Last: "101"}, {Contract: "ETH_USDT", Last: "0"}, {Contract: "", Last: "5"}})

	got := f.drain()
	assert.Equal(t, map[string]float64{"BTC_USDT": 101}, got)
	assert.Nil(t, f.drain(), "drain resets the buffer")
}

func TestBuildBatchSkipsUnknownMultiplier(t *testing.T) {
	prices := map[string]float64{"BTC_USDT": 65000, "ETH_USDT": 3100, "DOGE_USDT": 0.1}
	symbolMap := map[string]string{"BTC_USDT": "BTC_USDT", "ETH_USDT": "ETH_USDT"}
	quanto := fakeQuanto{"BTC_USDT": 0.0001, "ETH_USDT": 0.01}

	batch := buildBatch(context.Background(), prices, symbolMap, quanto)
	sort.Slice(batch, func(i, j int) bool { return batch[i].Symbol < batch[j].Symbol })

	require.Len(t, batch, 2)
	assert.Equal(t, PriceUpdate{Symbol: "BTC_USDT", LastPrice: 65000, QuantoMultiplier: 0.0001}, batch[0])
	assert.Equal(t, PriceUpdate{Symbol: "ETH_USDT", LastPrice: 3100, QuantoMultiplier: 0.01}, batch[1])
}

func TestFlushDeliversToSink(t *testing.T) {
	var got []PriceUpdate
	f := &TickerFeed{
		symbolMap: map[string]string{"BTC_USDT": "BTC_USDT"},
		quanto:    fakeQuanto{"BTC_USDT": 0.0001},
		sink:      func(b []PriceUpdate) { got = b },
		latest:    map[string]float64{"BTC_USDT": 64000},
	}
	f.flush(context.Background())

	require.Len(t, got, 1)
	assert.Equal(t, 64000.0, got[0].LastPrice)
	assert.EqualValues(t, 1, f.Stats().Batches)

	got = nil
	f.flush(context.Background())
	assert.Nil(t, got, "empty flush does not call the sink")
}

func TestNormalizeGateSymbols(t *testing.T) {
	contracts, symbolMap := normalizeGateSymbols([]string{"btc_usdt", "BTC/USDT", "ethusdt", " "})
	assert.Equal(t, []string{"BTC_USDT", "ETH_USDT"}, contracts)
	assert.Equal(t, "ETH_USDT", symbolMap["ETH_USDT"])
}

func TestNextDelay(t *testing.T) {
	assert.Equal(t, time.Second, nextDelay(0))
	assert.Equal(t, 4*time.Second, nextDelay(2*time.Second))
	assert.Equal(t, 30*time.Second, nextDelay(20*time.Second))
}
