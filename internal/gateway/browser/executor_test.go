package browser

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"gatebot/internal/gateway/exchange"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedEval answers each Eval with the next queued envelope.
type scriptedEval struct {
	replies []string
	scripts []string
	err     error
}

func (s *scriptedEval) Eval(_ context.Context, script string) (string, error) {
	s.scripts = append(s.scripts, script)
	if s.err != nil {
		return "", s.err
	}
	if len(s.replies) == 0 {
		return "", errors.New("no reply queued")
	}
	out := s.replies[0]
	s.replies = s.replies[1:]
	return out, nil
}

func envelope(status int, body string) string {
	raw, _ := json.Marshal(map[string]any{"status": status, "body": body})
	return string(raw)
}

func TestSubmitEntryReadsPosition(t *testing.T) {
	ev := &scriptedEval{replies: []string{
		envelope(201, `{"id":42,"fill_price":"100.5"}`),
		envelope(200, `[{"mode":"dual_long","size":0,"leverage":"10"},{"mode":"dual_short","size":-3,"entry_price":"100.5","leverage":"10"}]`),
	}}
	exec := NewExecutor(ev, "")

	snap, err := exec.SubmitEntry(context.Background(), "btc/usdt", exchange.SideShort, 3)
	require.NoError(t, err)
	assert.Equal(t, exchange.PositionSnapshot{Size: -3, EntryPrice: 100.5, Leverage: 10, Mode: exchange.ModeDualShort}, snap)

	require.Len(t, ev.scripts, 2)
	assert.Contains(t, ev.scripts[0], `"/apiw/v2/futures/usdt/orders"`)
	assert.Contains(t, ev.scripts[0], `\"size\":-3`)
	assert.Contains(t, ev.scripts[1], "/dual_comp/positions/BTC_USDT")
}

func TestSubmitEntryRejected(t *testing.T) {
	ev := &scriptedEval{replies: []string{
		envelope(400, `{"label":"INSUFFICIENT_AVAILABLE","message":"balance not enough"}`),
	}}
	_, err := NewExecutor(ev, "").SubmitEntry(context.Background(), "ETH_USDT", exchange.SideLong, 1)
	require.Error(t, err)
	assert.True(t, exchange.IsRejected(err))
	assert.Contains(t, err.Error(), "INSUFFICIENT_AVAILABLE")
}

func TestChangeLeverageReportsLegs(t *testing.T) {
	ev := &scriptedEval{replies: []string{
		envelope(200, `{"code":0,"data":[{"mode":"dual_long","leverage":"10"},{"mode":"dual_short","leverage":"10"}]}`),
	}}
	res, err := NewExecutor(ev, "/api/futures/").ChangeLeverage(context.Background(), "SOL_USDT", "10")
	require.NoError(t, err)
	assert.Equal(t, exchange.LeverageResult{Long: "10", Short: "10"}, res)
	assert.Contains(t, ev.scripts[0], `"/api/futures/dual_comp/positions/SOL_USDT/leverage?leverage=10"`)
}

func TestSubmitCloseReduceOnly(t *testing.T) {
	ev := &scriptedEval{replies: []string{envelope(201, `{"id":7}`)}}
	err := NewExecutor(ev, "").SubmitClose(context.Background(), "BTC_USDT", exchange.SideLong, 2)
	require.NoError(t, err)
	assert.Contains(t, ev.scripts[0], `\"size\":-2`)
	assert.Contains(t, ev.scripts[0], `\"reduce_only\":true`)
}

func TestDecodeResponse(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		rejected bool
		wantErr  string
	}{
		{name: "server error", raw: envelope(502, `{"message":"bad gateway"}`), wantErr: "http 502"},
		{name: "unauthorized", raw: envelope(401, `{"label":"INVALID_KEY"}`), wantErr: "not authorized"},
		{name: "business code", raw: envelope(200, `{"code":1001,"message":"nope"}`), rejected: true},
		{name: "html body", raw: envelope(200, `<html></html>`), wantErr: "non-json"},
		{name: "bad envelope", raw: `not json`, wantErr: "invalid fetch envelope"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := decodeResponse(tc.raw)
			require.Error(t, err)
			assert.Equal(t, tc.rejected, exchange.IsRejected(err))
			if tc.wantErr != "" {
				assert.True(t, strings.Contains(err.Error(), tc.wantErr), err.Error())
			}
		})
	}

	res, err := decodeResponse(envelope(200, `{"code":0,"data":{"id":1}}`))
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Get("id").Int())
}

func TestContractSizeRejectsDust(t *testing.T) {
	_, err := contractSize(0.4)
	assert.True(t, exchange.IsRejected(err))
}
