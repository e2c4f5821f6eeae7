package trader

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"gatebot/internal/gateway/exchange"
	"gatebot/internal/queue"
)

func filledTask(size, entry, lev float64, createdAt time.Time) *queue.OrderTask {
	side := exchange.SideLong
	if size < 0 {
		side = exchange.SideShort
	}
	task := queue.NewOrderTask("BTC_USDT", side, size, 0, createdAt)
	task.Attach(exchange.PositionSnapshot{Size: size, EntryPrice: entry, Leverage: lev, Mode: exchange.ModeForSide(side)})
	return task
}

func assertNear(t *testing.T, want float64, got decimal.Decimal, tol float64) {
	t.Helper()
	f, _ := got.Float64()
	assert.InDelta(t, want, f, tol)
}

func TestComputeROIReferenceFigures(t *testing.T) {
	pos := exchange.PositionSnapshot{Size: 1, EntryPrice: 115204.9, Leverage: 125, Mode: exchange.ModeDualLong}
	roi := ComputeROI(pos, 115277.9, 0.0001)

	assertNear(t, 0.09216392, roi.InitialMargin, 1e-8)
	assertNear(t, 0.0073, roi.UnrealizedPnL, 1e-10)
	assertNear(t, 7.9207, roi.ReturnPercent, 1e-3)
}

func TestComputeROIShortPositionSign(t *testing.T) {
	pos := exchange.PositionSnapshot{Size: -1, EntryPrice: 115204.9, Leverage: 125, Mode: exchange.ModeDualShort}

	up := ComputeROI(pos, 115277.9, 0.0001)
	assertNear(t, 0.09216392, up.InitialMargin, 1e-8)
	assertNear(t, -0.0073, up.UnrealizedPnL, 1e-10)
	assertNear(t, -7.9207, up.ReturnPercent, 1e-3)

	down := ComputeROI(pos, 115131.9, 0.0001)
	assert.True(t, down.ReturnPercent.IsPositive())
}

func TestEvaluateBoundaries(t *testing.T) {
	now := time.Now()
	s := Settings{TakeProfitPct: 10, StopLossPct: 10}
	// entry 100, size 1, quanto 1, leverage 10: margin 10, so 1 unit of price is 10%.
	task := filledTask(1, 100, 10, now)

	t.Run("take profit at exact threshold", func(t *testing.T) {
		v, ok := Evaluate(task, RoiEvent{Symbol: "BTC_USDT", LastPrice: 101, QuantoMultiplier: 1}, s, now)
		assert.True(t, ok)
		assert.True(t, v.Close)
		assert.Equal(t, ReasonTakeProfit, v.Reason)
		assert.True(t, v.ROI.ReturnPercent.Equal(decimal.NewFromInt(10)))
	})

	t.Run("stop loss at exact threshold", func(t *testing.T) {
		v, ok := Evaluate(task, RoiEvent{Symbol: "BTC_USDT", LastPrice: 99, QuantoMultiplier: 1}, s, now)
		assert.True(t, ok)
		assert.True(t, v.Close)
		assert.Equal(t, ReasonStopLoss, v.Reason)
	})

	t.Run("exact threshold with small quanto", func(t *testing.T) {
		// notional 7*3*0.0001 = 0.0021, pnl 1.75*3*0.0001 = 0.000525, x11 x100 = 275%
		small := filledTask(3, 7, 11, now)
		tp := Settings{TakeProfitPct: 275, StopLossPct: 275}
		v, ok := Evaluate(small, RoiEvent{Symbol: "BTC_USDT", LastPrice: 8.75, QuantoMultiplier: 0.0001}, tp, now)
		assert.True(t, ok)
		assert.True(t, v.ROI.ReturnPercent.Equal(decimal.NewFromInt(275)), v.ROI.ReturnPercent.String())
		assert.True(t, v.Close)
		assert.Equal(t, ReasonTakeProfit, v.Reason)

		v, _ = Evaluate(small, RoiEvent{Symbol: "BTC_USDT", LastPrice: 5.25, QuantoMultiplier: 0.0001}, tp, now)
		assert.True(t, v.Close)
		assert.Equal(t, ReasonStopLoss, v.Reason)
	})

	t.Run("inside band holds", func(t *testing.T) {
		v, ok := Evaluate(task, RoiEvent{Symbol: "BTC_USDT", LastPrice: 100.5, QuantoMultiplier: 1}, s, now)
		assert.True(t, ok)
		assert.False(t, v.Close)
	})

	t.Run("zero threshold turns the exit off", func(t *testing.T) {
		off := Settings{TakeProfitPct: 0, StopLossPct: 10}
		v, ok := Evaluate(task, RoiEvent{Symbol: "BTC_USDT", LastPrice: 150, QuantoMultiplier: 1}, off, now)
		assert.True(t, ok)
		assert.False(t, v.Close)

		v, _ = Evaluate(task, RoiEvent{Symbol: "BTC_USDT", LastPrice: 99, QuantoMultiplier: 1}, off, now)
		assert.True(t, v.Close)
		assert.Equal(t, ReasonStopLoss, v.Reason)
	})
}

func TestEvaluateTimeout(t *testing.T) {
	now := time.Now()
	s := Settings{TakeProfitPct: 50, StopLossPct: 50, TimeoutEnabled: true, TimeoutMs: 90000}
	ev := RoiEvent{Symbol: "BTC_USDT", LastPrice: 100.1, QuantoMultiplier: 1}

	v, ok := Evaluate(filledTask(1, 100, 10, now.Add(-90001*time.Millisecond)), ev, s, now)
	assert.True(t, ok)
	assert.True(t, v.Close)
	assert.Equal(t, ReasonTimeout, v.Reason)

	v, _ = Evaluate(filledTask(1, 100, 10, now.Add(-89999*time.Millisecond)), ev, s, now)
	assert.False(t, v.Close)

	s.TimeoutEnabled = false
	v, _ = Evaluate(filledTask(1, 100, 10, now.Add(-time.Hour)), ev, s, now)
	assert.False(t, v.Close)
}

func TestEvaluateReasonPrecedence(t *testing.T) {
	now := time.Now()
	s := Settings{TakeProfitPct: 5, StopLossPct: 5, TimeoutEnabled: true, TimeoutMs: 1}
	task := filledTask(1, 100, 10, now.Add(-time.Minute))

	v, _ := Evaluate(task, RoiEvent{LastPrice: 101, QuantoMultiplier: 1}, s, now)
	assert.Equal(t, ReasonTakeProfit, v.Reason)

	v, _ = Evaluate(task, RoiEvent{LastPrice: 99, QuantoMultiplier: 1}, s, now)
	assert.Equal(t, ReasonStopLoss, v.Reason)
}

func TestEvaluateSkipsDataGaps(t *testing.T) {
	now := time.Now()
	s := Settings{TakeProfitPct: 1, StopLossPct: 1}
	good := RoiEvent{LastPrice: 200, QuantoMultiplier: 1}

	cases := map[string]struct {
		task *queue.OrderTask
		ev   RoiEvent
	}{
		"no position": {task: queue.NewOrderTask("BTC_USDT", exchange.SideLong, 1, 0, now), ev: good},
		"zero price":  {task: filledTask(1, 100, 10, now), ev: RoiEvent{QuantoMultiplier: 1}},
		"zero quanto": {task: filledTask(1, 100, 10, now), ev: RoiEvent{LastPrice: 200}},
		"zero entry":  {task: filledTask(1, 0, 10, now), ev: good},
		"zero lev":    {task: filledTask(1, 100, 0, now), ev: good},
		"zero size":   {task: filledTask(0, 100, 10, now), ev: good},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, ok := Evaluate(tc.task, tc.ev, s, now)
			assert.False(t, ok)
		})
	}

	t.Run("empty mode", func(t *testing.T) {
		task := filledTask(1, 100, 10, now)
		task.ResultPosition.Mode = ""
		_, ok := Evaluate(task, good, s, now)
		assert.False(t, ok)
	})
}
