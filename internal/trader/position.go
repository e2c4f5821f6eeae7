package trader

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gatebot/internal/gateway/exchange"
	"gatebot/internal/queue"
)

var hundred = decimal.NewFromInt(100)

// ROI is the return of an open position at a given price. Size is signed, so a
// short position gains when the price falls.
type ROI struct {
	InitialMargin decimal.Decimal
	UnrealizedPnL decimal.Decimal
	ReturnPercent decimal.Decimal
}

// ComputeROI evaluates
//
//	initialMargin = entryPrice * |size| * quanto / leverage
//	unrealizedPnL = (lastPrice - entryPrice) * size * quanto
//	returnPercent = unrealizedPnL / initialMargin * 100
//
// ReturnPercent is derived as pnl * leverage * 100 / notional so the only
// rounding step is the final division; InitialMargin is for display.
// Callers must ensure leverage, entryPrice, size and quanto are non-zero.
func ComputeROI(pos exchange.PositionSnapshot, lastPrice, quanto float64) ROI {
	entry := decimal.NewFromFloat(pos.EntryPrice)
	size := decimal.NewFromFloat(pos.Size)
	q := decimal.NewFromFloat(quanto)
	lev := decimal.NewFromFloat(pos.Leverage)
	last := decimal.NewFromFloat(lastPrice)

	notional := entry.Mul(size.Abs()).Mul(q)
	pnl := last.Sub(entry).Mul(size).Mul(q)
	return ROI{
		InitialMargin: notional.Div(lev),
		UnrealizedPnL: pnl,
		ReturnPercent: pnl.Mul(lev).Mul(hundred).Div(notional),
	}
}

// Verdict is the outcome of evaluating one filled task.
type Verdict struct {
	Close  bool
	Reason string
	ROI    ROI
}

// evaluable reports whether every input to the ROI formula is present.
func evaluable(pos *exchange.PositionSnapshot, ev RoiEvent) bool {
	if pos == nil {
		return false
	}
	return strings.TrimSpace(pos.Mode) != "" &&
		pos.Size != 0 &&
		pos.Leverage != 0 &&
		pos.EntryPrice != 0 &&
		ev.LastPrice != 0 &&
		ev.QuantoMultiplier != 0
}

// Evaluate decides whether task should be closed at ev. ok is false when the
// inputs have a gap and the task must be skipped this round. Any of TP, SL or
// timeout qualifies; the reported reason follows TP > SL > Timeout.
// A TakeProfitPct or StopLossPct <= 0 disables that condition.
func Evaluate(task *queue.OrderTask, ev RoiEvent, s Settings, now time.Time) (v Verdict, ok bool) {
	if !evaluable(task.ResultPosition, ev) {
		return Verdict{}, false
	}
	roi := ComputeROI(*task.ResultPosition, ev.LastPrice, ev.QuantoMultiplier)
	v = Verdict{ROI: roi}

	ret := roi.ReturnPercent
	switch {
	case s.TakeProfitPct > 0 && ret.GreaterThanOrEqual(decimal.NewFromFloat(s.TakeProfitPct)):
		v.Close, v.Reason = true, ReasonTakeProfit
	case s.StopLossPct > 0 && ret.LessThanOrEqual(decimal.NewFromFloat(s.StopLossPct).Neg()):
		v.Close, v.Reason = true, ReasonStopLoss
	case s.TimeoutEnabled && now.Sub(task.CreatedAt) >= time.Duration(s.TimeoutMs)*time.Millisecond:
		v.Close, v.Reason = true, ReasonTimeout
	}
	return v, true
}
