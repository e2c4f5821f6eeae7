package trader

import (
	"encoding/json"
	"math"
	"time"

	"gatebot/internal/gateway/exchange"
	"gatebot/internal/ratewindow"
)

// SignalEvent is one entry recommendation. Exactly one of IsLong/IsShort must
// be set.
type SignalEvent struct {
	Symbol  string  `json:"symbol"`
	IsLong  bool    `json:"is_long"`
	IsShort bool    `json:"is_short"`
	Size    float64 `json:"size"`
}

type SignalBatch []SignalEvent

// RoiEvent is a live price observation for one symbol.
type RoiEvent struct {
	Symbol           string  `json:"symbol"`
	LastPrice        float64 `json:"last_price"`
	QuantoMultiplier float64 `json:"quanto_multiplier"`
}

// RoiBatch is keyed by symbol.
type RoiBatch map[string]RoiEvent

func (b RoiBatch) normalized() RoiBatch {
	out := make(RoiBatch, len(b))
	for key, ev := range b {
		sym := key
		if sym == "" {
			sym = ev.Symbol
		}
		sym = normalizeSymbol(sym)
		if sym == "" {
			continue
		}
		ev.Symbol = sym
		out[sym] = ev
	}
	return out
}

// Settings are the runtime trading knobs. They may be replaced at any time;
// the next evaluation uses the new values. A TakeProfitPct or StopLossPct of 0
// (or below) turns that exit off.
type Settings struct {
	MaxTotalOpenPositions int               `json:"max_total_open_positions"`
	MinEntryDelayMs       int64             `json:"min_entry_delay_ms"`
	MaxEntryDelayMs       int64             `json:"max_entry_delay_ms"`
	TakeProfitPct         float64           `json:"take_profit_pct"`
	StopLossPct           float64           `json:"stop_loss_pct"`
	TimeoutMs             int64             `json:"timeout_ms"`
	TimeoutEnabled        bool              `json:"timeout_enabled"`
	MinSize               float64           `json:"min_size"`
	Leverage              int               `json:"leverage"`
	MaxCloseAttempts      int               `json:"max_close_attempts"`
	RateLimits            ratewindow.Limits `json:"-"`
}

func DefaultSettings() Settings {
	return Settings{
		MaxTotalOpenPositions: 3,
		MinEntryDelayMs:       500,
		MaxEntryDelayMs:       3000,
		TakeProfitPct:         20,
		StopLossPct:           10,
		TimeoutMs:             15 * 60 * 1000,
		MinSize:               1,
		Leverage:              10,
		RateLimits:            ratewindow.Limits{},
	}
}

func (s Settings) normalized() Settings {
	if s.MinEntryDelayMs < 0 {
		s.MinEntryDelayMs = 0
	}
	if s.MaxEntryDelayMs < s.MinEntryDelayMs {
		s.MaxEntryDelayMs = s.MinEntryDelayMs
	}
	if s.MaxTotalOpenPositions < 0 {
		s.MaxTotalOpenPositions = 0
	}
	if s.RateLimits == nil {
		s.RateLimits = ratewindow.Limits{}
	}
	return s
}

// EventType names the messages the actor consumes.
type EventType string

const (
	// EvtSignalBatch carries a SignalBatch.
	EvtSignalBatch EventType = "SIGNAL_BATCH"
	// EvtRoiBatch carries a RoiBatch.
	EvtRoiBatch EventType = "ROI_BATCH"
	// EvtEntryDue fires when a task's entry delay elapses.
	EvtEntryDue EventType = "ENTRY_DUE"
	// EvtGateResult reports the leverage gate outcome for a task.
	EvtGateResult EventType = "GATE_RESULT"
	// EvtOrderResult reports an entry or close submission outcome.
	EvtOrderResult EventType = "ORDER_RESULT"
	// EvtRemoveTask cancels a symbol's task.
	EvtRemoveTask EventType = "REMOVE_TASK"
)

const (
	OrderActionOpen  = "open"
	OrderActionClose = "close"
)

// TaskRef identifies one task instance. A symbol may be reused by a later
// task, so the ID is what timers and results are matched against.
type TaskRef struct {
	TaskID string `json:"task_id"`
	Symbol string `json:"symbol"`
}

type GateResultPayload struct {
	TaskRef
	Leverage int    `json:"leverage"`
	Error    string `json:"error,omitempty"`
}

// OrderResultPayload reports an async executor call back to the actor.
type OrderResultPayload struct {
	TaskRef
	Action    string                     `json:"action"`
	Side      exchange.Side              `json:"side"`
	Size      float64                    `json:"size"`
	Position  *exchange.PositionSnapshot `json:"position,omitempty"`
	Reason    string                     `json:"reason,omitempty"`
	ReturnPct float64                    `json:"return_pct,omitempty"`
	Error     string                     `json:"error,omitempty"`
	Timestamp time.Time                  `json:"timestamp"`
}

type RemoveTaskPayload struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason,omitempty"`
}

// EventEnvelope is the message the actor receives.
type EventEnvelope struct {
	ID        string
	Type      EventType
	Payload   json.RawMessage
	CreatedAt time.Time
	TaskID    string
	Symbol    string

	// ReplyCh receives the handler error for SendSync callers.
	ReplyCh chan error `json:"-"`
}

func validSize(size, minSize float64) bool {
	if math.IsNaN(size) || math.IsInf(size, 0) || size == 0 {
		return false
	}
	return math.Abs(size) >= minSize
}
