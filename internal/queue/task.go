// Package queue holds the per-symbol order tasks. At most one task exists per
// symbol; the queue is owned by a single goroutine and is not locked.
package queue

import (
	"time"

	"github.com/google/uuid"

	"gatebot/internal/gateway/exchange"
)

// State is the lifecycle position of an OrderTask.
type State string

const (
	// StatePending waits for its entry delay to elapse.
	StatePending State = "pending"
	// StateGating waits for the leverage gate.
	StateGating State = "gating"
	// StateSubmitting waits for the entry order result.
	StateSubmitting State = "submitting"
	// StateSubmitted holds a filled position.
	StateSubmitted State = "submitted"
	// StateClosing waits for a close order result.
	StateClosing State = "closing"
)

// Phase collapses the internal states into the externally visible PENDING and
// SUBMITTED phases.
func (s State) Phase() string {
	switch s {
	case StateSubmitted, StateClosing:
		return "SUBMITTED"
	default:
		return "PENDING"
	}
}

type OrderTask struct {
	ID             string                     `json:"id"`
	Symbol         string                     `json:"symbol"`
	Side           exchange.Side              `json:"side"`
	Size           float64                    `json:"size"`
	DelayMs        int64                      `json:"delay_ms"`
	CreatedAt      time.Time                  `json:"created_at"`
	ResultPosition *exchange.PositionSnapshot `json:"result_position,omitempty"`
	State          State                      `json:"state"`
	CloseAttempts  int                        `json:"close_attempts"`
}

func NewOrderTask(symbol string, side exchange.Side, size float64, delayMs int64, now time.Time) *OrderTask {
	return &OrderTask{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Side:      side,
		Size:      size,
		DelayMs:   delayMs,
		CreatedAt: now,
		State:     StatePending,
	}
}

// Filled reports whether the task carries a position eligible for close
// evaluation.
func (t *OrderTask) Filled() bool {
	return t.ResultPosition != nil
}

// Attach records the exchange-reported position and marks the task submitted.
func (t *OrderTask) Attach(snap exchange.PositionSnapshot) {
	cp := snap
	t.ResultPosition = &cp
	t.State = StateSubmitted
}
