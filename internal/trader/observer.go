package trader

import (
	"time"

	"gatebot/internal/gateway/exchange"
)

// EventKind names a lifecycle notification emitted to observers.
type EventKind string

const (
	KindEntryAdmitted         EventKind = "entry_admitted"
	KindEntryRejected         EventKind = "entry_rejected"
	KindLeverageFailed        EventKind = "leverage_failed"
	KindEntrySubmitted        EventKind = "entry_submitted"
	KindEntryFailed           EventKind = "entry_failed"
	KindEntryOrphaned         EventKind = "entry_orphaned"
	KindTaskRemoved           EventKind = "task_removed"
	KindPositionClosed        EventKind = "position_closed"
	KindCloseFailed           EventKind = "close_failed"
	KindCloseRetriesExhausted EventKind = "close_retries_exhausted"
)

// Rejection reasons carried by entry_rejected.
const (
	RejectCapacity    = "capacity"
	RejectDuplicate   = "duplicate"
	RejectInvalidSize = "invalid_size"
	RejectRateLimited = "rate_limited"
)

// Close reasons carried by position_closed.
const (
	ReasonTakeProfit = "TP"
	ReasonStopLoss   = "SL"
	ReasonTimeout    = "Timeout"
)

type Event struct {
	Kind      EventKind     `json:"kind"`
	Symbol    string        `json:"symbol"`
	Side      exchange.Side `json:"side,omitempty"`
	Size      float64       `json:"size,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	ReturnPct float64       `json:"return_pct,omitempty"`
	Attempts  int           `json:"attempts,omitempty"`
	Error     string        `json:"error,omitempty"`
	QueueLen  int           `json:"queue_len"`
	At        time.Time     `json:"at"`
}

// Observer receives lifecycle events on the actor goroutine. Implementations
// must not block.
type Observer interface {
	Observe(evt Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) Observe(evt Event) { f(evt) }

// Observers fans an event out to each member.
type Observers []Observer

func (o Observers) Observe(evt Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(evt)
		}
	}
}
