package trader

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"gatebot/internal/gateway/exchange"
	"gatebot/internal/logger"
	"gatebot/internal/queue"
)

var entryLog = logger.Named("entry")

func (t *Trader) handleSignalBatch(payload json.RawMessage) error {
	var batch SignalBatch
	if err := json.Unmarshal(payload, &batch); err != nil {
		return fmt.Errorf("invalid payload for signal_batch: %w", err)
	}
	s := t.Settings()
	now := t.nowFn()
	for _, sig := range batch {
		t.admit(sig, s, now)
	}
	return nil
}

// admit applies capacity, dedup, size and rate-window checks in that order and,
// if all pass, queues the task with a jittered delay.
func (t *Trader) admit(sig SignalEvent, s Settings, now time.Time) {
	symbol := normalizeSymbol(sig.Symbol)
	if symbol == "" {
		entryLog.Infof("dropping signal with empty symbol")
		return
	}
	side := exchange.SideLong
	if sig.IsShort {
		side = exchange.SideShort
	}

	reject := func(reason string, detail string) {
		entryLog.Infof("%s %s rejected: %s %s", symbol, side, reason, detail)
		t.emit(Event{Kind: KindEntryRejected, Symbol: symbol, Side: side, Size: sig.Size, Reason: reason, Error: detail})
	}

	if t.queue.Len() >= s.MaxTotalOpenPositions {
		reject(RejectCapacity, fmt.Sprintf("%d/%d open", t.queue.Len(), s.MaxTotalOpenPositions))
		return
	}
	if _, exists := t.queue.Get(symbol); exists {
		reject(RejectDuplicate, "")
		return
	}
	if sig.IsLong == sig.IsShort {
		reject(RejectInvalidSize, "exactly one of is_long/is_short must be set")
		return
	}
	if !validSize(sig.Size, s.MinSize) {
		reject(RejectInvalidSize, fmt.Sprintf("size %v below minimum %v", sig.Size, s.MinSize))
		return
	}
	if blocked := t.window.Blocked(now); len(blocked) > 0 {
		names := make([]string, len(blocked))
		for i, h := range blocked {
			names[i] = h.String()
		}
		reject(RejectRateLimited, strings.Join(names, ","))
		return
	}

	delay := t.entryDelay(s)
	task := queue.NewOrderTask(symbol, side, math.Abs(sig.Size), delay, now)
	if err := t.queue.Admit(task, s.MaxTotalOpenPositions); err != nil {
		reject(RejectDuplicate, err.Error())
		return
	}
	entryLog.Infof("%s %s size=%v admitted, entry in %dms", symbol, side, task.Size, delay)
	t.emit(Event{Kind: KindEntryAdmitted, Symbol: symbol, Side: side, Size: task.Size})

	ref := TaskRef{TaskID: task.ID, Symbol: symbol}
	time.AfterFunc(time.Duration(delay)*time.Millisecond, func() {
		if err := t.post(EvtEntryDue, ref.TaskID, ref.Symbol, ref); err != nil {
			entryLog.Debugf("%s entry timer dropped: %v", ref.Symbol, err)
		}
	})
}

// entryDelay draws a uniform integer in [MinEntryDelayMs, MaxEntryDelayMs].
func (t *Trader) entryDelay(s Settings) int64 {
	span := s.MaxEntryDelayMs - s.MinEntryDelayMs
	if span <= 0 {
		return s.MinEntryDelayMs
	}
	return s.MinEntryDelayMs + t.rnd.Int63n(span+1)
}

func (t *Trader) handleEntryDue(payload json.RawMessage) error {
	var ref TaskRef
	if err := json.Unmarshal(payload, &ref); err != nil {
		return fmt.Errorf("invalid payload for entry_due: %w", err)
	}
	task, ok := t.queue.Lookup(ref.Symbol, ref.TaskID)
	if !ok || task.State != queue.StatePending {
		entryLog.Debugf("%s entry timer fired for a removed task, ignoring", ref.Symbol)
		return nil
	}
	task.State = queue.StateGating
	lev := t.Settings().Leverage

	t.goRemote(func(ctx context.Context) {
		err := t.gate.Ensure(ctx, ref.Symbol, lev)
		res := GateResultPayload{TaskRef: ref, Leverage: lev, Error: errString(err)}
		if err := t.post(EvtGateResult, ref.TaskID, ref.Symbol, res); err != nil {
			entryLog.Warnf("%s send gate-result failed: %v", ref.Symbol, err)
		}
	})
	return nil
}

func (t *Trader) handleGateResult(payload json.RawMessage) error {
	var res GateResultPayload
	if err := json.Unmarshal(payload, &res); err != nil {
		return fmt.Errorf("invalid payload for gate_result: %w", err)
	}
	task, ok := t.queue.Lookup(res.Symbol, res.TaskID)
	if !ok {
		entryLog.Debugf("%s gate result for a removed task, ignoring", res.Symbol)
		return nil
	}
	if res.Error != "" {
		t.queue.Remove(task.Symbol)
		entryLog.Warnf("%s leverage %dx not confirmed, task dropped: %s", task.Symbol, res.Leverage, res.Error)
		t.emit(Event{Kind: KindLeverageFailed, Symbol: task.Symbol, Side: task.Side, Size: task.Size, Error: res.Error})
		return nil
	}

	task.State = queue.StateSubmitting
	ref := res.TaskRef
	side, size := task.Side, task.Size
	t.goRemote(func(ctx context.Context) {
		snap, err := t.executor.SubmitEntry(ctx, ref.Symbol, side, size)
		out := OrderResultPayload{
			TaskRef:   ref,
			Action:    OrderActionOpen,
			Side:      side,
			Size:      size,
			Error:     errString(err),
			Timestamp: t.nowFn(),
		}
		if err == nil {
			out.Position = &snap
		}
		if err := t.post(EvtOrderResult, ref.TaskID, ref.Symbol, out); err != nil {
			entryLog.Warnf("%s send order-result failed: %v", ref.Symbol, err)
		}
	})
	return nil
}

func (t *Trader) handleEntryResult(res OrderResultPayload) error {
	task, ok := t.queue.Lookup(res.Symbol, res.TaskID)
	if !ok {
		if res.Error == "" {
			t.window.Record(res.Timestamp)
			entryLog.Warnf("%s %s filled after its task was cancelled; position is unmanaged", res.Symbol, res.Side)
			t.emit(Event{Kind: KindEntryOrphaned, Symbol: res.Symbol, Side: res.Side, Size: res.Size})
		}
		return nil
	}
	if res.Error == "" && res.Position == nil {
		res.Error = "executor returned no position"
	}
	if res.Error != "" {
		t.queue.Remove(task.Symbol)
		entryLog.Errorf("%s entry failed side=%s size=%v: %s", task.Symbol, task.Side, task.Size, res.Error)
		t.emit(Event{Kind: KindEntryFailed, Symbol: task.Symbol, Side: task.Side, Size: task.Size, Error: res.Error})
		return nil
	}
	t.window.Record(res.Timestamp)
	pos := *res.Position
	if pos.Leverage == 0 {
		if lev, ok := t.gate.Confirmed(task.Symbol); ok {
			pos.Leverage = float64(lev)
		}
	}
	task.Attach(pos)
	entryLog.Infof("%s %s submitted size=%v entry=%v lev=%v", task.Symbol, task.Side, pos.Size, pos.EntryPrice, pos.Leverage)
	t.emit(Event{Kind: KindEntrySubmitted, Symbol: task.Symbol, Side: task.Side, Size: task.Size})
	return nil
}
