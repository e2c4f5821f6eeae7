package trader

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"gatebot/internal/logger"
	"gatebot/internal/queue"
)

var monitorLog = logger.Named("monitor")

func (t *Trader) handleRoiBatch(payload json.RawMessage) error {
	var batch RoiBatch
	if err := json.Unmarshal(payload, &batch); err != nil {
		return fmt.Errorf("invalid payload for roi_batch: %w", err)
	}
	s := t.Settings()
	now := t.nowFn()
	for _, task := range t.queue.Filled() {
		if task.State != queue.StateSubmitted {
			continue
		}
		ev, ok := batch[task.Symbol]
		if !ok {
			continue
		}
		verdict, ok := Evaluate(task, ev, s, now)
		if !ok {
			monitorLog.Debugf("%s skipped: incomplete position or price data", task.Symbol)
			continue
		}
		if !verdict.Close {
			continue
		}
		ret, _ := verdict.ROI.ReturnPercent.Round(4).Float64()
		t.dispatchClose(task, verdict.Reason, ret)
	}
	return nil
}

func (t *Trader) dispatchClose(task *queue.OrderTask, reason string, ret float64) {
	task.State = queue.StateClosing
	ref := TaskRef{TaskID: task.ID, Symbol: task.Symbol}
	side := task.Side
	size := math.Abs(task.ResultPosition.Size)
	monitorLog.Infof("%s %s closing on %s at %.2f%%", task.Symbol, side, reason, ret)

	t.goRemote(func(ctx context.Context) {
		err := t.executor.SubmitClose(ctx, ref.Symbol, side, size)
		out := OrderResultPayload{
			TaskRef:   ref,
			Action:    OrderActionClose,
			Side:      side,
			Size:      size,
			Reason:    reason,
			ReturnPct: ret,
			Error:     errString(err),
			Timestamp: t.nowFn(),
		}
		if err := t.post(EvtOrderResult, ref.TaskID, ref.Symbol, out); err != nil {
			monitorLog.Warnf("%s send close-result failed: %v", ref.Symbol, err)
		}
	})
}

func (t *Trader) handleOrderResult(payload json.RawMessage) error {
	var res OrderResultPayload
	if err := json.Unmarshal(payload, &res); err != nil {
		return fmt.Errorf("invalid payload for order_result: %w", err)
	}
	switch res.Action {
	case OrderActionOpen:
		return t.handleEntryResult(res)
	case OrderActionClose:
		return t.handleCloseResult(res)
	default:
		return fmt.Errorf("unknown order action %q", res.Action)
	}
}

// handleCloseResult frees the symbol on success. On failure the task goes back
// to submitted and the next ROI batch retries it.
func (t *Trader) handleCloseResult(res OrderResultPayload) error {
	task, ok := t.queue.Lookup(res.Symbol, res.TaskID)
	if !ok {
		if res.Error == "" {
			monitorLog.Infof("%s closed after its task was cancelled", res.Symbol)
		}
		return nil
	}
	if res.Error != "" {
		task.State = queue.StateSubmitted
		task.CloseAttempts++
		monitorLog.Errorf("%s close failed (attempt %d) side=%s size=%v: %s", task.Symbol, task.CloseAttempts, res.Side, res.Size, res.Error)
		t.emit(Event{Kind: KindCloseFailed, Symbol: task.Symbol, Side: task.Side, Size: res.Size, Reason: res.Reason, Attempts: task.CloseAttempts, Error: res.Error})
		if limit := t.Settings().MaxCloseAttempts; limit > 0 && task.CloseAttempts == limit {
			monitorLog.Errorf("%s close attempts reached %d, still retrying", task.Symbol, limit)
			t.emit(Event{Kind: KindCloseRetriesExhausted, Symbol: task.Symbol, Side: task.Side, Size: res.Size, Attempts: task.CloseAttempts, Error: res.Error})
		}
		return nil
	}

	t.queue.Remove(task.Symbol)
	monitorLog.Infof("%s %s closed: %s at %.2f%%", task.Symbol, task.Side, res.Reason, res.ReturnPct)
	t.emit(Event{Kind: KindPositionClosed, Symbol: task.Symbol, Side: task.Side, Size: res.Size, Reason: res.Reason, ReturnPct: res.ReturnPct, Attempts: task.CloseAttempts})
	return nil
}

func (t *Trader) handleRemoveTask(payload json.RawMessage) error {
	var p RemoveTaskPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid payload for remove_task: %w", err)
	}
	task, ok := t.queue.Remove(p.Symbol)
	if !ok {
		return fmt.Errorf("%s: %w", p.Symbol, ErrNoTask)
	}
	logger.Infof("Trader: removed %s task %s in state %s (%s)", task.Symbol, task.ID, task.State, p.Reason)
	t.emit(Event{Kind: KindTaskRemoved, Symbol: task.Symbol, Side: task.Side, Size: task.Size, Reason: p.Reason})
	return nil
}
