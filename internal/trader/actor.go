package trader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"gatebot/internal/gateway/exchange"
	"gatebot/internal/leverage"
	"gatebot/internal/logger"
	"gatebot/internal/queue"
	"gatebot/internal/ratewindow"
)

// ErrNoTask is returned by RemoveTask when the symbol has no task.
var ErrNoTask = errors.New("no task for symbol")

const remoteCallTimeout = 30 * time.Second

// Trader is the single scheduling context for entries and closes.
//
// All queue mutation happens on runLoop. Timers and remote calls run on their
// own goroutines and report back through msgCh, so one symbol's pipeline never
// blocks another's.
type Trader struct {
	executor      exchange.Executor
	gate          *leverage.Gate
	store         EventStore
	observer      Observer
	eventRegistry *HandlerRegistry

	queue    *queue.TaskQueue
	window   *ratewindow.Counter
	settings atomic.Pointer[Settings]
	rnd      *rand.Rand
	nowFn    func() time.Time

	msgCh    chan EventEnvelope
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	tasksSnapshot atomic.Value
}

type Options struct {
	Store    EventStore
	Observer Observer
	Settings Settings
	Now      func() time.Time
	Rand     *rand.Rand
}

func NewTrader(exec exchange.Executor, gate *leverage.Gate, opts Options) *Trader {
	if gate == nil {
		gate = leverage.NewGate(exec)
	}
	eventReg := NewHandlerRegistry()
	eventReg.RegisterDefaultHandlers()

	tr := &Trader{
		executor:      exec,
		gate:          gate,
		store:         opts.Store,
		observer:      opts.Observer,
		eventRegistry: eventReg,
		queue:         queue.New(),
		window:        ratewindow.NewCounter(nil),
		rnd:           opts.Rand,
		nowFn:         opts.Now,
		msgCh:         make(chan EventEnvelope, 100),
		stopCh:        make(chan struct{}),
	}
	if tr.nowFn == nil {
		tr.nowFn = time.Now
	}
	if tr.rnd == nil {
		tr.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if tr.observer == nil {
		tr.observer = ObserverFunc(func(Event) {})
	}
	tr.UpdateSettings(opts.Settings)
	tr.refreshSnapshot()
	return tr
}

func (t *Trader) Start() {
	t.wg.Add(1)
	go t.runLoop()
}

func (t *Trader) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
	t.wg.Wait()
	if t.store != nil {
		if err := t.store.Close(); err != nil {
			logger.Warnf("Trader: event store close failed: %v", err)
		}
	}
}

func (t *Trader) Send(evt EventEnvelope) error {
	select {
	case t.msgCh <- evt:
		return nil
	case <-t.stopCh:
		return fmt.Errorf("trader is stopped")
	}
}

func (t *Trader) SendSync(ctx context.Context, evt EventEnvelope) error {
	if evt.ReplyCh == nil {
		evt.ReplyCh = make(chan error, 1)
	}

	if err := t.Send(evt); err != nil {
		return err
	}

	select {
	case err := <-evt.ReplyCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-t.stopCh:
		return fmt.Errorf("trader stopped during sync call")
	}
}

// OnSignalBatch hands a batch of entry signals to the actor.
func (t *Trader) OnSignalBatch(batch SignalBatch) error {
	if len(batch) == 0 {
		return nil
	}
	return t.post(EvtSignalBatch, "", "", batch)
}

// OnRoiBatch hands a batch of price observations to the actor. Keys are
// normalised to the queue's BASE_QUOTE form.
func (t *Trader) OnRoiBatch(batch RoiBatch) error {
	batch = batch.normalized()
	if len(batch) == 0 {
		return nil
	}
	return t.post(EvtRoiBatch, "", "", batch)
}

// RemoveTask deletes the symbol's task immediately. A pending timer or
// in-flight call for it will find the task gone and do nothing.
func (t *Trader) RemoveTask(ctx context.Context, symbol string) error {
	symbol = normalizeSymbol(symbol)
	payload, err := json.Marshal(RemoveTaskPayload{Symbol: symbol, Reason: "cancelled"})
	if err != nil {
		return err
	}
	return t.SendSync(ctx, t.envelope(EvtRemoveTask, "", symbol, payload))
}

// UpdateSettings replaces the trading knobs and rate limits. Safe to call from
// any goroutine.
func (t *Trader) UpdateSettings(s Settings) {
	s = s.normalized()
	t.settings.Store(&s)
	t.window.SetLimits(s.RateLimits)
}

func (t *Trader) Settings() Settings {
	return *t.settings.Load()
}

// RateWindow exposes the submission counter for display.
func (t *Trader) RateWindow() *ratewindow.Counter {
	return t.window
}

// Tasks returns a copy of the queue as of the last handled event.
func (t *Trader) Tasks() []queue.OrderTask {
	val := t.tasksSnapshot.Load()
	if val == nil {
		return nil
	}
	return val.([]queue.OrderTask)
}

func (t *Trader) refreshSnapshot() {
	t.tasksSnapshot.Store(t.queue.Snapshot())
}

func (t *Trader) post(typ EventType, taskID, symbol string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	return t.Send(t.envelope(typ, taskID, symbol, payload))
}

func (t *Trader) envelope(typ EventType, taskID, symbol string, payload []byte) EventEnvelope {
	return EventEnvelope{
		ID:        uuid.NewString(),
		Type:      typ,
		Payload:   payload,
		CreatedAt: t.nowFn(),
		TaskID:    taskID,
		Symbol:    symbol,
	}
}

func (t *Trader) runLoop() {
	defer t.wg.Done()
	logger.Infof("Trader Actor started")

	for {
		select {
		case evt := <-t.msgCh:
			t.handleEvent(evt)
		case <-t.stopCh:
			logger.Infof("Trader Actor stopping")
			return
		}
	}
}

// handleEvent persists journaled events, dispatches to the registered handler
// and recovers from handler panics so the loop survives a bad event.
func (t *Trader) handleEvent(evt EventEnvelope) {
	var err error
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Trader panic handling event %s: %v", evt.Type, r)
			debug.PrintStack()
			err = fmt.Errorf("panic: %v", r)
		}

		t.refreshSnapshot()

		if evt.ReplyCh != nil {
			evt.ReplyCh <- err
			close(evt.ReplyCh)
		}

		if dur := time.Since(start); dur > 100*time.Millisecond {
			logger.Warnf("Slow event %s took %v", evt.Type, dur)
		}
	}()

	if t.store != nil && shouldPersistEvent(evt.Type) {
		if err := t.store.Append(evt); err != nil {
			logger.Errorf("Failed to persist event %s: %v", evt.Type, err)
		}
	}

	handler, ok := t.eventRegistry.Get(evt.Type)
	if !ok {
		logger.Warnf("No handler registered for event type: %s", evt.Type)
		return
	}

	ctx := NewHandlerContext(t)
	err = handler.Handle(ctx, evt.Payload, evt.ID)
	if err != nil && !errors.Is(err, ErrNoTask) {
		logger.Errorf("Trader failed to handle %s: %v", evt.Type, err)
	}
}

func shouldPersistEvent(typ EventType) bool {
	switch typ {
	case EvtSignalBatch, EvtGateResult, EvtOrderResult, EvtRemoveTask:
		return true
	default:
		return false
	}
}

func (t *Trader) emit(evt Event) {
	if evt.At.IsZero() {
		evt.At = t.nowFn()
	}
	evt.QueueLen = t.queue.Len()
	t.observer.Observe(evt)
}

// goRemote runs fn on its own goroutine with the remote-call timeout.
func (t *Trader) goRemote(fn func(ctx context.Context)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), remoteCallTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
