package notifier

import (
	"context"
	"time"

	"gatebot/internal/logger"
	"gatebot/internal/trader"

	"golang.org/x/time/rate"
)

const alertQueueSize = 64

var notifyLog = logger.Named("notify")

// Alerts turns trader lifecycle events into chat messages. Observe never
// blocks the trader: messages are queued and sent by Run at most once per
// interval. When the queue is full new alerts are dropped.
type Alerts struct {
	out     TextNotifier
	limiter *rate.Limiter
	queue   chan Alert
}

var _ trader.Observer = (*Alerts)(nil)

func NewAlerts(out TextNotifier, minInterval time.Duration) *Alerts {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &Alerts{
		out:     out,
		limiter: rate.NewLimiter(limit, 1),
		queue:   make(chan Alert, alertQueueSize),
	}
}

func (a *Alerts) Observe(evt trader.Event) {
	msg, ok := renderEvent(evt)
	if !ok {
		return
	}
	a.Post(msg)
}

// Post queues an arbitrary message.
func (a *Alerts) Post(msg Alert) {
	select {
	case a.queue <- msg:
	default:
		notifyLog.Warnf("alert queue full, drop %q", msg.Title)
	}
}

func (a *Alerts) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-a.queue:
			if err := a.limiter.Wait(ctx); err != nil {
				return nil
			}
			if err := a.out.SendText(ctx, msg.Markdown()); err != nil {
				notifyLog.Warnf("send alert failed: %v", err)
			}
		}
	}
}

// renderEvent picks the events worth a chat message: failures and closes.
func renderEvent(evt trader.Event) (Alert, bool) {
	msg := eventAlert(evt)
	switch evt.Kind {
	case trader.KindPositionClosed:
		msg.Icon, msg.Title = "✅", "平仓 "+evt.Reason
		msg.Add("roi", "%.2f%%", evt.ReturnPct)
	case trader.KindEntryFailed:
		msg.Icon, msg.Title = "❌", "开仓失败"
	case trader.KindLeverageFailed:
		msg.Icon, msg.Title = "⚠️", "杠杆设置失败"
	case trader.KindCloseFailed:
		msg.Icon, msg.Title = "⚠️", "平仓失败"
		msg.Add("attempts", "%d", evt.Attempts)
	case trader.KindCloseRetriesExhausted:
		msg.Icon, msg.Title = "🚨", "平仓重试次数耗尽"
		msg.Add("attempts", "%d", evt.Attempts)
	case trader.KindEntryOrphaned:
		msg.Icon, msg.Title = "🚨", "未跟踪的成交"
	default:
		return Alert{}, false
	}
	return msg, true
}
