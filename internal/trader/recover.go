package trader

import (
	"encoding/json"
	"fmt"

	"gatebot/internal/logger"
	"gatebot/internal/ratewindow"
)

// Recover replays journaled entry fills from the last hour into the rate
// window so a restart does not reset the submission budget. It must run
// before Start.
func (t *Trader) Recover() error {
	if t.store == nil {
		return nil
	}
	since := t.nowFn().Add(-ratewindow.Hour.Duration())
	events, err := t.store.LoadSince(since)
	if err != nil {
		return fmt.Errorf("load journal: %w", err)
	}
	replayed := 0
	for _, evt := range events {
		if evt.Type != EvtOrderResult {
			continue
		}
		var res OrderResultPayload
		if err := json.Unmarshal(evt.Payload, &res); err != nil {
			logger.Warnf("Trader: skipping unreadable journal entry %s: %v", evt.ID, err)
			continue
		}
		if res.Action != OrderActionOpen || res.Error != "" {
			continue
		}
		ts := res.Timestamp
		if ts.IsZero() {
			ts = evt.CreatedAt
		}
		if ts.Before(since) {
			continue
		}
		t.window.Record(ts)
		replayed++
	}
	logger.Infof("Trader: recovery replayed %d entry fills into the rate window", replayed)
	return nil
}
