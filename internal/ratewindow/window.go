// Package ratewindow counts admitted order submissions over six fixed
// sliding horizons and reports which horizons have reached their limit.
package ratewindow

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type Horizon time.Duration

const (
	Second         Horizon = Horizon(time.Second)
	Minute         Horizon = Horizon(time.Minute)
	FiveMinutes    Horizon = Horizon(5 * time.Minute)
	FifteenMinutes Horizon = Horizon(15 * time.Minute)
	ThirtyMinutes  Horizon = Horizon(30 * time.Minute)
	Hour           Horizon = Horizon(time.Hour)
)

// Horizons lists every tracked horizon, shortest first.
var Horizons = []Horizon{Second, Minute, FiveMinutes, FifteenMinutes, ThirtyMinutes, Hour}

var horizonNames = map[Horizon]string{
	Second:         "1s",
	Minute:         "1m",
	FiveMinutes:    "5m",
	FifteenMinutes: "15m",
	ThirtyMinutes:  "30m",
	Hour:           "1h",
}

func (h Horizon) String() string {
	if name, ok := horizonNames[h]; ok {
		return name
	}
	return time.Duration(h).String()
}

func (h Horizon) Duration() time.Duration { return time.Duration(h) }

// ParseHorizon maps "1s", "1m", "5m", "15m", "30m" and "1h" to a Horizon.
func ParseHorizon(s string) (Horizon, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for h, name := range horizonNames {
		if name == key {
			return h, nil
		}
	}
	return 0, fmt.Errorf("unknown rate window horizon %q", s)
}

// Limits holds the configured maximum per horizon; 0 or absent means unlimited.
type Limits map[Horizon]int

// ParseLimits converts a config map keyed by horizon name.
func ParseLimits(raw map[string]int) (Limits, error) {
	out := make(Limits, len(raw))
	for k, v := range raw {
		h, err := ParseHorizon(k)
		if err != nil {
			return nil, err
		}
		if v < 0 {
			return nil, fmt.Errorf("rate window %s max must be >= 0", k)
		}
		out[h] = v
	}
	return out, nil
}

// Names renders limits keyed by horizon name.
func (l Limits) Names() map[string]int {
	out := make(map[string]int, len(Horizons))
	for _, h := range Horizons {
		out[h.String()] = l[h]
	}
	return out
}

// Counter records event timestamps and answers per-horizon counts. The
// result of Counts(now) depends only on the recorded sequence and now, so
// concurrent readers see the same numbers whatever order they query in.
// Record has a single logical writer; readers may call from any goroutine.
type Counter struct {
	mu     sync.RWMutex
	events []int64 // unix nanos, ascending
	limits Limits
}

func NewCounter(limits Limits) *Counter {
	c := &Counter{}
	c.SetLimits(limits)
	return c
}

// SetLimits replaces the thresholds; they apply from the next evaluation.
func (c *Counter) SetLimits(limits Limits) {
	cp := make(Limits, len(limits))
	for h, v := range limits {
		if v > 0 {
			cp[h] = v
		}
	}
	c.mu.Lock()
	c.limits = cp
	c.mu.Unlock()
}

func (c *Counter) Limits() Limits {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := make(Limits, len(c.limits))
	for h, v := range c.limits {
		cp[h] = v
	}
	return cp
}

// Record marks one admitted submission. Events older than the largest
// horizon relative to the newest recorded event are dropped here.
func (c *Counter) Record(ts time.Time) {
	n := ts.UnixNano()
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := sort.Search(len(c.events), func(i int) bool { return c.events[i] > n })
	c.events = append(c.events, 0)
	copy(c.events[idx+1:], c.events[idx:])
	c.events[idx] = n

	newest := c.events[len(c.events)-1]
	cutoff := newest - int64(Hour)
	drop := sort.Search(len(c.events), func(i int) bool { return c.events[i] >= cutoff })
	if drop > 0 {
		c.events = append(c.events[:0], c.events[drop:]...)
	}
}

// Counts returns, per horizon, the events with 0 <= now-ts <= horizon.
func (c *Counter) Counts(now time.Time) map[Horizon]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.countsLocked(now.UnixNano())
}

func (c *Counter) countsLocked(now int64) map[Horizon]int {
	out := make(map[Horizon]int, len(Horizons))
	upper := sort.Search(len(c.events), func(i int) bool { return c.events[i] > now })
	for _, h := range Horizons {
		from := now - int64(h)
		lower := sort.Search(upper, func(i int) bool { return c.events[i] >= from })
		out[h] = upper - lower
	}
	return out
}

// Blocked returns the horizons whose max is set and already reached.
func (c *Counter) Blocked(now time.Time) []Horizon {
	c.mu.RLock()
	defer c.mu.RUnlock()
	counts := c.countsLocked(now.UnixNano())
	var out []Horizon
	for _, h := range Horizons {
		limit := c.limits[h]
		if limit > 0 && counts[h] >= limit {
			out = append(out, h)
		}
	}
	return out
}

// WindowStatus is a display row for one horizon.
type WindowStatus struct {
	Horizon string `json:"horizon"`
	Count   int    `json:"count"`
	Max     int    `json:"max"`
	Blocked bool   `json:"blocked"`
}

// Status reports count, max and blocked flag for every horizon.
func (c *Counter) Status(now time.Time) []WindowStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	counts := c.countsLocked(now.UnixNano())
	out := make([]WindowStatus, 0, len(Horizons))
	for _, h := range Horizons {
		limit := c.limits[h]
		out = append(out, WindowStatus{
			Horizon: h.String(),
			Count:   counts[h],
			Max:     limit,
			Blocked: limit > 0 && counts[h] >= limit,
		})
	}
	return out
}

// Len is the number of retained events.
func (c *Counter) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}
