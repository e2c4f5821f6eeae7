// Package leverage confirms per-symbol leverage on the exchange before a
// symbol's first order.
package leverage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"gatebot/internal/gateway/exchange"
	"gatebot/internal/logger"
)

// ErrLegMismatch is returned when either leg reports a leverage other than the
// requested one.
var ErrLegMismatch = errors.New("leverage leg mismatch")

var log = logger.Named("leverage")

// Changer is the subset of exchange.Executor the gate needs.
type Changer interface {
	ChangeLeverage(ctx context.Context, symbol string, leverage string) (exchange.LeverageResult, error)
}

// Gate caches symbols whose leverage was confirmed. A confirmed symbol stays
// confirmed until the process restarts; failures are never cached.
type Gate struct {
	changer Changer

	mu        sync.Mutex
	confirmed map[string]int

	group singleflight.Group
}

func NewGate(changer Changer) *Gate {
	return &Gate{
		changer:   changer,
		confirmed: make(map[string]int),
	}
}

// Ensure returns nil once symbol has been confirmed at some leverage. The first
// successful call issues exactly one remote request; concurrent callers for the
// same symbol share it.
func (g *Gate) Ensure(ctx context.Context, symbol string, lev int) error {
	if lev <= 0 {
		return fmt.Errorf("leverage must be positive, got %d", lev)
	}
	if cached, ok := g.Confirmed(symbol); ok {
		if cached != lev {
			log.Debugf("%s cached at %dx, requested %dx; not re-verified", symbol, cached, lev)
		}
		return nil
	}

	_, err, _ := g.group.Do(symbol, func() (interface{}, error) {
		if _, ok := g.Confirmed(symbol); ok {
			return nil, nil
		}
		want := strconv.Itoa(lev)
		res, err := g.changer.ChangeLeverage(ctx, symbol, want)
		if err != nil {
			return nil, fmt.Errorf("change leverage %s: %w", symbol, err)
		}
		if !legMatches(res.Long, lev) || !legMatches(res.Short, lev) {
			return nil, fmt.Errorf("%w: %s want %s got long=%q short=%q", ErrLegMismatch, symbol, want, res.Long, res.Short)
		}
		g.mu.Lock()
		g.confirmed[symbol] = lev
		g.mu.Unlock()
		log.Infof("%s leverage confirmed at %dx", symbol, lev)
		return nil, nil
	})
	return err
}

// Confirmed returns the leverage a symbol was confirmed at.
func (g *Gate) Confirmed(symbol string) (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	lev, ok := g.confirmed[symbol]
	return lev, ok
}

// legMatches accepts "10", "10.0" and similar renderings of the same value.
func legMatches(reported string, want int) bool {
	reported = strings.TrimSpace(reported)
	if reported == "" {
		return false
	}
	v, err := strconv.ParseFloat(reported, 64)
	if err != nil {
		return false
	}
	return v == float64(want)
}
