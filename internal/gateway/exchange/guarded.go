package exchange

import (
	"context"
	"errors"
	"fmt"

	"gatebot/internal/pkg/circuit"
)

// RejectedError marks an order the exchange refused on business grounds
// (insufficient margin, invalid size). It does not count as a transport fault.
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Code == "" {
		return "order rejected: " + e.Message
	}
	return fmt.Sprintf("order rejected (%s): %s", e.Code, e.Message)
}

func IsRejected(err error) bool {
	var rej *RejectedError
	return errors.As(err, &rej)
}

// Guarded wraps an Executor with a circuit breaker. Repeated transport faults
// make subsequent calls fail fast with circuit.ErrOpen until the cooldown ends.
type Guarded struct {
	inner   Executor
	breaker *circuit.CircuitBreaker
}

func NewGuarded(inner Executor, breaker *circuit.CircuitBreaker) *Guarded {
	return &Guarded{inner: inner, breaker: breaker}
}

func (g *Guarded) Name() string { return g.inner.Name() }

func (g *Guarded) SubmitEntry(ctx context.Context, symbol string, side Side, size float64) (PositionSnapshot, error) {
	var snap PositionSnapshot
	err := g.run(ctx, func() error {
		var err error
		snap, err = g.inner.SubmitEntry(ctx, symbol, side, size)
		return err
	})
	return snap, err
}

func (g *Guarded) ChangeLeverage(ctx context.Context, symbol string, leverage string) (LeverageResult, error) {
	var res LeverageResult
	err := g.run(ctx, func() error {
		var err error
		res, err = g.inner.ChangeLeverage(ctx, symbol, leverage)
		return err
	})
	return res, err
}

func (g *Guarded) SubmitClose(ctx context.Context, symbol string, side Side, size float64) error {
	return g.run(ctx, func() error {
		return g.inner.SubmitClose(ctx, symbol, side, size)
	})
}

func (g *Guarded) run(ctx context.Context, fn func() error) error {
	if g.breaker == nil {
		return fn()
	}
	err := g.breaker.Execute(fn, func(err error) bool {
		if IsRejected(err) || errors.Is(err, context.Canceled) {
			return false
		}
		return ctx.Err() == nil || errors.Is(err, context.DeadlineExceeded)
	})
	if errors.Is(err, circuit.ErrOpen) {
		return fmt.Errorf("%s: %w", g.inner.Name(), err)
	}
	return err
}
