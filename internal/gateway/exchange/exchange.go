package exchange

import "context"

// Executor submits orders and leverage changes to an exchange account.
// Implementations may block on network I/O; callers pass a bounded context.
type Executor interface {
	Name() string

	// SubmitEntry opens a position and returns the exchange-reported snapshot.
	SubmitEntry(ctx context.Context, symbol string, side Side, size float64) (PositionSnapshot, error)

	// ChangeLeverage sets leverage on both legs of a dual-mode position.
	ChangeLeverage(ctx context.Context, symbol string, leverage string) (LeverageResult, error)

	// SubmitClose reduces a position of side by size (absolute).
	SubmitClose(ctx context.Context, symbol string, side Side, size float64) error
}

// PriceFeed pushes per-symbol price batches. Implementations own their
// subscription lifecycle and stop when ctx is cancelled.
type PriceFeed interface {
	Run(ctx context.Context) error
}
