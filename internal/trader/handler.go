package trader

// EventHandler processes one EventType on the actor goroutine. Handlers may
// mutate the queue freely; anything that blocks must be moved to goRemote.
type EventHandler interface {
	Type() EventType

	// Handle receives the raw envelope payload. traceID is the envelope ID.
	Handle(ctx *HandlerContext, payload []byte, traceID string) error
}

// HandlerContext gives handlers access to the Trader that owns the loop.
type HandlerContext struct {
	trader *Trader
}

func NewHandlerContext(t *Trader) *HandlerContext {
	return &HandlerContext{trader: t}
}

func (c *HandlerContext) Trader() *Trader {
	return c.trader
}
