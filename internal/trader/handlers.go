package trader

type SignalBatchHandler struct{}

func (h *SignalBatchHandler) Type() EventType { return EvtSignalBatch }

func (h *SignalBatchHandler) Handle(ctx *HandlerContext, payload []byte, traceID string) error {
	return ctx.Trader().handleSignalBatch(payload)
}

type EntryDueHandler struct{}

func (h *EntryDueHandler) Type() EventType { return EvtEntryDue }

func (h *EntryDueHandler) Handle(ctx *HandlerContext, payload []byte, traceID string) error {
	return ctx.Trader().handleEntryDue(payload)
}

type GateResultHandler struct{}

func (h *GateResultHandler) Type() EventType { return EvtGateResult }

func (h *GateResultHandler) Handle(ctx *HandlerContext, payload []byte, traceID string) error {
	return ctx.Trader().handleGateResult(payload)
}

type RoiBatchHandler struct{}

func (h *RoiBatchHandler) Type() EventType { return EvtRoiBatch }

func (h *RoiBatchHandler) Handle(ctx *HandlerContext, payload []byte, traceID string) error {
	return ctx.Trader().handleRoiBatch(payload)
}

type OrderResultHandler struct{}

func (h *OrderResultHandler) Type() EventType { return EvtOrderResult }

func (h *OrderResultHandler) Handle(ctx *HandlerContext, payload []byte, traceID string) error {
	return ctx.Trader().handleOrderResult(payload)
}

type RemoveTaskHandler struct{}

func (h *RemoveTaskHandler) Type() EventType { return EvtRemoveTask }

func (h *RemoveTaskHandler) Handle(ctx *HandlerContext, payload []byte, traceID string) error {
	return ctx.Trader().handleRemoveTask(payload)
}
