package app

import (
	brcfg "gatebot/internal/config"
	"gatebot/internal/config/loader"
	"gatebot/internal/gateway/gate"
	"gatebot/internal/trader"
)

// traderSettings merges the hot-reloadable knobs with the static trading
// section of the main config.
func traderSettings(rt loader.RuntimeSettings, tc brcfg.TradingConfig) (trader.Settings, error) {
	limits, err := rt.Limits()
	if err != nil {
		return trader.Settings{}, err
	}
	return trader.Settings{
		MaxTotalOpenPositions: rt.MaxTotalOpenPositions,
		MinEntryDelayMs:       rt.MinEntryDelayMs,
		MaxEntryDelayMs:       rt.MaxEntryDelayMs,
		TakeProfitPct:         rt.TakeProfitPct,
		StopLossPct:           rt.StopLossPct,
		TimeoutMs:             rt.TimeoutMs,
		TimeoutEnabled:        rt.TimeoutEnabled,
		MinSize:               tc.MinSize,
		Leverage:              tc.Leverage,
		MaxCloseAttempts:      tc.MaxCloseAttempts,
		RateLimits:            limits,
	}, nil
}

// roiBatch converts a feed batch. Binance sizes are in base units, so the
// Gate contract multiplier is replaced by 1 for that driver.
func roiBatch(updates []gate.PriceUpdate, driver string) trader.RoiBatch {
	batch := make(trader.RoiBatch, len(updates))
	for _, u := range updates {
		quanto := u.QuantoMultiplier
		if driver == brcfg.DriverBinance {
			quanto = 1
		}
		batch[u.Symbol] = trader.RoiEvent{
			Symbol:           u.Symbol,
			LastPrice:        u.LastPrice,
			QuantoMultiplier: quanto,
		}
	}
	return batch
}
