package app

import (
	"fmt"

	brcfg "gatebot/internal/config"
	"gatebot/internal/gateway/binance"
	"gatebot/internal/gateway/browser"
	"gatebot/internal/gateway/exchange"
	"gatebot/internal/gateway/gate"
	"gatebot/internal/pkg/circuit"
)

// buildExecutor picks the backend named by exchange.driver and wraps it with
// the circuit breaker. The returned cleanup releases backend resources.
func buildExecutor(cfg *brcfg.Config) (exchange.Executor, func(), error) {
	ex := cfg.Exchange
	var (
		inner   exchange.Executor
		cleanup = func() {}
	)
	switch ex.Driver {
	case brcfg.DriverGate:
		e, err := gate.NewExecutor(gateConfig(cfg))
		if err != nil {
			return nil, nil, err
		}
		inner = e
	case brcfg.DriverBrowser:
		session := browser.NewSession(browser.SessionConfig{
			URL:         ex.Browser.URL,
			UserDataDir: ex.Browser.UserDataDir,
			ExecPath:    ex.Browser.ExecPath,
			Headless:    ex.Browser.Headless,
			Proxy:       ex.Proxy,
		})
		inner = browser.NewExecutor(session, "")
		cleanup = session.Close
	case brcfg.DriverBinance:
		e, err := binance.NewExecutor(binance.Config{
			APIKey:      ex.APIKey,
			APISecret:   ex.APISecret,
			RESTBaseURL: ex.RESTBaseURL,
			HTTPTimeout: ex.HTTPTimeout(),
			Testnet:     ex.Testnet,
			ProxyURL:    ex.Proxy,
		})
		if err != nil {
			return nil, nil, err
		}
		inner = e
	default:
		return nil, nil, fmt.Errorf("unsupported exchange driver: %s", ex.Driver)
	}
	if cfg.Circuit.Threshold <= 0 {
		return inner, cleanup, nil
	}
	breaker := circuit.NewCircuitBreaker(inner.Name(), cfg.Circuit.Threshold, cfg.Circuit.Cooldown())
	breaker.SetStateChangeHandler(func(name string, from, to circuit.State) {
		appLog.Warnf("executor %s circuit %s -> %s", name, from, to)
	})
	return exchange.NewGuarded(inner, breaker), cleanup, nil
}

func gateConfig(cfg *brcfg.Config) gate.Config {
	ex := cfg.Exchange
	rest, ws := ex.RESTBaseURL, ex.WSURL
	if ex.Driver != brcfg.DriverGate {
		// 非 gate 执行器时行情仍走 gate 公共接口
		rest, ws = "", ""
	}
	return gate.Config{
		APIKey:        ex.APIKey,
		APISecret:     ex.APISecret,
		RESTBaseURL:   rest,
		WSURL:         ws,
		HTTPTimeout:   ex.HTTPTimeout(),
		ProxyURL:      ex.Proxy,
		Symbols:       cfg.Market.Symbols,
		BatchInterval: cfg.Market.BatchInterval(),
	}
}
