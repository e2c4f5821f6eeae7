package config

import (
	"strings"
)

// 默认值常量
const (
	defaultAppEnv           = "dev"
	defaultAppLogLevel      = "info"
	defaultAppLogFormat     = "text"
	defaultAppHTTPAddr      = ":9991"
	defaultAppLogPath       = "/data/logs/gatebot.log"
	defaultExchangeDriver   = DriverGate
	defaultGateREST         = "https://api.gateio.ws/api/v4"
	defaultGateWS           = "wss://fx-ws.gateio.ws/v4/ws/usdt"
	defaultHTTPTimeout      = 15
	defaultBrowserURL       = "https://www.gate.io/futures/USDT/BTC_USDT"
	defaultBrowserDataDir   = "/data/browser"
	defaultBatchIntervalMs  = 1000
	defaultTradingLeverage  = 10
	defaultTradingMinSize   = 1
	defaultSettingsPath     = "configs/settings.yaml"
	defaultJournalPath      = "/data/db/gatebot.db"
	defaultHeartbeatTickMs  = 1000
	defaultHeartbeatGraceMs = 300
	defaultTelegramInterval = 2
	defaultCircuitThreshold = 5
	defaultCircuitCooldown  = 30
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Exchange.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Trading.applyDefaults(keys)
	c.Heartbeat.applyDefaults(keys)
	c.Notify.Telegram.applyDefaults(keys)
	c.Circuit.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (e *ExchangeConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	e.Driver = strings.ToLower(strings.TrimSpace(e.Driver))
	applyFieldDefaults(keys,
		stringFieldDefault("exchange.driver", &e.Driver, defaultExchangeDriver),
		intFieldDefault("exchange.http_timeout_seconds", &e.HTTPTimeoutSeconds, defaultHTTPTimeout),
		stringFieldDefault("exchange.browser.url", &e.Browser.URL, defaultBrowserURL),
		stringFieldDefault("exchange.browser.user_data_dir", &e.Browser.UserDataDir, defaultBrowserDataDir),
	)
	if e.Driver == DriverGate {
		applyFieldDefaults(keys,
			stringFieldDefault("exchange.rest_base_url", &e.RESTBaseURL, defaultGateREST),
			stringFieldDefault("exchange.ws_url", &e.WSURL, defaultGateWS),
		)
	}
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("market.batch_interval_ms", &m.BatchIntervalMs, defaultBatchIntervalMs),
	)
	m.Symbols = normalizeSymbols(m.Symbols)
}

func (t *TradingConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("trading.leverage", &t.Leverage, defaultTradingLeverage),
		fieldDefault{
			key:   "trading.min_size",
			need:  func() bool { return t.MinSize <= 0 },
			apply: func() { t.MinSize = defaultTradingMinSize },
		},
		stringFieldDefault("trading.settings_path", &t.SettingsPath, defaultSettingsPath),
		stringFieldDefault("trading.journal_path", &t.JournalPath, defaultJournalPath),
	)
}

func (h *HeartbeatConfig) applyDefaults(keys keySet) {
	if h == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("heartbeat.enabled", &h.Enabled, true),
		intFieldDefault("heartbeat.tick_ms", &h.TickMs, defaultHeartbeatTickMs),
		intFieldDefault("heartbeat.grace_ms", &h.GraceMs, defaultHeartbeatGraceMs),
	)
}

func (t *TelegramConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("notify.telegram.min_interval_seconds", &t.MinIntervalSeconds, defaultTelegramInterval),
	)
}

func (c *CircuitConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("circuit.threshold", &c.Threshold, defaultCircuitThreshold),
		intFieldDefault("circuit.cooldown_seconds", &c.CooldownSeconds, defaultCircuitCooldown),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func normalizeSymbols(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, sym := range in {
		s := strings.ToUpper(strings.TrimSpace(sym))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
