package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Exchange.validate(); err != nil {
		return err
	}
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Trading.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	if c.Circuit.Threshold < 0 {
		return fmt.Errorf("circuit.threshold must be >= 0")
	}
	return nil
}

func (e *ExchangeConfig) validate() error {
	switch e.Driver {
	case DriverGate, DriverBinance:
		if strings.TrimSpace(e.APIKey) == "" || strings.TrimSpace(e.APISecret) == "" {
			return fmt.Errorf("exchange.%s requires api_key and api_secret", e.Driver)
		}
	case DriverBrowser:
		if strings.TrimSpace(e.Browser.URL) == "" {
			return fmt.Errorf("exchange.browser.url cannot be empty")
		}
	default:
		return fmt.Errorf("exchange.driver must be one of gate|browser|binance, got %q", e.Driver)
	}
	if e.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("exchange.http_timeout_seconds must be > 0")
	}
	return nil
}

func (m *MarketConfig) validate() error {
	if m.BatchIntervalMs <= 0 {
		return fmt.Errorf("market.batch_interval_ms must be > 0")
	}
	for _, sym := range m.Symbols {
		if !strings.Contains(sym, "_") {
			return fmt.Errorf("market.symbols entry %q must use BASE_QUOTE form", sym)
		}
	}
	return nil
}

func (t *TradingConfig) validate() error {
	if t.Leverage <= 0 {
		return fmt.Errorf("trading.leverage must be > 0")
	}
	if t.MinSize <= 0 {
		return fmt.Errorf("trading.min_size must be > 0")
	}
	if t.MaxCloseAttempts < 0 {
		return fmt.Errorf("trading.max_close_attempts must be >= 0")
	}
	if strings.TrimSpace(t.SettingsPath) == "" {
		return fmt.Errorf("trading.settings_path cannot be empty")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	tg := n.Telegram
	if !tg.Enabled {
		return nil
	}
	if strings.TrimSpace(tg.BotToken) == "" {
		return fmt.Errorf("notify.telegram.bot_token cannot be empty when enabled")
	}
	if strings.TrimSpace(tg.ChatID) == "" {
		return fmt.Errorf("notify.telegram.chat_id cannot be empty when enabled")
	}
	return nil
}
