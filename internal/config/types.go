package config

import (
	"strings"
	"time"
)

// Config 是 gatebot 的主配置载体。
type Config struct {
	App       AppConfig       `toml:"app"`
	Exchange  ExchangeConfig  `toml:"exchange"`
	Market    MarketConfig    `toml:"market"`
	Trading   TradingConfig   `toml:"trading"`
	Heartbeat HeartbeatConfig `toml:"heartbeat"`
	Notify    NotifyConfig    `toml:"notify"`
	Circuit   CircuitConfig   `toml:"circuit"`
}

type AppConfig struct {
	Env       string `toml:"env"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	HTTPAddr  string `toml:"http_addr"`
	LogPath   string `toml:"log_path"`
}

// Exchange drivers.
const (
	DriverGate    = "gate"
	DriverBrowser = "browser"
	DriverBinance = "binance"
)

type ExchangeConfig struct {
	Driver             string        `toml:"driver"`
	APIKey             string        `toml:"api_key"`
	APISecret          string        `toml:"api_secret"`
	RESTBaseURL        string        `toml:"rest_base_url"`
	WSURL              string        `toml:"ws_url"`
	Proxy              string        `toml:"proxy"`
	Testnet            bool          `toml:"testnet"`
	HTTPTimeoutSeconds int           `toml:"http_timeout_seconds"`
	Browser            BrowserConfig `toml:"browser"`
}

func (e ExchangeConfig) HTTPTimeout() time.Duration {
	return time.Duration(e.HTTPTimeoutSeconds) * time.Second
}

// BrowserConfig drives the chromedp executor against the exchange web UI.
type BrowserConfig struct {
	URL         string `toml:"url"`
	UserDataDir string `toml:"user_data_dir"`
	ExecPath    string `toml:"exec_path"`
	Headless    bool   `toml:"headless"`
}

// MarketConfig 控制行情订阅。
type MarketConfig struct {
	Symbols         []string `toml:"symbols"`
	BatchIntervalMs int      `toml:"batch_interval_ms"`
}

func (m MarketConfig) BatchInterval() time.Duration {
	return time.Duration(m.BatchIntervalMs) * time.Millisecond
}

// TradingConfig holds the static trading parameters. Knobs that change at
// runtime live in the settings file (see loader.SettingsLoader).
type TradingConfig struct {
	Leverage         int     `toml:"leverage"`
	MinSize          float64 `toml:"min_size"`
	MaxCloseAttempts int     `toml:"max_close_attempts"`
	SettingsPath     string  `toml:"settings_path"`
	JournalPath      string  `toml:"journal_path"`
}

type HeartbeatConfig struct {
	Enabled bool `toml:"enabled"`
	TickMs  int  `toml:"tick_ms"`
	GraceMs int  `toml:"grace_ms"`
}

func (h HeartbeatConfig) Tick() time.Duration {
	return time.Duration(h.TickMs) * time.Millisecond
}

func (h HeartbeatConfig) Grace() time.Duration {
	return time.Duration(h.GraceMs) * time.Millisecond
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled            bool   `toml:"enabled"`
	BotToken           string `toml:"bot_token"`
	ChatID             string `toml:"chat_id"`
	MinIntervalSeconds int    `toml:"min_interval_seconds"`
}

func (t TelegramConfig) MinInterval() time.Duration {
	return time.Duration(t.MinIntervalSeconds) * time.Second
}

// CircuitConfig 控制执行器熔断。threshold <= 0 表示关闭。
type CircuitConfig struct {
	Threshold       int `toml:"threshold"`
	CooldownSeconds int `toml:"cooldown_seconds"`
}

func (c CircuitConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
