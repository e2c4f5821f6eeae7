// Package loader owns the runtime settings file: trading knobs and rate-limit
// maxima that may change while the process runs.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"gatebot/internal/logger"
	"gatebot/internal/ratewindow"
)

// RuntimeSettings 是可热更新的交易参数。
type RuntimeSettings struct {
	MaxTotalOpenPositions int            `yaml:"max_total_open_positions" json:"max_total_open_positions"`
	MinEntryDelayMs       int64          `yaml:"min_entry_delay_ms" json:"min_entry_delay_ms"`
	MaxEntryDelayMs       int64          `yaml:"max_entry_delay_ms" json:"max_entry_delay_ms"`
	TakeProfitPct         float64        `yaml:"take_profit_pct" json:"take_profit_pct"`
	StopLossPct           float64        `yaml:"stop_loss_pct" json:"stop_loss_pct"`
	TimeoutMs             int64          `yaml:"timeout_ms" json:"timeout_ms"`
	TimeoutEnabled        bool           `yaml:"timeout_enabled" json:"timeout_enabled"`
	RateLimits            map[string]int `yaml:"rate_limits" json:"rate_limits"`
}

func DefaultRuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		MaxTotalOpenPositions: 3,
		MinEntryDelayMs:       500,
		MaxEntryDelayMs:       3000,
		TakeProfitPct:         20,
		StopLossPct:           10,
		TimeoutMs:             15 * 60 * 1000,
		TimeoutEnabled:        false,
		RateLimits:            map[string]int{},
	}
}

func (s RuntimeSettings) Validate() error {
	if s.MaxTotalOpenPositions < 0 {
		return fmt.Errorf("max_total_open_positions must be >= 0")
	}
	if s.MinEntryDelayMs < 0 || s.MaxEntryDelayMs < 0 {
		return fmt.Errorf("entry delays must be >= 0")
	}
	if s.MaxEntryDelayMs < s.MinEntryDelayMs {
		return fmt.Errorf("max_entry_delay_ms (%d) < min_entry_delay_ms (%d)", s.MaxEntryDelayMs, s.MinEntryDelayMs)
	}
	if s.TakeProfitPct < 0 || s.StopLossPct < 0 {
		return fmt.Errorf("take_profit_pct and stop_loss_pct must be >= 0")
	}
	if s.TimeoutEnabled && s.TimeoutMs <= 0 {
		return fmt.Errorf("timeout_ms must be > 0 when timeout is enabled")
	}
	if _, err := s.Limits(); err != nil {
		return err
	}
	return nil
}

// Limits converts the rate_limits section into per-horizon maxima.
func (s RuntimeSettings) Limits() (ratewindow.Limits, error) {
	return ratewindow.ParseLimits(s.RateLimits)
}

func (s RuntimeSettings) clone() RuntimeSettings {
	cp := s
	cp.RateLimits = make(map[string]int, len(s.RateLimits))
	for k, v := range s.RateLimits {
		cp.RateLimits[k] = v
	}
	return cp
}

// ChangeListener 在配置变更时被调用。
type ChangeListener func(RuntimeSettings)

// SettingsLoader reads the settings file, watches it for edits and writes
// back updates made through the API.
type SettingsLoader struct {
	path string
	v    *viper.Viper

	// writeMu serializes file writes with watcher reloads.
	writeMu sync.Mutex

	mu        sync.RWMutex
	current   RuntimeSettings
	version   int64
	listeners []ChangeListener
}

// NewSettingsLoader loads path, creating it with defaults if it does not exist,
// and starts watching it.
func NewSettingsLoader(path string) (*SettingsLoader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings loader requires path")
	}
	l := &SettingsLoader{path: path}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := l.write(DefaultRuntimeSettings()); err != nil {
			return nil, fmt.Errorf("create settings file failed: %w", err)
		}
		logger.Infof("Settings loader created %s with defaults", path)
	}
	if err := l.reload(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read settings file failed: %w", err)
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		changed, err := l.reloadIfChanged()
		if err != nil {
			logger.Errorf("settings reload failed (%s): %v", evt.Name, err)
			return
		}
		if changed {
			l.notify()
		}
	})
	v.WatchConfig()
	l.v = v
	return l, nil
}

func (l *SettingsLoader) Path() string { return l.path }

func (l *SettingsLoader) Current() RuntimeSettings {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current.clone()
}

func (l *SettingsLoader) Version() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// Subscribe registers fn for future changes.
func (l *SettingsLoader) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// Update validates s, persists it and notifies listeners.
func (l *SettingsLoader) Update(s RuntimeSettings) error {
	if s.RateLimits == nil {
		s.RateLimits = map[string]int{}
	}
	if err := s.Validate(); err != nil {
		return err
	}
	l.writeMu.Lock()
	if err := l.write(s); err != nil {
		l.writeMu.Unlock()
		return fmt.Errorf("persist settings failed: %w", err)
	}
	l.store(s)
	l.writeMu.Unlock()
	l.notify()
	return nil
}

func (l *SettingsLoader) notify() {
	l.mu.RLock()
	snap := l.current.clone()
	listeners := append([]ChangeListener(nil), l.listeners...)
	l.mu.RUnlock()
	for _, fn := range listeners {
		func(cb ChangeListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("settings listener panic: %v", r)
				}
			}()
			cb(snap.clone())
		}(fn)
	}
}

func (l *SettingsLoader) reload() error {
	s, err := readSettings(l.path)
	if err != nil {
		return err
	}
	l.store(s)
	logger.Infof("Settings loader reloaded %s", filepath.Base(l.path))
	return nil
}

func (l *SettingsLoader) reloadIfChanged() (bool, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	s, err := readSettings(l.path)
	if err != nil {
		return false, err
	}
	l.mu.RLock()
	same := reflect.DeepEqual(s, l.current)
	l.mu.RUnlock()
	if same {
		return false, nil
	}
	l.store(s)
	logger.Infof("Settings loader applied external edit to %s", filepath.Base(l.path))
	return true, nil
}

func (l *SettingsLoader) store(s RuntimeSettings) {
	l.mu.Lock()
	l.current = s.clone()
	l.version++
	l.mu.Unlock()
}

// write replaces the file atomically so the watcher never sees a partial file.
// Callers other than the constructor hold writeMu.
func (l *SettingsLoader) write(s RuntimeSettings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), l.path)
}

// readSettings decodes path strictly: unknown keys are an error so typos do
// not silently fall back to defaults.
func readSettings(path string) (RuntimeSettings, error) {
	s := DefaultRuntimeSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read settings failed: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return s, fmt.Errorf("parse settings failed: %w", err)
	}
	if s.RateLimits == nil {
		s.RateLimits = map[string]int{}
	}
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}
