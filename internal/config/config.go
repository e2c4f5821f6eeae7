package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvConfigPath overrides the config path given on the command line.
const EnvConfigPath = "GATEBOT_CONFIG"

// ResolvePath returns the config path from the environment, or fallback.
func ResolvePath(fallback string) string {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p
	}
	return fallback
}

// Load reads path and its include list, decodes it and applies defaults for
// keys the files leave unset. Included files are merged first, so the
// including file wins on conflicts.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	merged := viper.New()
	l := includeLoader{into: merged, done: map[string]bool{}, active: map[string]bool{}}
	if err := l.load(abs); err != nil {
		return nil, err
	}

	var cfg Config
	if err := merged.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	set := make(keySet)
	for _, key := range merged.AllKeys() {
		set.mark(key)
	}
	cfg.applyDefaults(set)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// includeLoader merges a file tree depth first. A file reached twice through
// different parents is merged once; a file that includes itself is an error.
type includeLoader struct {
	into   *viper.Viper
	done   map[string]bool
	active map[string]bool
}

func (l *includeLoader) load(path string) error {
	path = filepath.Clean(path)
	if l.active[path] {
		return fmt.Errorf("config include cycle at %s", path)
	}
	if l.done[path] {
		return nil
	}
	l.active[path] = true
	defer delete(l.active, path)

	file := viper.New()
	file.SetConfigFile(path)
	if err := file.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	for _, inc := range file.GetStringSlice("include") {
		inc = strings.TrimSpace(inc)
		if inc == "" {
			continue
		}
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		if err := l.load(inc); err != nil {
			return err
		}
	}
	if err := l.into.MergeConfigMap(file.AllSettings()); err != nil {
		return fmt.Errorf("merge config %s: %w", path, err)
	}
	l.done[path] = true
	return nil
}
