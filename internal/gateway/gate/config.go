package gate

import (
	"strings"
	"time"
)

const (
	gateSettle      = "usdt"
	defaultGateREST = "https://api.gateio.ws/api/v4"
)

type Config struct {
	APIKey    string
	APISecret string

	RESTBaseURL string
	WSURL       string
	HTTPTimeout time.Duration

	// ProxyURL applies to both REST and websocket traffic when set.
	ProxyURL string

	Symbols       []string
	BatchInterval time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	out.APIKey = strings.TrimSpace(out.APIKey)
	out.APISecret = strings.TrimSpace(out.APISecret)
	out.RESTBaseURL = strings.TrimSpace(out.RESTBaseURL)
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = defaultGateREST
	}
	out.WSURL = strings.TrimSpace(out.WSURL)
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	out.ProxyURL = strings.TrimSpace(out.ProxyURL)
	if out.BatchInterval <= 0 {
		out.BatchInterval = time.Second
	}
	return out
}
