package gate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"gatebot/internal/gateway/exchange"

	gateapi "github.com/gateio/gateapi-go/v7"
)

func newRESTClient(cfg Config) (*gateapi.APIClient, error) {
	conf := gateapi.NewConfiguration()
	conf.BasePath = cfg.RESTBaseURL

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid gate REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	conf.HTTPClient = httpClient
	return gateapi.NewAPIClient(conf), nil
}

// authed attaches APIv4 credentials for private endpoints.
func authed(ctx context.Context, cfg Config) context.Context {
	return context.WithValue(ctx, gateapi.ContextGateAPIV4, gateapi.GateAPIV4{
		Key:    cfg.APIKey,
		Secret: cfg.APISecret,
	})
}

// classify turns exchange-side API errors into exchange.RejectedError so the
// circuit breaker only counts transport faults.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr gateapi.GateAPIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", op, &exchange.RejectedError{Code: apiErr.Label, Message: apiErr.Message})
	}
	return fmt.Errorf("%s: %w", op, err)
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
