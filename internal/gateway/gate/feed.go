package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	symbolpkg "gatebot/internal/pkg/symbol"

	gatews "github.com/gateio/gatews/go"
	"github.com/gorilla/websocket"
)

// PriceUpdate is the latest price of one contract joined with its quanto
// multiplier.
type PriceUpdate struct {
	Symbol           string
	LastPrice        float64
	QuantoMultiplier float64
}

// FeedStats is a point-in-time view of the ticker subscription health.
type FeedStats struct {
	Reconnects      int       `json:"reconnects"`
	SubscribeErrors int       `json:"subscribe_errors"`
	Batches         int64     `json:"batches"`
	LastError       string    `json:"last_error,omitempty"`
	LastBatchAt     time.Time `json:"last_batch_at,omitempty"`
	Connected       bool      `json:"connected"`
}

// TickerFeed subscribes to futures.tickers and hands the latest price of every
// contract to sink once per batch interval.
type TickerFeed struct {
	cfg       Config
	contracts []string
	symbolMap map[string]string
	quanto    QuantoSource
	sink      func([]PriceUpdate)

	mu     sync.Mutex
	latest map[string]float64

	statsMu sync.Mutex
	stats   FeedStats

	prevWSProxy func(*http.Request) (*url.URL, error)
	wsProxySet  bool
}

func NewTickerFeed(cfg Config, sink func([]PriceUpdate)) (*TickerFeed, error) {
	final := cfg.withDefaults()
	contracts, symbolMap := normalizeGateSymbols(final.Symbols)
	if len(contracts) == 0 {
		return nil, fmt.Errorf("no valid symbols for ticker subscription")
	}
	if sink == nil {
		return nil, fmt.Errorf("ticker feed requires a sink")
	}
	rest, err := newRESTClient(final)
	if err != nil {
		return nil, err
	}
	return &TickerFeed{
		cfg:       final,
		contracts: contracts,
		symbolMap: symbolMap,
		quanto:    NewContractCache(rest),
		sink:      sink,
		latest:    make(map[string]float64),
	}, nil
}

// Run blocks until ctx is cancelled, reconnecting with backoff.
func (f *TickerFeed) Run(ctx context.Context) error {
	defer f.restoreWSProxy()
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.flushLoop(ctx)
	}()
	f.runTickerLoop(ctx)
	<-done
	return nil
}

func (f *TickerFeed) Stats() FeedStats {
	f.statsMu.Lock()
	defer f.statsMu.Unlock()
	return f.stats
}

func (f *TickerFeed) runTickerLoop(ctx context.Context) {
	delay := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		subCtx, cancel := context.WithCancel(ctx)
		ws, err := f.newWsService(subCtx)
		if err != nil {
			f.recordSubscribeError(err)
			cancel()
			if !sleepWithContext(ctx, delay) {
				return
			}
			delay = nextDelay(delay)
			continue
		}

		ws.SetCallBack(gatews.ChannelFutureTicker, gatews.NewCallBack(func(msg *gatews.UpdateMsg) {
			if msg == nil {
				return
			}
			f.observe(parseTickers(msg.Result))
		}))

		if err := ws.Subscribe(gatews.ChannelFutureTicker, f.contracts); err != nil {
			f.recordSubscribeError(err)
			cancel()
			if conn := ws.GetConnection(); conn != nil {
				_ = conn.Close()
			}
			if !sleepWithContext(ctx, delay) {
				return
			}
			delay = nextDelay(delay)
			continue
		}

		delay = time.Second
		f.setConnected(true)
		gateLog.Infof("ticker subscribed contracts=%v", f.contracts)

		if err := f.monitorGateWS(subCtx, ws); err != nil {
			f.recordReconnect(err)
			gateLog.Warnf("ticker ws lost: %v", err)
		}
		f.setConnected(false)
		cancel()
		if conn := ws.GetConnection(); conn != nil {
			_ = conn.Close()
		}
		if !sleepWithContext(ctx, delay) {
			return
		}
		delay = nextDelay(delay)
	}
}

func (f *TickerFeed) monitorGateWS(ctx context.Context, ws *gatews.WsService) error {
	const (
		checkInterval = 5 * time.Second
		maxReconnect  = 30 * time.Second
	)
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	lastStatus := ""
	reconnectSince := time.Time{}
	if ws != nil {
		lastStatus = ws.Status()
		if lastStatus != "connected" {
			reconnectSince = time.Now()
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if ws == nil {
				return fmt.Errorf("gate ws unavailable")
			}
			status := ws.Status()
			if status != lastStatus {
				f.setConnected(status == "connected")
				if status != "connected" && lastStatus == "connected" {
					f.recordReconnect(nil)
				}
				lastStatus = status
			}
			if status != "connected" {
				if reconnectSince.IsZero() {
					reconnectSince = time.Now()
				}
				if time.Since(reconnectSince) > maxReconnect {
					return fmt.Errorf("gate ws reconnect timeout (%s)", status)
				}
			} else {
				reconnectSince = time.Time{}
			}
		}
	}
}

func (f *TickerFeed) newWsService(ctx context.Context) (*gatews.WsService, error) {
	if err := f.ensureWSProxy(); err != nil {
		return nil, err
	}
	wsURL := f.cfg.WSURL
	if wsURL == "" {
		wsURL = gatews.FuturesUsdtUrl
	}
	conf := gatews.NewConnConfFromOption(&gatews.ConfOptions{
		App: "futures",
		URL: wsURL,
	})
	return gatews.NewWsService(ctx, nil, conf)
}

func (f *TickerFeed) ensureWSProxy() error {
	if f.wsProxySet || f.cfg.ProxyURL == "" {
		return nil
	}
	proxyURL, err := url.Parse(f.cfg.ProxyURL)
	if err != nil {
		return fmt.Errorf("invalid gate WS proxy url: %w", err)
	}
	f.prevWSProxy = websocket.DefaultDialer.Proxy
	websocket.DefaultDialer.Proxy = http.ProxyURL(proxyURL)
	f.wsProxySet = true
	return nil
}

func (f *TickerFeed) restoreWSProxy() {
	if f.wsProxySet {
		websocket.DefaultDialer.Proxy = f.prevWSProxy
		f.wsProxySet = false
	}
}

// observe keeps only the newest price per contract between flushes.
func (f *TickerFeed) observe(ticks []tickerPayload) {
	if len(ticks) == 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tk := range ticks {
		contract := strings.ToUpper(strings.TrimSpace(tk.Contract))
		price := parseFloat(tk.Last)
		if contract == "" || price <= 0 {
			continue
		}
		f.latest[contract] = price
	}
}

func (f *TickerFeed) drain() map[string]float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.latest) == 0 {
		return nil
	}
	out := f.latest
	f.latest = make(map[string]float64, len(out))
	return out
}

func (f *TickerFeed) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(f.cfg.BatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.flush(ctx)
		}
	}
}

func (f *TickerFeed) flush(ctx context.Context) {
	prices := f.drain()
	if len(prices) == 0 {
		return
	}
	batch := buildBatch(ctx, prices, f.symbolMap, f.quanto)
	if len(batch) == 0 {
		return
	}
	f.statsMu.Lock()
	f.stats.Batches++
	f.stats.LastBatchAt = time.Now()
	f.statsMu.Unlock()
	f.sink(batch)
}

// buildBatch joins prices with quanto multipliers. Contracts whose multiplier
// cannot be resolved are left out of this batch.
func buildBatch(ctx context.Context, prices map[string]float64, symbolMap map[string]string, quanto QuantoSource) []PriceUpdate {
	out := make([]PriceUpdate, 0, len(prices))
	for contract, price := range prices {
		symbol := symbolMap[contract]
		if symbol == "" {
			symbol = symbolpkg.Gate.FromExchange(contract)
		}
		if symbol == "" {
			continue
		}
		mult, err := quanto.Multiplier(ctx, contract)
		if err != nil {
			gateLog.Debugf("quanto multiplier unavailable %s: %v", contract, err)
			continue
		}
		out = append(out, PriceUpdate{Symbol: symbol, LastPrice: price, QuantoMultiplier: mult})
	}
	return out
}

type tickerPayload struct {
	Contract string `json:"contract"`
	Last     string `json:"last"`
}

// parseTickers accepts both the array form and a single ticker object.
func parseTickers(raw json.RawMessage) []tickerPayload {
	if len(raw) == 0 {
		return nil
	}
	var arr []tickerPayload
	if err := json.Unmarshal(raw, &arr); err == nil {
		return arr
	}
	var one tickerPayload
	if err := json.Unmarshal(raw, &one); err == nil && one.Contract != "" {
		return []tickerPayload{one}
	}
	return nil
}

func normalizeGateSymbols(symbols []string) ([]string, map[string]string) {
	symbolMap := make(map[string]string)
	out := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		norm := symbolpkg.Normalize(sym)
		if norm == "" {
			continue
		}
		contract := strings.ToUpper(symbolpkg.Gate.ToExchange(norm))
		if contract == "" {
			continue
		}
		if _, ok := seen[contract]; ok {
			continue
		}
		seen[contract] = struct{}{}
		symbolMap[contract] = norm
		out = append(out, contract)
	}
	return out, symbolMap
}

func (f *TickerFeed) setConnected(v bool) {
	f.statsMu.Lock()
	f.stats.Connected = v
	f.statsMu.Unlock()
}

func (f *TickerFeed) recordSubscribeError(err error) {
	if err == nil {
		return
	}
	gateLog.Warnf("ticker subscribe failed: %v", err)
	f.statsMu.Lock()
	f.stats.SubscribeErrors++
	f.stats.LastError = err.Error()
	f.statsMu.Unlock()
}

func (f *TickerFeed) recordReconnect(err error) {
	f.statsMu.Lock()
	f.stats.Reconnects++
	if err != nil && err.Error() != "" {
		f.stats.LastError = err.Error()
	}
	f.statsMu.Unlock()
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextDelay(current time.Duration) time.Duration {
	if current <= 0 {
		return time.Second
	}
	next := current * 2
	if next > 30*time.Second {
		next = 30 * time.Second
	}
	return next
}
