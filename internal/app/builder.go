package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	brcfg "gatebot/internal/config"
	cfgloader "gatebot/internal/config/loader"
	"gatebot/internal/gateway/exchange"
	"gatebot/internal/gateway/gate"
	"gatebot/internal/gateway/notifier"
	"gatebot/internal/heartbeat"
	"gatebot/internal/logger"
	"gatebot/internal/metrics"
	"gatebot/internal/store/gormstore"
	"gatebot/internal/trader"
	livehttp "gatebot/internal/transport/http/live"
	"gatebot/internal/transport/ws"
)

var appLog = logger.Named("app")

type AppBuilder struct {
	cfg *brcfg.Config

	executorFn func(*brcfg.Config) (exchange.Executor, func(), error)
	journalFn  func(path string) (*gormstore.GormStore, error)
	notifierFn func(brcfg.TelegramConfig) notifier.TextNotifier
}

type AppBuilderOption func(*AppBuilder)

// WithExecutor replaces the exchange backend, mainly for dry runs.
func WithExecutor(fn func(*brcfg.Config) (exchange.Executor, func(), error)) AppBuilderOption {
	return func(b *AppBuilder) { b.executorFn = fn }
}

func NewAppBuilder(cfg *brcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		executorFn: buildExecutor,
		journalFn:  gormstore.NewGormStore,
		notifierFn: buildNotifier,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func buildNotifier(tc brcfg.TelegramConfig) notifier.TextNotifier {
	if !tc.Enabled {
		return nil
	}
	return notifier.NewTelegram(tc.BotToken, tc.ChatID)
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)
	logger.SetFormat(cfg.App.LogFormat)

	a := &App{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.cleanup()
		}
	}()

	settings, err := cfgloader.NewSettingsLoader(cfg.Trading.SettingsPath)
	if err != nil {
		return nil, fmt.Errorf("load runtime settings: %w", err)
	}
	a.settings = settings
	initial, err := traderSettings(settings.Current(), cfg.Trading)
	if err != nil {
		return nil, err
	}

	store, err := b.openJournal(a, cfg.Trading.JournalPath)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	exec, cleanup, err := b.executorFn(cfg)
	if err != nil {
		return nil, fmt.Errorf("build executor: %w", err)
	}
	a.closers = append(a.closers, cleanup)
	appLog.Infof("executor=%s", exec.Name())

	a.metrics = metrics.New()
	a.hub = ws.NewHub()
	observers := trader.Observers{a.metrics, a.hub}
	if out := b.notifierFn(cfg.Notify.Telegram); out != nil {
		a.alerts = notifier.NewAlerts(out, cfg.Notify.Telegram.MinInterval())
		observers = append(observers, a.alerts)
	}

	a.trader = trader.NewTrader(exec, nil, trader.Options{
		Store:    store,
		Observer: observers,
		Settings: initial,
	})
	if err := a.trader.Recover(); err != nil {
		appLog.Warnf("rate window recovery failed: %v", err)
	}
	a.metrics.WatchRateWindow(a.trader.RateWindow())

	settings.Subscribe(func(rt cfgloader.RuntimeSettings) {
		next, err := traderSettings(rt, cfg.Trading)
		if err != nil {
			appLog.Errorf("ignore settings change: %v", err)
			return
		}
		a.trader.UpdateSettings(next)
		appLog.Infof("runtime settings applied max_open=%d tp=%.2f sl=%.2f timeout=%v/%dms",
			next.MaxTotalOpenPositions, next.TakeProfitPct, next.StopLossPct, next.TimeoutEnabled, next.TimeoutMs)
	})

	a.heartbeat = heartbeat.NewSupervisor(cfg.Heartbeat.Tick(), cfg.Heartbeat.Grace(), a.onHeartbeat)

	if len(cfg.Market.Symbols) > 0 {
		driver := cfg.Exchange.Driver
		feed, err := gate.NewTickerFeed(gateConfig(cfg), func(updates []gate.PriceUpdate) {
			batch := roiBatch(updates, driver)
			a.hub.PublishPrices(batch)
			if err := a.trader.OnRoiBatch(batch); err != nil {
				appLog.Warnf("drop price batch: %v", err)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("build ticker feed: %w", err)
		}
		a.feed = feed
	} else {
		appLog.Warnf("market.symbols is empty, price feed disabled; ROI must be pushed over HTTP")
	}

	srv, err := livehttp.NewServer(livehttp.ServerConfig{
		Addr:      cfg.App.HTTPAddr,
		Trader:    a.trader,
		Settings:  settings,
		Heartbeat: a.heartbeat,
		WS:        http.HandlerFunc(a.hub.HandleWS),
		Metrics:   a.metrics.Handler(),
	})
	if err != nil {
		return nil, err
	}
	a.http = srv

	a.Summary = &StartupSummary{
		Env:          cfg.App.Env,
		Driver:       exec.Name(),
		HTTPAddr:     srv.Addr(),
		Symbols:      cfg.Market.Symbols,
		Settings:     settings.Current(),
		SettingsPath: settings.Path(),
		JournalPath:  cfg.Trading.JournalPath,
		Leverage:     cfg.Trading.Leverage,
		Heartbeat:    cfg.Heartbeat.Enabled,
		Telegram:     a.alerts != nil,
	}
	ok = true
	return a, nil
}

// openJournal picks the event store by file extension: *.jsonl is an
// append-only file, anything else is the sqlite database.
func (b *AppBuilder) openJournal(a *App, path string) (trader.EventStore, error) {
	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		return trader.NewFileEventStore(path)
	}
	journal, err := b.journalFn(path)
	if err != nil {
		return nil, err
	}
	a.journal = journal
	return trader.NewSQLiteEventStore(journal), nil
}

func (a *App) onHeartbeat(msg heartbeat.Message) {
	a.metrics.ObserveHeartbeat(msg)
	a.hub.PublishHeartbeat(msg)
	if msg.Kind == heartbeat.MsgError {
		appLog.Errorf("heartbeat worker crashed: %s", msg.Error)
		if a.alerts != nil {
			a.alerts.Post(notifier.Alert{
				Icon:  "🚨",
				Title: "心跳进程异常退出",
				Error: msg.Error,
				At:    msg.At,
			})
		}
	}
}
