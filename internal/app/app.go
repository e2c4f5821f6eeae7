package app

import (
	"context"
	"fmt"
	"time"

	brcfg "gatebot/internal/config"
	cfgloader "gatebot/internal/config/loader"
	"gatebot/internal/gateway/gate"
	"gatebot/internal/gateway/notifier"
	"gatebot/internal/heartbeat"
	"gatebot/internal/metrics"
	"gatebot/internal/store/gormstore"
	"gatebot/internal/trader"
	livehttp "gatebot/internal/transport/http/live"
	"gatebot/internal/transport/ws"

	"golang.org/x/sync/errgroup"
)

const (
	journalRetention = 24 * time.Hour
	journalPruneTick = time.Hour
)

// App 负责应用级编排：持有交易 actor、行情、心跳与 HTTP 服务。
type App struct {
	cfg       *brcfg.Config
	settings  *cfgloader.SettingsLoader
	journal   *gormstore.GormStore
	trader    *trader.Trader
	heartbeat *heartbeat.Supervisor
	feed      *gate.TickerFeed
	metrics   *metrics.Metrics
	hub       *ws.Hub
	alerts    *notifier.Alerts
	http      *livehttp.Server
	closers   []func()

	Summary *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(cfg *brcfg.Config) (*App, error) {
	return NewAppBuilder(cfg).Build(context.Background())
}

// Run 启动交易 actor 及其周边服务，直到 ctx 取消或某个服务出错。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.trader == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}

	a.trader.Start()
	if a.cfg.Heartbeat.Enabled {
		a.heartbeat.Start()
	}
	defer a.shutdown()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return a.hub.Run(ctx) })
	group.Go(func() error {
		if err := a.http.Start(ctx); err != nil {
			return fmt.Errorf("live http server error: %w", err)
		}
		return nil
	})
	if a.feed != nil {
		group.Go(func() error { return a.feed.Run(ctx) })
	}
	if a.alerts != nil {
		group.Go(func() error { return a.alerts.Run(ctx) })
	}
	group.Go(func() error {
		a.pruneJournal(ctx)
		return nil
	})
	return group.Wait()
}

func (a *App) pruneJournal(ctx context.Context) {
	if a.journal == nil {
		return
	}
	ticker := time.NewTicker(journalPruneTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.journal.PruneEvents(ctx, time.Now().Add(-journalRetention))
			if err != nil {
				appLog.Warnf("journal prune failed: %v", err)
				continue
			}
			if n > 0 {
				appLog.Infof("journal pruned %d events", n)
			}
		}
	}
}

func (a *App) shutdown() {
	a.heartbeat.Stop()
	a.trader.Stop()
	a.cleanup()
}

func (a *App) cleanup() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if a.closers[i] != nil {
			a.closers[i]()
		}
	}
	a.closers = nil
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			appLog.Warnf("close journal: %v", err)
		}
		a.journal = nil
	}
}

// Trader exposes the trading actor (for replay harnesses and tests).
func (a *App) Trader() *trader.Trader {
	if a == nil {
		return nil
	}
	return a.trader
}
