package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// Evaluator runs a JavaScript expression in the logged-in exchange page and
// returns its string result.
type Evaluator interface {
	Eval(ctx context.Context, script string) (string, error)
}

type SessionConfig struct {
	URL         string
	UserDataDir string
	ExecPath    string
	Headless    bool
	Proxy       string
}

// Session owns one Chrome tab opened on the exchange UI. Evaluations are
// serialized on that tab.
type Session struct {
	cfg SessionConfig

	mu          sync.Mutex
	tabCtx      context.Context
	cancelAlloc context.CancelFunc
	cancelTab   context.CancelFunc
}

var _ Evaluator = (*Session)(nil)

func NewSession(cfg SessionConfig) *Session {
	cfg.URL = strings.TrimSpace(cfg.URL)
	return &Session{cfg: cfg}
}

func (s *Session) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if !s.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if s.cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(s.cfg.UserDataDir))
	}
	if s.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(s.cfg.ExecPath))
	}
	if s.cfg.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(s.cfg.Proxy))
	}
	return opts
}

// ensure starts the browser and opens the exchange page on first use.
func (s *Session) ensure() (context.Context, error) {
	if s.tabCtx != nil && s.tabCtx.Err() == nil {
		return s.tabCtx, nil
	}
	if s.cfg.URL == "" {
		return nil, fmt.Errorf("browser session url is empty")
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), s.allocatorOptions()...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	// 首次 Run 负责拉起浏览器，不能带超时，否则超时后浏览器会被关闭
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	navCtx, cancelNav := context.WithTimeout(tabCtx, 60*time.Second)
	defer cancelNav()
	if err := chromedp.Run(navCtx,
		chromedp.Navigate(s.cfg.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("open exchange page: %w", err)
	}
	s.tabCtx, s.cancelTab, s.cancelAlloc = tabCtx, cancelTab, cancelAlloc
	return tabCtx, nil
}

func (s *Session) Eval(ctx context.Context, script string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tabCtx, err := s.ensure()
	if err != nil {
		return "", err
	}
	runCtx, cancel := context.WithCancel(tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var out string
	err = chromedp.Run(runCtx, chromedp.Evaluate(script, &out, awaitPromise))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	return out, nil
}

func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelTab != nil {
		s.cancelTab()
	}
	if s.cancelAlloc != nil {
		s.cancelAlloc()
	}
	s.tabCtx, s.cancelTab, s.cancelAlloc = nil, nil, nil
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}
