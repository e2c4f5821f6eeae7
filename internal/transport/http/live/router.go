package livehttp

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"gatebot/internal/config/loader"
	"gatebot/internal/logger"
	"gatebot/internal/queue"
	"gatebot/internal/ratewindow"
	"gatebot/internal/trader"

	"github.com/gin-gonic/gin"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// TraderAPI is the part of trader.Trader the HTTP layer drives.
type TraderAPI interface {
	OnSignalBatch(batch trader.SignalBatch) error
	OnRoiBatch(batch trader.RoiBatch) error
	RemoveTask(ctx context.Context, symbol string) error
	Tasks() []queue.OrderTask
	RateWindow() *ratewindow.Counter
}

type SettingsStore interface {
	Current() loader.RuntimeSettings
	Update(s loader.RuntimeSettings) error
}

type HeartbeatControl interface {
	Start() bool
	Stop()
	SetTick(d time.Duration) error
	Running() bool
	Tick() time.Duration
}

// Router 暴露实盘控制接口：信号/行情注入、队列、设置、限频窗口与心跳。
type Router struct {
	Trader    TraderAPI
	Settings  SettingsStore
	Heartbeat HeartbeatControl
	WS        http.Handler

	signalSchema *jsonschema.Schema
	roiSchema    *jsonschema.Schema
	tickSchema   *jsonschema.Schema
}

func NewRouter(tr TraderAPI, settings SettingsStore, hb HeartbeatControl, ws http.Handler) (*Router, error) {
	r := &Router{Trader: tr, Settings: settings, Heartbeat: hb, WS: ws}
	var err error
	if r.signalSchema, err = compileSchema("signals.json", signalSchema); err != nil {
		return nil, err
	}
	if r.roiSchema, err = compileSchema("roi.json", roiSchema); err != nil {
		return nil, err
	}
	if r.tickSchema, err = compileSchema("tick.json", tickSchema); err != nil {
		return nil, err
	}
	return r, nil
}

// Register 将 /api/live 路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.POST("/signals", r.handleSignals)
	group.POST("/roi", r.handleRoi)
	group.GET("/queue", r.handleQueue)
	group.DELETE("/queue/:symbol", r.handleRemoveTask)
	group.GET("/rate-limits", r.handleRateLimits)
	if r.Settings != nil {
		group.GET("/settings", r.handleGetSettings)
		group.PUT("/settings", r.handlePutSettings)
	}
	if r.Heartbeat != nil {
		group.GET("/heartbeat", r.handleHeartbeatStatus)
		group.POST("/heartbeat/start", r.handleHeartbeatStart)
		group.POST("/heartbeat/stop", r.handleHeartbeatStop)
		group.PUT("/heartbeat/tick", r.handleHeartbeatTick)
	}
	if r.WS != nil {
		group.GET("/ws", gin.WrapH(r.WS))
	}
}

func (r *Router) handleSignals(c *gin.Context) {
	var req SignalRequest
	if !r.bindValidated(c, r.signalSchema, &req) {
		return
	}
	batch := make(trader.SignalBatch, 0, len(req.Signals))
	for _, s := range req.Signals {
		batch = append(batch, trader.SignalEvent{Symbol: s.Symbol, IsLong: s.IsLong, IsShort: s.IsShort, Size: s.Size})
	}
	if err := r.Trader.OnSignalBatch(batch); err != nil {
		logger.Errorf("[api] signal batch rejected ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] signal batch ip=%s count=%d", c.ClientIP(), len(batch))
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "count": len(batch)})
}

func (r *Router) handleRoi(c *gin.Context) {
	var req RoiRequest
	if !r.bindValidated(c, r.roiSchema, &req) {
		return
	}
	batch := make(trader.RoiBatch, len(req.Updates))
	for _, u := range req.Updates {
		batch[u.Symbol] = trader.RoiEvent{Symbol: u.Symbol, LastPrice: u.LastPrice, QuantoMultiplier: u.QuantoMultiplier}
	}
	if err := r.Trader.OnRoiBatch(batch); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "count": len(batch)})
}

func (r *Router) handleQueue(c *gin.Context) {
	tasks := r.Trader.Tasks()
	if tasks == nil {
		tasks = []queue.OrderTask{}
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "count": len(tasks)})
}

func (r *Router) handleRemoveTask(c *gin.Context) {
	symbol := strings.TrimSpace(c.Param("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol 必填"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	err := r.Trader.RemoveTask(ctx, symbol)
	switch {
	case errors.Is(err, trader.ErrNoTask):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		logger.Errorf("[api] remove task failed ip=%s symbol=%s err=%v", c.ClientIP(), symbol, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] remove task ip=%s symbol=%s", c.ClientIP(), symbol)
	c.JSON(http.StatusOK, gin.H{"status": "removed", "symbol": symbol})
}

func (r *Router) handleRateLimits(c *gin.Context) {
	window := r.Trader.RateWindow()
	if window == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "rate window unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"windows": window.Status(time.Now())})
}

func (r *Router) handleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, r.Settings.Current())
}

func (r *Router) handlePutSettings(c *gin.Context) {
	var req loader.RuntimeSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.RateLimits == nil {
		req.RateLimits = map[string]int{}
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := r.Settings.Update(req); err != nil {
		logger.Errorf("[api] settings update failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] settings updated ip=%s", c.ClientIP())
	c.JSON(http.StatusOK, r.Settings.Current())
}

func (r *Router) heartbeatStatus() gin.H {
	return gin.H{"running": r.Heartbeat.Running(), "tick_ms": r.Heartbeat.Tick().Milliseconds()}
}

func (r *Router) handleHeartbeatStatus(c *gin.Context) {
	c.JSON(http.StatusOK, r.heartbeatStatus())
}

func (r *Router) handleHeartbeatStart(c *gin.Context) {
	started := r.Heartbeat.Start()
	out := r.heartbeatStatus()
	out["started"] = started
	c.JSON(http.StatusOK, out)
}

func (r *Router) handleHeartbeatStop(c *gin.Context) {
	r.Heartbeat.Stop()
	c.JSON(http.StatusOK, r.heartbeatStatus())
}

func (r *Router) handleHeartbeatTick(c *gin.Context) {
	var req TickRequest
	if !r.bindValidated(c, r.tickSchema, &req) {
		return
	}
	if err := r.Heartbeat.SetTick(time.Duration(req.TickMs) * time.Millisecond); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, r.heartbeatStatus())
}

func (r *Router) bindValidated(c *gin.Context, schema *jsonschema.Schema, out any) bool {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	if err := decodeValidated(schema, body, out); err != nil {
		logger.Warnf("[api] %s %s invalid body ip=%s err=%v", c.Request.Method, c.FullPath(), c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}
