package gate

import (
	"context"
	"fmt"
	"math"
	"strings"

	"gatebot/internal/gateway/exchange"
	"gatebot/internal/logger"
	symbolpkg "gatebot/internal/pkg/symbol"

	gateapi "github.com/gateio/gateapi-go/v7"
)

const orderTextTag = "t-gatebot"

var gateLog = logger.Named("gate")

// Executor places USDT-settled futures orders through the Gate APIv4 REST
// client. The account is expected to run in dual (hedge) position mode.
type Executor struct {
	cfg  Config
	rest *gateapi.APIClient
}

var _ exchange.Executor = (*Executor)(nil)

func NewExecutor(cfg Config) (*Executor, error) {
	final := cfg.withDefaults()
	if final.APIKey == "" || final.APISecret == "" {
		return nil, fmt.Errorf("gate executor requires api key and secret")
	}
	rest, err := newRESTClient(final)
	if err != nil {
		return nil, err
	}
	return &Executor{cfg: final, rest: rest}, nil
}

func (e *Executor) Name() string { return "gate" }

func (e *Executor) SubmitEntry(ctx context.Context, symbol string, side exchange.Side, size float64) (exchange.PositionSnapshot, error) {
	contract := contractName(symbol)
	qty, err := contractSize(size)
	if err != nil {
		return exchange.PositionSnapshot{}, err
	}
	if side == exchange.SideShort {
		qty = -qty
	}
	order := gateapi.FuturesOrder{
		Contract: contract,
		Size:     qty,
		Price:    "0",
		Tif:      "ioc",
		Text:     orderTextTag,
	}
	actx := authed(ctx, e.cfg)
	placed, _, err := e.rest.FuturesApi.CreateFuturesOrder(actx, gateSettle, order, nil)
	if err != nil {
		return exchange.PositionSnapshot{}, classify("create order "+contract, err)
	}
	gateLog.Infof("order placed %s size=%d id=%d fill=%s", contract, qty, placed.Id, placed.FillPrice)

	positions, _, err := e.rest.FuturesApi.GetDualModePosition(actx, gateSettle, contract)
	if err != nil {
		gateLog.Warnf("position lookup failed %s: %v", contract, err)
		return fallbackSnapshot(side, qty, placed.FillPrice), nil
	}
	if snap, ok := pickPosition(positions, side); ok {
		return snap, nil
	}
	return fallbackSnapshot(side, qty, placed.FillPrice), nil
}

func (e *Executor) ChangeLeverage(ctx context.Context, symbol string, leverage string) (exchange.LeverageResult, error) {
	contract := contractName(symbol)
	positions, _, err := e.rest.FuturesApi.UpdateDualModePositionLeverage(authed(ctx, e.cfg), gateSettle, contract, leverage, nil)
	if err != nil {
		return exchange.LeverageResult{}, classify("update leverage "+contract, err)
	}
	return legsFromPositions(positions), nil
}

func (e *Executor) SubmitClose(ctx context.Context, symbol string, side exchange.Side, size float64) error {
	contract := contractName(symbol)
	qty, err := contractSize(size)
	if err != nil {
		return err
	}
	// 平多卖出，平空买入
	if side == exchange.SideLong {
		qty = -qty
	}
	order := gateapi.FuturesOrder{
		Contract:   contract,
		Size:       qty,
		Price:      "0",
		Tif:        "ioc",
		ReduceOnly: true,
		Text:       orderTextTag,
	}
	placed, _, err := e.rest.FuturesApi.CreateFuturesOrder(authed(ctx, e.cfg), gateSettle, order, nil)
	if err != nil {
		return classify("close order "+contract, err)
	}
	gateLog.Infof("close placed %s size=%d id=%d", contract, qty, placed.Id)
	return nil
}

func contractName(symbol string) string {
	return strings.ToUpper(symbolpkg.Gate.ToExchange(symbolpkg.Normalize(symbol)))
}

// contractSize converts a size in contracts to the integer count Gate expects.
func contractSize(size float64) (int64, error) {
	n := int64(math.Round(math.Abs(size)))
	if n < 1 {
		return 0, &exchange.RejectedError{Code: "INVALID_SIZE", Message: fmt.Sprintf("size %v rounds to zero contracts", size)}
	}
	return n, nil
}

func pickPosition(positions []gateapi.Position, side exchange.Side) (exchange.PositionSnapshot, bool) {
	want := exchange.ModeForSide(side)
	for _, p := range positions {
		if p.Mode != want || p.Size == 0 {
			continue
		}
		return exchange.PositionSnapshot{
			Size:       float64(p.Size),
			EntryPrice: parseFloat(p.EntryPrice),
			Leverage:   parseFloat(p.Leverage),
			Mode:       p.Mode,
		}, true
	}
	return exchange.PositionSnapshot{}, false
}

// fallbackSnapshot is used when the position read fails after a fill. Leverage
// is left zero for the caller to fill from the confirmed gate value.
func fallbackSnapshot(side exchange.Side, qty int64, fillPrice string) exchange.PositionSnapshot {
	return exchange.PositionSnapshot{
		Size:       float64(qty),
		EntryPrice: parseFloat(fillPrice),
		Mode:       exchange.ModeForSide(side),
	}
}

func legsFromPositions(positions []gateapi.Position) exchange.LeverageResult {
	var res exchange.LeverageResult
	for _, p := range positions {
		switch p.Mode {
		case exchange.ModeDualLong:
			res.Long = p.Leverage
		case exchange.ModeDualShort:
			res.Short = p.Leverage
		case exchange.ModeSingle:
			res.Long, res.Short = p.Leverage, p.Leverage
		}
	}
	return res
}
