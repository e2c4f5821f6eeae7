// Package binance executes entries on Binance USDⓈ-M futures in hedge mode.
package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"gatebot/internal/gateway/exchange"
	"gatebot/internal/logger"
	symbolpkg "gatebot/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
)

var binanceLog = logger.Named("binance")

type Executor struct {
	cfg    Config
	client *futures.Client
}

var _ exchange.Executor = (*Executor)(nil)

func NewExecutor(cfg Config) (*Executor, error) {
	final := cfg.withDefaults()
	if final.APIKey == "" || final.APISecret == "" {
		return nil, fmt.Errorf("binance executor requires api key and secret")
	}
	futures.UseTestnet = final.Testnet
	client := futures.NewClient(final.APIKey, final.APISecret)
	if final.RESTBaseURL != "" {
		client.BaseURL = final.RESTBaseURL
	}
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyURL != "" {
		proxyURL, err := url.Parse(final.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	return &Executor{cfg: final, client: client}, nil
}

func (e *Executor) Name() string { return "binance" }

func (e *Executor) SubmitEntry(ctx context.Context, symbol string, side exchange.Side, size float64) (exchange.PositionSnapshot, error) {
	sym := symbolpkg.Binance.ToExchange(symbol)
	orderSide, posSide := entrySides(side)
	resp, err := e.client.NewCreateOrderService().
		Symbol(sym).
		Side(orderSide).
		PositionSide(posSide).
		Type(futures.OrderTypeMarket).
		Quantity(formatQuantity(size)).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT).
		Do(ctx)
	if err != nil {
		return exchange.PositionSnapshot{}, classify("create order "+sym, err)
	}
	binanceLog.Infof("order placed %s %s qty=%s avg=%s", sym, posSide, resp.ExecutedQuantity, resp.AvgPrice)

	risks, err := e.client.NewGetPositionRiskService().Symbol(sym).Do(ctx)
	if err != nil {
		binanceLog.Warnf("position risk failed %s: %v", sym, err)
		return snapshotFromFill(side, resp.ExecutedQuantity, resp.AvgPrice), nil
	}
	if snap, ok := pickPosition(risks, side); ok {
		return snap, nil
	}
	return snapshotFromFill(side, resp.ExecutedQuantity, resp.AvgPrice), nil
}

// ChangeLeverage sets the symbol leverage. Binance applies one value to both
// hedge legs, so both are reported with the same value.
func (e *Executor) ChangeLeverage(ctx context.Context, symbol string, leverage string) (exchange.LeverageResult, error) {
	sym := symbolpkg.Binance.ToExchange(symbol)
	lev, err := strconv.Atoi(strings.TrimSpace(leverage))
	if err != nil || lev <= 0 {
		return exchange.LeverageResult{}, &exchange.RejectedError{Code: "INVALID_LEVERAGE", Message: leverage}
	}
	res, err := e.client.NewChangeLeverageService().Symbol(sym).Leverage(lev).Do(ctx)
	if err != nil {
		return exchange.LeverageResult{}, classify("change leverage "+sym, err)
	}
	v := strconv.Itoa(res.Leverage)
	return exchange.LeverageResult{Long: v, Short: v}, nil
}

func (e *Executor) SubmitClose(ctx context.Context, symbol string, side exchange.Side, size float64) error {
	sym := symbolpkg.Binance.ToExchange(symbol)
	orderSide, posSide := closeSides(side)
	_, err := e.client.NewCreateOrderService().
		Symbol(sym).
		Side(orderSide).
		PositionSide(posSide).
		Type(futures.OrderTypeMarket).
		Quantity(formatQuantity(size)).
		Do(ctx)
	if err != nil {
		return classify("close order "+sym, err)
	}
	return nil
}

func entrySides(side exchange.Side) (futures.SideType, futures.PositionSideType) {
	if side == exchange.SideShort {
		return futures.SideTypeSell, futures.PositionSideTypeShort
	}
	return futures.SideTypeBuy, futures.PositionSideTypeLong
}

func closeSides(side exchange.Side) (futures.SideType, futures.PositionSideType) {
	if side == exchange.SideShort {
		return futures.SideTypeBuy, futures.PositionSideTypeShort
	}
	return futures.SideTypeSell, futures.PositionSideTypeLong
}

func formatQuantity(size float64) string {
	return decimal.NewFromFloat(size).Abs().String()
}

func pickPosition(risks []*futures.PositionRisk, side exchange.Side) (exchange.PositionSnapshot, bool) {
	want := string(futures.PositionSideTypeLong)
	if side == exchange.SideShort {
		want = string(futures.PositionSideTypeShort)
	}
	for _, r := range risks {
		if r == nil || !strings.EqualFold(r.PositionSide, want) {
			continue
		}
		amt := parseFloat(r.PositionAmt)
		if amt == 0 {
			continue
		}
		return exchange.PositionSnapshot{
			Size:       amt,
			EntryPrice: parseFloat(r.EntryPrice),
			Leverage:   parseFloat(r.Leverage),
			Mode:       exchange.ModeForSide(side),
		}, true
	}
	return exchange.PositionSnapshot{}, false
}

func snapshotFromFill(side exchange.Side, qty, avg string) exchange.PositionSnapshot {
	size := parseFloat(qty)
	if side == exchange.SideShort {
		size = -size
	}
	return exchange.PositionSnapshot{Size: size, EntryPrice: parseFloat(avg), Mode: exchange.ModeForSide(side)}
}

func classify(op string, err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", op, &exchange.RejectedError{Code: strconv.FormatInt(apiErr.Code, 10), Message: apiErr.Message})
	}
	return fmt.Errorf("%s: %w", op, err)
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
