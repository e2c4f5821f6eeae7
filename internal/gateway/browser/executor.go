// Package browser drives the exchange web UI through a logged-in Chrome
// session. Orders are sent with fetch() from inside the page so the session
// cookies authenticate them.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gatebot/internal/gateway/exchange"
	"gatebot/internal/logger"
	symbolpkg "gatebot/internal/pkg/symbol"

	"github.com/tidwall/gjson"
)

const DefaultAPIBase = "/apiw/v2/futures/usdt"

var browserLog = logger.Named("browser")

type Executor struct {
	eval    Evaluator
	apiBase string
}

var _ exchange.Executor = (*Executor)(nil)

func NewExecutor(eval Evaluator, apiBase string) *Executor {
	apiBase = strings.TrimRight(strings.TrimSpace(apiBase), "/")
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	return &Executor{eval: eval, apiBase: apiBase}
}

func (e *Executor) Name() string { return "browser" }

func (e *Executor) SubmitEntry(ctx context.Context, symbol string, side exchange.Side, size float64) (exchange.PositionSnapshot, error) {
	contract := contractName(symbol)
	qty, err := contractSize(size)
	if err != nil {
		return exchange.PositionSnapshot{}, err
	}
	if side == exchange.SideShort {
		qty = -qty
	}
	order := orderBody{Contract: contract, Size: qty, Price: "0", Tif: "ioc", Text: "t-gatebot"}
	placed, err := e.call(ctx, "POST", e.apiBase+"/orders", order)
	if err != nil {
		return exchange.PositionSnapshot{}, fmt.Errorf("create order %s: %w", contract, err)
	}
	browserLog.Infof("order placed %s size=%d id=%s", contract, qty, placed.Get("id").String())

	positions, err := e.call(ctx, "GET", e.apiBase+"/dual_comp/positions/"+contract, nil)
	if err != nil {
		browserLog.Warnf("position lookup failed %s: %v", contract, err)
		return exchange.PositionSnapshot{Size: float64(qty), EntryPrice: placed.Get("fill_price").Float(), Mode: exchange.ModeForSide(side)}, nil
	}
	if snap, ok := pickPosition(positions, side); ok {
		return snap, nil
	}
	return exchange.PositionSnapshot{Size: float64(qty), EntryPrice: placed.Get("fill_price").Float(), Mode: exchange.ModeForSide(side)}, nil
}

func (e *Executor) ChangeLeverage(ctx context.Context, symbol string, leverage string) (exchange.LeverageResult, error) {
	contract := contractName(symbol)
	path := fmt.Sprintf("%s/dual_comp/positions/%s/leverage?leverage=%s", e.apiBase, contract, leverage)
	positions, err := e.call(ctx, "POST", path, nil)
	if err != nil {
		return exchange.LeverageResult{}, fmt.Errorf("update leverage %s: %w", contract, err)
	}
	var res exchange.LeverageResult
	positions.ForEach(func(_, p gjson.Result) bool {
		switch p.Get("mode").String() {
		case exchange.ModeDualLong:
			res.Long = p.Get("leverage").String()
		case exchange.ModeDualShort:
			res.Short = p.Get("leverage").String()
		}
		return true
	})
	return res, nil
}

func (e *Executor) SubmitClose(ctx context.Context, symbol string, side exchange.Side, size float64) error {
	contract := contractName(symbol)
	qty, err := contractSize(size)
	if err != nil {
		return err
	}
	if side == exchange.SideLong {
		qty = -qty
	}
	order := orderBody{Contract: contract, Size: qty, Price: "0", Tif: "ioc", ReduceOnly: true, Text: "t-gatebot"}
	if _, err := e.call(ctx, "POST", e.apiBase+"/orders", order); err != nil {
		return fmt.Errorf("close order %s: %w", contract, err)
	}
	return nil
}

type orderBody struct {
	Contract   string `json:"contract"`
	Size       int64  `json:"size"`
	Price      string `json:"price"`
	Tif        string `json:"tif"`
	ReduceOnly bool   `json:"reduce_only,omitempty"`
	Text       string `json:"text,omitempty"`
}

func (e *Executor) call(ctx context.Context, method, path string, body any) (gjson.Result, error) {
	script, err := fetchScript(method, path, body)
	if err != nil {
		return gjson.Result{}, err
	}
	raw, err := e.eval.Eval(ctx, script)
	if err != nil {
		return gjson.Result{}, err
	}
	return decodeResponse(raw)
}

// fetchScript renders a same-origin fetch whose result is
// {"status": <http status>, "body": <response text>}.
func fetchScript(method, path string, body any) (string, error) {
	payload := "undefined"
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return "", err
		}
		payload = strconv.Quote(string(raw))
	}
	return fmt.Sprintf(`(async () => {
  const r = await fetch(%s, {method: %s, credentials: "include", headers: {"Content-Type": "application/json"}, body: %s});
  const text = await r.text();
  return JSON.stringify({status: r.status, body: text});
})()`, strconv.Quote(path), strconv.Quote(method), payload), nil
}

// decodeResponse unwraps the fetch envelope and the web API's
// {"code","message","data"} wrapper when present.
func decodeResponse(raw string) (gjson.Result, error) {
	if !gjson.Valid(raw) {
		return gjson.Result{}, fmt.Errorf("invalid fetch envelope")
	}
	outer := gjson.Parse(raw)
	status := outer.Get("status").Int()
	text := outer.Get("body").String()
	if !gjson.Valid(text) {
		return gjson.Result{}, fmt.Errorf("http %d: non-json body", status)
	}
	res := gjson.Parse(text)

	label := res.Get("label").String()
	if label == "" && res.Get("code").Exists() && res.Get("code").Int() != 0 {
		label = res.Get("code").String()
	}
	msg := res.Get("message").String()
	switch {
	case status >= 500:
		return gjson.Result{}, fmt.Errorf("http %d: %s", status, msg)
	case status >= 400 || label != "":
		if status == 401 || status == 403 {
			return gjson.Result{}, fmt.Errorf("session not authorized (http %d)", status)
		}
		return gjson.Result{}, &exchange.RejectedError{Code: label, Message: msg}
	}
	if data := res.Get("data"); data.Exists() {
		return data, nil
	}
	return res, nil
}

func pickPosition(positions gjson.Result, side exchange.Side) (exchange.PositionSnapshot, bool) {
	want := exchange.ModeForSide(side)
	var snap exchange.PositionSnapshot
	found := false
	positions.ForEach(func(_, p gjson.Result) bool {
		if p.Get("mode").String() != want || p.Get("size").Int() == 0 {
			return true
		}
		snap = exchange.PositionSnapshot{
			Size:       p.Get("size").Float(),
			EntryPrice: p.Get("entry_price").Float(),
			Leverage:   p.Get("leverage").Float(),
			Mode:       want,
		}
		found = true
		return false
	})
	return snap, found
}

func contractName(symbol string) string {
	return strings.ToUpper(symbolpkg.Gate.ToExchange(symbolpkg.Normalize(symbol)))
}

func contractSize(size float64) (int64, error) {
	n := int64(math.Round(math.Abs(size)))
	if n < 1 {
		return 0, &exchange.RejectedError{Code: "INVALID_SIZE", Message: fmt.Sprintf("size %v rounds to zero contracts", size)}
	}
	return n, nil
}
