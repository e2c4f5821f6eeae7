package livehttp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SignalRequest 是 POST /api/live/signals 的请求体。
type SignalRequest struct {
	Signals []SignalItem `json:"signals"`
}

type SignalItem struct {
	Symbol  string  `json:"symbol"`
	IsLong  bool    `json:"is_long"`
	IsShort bool    `json:"is_short"`
	Size    float64 `json:"size"`
}

// RoiRequest 是 POST /api/live/roi 的请求体。
type RoiRequest struct {
	Updates []RoiItem `json:"updates"`
}

type RoiItem struct {
	Symbol           string  `json:"symbol"`
	LastPrice        float64 `json:"last_price"`
	QuantoMultiplier float64 `json:"quanto_multiplier"`
}

type TickRequest struct {
	TickMs int64 `json:"tick_ms"`
}

const signalSchema = `{
  "type": "object",
  "required": ["signals"],
  "properties": {
    "signals": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["symbol", "size"],
        "properties": {
          "symbol": {"type": "string", "minLength": 1},
          "is_long": {"type": "boolean"},
          "is_short": {"type": "boolean"},
          "size": {"type": "number"}
        }
      }
    }
  }
}`

const roiSchema = `{
  "type": "object",
  "required": ["updates"],
  "properties": {
    "updates": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["symbol", "last_price", "quanto_multiplier"],
        "properties": {
          "symbol": {"type": "string", "minLength": 1},
          "last_price": {"type": "number"},
          "quanto_multiplier": {"type": "number"}
        }
      }
    }
  }
}`

const tickSchema = `{
  "type": "object",
  "required": ["tick_ms"],
  "properties": {"tick_ms": {"type": "integer", "minimum": 1}}
}`

func compileSchema(name, raw string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(raw)); err != nil {
		return nil, err
	}
	return compiler.Compile(name)
}

// decodeValidated checks body against schema and then decodes it into out.
func decodeValidated(schema *jsonschema.Schema, body []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}
