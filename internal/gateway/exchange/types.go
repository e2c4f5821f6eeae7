// Package exchange defines the order-execution collaborator used by the trader.
// Concrete backends (REST, browser session, Binance) live in sibling packages.
package exchange

import (
	"fmt"
	"strings"
)

// Side is the direction of a position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// Opposite returns the side that reduces a position of s.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

func ParseSide(raw string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "long", "buy":
		return SideLong, nil
	case "short", "sell":
		return SideShort, nil
	}
	return "", fmt.Errorf("unknown side %q", raw)
}

// PositionSnapshot is the exchange-reported state of a filled entry.
// Size is signed: short positions carry a negative size.
type PositionSnapshot struct {
	Size       float64 `json:"size"`
	EntryPrice float64 `json:"entry_price"`
	Leverage   float64 `json:"leverage"`
	Mode       string  `json:"mode"`
}

// Complete reports whether every field needed for ROI evaluation is populated.
func (p PositionSnapshot) Complete() bool {
	return p.Size != 0 && p.EntryPrice != 0 && p.Leverage != 0 && strings.TrimSpace(p.Mode) != ""
}

// LeverageResult carries the leverage the exchange reports on each leg of a
// dual-mode account after a change request.
type LeverageResult struct {
	Long  string `json:"long"`
	Short string `json:"short"`
}

// Mode values reported in PositionSnapshot.Mode.
const (
	ModeDualLong  = "dual_long"
	ModeDualShort = "dual_short"
	ModeSingle    = "single"
)

// ModeForSide is the dual-mode label for a position opened on side.
func ModeForSide(side Side) string {
	if side == SideShort {
		return ModeDualShort
	}
	return ModeDualLong
}
