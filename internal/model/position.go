package model

import (
	"github.com/shopspring/decimal"

	"main/internal/model/enum"
)

var hundred = decimal.NewFromInt(100)

// Position is a currently open exposure in one symbol on one broker.
// At most one open position exists per (symbol, broker) pair.
type Position struct {
	ID         int64
	Symbol     string
	Broker     string
	Side       enum.PositionSide
	EntryPrice decimal.Decimal
	Qty        decimal.Decimal
	EntryTs    int64 // UTC millisecond epoch
}

// Trade is the immutable record of a closed position.
type Trade struct {
	ID              int64
	Symbol          string
	Broker          string
	Side            enum.PositionSide
	EntryPrice      decimal.Decimal
	ExitPrice       decimal.Decimal
	Qty             decimal.Decimal
	EntryTs         int64
	ExitTs          int64
	ExitReason      string
	RealizedPnl     decimal.Decimal
	RealizedPnlPct  decimal.Decimal
	DurationSeconds int64
}

// UnrealizedPnl values the position against a mark price.
func (p Position) UnrealizedPnl(mark decimal.Decimal) decimal.Decimal {
	if p.Side == enum.PositionSideShort {
		return p.EntryPrice.Sub(mark).Mul(p.Qty)
	}
	return mark.Sub(p.EntryPrice).Mul(p.Qty)
}

// UnrealizedPnlPct is the unrealized gain relative to entry price, in percent.
func (p Position) UnrealizedPnlPct(mark decimal.Decimal) decimal.Decimal {
	if p.EntryPrice.IsZero() {
		return decimal.Zero
	}
	diff := mark.Sub(p.EntryPrice)
	if p.Side == enum.PositionSideShort {
		diff = p.EntryPrice.Sub(mark)
	}
	return diff.Div(p.EntryPrice).Mul(hundred)
}

// Notional is quantity times price.
func Notional(price, qty decimal.Decimal) decimal.Decimal {
	return price.Mul(qty)
}
