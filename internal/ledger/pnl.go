package ledger

import (
	"github.com/shopspring/decimal"

	"main/internal/model/enum"
)

var hundred = decimal.NewFromInt(100)

// RealizedPnl is (exit-entry)*qty for a long, (entry-exit)*qty for a short.
func RealizedPnl(side enum.PositionSide, entry, exit, qty decimal.Decimal) decimal.Decimal {
	if side == enum.PositionSideShort {
		return entry.Sub(exit).Mul(qty)
	}
	return exit.Sub(entry).Mul(qty)
}

// RealizedPnlPct is the realized gain relative to the entry price, in percent.
func RealizedPnlPct(side enum.PositionSide, entry, exit decimal.Decimal) decimal.Decimal {
	if entry.IsZero() {
		return decimal.Zero
	}
	diff := exit.Sub(entry)
	if side == enum.PositionSideShort {
		diff = entry.Sub(exit)
	}
	return diff.Div(entry).Mul(hundred)
}

// WeightedEntry recomputes the average entry price after averaging an
// extra lot into an open position.
func WeightedEntry(entry, qty, extraPrice, extraQty decimal.Decimal) decimal.Decimal {
	totalQty := qty.Add(extraQty)
	if totalQty.IsZero() {
		return entry
	}
	return entry.Mul(qty).Add(extraPrice.Mul(extraQty)).Div(totalQty)
}
