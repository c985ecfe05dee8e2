package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookLevel is one price level of an order book side.
type BookLevel struct {
	Price decimal.Decimal
	Qty   decimal.Decimal
}

// Book is a point-in-time order book snapshot. Bids are sorted best
// (highest) first, asks best (lowest) first.
type Book struct {
	Symbol    string
	Bids      []BookLevel
	Asks      []BookLevel
	UpdatedAt time.Time
}

// BestBid returns the top bid level.
func (b Book) BestBid() (BookLevel, bool) {
	if len(b.Bids) == 0 {
		return BookLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the top ask level.
func (b Book) BestAsk() (BookLevel, bool) {
	if len(b.Asks) == 0 {
		return BookLevel{}, false
	}
	return b.Asks[0], true
}

// Imbalance is the bid/ask volume ratio over the top n levels of each
// side. A ratio above 1 means bid pressure. Returns false when the ask
// side is empty or has zero volume.
func (b Book) Imbalance(n int) (decimal.Decimal, bool) {
	bidVol := sideVolume(b.Bids, n)
	askVol := sideVolume(b.Asks, n)
	if askVol.IsZero() {
		return decimal.Zero, false
	}
	return bidVol.Div(askVol), true
}

// SpreadPct is (ask-bid)/bid in percent. Returns false when either side
// is empty or the best bid is zero.
func (b Book) SpreadPct() (decimal.Decimal, bool) {
	bid, ok := b.BestBid()
	if !ok || bid.Price.IsZero() {
		return decimal.Zero, false
	}
	ask, ok := b.BestAsk()
	if !ok {
		return decimal.Zero, false
	}
	return ask.Price.Sub(bid.Price).Div(bid.Price).Mul(hundred), true
}

// StaleAt reports whether the snapshot is older than maxAge at the given time.
func (b Book) StaleAt(now time.Time, maxAge time.Duration) bool {
	if b.UpdatedAt.IsZero() {
		return true
	}
	return now.Sub(b.UpdatedAt) > maxAge
}

func sideVolume(levels []BookLevel, n int) decimal.Decimal {
	if n <= 0 || n > len(levels) {
		n = len(levels)
	}
	total := decimal.Zero
	for _, lv := range levels[:n] {
		total = total.Add(lv.Qty)
	}
	return total
}
