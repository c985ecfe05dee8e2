// Package strategy contains the signal generation logic the runner
// drives with completed bars.
package strategy

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"main/internal/model"
)

// Market carries the per-bar market context beyond the candle itself.
type Market struct {
	Book *model.Book
}

// Strategy is the behaviour shared by strategy implementations. OnBar
// never touches the broker or the risk gate; it only mutates the
// strategy's own per-symbol state and returns signals for the runner
// to act on.
type Strategy interface {
	Name() string
	OnBar(bar model.Bar, mkt Market) []model.Signal
	// OnExecution confirms that the runner executed a signal at the
	// broker; entry/exit lifecycle transitions happen here, not at
	// signal emission.
	OnExecution(sig model.Signal)
	// Reconcile syncs local position state with the ledger after a
	// process restart.
	Reconcile(open []model.Position)
	Reset()
}

// Params expresses the tunable knobs required by strategy constructors.
type Params struct {
	Qty            decimal.Decimal
	Levels         int
	BuyThreshold   decimal.Decimal
	SellThreshold  decimal.Decimal
	Cooldown       time.Duration
	MaxSpreadPct   decimal.Decimal
	BookStaleAfter time.Duration
	MaxHold        time.Duration
	TakeProfitPct  decimal.Decimal
	StopLossPct    decimal.Decimal
	LongOnly       bool
}

// Build returns the strategy implementation matching the configured mode.
func Build(mode string, params Params) Strategy {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "imbalance", "obi":
		return NewImbalance(params)
	default:
		return NewImbalance(params)
	}
}
