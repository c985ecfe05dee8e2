package strategy

import (
	"github.com/shopspring/decimal"

	"main/internal/model/enum"
)

// State is the per-symbol lifecycle state of one strategy instance.
// InPosition is a local cache of the ledger's view, used only for
// signal suppression; the ledger stays the source of truth.
type State struct {
	InPosition   bool
	Side         enum.PositionSide
	EntryPrice   decimal.Decimal
	EntryTs      int64
	LastSignalTs int64
	SignalCount  int

	lastBarTs int64
}
