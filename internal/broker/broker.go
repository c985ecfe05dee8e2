// Package broker defines the execution capability the runner depends
// on. Concrete exchange REST adapters plug in behind this interface;
// the in-tree implementation is a paper simulator.
package broker

import (
	"context"

	"github.com/shopspring/decimal"

	"main/internal/model"
)

// Broker executes orders against one exchange account. Every method
// may fail with a broker-specific error; the runner treats those as
// per-signal failures, never fatal.
type Broker interface {
	Name() string
	Buy(ctx context.Context, symbol string, qty, stopLoss, takeProfit decimal.Decimal) (orderID string, err error)
	Sell(ctx context.Context, symbol string, qty, stopLoss, takeProfit decimal.Decimal) (orderID string, err error)
	CloseAll(ctx context.Context, symbol string) error
	Positions(ctx context.Context) (map[string]model.Position, error)
	Balance(ctx context.Context) (decimal.Decimal, error)
}
