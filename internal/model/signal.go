package model

import (
	"github.com/shopspring/decimal"

	"main/internal/model/enum"
)

// Signal is a strategy's request to act. It is consumed once by the
// runner and is never persisted outside the audit log.
type Signal struct {
	Symbol     string
	Side       enum.SignalSide
	Qty        decimal.Decimal
	Price      decimal.Decimal // reference price at generation time, audit only
	StopLoss   decimal.Decimal // zero means unset
	TakeProfit decimal.Decimal // zero means unset
	Reason     string
	Ts         int64 // UTC millisecond epoch
}
