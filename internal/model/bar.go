package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one completed OHLCV candle. Bars are immutable after the feed
// emits them; downstream consumers read only.
type Bar struct {
	Symbol     string          `json:"symbol"`
	Ts         int64           `json:"ts"` // UTC millisecond epoch of the bar open
	Open       decimal.Decimal `json:"open"`
	High       decimal.Decimal `json:"high"`
	Low        decimal.Decimal `json:"low"`
	Close      decimal.Decimal `json:"close"`
	Volume     decimal.Decimal `json:"volume"`
	Gap        bool            `json:"gap,omitempty"`        // bar was synthesized over a feed gap
	ZeroVolume bool            `json:"zeroVolume,omitempty"` // exchange reported no trades
}

// Time returns the bar open time in UTC.
func (b Bar) Time() time.Time {
	return time.UnixMilli(b.Ts).UTC()
}
