package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stats summarizes closed trades over a trailing window.
type Stats struct {
	Trades       int
	Wins         int
	Losses       int
	WinRatePct   decimal.Decimal
	AvgWin       decimal.Decimal
	AvgLoss      decimal.Decimal
	TotalPnl     decimal.Decimal
	ProfitFactor decimal.Decimal // total wins / total losses; zero when no losing trades
}

// Statistics computes win rate, average win/loss and profit factor over
// trades closed in the last windowDays.
func (l *Ledger) Statistics(broker string, windowDays int, now time.Time) (Stats, error) {
	since := now.UTC().AddDate(0, 0, -windowDays)
	trades, err := l.Trades(broker, since)
	if err != nil {
		return Stats{}, err
	}

	var s Stats
	totalWins := decimal.Zero
	totalLosses := decimal.Zero
	for _, t := range trades {
		s.Trades++
		s.TotalPnl = s.TotalPnl.Add(t.RealizedPnl)
		switch {
		case t.RealizedPnl.IsPositive():
			s.Wins++
			totalWins = totalWins.Add(t.RealizedPnl)
		case t.RealizedPnl.IsNegative():
			s.Losses++
			totalLosses = totalLosses.Add(t.RealizedPnl.Abs())
		}
	}

	if s.Trades > 0 {
		s.WinRatePct = decimal.NewFromInt(int64(s.Wins)).
			Div(decimal.NewFromInt(int64(s.Trades))).Mul(hundred)
	}
	if s.Wins > 0 {
		s.AvgWin = totalWins.Div(decimal.NewFromInt(int64(s.Wins)))
	}
	if s.Losses > 0 {
		s.AvgLoss = totalLosses.Div(decimal.NewFromInt(int64(s.Losses)))
		s.ProfitFactor = totalWins.Div(totalLosses)
	}
	return s, nil
}
