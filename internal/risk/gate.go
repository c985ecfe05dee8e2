// Package risk gates every strategy signal through a fixed, ordered
// sequence of checks before the runner is allowed to execute it.
package risk

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"main/internal/model"
)

// Check identifies one gate check.
type Check string

const (
	CheckKillSwitch   Check = "kill_switch"
	CheckDailyLoss    Check = "daily_loss"
	CheckThrottle     Check = "trade_throttle"
	CheckPositionSize Check = "position_size"
	CheckTradingHours Check = "trading_hours"
)

// Config defines the gate limits. Zero-valued limits disable the
// corresponding check.
type Config struct {
	Halt            bool
	GlobalHalt      bool
	MaxDailyLossUsd decimal.Decimal
	MaxTradesPerDay int
	MaxPositionUsd  decimal.Decimal
	KillSwitchFile  string
	TradingHours    Hours
}

// State holds the gate's daily counters. Counters reset only through
// ResetDailyCounters; the gate never infers day boundaries itself.
type State struct {
	DailyTradeCount  int
	DailyRealizedPnl decimal.Decimal
	LastTradeTs      int64
}

// Result is the outcome of a gate evaluation. Check and Reason are set
// on the first failing check.
type Result struct {
	Pass   bool
	Check  Check
	Reason string
}

func pass() Result { return Result{Pass: true} }

func reject(check Check, reason string) Result {
	return Result{Check: check, Reason: reason}
}

// Gate evaluates risk decisions. Safe for concurrent use by multiple
// symbol runners sharing one set of daily counters.
type Gate struct {
	mu    sync.Mutex
	cfg   Config
	state State
}

// NewGate creates a gate with fresh counters.
func NewGate(cfg Config) *Gate {
	return &Gate{cfg: cfg}
}

// SetConfig swaps the gate limits, e.g. after a config reload.
// Counters are kept.
func (g *Gate) SetConfig(cfg Config) {
	g.mu.Lock()
	g.cfg = cfg
	g.mu.Unlock()
}

// Halted re-reads the kill switch sources: the halt flags and the
// marker file. The file is stat'ed on every call so an operator action
// is observed within one bar period.
func (g *Gate) Halted() (string, bool) {
	g.mu.Lock()
	cfg := g.cfg
	g.mu.Unlock()

	if cfg.GlobalHalt {
		return "halt flag set", true
	}
	if cfg.Halt {
		return "risk halt flag set", true
	}
	if cfg.KillSwitchFile != "" {
		if _, err := os.Stat(cfg.KillSwitchFile); err == nil {
			return "kill switch file present: " + cfg.KillSwitchFile, true
		}
	}
	return "", false
}

// CheckAll runs every check in priority order and returns the first
// failure. The mark price values open positions for the daily loss
// check; now drives the trading hours check.
func (g *Gate) CheckAll(sig model.Signal, open []model.Position, mark decimal.Decimal, now time.Time) Result {
	if reason, halted := g.Halted(); halted {
		return reject(CheckKillSwitch, reason)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cfg.MaxDailyLossUsd.IsPositive() {
		total := g.state.DailyRealizedPnl
		for _, p := range open {
			total = total.Add(p.UnrealizedPnl(mark))
		}
		if total.LessThan(g.cfg.MaxDailyLossUsd.Neg()) {
			return reject(CheckDailyLoss,
				fmt.Sprintf("daily loss %s exceeds limit %s", total, g.cfg.MaxDailyLossUsd))
		}
	}

	if g.cfg.MaxTradesPerDay > 0 && g.state.DailyTradeCount >= g.cfg.MaxTradesPerDay {
		return reject(CheckThrottle,
			fmt.Sprintf("daily trade count %d reached limit %d", g.state.DailyTradeCount, g.cfg.MaxTradesPerDay))
	}

	if g.cfg.MaxPositionUsd.IsPositive() {
		notional := model.Notional(sig.Price, sig.Qty)
		if notional.GreaterThan(g.cfg.MaxPositionUsd) {
			return reject(CheckPositionSize,
				fmt.Sprintf("notional %s exceeds limit %s", notional, g.cfg.MaxPositionUsd))
		}
	}

	if !g.cfg.TradingHours.Contains(now) {
		return reject(CheckTradingHours,
			fmt.Sprintf("%s outside trading hours", now.UTC().Format("15:04")))
	}

	return pass()
}

// RecordTrade bumps the daily counters after a confirmed broker
// execution. Never called for rejected or failed signals.
func (g *Gate) RecordTrade(now time.Time) {
	g.mu.Lock()
	g.state.DailyTradeCount++
	g.state.LastTradeTs = now.UTC().UnixMilli()
	g.mu.Unlock()
}

// UpdateDailyPnl folds a realized P&L delta into the daily counter.
func (g *Gate) UpdateDailyPnl(delta decimal.Decimal) {
	g.mu.Lock()
	g.state.DailyRealizedPnl = g.state.DailyRealizedPnl.Add(delta)
	g.mu.Unlock()
}

// ResetDailyCounters zeroes the daily counters. The caller owns the
// day boundary; the gate has no internal clock.
func (g *Gate) ResetDailyCounters() {
	g.mu.Lock()
	g.state = State{}
	g.mu.Unlock()
}

// Snapshot returns a copy of the current counters.
func (g *Gate) Snapshot() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
