package strategy

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"main/internal/model"
	"main/internal/model/enum"
)

var (
	neutral = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Imbalance trades the bid/ask volume ratio over the top book levels:
// enter when one side dominates, exit on time stop, take-profit,
// stop-loss or the ratio crossing back through neutral.
type Imbalance struct {
	params Params
	mu     sync.Mutex
	states map[string]*State
}

// NewImbalance builds an imbalance strategy, filling unset knobs with
// conservative defaults.
func NewImbalance(params Params) *Imbalance {
	if params.Levels <= 0 {
		params.Levels = 5
	}
	if params.BuyThreshold.IsZero() {
		params.BuyThreshold = decimal.RequireFromString("1.5")
	}
	if params.SellThreshold.IsZero() {
		params.SellThreshold = decimal.RequireFromString("0.65")
	}
	if params.BookStaleAfter <= 0 {
		params.BookStaleAfter = 30 * time.Second
	}
	return &Imbalance{
		params: params,
		states: make(map[string]*State),
	}
}

// Name returns the identifier for the strategy implementation.
func (s *Imbalance) Name() string { return "Imbalance" }

// OnBar evaluates exits while in a position and entries while flat.
// Repeated identical bars are ignored.
func (s *Imbalance) OnBar(bar model.Bar, mkt Market) []model.Signal {
	if bar.Symbol == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(bar.Symbol)
	if bar.Ts == st.lastBarTs {
		return nil
	}
	st.lastBarTs = bar.Ts

	if st.InPosition {
		return s.evaluateExit(bar, mkt, st)
	}
	return s.evaluateEntry(bar, mkt, st)
}

// OnExecution flips the lifecycle state after the runner confirms a
// broker execution.
func (s *Imbalance) OnExecution(sig model.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(sig.Symbol)
	switch {
	case sig.Side.IsEntry():
		st.InPosition = true
		st.Side = enum.FromSignal(sig.Side)
		st.EntryPrice = sig.Price
		st.EntryTs = sig.Ts
	case sig.Side == enum.SignalSideClose:
		st.InPosition = false
		st.Side = ""
		st.EntryPrice = decimal.Zero
		st.EntryTs = 0
	}
}

// Reconcile adopts the ledger's open positions as local state.
func (s *Imbalance) Reconcile(open []model.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range open {
		st := s.state(p.Symbol)
		st.InPosition = true
		st.Side = p.Side
		st.EntryPrice = p.EntryPrice
		st.EntryTs = p.EntryTs
	}
}

// Reset drops all per-symbol state.
func (s *Imbalance) Reset() {
	s.mu.Lock()
	s.states = make(map[string]*State)
	s.mu.Unlock()
}

func (s *Imbalance) state(symbol string) *State {
	st := s.states[symbol]
	if st == nil {
		st = &State{}
		s.states[symbol] = st
	}
	return st
}

// evaluateExit checks the exit conditions in priority order, first
// match wins. Exits are exempt from the entry cooldown.
func (s *Imbalance) evaluateExit(bar model.Bar, mkt Market, st *State) []model.Signal {
	var reason string
	switch {
	case s.params.MaxHold > 0 && bar.Ts-st.EntryTs >= s.params.MaxHold.Milliseconds():
		reason = fmt.Sprintf("time stop after %ds", (bar.Ts-st.EntryTs)/1000)
	case s.hitTakeProfit(bar, st):
		reason = "take profit"
	case s.hitStopLoss(bar, st):
		reason = "stop loss"
	case s.reversed(mkt, bar.Time(), st):
		reason = "imbalance reversal"
	default:
		return nil
	}

	st.LastSignalTs = bar.Ts
	st.SignalCount++
	return []model.Signal{{
		Symbol: bar.Symbol,
		Side:   enum.SignalSideClose,
		Qty:    s.params.Qty,
		Price:  bar.Close,
		Reason: reason,
		Ts:     bar.Ts,
	}}
}

func (s *Imbalance) evaluateEntry(bar model.Bar, mkt Market, st *State) []model.Signal {
	if s.params.Cooldown > 0 && st.LastSignalTs > 0 &&
		bar.Ts-st.LastSignalTs < s.params.Cooldown.Milliseconds() {
		return nil
	}
	if mkt.Book == nil || mkt.Book.StaleAt(bar.Time(), s.params.BookStaleAfter) {
		return nil
	}
	if s.params.MaxSpreadPct.IsPositive() {
		spread, ok := mkt.Book.SpreadPct()
		if !ok || spread.GreaterThan(s.params.MaxSpreadPct) {
			return nil
		}
	}

	ratio, ok := mkt.Book.Imbalance(s.params.Levels)
	if !ok {
		return nil
	}

	var side enum.SignalSide
	switch {
	case ratio.GreaterThanOrEqual(s.params.BuyThreshold):
		side = enum.SignalSideBuy
	case ratio.LessThanOrEqual(s.params.SellThreshold):
		// spot mode never generates the short entry; this is not a
		// risk rejection, the signal simply does not exist
		if s.params.LongOnly {
			return nil
		}
		side = enum.SignalSideSell
	default:
		return nil
	}

	st.LastSignalTs = bar.Ts
	st.SignalCount++
	sig := model.Signal{
		Symbol: bar.Symbol,
		Side:   side,
		Qty:    s.params.Qty,
		Price:  bar.Close,
		Reason: fmt.Sprintf("imbalance %s over %d levels", ratio.StringFixed(4), s.params.Levels),
		Ts:     bar.Ts,
	}
	sig.StopLoss, sig.TakeProfit = s.protectionPrices(side, bar.Close)
	return []model.Signal{sig}
}

func (s *Imbalance) hitTakeProfit(bar model.Bar, st *State) bool {
	if !s.params.TakeProfitPct.IsPositive() {
		return false
	}
	return s.gainPct(bar.Close, st).GreaterThanOrEqual(s.params.TakeProfitPct)
}

func (s *Imbalance) hitStopLoss(bar model.Bar, st *State) bool {
	if !s.params.StopLossPct.IsPositive() {
		return false
	}
	return s.gainPct(bar.Close, st).Neg().GreaterThanOrEqual(s.params.StopLossPct)
}

// gainPct is the direction-adjusted unrealized gain in percent.
func (s *Imbalance) gainPct(mark decimal.Decimal, st *State) decimal.Decimal {
	if st.EntryPrice.IsZero() {
		return decimal.Zero
	}
	diff := mark.Sub(st.EntryPrice)
	if st.Side == enum.PositionSideShort {
		diff = st.EntryPrice.Sub(mark)
	}
	return diff.Div(st.EntryPrice).Mul(hundred)
}

// reversed reports whether the imbalance crossed back through neutral
// against the held side. A missing or stale book never forces an exit.
func (s *Imbalance) reversed(mkt Market, now time.Time, st *State) bool {
	if mkt.Book == nil || mkt.Book.StaleAt(now, s.params.BookStaleAfter) {
		return false
	}
	ratio, ok := mkt.Book.Imbalance(s.params.Levels)
	if !ok {
		return false
	}
	if st.Side == enum.PositionSideShort {
		return ratio.GreaterThan(neutral)
	}
	return ratio.LessThan(neutral)
}

func (s *Imbalance) protectionPrices(side enum.SignalSide, price decimal.Decimal) (stopLoss, takeProfit decimal.Decimal) {
	if s.params.StopLossPct.IsPositive() {
		delta := price.Mul(s.params.StopLossPct).Div(hundred)
		if side == enum.SignalSideSell {
			stopLoss = price.Add(delta)
		} else {
			stopLoss = price.Sub(delta)
		}
	}
	if s.params.TakeProfitPct.IsPositive() {
		delta := price.Mul(s.params.TakeProfitPct).Div(hundred)
		if side == enum.SignalSideSell {
			takeProfit = price.Sub(delta)
		} else {
			takeProfit = price.Add(delta)
		}
	}
	return stopLoss, takeProfit
}
