// Package runner drives the decision-and-execution loop: feed to
// strategy to risk gate to broker to ledger to audit log, strictly
// sequential per bar.
package runner

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/audit"
	"main/internal/broker"
	"main/internal/feed"
	"main/internal/ledger"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/internal/risk"
	"main/internal/strategy"
)

const (
	defaultBrokerTimeout = 10 * time.Second
	defaultKillPoll      = time.Second
)

// Outcome is the terminal state of the loop.
type Outcome int

const (
	// OutcomeGraceful means an interrupt or feed end stopped the loop;
	// open positions are intentionally left open.
	OutcomeGraceful Outcome = iota
	// OutcomeKillSwitch means the kill switch halted trading and the
	// emergency shutdown closed positions best-effort.
	OutcomeKillSwitch
)

// priceMarker is implemented by brokers that fill against a marked
// reference price (the paper simulator).
type priceMarker interface {
	MarkPrice(symbol string, price decimal.Decimal)
}

// Store is the ledger surface the loop depends on. *ledger.Ledger
// satisfies it; tests substitute an in-memory implementation.
type Store interface {
	Open(symbol, broker string, side enum.PositionSide, entryPrice, qty decimal.Decimal, now time.Time) (model.Position, error)
	Close(symbol, broker string, exitPrice decimal.Decimal, reason string, now time.Time) (model.Trade, error)
	OpenPositions(broker string) ([]model.Position, error)
}

// Config tunes the loop.
type Config struct {
	// BrokerTimeout bounds every broker call so a pending shutdown is
	// noticed promptly.
	BrokerTimeout time.Duration
	// KillPoll bounds how long the loop waits on the feed before
	// re-checking the kill switch.
	KillPoll time.Duration
}

func (c Config) withDefaults() Config {
	if c.BrokerTimeout <= 0 {
		c.BrokerTimeout = defaultBrokerTimeout
	}
	if c.KillPoll <= 0 {
		c.KillPoll = defaultKillPoll
	}
	return c
}

// Runner owns one feed-to-broker decision loop.
type Runner struct {
	cfg    Config
	feed   feed.Feed
	books  feed.BookSource
	strat  strategy.Strategy
	gate   *risk.Gate
	brk    broker.Broker
	store  Store
	aud    *audit.Writer
	marks  map[string]decimal.Decimal
}

// New wires a runner. books may be nil for strategies that only need
// bars.
func New(cfg Config, f feed.Feed, books feed.BookSource, strat strategy.Strategy, gate *risk.Gate, brk broker.Broker, store Store, aud *audit.Writer) *Runner {
	return &Runner{
		cfg:   cfg.withDefaults(),
		feed:  f,
		books: books,
		strat: strat,
		gate:  gate,
		brk:   brk,
		store: store,
		aud:   aud,
		marks: make(map[string]decimal.Decimal),
	}
}

// Run processes bars until the feed ends, the context is canceled or
// the kill switch fires. The kill switch is re-checked at the top of
// every iteration so a halt is observed within one poll period even
// while the feed is idle.
func (r *Runner) Run(ctx context.Context) (Outcome, error) {
	if err := r.reconcile(); err != nil {
		return OutcomeGraceful, err
	}

	for {
		if reason, halted := r.gate.Halted(); halted {
			logs.Warnf("kill switch active: %s", reason)
			r.emergencyShutdown(ctx, reason)
			return OutcomeKillSwitch, nil
		}

		select {
		case <-ctx.Done():
			r.gracefulShutdown()
			return OutcomeGraceful, nil
		case bar, ok := <-r.feed.Candles():
			if !ok {
				logs.Info("feed closed")
				r.gracefulShutdown()
				return OutcomeGraceful, nil
			}
			r.processBar(ctx, bar)
		case <-time.After(r.cfg.KillPoll):
			// fall through to re-check the kill switch
		}
	}
}

// reconcile adopts the ledger's open positions as the strategy's local
// state after a restart; the ledger stays the source of truth.
func (r *Runner) reconcile() error {
	open, err := r.store.OpenPositions(r.brk.Name())
	if err != nil {
		return err
	}
	if len(open) > 0 {
		logs.Infof("reconciled %d open position(s) from ledger", len(open))
	}
	r.strat.Reconcile(open)
	return nil
}

func (r *Runner) processBar(ctx context.Context, bar model.Bar) {
	r.appendAudit(audit.EventBarReceived, map[string]any{
		"symbol": bar.Symbol,
		"barTs":  bar.Ts,
		"close":  bar.Close,
	})
	obs.BarsTotal.WithLabelValues(bar.Symbol).Inc()

	r.marks[bar.Symbol] = bar.Close
	if marker, ok := r.brk.(priceMarker); ok {
		marker.MarkPrice(bar.Symbol, bar.Close)
	}

	if bar.ZeroVolume {
		logs.Infof("skip zero-volume bar %s@%d", bar.Symbol, bar.Ts)
		r.appendAudit(audit.EventBarSkipped, map[string]any{
			"symbol": bar.Symbol,
			"barTs":  bar.Ts,
			"reason": "zero_volume",
		})
		obs.BarsSkippedTotal.WithLabelValues(bar.Symbol, "zero_volume").Inc()
		return
	}
	if bar.Gap {
		logs.Warnf("gap bar %s@%d, continuing", bar.Symbol, bar.Ts)
	}

	signals := r.safeOnBar(bar)
	for _, sig := range signals {
		r.processSignal(ctx, sig, bar)
	}
}

// safeOnBar shields the loop from a panicking strategy: the bar's
// signal list is treated as empty.
func (r *Runner) safeOnBar(bar model.Bar) (signals []model.Signal) {
	defer func() {
		if rec := recover(); rec != nil {
			logs.Errorf("strategy %s panicked on bar %s@%d: %+v", r.strat.Name(), bar.Symbol, bar.Ts, rec)
			signals = nil
		}
	}()

	var mkt strategy.Market
	if r.books != nil {
		mkt.Book = r.books.Book(bar.Symbol)
	}
	return r.strat.OnBar(bar, mkt)
}

func (r *Runner) processSignal(ctx context.Context, sig model.Signal, bar model.Bar) {
	r.appendAudit(audit.EventSignalGenerated, map[string]any{
		"symbol": sig.Symbol,
		"side":   sig.Side,
		"qty":    sig.Qty,
		"price":  sig.Price,
		"reason": sig.Reason,
	})
	obs.SignalsTotal.WithLabelValues(sig.Symbol, string(sig.Side)).Inc()

	open, err := r.store.OpenPositions(r.brk.Name())
	if err != nil {
		logs.Errorf("list open positions, err: %+v", err)
		return
	}

	res := r.gate.CheckAll(sig, open, bar.Close, time.Now())
	if !res.Pass {
		r.appendAudit(audit.EventRiskBlock, map[string]any{
			"symbol": sig.Symbol,
			"side":   sig.Side,
			"check":  res.Check,
			"reason": res.Reason,
		})
		obs.RiskBlocksTotal.WithLabelValues(sig.Symbol, string(res.Check)).Inc()
		// one rejected signal never aborts the bar
		return
	}

	orderID, err := r.execute(ctx, sig)
	if err != nil {
		logs.Errorf("broker %s %s %s failed, err: %+v", r.brk.Name(), sig.Side, sig.Symbol, err)
		r.appendAudit(audit.EventBrokerError, map[string]any{
			"symbol": sig.Symbol,
			"side":   sig.Side,
			"error":  err.Error(),
		})
		obs.BrokerErrorsTotal.WithLabelValues(sig.Symbol).Inc()
		// counters and ledger are untouched for a failed execution
		return
	}

	r.appendAudit(audit.EventOrderPlaced, map[string]any{
		"symbol":  sig.Symbol,
		"side":    sig.Side,
		"qty":     sig.Qty,
		"price":   sig.Price,
		"orderId": orderID,
	})
	obs.OrdersTotal.WithLabelValues(sig.Symbol, string(sig.Side)).Inc()

	r.settle(sig)
	r.gate.RecordTrade(time.Now())
	r.strat.OnExecution(sig)
}

func (r *Runner) execute(ctx context.Context, sig model.Signal) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.BrokerTimeout)
	defer cancel()

	switch sig.Side {
	case enum.SignalSideBuy:
		return r.brk.Buy(ctx, sig.Symbol, sig.Qty, sig.StopLoss, sig.TakeProfit)
	case enum.SignalSideSell:
		return r.brk.Sell(ctx, sig.Symbol, sig.Qty, sig.StopLoss, sig.TakeProfit)
	case enum.SignalSideClose:
		return "", r.brk.CloseAll(ctx, sig.Symbol)
	default:
		return "", ledger.ErrInvalidSide
	}
}

// settle records a confirmed execution in the ledger and folds realized
// P&L into the gate's daily counter. A ledger integrity error here
// indicates a reconciliation bug upstream and is surfaced loudly.
func (r *Runner) settle(sig model.Signal) {
	now := time.Now()
	switch {
	case sig.Side.IsEntry():
		_, err := r.store.Open(sig.Symbol, r.brk.Name(), enum.FromSignal(sig.Side), sig.Price, sig.Qty, now)
		if err != nil {
			logs.Errorf("ledger open %s, err: %+v", sig.Symbol, err)
		}
	case sig.Side == enum.SignalSideClose:
		trade, err := r.store.Close(sig.Symbol, r.brk.Name(), sig.Price, sig.Reason, now)
		if err != nil {
			logs.Errorf("ledger close %s, err: %+v", sig.Symbol, err)
			return
		}
		r.gate.UpdateDailyPnl(trade.RealizedPnl)
	}
}

// gracefulShutdown logs the final balance and leaves positions open;
// closing them is an operator decision.
func (r *Runner) gracefulShutdown() {
	balance, open := r.finalState()
	logs.Infof("graceful shutdown: balance=%s open_positions=%d", balance, len(open))
	r.appendAudit(audit.EventShutdown, map[string]any{
		"balance":       balance,
		"openPositions": len(open),
	})
}

// emergencyShutdown best-effort closes every open position. It runs to
// completion even when individual closes fail.
func (r *Runner) emergencyShutdown(ctx context.Context, reason string) {
	open, err := r.store.OpenPositions(r.brk.Name())
	if err != nil {
		logs.Errorf("list open positions for emergency close, err: %+v", err)
	}

	for _, pos := range open {
		// emergency shutdown runs to completion; it is not cancellable
		closeCtx, cancel := context.WithTimeout(context.Background(), r.cfg.BrokerTimeout)
		err := r.brk.CloseAll(closeCtx, pos.Symbol)
		cancel()
		if err != nil {
			logs.Errorf("emergency close %s failed, err: %+v", pos.Symbol, err)
			r.appendAudit(audit.EventBrokerError, map[string]any{
				"symbol": pos.Symbol,
				"side":   enum.SignalSideClose,
				"error":  err.Error(),
			})
			continue
		}

		mark, ok := r.marks[pos.Symbol]
		if !ok {
			mark = pos.EntryPrice
		}
		trade, err := r.store.Close(pos.Symbol, pos.Broker, mark, "emergency shutdown", time.Now())
		if err != nil {
			logs.Errorf("ledger close %s after emergency close, err: %+v", pos.Symbol, err)
			continue
		}
		r.gate.UpdateDailyPnl(trade.RealizedPnl)
	}

	balance, remaining := r.finalState()
	logs.Warnf("emergency shutdown (%s): balance=%s open_positions=%d", reason, balance, len(remaining))
	r.appendAudit(audit.EventEmergencyShutdown, map[string]any{
		"reason":        reason,
		"balance":       balance,
		"openPositions": len(remaining),
	})
}

func (r *Runner) finalState() (string, []model.Position) {
	balance := "unknown"
	// the surrounding context may already be canceled during shutdown
	balCtx, cancel := context.WithTimeout(context.Background(), r.cfg.BrokerTimeout)
	if bal, err := r.brk.Balance(balCtx); err == nil {
		balance = bal.String()
	} else {
		logs.Errorf("read final balance, err: %+v", err)
	}
	cancel()

	open, err := r.store.OpenPositions(r.brk.Name())
	if err != nil {
		logs.Errorf("list open positions, err: %+v", err)
	}
	return balance, open
}

func (r *Runner) appendAudit(event audit.Event, fields map[string]any) {
	if err := r.aud.Append(event, fields); err != nil {
		logs.Errorf("audit append %s, err: %+v", event, err)
	}
}
