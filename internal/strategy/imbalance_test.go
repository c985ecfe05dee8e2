package strategy

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"main/internal/model"
	"main/internal/model/enum"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var t0 = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC).UnixMilli()

func barAt(ts int64, close string) model.Bar {
	return model.Bar{
		Symbol: "BTCUSDT",
		Ts:     ts,
		Open:   d(close),
		High:   d(close),
		Low:    d(close),
		Close:  d(close),
		Volume: d("10"),
	}
}

// bookAt builds a one-level book with the given bid/ask volumes, fresh
// at the bar time.
func bookAt(ts int64, bidQty, askQty string) *model.Book {
	return &model.Book{
		Symbol:    "BTCUSDT",
		Bids:      []model.BookLevel{{Price: d("100"), Qty: d(bidQty)}},
		Asks:      []model.BookLevel{{Price: d("100.01"), Qty: d(askQty)}},
		UpdatedAt: time.UnixMilli(ts).UTC(),
	}
}

func defaultParams() Params {
	return Params{Qty: d("1")}
}

func TestImbalanceEntersLongOnBidPressure(t *testing.T) {
	s := NewImbalance(defaultParams())
	bar := barAt(t0, "100")
	sigs := s.OnBar(bar, Market{Book: bookAt(t0, "30", "10")}) // ratio 3

	if len(sigs) != 1 {
		t.Fatalf("signals: got %d want 1", len(sigs))
	}
	sig := sigs[0]
	if sig.Side != enum.SignalSideBuy {
		t.Fatalf("side: got %s want buy", sig.Side)
	}
	if !sig.Qty.Equal(d("1")) || !sig.Price.Equal(d("100")) {
		t.Fatalf("sizing: got qty=%s price=%s", sig.Qty, sig.Price)
	}
	if sig.Ts != bar.Ts {
		t.Fatalf("ts: got %d want %d", sig.Ts, bar.Ts)
	}
}

func TestImbalanceEntersShortOnAskPressure(t *testing.T) {
	s := NewImbalance(defaultParams())
	sigs := s.OnBar(barAt(t0, "100"), Market{Book: bookAt(t0, "5", "10")}) // ratio 0.5

	if len(sigs) != 1 || sigs[0].Side != enum.SignalSideSell {
		t.Fatalf("got %+v want one sell signal", sigs)
	}
}

func TestImbalanceNeutralBookStaysFlat(t *testing.T) {
	s := NewImbalance(defaultParams())
	if sigs := s.OnBar(barAt(t0, "100"), Market{Book: bookAt(t0, "10", "10")}); sigs != nil {
		t.Fatalf("neutral ratio produced %+v", sigs)
	}
}

func TestImbalanceLongOnlySuppressesShortEntry(t *testing.T) {
	params := defaultParams()
	params.LongOnly = true
	s := NewImbalance(params)

	if sigs := s.OnBar(barAt(t0, "100"), Market{Book: bookAt(t0, "5", "10")}); sigs != nil {
		t.Fatalf("long-only mode emitted %+v", sigs)
	}
	// the buy path is unaffected
	sigs := s.OnBar(barAt(t0+60_000, "100"), Market{Book: bookAt(t0+60_000, "30", "10")})
	if len(sigs) != 1 || sigs[0].Side != enum.SignalSideBuy {
		t.Fatalf("got %+v want one buy signal", sigs)
	}
}

func TestImbalanceNilOrStaleBookStaysFlat(t *testing.T) {
	s := NewImbalance(defaultParams())
	if sigs := s.OnBar(barAt(t0, "100"), Market{}); sigs != nil {
		t.Fatalf("nil book produced %+v", sigs)
	}

	stale := bookAt(t0-31_000, "30", "10") // default staleness is 30s
	if sigs := s.OnBar(barAt(t0+60_000, "100"), Market{Book: stale}); sigs != nil {
		t.Fatalf("stale book produced %+v", sigs)
	}
}

func TestImbalanceSpreadFilter(t *testing.T) {
	params := defaultParams()
	params.MaxSpreadPct = d("0.05")
	s := NewImbalance(params)

	wide := bookAt(t0, "30", "10")
	wide.Asks[0].Price = d("100.2") // 0.2% spread
	if sigs := s.OnBar(barAt(t0, "100"), Market{Book: wide}); sigs != nil {
		t.Fatalf("wide spread produced %+v", sigs)
	}

	if sigs := s.OnBar(barAt(t0+60_000, "100"), Market{Book: bookAt(t0+60_000, "30", "10")}); len(sigs) != 1 {
		t.Fatalf("tight spread: got %+v want one signal", sigs)
	}
}

func TestImbalanceCooldownBlocksEntries(t *testing.T) {
	params := defaultParams()
	params.Cooldown = time.Minute
	s := NewImbalance(params)

	strong := func(ts int64) Market { return Market{Book: bookAt(ts, "30", "10")} }

	if sigs := s.OnBar(barAt(t0, "100"), strong(t0)); len(sigs) != 1 {
		t.Fatalf("first entry: got %+v want one signal", sigs)
	}
	// signal rejected downstream, strategy stays flat but cooldown holds
	if sigs := s.OnBar(barAt(t0+1_000, "100"), strong(t0+1_000)); sigs != nil {
		t.Fatalf("entry inside cooldown produced %+v", sigs)
	}
	if sigs := s.OnBar(barAt(t0+61_000, "100"), strong(t0+61_000)); len(sigs) != 1 {
		t.Fatalf("entry after cooldown: got %+v want one signal", sigs)
	}
}

func TestImbalanceRepeatedBarIsIgnored(t *testing.T) {
	s := NewImbalance(defaultParams())
	bar := barAt(t0, "100")
	mkt := Market{Book: bookAt(t0, "30", "10")}

	if sigs := s.OnBar(bar, mkt); len(sigs) != 1 {
		t.Fatalf("first delivery: got %+v want one signal", sigs)
	}
	if sigs := s.OnBar(bar, mkt); sigs != nil {
		t.Fatalf("redelivered bar produced %+v", sigs)
	}
}

func TestImbalanceNoEntryWhileInPosition(t *testing.T) {
	s := NewImbalance(defaultParams())
	sigs := s.OnBar(barAt(t0, "100"), Market{Book: bookAt(t0, "30", "10")})
	if len(sigs) != 1 {
		t.Fatalf("entry: got %+v want one signal", sigs)
	}
	s.OnExecution(sigs[0])

	// bid pressure persists; a second entry would double the exposure
	if sigs := s.OnBar(barAt(t0+60_000, "100"), Market{Book: bookAt(t0+60_000, "30", "10")}); sigs != nil {
		t.Fatalf("in-position bar produced %+v", sigs)
	}
}

func enterLong(t *testing.T, s *Imbalance, ts int64, price string) {
	t.Helper()
	sigs := s.OnBar(barAt(ts, price), Market{Book: bookAt(ts, "30", "10")})
	if len(sigs) != 1 || sigs[0].Side != enum.SignalSideBuy {
		t.Fatalf("long entry: got %+v", sigs)
	}
	s.OnExecution(sigs[0])
}

func TestImbalanceExitOnReversal(t *testing.T) {
	s := NewImbalance(defaultParams())
	enterLong(t, s, t0, "100")

	// ratio 0.9 crosses below neutral against the long
	ts := t0 + 60_000
	sigs := s.OnBar(barAt(ts, "100.5"), Market{Book: bookAt(ts, "9", "10")})
	if len(sigs) != 1 || sigs[0].Side != enum.SignalSideClose {
		t.Fatalf("got %+v want one close signal", sigs)
	}
	if sigs[0].Reason != "imbalance reversal" {
		t.Fatalf("reason: got %q", sigs[0].Reason)
	}
}

func TestImbalanceExitOnTakeProfit(t *testing.T) {
	params := defaultParams()
	params.TakeProfitPct = d("1")
	s := NewImbalance(params)
	enterLong(t, s, t0, "100")

	// +0.5% is not enough
	if sigs := s.OnBar(barAt(t0+60_000, "100.5"), Market{Book: bookAt(t0+60_000, "30", "10")}); sigs != nil {
		t.Fatalf("below take profit produced %+v", sigs)
	}
	sigs := s.OnBar(barAt(t0+120_000, "101"), Market{Book: bookAt(t0+120_000, "30", "10")})
	if len(sigs) != 1 || sigs[0].Reason != "take profit" {
		t.Fatalf("got %+v want take profit close", sigs)
	}
}

func TestImbalanceExitOnStopLoss(t *testing.T) {
	params := defaultParams()
	params.StopLossPct = d("2")
	s := NewImbalance(params)
	enterLong(t, s, t0, "100")

	sigs := s.OnBar(barAt(t0+60_000, "97"), Market{Book: bookAt(t0+60_000, "30", "10")})
	if len(sigs) != 1 || sigs[0].Reason != "stop loss" {
		t.Fatalf("got %+v want stop loss close", sigs)
	}
}

// Time stop outranks take profit when both trigger on the same bar.
func TestImbalanceExitPriority(t *testing.T) {
	params := defaultParams()
	params.MaxHold = time.Minute
	params.TakeProfitPct = d("1")
	s := NewImbalance(params)
	enterLong(t, s, t0, "100")

	sigs := s.OnBar(barAt(t0+60_000, "102"), Market{Book: bookAt(t0+60_000, "30", "10")})
	if len(sigs) != 1 {
		t.Fatalf("got %+v want one close signal", sigs)
	}
	if !strings.HasPrefix(sigs[0].Reason, "time stop") {
		t.Fatalf("reason: got %q want time stop", sigs[0].Reason)
	}
}

// Exits must fire even inside the entry cooldown window.
func TestImbalanceExitBypassesCooldown(t *testing.T) {
	params := defaultParams()
	params.Cooldown = time.Hour
	s := NewImbalance(params)
	enterLong(t, s, t0, "100")

	ts := t0 + 60_000
	sigs := s.OnBar(barAt(ts, "100"), Market{Book: bookAt(ts, "9", "10")})
	if len(sigs) != 1 || sigs[0].Side != enum.SignalSideClose {
		t.Fatalf("got %+v want one close signal", sigs)
	}
}

func TestImbalanceProtectionPrices(t *testing.T) {
	params := defaultParams()
	params.StopLossPct = d("2")
	params.TakeProfitPct = d("1")
	s := NewImbalance(params)

	sigs := s.OnBar(barAt(t0, "100"), Market{Book: bookAt(t0, "30", "10")})
	if len(sigs) != 1 {
		t.Fatalf("got %+v want one buy signal", sigs)
	}
	if !sigs[0].StopLoss.Equal(d("98")) {
		t.Fatalf("stop loss: got %s want 98", sigs[0].StopLoss)
	}
	if !sigs[0].TakeProfit.Equal(d("101")) {
		t.Fatalf("take profit: got %s want 101", sigs[0].TakeProfit)
	}

	short := NewImbalance(params)
	sigs = short.OnBar(barAt(t0, "100"), Market{Book: bookAt(t0, "5", "10")})
	if len(sigs) != 1 || sigs[0].Side != enum.SignalSideSell {
		t.Fatalf("got %+v want one sell signal", sigs)
	}
	if !sigs[0].StopLoss.Equal(d("102")) || !sigs[0].TakeProfit.Equal(d("99")) {
		t.Fatalf("short protection: got sl=%s tp=%s want sl=102 tp=99", sigs[0].StopLoss, sigs[0].TakeProfit)
	}
}

func TestImbalanceOnExecutionCloseFlattens(t *testing.T) {
	s := NewImbalance(defaultParams())
	enterLong(t, s, t0, "100")

	s.OnExecution(model.Signal{Symbol: "BTCUSDT", Side: enum.SignalSideClose, Ts: t0 + 60_000})

	// flat again, a fresh imbalance re-enters
	ts := t0 + 120_000
	sigs := s.OnBar(barAt(ts, "100"), Market{Book: bookAt(ts, "30", "10")})
	if len(sigs) != 1 || sigs[0].Side != enum.SignalSideBuy {
		t.Fatalf("got %+v want one buy signal after flatten", sigs)
	}
}

func TestImbalanceReconcileAdoptsLedgerPositions(t *testing.T) {
	params := defaultParams()
	params.TakeProfitPct = d("1")
	s := NewImbalance(params)

	s.Reconcile([]model.Position{{
		Symbol:     "BTCUSDT",
		Side:       enum.PositionSideLong,
		EntryPrice: d("100"),
		Qty:        d("1"),
		EntryTs:    t0,
	}})

	// the adopted position exits on take profit instead of re-entering
	sigs := s.OnBar(barAt(t0+60_000, "101"), Market{Book: bookAt(t0+60_000, "30", "10")})
	if len(sigs) != 1 || sigs[0].Side != enum.SignalSideClose {
		t.Fatalf("got %+v want one close signal", sigs)
	}
}

func TestImbalanceTracksSymbolsIndependently(t *testing.T) {
	s := NewImbalance(defaultParams())
	enterLong(t, s, t0, "100")

	eth := barAt(t0, "2000")
	eth.Symbol = "ETHUSDT"
	book := bookAt(t0, "30", "10")
	book.Symbol = "ETHUSDT"
	sigs := s.OnBar(eth, Market{Book: book})
	if len(sigs) != 1 || sigs[0].Side != enum.SignalSideBuy || sigs[0].Symbol != "ETHUSDT" {
		t.Fatalf("got %+v want an independent ETHUSDT entry", sigs)
	}
}

func TestBuildDefaultsToImbalance(t *testing.T) {
	for _, mode := range []string{"", "imbalance", "OBI", "unknown"} {
		if got := Build(mode, defaultParams()).Name(); got != "Imbalance" {
			t.Fatalf("Build(%q): got %s", mode, got)
		}
	}
}
