package feed

import (
	"context"
	"testing"
	"time"

	"main/internal/model"
)

func TestParseInterval(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want time.Duration
	}{
		{"", time.Minute},
		{"1m", time.Minute},
		{"5m", 5 * time.Minute},
		{"1h", time.Hour},
		{"1d", 24 * time.Hour},
	} {
		got, err := parseInterval(tc.in)
		if err != nil {
			t.Fatalf("parseInterval(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("parseInterval(%q): got %s want %s", tc.in, got, tc.want)
		}
	}

	if _, err := parseInterval("7m"); err == nil {
		t.Fatal("unsupported interval should fail")
	}
}

func TestBinanceKlineBar(t *testing.T) {
	var payload binanceKline
	payload.Symbol = "BTCUSDT"
	payload.Kline.StartTs = 1_750_000_000_000
	payload.Kline.Open = "100.1"
	payload.Kline.High = "101"
	payload.Kline.Low = "99.9"
	payload.Kline.Close = "100.5"
	payload.Kline.Volume = "0"

	bar, err := payload.bar()
	if err != nil {
		t.Fatalf("bar: %v", err)
	}
	if bar.Symbol != "BTCUSDT" || bar.Ts != payload.Kline.StartTs {
		t.Fatalf("identity: %+v", bar)
	}
	if bar.Close.String() != "100.5" {
		t.Fatalf("close: got %s want 100.5", bar.Close)
	}
	if !bar.ZeroVolume {
		t.Fatal("zero volume must be flagged")
	}

	payload.Kline.Close = "not a number"
	if _, err := payload.bar(); err == nil {
		t.Fatal("unparseable price should fail")
	}
}

// A missed interval between two closed klines is imputed as flat gap
// bars carrying the previous close.
func TestBinanceImputesGapBars(t *testing.T) {
	ctx := context.Background()
	b := &Binance{
		cfg:      BinanceConfig{Symbol: "BTCUSDT", Interval: "1m"},
		interval: time.Minute,
		ch:       make(chan model.Bar, 16),
	}

	b.emitClosed(ctx, closedKline(60_000, "100"))
	// the next kline arrives three intervals later
	b.emitClosed(ctx, closedKline(4*60_000, "103"))

	var bars []model.Bar
	for len(b.ch) > 0 {
		bars = append(bars, <-b.ch)
	}
	if len(bars) != 4 {
		t.Fatalf("bars: got %d want 4 (real, two gaps, real)", len(bars))
	}
	for i, gap := range []bool{false, true, true, false} {
		if bars[i].Gap != gap {
			t.Fatalf("bar %d gap flag: got %v want %v", i, bars[i].Gap, gap)
		}
	}
	if bars[1].Close.String() != "100" || bars[2].Close.String() != "100" {
		t.Fatalf("gap bars should carry the previous close: %s %s", bars[1].Close, bars[2].Close)
	}
	if bars[1].Ts != 120_000 || bars[2].Ts != 180_000 {
		t.Fatalf("gap bar timestamps: %d %d", bars[1].Ts, bars[2].Ts)
	}
}

func closedKline(ts int64, close string) binanceKline {
	var payload binanceKline
	payload.EventType = "kline"
	payload.Symbol = "BTCUSDT"
	payload.Kline.StartTs = ts
	payload.Kline.Open = close
	payload.Kline.High = close
	payload.Kline.Low = close
	payload.Kline.Close = close
	payload.Kline.Volume = "1"
	payload.Kline.Closed = true
	return payload
}
