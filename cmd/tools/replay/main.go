// Replay runs a recorded bar file through the full decision loop
// against the paper broker, so a strategy change can be dry-run before
// it touches live data.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/audit"
	"main/internal/broker"
	"main/internal/feed"
	"main/internal/ledger"
	"main/internal/ops"
	"main/internal/risk"
	"main/internal/runner"
	"main/internal/strategy"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	barsPath := flag.String("bars", "", "Bar JSONL file to replay (overrides feed.replayPath)")
	paceMs := flag.Int("pace-ms", 0, "Delay between bars in milliseconds (0=as fast as possible)")
	flag.Parse()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	path := loaded.Feed.ReplayPath
	if *barsPath != "" {
		path = *barsPath
	}
	if path == "" {
		log.Fatalf("no bar file: pass -bars or set feed.replayPath")
	}

	ctx := context.Background()
	replay, err := feed.NewReplay(ctx, feed.ReplayConfig{
		Path: path,
		Pace: time.Duration(*paceMs) * time.Millisecond,
	})
	if err != nil {
		log.Fatalf("replay open failed: %v", err)
	}
	defer func() { _ = replay.Close() }()

	db, err := ledger.OpenDB(loaded.DB)
	if err != nil {
		log.Fatalf("ledger connect failed: %v", err)
	}
	store, err := ledger.New(db)
	if err != nil {
		log.Fatalf("ledger migrate failed: %v", err)
	}

	aud, err := audit.NewWriter(audit.Config{Path: loaded.AuditPath})
	if err != nil {
		log.Fatalf("audit open failed: %v", err)
	}
	if err := aud.Start(); err != nil {
		log.Fatalf("audit start failed: %v", err)
	}
	defer func() { _ = aud.Close() }()

	gate := risk.NewGate(loaded.Risk)
	brk := broker.NewPaper(loaded.Broker.Name, loaded.Broker.Balance)
	strat := strategy.Build(loaded.Strategy, loaded.Params)

	if _, err := runner.New(runner.Config{}, replay, nil, strat, gate, brk, store, aud).Run(ctx); err != nil {
		log.Fatalf("replay run failed: %v", err)
	}

	stats, err := store.Statistics(brk.Name(), 3650, time.Now())
	if err != nil {
		log.Fatalf("statistics failed: %v", err)
	}
	logs.Infof("replay done: trades=%d win_rate=%s%% total_pnl=%s profit_factor=%s",
		stats.Trades, stats.WinRatePct.StringFixed(1), stats.TotalPnl, stats.ProfitFactor)
}
