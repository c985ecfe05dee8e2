// Stats prints the ledger's daily P&L and trailing trade statistics.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"main/internal/ledger"
	"main/internal/ops"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	brokerName := flag.String("broker", "", "Filter by broker (default: all)")
	windowDays := flag.Int("window-days", 30, "Statistics window in days")
	flag.Parse()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	db, err := ledger.OpenDB(loaded.DB)
	if err != nil {
		log.Fatalf("ledger connect failed: %v", err)
	}
	store, err := ledger.New(db)
	if err != nil {
		log.Fatalf("ledger migrate failed: %v", err)
	}

	now := time.Now()
	daily, err := store.DailyPnl(*brokerName, now)
	if err != nil {
		log.Fatalf("daily pnl failed: %v", err)
	}
	stats, err := store.Statistics(*brokerName, *windowDays, now)
	if err != nil {
		log.Fatalf("statistics failed: %v", err)
	}
	open, err := store.OpenPositions(*brokerName)
	if err != nil {
		log.Fatalf("open positions failed: %v", err)
	}

	fmt.Printf("daily realized pnl: %s\n", daily)
	fmt.Printf("open positions:     %d\n", len(open))
	for _, p := range open {
		fmt.Printf("  %-12s %-5s qty=%s entry=%s\n", p.Symbol, p.Side, p.Qty, p.EntryPrice)
	}
	fmt.Printf("last %d days: trades=%d wins=%d losses=%d\n", *windowDays, stats.Trades, stats.Wins, stats.Losses)
	fmt.Printf("  win rate:      %s%%\n", stats.WinRatePct.StringFixed(1))
	fmt.Printf("  avg win/loss:  %s / %s\n", stats.AvgWin.StringFixed(2), stats.AvgLoss.StringFixed(2))
	fmt.Printf("  profit factor: %s\n", stats.ProfitFactor.StringFixed(2))
	fmt.Printf("  total pnl:     %s\n", stats.TotalPnl)
}
