package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"

	"main/internal/audit"
	"main/internal/broker"
	"main/internal/feed"
	"main/internal/ledger"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/risk"
	"main/internal/runner"
	"main/internal/strategy"
)

// Exit codes let automation tell a safety stop from a voluntary one.
const (
	exitOK         = 0
	exitKillSwitch = 1
	exitInterrupt  = 130
)

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	configReload := flag.Duration("config-reload-interval", 2*time.Second, "Config reload interval (0=disable)")
	flag.Parse()

	os.Exit(run(*configPath, *configReload))
}

func run(configPath string, configReload time.Duration) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loaded, err := ops.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	stopProfiler := startProfiler()
	defer stopProfiler()

	if loaded.MetricsAddr != "" {
		obs.Serve(loaded.MetricsAddr)
		logs.Infof("metrics on %s", loaded.MetricsAddr)
	}

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
	defer func() {
		if err := aud.Close(); err != nil {
			logs.Errorf("audit close, err: %+v", err)
		}
	}()

	gate := risk.NewGate(loaded.Risk)
	if configReload > 0 {
		go ops.Watch(ctx, configPath, configReload, func(l ops.Loaded) {
			gate.SetConfig(l.Risk)
		})
	}
	go ops.RunDailyReset(ctx, gate.ResetDailyCounters)

	dataFeed, books, err := buildFeed(ctx, loaded.Feed)
	if err != nil {
		log.Fatalf("feed start failed: %v", err)
	}
	defer func() { _ = dataFeed.Close() }()

	brk := broker.NewPaper(loaded.Broker.Name, loaded.Broker.Balance)
	strat := strategy.Build(loaded.Strategy, loaded.Params)
	logs.Infof("trading %s with %s on %s", loaded.Feed.Symbol, strat.Name(), brk.Name())

	outcome, err := runner.New(runner.Config{}, dataFeed, books, strat, gate, brk, store, aud).Run(ctx)
	if err != nil {
		logs.Errorf("runner failed, err: %+v", err)
		return exitKillSwitch
	}

	switch {
	case outcome == runner.OutcomeKillSwitch:
		return exitKillSwitch
	case ctx.Err() != nil:
		return exitInterrupt
	default:
		return exitOK
	}
}

func buildFeed(ctx context.Context, cfg ops.FeedConfig) (feed.Feed, feed.BookSource, error) {
	if cfg.Kind == "replay" {
		replay, err := feed.NewReplay(ctx, feed.ReplayConfig{
			Path: cfg.ReplayPath,
			Pace: time.Duration(cfg.ReplayPaceMs) * time.Millisecond,
		})
		if err != nil {
			return nil, nil, err
		}
		return replay, nil, nil
	}

	binance, err := feed.NewBinance(ctx, feed.BinanceConfig{
		Symbol:      cfg.Symbol,
		Interval:    cfg.Interval,
		DepthLevels: cfg.DepthLevels,
	})
	if err != nil {
		return nil, nil, err
	}
	return binance, binance, nil
}

func startProfiler() func() {
	addr := os.Getenv("PYROSCOPE_SERVER_ADDRESS")
	if addr == "" {
		return func() {}
	}
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: "trader",
		ServerAddress:   addr,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		logs.Errorf("pyroscope start failed, err: %+v", err)
		return func() {}
	}
	return func() { _ = profiler.Stop() }
}
