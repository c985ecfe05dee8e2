// Package ops owns the operator surface: file configuration, config
// reload and the daily risk-counter reset schedule.
package ops

import (
	"encoding/json"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/ledger"
	"main/internal/risk"
	"main/internal/strategy"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Halt     bool           `json:"halt"`
	Risk     RiskConfig     `json:"risk"`
	Database DatabaseConfig `json:"database"`
	Feed     FeedConfig     `json:"feed"`
	Strategy StrategyConfig `json:"strategy"`
	Broker   BrokerConfig   `json:"broker"`
	Audit    AuditConfig    `json:"audit"`
	Metrics  MetricsConfig  `json:"metrics"`
}

// RiskConfig is the risk section of the config file. Either the
// top-level or the risk-scoped halt flag stops trading.
type RiskConfig struct {
	Halt            bool            `json:"halt"`
	MaxDailyLossUsd decimal.Decimal `json:"maxDailyLossUsd"`
	MaxTradesPerDay int             `json:"maxTradesPerDay"`
	MaxPositionUsd  decimal.Decimal `json:"maxPositionUsd"`
	KillSwitchFile  string          `json:"killSwitchFile"`
	TradingHours    HoursConfig     `json:"tradingHours"`
}

// HoursConfig is a UTC trading window in "HH:MM" notation.
type HoursConfig struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// DatabaseConfig selects the PostgreSQL ledger store.
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslmode"`
}

// FeedConfig selects the market data source.
type FeedConfig struct {
	Kind         string `json:"kind"` // "binance" or "replay"
	Symbol       string `json:"symbol"`
	Interval     string `json:"interval"`
	DepthLevels  int    `json:"depthLevels"`
	ReplayPath   string `json:"replayPath"`
	ReplayPaceMs int    `json:"replayPaceMs"`
}

// StrategyConfig carries the strategy mode and its knobs.
type StrategyConfig struct {
	Mode          string          `json:"mode"`
	Qty           decimal.Decimal `json:"qty"`
	Levels        int             `json:"levels"`
	BuyThreshold  decimal.Decimal `json:"buyThreshold"`
	SellThreshold decimal.Decimal `json:"sellThreshold"`
	CooldownSec   int             `json:"cooldownSec"`
	MaxSpreadPct  decimal.Decimal `json:"maxSpreadPct"`
	BookStaleSec  int             `json:"bookStaleSec"`
	MaxHoldSec    int             `json:"maxHoldSec"`
	TakeProfitPct decimal.Decimal `json:"takeProfitPct"`
	StopLossPct   decimal.Decimal `json:"stopLossPct"`
	LongOnly      bool            `json:"longOnly"`
}

// BrokerConfig selects the execution venue.
type BrokerConfig struct {
	Kind    string          `json:"kind"` // only "paper" in-tree
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance"`
}

// AuditConfig locates the append-only audit log.
type AuditConfig struct {
	Path string `json:"path"`
}

// MetricsConfig exposes the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `json:"addr"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Risk        risk.Config
	DB          ledger.ConnOption
	Feed        FeedConfig
	Strategy    string
	Params      strategy.Params
	Broker      BrokerConfig
	AuditPath   string
	MetricsAddr string
}

// Load reads a JSON config file and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, errors.Wrap(err, "read config")
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, errors.Wrap(err, "unmarshal config")
	}
	return cfg.resolve()
}

func (cfg FileConfig) resolve() (Loaded, error) {
	hours, err := risk.ParseHours(cfg.Risk.TradingHours.Start, cfg.Risk.TradingHours.End)
	if err != nil {
		return Loaded{}, err
	}

	switch cfg.Feed.Kind {
	case "", "binance", "replay":
	default:
		return Loaded{}, errors.Errorf("unknown feed kind %q", cfg.Feed.Kind)
	}
	if cfg.Feed.Kind == "replay" && cfg.Feed.ReplayPath == "" {
		return Loaded{}, errors.New("replay feed requires feed.replayPath")
	}
	if cfg.Feed.Symbol == "" {
		return Loaded{}, errors.New("feed.symbol is required")
	}
	if cfg.Strategy.Qty.Sign() <= 0 {
		return Loaded{}, errors.New("strategy.qty must be positive")
	}
	if cfg.Audit.Path == "" {
		return Loaded{}, errors.New("audit.path is required")
	}

	broker := cfg.Broker
	if broker.Kind == "" {
		broker.Kind = "paper"
	}
	if broker.Name == "" {
		broker.Name = broker.Kind
	}

	return Loaded{
		Risk: risk.Config{
			GlobalHalt:      cfg.Halt,
			Halt:            cfg.Risk.Halt,
			MaxDailyLossUsd: cfg.Risk.MaxDailyLossUsd,
			MaxTradesPerDay: cfg.Risk.MaxTradesPerDay,
			MaxPositionUsd:  cfg.Risk.MaxPositionUsd,
			KillSwitchFile:  cfg.Risk.KillSwitchFile,
			TradingHours:    hours,
		},
		DB: ledger.ConnOption{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Database,
			SSLMode:  cfg.Database.SSLMode,
		},
		Feed:     cfg.Feed,
		Strategy: cfg.Strategy.Mode,
		Params: strategy.Params{
			Qty:            cfg.Strategy.Qty,
			Levels:         cfg.Strategy.Levels,
			BuyThreshold:   cfg.Strategy.BuyThreshold,
			SellThreshold:  cfg.Strategy.SellThreshold,
			Cooldown:       time.Duration(cfg.Strategy.CooldownSec) * time.Second,
			MaxSpreadPct:   cfg.Strategy.MaxSpreadPct,
			BookStaleAfter: time.Duration(cfg.Strategy.BookStaleSec) * time.Second,
			MaxHold:        time.Duration(cfg.Strategy.MaxHoldSec) * time.Second,
			TakeProfitPct:  cfg.Strategy.TakeProfitPct,
			StopLossPct:    cfg.Strategy.StopLossPct,
			LongOnly:       cfg.Strategy.LongOnly,
		},
		Broker:      broker,
		AuditPath:   cfg.Audit.Path,
		MetricsAddr: cfg.Metrics.Addr,
	}, nil
}
