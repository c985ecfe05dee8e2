package feed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	wire "github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"

	"main/internal/model"
)

const _binanceBaseWsUrl = "wss://stream.binance.com:9443/ws"

const (
	binanceKlineSubID = 1
	binanceDepthSubID = 2
)

// BinanceConfig selects the market data streams for one symbol.
type BinanceConfig struct {
	URL         string
	Symbol      string
	Interval    string // kline interval, e.g. "1m"
	DepthLevels int    // partial book depth: 5, 10 or 20
}

// Binance streams closed klines and a partial order book over one
// websocket connection.
type Binance struct {
	cfg      BinanceConfig
	interval time.Duration
	wss      *ws.WebSocket
	ch       chan model.Bar

	mu        sync.RWMutex
	book      model.Book
	lastBarTs int64
	lastClose decimal.Decimal

	closeOnce sync.Once
}

// NewBinance connects, subscribes the kline and depth streams and
// starts emitting bars.
func NewBinance(ctx context.Context, cfg BinanceConfig) (*Binance, error) {
	interval, err := parseInterval(cfg.Interval)
	if err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		cfg.URL = _binanceBaseWsUrl
	}
	if cfg.DepthLevels == 0 {
		cfg.DepthLevels = 20
	}

	b := &Binance{
		cfg:      cfg,
		interval: interval,
		wss:      ws.New(ctx, cfg.URL),
		ch:       make(chan model.Bar, 16),
	}
	if err := b.wss.Start(ctx); err != nil {
		return nil, errors.Wrap(err, "start wss")
	}
	if err := b.subscribe(ctx, binanceKlineSubID,
		fmt.Sprintf("%s@kline_%s", strings.ToLower(cfg.Symbol), cfg.Interval)); err != nil {
		return nil, err
	}
	if err := b.subscribe(ctx, binanceDepthSubID,
		fmt.Sprintf("%s@depth%d@100ms", strings.ToLower(cfg.Symbol), cfg.DepthLevels)); err != nil {
		return nil, err
	}

	go b.observe(ctx)
	return b, nil
}

// Candles returns the closed-bar channel.
func (b *Binance) Candles() <-chan model.Bar {
	return b.ch
}

// Close tears down the websocket and ends the bar stream.
func (b *Binance) Close() error {
	b.closeOnce.Do(func() {
		b.wss.Close()
		close(b.ch)
	})
	return nil
}

// Book returns a copy of the latest order book snapshot for the symbol.
func (b *Binance) Book(symbol string) *model.Book {
	if !strings.EqualFold(symbol, b.cfg.Symbol) {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.book.UpdatedAt.IsZero() {
		return nil
	}
	snapshot := b.book
	snapshot.Bids = append([]model.BookLevel(nil), b.book.Bids...)
	snapshot.Asks = append([]model.BookLevel(nil), b.book.Asks...)
	return &snapshot
}

type binanceSubscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

type binanceSubscribeResponse struct {
	ID     int64 `json:"id"`
	Result any   `json:"result"`
}

func (b *Binance) subscribe(ctx context.Context, id int64, stream string) error {
	appendIntoRegister := true
	if err := b.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, client *ws.WebSocket) error {
			payload := binanceSubscribeRequest{
				Method: "SUBSCRIBE",
				Params: []string{stream},
				ID:     id,
			}
			if err := client.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write subscribe payload").With("stream", stream)
			}
			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			var resp binanceSubscribeResponse
			if err := m.Unmarshal(&resp); err != nil || resp.ID != id {
				return false, nil
			}
			if resp.Result != nil {
				return false, errors.Errorf("subscribe %s, err: %+v", stream, resp.Result)
			}
			return true, nil
		},
	}, appendIntoRegister); err != nil {
		return errors.Wrap(err, "send and wait")
	}
	return nil
}

type binanceKline struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		StartTs  int64  `json:"t"`
		CloseTs  int64  `json:"T"`
		Interval string `json:"i"`
		Open     string `json:"o"`
		Close    string `json:"c"`
		High     string `json:"h"`
		Low      string `json:"l"`
		Volume   string `json:"v"`
		Closed   bool   `json:"x"`
	} `json:"k"`
}

type binanceDepth struct {
	LastUpdateID int64             `json:"lastUpdateId"`
	Bids         [][2]wire.Decimal `json:"bids"` // [0]price [1]quantity
	Asks         [][2]wire.Decimal `json:"asks"`
}

func (b *Binance) observe(ctx context.Context) {
	ch, cancel := b.wss.Subscribe()
	defer cancel()

	for {
		select {
		case <-sys.Shutdown():
			return
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			b.dispatch(ctx, m)
		}
	}
}

func (b *Binance) dispatch(ctx context.Context, m ws.Message) {
	if kline, ok := ws.ReadMessage[binanceKline](m); ok && kline.EventType == "kline" {
		if kline.Kline.Closed {
			b.emitClosed(ctx, kline)
		}
		return
	}
	if depth, ok := ws.ReadMessage[binanceDepth](m); ok && depth.LastUpdateID != 0 {
		b.applyDepth(depth)
	}
}

func (b *Binance) emitClosed(ctx context.Context, payload binanceKline) {
	bar, err := payload.bar()
	if err != nil {
		logs.Errorf("parse closed kline, err: %+v", err)
		return
	}

	intervalMs := b.interval.Milliseconds()
	if b.lastBarTs > 0 && intervalMs > 0 {
		// impute flat bars over missed intervals so downstream sees a
		// contiguous series
		for ts := b.lastBarTs + intervalMs; ts < bar.Ts; ts += intervalMs {
			b.send(ctx, model.Bar{
				Symbol: bar.Symbol,
				Ts:     ts,
				Open:   b.lastClose,
				High:   b.lastClose,
				Low:    b.lastClose,
				Close:  b.lastClose,
				Gap:    true,
			})
		}
	}
	b.lastBarTs = bar.Ts
	b.lastClose = bar.Close
	b.send(ctx, bar)
}

func (b *Binance) send(ctx context.Context, bar model.Bar) {
	select {
	case b.ch <- bar:
	case <-ctx.Done():
	}
}

func (b *Binance) applyDepth(payload binanceDepth) {
	bids, err := bookLevels(payload.Bids)
	if err != nil {
		logs.Errorf("parse depth bids, err: %+v", err)
		return
	}
	asks, err := bookLevels(payload.Asks)
	if err != nil {
		logs.Errorf("parse depth asks, err: %+v", err)
		return
	}

	b.mu.Lock()
	b.book = model.Book{
		Symbol:    b.cfg.Symbol,
		Bids:      bids,
		Asks:      asks,
		UpdatedAt: time.Now().UTC(),
	}
	b.mu.Unlock()
}

func (payload binanceKline) bar() (model.Bar, error) {
	k := payload.Kline
	open, err := decimal.NewFromString(k.Open)
	if err != nil {
		return model.Bar{}, errors.Wrap(err, "parse open")
	}
	high, err := decimal.NewFromString(k.High)
	if err != nil {
		return model.Bar{}, errors.Wrap(err, "parse high")
	}
	low, err := decimal.NewFromString(k.Low)
	if err != nil {
		return model.Bar{}, errors.Wrap(err, "parse low")
	}
	closePx, err := decimal.NewFromString(k.Close)
	if err != nil {
		return model.Bar{}, errors.Wrap(err, "parse close")
	}
	volume, err := decimal.NewFromString(k.Volume)
	if err != nil {
		return model.Bar{}, errors.Wrap(err, "parse volume")
	}
	return model.Bar{
		Symbol:     payload.Symbol,
		Ts:         k.StartTs,
		Open:       open,
		High:       high,
		Low:        low,
		Close:      closePx,
		Volume:     volume,
		ZeroVolume: volume.IsZero(),
	}, nil
}

func bookLevels(rows [][2]wire.Decimal) ([]model.BookLevel, error) {
	out := make([]model.BookLevel, 0, len(rows))
	for _, row := range rows {
		price, err := decimal.NewFromString(row[0].String())
		if err != nil {
			return nil, err
		}
		qty, err := decimal.NewFromString(row[1].String())
		if err != nil {
			return nil, err
		}
		out = append(out, model.BookLevel{Price: price, Qty: qty})
	}
	return out, nil
}

func parseInterval(s string) (time.Duration, error) {
	switch s {
	case "", "1m":
		return time.Minute, nil
	case "3m":
		return 3 * time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	case "30m":
		return 30 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	default:
		return 0, errors.Errorf("unsupported kline interval %q", s)
	}
}
