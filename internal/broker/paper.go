package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"main/internal/model"
	"main/internal/model/enum"
)

var ErrUnknownSymbol = errors.New("paper broker has no price for symbol")

// Paper simulates an exchange account: market orders fill immediately
// at the last marked price, cash is tracked as an exact decimal.
type Paper struct {
	name string

	mu        sync.Mutex
	cash      decimal.Decimal
	marks     map[string]decimal.Decimal
	positions map[string]model.Position
	orderSeq  int64
	failNext  error
}

// NewPaper creates a paper broker with a starting cash balance.
func NewPaper(name string, startingCash decimal.Decimal) *Paper {
	if name == "" {
		name = "paper"
	}
	return &Paper{
		name:      name,
		cash:      startingCash,
		marks:     make(map[string]decimal.Decimal),
		positions: make(map[string]model.Position),
	}
}

func (p *Paper) Name() string { return p.name }

// MarkPrice records the latest reference price used to fill orders.
func (p *Paper) MarkPrice(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	p.marks[symbol] = price
	p.mu.Unlock()
}

// FailNext makes the next broker call return err, for failure-path tests.
func (p *Paper) FailNext(err error) {
	p.mu.Lock()
	p.failNext = err
	p.mu.Unlock()
}

func (p *Paper) Buy(ctx context.Context, symbol string, qty, stopLoss, takeProfit decimal.Decimal) (string, error) {
	return p.fill(ctx, symbol, enum.PositionSideLong, qty)
}

func (p *Paper) Sell(ctx context.Context, symbol string, qty, stopLoss, takeProfit decimal.Decimal) (string, error) {
	return p.fill(ctx, symbol, enum.PositionSideShort, qty)
}

func (p *Paper) fill(ctx context.Context, symbol string, side enum.PositionSide, qty decimal.Decimal) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeFailure(); err != nil {
		return "", err
	}
	price, ok := p.marks[symbol]
	if !ok {
		return "", ErrUnknownSymbol
	}

	if pos, open := p.positions[symbol]; open && pos.Side == side {
		// average in
		total := pos.Qty.Add(qty)
		pos.EntryPrice = pos.EntryPrice.Mul(pos.Qty).Add(price.Mul(qty)).Div(total)
		pos.Qty = total
		p.positions[symbol] = pos
	} else {
		p.positions[symbol] = model.Position{
			Symbol:     symbol,
			Broker:     p.name,
			Side:       side,
			EntryPrice: price,
			Qty:        qty,
		}
	}
	if side == enum.PositionSideLong {
		p.cash = p.cash.Sub(price.Mul(qty))
	}

	p.orderSeq++
	return fmt.Sprintf("%s-%d", p.name, p.orderSeq), nil
}

func (p *Paper) CloseAll(ctx context.Context, symbol string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeFailure(); err != nil {
		return err
	}
	pos, open := p.positions[symbol]
	if !open {
		return nil
	}
	price, ok := p.marks[symbol]
	if !ok {
		return ErrUnknownSymbol
	}

	if pos.Side == enum.PositionSideLong {
		p.cash = p.cash.Add(price.Mul(pos.Qty))
	} else {
		p.cash = p.cash.Add(pos.UnrealizedPnl(price))
	}
	delete(p.positions, symbol)
	return nil
}

func (p *Paper) Positions(ctx context.Context) (map[string]model.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]model.Position, len(p.positions))
	for symbol, pos := range p.positions {
		out[symbol] = pos
	}
	return out, nil
}

func (p *Paper) Balance(ctx context.Context) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash, nil
}

func (p *Paper) takeFailure() error {
	if p.failNext != nil {
		err := p.failNext
		p.failNext = nil
		return err
	}
	return nil
}
