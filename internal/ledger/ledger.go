// Package ledger is the durable store of open positions and closed
// trades. It is the single source of truth for position existence and
// computes realized P&L with exact decimal arithmetic.
package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"main/internal/model"
	"main/internal/model/enum"
)

var (
	ErrPositionOpen = errors.New("position already open")
	ErrNoPosition   = errors.New("no open position")
	ErrInvalidSide  = errors.New("invalid position side")
)

type positionRow struct {
	ID         int64           `gorm:"primaryKey;autoIncrement"`
	Symbol     string          `gorm:"size:32;uniqueIndex:idx_positions_symbol_broker"`
	Broker     string          `gorm:"size:32;uniqueIndex:idx_positions_symbol_broker"`
	Side       string          `gorm:"size:8"`
	EntryPrice decimal.Decimal `gorm:"type:numeric"`
	Qty        decimal.Decimal `gorm:"type:numeric"`
	EntryTs    int64
}

func (positionRow) TableName() string { return "positions" }

type tradeRow struct {
	ID             int64           `gorm:"primaryKey;autoIncrement"`
	Symbol         string          `gorm:"size:32;index"`
	Broker         string          `gorm:"size:32;index"`
	Side           string          `gorm:"size:8"`
	EntryPrice     decimal.Decimal `gorm:"type:numeric"`
	ExitPrice      decimal.Decimal `gorm:"type:numeric"`
	Qty            decimal.Decimal `gorm:"type:numeric"`
	EntryTs        int64
	ExitTs         int64 `gorm:"index"`
	ExitReason     string
	RealizedPnl    decimal.Decimal `gorm:"type:numeric"`
	RealizedPnlPct decimal.Decimal `gorm:"type:numeric"`
}

func (tradeRow) TableName() string { return "trades" }

// Ledger wraps the transactional position/trade store.
type Ledger struct {
	db *gorm.DB
}

// New migrates the schema and returns a ledger bound to the connection.
func New(db *gorm.DB) (*Ledger, error) {
	if err := db.AutoMigrate(&positionRow{}, &tradeRow{}); err != nil {
		return nil, err
	}
	return &Ledger{db: db}, nil
}

// Open creates an open-position row. Fails with ErrPositionOpen when
// the (symbol, broker) pair already holds one; callers average in via
// AddTo instead of overwriting.
func (l *Ledger) Open(symbol, broker string, side enum.PositionSide, entryPrice, qty decimal.Decimal, now time.Time) (model.Position, error) {
	if !side.IsAvailable() {
		return model.Position{}, ErrInvalidSide
	}
	row := positionRow{
		Symbol:     symbol,
		Broker:     broker,
		Side:       string(side),
		EntryPrice: entryPrice,
		Qty:        qty,
		EntryTs:    now.UTC().UnixMilli(),
	}
	err := l.db.Transaction(func(tx *gorm.DB) error {
		var existing positionRow
		err := tx.Where("symbol = ? AND broker = ?", symbol, broker).First(&existing).Error
		if err == nil {
			return ErrPositionOpen
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return model.Position{}, err
	}
	return row.position(), nil
}

// AddTo averages an extra lot into an open position, recomputing the
// quantity-weighted entry price.
func (l *Ledger) AddTo(symbol, broker string, extraQty, extraPrice decimal.Decimal) (model.Position, error) {
	var row positionRow
	err := l.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("symbol = ? AND broker = ?", symbol, broker).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoPosition
			}
			return err
		}
		row.EntryPrice = WeightedEntry(row.EntryPrice, row.Qty, extraPrice, extraQty)
		row.Qty = row.Qty.Add(extraQty)
		return tx.Model(&positionRow{}).Where("id = ?", row.ID).
			Updates(map[string]any{"entry_price": row.EntryPrice, "qty": row.Qty}).Error
	})
	if err != nil {
		return model.Position{}, err
	}
	return row.position(), nil
}

// Close deletes the open-position row and inserts the trade record in
// one transaction, so a crash can neither lose nor duplicate the trade.
func (l *Ledger) Close(symbol, broker string, exitPrice decimal.Decimal, reason string, now time.Time) (model.Trade, error) {
	var trade tradeRow
	err := l.db.Transaction(func(tx *gorm.DB) error {
		var row positionRow
		if err := tx.Where("symbol = ? AND broker = ?", symbol, broker).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoPosition
			}
			return err
		}

		side := enum.PositionSide(row.Side)
		exitTs := now.UTC().UnixMilli()
		trade = tradeRow{
			Symbol:         row.Symbol,
			Broker:         row.Broker,
			Side:           row.Side,
			EntryPrice:     row.EntryPrice,
			ExitPrice:      exitPrice,
			Qty:            row.Qty,
			EntryTs:        row.EntryTs,
			ExitTs:         exitTs,
			ExitReason:     reason,
			RealizedPnl:    RealizedPnl(side, row.EntryPrice, exitPrice, row.Qty),
			RealizedPnlPct: RealizedPnlPct(side, row.EntryPrice, exitPrice),
		}

		if err := tx.Delete(&positionRow{}, "id = ?", row.ID).Error; err != nil {
			return err
		}
		return tx.Create(&trade).Error
	})
	if err != nil {
		return model.Trade{}, err
	}
	return trade.trade(), nil
}

// OpenPositions lists open positions, optionally filtered by broker.
func (l *Ledger) OpenPositions(broker string) ([]model.Position, error) {
	q := l.db.Order("symbol")
	if broker != "" {
		q = q.Where("broker = ?", broker)
	}
	var rows []positionRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Position, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.position())
	}
	return out, nil
}

// DailyPnl sums realized P&L over trades closed since the start of the
// current UTC day.
func (l *Ledger) DailyPnl(broker string, now time.Time) (decimal.Decimal, error) {
	utc := now.UTC()
	dayStart := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC).UnixMilli()

	q := l.db.Where("exit_ts >= ?", dayStart)
	if broker != "" {
		q = q.Where("broker = ?", broker)
	}
	var rows []tradeRow
	if err := q.Find(&rows).Error; err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.RealizedPnl)
	}
	return total, nil
}

// Trades lists closed trades with exit time at or after since.
func (l *Ledger) Trades(broker string, since time.Time) ([]model.Trade, error) {
	q := l.db.Where("exit_ts >= ?", since.UTC().UnixMilli()).Order("exit_ts")
	if broker != "" {
		q = q.Where("broker = ?", broker)
	}
	var rows []tradeRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Trade, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.trade())
	}
	return out, nil
}

func (row positionRow) position() model.Position {
	return model.Position{
		ID:         row.ID,
		Symbol:     row.Symbol,
		Broker:     row.Broker,
		Side:       enum.PositionSide(row.Side),
		EntryPrice: row.EntryPrice,
		Qty:        row.Qty,
		EntryTs:    row.EntryTs,
	}
}

func (row tradeRow) trade() model.Trade {
	return model.Trade{
		ID:              row.ID,
		Symbol:          row.Symbol,
		Broker:          row.Broker,
		Side:            enum.PositionSide(row.Side),
		EntryPrice:      row.EntryPrice,
		ExitPrice:       row.ExitPrice,
		Qty:             row.Qty,
		EntryTs:         row.EntryTs,
		ExitTs:          row.ExitTs,
		ExitReason:      row.ExitReason,
		RealizedPnl:     row.RealizedPnl,
		RealizedPnlPct:  row.RealizedPnlPct,
		DurationSeconds: (row.ExitTs - row.EntryTs) / 1000,
	}
}
