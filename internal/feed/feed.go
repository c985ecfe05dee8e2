// Package feed produces the stream of completed bars the runner
// consumes. Feeds perform their own gap and zero-volume detection
// before a bar is handed over.
package feed

import "main/internal/model"

// Feed is a lazy, unbounded, non-restartable sequence of closed bars.
// The channel is closed when the feed ends or is closed.
type Feed interface {
	Candles() <-chan model.Bar
	Close() error
}

// BookSource serves order-book snapshots for strategies that consume
// market microstructure alongside bars.
type BookSource interface {
	Book(symbol string) *model.Book
}
