// Package tradesource connects to exchange trade-stream websockets and
// normalizes raw venue messages into events.Trade, grounded on
// internal/exchanges/{binance,bybit,okx}.go's per-venue connector shape.
package tradesource

import (
	"context"

	"go.uber.org/zap"

	"footprintd/internal/events"
	"footprintd/pkg/supervisor"
)

// Source streams normalized trades for a single (exchange, symbol) pair
// until ctx is cancelled or the connection fails; a failure returns an
// error so the caller's supervisor can reconnect with backoff.
type Source interface {
	Exchange() string
	Symbol() string
	Run(ctx context.Context, out chan<- events.Trade) error
}

// Hub supervises one Source per configured (exchange, symbol) and fans
// every normalized trade into a single output channel.
type Hub struct {
	logger  *zap.Logger
	sources []Source
	out     chan events.Trade
	sup     *supervisor.Supervisor
}

// NewHub builds a Hub over the given sources. bufferSize sizes the shared
// output channel.
func NewHub(sources []Source, bufferSize int, logger *zap.Logger) *Hub {
	return &Hub{
		logger:  logger.Named("tradesource"),
		sources: sources,
		out:     make(chan events.Trade, bufferSize),
		sup:     supervisor.New(logger),
	}
}

// Trades returns the channel every source's normalized trades are
// delivered on.
func (h *Hub) Trades() <-chan events.Trade {
	return h.out
}

// Run registers every source under the supervisor and blocks until ctx is
// cancelled.
func (h *Hub) Run(ctx context.Context) {
	for _, src := range h.sources {
		src := src
		name := src.Exchange() + ":" + src.Symbol()
		err := h.sup.Add(supervisor.Config{Name: name}, func(ctx context.Context) error {
			return src.Run(ctx, h.out)
		})
		if err != nil {
			h.logger.Error("failed to register trade source", zap.String("source", name), zap.Error(err))
		}
	}
	h.sup.Run(ctx)
}
