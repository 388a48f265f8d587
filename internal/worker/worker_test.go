package worker

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"footprintd/internal/config"
	"footprintd/internal/events"
	"footprintd/internal/gapwriter"
)

type fakeStateClient struct {
	saved []StatePair
}

func (f *fakeStateClient) LoadState(ctx context.Context, exchange, symbol string) (string, bool, error) {
	return "", false, nil
}

func (f *fakeStateClient) SaveStateBatch(ctx context.Context, states []StatePair) error {
	f.saved = append(f.saved, states...)
	return nil
}

type fakeSink struct {
	published []events.CandleCompleted
}

func (f *fakeSink) Publish(c events.CandleCompleted) { f.published = append(f.published, c) }

type fakeConfigSource struct{}

func (fakeConfigSource) GetSymbolConfig(exchange, symbol string) (config.SymbolConfig, bool) {
	return config.SymbolConfig{Exchange: exchange, Symbol: symbol, TickValue: 0.01, BinMultiplier: 1}, true
}

func TestWorkerInitRouteAndShutdownFlushesDirtyState(t *testing.T) {
	storage := NewStorage()
	stateClient := &fakeStateClient{}
	gw := gapwriter.New(gapwriter.DefaultConfig(), func(ctx context.Context, batch []events.GapRecord) error { return nil }, zap.NewNop())
	sink := &fakeSink{}
	w := New(1, storage, stateClient, gw, sink, fakeConfigSource{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	initCtx, initCancel := context.WithTimeout(context.Background(), time.Second)
	defer initCancel()
	if err := w.Init(initCtx, []string{"binance:BTCUSDT"}); err != nil {
		t.Fatalf("init: %v", err)
	}

	w.RouteTrade(events.Trade{
		Exchange: "binance", Symbol: "BTCUSDT", TradeID: 1, Timestamp: 1700000000000,
		Price: 50000, Quantity: 0.1, Side: events.SideBuy, TradeType: events.TradeTypeMarket,
	})

	// Give the mailbox loop a moment to process the trade before shutdown.
	time.Sleep(50 * time.Millisecond)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
	defer shutdownCancel()
	if err := w.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if len(stateClient.saved) != 1 {
		t.Fatalf("expected 1 state saved on shutdown flush, got %d", len(stateClient.saved))
	}
	if stateClient.saved[0].Symbol != "BTCUSDT" {
		t.Fatalf("unexpected saved symbol: %s", stateClient.saved[0].Symbol)
	}
}
