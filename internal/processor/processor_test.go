package processor

import (
	"testing"

	"footprintd/internal/candle"
	"footprintd/internal/config"
	"footprintd/internal/events"
)

type fakeGapSink struct {
	submitted []events.GapRecord
}

func (f *fakeGapSink) Submit(g events.GapRecord) { f.submitted = append(f.submitted, g) }

func baseTrade(tradeID, ts int64, price, qty float64, side events.Side) events.Trade {
	return events.Trade{
		Exchange:  "binance",
		Symbol:    "BTCUSDT",
		TradeID:   tradeID,
		Timestamp: ts,
		Price:     price,
		Quantity:  qty,
		Side:      side,
		TradeType: events.TradeTypeMarket,
	}
}

func TestFirstTradeNoGapNoCompletion(t *testing.T) {
	ts := int64(1700000000000)
	g := candle.NewGroup("binance", "BTCUSDT", 0.01, 1, ts)
	sink := &fakeGapSink{}
	p := New(g, sink)
	cfg := config.SymbolConfig{TickValue: 0.01, BinMultiplier: 1}

	res := p.Apply(baseTrade(100, ts, 50000, 0.1, events.SideBuy), cfg, ts)
	if res.GapDetected != nil {
		t.Fatalf("expected no gap, got %+v", res.GapDetected)
	}
	if len(res.CompletedCandles) != 0 {
		t.Fatalf("expected no completions, got %d", len(res.CompletedCandles))
	}
	if !p.Dirty() {
		t.Fatal("expected processor to be dirty after applying a trade")
	}
}

func TestGapDetectionScenario(t *testing.T) {
	ts := int64(1700000000000)
	g := candle.NewGroup("binance", "BTCUSDT", 0.01, 1, ts)
	sink := &fakeGapSink{}
	p := New(g, sink)
	cfg := config.SymbolConfig{TickValue: 0.01, BinMultiplier: 1}

	p.Apply(baseTrade(100, ts, 50000, 0.1, events.SideBuy), cfg, ts)
	res := p.Apply(baseTrade(105, ts, 50010, 0.2, events.SideSell), cfg, ts)

	if res.GapDetected == nil {
		t.Fatal("expected a gap to be detected")
	}
	if res.GapDetected.FromTradeID != 101 || res.GapDetected.ToTradeID != 104 || res.GapDetected.GapSize != 4 {
		t.Fatalf("unexpected gap record: %+v", res.GapDetected)
	}
	if len(sink.submitted) != 1 {
		t.Fatalf("expected gap sink to receive exactly 1 submission, got %d", len(sink.submitted))
	}
	if g.Candles[candle.TF1s.Name].LS != 105 {
		t.Fatalf("expected ls to advance to 105, got %d", g.Candles[candle.TF1s.Name].LS)
	}
}

func TestDuplicateTradeIsSkipped(t *testing.T) {
	ts := int64(1700000000000)
	g := candle.NewGroup("binance", "BTCUSDT", 0.01, 1, ts)
	p := New(g, &fakeGapSink{})
	cfg := config.SymbolConfig{TickValue: 0.01, BinMultiplier: 1}

	p.Apply(baseTrade(100, ts, 50000, 0.1, events.SideBuy), cfg, ts)
	p.Apply(baseTrade(105, ts, 50010, 0.2, events.SideSell), cfg, ts)
	vBefore := g.Candles[candle.TF1s.Name].V

	res := p.Apply(baseTrade(105, ts, 99999, 5, events.SideBuy), cfg, ts)
	if !res.Skipped || res.SkipReason != events.SkipDuplicate {
		t.Fatalf("expected duplicate skip, got %+v", res)
	}
	if g.Candles[candle.TF1s.Name].V != vBefore {
		t.Fatalf("expected no footprint change on duplicate, v changed from %v to %v", vBefore, g.Candles[candle.TF1s.Name].V)
	}
}

func TestOutOfOrderTradeIsSkippedDistinctFromDuplicate(t *testing.T) {
	ts := int64(1700000000000)
	g := candle.NewGroup("binance", "BTCUSDT", 0.01, 1, ts)
	p := New(g, &fakeGapSink{})
	cfg := config.SymbolConfig{TickValue: 0.01, BinMultiplier: 1}

	p.Apply(baseTrade(100, ts, 50000, 0.1, events.SideBuy), cfg, ts)
	p.Apply(baseTrade(105, ts, 50010, 0.2, events.SideSell), cfg, ts)

	res := p.Apply(baseTrade(103, ts, 49990, 1, events.SideBuy), cfg, ts)
	if !res.Skipped || res.SkipReason != events.SkipOutOfOrder {
		t.Fatalf("expected out_of_order skip for tradeId < ls, got %+v", res)
	}
}

func TestOneSecondCompletionTriggersRollup(t *testing.T) {
	ts := int64(1700000000000)
	g := candle.NewGroup("binance", "BTCUSDT", 0.01, 1, ts)
	p := New(g, &fakeGapSink{})
	cfg := config.SymbolConfig{TickValue: 0.01, BinMultiplier: 1}

	p.Apply(baseTrade(100, ts, 50000, 0.1, events.SideBuy), cfg, ts)
	res := p.Apply(baseTrade(101, ts+1000, 50010, 0.2, events.SideBuy), cfg, ts+1000)

	if len(res.CompletedCandles) == 0 {
		t.Fatal("expected the 1s candle to complete")
	}
	if res.CompletedCandles[0].Timeframe != "1s" {
		t.Fatalf("expected 1s completion first, got %s", res.CompletedCandles[0].Timeframe)
	}
}

func TestNonMarketTradeOnlyAdvancesLS(t *testing.T) {
	ts := int64(1700000000000)
	g := candle.NewGroup("binance", "BTCUSDT", 0.01, 1, ts)
	p := New(g, &fakeGapSink{})
	cfg := config.SymbolConfig{TickValue: 0.01, BinMultiplier: 1}

	trade := baseTrade(50, ts, 123, 1, events.SideBuy)
	trade.TradeType = "LIQUIDATION"
	res := p.Apply(trade, cfg, ts)

	if len(res.CompletedCandles) != 0 {
		t.Fatalf("non-footprint trade must not produce completions, got %+v", res.CompletedCandles)
	}
	if g.Candles[candle.TF1s.Name].LS != 50 {
		t.Fatalf("expected ls to advance even for non-market trade, got %d", g.Candles[candle.TF1s.Name].LS)
	}
	if g.Candles[candle.TF1s.Name].N != 0 {
		t.Fatalf("non-market trade must not update footprint, n=%d", g.Candles[candle.TF1s.Name].N)
	}
}
