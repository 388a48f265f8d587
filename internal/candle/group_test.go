package candle

import "testing"

func TestNewGroupHasOneCandlePerTimeframe(t *testing.T) {
	g := NewGroup("binance", "BTCUSDT", 0.01, 1, 1700000000000)
	if len(g.Candles) != len(Timeframes) {
		t.Fatalf("expected %d candles, got %d", len(Timeframes), len(g.Candles))
	}
	for _, tf := range Timeframes {
		c, ok := g.Candles[tf.Name]
		if !ok {
			t.Fatalf("missing candle for timeframe %s", tf.Name)
		}
		if c.X {
			t.Fatalf("fresh candle %s should not be complete", tf.Name)
		}
	}
}

func TestFirstTradeScenario(t *testing.T) {
	ts := int64(1700000000000)
	g := NewGroup("binance", "BTCUSDT", 0.01, 1, ts)
	g.CompleteAndRollup(ts)
	g.ApplyTrade(50000, 0.1, true, 100, ts)

	c := g.Candles[TF1s.Name]
	if c.O != 50000 || c.H != 50000 || c.L != 50000 || c.C != 50000 {
		t.Fatalf("unexpected OHLC: %+v", c)
	}
	if c.V != 0.1 || c.BV != 0.1 || c.SV != 0 {
		t.Fatalf("unexpected volumes: %+v", c)
	}
	if c.N != 1 || c.D != 0.1 || c.F != 100 || c.LS != 100 {
		t.Fatalf("unexpected counters: %+v", c)
	}
	if len(c.Aggs) != 1 || c.Aggs[0].TP != 50000 || c.Aggs[0].BV != 0.1 {
		t.Fatalf("unexpected bins: %+v", c.Aggs)
	}
}

func TestCompletionAndRollup(t *testing.T) {
	ts := int64(1700000000000)
	g := NewGroup("binance", "BTCUSDT", 0.01, 1, ts)
	g.CompleteAndRollup(ts)
	g.ApplyTrade(50000, 0.1, true, 100, ts)

	next := ts + 1000
	completed := g.CompleteAndRollup(next)
	if len(completed) == 0 {
		t.Fatal("expected at least the 1s candle to complete")
	}
	first := completed[0]
	if first.I != "1s" {
		t.Fatalf("expected 1s completion first, got %s", first.I)
	}
	if !first.X || first.CT != ts+999 {
		t.Fatalf("unexpected completed candle: %+v", first)
	}

	oneMin := g.Candles[TF1m.Name]
	if oneMin.V != 0.1 || oneMin.BV != 0.1 {
		t.Fatalf("expected rollup into 1m, got %+v", oneMin)
	}

	g.ApplyTrade(50010, 0.2, false, 101, next)
	c := g.Candles[TF1s.Name]
	if c.T != TF1s.AlignedStart(next) {
		t.Fatalf("new 1s candle not aligned to new period")
	}
}

func TestEveryOpenHigherTimeframeReceivesEachCompletedOneSecond(t *testing.T) {
	ts := int64(0)
	g := NewGroup("binance", "BTCUSDT", 0.01, 1, ts)
	g.CompleteAndRollup(ts)
	g.ApplyTrade(100, 1, true, 1, ts)

	for i := int64(1); i <= 5; i++ {
		next := ts + i*1000
		g.CompleteAndRollup(next)
		g.ApplyTrade(100, 1, true, i+1, next)
	}

	// None of 1m..1d has completed yet, but each must have received the
	// fold from all 5 completed 1s candles directly, not just the 1m.
	for _, tf := range Timeframes[1:] {
		c := g.Candles[tf.Name]
		if c.V != 5 {
			t.Fatalf("expected %s to accumulate 5 completed 1s candles' volume, got %v", tf.Name, c.V)
		}
	}
}

func TestNonDivisibleTimeframeCompletesOnItsOwnBoundaryNotAChunkBoundary(t *testing.T) {
	ts := int64(0)
	g := NewGroup("binance", "BTCUSDT", 0.01, 1, ts)
	g.CompleteAndRollup(ts)
	g.ApplyTrade(100, 1, true, 0, ts)

	var fiveMinCompletedAt int64 = -1
	for i := int64(1); i <= 301; i++ {
		next := ts + i*1000
		completed := g.CompleteAndRollup(next)
		for _, c := range completed {
			if c.I == TF5m.Name && fiveMinCompletedAt == -1 {
				fiveMinCompletedAt = next
			}
		}
		g.ApplyTrade(100, 1, true, i, next)
	}

	if fiveMinCompletedAt != TF5m.DurationMs {
		t.Fatalf("expected 5m to complete exactly at %dms, got %dms", TF5m.DurationMs, fiveMinCompletedAt)
	}
}

func TestPendingConfigAppliesOnlyAtDayBoundary(t *testing.T) {
	dayStart := int64(0)
	g := NewGroup("binance", "BTCUSDT", 0.01, 1, dayStart)
	g.CompleteAndRollup(dayStart)
	g.ApplyTrade(100, 1, true, 1, dayStart)

	g.StageConfigChange(0.1, 1, dayStart+500)
	if g.Pending == nil {
		t.Fatal("expected pending config to be staged")
	}

	midDay := dayStart + 500
	g.CompleteAndRollup(midDay)
	if g.TickValue != 0.01 {
		t.Fatalf("tick value must not change mid-day, got %v", g.TickValue)
	}

	nextDay := dayStart + TF1d.DurationMs + 1
	g.CompleteAndRollup(nextDay)
	if g.TickValue != 0.1 {
		t.Fatalf("expected tick value to become 0.1 after day completion, got %v", g.TickValue)
	}
	if g.Pending != nil {
		t.Fatal("pending config should be cleared after applying")
	}
}

func TestBinBoundaryFloorsToLowerBin(t *testing.T) {
	ts := int64(0)
	g := NewGroup("binance", "ETHUSDT", 1, 1, ts) // effectiveBinSize = 1
	g.CompleteAndRollup(ts)
	g.ApplyTrade(100, 1, true, 1, ts)
	c := g.Candles[TF1s.Name]
	if len(c.Aggs) != 1 || c.Aggs[0].TP != 100 {
		t.Fatalf("expected bin at 100, got %+v", c.Aggs)
	}
}
