// Package processor implements the per-symbol trade processor: one
// CandleGroup, advanced one trade at a time, with gap detection,
// duplicate/out-of-order skip, footprint eligibility, 1s completion +
// rollup, and dirty-flag persistence handoff.
//
// The validate -> locate/create -> update -> finalize-on-rollover shape
// and the gap detector's sequence tracking follow a candle-generator and
// gap-watcher pair built around wall-clock rollover and monotone
// orderbook update ids; here both are generalized to trade-id-driven gap
// detection over footprint candles.
package processor

import (
	"footprintd/internal/candle"
	"footprintd/internal/config"
	"footprintd/internal/events"
)

// GapSink receives gap detections fire-and-forget; the processor never
// waits on it and never fails a trade because of it — gap persistence
// failures are logged but never abort trade processing.
type GapSink interface {
	Submit(gap events.GapRecord)
}

// Processor owns exactly one symbol's CandleGroup.
type Processor struct {
	group   *candle.CandleGroup
	gapSink GapSink
	dirty   bool
}

// New constructs a Processor around an already-loaded or freshly created
// group.
func New(group *candle.CandleGroup, gapSink GapSink) *Processor {
	return &Processor{group: group, gapSink: gapSink}
}

// LoadOrInit returns an existing group or a fresh default one built from
// cfg.
func LoadOrInit(existing *candle.CandleGroup, cfg config.SymbolConfig, exchange, symbol string, ts int64, gapSink GapSink) *Processor {
	if existing != nil {
		return New(existing, gapSink)
	}
	g := candle.NewGroup(exchange, symbol, cfg.TickValue, cfg.BinMultiplier, ts)
	return New(g, gapSink)
}

// Group exposes the owned CandleGroup, e.g. for serialization.
func (p *Processor) Group() *candle.CandleGroup { return p.group }

// Dirty reports whether the group has changed since the last ClearDirty.
func (p *Processor) Dirty() bool { return p.dirty }

// ClearDirty resets the dirty flag after a successful persist.
func (p *Processor) ClearDirty() { p.dirty = false }

// Apply advances the owned CandleGroup by exactly one trade: detect
// config change, validate ordering, detect gaps, check footprint
// eligibility, update the active candle, and roll over on completion.
func (p *Processor) Apply(trade events.Trade, cfg config.SymbolConfig, now int64) events.ProcessResult {
	// Step 2: detect config change, stage deferred application.
	if cfg.TickValue != p.group.TickValue || cfg.BinMultiplier != p.group.BinMultiplier {
		p.group.StageConfigChange(cfg.TickValue, cfg.BinMultiplier, now)
	}

	oneSec := p.group.Candles[candle.TF1s.Name]
	ls := oneSec.LS

	// Step 3: gap detection, measured before ls is updated for this trade.
	var gap *events.GapRecord
	if ls > 0 && trade.TradeID > ls+1 {
		gap = &events.GapRecord{
			Exchange:    trade.Exchange,
			Symbol:      trade.Symbol,
			FromTradeID: ls + 1,
			ToTradeID:   trade.TradeID - 1,
			GapSize:     trade.TradeID - ls - 1,
			DetectedAt:  now,
		}
		if p.gapSink != nil {
			p.gapSink.Submit(*gap)
		}
	}

	// Step 4: duplicate/out-of-order skip, measured against ls before the
	// update below.
	duplicate := ls > 0 && trade.TradeID <= ls
	if trade.TradeID > oneSec.LS {
		oneSec.LS = trade.TradeID
	}

	if duplicate {
		p.dirty = true
		reason := events.SkipOutOfOrder
		if trade.TradeID == ls {
			reason = events.SkipDuplicate
		}
		return events.ProcessResult{GapDetected: gap, Skipped: true, SkipReason: reason}
	}

	// Step 5: footprint eligibility.
	if !trade.IsFootprintEligible() {
		p.dirty = true
		return events.ProcessResult{GapDetected: gap}
	}

	// Step 6: completion check + rollup (evaluated before applying the
	// trade to the, possibly now-rolled, 1s candle).
	completed := p.group.CompleteAndRollup(trade.Timestamp)

	// Step 7: apply the trade to the (current) 1s candle.
	p.group.ApplyTrade(trade.Price, trade.Quantity, trade.Side == events.SideBuy, trade.TradeID, trade.Timestamp)

	// Step 8: mark dirty for the worker's batched persist.
	p.dirty = true

	result := events.ProcessResult{GapDetected: gap}
	for _, c := range completed {
		result.CompletedCandles = append(result.CompletedCandles, events.CandleCompleted{
			Exchange:  c.Exchange,
			Symbol:    c.Symbol,
			Timeframe: c.I,
			Candle:    c,
		})
	}
	return result
}
