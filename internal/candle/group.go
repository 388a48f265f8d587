package candle

import "time"

// PendingConfig is a staged {tickValue, binMultiplier} change, applied only
// when the group's 1d candle next completes.
type PendingConfig struct {
	TickValue     float64 `json:"tickValue"`
	BinMultiplier float64 `json:"binMultiplier"`
	UpdatedAt     int64   `json:"updatedAt"`
}

// CandleGroup is the per-symbol set of footprint candles across every
// supported timeframe, plus the bin-size configuration that all of its
// candles share.
type CandleGroup struct {
	Exchange      string `json:"exchange"`
	Symbol        string `json:"symbol"`
	TickValue     float64 `json:"tickValue"`
	BinMultiplier float64 `json:"binMultiplier"`

	Candles map[string]*FootprintCandle `json:"candles"`

	Pending *PendingConfig `json:"pending,omitempty"`
}

// EffectiveBinSize is tickValue x binMultiplier, the width of one
// footprint bin.
func (g *CandleGroup) EffectiveBinSize() float64 {
	return g.TickValue * g.BinMultiplier
}

// NewGroup builds a default CandleGroup for symbol: one empty candle per
// supported timeframe, aligned to ts.
func NewGroup(exchange, symbol string, tickValue, binMultiplier float64, ts int64) *CandleGroup {
	g := &CandleGroup{
		Exchange:      exchange,
		Symbol:        symbol,
		TickValue:     tickValue,
		BinMultiplier: binMultiplier,
		Candles:       make(map[string]*FootprintCandle, len(Timeframes)),
	}
	for _, tf := range Timeframes {
		g.Candles[tf.Name] = newCandle(exchange, symbol, tf, ts, tickValue)
	}
	return g
}

// StageConfigChange records a pending tickValue/binMultiplier change if one
// isn't already staged and the incoming values differ from the group's
// current ones. Deferred application happens in applyPendingIfStaged,
// which CompleteAndRollup calls when the 1d candle completes.
func (g *CandleGroup) StageConfigChange(tickValue, binMultiplier float64, now int64) {
	if g.Pending != nil {
		return
	}
	if tickValue == g.TickValue && binMultiplier == g.BinMultiplier {
		return
	}
	g.Pending = &PendingConfig{TickValue: tickValue, BinMultiplier: binMultiplier, UpdatedAt: now}
}

// nowMs returns the current wall time in epoch milliseconds. Nothing calls
// it: the processor and the tests pass explicit timestamps instead.
func nowMs() int64 { return time.Now().UnixMilli() }
