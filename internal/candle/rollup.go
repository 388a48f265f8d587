package candle

// CompleteAndRollup checks whether the 1s candle's period (compared on the
// trade's own timestamp, never wall time) has advanced past ts; if so it
// completes the 1s candle and folds that completed 1s directly into every
// open higher timeframe (1m, 3m, 5m, ..., 1d), completing each of those
// whose own period has also rolled over. Every higher timeframe receives
// the same 1s candle; completions do not feed into each other. Applies
// the pending-config swap if the 1d candle just completed, and returns
// every candle that completed, in ascending timeframe order.
//
// It must be called before the trade is applied to the (possibly new) 1s
// candle, so period boundaries are evaluated against the *previous*
// candle's open time.
func (g *CandleGroup) CompleteAndRollup(ts int64) []FootprintCandle {
	oneSec := g.Candles[TF1s.Name]
	if TF1s.Period(ts) == TF1s.Period(oneSec.T) {
		return nil
	}

	var completed []FootprintCandle

	finished := oneSec.complete(TF1s)
	completed = append(completed, finished)
	g.Candles[TF1s.Name] = newCandle(g.Exchange, g.Symbol, TF1s, ts, g.TickValue)

	dayCompleted := false
	for _, tf := range Timeframes[1:] {
		open := g.Candles[tf.Name]
		open.addFrom(finished)
		if tf.Period(ts) <= tf.Period(open.T) {
			continue
		}
		done := open.complete(tf)
		completed = append(completed, done)
		g.Candles[tf.Name] = newCandle(g.Exchange, g.Symbol, tf, ts, g.TickValue)
		if tf.Name == TF1d.Name {
			dayCompleted = true
		}
	}

	if dayCompleted {
		g.applyPendingIfStaged(ts)
	}

	return completed
}

// applyPendingIfStaged replaces the group with a freshly created default
// group carrying the staged tickValue/binMultiplier, clearing the pending
// marker. Called only right after the 1d candle completes, so no
// partial day ever mixes bin sizes.
func (g *CandleGroup) applyPendingIfStaged(ts int64) {
	if g.Pending == nil {
		return
	}
	fresh := NewGroup(g.Exchange, g.Symbol, g.Pending.TickValue, g.Pending.BinMultiplier, ts)
	g.TickValue = fresh.TickValue
	g.BinMultiplier = fresh.BinMultiplier
	g.Candles = fresh.Candles
	g.Pending = nil
}

// ApplyTrade applies one eligible trade to the group's 1s candle. Callers
// must invoke CompleteAndRollup first so the 1s candle for ts already
// exists.
func (g *CandleGroup) ApplyTrade(price, qty float64, buy bool, tradeID, ts int64) {
	oneSec := g.Candles[TF1s.Name]
	oneSec.applyTrade(price, qty, buy, tradeID, g.EffectiveBinSize())
}
