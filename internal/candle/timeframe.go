package candle

// Timeframe is an immutable value identifying one of the twelve supported
// candle periods.
type Timeframe struct {
	Name       string
	DurationMs int64
}

var (
	TF1s  = Timeframe{"1s", 1000}
	TF1m  = Timeframe{"1m", 60_000}
	TF3m  = Timeframe{"3m", 3 * 60_000}
	TF5m  = Timeframe{"5m", 5 * 60_000}
	TF15m = Timeframe{"15m", 15 * 60_000}
	TF30m = Timeframe{"30m", 30 * 60_000}
	TF1h  = Timeframe{"1h", 3_600_000}
	TF2h  = Timeframe{"2h", 2 * 3_600_000}
	TF4h  = Timeframe{"4h", 4 * 3_600_000}
	TF8h  = Timeframe{"8h", 8 * 3_600_000}
	TF12h = Timeframe{"12h", 12 * 3_600_000}
	TF1d  = Timeframe{"1d", 24 * 3_600_000}
)

// Timeframes lists every supported timeframe in ascending duration order.
// Ascending order matters: rollup folds each completed 1s candle into every
// higher timeframe in turn, so completions are reported in this order. A
// higher timeframe's completion is not folded into the next one.
var Timeframes = []Timeframe{TF1s, TF1m, TF3m, TF5m, TF15m, TF30m, TF1h, TF2h, TF4h, TF8h, TF12h, TF1d}

// AlignedStart returns the period start, in epoch ms, that contains
// timestamp ts for this timeframe.
func (tf Timeframe) AlignedStart(ts int64) int64 {
	return (ts / tf.DurationMs) * tf.DurationMs
}

// Period returns the period index (floor(ts/durationMs)) used for
// completion-boundary comparisons.
func (tf Timeframe) Period(ts int64) int64 {
	return ts / tf.DurationMs
}
