package candle

import "math"

// FootprintCandle is one OHLCV candle, at one timeframe, plus its
// price-binned buy/sell volume profile.
//
// State machine: open -> completing -> closed. While open (X=false) every
// field may still change; complete() freezes it, and the group then
// replaces it with a fresh empty candle for the next period.
type FootprintCandle struct {
	Exchange  string `json:"exchange"`
	Symbol    string `json:"symbol"`
	I         string `json:"i"` // timeframe name
	T         int64  `json:"t"` // open time
	CT        int64  `json:"ct,omitempty"`

	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`

	V  float64 `json:"v"`
	BV float64 `json:"bv"`
	SV float64 `json:"sv"`
	Q  float64 `json:"q,omitempty"`
	BQ float64 `json:"bq,omitempty"`
	SQ float64 `json:"sq,omitempty"`

	N int64 `json:"n"`

	D    float64 `json:"d"`
	DMax float64 `json:"dMax"`
	DMin float64 `json:"dMin"`

	F  int64 `json:"f"`
	LS int64 `json:"ls"`

	X bool `json:"x"`

	TV float64 `json:"tv"`

	Aggs []Aggs `json:"aggs"`
}

// newCandle returns a fresh, empty open candle aligned to ts for tf.
func newCandle(exchange, symbol string, tf Timeframe, ts int64, tickValue float64) *FootprintCandle {
	return &FootprintCandle{
		Exchange: exchange,
		Symbol:   symbol,
		I:        tf.Name,
		T:        tf.AlignedStart(ts),
		TV:       tickValue,
		Aggs:     nil,
	}
}

// applyTrade updates OHLCV, delta, and footprint bin fields with one
// trade. It does not perform gap detection or boundary checks — callers
// must ensure the trade belongs to this candle's period.
func (c *FootprintCandle) applyTrade(price, qty float64, buy bool, tradeID int64, effectiveBinSize float64) {
	if c.N == 0 {
		c.O = price
		c.H = price
		c.L = price
		c.F = tradeID
	} else {
		c.H = math.Max(c.H, price)
		c.L = math.Min(c.L, price)
	}
	c.C = price
	c.V += qty
	if buy {
		c.BV += qty
	} else {
		c.SV += qty
	}
	c.N++
	delta := qty
	if !buy {
		delta = -qty
	}
	c.D += delta
	c.DMax = math.Max(c.DMax, c.D)
	c.DMin = math.Min(c.DMin, c.D)
	if tradeID > c.LS {
		c.LS = tradeID
	}

	tp := tickPrice(price, effectiveBinSize)
	c.Aggs = applyTrade(c.Aggs, tp, qty, buy)
}

// tickPrice floors price to the nearest multiple of binSize at or below
// it, per the "price exactly at a bin boundary maps to the lower bin"
// boundary rule.
func tickPrice(price, binSize float64) float64 {
	if binSize <= 0 {
		return price
	}
	return math.Floor(price/binSize) * binSize
}

// complete freezes the candle as closed and returns the frozen copy that
// should be emitted as a CandleCompleted event. The receiver itself is
// mutated to X=true/CT set so the caller can still read its final values
// before discarding it.
func (c *FootprintCandle) complete(tf Timeframe) FootprintCandle {
	c.X = true
	c.CT = c.T + tf.DurationMs - 1
	return *c
}

// addFrom folds a completed shorter-timeframe candle's stats into this
// (longer-timeframe, still-open) candle. Called by rollup. src must not
// be mutated afterward by the caller — this takes its own copies of the
// fields it needs, matching the "rollup MUST NOT observe later mutations"
// contract without a full deep clone.
func (c *FootprintCandle) addFrom(src FootprintCandle) {
	if c.N == 0 {
		c.O = src.O
		c.H = src.H
		c.L = src.L
		c.F = src.F
	} else {
		c.H = math.Max(c.H, src.H)
		c.L = math.Min(c.L, src.L)
	}
	c.C = src.C
	c.V += src.V
	c.BV += src.BV
	c.SV += src.SV
	c.Q += src.Q
	c.BQ += src.BQ
	c.SQ += src.SQ
	c.N += src.N
	c.D += src.D
	c.DMax = math.Max(c.DMax, c.D)
	c.DMin = math.Min(c.DMin, c.D)
	if src.LS > c.LS {
		c.LS = src.LS
	}
	c.Aggs = mergeBins(c.Aggs, src.Aggs)
}
