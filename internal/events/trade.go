// Package events defines the wire and domain types shared across the
// ingestion pipeline: trades coming in, gap records and completed candles
// going out.
package events

// Side identifies the taker side of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// TradeType distinguishes market trades (which update the footprint) from
// other trade types that only advance the trade-id sequence.
type TradeType string

const (
	TradeTypeMarket TradeType = "MARKET"
)

// Trade is one exchange-reported trade for a symbol.
type Trade struct {
	Exchange  string    `json:"exchange"`
	Symbol    string    `json:"symbol"`
	TradeID   int64     `json:"tradeId"`
	Timestamp int64     `json:"timestamp"` // epoch ms
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	Side      Side      `json:"side"`
	TradeType TradeType `json:"tradeType,omitempty"`
}

// IsFootprintEligible reports whether the trade should update OHLCV and
// footprint bins, per the processor's eligibility rule.
func (t Trade) IsFootprintEligible() bool {
	if t.TradeType != "" && t.TradeType != TradeTypeMarket {
		return false
	}
	return t.Price > 0 && t.Quantity > 0
}

// GapRecord describes a detected hole in a symbol's trade-id sequence.
type GapRecord struct {
	ID         int64  `json:"id,omitempty"`
	Exchange   string `json:"exchange"`
	Symbol     string `json:"symbol"`
	FromTradeID int64 `json:"fromTradeId"`
	ToTradeID   int64 `json:"toTradeId"`
	GapSize    int64  `json:"gapSize"`
	DetectedAt int64  `json:"detectedAt"`
	Synced     bool   `json:"synced"`
	SyncedAt   int64  `json:"syncedAt,omitempty"`
}

// CandleCompleted is emitted whenever a FootprintCandle transitions to
// complete, for any timeframe.
type CandleCompleted struct {
	Exchange  string      `json:"exchange"`
	Symbol    string      `json:"symbol"`
	Timeframe string      `json:"timeframe"`
	Candle    interface{} `json:"candle"`
}

// SkipReason explains why a trade produced no footprint update.
type SkipReason string

const (
	SkipDuplicate  SkipReason = "duplicate"
	SkipOutOfOrder SkipReason = "out_of_order"
)

// ProcessResult is the processor's per-trade output.
type ProcessResult struct {
	CompletedCandles []CandleCompleted
	GapDetected      *GapRecord
	Skipped          bool
	SkipReason       SkipReason
}
