package tradesource

import (
	"testing"

	"footprintd/internal/events"
)

func TestParseBinanceTrade(t *testing.T) {
	raw := []byte(`{"stream":"btcusdt@trade","data":{"e":"trade","t":123456,"p":"65000.10","q":"0.005","T":1700000000000,"m":false}}`)
	trade, ok, err := parseBinanceTrade(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	if trade.Symbol != "BTCUSDT" || trade.TradeID != 123456 || trade.Price != 65000.10 {
		t.Fatalf("unexpected trade: %+v", trade)
	}
	if trade.Side != events.SideBuy {
		t.Fatalf("expected buy side when isBuyerMaker=false (buyer was the aggressor), got %s", trade.Side)
	}
}

func TestParseBinanceTradeIgnoresNonTradeEvents(t *testing.T) {
	raw := []byte(`{"stream":"btcusdt@depth","data":{"e":"depthUpdate"}}`)
	_, ok, err := parseBinanceTrade(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for non-trade event")
	}
}

func TestParseBybitTrades(t *testing.T) {
	raw := []byte(`{"topic":"publicTrade.BTCUSDT","type":"snapshot","data":[{"i":"2290000000012345","s":"BTCUSDT","p":"65010.5","v":"0.01","S":"Buy","T":1700000000001}]}`)
	trades, err := parseBybitTrades(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].TradeID != 2290000000012345 {
		t.Fatalf("expected numeric execId parsed through, got %d", trades[0].TradeID)
	}
	if trades[0].Side != events.SideBuy {
		t.Fatalf("expected buy side, got %s", trades[0].Side)
	}
}

func TestParseBybitTradesIgnoresOtherTopics(t *testing.T) {
	raw := []byte(`{"topic":"orderbook.50.BTCUSDT","data":[]}`)
	trades, err := parseBybitTrades(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if trades != nil {
		t.Fatalf("expected nil trades for non-trade topic, got %v", trades)
	}
}

func TestBybitExecIDToIntFallsBackOnNonNumeric(t *testing.T) {
	a := bybitExecIDToInt("abc-not-numeric")
	b := bybitExecIDToInt("abc-not-numeric")
	if a != b {
		t.Fatal("expected deterministic hash fallback")
	}
	if a < 0 {
		t.Fatal("expected non-negative fallback id")
	}
}

func TestParseOKXTrades(t *testing.T) {
	raw := []byte(`{"arg":{"channel":"trades","instId":"BTC-USDT-SWAP"},"data":[{"instId":"BTC-USDT-SWAP","tradeId":"987654321","px":"65020.2","sz":"3","side":"sell","ts":"1700000000002"}]}`)
	trades, err := parseOKXTrades(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].TradeID != 987654321 || trades[0].Side != events.SideSell {
		t.Fatalf("unexpected trade: %+v", trades[0])
	}
}
