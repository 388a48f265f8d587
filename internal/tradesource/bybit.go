package tradesource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"footprintd/internal/events"
)

// BybitSource streams Bybit's linear-perpetual public trade topic.
type BybitSource struct {
	symbol string
	wsURL  string
	logger *zap.Logger
}

type bybitEnvelope struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
}

type bybitTrade struct {
	ExecID string `json:"i"`
	Symbol string `json:"s"`
	Price  string `json:"p"`
	Size   string `json:"v"`
	Side   string `json:"S"`
	Time   int64  `json:"T"`
}

// NewBybitSource builds a connector for one uppercase linear symbol
// (e.g. "BTCUSDT"). wsURL defaults to Bybit's public linear stream host.
func NewBybitSource(symbol, wsURL string, logger *zap.Logger) *BybitSource {
	if wsURL == "" {
		wsURL = "wss://stream.bybit.com/v5/public/linear"
	}
	return &BybitSource{symbol: strings.ToUpper(symbol), wsURL: wsURL, logger: logger.Named("bybit")}
}

func (s *BybitSource) Exchange() string { return "bybit" }
func (s *BybitSource) Symbol() string   { return s.symbol }

func (s *BybitSource) Run(ctx context.Context, out chan<- events.Trade) error {
	dialer := websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: 45 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("bybit dial: %w", err)
	}
	defer conn.Close()

	sub := map[string]interface{}{"op": "subscribe", "args": []string{"publicTrade." + s.symbol}}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("bybit subscribe: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(20 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = conn.WriteJSON(map[string]string{"op": "ping"})
			}
		}
	}()
	defer func() { <-done }()

	s.logger.Info("connected", zap.String("symbol", s.symbol))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("bybit read: %w", err)
		}
		trades, perr := parseBybitTrades(msg)
		if perr != nil {
			s.logger.Debug("unparseable message", zap.Error(perr))
			continue
		}
		for _, t := range trades {
			select {
			case out <- t:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func parseBybitTrades(raw []byte) ([]events.Trade, error) {
	var env bybitEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(env.Topic, "publicTrade.") || len(env.Data) == 0 {
		return nil, nil
	}
	var raws []bybitTrade
	if err := json.Unmarshal(env.Data, &raws); err != nil {
		return nil, fmt.Errorf("bybit trade array: %w", err)
	}

	out := make([]events.Trade, 0, len(raws))
	for _, t := range raws {
		price, err := strconv.ParseFloat(t.Price, 64)
		if err != nil {
			continue
		}
		qty, err := strconv.ParseFloat(t.Size, 64)
		if err != nil {
			continue
		}
		side := events.SideBuy
		if strings.EqualFold(t.Side, "Sell") {
			side = events.SideSell
		}
		out = append(out, events.Trade{
			Exchange:  "bybit",
			Symbol:    strings.ToUpper(t.Symbol),
			TradeID:   bybitExecIDToInt(t.ExecID),
			Timestamp: t.Time,
			Price:     price,
			Quantity:  qty,
			Side:      side,
			TradeType: events.TradeTypeMarket,
		})
	}
	return out, nil
}

// bybitExecIDToInt converts Bybit's execId to a monotone-ish int64. It is
// numeric in practice; fall back to an fnv-1a hash for the rare
// non-numeric id so gap detection degrades instead of panicking.
func bybitExecIDToInt(id string) int64 {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	var h uint64 = 14695981039346656037
	for i := 0; i < len(id); i++ {
		h ^= uint64(id[i])
		h *= 1099511628211
	}
	return int64(h & 0x7fffffffffffffff)
}
