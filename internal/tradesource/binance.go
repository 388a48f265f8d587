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

// BinanceSource streams the combined trade stream for one futures symbol.
type BinanceSource struct {
	symbol string
	wsURL  string
	logger *zap.Logger
}

// binanceTradeMessage mirrors Binance's combined-stream trade payload.
type binanceTradeMessage struct {
	Stream string `json:"stream"`
	Data   struct {
		EventType    string `json:"e"`
		TradeID      int64  `json:"t"`
		Price        string `json:"p"`
		Quantity     string `json:"q"`
		TradeTime    int64  `json:"T"`
		IsBuyerMaker bool   `json:"m"`
	} `json:"data"`
}

// NewBinanceSource builds a connector for one lowercase futures symbol
// (e.g. "btcusdt"). wsURL defaults to Binance's futures stream host when
// empty.
func NewBinanceSource(symbol, wsURL string, logger *zap.Logger) *BinanceSource {
	if wsURL == "" {
		wsURL = "wss://fstream.binance.com/stream?streams="
	}
	return &BinanceSource{symbol: strings.ToLower(symbol), wsURL: wsURL, logger: logger.Named("binance")}
}

func (s *BinanceSource) Exchange() string { return "binance" }
func (s *BinanceSource) Symbol() string   { return strings.ToUpper(s.symbol) }

// Run dials once, streams until the connection drops or ctx is cancelled,
// and returns an error on any read/dial failure so the caller's
// supervisor can reconnect with backoff.
func (s *BinanceSource) Run(ctx context.Context, out chan<- events.Trade) error {
	url := s.wsURL + fmt.Sprintf("%s@trade", s.symbol)

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 45 * time.Second,
	}
	headers := http.Header{}
	headers.Set("User-Agent", "footprintd/1.0")

	conn, _, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		return fmt.Errorf("binance dial: %w", err)
	}
	defer conn.Close()

	conn.SetReadLimit(655350)
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
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
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
			return fmt.Errorf("binance read: %w", err)
		}
		trade, ok, perr := parseBinanceTrade(msg)
		if perr != nil {
			s.logger.Debug("unparseable message", zap.Error(perr))
			continue
		}
		if !ok {
			continue
		}
		select {
		case out <- trade:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func parseBinanceTrade(raw []byte) (events.Trade, bool, error) {
	var m binanceTradeMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return events.Trade{}, false, err
	}
	if m.Data.EventType != "trade" {
		return events.Trade{}, false, nil
	}
	price, err := strconv.ParseFloat(m.Data.Price, 64)
	if err != nil {
		return events.Trade{}, false, fmt.Errorf("binance price: %w", err)
	}
	qty, err := strconv.ParseFloat(m.Data.Quantity, 64)
	if err != nil {
		return events.Trade{}, false, fmt.Errorf("binance quantity: %w", err)
	}

	symbol := strings.ToUpper(strings.SplitN(m.Stream, "@", 2)[0])
	side := events.SideBuy
	if m.Data.IsBuyerMaker {
		// the aggressor was the seller when the buyer rested the order
		side = events.SideSell
	}

	return events.Trade{
		Exchange:  "binance",
		Symbol:    symbol,
		TradeID:   m.Data.TradeID,
		Timestamp: m.Data.TradeTime,
		Price:     price,
		Quantity:  qty,
		Side:      side,
		TradeType: events.TradeTypeMarket,
	}, true, nil
}
