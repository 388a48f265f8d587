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

// OKXSource streams OKX's public trades channel for one instrument.
type OKXSource struct {
	instID string
	wsURL  string
	logger *zap.Logger
}

type okxTradeMessage struct {
	Arg struct {
		Channel string `json:"channel"`
	} `json:"arg"`
	Data []struct {
		InstID    string `json:"instId"`
		TradeID   string `json:"tradeId"`
		Price     string `json:"px"`
		Size      string `json:"sz"`
		Side      string `json:"side"`
		Timestamp string `json:"ts"`
	} `json:"data"`
}

// NewOKXSource builds a connector for one instrument id (e.g.
// "BTC-USDT-SWAP"). wsURL defaults to OKX's public stream host.
func NewOKXSource(instID, wsURL string, logger *zap.Logger) *OKXSource {
	if wsURL == "" {
		wsURL = "wss://ws.okx.com:8443/ws/v5/public"
	}
	return &OKXSource{instID: strings.ToUpper(instID), wsURL: wsURL, logger: logger.Named("okx")}
}

func (s *OKXSource) Exchange() string { return "okx" }
func (s *OKXSource) Symbol() string   { return s.instID }

func (s *OKXSource) Run(ctx context.Context, out chan<- events.Trade) error {
	dialer := websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: 45 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("okx dial: %w", err)
	}
	defer conn.Close()

	sub := map[string]interface{}{
		"op": "subscribe",
		"args": []map[string]string{
			{"channel": "trades", "instId": s.instID},
		},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("okx subscribe: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))

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
				_ = conn.WriteMessage(websocket.TextMessage, []byte("ping"))
			}
		}
	}()
	defer func() { <-done }()

	s.logger.Info("connected", zap.String("symbol", s.instID))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("okx read: %w", err)
		}
		if string(msg) == "pong" {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			continue
		}
		trades, perr := parseOKXTrades(msg)
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

func parseOKXTrades(raw []byte) ([]events.Trade, error) {
	var m okxTradeMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if m.Arg.Channel != "trades" || len(m.Data) == 0 {
		return nil, nil
	}

	out := make([]events.Trade, 0, len(m.Data))
	for _, d := range m.Data {
		price, err := strconv.ParseFloat(d.Price, 64)
		if err != nil {
			continue
		}
		qty, err := strconv.ParseFloat(d.Size, 64)
		if err != nil {
			continue
		}
		tradeID, err := strconv.ParseInt(d.TradeID, 10, 64)
		if err != nil {
			continue
		}
		ts, _ := strconv.ParseInt(d.Timestamp, 10, 64)
		side := events.SideBuy
		if strings.EqualFold(d.Side, "sell") {
			side = events.SideSell
		}
		out = append(out, events.Trade{
			Exchange:  "okx",
			Symbol:    strings.ToUpper(d.InstID),
			TradeID:   tradeID,
			Timestamp: ts,
			Price:     price,
			Quantity:  qty,
			Side:      side,
			TradeType: events.TradeTypeMarket,
		})
	}
	return out, nil
}
