// Package redis wraps go-redis with the publish/subscribe surface this
// engine needs: connection handling and channel-naming conventions for
// candle and gap event fan-out.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"footprintd/internal/events"
)

// Client wraps a redis.Client with footprintd-specific publish helpers.
type Client struct {
	rdb    *redis.Client
	logger *zap.Logger
	config ClientConfig
}

// ClientConfig holds Redis connection configuration.
type ClientConfig struct {
	Addr       string
	DB         int
	Password   string
	PoolSize   int
	MaxRetries int
}

// NewClient dials Redis and verifies connectivity with a PING.
func NewClient(config ClientConfig, logger *zap.Logger) (*Client, error) {
	opts := &redis.Options{
		Addr:       config.Addr,
		DB:         config.DB,
		Password:   config.Password,
		PoolSize:   config.PoolSize,
		MaxRetries: config.MaxRetries,
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: connect: %w", err)
	}

	logger.Info("redis client connected", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
	return &Client{rdb: rdb, logger: logger.Named("redis"), config: config}, nil
}

// CandleChannel builds the pub/sub channel name a completed candle is
// published on: candles:{SYMBOL}:{TIMEFRAME}.
func CandleChannel(symbol, timeframe string) string {
	return fmt.Sprintf("candles:%s:%s", strings.ToUpper(symbol), timeframe)
}

// GapChannel builds the channel name a detected gap is published on.
func GapChannel(exchange, symbol string) string {
	return fmt.Sprintf("gaps:%s:%s", exchange, strings.ToUpper(symbol))
}

// PublishCandle publishes a completed candle to its timeframe channel.
func (c *Client) PublishCandle(ctx context.Context, evt events.CandleCompleted) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("redis: marshal candle: %w", err)
	}
	channel := CandleChannel(evt.Symbol, evt.Timeframe)
	if err := c.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("redis: publish to %s: %w", channel, err)
	}
	return nil
}

// PublishGap publishes a detected gap to its exchange/symbol channel.
func (c *Client) PublishGap(ctx context.Context, gap events.GapRecord) error {
	data, err := json.Marshal(gap)
	if err != nil {
		return fmt.Errorf("redis: marshal gap: %w", err)
	}
	channel := GapChannel(gap.Exchange, gap.Symbol)
	if err := c.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("redis: publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe subscribes to the given channels and returns the message feed.
func (c *Client) Subscribe(ctx context.Context, channels ...string) (<-chan *redis.Message, error) {
	pubsub := c.rdb.Subscribe(ctx, channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("redis: subscribe: %w", err)
	}
	return pubsub.Channel(), nil
}

// HealthCheck pings the Redis server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: health check: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		c.logger.Error("failed to close redis client", zap.Error(err))
		return err
	}
	return nil
}

// CandleSink adapts Client to worker.EventSink, publishing every
// completed candle to Redis and swallowing publish errors into a log line
// so a Redis outage never blocks the worker's mailbox loop.
type CandleSink struct {
	client *Client
	logger *zap.Logger
}

// NewCandleSink wraps client as an EventSink.
func NewCandleSink(client *Client, logger *zap.Logger) *CandleSink {
	return &CandleSink{client: client, logger: logger.Named("candle-sink")}
}

// Publish implements worker.EventSink.
func (s *CandleSink) Publish(evt events.CandleCompleted) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.client.PublishCandle(ctx, evt); err != nil {
		s.logger.Warn("failed to publish completed candle", zap.String("symbol", evt.Symbol), zap.Error(err))
	}
}
