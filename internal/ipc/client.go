package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ClientConfig tunes connection and request behavior.
type ClientConfig struct {
	SocketPath     string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	MaxRetries     int
	BaseRetryDelay time.Duration
	MaxRetryDelay  time.Duration
}

// DefaultClientConfig returns sane connection and retry timeouts.
func DefaultClientConfig(socketPath string) ClientConfig {
	return ClientConfig{
		SocketPath:     socketPath,
		ConnectTimeout: 5 * time.Second,
		RequestTimeout: 10 * time.Second,
		MaxRetries:     5,
		BaseRetryDelay: 200 * time.Millisecond,
		MaxRetryDelay:  10 * time.Second,
	}
}

// Client is a connection to the persistence server's Unix-domain socket.
// One Client multiplexes many in-flight requests over one connection; the
// caller is responsible for not sharing a Client across processes.
type Client struct {
	cfg    ClientConfig
	logger *zap.Logger

	mu      sync.Mutex
	conn    net.Conn
	pending map[string]chan Response
	closed  bool

	nextID uint64
}

// NewClient constructs a disconnected Client; call Connect before use.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	return &Client{
		cfg:     cfg,
		logger:  logger.Named("ipc-client"),
		pending: make(map[string]chan Response),
	}
}

// Connect dials the socket with cfg.ConnectTimeout, retrying with
// exponential backoff up to MaxRetries. Once connected it starts the
// background reader that demultiplexes responses to pending requests.
func (c *Client) Connect(ctx context.Context) error {
	delay := c.cfg.BaseRetryDelay
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		conn, err := net.DialTimeout("unix", c.cfg.SocketPath, c.cfg.ConnectTimeout)
		if err == nil {
			c.mu.Lock()
			c.conn = conn
			c.closed = false
			c.mu.Unlock()
			go c.readLoop(conn)
			return nil
		}
		lastErr = err
		c.logger.Warn("connect attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrConnection, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
		if delay > c.cfg.MaxRetryDelay {
			delay = c.cfg.MaxRetryDelay
		}
	}
	return fmt.Errorf("%w: %v", ErrConnection, lastErr)
}

// readLoop demultiplexes frames off conn to pending requests until it
// fails, at which point every still-pending request is rejected with
// ErrDisconnected.
func (c *Client) readLoop(conn net.Conn) {
	r := bufio.NewReader(conn)
	for {
		payload, err := readFrame(r)
		if err != nil {
			if err != io.EOF {
				c.logger.Warn("read loop ended", zap.Error(err))
			}
			c.rejectAllPending(ErrDisconnected)
			return
		}
		var resp Response
		if err := json.Unmarshal(payload, &resp); err != nil {
			c.logger.Warn("dropping unparseable response frame", zap.Error(err))
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()
		if !ok {
			// Either a late response after the id timed out, or an id we
			// never issued. Both are logged and dropped.
			c.logger.Debug("dropping response for unknown or timed-out id", zap.String("id", resp.ID))
			continue
		}
		ch <- resp
	}
}

func (c *Client) rejectAllPending(cause error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan Response)
	c.closed = true
	c.mu.Unlock()
	for _, ch := range pending {
		ch <- Response{Success: false, Error: cause.Error()}
	}
}

// SendRequest writes one framed request and waits up to timeout for its
// correlated response. A zero timeout uses cfg.RequestTimeout.
func (c *Client) SendRequest(ctx context.Context, msgType MessageType, payload interface{}, timeout time.Duration) (Response, error) {
	if timeout <= 0 {
		timeout = c.cfg.RequestTimeout
	}
	id := strconv.FormatUint(atomic.AddUint64(&c.nextID, 1), 10)
	req := Request{ID: id, Type: msgType, Payload: payload, Timestamp: time.Now().UnixMilli()}

	ch := make(chan Response, 1)
	c.mu.Lock()
	if c.closed || c.conn == nil {
		c.mu.Unlock()
		return Response{}, ErrDisconnected
	}
	c.pending[id] = ch
	conn := c.conn
	c.mu.Unlock()

	if err := writeFrame(conn, req); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return Response{}, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		return resp, nil
	case <-timer.C:
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return Response{}, ErrTimeout
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return Response{}, ctx.Err()
	}
}

// SendFireAndForget writes one framed request and does not wait for (or
// register a handler for) any response.
func (c *Client) SendFireAndForget(msgType MessageType, payload interface{}) error {
	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()
	if closed || conn == nil {
		return ErrDisconnected
	}
	req := Request{ID: "", Type: msgType, Payload: payload, Timestamp: time.Now().UnixMilli()}
	if err := writeFrame(conn, req); err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return nil
}

// Close rejects all pending requests with ErrDisconnected and closes the
// underlying socket.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.closed = true
	pending := c.pending
	c.pending = make(map[string]chan Response)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- Response{Success: false, Error: ErrDisconnected.Error()}
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}
