package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"footprintd/internal/candle"
	"footprintd/internal/config"
	"footprintd/internal/events"
	"footprintd/internal/gapwriter"
	"footprintd/internal/processor"
)

// State is one of a worker's lifecycle states.
type State string

const (
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateBusy         State = "busy"
	StateUnhealthy    State = "unhealthy"
	StateTerminated   State = "terminated"
)

// HealthCounters is the set of health fields a worker reports on sync.
type HealthCounters struct {
	TradesProcessed  int64
	EventsPublished  int64
	AvgProcessingMs  float64
	ErrorCount       int64
	LastError        string
	LastHeartbeatMs  int64
}

// StateClient is the subset of the persistence IPC client a worker needs:
// loading initial state and flushing dirty batches.
type StateClient interface {
	LoadState(ctx context.Context, exchange, symbol string) (string, bool, error)
	SaveStateBatch(ctx context.Context, states []StatePair) error
}

// StatePair is one (exchange,symbol,json) triple for a batched save.
type StatePair struct {
	Exchange  string
	Symbol    string
	StateJSON string
}

// EventSink receives completed candles for out-of-core fan-out.
type EventSink interface {
	Publish(events.CandleCompleted)
}

// ConfigSource looks up the latest SymbolConfig for a (exchange,symbol)
// pair, so a worker always applies the operator's current tick/bin
// settings rather than a snapshot taken at startup.
type ConfigSource interface {
	GetSymbolConfig(exchange, symbol string) (config.SymbolConfig, bool)
}

// mailboxMsg is either a routed trade or a control message.
type mailboxMsg struct {
	trade   *routedTrade
	control *controlMsg
}

type routedTrade struct {
	trade events.Trade
}

type controlKind string

const (
	ctrlInit        controlKind = "WORKER_INIT"
	ctrlShutdown    controlKind = "SHUTDOWN"
	ctrlSyncMetrics controlKind = "SYNC_METRICS"
)

type controlMsg struct {
	kind       controlKind
	symbols    []string
	reply      chan interface{}
}

// Worker owns a disjoint set of symbols' CandleGroups and processes
// their trades strictly in arrival order off one mailbox.
type Worker struct {
	ID           int
	logger       *zap.Logger
	storage      *Storage
	stateClient  StateClient
	gapWriter    *gapwriter.Writer
	eventSink    EventSink
	configSource ConfigSource

	mailbox chan mailboxMsg

	mu      sync.RWMutex
	state   State
	health  HealthCounters
}

// New constructs a Worker. Call Run to start its mailbox loop.
func New(id int, storage *Storage, stateClient StateClient, gw *gapwriter.Writer, sink EventSink, cfgSrc ConfigSource, logger *zap.Logger) *Worker {
	return &Worker{
		ID:           id,
		logger:       logger.Named(fmt.Sprintf("worker-%d", id)),
		storage:      storage,
		stateClient:  stateClient,
		gapWriter:    gw,
		eventSink:    sink,
		configSource: cfgSrc,
		mailbox:      make(chan mailboxMsg, 4096),
		state:        StateInitializing,
	}
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// State returns the worker's current lifecycle state.
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// RouteTrade enqueues a trade for processing; ordering for one symbol is
// preserved because every trade for that symbol reaches the same
// worker's single mailbox.
func (w *Worker) RouteTrade(trade events.Trade) {
	w.mailbox <- mailboxMsg{trade: &routedTrade{trade: trade}}
}

// Init sends WORKER_INIT and blocks until the worker acknowledges.
func (w *Worker) Init(ctx context.Context, symbols []string) error {
	reply := make(chan interface{}, 1)
	w.mailbox <- mailboxMsg{control: &controlMsg{kind: ctrlInit, symbols: symbols, reply: reply}}
	select {
	case r := <-reply:
		if err, ok := r.(error); ok && err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown sends SHUTDOWN and blocks until the worker has flushed.
func (w *Worker) Shutdown(ctx context.Context) error {
	reply := make(chan interface{}, 1)
	w.mailbox <- mailboxMsg{control: &controlMsg{kind: ctrlShutdown, reply: reply}}
	select {
	case r := <-reply:
		if err, ok := r.(error); ok && err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SyncMetrics returns a snapshot of the worker's health counters.
func (w *Worker) SyncMetrics(ctx context.Context) (HealthCounters, error) {
	reply := make(chan interface{}, 1)
	w.mailbox <- mailboxMsg{control: &controlMsg{kind: ctrlSyncMetrics, reply: reply}}
	select {
	case r := <-reply:
		return r.(HealthCounters), nil
	case <-ctx.Done():
		return HealthCounters{}, ctx.Err()
	}
}

// Run is the worker's cooperative single-threaded loop over its mailbox.
// It returns once a SHUTDOWN control message has been processed.
func (w *Worker) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("worker panic recovered", zap.Any("panic", r))
			w.setState(StateUnhealthy)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-w.mailbox:
			if msg.trade != nil {
				w.processTrade(msg.trade.trade)
			}
			if msg.control != nil {
				if w.handleControl(ctx, *msg.control) {
					return
				}
			}
		}
	}
}

func (w *Worker) processTrade(trade events.Trade) {
	w.setState(StateBusy)
	start := time.Now()

	p, ok := w.storage.Get(trade.Symbol)
	if !ok {
		cfg, _ := w.configSource.GetSymbolConfig(trade.Exchange, trade.Symbol)
		if cfg.TickValue == 0 {
			cfg.TickValue = 0.01
		}
		if cfg.BinMultiplier == 0 {
			cfg.BinMultiplier = 1
		}
		g := candle.NewGroup(trade.Exchange, trade.Symbol, cfg.TickValue, cfg.BinMultiplier, trade.Timestamp)
		p = processor.New(g, w.gapWriter)
		w.storage.Put(trade.Symbol, p)
	}

	cfg, _ := w.configSource.GetSymbolConfig(trade.Exchange, trade.Symbol)
	result := p.Apply(trade, cfg, time.Now().UnixMilli())

	w.mu.Lock()
	w.health.TradesProcessed++
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0
	w.health.AvgProcessingMs = (w.health.AvgProcessingMs + elapsed) / 2
	w.health.LastHeartbeatMs = time.Now().UnixMilli()
	w.mu.Unlock()

	if w.eventSink != nil {
		for _, c := range result.CompletedCandles {
			w.eventSink.Publish(c)
			w.mu.Lock()
			w.health.EventsPublished++
			w.mu.Unlock()
		}
	}

	w.setState(StateReady)
}

func (w *Worker) handleControl(ctx context.Context, msg controlMsg) (shutdown bool) {
	switch msg.kind {
	case ctrlInit:
		err := w.doInit(ctx, msg.symbols)
		msg.reply <- err
		return false

	case ctrlShutdown:
		err := w.flushDirty(ctx)
		w.setState(StateTerminated)
		msg.reply <- err
		return true

	case ctrlSyncMetrics:
		w.mu.RLock()
		h := w.health
		w.mu.RUnlock()
		msg.reply <- h
		return false
	}
	return false
}

func (w *Worker) doInit(ctx context.Context, symbols []string) error {
	for _, symbol := range symbols {
		parts := splitExchangeSymbol(symbol)
		exchange, sym := parts[0], parts[1]
		stateJSON, found, err := w.stateClient.LoadState(ctx, exchange, sym)
		if err != nil {
			return fmt.Errorf("worker %d: load state for %s: %w", w.ID, symbol, err)
		}
		if !found {
			continue
		}
		var g candle.CandleGroup
		if err := json.Unmarshal([]byte(stateJSON), &g); err != nil {
			w.logger.Warn("dropping unparseable persisted state", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		p := processor.New(&g, w.gapWriter)
		w.storage.Put(sym, p)
	}
	w.setState(StateReady)
	return nil
}

func (w *Worker) flushDirty(ctx context.Context) error {
	symbols := w.storage.DirtySymbols()
	if len(symbols) == 0 {
		return nil
	}
	batch := make([]StatePair, 0, len(symbols))
	for _, symbol := range symbols {
		p, ok := w.storage.Get(symbol)
		if !ok {
			continue
		}
		data, err := json.Marshal(p.Group())
		if err != nil {
			return fmt.Errorf("worker %d: marshal state for %s: %w", w.ID, symbol, err)
		}
		batch = append(batch, StatePair{Exchange: p.Group().Exchange, Symbol: symbol, StateJSON: string(data)})
	}
	if err := w.stateClient.SaveStateBatch(ctx, batch); err != nil {
		return fmt.Errorf("worker %d: save_batch: %w", w.ID, err)
	}
	w.storage.ClearDirty(symbols)
	return nil
}

func splitExchangeSymbol(s string) [2]string {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return [2]string{s[:i], s[i+1:]}
		}
	}
	return [2]string{"", s}
}
