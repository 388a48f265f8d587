// Package router implements the consistent-hash symbol->worker router and
// pool controller, drawing its service-orchestration style from a
// multi-timeframe coordinator and its register/broadcast channel idiom
// from a broadcaster package.
package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	rendezvous "github.com/dgryski/go-rendezvous"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"footprintd/internal/events"
	"footprintd/internal/worker"
)

// Pool owns workerCount worker runtimes and routes symbols to them via
// rendezvous (highest random weight) hashing, which keeps each symbol's
// assignment fixed for the pool's lifetime while remaining stable if the
// worker set ever changes.
type Pool struct {
	logger  *zap.Logger
	workers []*worker.Worker

	mu         sync.RWMutex
	hasher     *rendezvous.Rendezvous
	assignment map[string]int // symbol -> worker index
}

// NewPool wraps already-constructed workers (one per configured
// workerCount) into a routable pool.
func NewPool(workers []*worker.Worker, logger *zap.Logger) *Pool {
	names := make([]string, len(workers))
	for i := range workers {
		names[i] = fmt.Sprintf("%d", i)
	}
	return &Pool{
		logger:     logger.Named("pool"),
		workers:    workers,
		hasher:     rendezvous.New(names, xxhashString),
		assignment: make(map[string]int),
	}
}

// xxhashString adapts go-rendezvous' uint64 hash seam to plain strings,
// using fnv-1a (stdlib-free, deterministic, and good enough for pool
// assignment — not a security boundary).
func xxhashString(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

// workerIndexFor returns the rendezvous-assigned worker index for symbol.
func (p *Pool) workerIndexFor(symbol string) int {
	name := p.hasher.Get(symbol)
	var idx int
	fmt.Sscanf(name, "%d", &idx)
	return idx
}

// Start spawns every worker's Run loop, sends WORKER_INIT for the given
// symbol assignment, and blocks up to readyTimeout for all of them to
// become ready.
func (p *Pool) Start(ctx context.Context, symbols []string, readyTimeout time.Duration) error {
	for _, w := range p.workers {
		go w.Run(ctx)
	}

	bySymbol := make(map[int][]string)
	p.mu.Lock()
	for _, symbol := range symbols {
		idx := p.workerIndexFor(symbol)
		p.assignment[symbol] = idx
		bySymbol[idx] = append(bySymbol[idx], symbol)
	}
	p.mu.Unlock()

	initCtx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(initCtx)
	for i, w := range p.workers {
		i, w := i, w
		g.Go(func() error {
			if err := w.Init(gctx, bySymbol[i]); err != nil {
				return fmt.Errorf("worker %d failed readiness: %w", i, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// RouteTrades enqueues trades to their owning worker's mailbox. Ordering
// within a symbol is preserved; ordering across symbols is not.
func (p *Pool) RouteTrades(trades []events.Trade) {
	for _, t := range trades {
		p.mu.RLock()
		idx, ok := p.assignment[t.Symbol]
		p.mu.RUnlock()
		if !ok {
			idx = p.workerIndexFor(t.Symbol)
			p.mu.Lock()
			p.assignment[t.Symbol] = idx
			p.mu.Unlock()
		}
		p.workers[idx].RouteTrade(t)
	}
}

// AssignSymbolToWorker updates the in-memory assignment table, using the
// consistent hash when workerID is negative.
func (p *Pool) AssignSymbolToWorker(symbol string, workerID int) {
	if workerID < 0 {
		workerID = p.workerIndexFor(symbol)
	}
	p.mu.Lock()
	p.assignment[symbol] = workerID
	p.mu.Unlock()
}

// RemoveSymbolFromWorker drops a symbol's assignment entry.
func (p *Pool) RemoveSymbolFromWorker(symbol string) {
	p.mu.Lock()
	delete(p.assignment, symbol)
	p.mu.Unlock()
}

// SendToWorker is a request/response to one worker by index.
func (p *Pool) SendToWorker(ctx context.Context, workerID int) (worker.HealthCounters, error) {
	if workerID < 0 || workerID >= len(p.workers) {
		return worker.HealthCounters{}, fmt.Errorf("router: worker id %d out of range", workerID)
	}
	return p.workers[workerID].SyncMetrics(ctx)
}

// BroadcastToAll fans SYNC_METRICS out to every worker and collects
// per-worker responses.
func (p *Pool) BroadcastToAll(ctx context.Context) []worker.HealthCounters {
	out := make([]worker.HealthCounters, len(p.workers))
	var wg sync.WaitGroup
	for i, w := range p.workers {
		wg.Add(1)
		go func(i int, w *worker.Worker) {
			defer wg.Done()
			h, err := w.SyncMetrics(ctx)
			if err != nil {
				p.logger.Warn("broadcast sync_metrics failed", zap.Int("worker", i), zap.Error(err))
				return
			}
			out[i] = h
		}(i, w)
	}
	wg.Wait()
	return out
}

// Shutdown issues SHUTDOWN to every worker, bounded by flushTimeout.
func (p *Pool) Shutdown(ctx context.Context, flushTimeout time.Duration) {
	shutdownCtx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	var wg sync.WaitGroup
	for i, w := range p.workers {
		wg.Add(1)
		go func(i int, w *worker.Worker) {
			defer wg.Done()
			if err := w.Shutdown(shutdownCtx); err != nil {
				p.logger.Warn("worker shutdown flush incomplete", zap.Int("worker", i), zap.Error(err))
			}
		}(i, w)
	}
	wg.Wait()
}
