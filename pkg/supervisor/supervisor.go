// Package supervisor runs named long-lived functions under retry-with-
// backoff supervision, promoted from the app-specific exchange-connection
// supervisor so tradesource connectors and any other reconnect-on-failure
// loop can share one harness.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Func is a supervised long-running task. It should return promptly when
// ctx is cancelled.
type Func func(ctx context.Context) error

// Config controls one task's retry/backoff behavior.
type Config struct {
	Name           string
	MaxRetries     int // 0 = unlimited
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

func (c Config) withDefaults() Config {
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.BackoffFactor <= 0 {
		c.BackoffFactor = 2.0
	}
	return c
}

// Status is a task's current lifecycle state.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusRetrying Status = "retrying"
	StatusFailed   Status = "failed"
)

type task struct {
	cfg       Config
	fn        Func
	mu        sync.RWMutex
	status    Status
	retries   int
	lastError error
	startedAt time.Time
}

func (t *task) setStatus(s Status) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

// Supervisor owns a fixed set of named tasks, starting and retrying each
// independently.
type Supervisor struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	tasks   map[string]*task
	started bool
	wg      sync.WaitGroup
}

// New builds an empty supervisor. Add tasks with Add before Run.
func New(logger *zap.Logger) *Supervisor {
	return &Supervisor{
		logger: logger.Named("supervisor"),
		tasks:  make(map[string]*task),
	}
}

// Add registers a task. Must be called before Run.
func (s *Supervisor) Add(cfg Config, fn Func) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("supervisor: cannot add task after Run")
	}
	if _, exists := s.tasks[cfg.Name]; exists {
		return fmt.Errorf("supervisor: task %q already registered", cfg.Name)
	}
	s.tasks[cfg.Name] = &task{cfg: cfg.withDefaults(), fn: fn, status: StatusStopped}
	return nil
}

// Run starts every registered task and blocks until ctx is cancelled and
// all tasks have returned.
func (s *Supervisor) Run(ctx context.Context) {
	s.mu.Lock()
	s.started = true
	tasks := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	for _, t := range tasks {
		s.wg.Add(1)
		go s.runTask(ctx, t)
	}
	s.wg.Wait()
}

func (s *Supervisor) runTask(ctx context.Context, t *task) {
	defer s.wg.Done()
	logger := s.logger.With(zap.String("task", t.cfg.Name))

	for {
		select {
		case <-ctx.Done():
			t.setStatus(StatusStopped)
			return
		default:
		}

		if t.cfg.MaxRetries > 0 && t.retries >= t.cfg.MaxRetries {
			t.setStatus(StatusFailed)
			logger.Error("task failed after max retries", zap.Int("retries", t.retries), zap.Error(t.lastError))
			return
		}

		t.setStatus(StatusStarting)
		t.startedAt = time.Now()
		err := s.execute(ctx, t, logger)

		if err == nil {
			t.setStatus(StatusStopped)
			logger.Info("task completed")
			return
		}
		if errors.Is(err, context.Canceled) {
			t.setStatus(StatusStopped)
			return
		}

		t.mu.Lock()
		t.lastError = err
		t.retries++
		retries := t.retries
		t.mu.Unlock()
		t.setStatus(StatusRetrying)

		backoff := computeBackoff(t.cfg, retries)
		logger.Warn("task failed, retrying after backoff",
			zap.Error(err), zap.Int("retries", retries), zap.Duration("backoff", backoff))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			t.setStatus(StatusStopped)
			return
		}
	}
}

func (s *Supervisor) execute(ctx context.Context, t *task, logger *zap.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("task panicked", zap.Any("panic", r))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	t.setStatus(StatusRunning)
	return t.fn(ctx)
}

func computeBackoff(cfg Config, retries int) time.Duration {
	backoff := cfg.InitialBackoff
	for i := 0; i < retries-1; i++ {
		backoff = time.Duration(float64(backoff) * cfg.BackoffFactor)
		if backoff > cfg.MaxBackoff {
			return cfg.MaxBackoff
		}
	}
	return backoff
}

// Status returns the named task's current status.
func (s *Supervisor) Status(name string) (Status, error) {
	s.mu.RLock()
	t, ok := s.tasks[name]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("supervisor: task %q not found", name)
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status, nil
}
