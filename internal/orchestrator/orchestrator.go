// Package orchestrator wires every component into one process: ordered
// startup (persistence server -> worker pool -> readiness barrier ->
// ingestion), and reverse-order bounded shutdown.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"footprintd/internal/config"
	"footprintd/internal/events"
	"footprintd/internal/gapwriter"
	"footprintd/internal/ipc"
	"footprintd/internal/metrics"
	"footprintd/internal/persistence"
	"footprintd/internal/router"
	"footprintd/internal/tradesource"
	"footprintd/internal/worker"
	redisclient "footprintd/pkg/redis"
)

// App owns every long-lived component for one footprintd process.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	store       *persistence.Store
	ipcServer   *ipc.Server
	persistSrv  *persistence.Server
	ipcClient   *ipc.Client
	remote      *persistence.RemoteClient
	redisClient *redisclient.Client
	sink        *redisclient.CandleSink
	metrics     *metrics.Metrics
	pool        *router.Pool
	hub         *tradesource.Hub

	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs an App from configuration. Call Run to start it.
func New(cfg *config.Config, logger *zap.Logger) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{cfg: cfg, logger: logger, ctx: ctx, cancel: cancel}
}

// Run performs ordered startup, blocks until ctx is cancelled, then
// performs reverse-order bounded shutdown.
func (a *App) Run(ctx context.Context) error {
	if err := a.startPersistence(); err != nil {
		return fmt.Errorf("orchestrator: persistence startup: %w", err)
	}
	if err := a.startRedis(); err != nil {
		a.logger.Warn("redis sink unavailable, completed candles will not be published", zap.Error(err))
	}
	if a.cfg.Monitoring.Enabled {
		a.metrics = metrics.New(a.logger)
		if err := a.metrics.Start(a.cfg.Monitoring.ListenAddr); err != nil {
			a.logger.Warn("metrics server failed to start", zap.Error(err))
		}
	}
	if err := a.startIPCClient(); err != nil {
		return fmt.Errorf("orchestrator: ipc client: %w", err)
	}
	if err := a.startPool(); err != nil {
		return fmt.Errorf("orchestrator: pool startup: %w", err)
	}
	a.startIngestion()

	a.logger.Info("footprintd started",
		zap.Int("workers", a.cfg.Pool.WorkerCount),
		zap.Int("symbols", len(a.cfg.Symbols)),
	)

	<-ctx.Done()
	return a.shutdown()
}

func (a *App) startPersistence() error {
	store, err := persistence.Open(a.cfg.Persistence.DSN, a.logger)
	if err != nil {
		return err
	}
	a.store = store

	a.ipcServer = ipc.NewServer(a.cfg.IPC.SocketPath, a.cfg.IPC.MaxConnections, a.logger)

	pollInterval := time.Duration(a.cfg.Persistence.QueuePollIntervalMs) * time.Millisecond
	retention := time.Duration(a.cfg.Persistence.RetentionHours) * time.Hour
	router := func(row persistence.QueueRow) error {
		a.logger.Debug("replaying queued message", zap.String("type", row.Type), zap.Int64("id", row.ID))
		return nil
	}
	a.persistSrv = persistence.NewServer(a.store, a.ipcServer, router, pollInterval, retention, a.logger)

	go func() {
		if err := a.ipcServer.Serve(); err != nil {
			a.logger.Error("ipc server stopped", zap.Error(err))
		}
	}()
	go a.persistSrv.RunPoller(a.ctx)
	return nil
}

func (a *App) startRedis() error {
	if !a.cfg.Redis.Enabled {
		return nil
	}
	client, err := redisclient.NewClient(redisclient.ClientConfig{
		Addr: fmt.Sprintf("%s:%d", a.cfg.Redis.Host, a.cfg.Redis.Port),
		DB:   a.cfg.Redis.Database,
	}, a.logger)
	if err != nil {
		return err
	}
	a.redisClient = client
	a.sink = redisclient.NewCandleSink(client, a.logger)
	return nil
}

func (a *App) startIPCClient() error {
	clientCfg := ipc.ClientConfig{
		SocketPath:     a.cfg.IPC.SocketPath,
		ConnectTimeout: time.Duration(a.cfg.IPC.ConnectTimeoutMs) * time.Millisecond,
		RequestTimeout: time.Duration(a.cfg.IPC.RequestTimeoutMs) * time.Millisecond,
		MaxRetries:     a.cfg.IPC.MaxRetries,
		BaseRetryDelay: time.Duration(a.cfg.IPC.BaseRetryDelayMs) * time.Millisecond,
		MaxRetryDelay:  time.Duration(a.cfg.IPC.MaxRetryDelayMs) * time.Millisecond,
	}
	client := ipc.NewClient(clientCfg, a.logger)
	if err := client.Connect(a.ctx); err != nil {
		return err
	}
	a.ipcClient = client
	a.remote = persistence.NewRemoteClient(client, a.logger)
	return nil
}

func (a *App) startPool() error {
	gwCfg := gapwriter.Config{
		MaxQueueSize:      a.cfg.GapWriter.MaxQueueSize,
		MaxRetryQueueSize: a.cfg.GapWriter.MaxRetryQueueSize,
		BatchSize:         a.cfg.GapWriter.BatchSize,
		FlushInterval:     time.Duration(a.cfg.GapWriter.FlushIntervalMs) * time.Millisecond,
		RetryInterval:     time.Duration(a.cfg.GapWriter.RetryIntervalMs) * time.Millisecond,
		BatchMaxRetries:   a.cfg.GapWriter.BatchMaxRetries,
		FlushTimeout:      time.Duration(a.cfg.GapWriter.FlushTimeoutMs) * time.Millisecond,
	}
	for _, ms := range a.cfg.GapWriter.BatchRetryDelaysMs {
		gwCfg.BatchRetryDelays = append(gwCfg.BatchRetryDelays, time.Duration(ms)*time.Millisecond)
	}

	// a.sink is a nil *CandleSink when Redis is disabled; assigning that
	// pointer directly would wrap a non-nil interface around a nil pointer,
	// so only wire it in when it actually exists.
	var sink worker.EventSink
	if a.sink != nil {
		sink = a.sink
	}

	workers := make([]*worker.Worker, a.cfg.Pool.WorkerCount)
	for i := range workers {
		gw := gapwriter.New(gwCfg, a.remote.SaveGapBatch, a.logger)
		go gw.Run(a.ctx)
		workers[i] = worker.New(i, worker.NewStorage(), a.remote, gw, sink, a.cfg, a.logger)
	}
	a.pool = router.NewPool(workers, a.logger)

	symbols := make([]string, 0, len(a.cfg.Symbols))
	for _, sc := range a.cfg.Symbols {
		symbols = append(symbols, sc.Exchange+":"+sc.Symbol)
	}
	return a.pool.Start(a.ctx, symbols, a.cfg.Pool.ReadyTimeout())
}

func (a *App) startIngestion() {
	var sources []tradesource.Source
	for _, sc := range a.cfg.Symbols {
		exCfg, _ := a.cfg.GetExchangeConfig(sc.Exchange)
		if !exCfg.Enabled && exCfg.Name != "" {
			continue
		}
		switch sc.Exchange {
		case "binance":
			sources = append(sources, tradesource.NewBinanceSource(sc.Symbol, exCfg.WSURL, a.logger))
		case "bybit":
			sources = append(sources, tradesource.NewBybitSource(sc.Symbol, exCfg.WSURL, a.logger))
		case "okx":
			sources = append(sources, tradesource.NewOKXSource(sc.Symbol, exCfg.WSURL, a.logger))
		default:
			a.logger.Warn("unknown exchange in symbol config, skipping", zap.String("exchange", sc.Exchange), zap.String("symbol", sc.Symbol))
		}
	}

	a.hub = tradesource.NewHub(sources, 65536, a.logger)
	go a.hub.Run(a.ctx)
	go a.routeTrades()
}

func (a *App) routeTrades() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case trade, ok := <-a.hub.Trades():
			if !ok {
				return
			}
			a.pool.RouteTrades([]events.Trade{trade})
		}
	}
}

func (a *App) shutdown() error {
	a.logger.Info("shutting down footprintd")
	a.cancel()

	if a.pool != nil {
		a.pool.Shutdown(context.Background(), a.cfg.Pool.ShutdownFlushTimeout())
	}
	if a.ipcClient != nil {
		a.ipcClient.Close()
	}
	if a.ipcServer != nil {
		a.ipcServer.Close()
	}
	if a.redisClient != nil {
		a.redisClient.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	a.logger.Info("footprintd shutdown complete")
	return nil
}
