// Package metrics exposes Prometheus gauges/counters/histograms for the
// ingestion engine, grouped by concern: gap detection, trade/candle
// pipeline throughput, IPC latency, and per-worker health.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics groups every counter/histogram/gauge this engine exposes.
type Metrics struct {
	// Gap detection
	GapsDetected   *prometheus.CounterVec
	GapSizes       *prometheus.HistogramVec
	GapQueueSize   *prometheus.GaugeVec
	GapDropped     *prometheus.CounterVec
	GapFailed      *prometheus.CounterVec

	// Trade processing pipeline
	TradesProcessed   *prometheus.CounterVec
	TradesSkipped     *prometheus.CounterVec
	CandlesCompleted  *prometheus.CounterVec
	ProcessingLatency *prometheus.HistogramVec

	// IPC transport
	IPCRequestLatency *prometheus.HistogramVec
	IPCErrors         *prometheus.CounterVec

	// Worker pool health
	WorkerState      *prometheus.GaugeVec
	WorkerErrorCount *prometheus.CounterVec

	server *http.Server
	logger *zap.Logger
}

// New builds and registers every metric against the default registry.
func New(logger *zap.Logger) *Metrics {
	m := &Metrics{
		logger: logger.Named("metrics"),

		GapsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "footprintd_gaps_detected_total",
			Help: "Total number of trade-id gaps detected",
		}, []string{"exchange", "symbol"}),

		GapSizes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "footprintd_gap_sizes",
			Help:    "Distribution of detected gap sizes",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"exchange", "symbol"}),

		GapQueueSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "footprintd_gap_queue_size",
			Help: "Current size of the gap writer's pending/retry queues",
		}, []string{"queue"}),

		GapDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "footprintd_gap_dropped_total",
			Help: "Gap records dropped due to queue overflow",
		}, []string{"queue"}),

		GapFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "footprintd_gap_failed_total",
			Help: "Gap batches that exhausted all retries",
		}, nil),

		TradesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "footprintd_trades_processed_total",
			Help: "Total trades applied by the per-symbol processor",
		}, []string{"exchange", "symbol"}),

		TradesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "footprintd_trades_skipped_total",
			Help: "Trades skipped as duplicate or out-of-order",
		}, []string{"exchange", "symbol", "reason"}),

		CandlesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "footprintd_candles_completed_total",
			Help: "Total candles transitioned to complete",
		}, []string{"exchange", "symbol", "timeframe"}),

		ProcessingLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "footprintd_trade_processing_latency_seconds",
			Help:    "Per-trade processing latency",
			Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}, []string{"worker"}),

		IPCRequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "footprintd_ipc_request_latency_seconds",
			Help:    "IPC request/response round-trip latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"type"}),

		IPCErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "footprintd_ipc_errors_total",
			Help: "IPC request failures by kind",
		}, []string{"kind"}),

		WorkerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "footprintd_worker_state",
			Help: "Worker lifecycle state (1=current state, label carries the state name)",
		}, []string{"worker", "state"}),

		WorkerErrorCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "footprintd_worker_errors_total",
			Help: "Errors encountered by a worker",
		}, []string{"worker"}),
	}

	prometheus.MustRegister(
		m.GapsDetected, m.GapSizes, m.GapQueueSize, m.GapDropped, m.GapFailed,
		m.TradesProcessed, m.TradesSkipped, m.CandlesCompleted, m.ProcessingLatency,
		m.IPCRequestLatency, m.IPCErrors,
		m.WorkerState, m.WorkerErrorCount,
	)
	return m
}

// Start serves /metrics and /health on addr.
func (m *Metrics) Start(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	m.server = &http.Server{Addr: addr, Handler: mux}

	m.logger.Info("starting metrics server", zap.String("addr", addr))
	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("metrics server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the metrics HTTP server down.
func (m *Metrics) Stop() error {
	if m.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.server.Shutdown(ctx)
}

func (m *Metrics) RecordGap(exchange, symbol string, gapSize int64) {
	m.GapsDetected.WithLabelValues(exchange, symbol).Inc()
	m.GapSizes.WithLabelValues(exchange, symbol).Observe(float64(gapSize))
}

func (m *Metrics) RecordTradeProcessed(exchange, symbol string) {
	m.TradesProcessed.WithLabelValues(exchange, symbol).Inc()
}

func (m *Metrics) RecordTradeSkipped(exchange, symbol, reason string) {
	m.TradesSkipped.WithLabelValues(exchange, symbol, reason).Inc()
}

func (m *Metrics) RecordCandleCompleted(exchange, symbol, timeframe string) {
	m.CandlesCompleted.WithLabelValues(exchange, symbol, timeframe).Inc()
}

func (m *Metrics) RecordProcessingLatency(workerID string, d time.Duration) {
	m.ProcessingLatency.WithLabelValues(workerID).Observe(d.Seconds())
}

func (m *Metrics) RecordIPCLatency(msgType string, d time.Duration) {
	m.IPCRequestLatency.WithLabelValues(msgType).Observe(d.Seconds())
}

func (m *Metrics) RecordIPCError(kind string) {
	m.IPCErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetWorkerState(workerID, state string) {
	m.WorkerState.WithLabelValues(workerID, state).Set(1)
}

func (m *Metrics) RecordWorkerError(workerID string) {
	m.WorkerErrorCount.WithLabelValues(workerID).Inc()
}

// SetGapQueueSizes mirrors the gap writer's {queueSize, retryQueueSize}
// snapshot onto the two gauge label values.
func (m *Metrics) SetGapQueueSizes(pending, retry int) {
	m.GapQueueSize.WithLabelValues("pending").Set(float64(pending))
	m.GapQueueSize.WithLabelValues("retry").Set(float64(retry))
}
