// Package metrics exposes the recorder's Prometheus counters and gauges.
// Scraping them is optional and never required by the core pipeline — the
// recorder works with MetricsAddr empty, logs only.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"adcprecorder/pkg/logger"
)

var (
	FramesIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "recorder",
		Name:      "frames_ingested_total",
		Help:      "Total number of sentences successfully delimited by the frame assembler.",
	})

	ParseErrorsByKind = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recorder",
		Name:      "parse_errors_total",
		Help:      "Total number of sentences rejected, labeled by error kind.",
	}, []string{"kind"})

	RecordsByPrefix = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recorder",
		Name:      "records_total",
		Help:      "Total number of successfully classified and persisted records, labeled by Nortek prefix.",
	}, []string{"prefix"})

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "recorder",
		Name:      "queue_depth",
		Help:      "Current number of chunks buffered between the producer and the consumer.",
	})

	BinaryModeTransitions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "recorder",
		Name:      "binary_mode_transitions_total",
		Help:      "Total number of times the frame assembler entered binary mode.",
	})

	ReconnectAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "recorder",
		Name:      "reconnect_attempts_total",
		Help:      "Total number of serial port reconnect attempts.",
	})

	RespawnCount = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "recorder",
		Name:      "worker_respawns_total",
		Help:      "Total number of times the supervisor respawned a worker after a stale heartbeat.",
	})
)

func init() {
	prometheus.MustRegister(
		FramesIngested,
		ParseErrorsByKind,
		RecordsByPrefix,
		QueueDepth,
		BinaryModeTransitions,
		ReconnectAttempts,
		RespawnCount,
	)
}

// Serve starts an HTTP listener exposing /metrics until ctx is canceled.
// Called only when a metrics_addr is configured; the recorder never
// requires it to be reachable.
func Serve(ctx context.Context, addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	logger.Info("metrics_listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics_server_failed", "error", err)
	}
}
