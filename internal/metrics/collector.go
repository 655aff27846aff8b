// Package metrics collects device operation metrics and exposes them over
// an optional Prometheus endpoint. Collection is always cheap; the HTTP
// endpoint only starts when the configuration enables it.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config represents metrics configuration.
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// Collector tracks device operation counts, durations and failures per
// backend and operation. A nil or disabled Collector is safe to use; all
// recording methods become no-ops.
type Collector struct {
	mu       sync.Mutex
	config   *Config
	registry *prometheus.Registry

	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	transferBytes     *prometheus.CounterVec
	errorCounter      *prometheus.CounterVec

	server *http.Server
}

// NewCollector creates a metrics collector. A nil config yields a disabled
// collector.
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = &Config{}
	}
	c := &Collector{config: config}
	if !config.Enabled {
		return c, nil
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}
	if config.Namespace == "" {
		config.Namespace = "zbc"
	}

	c.registry = prometheus.NewRegistry()
	c.operationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: config.Namespace,
		Name:      "operations_total",
		Help:      "Total device operations by backend and operation.",
	}, []string{"backend", "operation"})
	c.operationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: config.Namespace,
		Name:      "operation_duration_seconds",
		Help:      "Device operation latency by backend and operation.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"backend", "operation"})
	c.transferBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: config.Namespace,
		Name:      "transfer_bytes_total",
		Help:      "Bytes transferred by backend and direction.",
	}, []string{"backend", "direction"})
	c.errorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: config.Namespace,
		Name:      "errors_total",
		Help:      "Failed device operations by backend, operation and error class.",
	}, []string{"backend", "operation", "code"})

	for _, col := range []prometheus.Collector{
		c.operationCounter, c.operationDuration, c.transferBytes, c.errorCounter,
	} {
		if err := c.registry.Register(col); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return c, nil
}

// Enabled reports whether the collector records anything.
func (c *Collector) Enabled() bool {
	return c != nil && c.config.Enabled
}

// RecordOperation records one completed device operation.
func (c *Collector) RecordOperation(backend, operation string, duration time.Duration) {
	if !c.Enabled() {
		return
	}
	c.operationCounter.WithLabelValues(backend, operation).Inc()
	c.operationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordTransfer records bytes moved by a read or write.
func (c *Collector) RecordTransfer(backend, direction string, bytes int) {
	if !c.Enabled() {
		return
	}
	c.transferBytes.WithLabelValues(backend, direction).Add(float64(bytes))
}

// RecordError records one failed device operation.
func (c *Collector) RecordError(backend, operation, code string) {
	if !c.Enabled() {
		return
	}
	c.errorCounter.WithLabelValues(backend, operation, code).Inc()
}

// Start serves the metrics endpoint until the context is cancelled or Stop
// is called. It returns immediately for a disabled collector.
func (c *Collector) Start(ctx context.Context) error {
	if !c.Enabled() || c.config.Port == 0 {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	c.mu.Lock()
	c.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", c.config.Port),
		Handler: mux,
	}
	srv := c.server
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server failed: %w", err)
	}
	return nil
}

// Stop shuts down the metrics endpoint if one is running.
func (c *Collector) Stop() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	srv := c.server
	c.server = nil
	c.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// Registry exposes the backing registry for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
