package metrics

import (
	"cmp"
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	Queries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restq_queries_total",
			Help: "Total number of executed operations by collection and operation",
		},
		[]string{"collection", "operation"},
	)

	QueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restq_query_errors_total",
			Help: "Total number of failed operations by collection and error kind",
		},
		[]string{"collection", "kind"},
	)

	RowsReturned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restq_rows_returned_total",
			Help: "Total number of rows returned to callers by collection",
		},
		[]string{"collection"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "restq_query_duration_seconds",
			Help:    "Duration of the compile, execute and map pipeline",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collection", "operation"},
	)
)

type PromServerOpts struct {
	Addr              string
	Path              string        // Path for metrics endpoint, defaults to "/metrics"
	ShutdownTimeout   time.Duration // Timeout for server shutdown, defaults to 5 seconds
	ReadHeaderTimeout time.Duration // Timeout for reading request headers, defaults to 3 seconds
}

func defaultPrometheusServerOptions() PromServerOpts {
	return PromServerOpts{
		Addr:              ":9100",
		Path:              "/metrics",
		ShutdownTimeout:   5 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// StartPrometheusServer serves the metrics endpoint until ctx is
// canceled, then shuts the listener down within ShutdownTimeout.
func StartPrometheusServer(ctx context.Context, wg *sync.WaitGroup, opts *PromServerOpts) {
	o := defaultPrometheusServerOptions()
	if opts != nil {
		o.Addr = cmp.Or(opts.Addr, o.Addr)
		o.Path = cmp.Or(opts.Path, o.Path)
		o.ShutdownTimeout = cmp.Or(opts.ShutdownTimeout, o.ShutdownTimeout)
		o.ReadHeaderTimeout = cmp.Or(opts.ReadHeaderTimeout, o.ReadHeaderTimeout)
	}

	mux := http.NewServeMux()
	mux.Handle(o.Path, promhttp.Handler())
	server := &http.Server{
		Addr:              o.Addr,
		Handler:           mux,
		ReadHeaderTimeout: o.ReadHeaderTimeout,
	}

	serverClosed := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		zap.L().Info("metrics server listening", zap.String("addr", o.Addr))
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			zap.L().Error("metrics server failed", zap.Error(err))
		}
		close(serverClosed)
	}()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), o.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			zap.L().Error("metrics server shutdown", zap.Error(err))
		}

		select {
		case <-serverClosed:
			zap.L().Info("metrics server stopped")
		case <-shutdownCtx.Done():
			zap.L().Warn("metrics server shutdown timed out")
		}
	}()
}
