package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fxbridge/mlclient/internal/logx"
)

var (
	connectedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mlclient_connected",
		Help: "Whether the client holds a live connection to the server (1 or 0)",
	})
	knownModelsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mlclient_known_models",
		Help: "Number of models advertised by the server at the last capability exchange",
	})
	exchangesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mlclient_exchanges_total",
		Help: "Protocol exchanges by kind and outcome",
	}, []string{"kind", "outcome"})
	exchangeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mlclient_exchange_duration_seconds",
		Help:    "Duration of protocol exchanges",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	bytesSentCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mlclient_bytes_sent_total",
		Help: "Total bytes written to the server",
	})
	bytesReceivedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mlclient_bytes_received_total",
		Help: "Total bytes read from the server",
	})
	cachedServes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mlclient_cached_result_serves_total",
		Help: "Renders satisfied from the cached inference result",
	})
)

func SetConnected(v bool) {
	if v {
		connectedGauge.Set(1)
	} else {
		connectedGauge.Set(0)
	}
}

func SetKnownModels(n int) { knownModelsGauge.Set(float64(n)) }

// ObserveExchange records one request/response exchange. kind is "info" or
// "inference"; outcome is "ok" or "error".
func ObserveExchange(kind, outcome string, d time.Duration) {
	exchangesTotal.WithLabelValues(kind, outcome).Inc()
	exchangeDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func AddBytesSent(n int)     { bytesSentCounter.Add(float64(n)) }
func AddBytesReceived(n int) { bytesReceivedCounter.Add(float64(n)) }
func RecordCachedServe()     { cachedServes.Inc() }

// StartMetricsServer starts an HTTP server exposing Prometheus metrics on
// /metrics. It returns the address it is listening on.
func StartMetricsServer(ctx context.Context, addr string) (string, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		connectedGauge,
		knownModelsGauge,
		exchangesTotal,
		exchangeDuration,
		bytesSentCounter,
		bytesReceivedCounter,
		cachedServes,
	)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Handler: mux}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	actual := ln.Addr().String()
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logx.Log.Error().Err(err).Str("addr", actual).Msg("metrics server error")
		}
	}()
	return actual, nil
}
