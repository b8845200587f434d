package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	Received prometheus.Counter
	Accepted prometheus.Counter
	Rejected *prometheus.CounterVec // category label: required|GPS|speed|vehicle|jump|time|duplicate
	Loaded   prometheus.Counter
	Skipped  prometheus.Counter
	Batches  prometheus.Counter

	DecodeErrs    prometheus.Counter
	Published     prometheus.Counter
	PublishErrs   prometheus.Counter
	NATSConnected prometheus.Gauge

	BatchDuration prometheus.Histogram
	BufferSize    prometheus.Gauge

	BatchSize   prometheus.Gauge
	IdleTimeout prometheus.Gauge // seconds
}

func NewCollector(batchSize int, idleTimeout time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Received: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_received_total",
			Help: "Total messages buffered from the queue.",
		}),
		Accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_accepted_total",
			Help: "Total records that passed validation.",
		}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_rejected_total",
			Help: "Total records rejected by validation, by category.",
		}, []string{"category"}),
		Loaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_loaded_total",
			Help: "Total rows written to the sink.",
		}),
		Skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_skipped_total",
			Help: "Total trip rows skipped as already loaded.",
		}),
		Batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_batches_total",
			Help: "Total batches processed.",
		}),
		DecodeErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_decode_errors_total",
			Help: "Total messages naked because the payload failed to decode.",
		}),
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_published_total",
			Help: "Total messages published to the queue.",
		}),
		PublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_publish_errors_total",
			Help: "Total publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ingest_nats_connected",
			Help: "1 if the NATS connection is established, 0 otherwise.",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ingest_batch_duration_seconds",
			Help:    "Duration of validate+transform+load for one batch.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		BufferSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ingest_buffer_size",
			Help: "Current number of buffered records.",
		}),
		BatchSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ingest_batch_size",
			Help: "Configured flush threshold.",
		}),
		IdleTimeout: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ingest_idle_timeout_seconds",
			Help: "Configured idle timeout in seconds.",
		}),
	}

	reg.MustRegister(
		c.Received, c.Accepted, c.Rejected, c.Loaded, c.Skipped, c.Batches,
		c.DecodeErrs, c.Published, c.PublishErrs, c.NATSConnected,
		c.BatchDuration, c.BufferSize, c.BatchSize, c.IdleTimeout,
	)

	c.BatchSize.Set(float64(batchSize))
	c.IdleTimeout.Set(idleTimeout.Seconds())

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
