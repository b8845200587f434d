package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"transit-ingest/internal/config"
	"transit-ingest/internal/metrics"
	"transit-ingest/internal/pipeline"
	"transit-ingest/internal/queue"
	"transit-ingest/internal/store"
	"transit-ingest/internal/transform"
	"transit-ingest/internal/validate"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Sink setup
	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db open error: %v", err)
	}
	defer db.Close()
	if err := store.Ping(ctx, db); err != nil {
		log.Fatalf("db ping error: %v", err)
	}
	if err := store.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("db schema error: %v", err)
	}

	// Metrics setup
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.BatchSize, cfg.IdleTimeout)
		srv := mcol.Serve(cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	loader := store.NewLoader(store.NewPGWriter(db))
	scope := validate.Scope(cfg.DedupScope)

	var proc pipeline.Processor
	switch cfg.Mode {
	case config.ModeStopEvent:
		v := validate.NewStopEvent(scope, wrapValidatorMetrics(mcol))
		proc = pipeline.NewStopEventProcessor(transform.NewStopEventCleaner(v), loader)
	default:
		v := validate.NewBreadcrumb(scope, wrapValidatorMetrics(mcol))
		proc = pipeline.NewBreadcrumbProcessor(
			transform.NewPositionTransformer(v),
			transform.NewTripSummaryBuilder(),
			loader,
		)
	}

	orch := pipeline.NewOrchestrator(proc, cfg.BatchSize, cfg.FlushInterval, cfg.IdleTimeout,
		pipeline.AckPolicy(cfg.AckPolicy), wrapPipelineMetrics(mcol))

	// Queue subscription; the orchestrator is in Starting until this is bound
	qc, err := queue.Connect(cfg.NATSURL, "transit-ingest", wrapQueueMetrics(mcol))
	if err != nil {
		log.Fatalf("nats error: %v", err)
	}
	defer qc.Close()
	if err := qc.EnsureStream(cfg.NATSStreamName, cfg.Subject); err != nil {
		log.Fatalf("nats stream error: %v", err)
	}
	sub, err := qc.Subscribe(cfg.Subject, cfg.Durable, orch.HandleMessage)
	if err != nil {
		log.Fatalf("nats subscribe error: %v", err)
	}
	orch.Bind(sub)
	log.Printf("consuming %s (mode=%s batch=%d idle=%s ack=%s dedup=%s)",
		cfg.Subject, cfg.Mode, cfg.BatchSize, cfg.IdleTimeout, cfg.AckPolicy, cfg.DedupScope)

	// Run until idle timeout or interrupt; Run drains and logs the summary
	orch.Run(ctx)
}

// wrapValidatorMetrics adapts the Collector to the validate.Metrics interface.
func wrapValidatorMetrics(c *metrics.Collector) validate.Metrics {
	if c == nil {
		return nil
	}
	return &valMetrics{c: c}
}

type valMetrics struct{ c *metrics.Collector }

func (m *valMetrics) RejectionInc(category string) {
	m.c.Rejected.WithLabelValues(category).Inc()
}

// wrapPipelineMetrics adapts the Collector to the pipeline.Metrics interface.
func wrapPipelineMetrics(c *metrics.Collector) pipeline.Metrics {
	if c == nil {
		return nil
	}
	return &pipeMetrics{c: c}
}

type pipeMetrics struct{ c *metrics.Collector }

func (m *pipeMetrics) ReceivedInc()      { m.c.Received.Inc() }
func (m *pipeMetrics) AcceptedAdd(n int) { m.c.Accepted.Add(float64(n)) }
func (m *pipeMetrics) LoadedAdd(n int)   { m.c.Loaded.Add(float64(n)) }
func (m *pipeMetrics) SkippedAdd(n int)  { m.c.Skipped.Add(float64(n)) }
func (m *pipeMetrics) BatchObserve(d time.Duration) {
	m.c.BatchDuration.Observe(d.Seconds())
	m.c.Batches.Inc()
}
func (m *pipeMetrics) BufferSize(n int) { m.c.BufferSize.Set(float64(n)) }

// wrapQueueMetrics adapts the Collector to the queue.Metrics interface.
func wrapQueueMetrics(c *metrics.Collector) queue.Metrics {
	if c == nil {
		return nil
	}
	return &qMetrics{c: c}
}

type qMetrics struct{ c *metrics.Collector }

func (m *qMetrics) SetConnected(b bool) {
	if b {
		m.c.NATSConnected.Set(1)
	} else {
		m.c.NATSConnected.Set(0)
	}
}
func (m *qMetrics) DecodeErrInc()  { m.c.DecodeErrs.Inc() }
func (m *qMetrics) PublishedInc()  { m.c.Published.Inc() }
func (m *qMetrics) PublishErrInc() { m.c.PublishErrs.Inc() }
