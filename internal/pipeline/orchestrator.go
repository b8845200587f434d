package pipeline

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"transit-ingest/internal/record"
)

// AckPolicy decides when a buffered message is settled with the channel.
type AckPolicy string

const (
	// AckOnBuffer acknowledges at append time. Throughput-friendly; a crash
	// between ack and commit loses the batch, which the loader's idempotent
	// persistence compensates for on redelivery of other copies.
	AckOnBuffer AckPolicy = "buffer"
	// AckOnPersist defers ack until the batch's load succeeds and naks the
	// whole batch on a sink failure so the channel redelivers it.
	AckOnPersist AckPolicy = "persist"
)

// State of the orchestrator lifecycle.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Subscription is the slice of the queue client the orchestrator needs to
// cancel delivery when draining.
type Subscription interface {
	Unsubscribe() error
}

// Metrics is the optional adapter to the process metrics collector.
type Metrics interface {
	ReceivedInc()
	AcceptedAdd(n int)
	LoadedAdd(n int)
	SkippedAdd(n int)
	BatchObserve(d time.Duration)
	BufferSize(n int)
}

// Stats are the process-wide pipeline counters reported at shutdown.
type Stats struct {
	Received int64
	Accepted int64
	Rejected int64
	Loaded   int64
	Skipped  int64
	Batches  int64
}

// Orchestrator wires the delivery callback to the accumulator and owns the
// periodic flush loop and the lifecycle. Two activity sources converge on
// the accumulator: per-message callbacks (push) and the tick loop (pull).
// All flush triggers route through the same drain+process path.
type Orchestrator struct {
	acc           *Accumulator
	proc          Processor
	batchSize     int
	flushInterval time.Duration
	idleTimeout   time.Duration
	ackPolicy     AckPolicy
	metrics       Metrics

	state atomic.Int32
	sub   Subscription
	start time.Time

	// procMu serializes batch processing: the processors carry per-trip
	// state (speed history, first-seen summaries) and a size-triggered
	// flush inside a delivery callback can race the tick loop's flush.
	procMu sync.Mutex

	statsMu sync.Mutex
	stats   Stats
}

func NewOrchestrator(proc Processor, batchSize int, flushInterval, idleTimeout time.Duration, policy AckPolicy, m Metrics) *Orchestrator {
	return &Orchestrator{
		acc:           NewAccumulator(),
		proc:          proc,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		idleTimeout:   idleTimeout,
		ackPolicy:     policy,
		metrics:       m,
	}
}

// Bind hands the live subscription to the orchestrator and marks the
// pipeline running. Called once the delivery callback is registered.
func (o *Orchestrator) Bind(sub Subscription) {
	o.sub = sub
	o.state.Store(int32(StateRunning))
}

func (o *Orchestrator) State() State { return State(o.state.Load()) }

// HandleMessage is the delivery callback: buffer, settle per policy, and
// flush when the size threshold is reached. Safe for concurrent delivery.
func (o *Orchestrator) HandleMessage(rec record.Raw, ack, nak func() error) {
	e := Entry{Record: rec}
	switch o.ackPolicy {
	case AckOnPersist:
		e.Ack, e.Nak = ack, nak
	default:
		if ack != nil {
			if err := ack(); err != nil {
				log.Printf("ack error: %v", err)
			}
		}
	}

	n := o.acc.Append(e)
	if o.metrics != nil {
		o.metrics.ReceivedInc()
		o.metrics.BufferSize(n)
	}
	o.statsMu.Lock()
	o.stats.Received++
	o.statsMu.Unlock()

	if n >= o.batchSize {
		o.flush(context.Background())
	}
}

// Run drives the periodic flush loop until the context is cancelled or the
// idle timeout elapses, then drains and stops. Returns the final counters.
func (o *Orchestrator) Run(ctx context.Context) Stats {
	o.start = time.Now()
	ticker := time.NewTicker(o.flushInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			log.Printf("shutdown signal received, draining")
			break loop
		case <-ticker.C:
			o.flush(ctx)
			if o.idleTimeout > 0 && time.Since(o.acc.LastActivity()) > o.idleTimeout {
				log.Printf("no messages for %s, draining", o.idleTimeout)
				break loop
			}
		}
	}

	o.state.Store(int32(StateDraining))
	if o.sub != nil {
		if err := o.sub.Unsubscribe(); err != nil {
			log.Printf("unsubscribe error: %v", err)
		}
	}
	// one final drain for anything buffered while we were deciding to stop
	o.flush(context.Background())
	o.state.Store(int32(StateStopped))

	stats := o.Stats()
	log.Printf("pipeline summary: received=%d accepted=%d rejected=%d loaded=%d skipped=%d batches=%d runtime=%s",
		stats.Received, stats.Accepted, stats.Rejected, stats.Loaded, stats.Skipped, stats.Batches,
		time.Since(o.start).Round(time.Millisecond))
	return stats
}

// flush drains the buffer and processes the batch outside the accumulator
// lock so slow sink writes never block message delivery. Flushes themselves
// run one at a time under procMu: concurrent triggers still get disjoint
// batches from Drain, and serializing Process keeps batch order and the
// processors' cross-batch state sound.
func (o *Orchestrator) flush(ctx context.Context) {
	o.procMu.Lock()
	defer o.procMu.Unlock()

	batch := o.acc.Drain()
	if o.metrics != nil {
		o.metrics.BufferSize(0)
	}
	if len(batch) == 0 {
		return
	}

	recs := make([]record.Raw, len(batch))
	for i, e := range batch {
		recs[i] = e.Record
	}

	started := time.Now()
	res, err := o.proc.Process(ctx, recs)
	if err != nil {
		// sink failure: the batch is lost from the sink's perspective; the
		// run continues with subsequent batches
		log.Printf("batch of %d failed: %v", len(batch), err)
	} else {
		log.Printf("processed batch of %d records (accepted=%d loaded=%d skipped=%d)",
			len(batch), res.Accepted, res.Loaded, res.Skipped)
	}
	o.settle(batch, err)

	o.statsMu.Lock()
	o.stats.Accepted += int64(res.Accepted)
	o.stats.Rejected += int64(res.Rejected)
	o.stats.Loaded += int64(res.Loaded)
	o.stats.Skipped += int64(res.Skipped)
	o.stats.Batches++
	o.statsMu.Unlock()

	if o.metrics != nil {
		o.metrics.AcceptedAdd(res.Accepted)
		o.metrics.LoadedAdd(res.Loaded)
		o.metrics.SkippedAdd(res.Skipped)
		o.metrics.BatchObserve(time.Since(started))
	}
}

// settle acks or naks deferred messages once the batch's fate is known.
// Entries without callbacks were settled at buffering time.
func (o *Orchestrator) settle(batch []Entry, procErr error) {
	for _, e := range batch {
		switch {
		case procErr == nil && e.Ack != nil:
			if err := e.Ack(); err != nil {
				log.Printf("ack error: %v", err)
			}
		case procErr != nil && e.Nak != nil:
			if err := e.Nak(); err != nil {
				log.Printf("nak error: %v", err)
			}
		}
	}
}

// Stats returns a snapshot of the pipeline counters.
func (o *Orchestrator) Stats() Stats {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	return o.stats
}
