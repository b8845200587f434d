package pipeline

import (
	"context"

	"transit-ingest/internal/record"
	"transit-ingest/internal/store"
	"transit-ingest/internal/transform"
)

// Result summarizes one processed batch.
type Result struct {
	Accepted int
	Rejected int
	Loaded   int
	Skipped  int
}

// Processor turns one drained batch into sink rows. The orchestrator is
// agnostic to which feed it is running.
type Processor interface {
	Process(ctx context.Context, batch []record.Raw) (Result, error)
}

// BreadcrumbProcessor drives the GPS breadcrumb path: position samples with
// derived speeds plus first-seen trip metadata.
type BreadcrumbProcessor struct {
	transformer *transform.PositionTransformer
	summary     *transform.TripSummaryBuilder
	loader      *store.Loader
}

func NewBreadcrumbProcessor(t *transform.PositionTransformer, s *transform.TripSummaryBuilder, l *store.Loader) *BreadcrumbProcessor {
	return &BreadcrumbProcessor{transformer: t, summary: s, loader: l}
}

func (p *BreadcrumbProcessor) Process(ctx context.Context, batch []record.Raw) (Result, error) {
	samples := p.transformer.Transform(batch)
	trips := p.summary.BuildSummary(batch)

	res := Result{
		Accepted: len(samples),
		Rejected: len(batch) - len(samples),
	}
	if len(samples) == 0 && len(trips) == 0 {
		return res, nil
	}
	lr, err := p.loader.Load(ctx, samples, trips)
	res.Loaded = lr.Positions
	res.Skipped = lr.Skipped
	return res, err
}

// StopEventProcessor drives the stop-event path: trip metadata only.
type StopEventProcessor struct {
	cleaner *transform.StopEventCleaner
	loader  *store.Loader
}

func NewStopEventProcessor(c *transform.StopEventCleaner, l *store.Loader) *StopEventProcessor {
	return &StopEventProcessor{cleaner: c, loader: l}
}

func (p *StopEventProcessor) Process(ctx context.Context, batch []record.Raw) (Result, error) {
	rows, invalid := p.cleaner.Clean(batch)
	res := Result{
		Accepted: len(rows),
		Rejected: invalid,
	}
	if len(rows) == 0 {
		return res, nil
	}
	lr, err := p.loader.Load(ctx, nil, rows)
	res.Loaded = lr.Trips
	res.Skipped = lr.Skipped
	return res, err
}
