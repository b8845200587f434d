package store

import (
	"context"
	"log"
	"sync"

	"transit-ingest/internal/record"
)

// LoadResult reports what one batch load actually wrote.
type LoadResult struct {
	Positions int // breadcrumb rows written
	Trips     int // new trip rows written
	Skipped   int // trip rows dropped as already loaded this run
}

// Loader deduplicates trip metadata against the ids already persisted this
// run and delegates the actual write to a Writer. A trip id lands in the
// sink at most logically once even when the channel redelivers its
// originating message; this is the compensating mechanism for acking before
// the durable write.
type Loader struct {
	writer Writer

	mu     sync.Mutex
	loaded map[int64]struct{}
}

func NewLoader(w Writer) *Loader {
	return &Loader{writer: w, loaded: make(map[int64]struct{})}
}

// Load filters already-loaded trips, bulk-writes the remainder with the
// positions in one transaction, and records the new trip ids only after the
// commit succeeds.
func (l *Loader) Load(ctx context.Context, positions []record.PositionSample, trips []record.TripMetadata) (LoadResult, error) {
	var res LoadResult
	fresh := make([]record.TripMetadata, 0, len(trips))
	l.mu.Lock()
	for _, t := range trips {
		if _, seen := l.loaded[t.TripID]; seen {
			res.Skipped++
			continue
		}
		fresh = append(fresh, t)
	}
	l.mu.Unlock()

	if len(fresh) == 0 && len(positions) == 0 {
		return res, nil
	}

	if err := l.writer.WriteBatch(ctx, positions, fresh); err != nil {
		log.Printf("sink error: %v", err)
		return res, err
	}

	l.mu.Lock()
	for _, t := range fresh {
		l.loaded[t.TripID] = struct{}{}
	}
	l.mu.Unlock()
	res.Positions = len(positions)
	res.Trips = len(fresh)
	return res, nil
}

// LoadedTrips reports how many distinct trip ids have been persisted.
func (l *Loader) LoadedTrips() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.loaded)
}
