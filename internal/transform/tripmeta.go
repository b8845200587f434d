package transform

import (
	"transit-ingest/internal/record"
)

// TripSummaryBuilder accumulates one metadata row per trip over the builder's
// lifetime. The first record seen for a trip id wins; later records for the
// same trip still contribute position samples but never rewrite metadata.
// Growth is bounded by trip-id cardinality per run, the same bound the
// loader's dedup set carries.
type TripSummaryBuilder struct {
	summary map[int64]record.TripMetadata
	order   []int64
}

func NewTripSummaryBuilder() *TripSummaryBuilder {
	return &TripSummaryBuilder{summary: make(map[int64]record.TripMetadata)}
}

// BuildSummary folds a batch into the running summary and returns every
// trip-metadata row seen so far, in first-seen order. Re-emitting known
// trips is deliberate: the loader's loaded-id set makes the reload a no-op.
func (b *TripSummaryBuilder) BuildSummary(batch []record.Raw) []record.TripMetadata {
	for _, rec := range batch {
		trip, ok := rec.Int(record.FieldTrip)
		if !ok {
			continue
		}
		if _, seen := b.summary[trip]; seen {
			continue
		}
		vehicle, ok := rec.Int(record.FieldVehicle)
		if !ok {
			// records without a vehicle identity never make it into the
			// trip table; the validator drops their positions too
			continue
		}
		route, _ := rec.Int(record.FieldRoute)

		service := record.ServiceWeekday
		if opd, ok := rec.String(record.FieldOpDate); ok {
			if date, err := record.ParseOperatingDate(opd); err == nil {
				service = record.ServiceKeyForDate(date)
			}
		}

		direction := record.DirectionOut
		if code, ok := rec.String(record.FieldDirection); ok && code != "0" {
			direction = record.DirectionBack
		}

		b.summary[trip] = record.TripMetadata{
			TripID:     trip,
			RouteID:    route,
			VehicleID:  vehicle,
			ServiceKey: service,
			Direction:  direction,
		}
		b.order = append(b.order, trip)
	}

	out := make([]record.TripMetadata, 0, len(b.order))
	for _, trip := range b.order {
		out = append(out, b.summary[trip])
	}
	return out
}
