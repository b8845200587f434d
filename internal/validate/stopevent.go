package validate

import (
	"log"
	"sync"

	"transit-ingest/internal/record"
)

// Stop-event field names. The upstream stop-event feed is scraped from an
// HTML report, so numbers may arrive as strings and are coerced.
const (
	StopFieldTrip       = "trip_id"
	StopFieldRoute      = "route_number"
	StopFieldVehicle    = "vehicle_id"
	StopFieldServiceKey = "service_key"
	StopFieldDirection  = "direction"
)

var stopRequiredFields = []string{
	StopFieldTrip,
	StopFieldRoute,
	StopFieldVehicle,
	StopFieldServiceKey,
	StopFieldDirection,
}

type stopEventKey struct {
	trip    int64
	vehicle int64
}

// StopEvent validates stop-event records. Duplicate keys are (trip_id,
// vehicle_id); the scope is per batch unless configured otherwise.
type StopEvent struct {
	scope   Scope
	metrics Metrics

	mu   sync.Mutex
	seen map[stopEventKey]struct{}
}

func NewStopEvent(scope Scope, m Metrics) *StopEvent {
	return &StopEvent{
		scope:   scope,
		metrics: m,
		seen:    make(map[stopEventKey]struct{}),
	}
}

// ResetBatch clears the duplicate set under batch scope. Called by the
// cleaner at the start of every batch.
func (v *StopEvent) ResetBatch() {
	if v.scope != ScopeBatch {
		return
	}
	v.mu.Lock()
	v.seen = make(map[stopEventKey]struct{})
	v.mu.Unlock()
}

// Validate runs the stop-event check chain: required fields, coercible
// identifiers, then the per-scope duplicate check.
func (v *StopEvent) Validate(rec record.Raw) Outcome {
	for _, f := range stopRequiredFields {
		if !rec.Has(f) {
			out := reject(CategoryRequired, "missing field: %s", f)
			v.warn(rec, out)
			return out
		}
	}

	trip, ok := rec.CoerceInt(StopFieldTrip)
	if !ok || trip <= 0 {
		out := reject(CategoryVehicle, "invalid trip id %v", rec[StopFieldTrip])
		v.warn(rec, out)
		return out
	}
	vid, ok := rec.CoerceInt(StopFieldVehicle)
	if !ok {
		out := reject(CategoryVehicle, "invalid vehicle id %v", rec[StopFieldVehicle])
		v.warn(rec, out)
		return out
	}

	key := stopEventKey{trip: trip, vehicle: vid}
	v.mu.Lock()
	_, dup := v.seen[key]
	if !dup {
		v.seen[key] = struct{}{}
	}
	v.mu.Unlock()
	if dup {
		out := reject(CategoryDuplicate, "duplicate record: trip %d vehicle %d", trip, vid)
		v.warn(rec, out)
		return out
	}
	return accept()
}

func (v *StopEvent) warn(rec record.Raw, out Outcome) {
	trip, _ := rec.CoerceInt(StopFieldTrip)
	log.Printf("validation failed [%s] trip %d: %s", out.Category, trip, out.Reason)
	if v.metrics != nil {
		v.metrics.RejectionInc(string(out.Category))
	}
}
