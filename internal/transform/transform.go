package transform

import (
	"sort"

	"transit-ingest/internal/record"
	"transit-ingest/internal/validate"
)

// PositionTransformer converts raw breadcrumb batches into ordered, speed-
// annotated position samples. It keeps the last accepted point per trip so
// the validator's geographic-jump check has a reference across batches.
type PositionTransformer struct {
	validator  *validate.Breadcrumb
	lastByTrip map[int64]validate.Point
}

func NewPositionTransformer(v *validate.Breadcrumb) *PositionTransformer {
	return &PositionTransformer{
		validator:  v,
		lastByTrip: make(map[int64]validate.Point),
	}
}

// Transform validates and converts a drained batch. Records that fail
// validation or whose timestamp cannot be constructed are dropped without
// aborting the batch. Output is trip-major, timestamp-minor.
func (t *PositionTransformer) Transform(batch []record.Raw) []record.PositionSample {
	t.validator.ResetBatch()

	samples := make([]record.PositionSample, 0, len(batch))
	for _, rec := range batch {
		var prior *validate.Point
		if trip, ok := rec.Int(record.FieldTrip); ok {
			if p, seen := t.lastByTrip[trip]; seen {
				prior = &p
			}
		}
		if out := t.validator.Validate(rec, prior); !out.OK {
			continue
		}
		ts, err := rec.EventTime()
		if err != nil {
			// construction failure drops the record, not the batch
			continue
		}
		trip, _ := rec.Int(record.FieldTrip)
		lat, _ := rec.Float(record.FieldLatitude)
		lon, _ := rec.Float(record.FieldLongitude)
		meters, _ := rec.Float(record.FieldMeters)
		samples = append(samples, record.PositionSample{
			Timestamp: ts,
			Latitude:  lat,
			Longitude: lon,
			TripID:    trip,
			Meters:    meters,
		})
		t.lastByTrip[trip] = validate.Point{Lat: lat, Lon: lon}
	}

	sort.SliceStable(samples, func(i, j int) bool {
		if samples[i].TripID != samples[j].TripID {
			return samples[i].TripID < samples[j].TripID
		}
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})

	deriveSpeeds(samples)
	return samples
}

// deriveSpeeds computes odometer/time deltas within each trip group and
// forward-fills gaps. The first sample of a trip has no speed; a zero or
// negative time delta yields nil, which the fill then covers. Fill is
// forward-only: nothing propagates back to the head of a trip.
func deriveSpeeds(samples []record.PositionSample) {
	var (
		currentTrip int64
		havePrev    bool
		prev        record.PositionSample
		lastSpeed   *float64
	)
	for i := range samples {
		s := &samples[i]
		if !havePrev || s.TripID != currentTrip {
			currentTrip = s.TripID
			havePrev = true
			lastSpeed = nil
			prev = *s
			continue
		}
		dt := s.Timestamp.Sub(prev.Timestamp).Seconds()
		if dt > 0 {
			v := (s.Meters - prev.Meters) / dt
			s.Speed = &v
			lastSpeed = &v
		} else {
			s.Speed = lastSpeed
		}
		prev = *s
	}
}
