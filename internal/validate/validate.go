package validate

import (
	"fmt"
	"log"
	"math"
	"sync"

	"transit-ingest/internal/record"
)

// Category tags a rejection so operators can see which rule fired.
type Category string

const (
	CategoryRequired  Category = "required"
	CategoryGPS       Category = "GPS"
	CategorySpeed     Category = "speed"
	CategoryVehicle   Category = "vehicle"
	CategoryJump      Category = "jump"
	CategoryTime      Category = "time"
	CategoryDuplicate Category = "duplicate"
)

// Outcome is the result of running a record through the check chain.
// Expected rejections are values, not errors.
type Outcome struct {
	OK       bool
	Category Category
	Reason   string
}

func accept() Outcome { return Outcome{OK: true} }

func reject(cat Category, format string, args ...any) Outcome {
	return Outcome{Category: cat, Reason: fmt.Sprintf(format, args...)}
}

// Scope controls how long duplicate keys are remembered. The breadcrumb
// feed historically deduplicates across the whole run, the stop-event feed
// per batch.
type Scope string

const (
	ScopeRun   Scope = "run"
	ScopeBatch Scope = "batch"
)

// Metrics is the optional sink for per-category rejection counts.
type Metrics interface {
	RejectionInc(category string)
}

// Portland-area geofence and physical plausibility bounds.
const (
	minLatitude  = 45.2
	maxLatitude  = 45.7
	minLongitude = -124.0
	maxLongitude = -122.0
	maxSpeedMps  = 45.0      // ~100 mph, max plausible bus speed
	maxOdometerM = 1_000_000 // 1,000 km
	maxJumpKm    = 5.0
)

// Point is a previously accepted position, supplied by the caller when it
// tracks per-trip history. The jump check only runs when one is given.
type Point struct {
	Lat float64
	Lon float64
}

type breadcrumbKey struct {
	vehicle int64
	trip    int64
	stop    int64
	actTime float64
	meters  float64
}

// Breadcrumb validates GPS breadcrumb records. It is stateful only for the
// duplicate-detection set; every other check is pure.
type Breadcrumb struct {
	scope   Scope
	metrics Metrics

	mu   sync.Mutex
	seen map[breadcrumbKey]struct{}
}

func NewBreadcrumb(scope Scope, m Metrics) *Breadcrumb {
	return &Breadcrumb{
		scope:   scope,
		metrics: m,
		seen:    make(map[breadcrumbKey]struct{}),
	}
}

// ResetBatch clears the duplicate set when deduplication is scoped to a
// single batch. A no-op under run scope.
func (v *Breadcrumb) ResetBatch() {
	if v.scope != ScopeBatch {
		return
	}
	v.mu.Lock()
	v.seen = make(map[breadcrumbKey]struct{})
	v.mu.Unlock()
}

// Validate runs the check chain in fixed order, short-circuiting on the
// first failure. Later checks assume earlier ones passed. prior may be nil.
func (v *Breadcrumb) Validate(rec record.Raw, prior *Point) Outcome {
	checks := []func() Outcome{
		func() Outcome { return v.checkRequired(rec) },
		func() Outcome { return v.checkGeofence(rec) },
		func() Outcome { return v.checkSpeed(rec) },
		func() Outcome { return v.checkVehicle(rec) },
		func() Outcome { return v.checkJump(rec, prior) },
		func() Outcome { return v.checkTemporal(rec) },
		func() Outcome { return v.checkDuplicate(rec) },
	}
	for _, check := range checks {
		if out := check(); !out.OK {
			v.warn(rec, out)
			return out
		}
	}
	return accept()
}

func (v *Breadcrumb) warn(rec record.Raw, out Outcome) {
	trip, _ := rec.Int(record.FieldTrip)
	log.Printf("validation failed [%s] trip %d: %s", out.Category, trip, out.Reason)
	if v.metrics != nil {
		v.metrics.RejectionInc(string(out.Category))
	}
}

type fieldKind int

const (
	kindInt fieldKind = iota
	kindNumber
	kindString
)

var requiredFields = []struct {
	name string
	kind fieldKind
}{
	{record.FieldTrip, kindInt},
	{record.FieldOpDate, kindString},
	{record.FieldActTime, kindNumber},
	{record.FieldVehicle, kindInt},
	{record.FieldLatitude, kindNumber},
	{record.FieldLongitude, kindNumber},
	{record.FieldMeters, kindNumber},
}

func (v *Breadcrumb) checkRequired(rec record.Raw) Outcome {
	for _, f := range requiredFields {
		if !rec.Has(f.name) {
			return reject(CategoryRequired, "missing field: %s", f.name)
		}
		var ok bool
		switch f.kind {
		case kindInt:
			_, ok = rec.Int(f.name)
		case kindNumber:
			_, ok = rec.Float(f.name)
		case kindString:
			_, ok = rec.String(f.name)
		}
		if !ok {
			return reject(CategoryRequired, "field %s has wrong type (%T)", f.name, rec[f.name])
		}
	}
	return accept()
}

func (v *Breadcrumb) checkGeofence(rec record.Raw) Outcome {
	lat, _ := rec.Float(record.FieldLatitude)
	lon, _ := rec.Float(record.FieldLongitude)
	if lat < minLatitude || lat > maxLatitude {
		return reject(CategoryGPS, "latitude %.6f outside service area (%.1f..%.1f)", lat, minLatitude, maxLatitude)
	}
	if lon < minLongitude || lon > maxLongitude {
		return reject(CategoryGPS, "longitude %.6f outside service area (%.1f..%.1f)", lon, minLongitude, maxLongitude)
	}
	// Near-zero coordinates are device defaults leaking through, even if a
	// bound above would technically admit them.
	if math.Abs(lat) < 1 || math.Abs(lon) < 1 {
		return reject(CategoryGPS, "suspicious coordinates (%.6f, %.6f)", lat, lon)
	}
	return accept()
}

func (v *Breadcrumb) checkSpeed(rec record.Raw) Outcome {
	if !rec.Has(record.FieldSpeed) {
		return accept()
	}
	speed, ok := rec.Float(record.FieldSpeed)
	if !ok {
		return reject(CategorySpeed, "field %s is not numeric", record.FieldSpeed)
	}
	if speed < 0 {
		return reject(CategorySpeed, "negative speed %.2f m/s", speed)
	}
	if speed > maxSpeedMps {
		return reject(CategorySpeed, "implausible speed %.2f m/s", speed)
	}
	return accept()
}

func (v *Breadcrumb) checkVehicle(rec record.Raw) Outcome {
	vid, _ := rec.Int(record.FieldVehicle)
	if vid <= 0 {
		return reject(CategoryVehicle, "vehicle id %d must be positive", vid)
	}
	meters, _ := rec.Float(record.FieldMeters)
	if meters < 0 {
		return reject(CategoryVehicle, "negative odometer reading %.1f m", meters)
	}
	if meters > maxOdometerM {
		return reject(CategoryVehicle, "odometer reading %.1f m exceeds %d m", meters, maxOdometerM)
	}
	return accept()
}

func (v *Breadcrumb) checkJump(rec record.Raw, prior *Point) Outcome {
	if prior == nil {
		return accept()
	}
	lat, _ := rec.Float(record.FieldLatitude)
	lon, _ := rec.Float(record.FieldLongitude)
	km := haversineMeters(prior.Lat, prior.Lon, lat, lon) / 1000
	if km > maxJumpKm {
		return reject(CategoryJump, "unrealistic location jump: %.2f km", km)
	}
	return accept()
}

func (v *Breadcrumb) checkTemporal(rec record.Raw) Outcome {
	actTime, _ := rec.Float(record.FieldActTime)
	if actTime < 0 {
		return reject(CategoryTime, "negative %s: %.0f", record.FieldActTime, actTime)
	}
	return accept()
}

func (v *Breadcrumb) checkDuplicate(rec record.Raw) Outcome {
	vid, _ := rec.Int(record.FieldVehicle)
	trip, _ := rec.Int(record.FieldTrip)
	stop, _ := rec.Int(record.FieldStop)
	actTime, _ := rec.Float(record.FieldActTime)
	meters, _ := rec.Float(record.FieldMeters)
	key := breadcrumbKey{vehicle: vid, trip: trip, stop: stop, actTime: actTime, meters: meters}

	v.mu.Lock()
	defer v.mu.Unlock()
	if _, dup := v.seen[key]; dup {
		return reject(CategoryDuplicate, "duplicate record: vehicle %d trip %d stop %d time %.0f odometer %.0f",
			vid, trip, stop, actTime, meters)
	}
	v.seen[key] = struct{}{}
	return accept()
}

func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
