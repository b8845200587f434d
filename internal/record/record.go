package record

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Raw is an untyped record as delivered by the queue. JSON numbers are
// decoded as json.Number so integer fields survive the round trip intact.
type Raw map[string]any

// Breadcrumb field names as emitted by the upstream telemetry feed.
const (
	FieldTrip      = "EVENT_NO_TRIP"
	FieldStop      = "EVENT_NO_STOP"
	FieldOpDate    = "OPD_DATE"
	FieldActTime   = "ACT_TIME"
	FieldVehicle   = "VEHICLE_ID"
	FieldLatitude  = "GPS_LATITUDE"
	FieldLongitude = "GPS_LONGITUDE"
	FieldMeters    = "METERS"
	FieldSpeed     = "SPEED"
	FieldRoute     = "ROUTE_ID"
	FieldDirection = "DIRECTION"
)

// Has reports whether the field is present and non-nil.
func (r Raw) Has(key string) bool {
	v, ok := r[key]
	return ok && v != nil
}

// Int returns the field as an integer. Floats are accepted only when they
// carry an integral value; strings are not coerced here.
func (r Raw) Int(key string) (int64, bool) {
	switch v := r[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v == float64(int64(v)) {
			return int64(v), true
		}
		return 0, false
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		// "3.0" style payloads still denote an integer
		if f, err := v.Float64(); err == nil && f == float64(int64(f)) {
			return int64(f), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// Float returns the field as a float64. Any numeric representation counts.
func (r Raw) Float(key string) (float64, bool) {
	switch v := r[key].(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// String returns the field as a string.
func (r Raw) String(key string) (string, bool) {
	s, ok := r[key].(string)
	return s, ok
}

// CoerceInt is the lenient variant used by the stop-event feed, where
// numeric fields arrive as scraped text.
func (r Raw) CoerceInt(key string) (int64, bool) {
	if n, ok := r.Int(key); ok {
		return n, true
	}
	if s, ok := r.String(key); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// ServiceKey classifies the operating day of a trip.
type ServiceKey string

const (
	ServiceWeekday  ServiceKey = "Weekday"
	ServiceSaturday ServiceKey = "Saturday"
	ServiceSunday   ServiceKey = "Sunday"
)

// Direction of travel along a route.
type Direction string

const (
	DirectionOut  Direction = "Out"
	DirectionBack Direction = "Back"
)

// PositionSample is one cleaned breadcrumb. Speed is derived downstream and
// stays nil until a delta (or a forward fill) produces one.
type PositionSample struct {
	Timestamp time.Time
	Latitude  float64
	Longitude float64
	TripID    int64
	Meters    float64
	Speed     *float64
}

// TripMetadata is the per-trip summary row. trip_id is the primary key in
// the sink; first-seen-wins upstream, DO NOTHING on conflict downstream.
type TripMetadata struct {
	TripID     int64
	RouteID    int64
	VehicleID  int64
	ServiceKey ServiceKey
	Direction  Direction
}

// ParseOperatingDate parses the feed's operating-date stamp, e.g.
// "07MAY2023:00:00:00". Only the date token matters; the month is
// upper-cased by the feed so it is normalized before parsing.
func ParseOperatingDate(s string) (time.Time, error) {
	tok := strings.SplitN(strings.TrimSpace(s), ":", 2)[0]
	if len(tok) != 9 {
		return time.Time{}, fmt.Errorf("operating date %q: want DDMONYYYY", s)
	}
	mon := tok[2:5]
	norm := tok[:2] + strings.ToUpper(mon[:1]) + strings.ToLower(mon[1:]) + tok[5:]
	t, err := time.Parse("02Jan2006", norm)
	if err != nil {
		return time.Time{}, fmt.Errorf("operating date %q: %w", s, err)
	}
	return t, nil
}

// EventTime combines the operating date with the intra-day ACT_TIME offset
// into an absolute timestamp.
func (r Raw) EventTime() (time.Time, error) {
	opd, ok := r.String(FieldOpDate)
	if !ok {
		return time.Time{}, fmt.Errorf("%s is not a string", FieldOpDate)
	}
	base, err := ParseOperatingDate(opd)
	if err != nil {
		return time.Time{}, err
	}
	sec, ok := r.Float(FieldActTime)
	if !ok {
		return time.Time{}, fmt.Errorf("%s is not numeric", FieldActTime)
	}
	return base.Add(time.Duration(sec * float64(time.Second))), nil
}

// ServiceKeyForDate maps an operating date to its service classification.
func ServiceKeyForDate(t time.Time) ServiceKey {
	switch t.Weekday() {
	case time.Saturday:
		return ServiceSaturday
	case time.Sunday:
		return ServiceSunday
	default:
		return ServiceWeekday
	}
}
