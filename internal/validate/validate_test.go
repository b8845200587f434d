package validate

import (
	"strings"
	"testing"

	"transit-ingest/internal/record"
)

func goodRecord() record.Raw {
	return record.Raw{
		record.FieldTrip:      int64(100),
		record.FieldStop:      int64(1),
		record.FieldOpDate:    "07MAY2023:00:00:00",
		record.FieldActTime:   float64(36000),
		record.FieldVehicle:   int64(3001),
		record.FieldLatitude:  45.52,
		record.FieldLongitude: -122.68,
		record.FieldMeters:    float64(1500),
	}
}

func TestBreadcrumbAcceptsCleanRecord(t *testing.T) {
	v := NewBreadcrumb(ScopeRun, nil)
	if out := v.Validate(goodRecord(), nil); !out.OK {
		t.Fatalf("clean record rejected: [%s] %s", out.Category, out.Reason)
	}
}

func TestBreadcrumbRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(record.Raw)
		cat    Category
		reason string
	}{
		{
			name:   "missing vehicle id",
			mutate: func(r record.Raw) { delete(r, record.FieldVehicle) },
			cat:    CategoryRequired,
			reason: "missing field",
		},
		{
			name:   "null field",
			mutate: func(r record.Raw) { r[record.FieldMeters] = nil },
			cat:    CategoryRequired,
			reason: "missing field",
		},
		{
			name:   "wrong type",
			mutate: func(r record.Raw) { r[record.FieldTrip] = "100x" },
			cat:    CategoryRequired,
		},
		{
			name:   "latitude below geofence",
			mutate: func(r record.Raw) { r[record.FieldLatitude] = 44.9 },
			cat:    CategoryGPS,
		},
		{
			name:   "latitude above geofence",
			mutate: func(r record.Raw) { r[record.FieldLatitude] = 45.8 },
			cat:    CategoryGPS,
		},
		{
			name:   "longitude outside geofence",
			mutate: func(r record.Raw) { r[record.FieldLongitude] = -121.0 },
			cat:    CategoryGPS,
		},
		{
			name: "zero-zero sentinel",
			mutate: func(r record.Raw) {
				r[record.FieldLatitude] = 0.0
				r[record.FieldLongitude] = 0.0
			},
			cat: CategoryGPS,
		},
		{
			name:   "negative speed",
			mutate: func(r record.Raw) { r[record.FieldSpeed] = -1.0 },
			cat:    CategorySpeed,
		},
		{
			name:   "implausible speed",
			mutate: func(r record.Raw) { r[record.FieldSpeed] = 50.0 },
			cat:    CategorySpeed,
		},
		{
			name:   "non-positive vehicle id",
			mutate: func(r record.Raw) { r[record.FieldVehicle] = int64(0) },
			cat:    CategoryVehicle,
		},
		{
			name:   "negative odometer",
			mutate: func(r record.Raw) { r[record.FieldMeters] = -5.0 },
			cat:    CategoryVehicle,
		},
		{
			name:   "excessive odometer",
			mutate: func(r record.Raw) { r[record.FieldMeters] = 2_000_000.0 },
			cat:    CategoryVehicle,
		},
		{
			name:   "negative activity time",
			mutate: func(r record.Raw) { r[record.FieldActTime] = -10.0 },
			cat:    CategoryTime,
		},
	}
	for _, tc := range tests {
		v := NewBreadcrumb(ScopeRun, nil)
		rec := goodRecord()
		tc.mutate(rec)
		out := v.Validate(rec, nil)
		if out.OK {
			t.Errorf("%s: record accepted, want rejection", tc.name)
			continue
		}
		if out.Category != tc.cat {
			t.Errorf("%s: category = %s, want %s", tc.name, out.Category, tc.cat)
		}
		if tc.reason != "" && !strings.Contains(out.Reason, tc.reason) {
			t.Errorf("%s: reason %q does not contain %q", tc.name, out.Reason, tc.reason)
		}
	}
}

func TestBreadcrumbBoundaryCoordinatesAccepted(t *testing.T) {
	v := NewBreadcrumb(ScopeRun, nil)
	rec := goodRecord()
	rec[record.FieldLatitude] = 45.2
	rec[record.FieldLongitude] = -124.0
	if out := v.Validate(rec, nil); !out.OK {
		t.Errorf("boundary coordinates rejected: %s", out.Reason)
	}
}

func TestBreadcrumbSpeedFieldOptional(t *testing.T) {
	v := NewBreadcrumb(ScopeRun, nil)
	rec := goodRecord()
	rec[record.FieldSpeed] = 12.5
	if out := v.Validate(rec, nil); !out.OK {
		t.Errorf("plausible precomputed speed rejected: %s", out.Reason)
	}
}

func TestBreadcrumbJumpCheck(t *testing.T) {
	v := NewBreadcrumb(ScopeRun, nil)
	rec := goodRecord()

	// prior point ~0.7 km away: fine
	near := &Point{Lat: 45.525, Lon: -122.69}
	if out := v.Validate(rec, near); !out.OK {
		t.Fatalf("small movement rejected: %s", out.Reason)
	}

	// prior point far across the geofence: > 5 km jump
	rec2 := goodRecord()
	rec2[record.FieldStop] = int64(2) // avoid the duplicate check
	far := &Point{Lat: 45.52, Lon: -123.5}
	out := v.Validate(rec2, far)
	if out.OK || out.Category != CategoryJump {
		t.Errorf("large jump not rejected: %+v", out)
	}

	// no prior point supplied: check skipped entirely
	v2 := NewBreadcrumb(ScopeRun, nil)
	if out := v2.Validate(goodRecord(), nil); !out.OK {
		t.Errorf("record without prior rejected: %s", out.Reason)
	}
}

func TestBreadcrumbDuplicateIdempotent(t *testing.T) {
	v := NewBreadcrumb(ScopeRun, nil)
	rec := goodRecord()
	if out := v.Validate(rec, nil); !out.OK {
		t.Fatalf("first submission rejected: %s", out.Reason)
	}
	out := v.Validate(goodRecord(), nil)
	if out.OK {
		t.Fatal("duplicate accepted")
	}
	if out.Category != CategoryDuplicate {
		t.Errorf("category = %s, want %s", out.Category, CategoryDuplicate)
	}

	// a differing odometer value is a different key
	rec3 := goodRecord()
	rec3[record.FieldMeters] = float64(1600)
	if out := v.Validate(rec3, nil); !out.OK {
		t.Errorf("distinct key rejected as duplicate: %s", out.Reason)
	}
}

func TestBreadcrumbDedupScope(t *testing.T) {
	// run scope survives a batch boundary
	run := NewBreadcrumb(ScopeRun, nil)
	run.Validate(goodRecord(), nil)
	run.ResetBatch()
	if out := run.Validate(goodRecord(), nil); out.OK {
		t.Error("run-scoped duplicate accepted after batch reset")
	}

	// batch scope forgets at the boundary
	batch := NewBreadcrumb(ScopeBatch, nil)
	batch.Validate(goodRecord(), nil)
	batch.ResetBatch()
	if out := batch.Validate(goodRecord(), nil); !out.OK {
		t.Errorf("batch-scoped record rejected after reset: %s", out.Reason)
	}
}

func goodStopEvent() record.Raw {
	return record.Raw{
		StopFieldTrip:       "55",
		StopFieldRoute:      "20",
		StopFieldVehicle:    "9",
		StopFieldServiceKey: "W",
		StopFieldDirection:  "0",
	}
}

func TestStopEventValidate(t *testing.T) {
	v := NewStopEvent(ScopeBatch, nil)
	if out := v.Validate(goodStopEvent()); !out.OK {
		t.Fatalf("clean stop event rejected: [%s] %s", out.Category, out.Reason)
	}

	missing := goodStopEvent()
	delete(missing, StopFieldServiceKey)
	if out := v.Validate(missing); out.OK || out.Category != CategoryRequired {
		t.Errorf("missing service_key not rejected as required: %+v", out)
	}

	badTrip := goodStopEvent()
	badTrip[StopFieldTrip] = "abc"
	if out := v.Validate(badTrip); out.OK {
		t.Error("non-numeric trip id accepted")
	}

	negTrip := goodStopEvent()
	negTrip[StopFieldTrip] = "-3"
	if out := v.Validate(negTrip); out.OK {
		t.Error("non-positive trip id accepted")
	}
}

func TestStopEventDuplicateWithinBatch(t *testing.T) {
	v := NewStopEvent(ScopeBatch, nil)
	if out := v.Validate(goodStopEvent()); !out.OK {
		t.Fatalf("first rejected: %s", out.Reason)
	}
	out := v.Validate(goodStopEvent())
	if out.OK || out.Category != CategoryDuplicate {
		t.Errorf("same (trip, vehicle) not rejected as duplicate: %+v", out)
	}

	// next batch starts fresh
	v.ResetBatch()
	if out := v.Validate(goodStopEvent()); !out.OK {
		t.Errorf("rejected after batch reset: %s", out.Reason)
	}
}
