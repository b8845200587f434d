package record

import (
	"encoding/json"
	"testing"
	"time"
)

func TestIntAccessor(t *testing.T) {
	tests := []struct {
		name string
		val  any
		want int64
		ok   bool
	}{
		{"int", 42, 42, true},
		{"int64", int64(42), 42, true},
		{"integral float", float64(42), 42, true},
		{"fractional float", 42.5, 0, false},
		{"json number", json.Number("42"), 42, true},
		{"json float integral", json.Number("42.0"), 42, true},
		{"json fractional", json.Number("42.5"), 0, false},
		{"string", "42", 0, false},
		{"missing", nil, 0, false},
	}
	for _, tc := range tests {
		r := Raw{}
		if tc.val != nil {
			r["k"] = tc.val
		}
		got, ok := r.Int("k")
		if got != tc.want || ok != tc.ok {
			t.Errorf("%s: Int = (%d, %v), want (%d, %v)", tc.name, got, ok, tc.want, tc.ok)
		}
	}
}

func TestCoerceInt(t *testing.T) {
	r := Raw{"a": " 173 ", "b": "not a number", "c": json.Number("9")}
	if n, ok := r.CoerceInt("a"); !ok || n != 173 {
		t.Errorf("CoerceInt(a) = (%d, %v), want (173, true)", n, ok)
	}
	if _, ok := r.CoerceInt("b"); ok {
		t.Error("CoerceInt(b) accepted a non-number")
	}
	if n, ok := r.CoerceInt("c"); !ok || n != 9 {
		t.Errorf("CoerceInt(c) = (%d, %v), want (9, true)", n, ok)
	}
}

func TestParseOperatingDate(t *testing.T) {
	got, err := ParseOperatingDate("07MAY2023:00:00:00")
	if err != nil {
		t.Fatalf("ParseOperatingDate: %v", err)
	}
	want := time.Date(2023, time.May, 7, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if _, err := ParseOperatingDate("garbage"); err == nil {
		t.Error("expected error for malformed date")
	}
	if _, err := ParseOperatingDate("99ZZZ2023:00:00:00"); err == nil {
		t.Error("expected error for invalid month")
	}
}

func TestEventTime(t *testing.T) {
	r := Raw{
		FieldOpDate:  "07MAY2023:00:00:00",
		FieldActTime: json.Number("3600"),
	}
	got, err := r.EventTime()
	if err != nil {
		t.Fatalf("EventTime: %v", err)
	}
	want := time.Date(2023, time.May, 7, 1, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}

	bad := Raw{FieldOpDate: "nope", FieldActTime: json.Number("10")}
	if _, err := bad.EventTime(); err == nil {
		t.Error("expected error for bad operating date")
	}
}

func TestServiceKeyForDate(t *testing.T) {
	tests := []struct {
		date time.Time
		want ServiceKey
	}{
		{time.Date(2023, time.May, 6, 0, 0, 0, 0, time.UTC), ServiceSaturday},
		{time.Date(2023, time.May, 7, 0, 0, 0, 0, time.UTC), ServiceSunday},
		{time.Date(2023, time.May, 8, 0, 0, 0, 0, time.UTC), ServiceWeekday},
		{time.Date(2023, time.May, 12, 0, 0, 0, 0, time.UTC), ServiceWeekday},
	}
	for _, tc := range tests {
		if got := ServiceKeyForDate(tc.date); got != tc.want {
			t.Errorf("ServiceKeyForDate(%s) = %s, want %s", tc.date.Weekday(), got, tc.want)
		}
	}
}
