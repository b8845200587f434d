package transform

import (
	"log"

	"transit-ingest/internal/record"
	"transit-ingest/internal/validate"
)

// service_key letters used by the stop-event feed.
var stopServiceKeys = map[string]record.ServiceKey{
	"W": record.ServiceWeekday,
	"S": record.ServiceSaturday,
	"U": record.ServiceSunday,
}

// StopEventCleaner validates and converts stop-event records into trip
// metadata rows. Unlike breadcrumbs there is no position output; the feed
// only describes trips.
type StopEventCleaner struct {
	validator *validate.StopEvent
}

func NewStopEventCleaner(v *validate.StopEvent) *StopEventCleaner {
	return &StopEventCleaner{validator: v}
}

// Clean returns the metadata rows for every valid record in the batch and
// the number of records dropped by validation or type coercion.
func (c *StopEventCleaner) Clean(batch []record.Raw) (rows []record.TripMetadata, invalid int) {
	c.validator.ResetBatch()

	rows = make([]record.TripMetadata, 0, len(batch))
	for _, rec := range batch {
		if out := c.validator.Validate(rec); !out.OK {
			invalid++
			continue
		}
		trip, _ := rec.CoerceInt(validate.StopFieldTrip)
		vehicle, _ := rec.CoerceInt(validate.StopFieldVehicle)
		route, ok := rec.CoerceInt(validate.StopFieldRoute)
		if !ok {
			log.Printf("stop event trip %d: route %v not coercible, dropping", trip, rec[validate.StopFieldRoute])
			invalid++
			continue
		}

		service := record.ServiceWeekday
		if code, ok := rec.String(validate.StopFieldServiceKey); ok {
			if mapped, known := stopServiceKeys[code]; known {
				service = mapped
			}
		}

		direction := record.DirectionBack
		if code, _ := rec.String(validate.StopFieldDirection); code == "0" {
			direction = record.DirectionOut
		} else if n, ok := rec.Int(validate.StopFieldDirection); ok && n == 0 {
			direction = record.DirectionOut
		}

		rows = append(rows, record.TripMetadata{
			TripID:     trip,
			RouteID:    route,
			VehicleID:  vehicle,
			ServiceKey: service,
			Direction:  direction,
		})
	}
	log.Printf("stop events: %d valid of %d received", len(rows), len(batch))
	return rows, invalid
}
