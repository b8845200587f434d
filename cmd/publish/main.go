package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"transit-ingest/internal/config"
	"transit-ingest/internal/feed"
	"transit-ingest/internal/queue"
)

// publish fetches the day's breadcrumbs per vehicle from the upstream API
// and publishes one message per record onto the ingest subject.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.FeedURL == "" {
		log.Fatalf("FEED_URL must be set")
	}
	if len(cfg.VehicleIDs) == 0 {
		log.Fatalf("VEHICLE_IDS must be set (comma separated)")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	qc, err := queue.Connect(cfg.NATSURL, "transit-publish", nil)
	if err != nil {
		log.Fatalf("nats error: %v", err)
	}
	defer qc.Close()
	if err := qc.EnsureStream(cfg.NATSStreamName, cfg.Subject); err != nil {
		log.Fatalf("nats stream error: %v", err)
	}

	client := feed.NewClient(cfg.FeedURL)
	start := time.Now()
	fetched := 0
	published := 0
	for _, vid := range cfg.VehicleIDs {
		if ctx.Err() != nil {
			break
		}
		recs, err := client.FetchVehicle(ctx, vid)
		if err != nil {
			// per-vehicle failures are logged, not fatal
			log.Printf("vehicle %d: %v", vid, err)
			continue
		}
		fetched++
		for _, rec := range recs {
			if err := qc.Publish(cfg.Subject, rec); err != nil {
				log.Printf("publish error for vehicle %d: %v", vid, err)
				continue
			}
			published++
		}
	}

	log.Printf("feed publish complete: vehicles=%d/%d messages=%d elapsed=%s",
		fetched, len(cfg.VehicleIDs), published, time.Since(start).Round(time.Millisecond))
}
