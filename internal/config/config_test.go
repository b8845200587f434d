package config

import (
	"testing"
	"time"
)

func setBase(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://postgres@127.0.0.1:5432/telemetry?sslmode=disable")
	// keep a stray .env or host environment from leaking into assertions
	for _, k := range []string{"PG_DSN", "PIPELINE_MODE", "NATS_SUBJECT", "NATS_DURABLE",
		"BATCH_SIZE", "IDLE_TIMEOUT", "FLUSH_INTERVAL", "DEDUP_SCOPE", "ACK_POLICY", "VEHICLE_IDS"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	setBase(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != ModeBreadcrumb {
		t.Errorf("mode = %s, want breadcrumb", cfg.Mode)
	}
	if cfg.Subject != "telemetry.breadcrumb" {
		t.Errorf("subject = %s, want telemetry.breadcrumb", cfg.Subject)
	}
	if cfg.BatchSize != 1000 {
		t.Errorf("batch size = %d, want 1000", cfg.BatchSize)
	}
	if cfg.IdleTimeout != 60*time.Second {
		t.Errorf("idle timeout = %s, want 60s", cfg.IdleTimeout)
	}
	if cfg.FlushInterval != 5*time.Second {
		t.Errorf("flush interval = %s, want 5s", cfg.FlushInterval)
	}
	if cfg.DedupScope != "run" {
		t.Errorf("dedup scope = %s, want run for breadcrumbs", cfg.DedupScope)
	}
	if cfg.AckPolicy != "buffer" {
		t.Errorf("ack policy = %s, want buffer", cfg.AckPolicy)
	}
}

func TestLoadStopEventDefaults(t *testing.T) {
	setBase(t)
	t.Setenv("PIPELINE_MODE", "stopevent")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Subject != "telemetry.stopevent" {
		t.Errorf("subject = %s, want telemetry.stopevent", cfg.Subject)
	}
	if cfg.DedupScope != "batch" {
		t.Errorf("dedup scope = %s, want batch for stop events", cfg.DedupScope)
	}
	if cfg.Durable != "ingest-stopevent" {
		t.Errorf("durable = %s, want ingest-stopevent", cfg.Durable)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"BATCH_SIZE":    "zero",
		"IDLE_TIMEOUT":  "-1",
		"PIPELINE_MODE": "firehose",
		"DEDUP_SCOPE":   "forever",
		"ACK_POLICY":    "never",
		"VEHICLE_IDS":   "1,two,3",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			setBase(t)
			t.Setenv(key, val)
			if _, err := Load(); err == nil {
				t.Errorf("Load accepted %s=%q", key, val)
			}
		})
	}
}

func TestLoadRequiresDatabase(t *testing.T) {
	setBase(t)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PG_DSN", "")
	t.Setenv("PGDATABASE", "")
	if _, err := Load(); err == nil {
		t.Error("Load accepted a configuration without a database")
	}
}

func TestLoadVehicleIDs(t *testing.T) {
	setBase(t)
	t.Setenv("VEHICLE_IDS", "2903, 2910,3006")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []int{2903, 2910, 3006}
	if len(cfg.VehicleIDs) != len(want) {
		t.Fatalf("got %v, want %v", cfg.VehicleIDs, want)
	}
	for i := range want {
		if cfg.VehicleIDs[i] != want[i] {
			t.Errorf("vehicle id %d = %d, want %d", i, cfg.VehicleIDs[i], want[i])
		}
	}
}
