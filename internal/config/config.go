package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Mode selects which feed the ingest binary consumes.
type Mode string

const (
	ModeBreadcrumb Mode = "breadcrumb"
	ModeStopEvent  Mode = "stopevent"
)

type Config struct {
	DatabaseURL string

	NATSURL        string
	NATSStreamName string
	Subject        string
	Durable        string

	Mode          Mode
	BatchSize     int
	IdleTimeout   time.Duration
	FlushInterval time.Duration
	DedupScope    string // run | batch
	AckPolicy     string // buffer | persist

	MetricsAddr string

	// feed-side settings for the publish utility
	FeedURL    string
	VehicleIDs []int
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	// Database URL: prefer DATABASE_URL / PG_DSN, else build from PG* vars
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		db := os.Getenv("PGDATABASE")
		if db == "" {
			return nil, errors.New("PGDATABASE or DATABASE_URL must be set")
		}
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
		} else {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
		}
	} else {
		cfg.DatabaseURL = dsn
	}

	cfg.NATSURL = getenvDefault("NATS_URL", "nats://127.0.0.1:4222")
	cfg.NATSStreamName = getenvDefault("NATS_STREAM_NAME", "TELEMETRY")

	// Pipeline mode and the per-mode default subject
	switch m := Mode(getenvDefault("PIPELINE_MODE", string(ModeBreadcrumb))); m {
	case ModeBreadcrumb, ModeStopEvent:
		cfg.Mode = m
	default:
		return nil, fmt.Errorf("invalid PIPELINE_MODE: %q (want breadcrumb or stopevent)", m)
	}
	defaultSubject := "telemetry.breadcrumb"
	if cfg.Mode == ModeStopEvent {
		defaultSubject = "telemetry.stopevent"
	}
	cfg.Subject = getenvDefault("NATS_SUBJECT", defaultSubject)
	cfg.Durable = getenvDefault("NATS_DURABLE", "ingest-"+string(cfg.Mode))

	// Flush threshold
	if v := os.Getenv("BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid BATCH_SIZE: %q", v)
		}
		cfg.BatchSize = n
	} else {
		cfg.BatchSize = 1000
	}

	// Idle timeout (seconds)
	if v := os.Getenv("IDLE_TIMEOUT"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %q", v)
		}
		cfg.IdleTimeout = time.Duration(sec) * time.Second
	} else {
		cfg.IdleTimeout = 60 * time.Second
	}

	// Periodic flush interval (seconds)
	if v := os.Getenv("FLUSH_INTERVAL"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("invalid FLUSH_INTERVAL: %q", v)
		}
		cfg.FlushInterval = time.Duration(sec) * time.Second
	} else {
		cfg.FlushInterval = 5 * time.Second
	}

	// Duplicate-detection scope: the breadcrumb feed historically dedups
	// across the run, the stop-event feed per batch.
	defaultScope := "run"
	if cfg.Mode == ModeStopEvent {
		defaultScope = "batch"
	}
	switch s := strings.ToLower(getenvDefault("DEDUP_SCOPE", defaultScope)); s {
	case "run", "batch":
		cfg.DedupScope = s
	default:
		return nil, fmt.Errorf("invalid DEDUP_SCOPE: %q (want run or batch)", s)
	}

	// Ack policy: buffer (ack on append) or persist (ack after load)
	switch p := strings.ToLower(getenvDefault("ACK_POLICY", "buffer")); p {
	case "buffer", "persist":
		cfg.AckPolicy = p
	default:
		return nil, fmt.Errorf("invalid ACK_POLICY: %q (want buffer or persist)", p)
	}

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	// Feed settings, only required by the publish utility
	cfg.FeedURL = os.Getenv("FEED_URL")
	if v := os.Getenv("VEHICLE_IDS"); v != "" {
		for _, tok := range strings.Split(v, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			id, err := strconv.Atoi(tok)
			if err != nil {
				return nil, fmt.Errorf("invalid VEHICLE_IDS entry: %q", tok)
			}
			cfg.VehicleIDs = append(cfg.VehicleIDs, id)
		}
	}

	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
