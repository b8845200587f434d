package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"transit-ingest/internal/record"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// Writer persists one batch. The postgres implementation is below; tests
// substitute a fake.
type Writer interface {
	WriteBatch(ctx context.Context, positions []record.PositionSample, trips []record.TripMetadata) error
}

// PGWriter writes batches to PostgreSQL: trip rows with an idempotent
// upsert-or-ignore, breadcrumb rows via COPY for throughput. Everything
// runs in one transaction per batch; any failure rolls the whole batch back.
type PGWriter struct {
	db *sql.DB
}

func NewPGWriter(db *sql.DB) *PGWriter { return &PGWriter{db: db} }

func (w *PGWriter) WriteBatch(ctx context.Context, positions []record.PositionSample, trips []record.TripMetadata) error {
	conn, err := w.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sink connection: %w", err)
	}
	defer conn.Close()

	// Drop to the native pgx connection so the breadcrumb insert can use
	// the COPY protocol instead of row-at-a-time statements.
	return conn.Raw(func(driverConn any) error {
		direct, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected sink driver %T", driverConn)
		}
		pc := direct.Conn()

		tx, err := pc.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin batch transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		for _, t := range trips {
			_, err := tx.Exec(ctx,
				`INSERT INTO trip (trip_id, route_id, vehicle_id, service_key, direction)
				 VALUES ($1, $2, $3, $4, $5)
				 ON CONFLICT (trip_id) DO NOTHING`,
				t.TripID, t.RouteID, t.VehicleID, string(t.ServiceKey), string(t.Direction))
			if err != nil {
				return fmt.Errorf("insert trip %d: %w", t.TripID, err)
			}
		}

		if len(positions) > 0 {
			rows := make([][]any, 0, len(positions))
			for _, p := range positions {
				var speed any
				if p.Speed != nil {
					speed = *p.Speed
				}
				rows = append(rows, []any{p.Timestamp, p.Latitude, p.Longitude, speed, p.TripID})
			}
			_, err := tx.CopyFrom(ctx,
				pgx.Identifier{"breadcrumb"},
				[]string{"tstamp", "latitude", "longitude", "speed", "trip_id"},
				pgx.CopyFromRows(rows))
			if err != nil {
				return fmt.Errorf("copy breadcrumbs: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
		return nil
	})
}

// EnsureSchema creates the sink tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trip (
			trip_id     BIGINT PRIMARY KEY,
			route_id    BIGINT,
			vehicle_id  BIGINT,
			service_key TEXT,
			direction   TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS breadcrumb (
			tstamp    TIMESTAMP,
			latitude  DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			speed     DOUBLE PRECISION,
			trip_id   BIGINT
		)`,
	}
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
