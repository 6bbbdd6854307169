// Package postgres stores resource cost history and analysis runs in
// PostgreSQL through lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"costrisk/db/ingestion"
	"costrisk/decision/estimation"
	"costrisk/decision/seasonality"
)

// Config holds PostgreSQL connection settings.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns default development configuration
func DefaultConfig() *Config {
	return &Config{
		DSN:             "postgres://postgres@localhost:5432/costrisk?sslmode=disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// Store is a cost history store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore opens a connection pool. The connection is not verified until
// Ping.
func NewStore(cfg *Config) (*Store, error) {
	if strings.Contains(cfg.DSN, "://") {
		if _, err := pq.ParseURL(cfg.DSN); err != nil {
			return nil, fmt.Errorf("invalid PostgreSQL DSN: %w", err)
		}
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return &Store{db: db}, nil
}

// NewStoreFromDB wraps an existing pool.
func NewStoreFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS cost_observations (
		batch_id    UUID NOT NULL,
		resource_id TEXT NOT NULL,
		observed_at TIMESTAMPTZ NOT NULL,
		cost        DOUBLE PRECISION NOT NULL CHECK (cost >= 0),
		source      TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS cost_observations_resource_time
		ON cost_observations (resource_id, observed_at)`,
	`CREATE TABLE IF NOT EXISTS analysis_runs (
		run_id             UUID PRIMARY KEY,
		analyzed_at        TIMESTAMPTZ NOT NULL,
		environment        TEXT NOT NULL DEFAULT '',
		resources          INTEGER NOT NULL,
		resources_seasonal INTEGER NOT NULL,
		monthly_cost_p50   NUMERIC(18, 4) NOT NULL,
		monthly_cost_p90   NUMERIC(18, 4) NOT NULL,
		cost_delta         NUMERIC(18, 4) NOT NULL,
		highest_severity   TEXT NOT NULL,
		var_95             DOUBLE PRECISION
	)`,
}

const costSeriesQuery = `
	SELECT EXTRACT(EPOCH FROM date_trunc('day', observed_at AT TIME ZONE 'UTC'))::BIGINT AS day, SUM(cost)
	FROM cost_observations
	WHERE resource_id = $1 AND observed_at >= $2
	GROUP BY day
	ORDER BY day`

// CostSeries returns one point per UTC day since the given time, summing
// the costs observed that day.
func (s *Store) CostSeries(ctx context.Context, resourceID string, since time.Time) ([]seasonality.CostPoint, error) {
	rows, err := s.db.QueryContext(ctx, costSeriesQuery, resourceID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query cost series: %w", err)
	}
	defer rows.Close()

	var series []seasonality.CostPoint
	for rows.Next() {
		var day int64
		var c float64
		if err := rows.Scan(&day, &c); err != nil {
			return nil, fmt.Errorf("failed to scan cost point: %w", err)
		}
		if day < 0 {
			continue
		}
		series = append(series, seasonality.CostPoint{Timestamp: uint64(day), Cost: c})
	}
	return series, rows.Err()
}

// LatestObservation returns the most recent observation for a resource, or
// nil if there is none.
func (s *Store) LatestObservation(ctx context.Context, resourceID string) (*ingestion.Observation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT resource_id, observed_at, cost, source
		FROM cost_observations
		WHERE resource_id = $1
		ORDER BY observed_at DESC
		LIMIT 1`, resourceID)

	var o ingestion.Observation
	err := row.Scan(&o.ResourceID, &o.ObservedAt, &o.Cost, &o.Source)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest observation: %w", err)
	}
	return &o, nil
}

// RecordCosts copies observations in one transaction.
func (s *Store) RecordCosts(ctx context.Context, batchID uuid.UUID, observations []ingestion.Observation) error {
	if len(observations) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("cost_observations",
		"batch_id", "resource_id", "observed_at", "cost", "source"))
	if err != nil {
		return fmt.Errorf("failed to prepare copy: %w", err)
	}

	for _, o := range observations {
		if _, err := stmt.ExecContext(ctx, batchID.String(), o.ResourceID, o.ObservedAt, o.Cost, o.Source); err != nil {
			stmt.Close()
			return fmt.Errorf("failed to copy observation for %s: %w", o.ResourceID, err)
		}
	}
	// flush the COPY buffer
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("failed to flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close copy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit observations: %w", err)
	}
	return nil
}

// RecordAnalysis stores the summary of an analysis run. Re-recording the
// same run is a no-op.
func (s *Store) RecordAnalysis(ctx context.Context, a *estimation.Analysis) error {
	r := a.Summary()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_runs (
			run_id, analyzed_at, environment, resources, resources_seasonal,
			monthly_cost_p50, monthly_cost_p90, cost_delta, highest_severity, var_95
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id) DO NOTHING`,
		r.RunID.String(),
		r.AnalyzedAt,
		r.Environment,
		int64(r.Resources),
		int64(r.ResourcesSeasonal),
		r.MonthlyCostP50,
		r.MonthlyCostP90,
		r.CostDelta,
		r.HighestSeverity,
		r.VaR95,
	)
	if err != nil {
		return fmt.Errorf("failed to record analysis %s: %w", r.RunID, err)
	}
	return nil
}
