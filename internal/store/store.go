// SPDX-License-Identifier: MIT

// Package store implements PostgreSQL persistence for occurrences and
// analysis types. PostGIS is required for the occurrence location column.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cityops/data-api/internal/config"
	"github.com/cityops/data-api/internal/log"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

var queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "dataapi",
	Name:      "db_query_duration_seconds",
	Help:      "Duration of database queries in seconds",
	Buckets:   prometheus.ExponentialBuckets(0.001, 2.0, 12), // 1ms .. ~4s
}, []string{"query"})

// Store wraps the SQL connection pool and exposes the repositories.
type Store struct {
	db *sql.DB

	Occurrences   *OccurrenceRepo
	AnalysisTypes *AnalysisTypeRepo
}

// Open connects to PostgreSQL via the pgx stdlib driver and verifies the
// connection with a ping.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	db, err := sql.Open("pgx", cfg.PostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger := log.WithComponent("store")
	logger.Info().
		Str("host", cfg.Host).
		Str("database", cfg.Name).
		Msg("connected to PostgreSQL")

	s := &Store{db: db}
	s.Occurrences = &OccurrenceRepo{db: db}
	s.AnalysisTypes = &AnalysisTypeRepo{db: db}
	return s, nil
}

// DB exposes the underlying pool for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// observe records the duration of a named query.
func observe(name string, start time.Time) {
	queryDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}
