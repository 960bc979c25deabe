// Package store keeps an optional audit trail of completed analyses in
// Postgres. Only derived outcomes are written, never raw lab values.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Skufu/liverscan/internal/analysis"
)

// HealthChecker is what readiness probes need from a database.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Connect opens a pool and verifies it with a bounded ping.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return pool, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS analysis_audit (
	id              UUID PRIMARY KEY,
	created_at      TIMESTAMPTZ NOT NULL,
	primary_class   TEXT NOT NULL,
	confidence      DOUBLE PRECISION NOT NULL,
	secondary_class TEXT NOT NULL,
	risk            TEXT NOT NULL,
	policy          TEXT NOT NULL,
	chronic_lean    DOUBLE PRECISION NOT NULL
)`

const insertSQL = `
INSERT INTO analysis_audit
	(id, created_at, primary_class, confidence, secondary_class, risk, policy, chronic_lean)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// Execer is the subset of *pgxpool.Pool the audit store uses.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AuditStore implements analysis.Recorder.
type AuditStore struct {
	db      Execer
	timeout time.Duration
}

func NewAuditStore(db Execer) *AuditStore {
	return &AuditStore{db: db, timeout: 2 * time.Second}
}

// EnsureSchema creates the audit table if needed.
func (s *AuditStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create analysis_audit: %w", err)
	}
	return nil
}

func (s *AuditStore) Record(ctx context.Context, r *analysis.Report) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	in := r.Interpretation
	_, err := s.db.Exec(ctx, insertSQL,
		r.ID,
		r.CreatedAt,
		in.Primary.Label.String(),
		in.Primary.Probability,
		in.Secondary.Label.String(),
		in.Risk.String(),
		in.Policy,
		in.ChronicLean,
	)
	if err != nil {
		return fmt.Errorf("insert audit %s: %w", r.ID, err)
	}
	return nil
}

var _ analysis.Recorder = (*AuditStore)(nil)
