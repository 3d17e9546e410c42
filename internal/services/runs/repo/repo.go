// Package repo persists run envelopes to Postgres for the history API
package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ChrisPatten/haven-sub004/internal/modkit/repokit"
	perr "github.com/ChrisPatten/haven-sub004/internal/platform/errors"
	"github.com/ChrisPatten/haven-sub004/internal/services/runs/domain"
)

// Schema is the run history table, applied idempotently at startup
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      text PRIMARY KEY,
	collector   text NOT NULL,
	status      text NOT NULL,
	started_at  timestamptz NOT NULL,
	finished_at timestamptz NOT NULL,
	envelope    jsonb NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_collector_started_idx ON runs (collector, started_at DESC)`

// EnsureSchema applies the run history schema
func EnsureSchema(ctx context.Context, q repokit.Queryer) error {
	_, err := q.Exec(ctx, Schema)
	return err
}

type (
	pg     struct{ q repokit.Queryer }
	binder struct{}
)

// NewPG constructs a repo binder for Postgres
func NewPG() repokit.Binder[Storage] { return binder{} }

// Bind implements repokit.Binder
func (binder) Bind(q repokit.Queryer) Storage { return &pg{q: q} }

// Storage defines the run history repository
type Storage interface {
	Insert(ctx context.Context, rec domain.RunRecord) error
	List(ctx context.Context, collector string, limit int) ([]domain.RunRecord, error)
	Get(ctx context.Context, runID string) (domain.RunRecord, error)
}

// Insert implements Storage. The envelope rides as jsonb so the schema never
// chases envelope shape changes
func (s *pg) Insert(ctx context.Context, rec domain.RunRecord) error {
	env, err := json.Marshal(rec.Envelope)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "encode run envelope")
	}
	_, err = s.q.Exec(ctx, `
		INSERT INTO runs (run_id, collector, status, started_at, finished_at, envelope)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id) DO NOTHING`,
		rec.RunID, rec.Collector, rec.Status, rec.StartedAt, rec.FinishedAt, env,
	)
	return err
}

// List implements Storage, newest first, optionally narrowed to one collector
func (s *pg) List(ctx context.Context, collector string, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT run_id, collector, status, started_at, finished_at, envelope
		FROM runs`
	args := []any{}
	if collector != "" {
		query += ` WHERE collector = $1`
		args = append(args, collector)
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RunRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Get implements Storage
func (s *pg) Get(ctx context.Context, runID string) (domain.RunRecord, error) {
	rows, err := s.q.Query(ctx, `
		SELECT run_id, collector, status, started_at, finished_at, envelope
		FROM runs WHERE run_id = $1`, runID)
	if err != nil {
		return domain.RunRecord{}, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return domain.RunRecord{}, err
		}
		return domain.RunRecord{}, perr.NotFoundf("run %q", runID)
	}
	return scanRecord(rows)
}

func scanRecord(rows repokit.Rows) (domain.RunRecord, error) {
	var (
		rec domain.RunRecord
		env []byte
	)
	if err := rows.Scan(&rec.RunID, &rec.Collector, &rec.Status, &rec.StartedAt, &rec.FinishedAt, &env); err != nil {
		return domain.RunRecord{}, err
	}
	if len(env) > 0 {
		if err := json.Unmarshal(env, &rec.Envelope); err != nil {
			return domain.RunRecord{}, perr.Wrapf(err, perr.ErrorCodeState, "decode run envelope")
		}
	}
	return rec, nil
}
