package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/leoforge/internal/refinement"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Schema creates the run history tables.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id           TEXT PRIMARY KEY,
    project_name     TEXT NOT NULL,
    query            TEXT NOT NULL,
    success          BOOLEAN NOT NULL,
    stop_reason      TEXT NOT NULL,
    error_message    TEXT NOT NULL DEFAULT '',
    total_iterations INTEGER NOT NULL,
    duration_ms      BIGINT NOT NULL,
    workspace_path   TEXT NOT NULL DEFAULT '',
    final_source     TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS iterations (
    run_id       TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    number       INTEGER NOT NULL,
    score        DOUBLE PRECISION NOT NULL,
    build_status TEXT NOT NULL DEFAULT '',
    success      BOOLEAN NOT NULL,
    duration_ms  BIGINT NOT NULL,
    source       TEXT NOT NULL,
    evaluation   JSONB NOT NULL,
    PRIMARY KEY (run_id, number)
);`

const sqlInsertRun = `
        INSERT INTO runs (run_id, project_name, query, success, stop_reason, error_message,
                          total_iterations, duration_ms, workspace_path, final_source, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
    `

const sqlListRuns = `
        SELECT run_id, project_name, success, stop_reason, total_iterations, duration_ms, created_at
        FROM runs
        ORDER BY created_at DESC
        LIMIT $1;
    `

var iterationColumns = []string{"run_id", "number", "score", "build_status", "success", "duration_ms", "source", "evaluation"}

// RunSummary is one row of run history.
type RunSummary struct {
	RunID           string                `json:"run_id"`
	ProjectName     string                `json:"project_name"`
	Success         bool                  `json:"success"`
	StopReason      refinement.StopReason `json:"stop_reason"`
	TotalIterations int                   `json:"total_iterations"`
	Duration        time.Duration         `json:"duration"`
	CreatedAt       time.Time             `json:"created_at"`
}

// Store persists refinement runs to PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
	now  func() time.Time
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
		now:  time.Now,
	}, nil
}

// Open connects to url with a pgx pool. The returned close function releases
// the pool.
func Open(ctx context.Context, url string, logger *zap.Logger) (*Store, func(), error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// SaveRun records a finished run and its iterations in one transaction.
func (s *Store) SaveRun(ctx context.Context, query refinement.Query, result refinement.RunResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	_, err = tx.Exec(ctx, sqlInsertRun,
		result.RunID, result.ProjectName, query.Text, result.Success, string(result.StopReason),
		result.ErrorMessage, result.TotalIterations, result.TotalDuration.Milliseconds(),
		result.WorkspacePath, string(result.FinalSource), s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", result.RunID, err)
	}

	if len(result.Iterations) > 0 {
		if err := s.persistIterations(ctx, tx, result.RunID, result.Iterations); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	s.log.Debug("Run persisted.", zap.String("run_id", result.RunID), zap.Int("iterations", len(result.Iterations)))
	return nil
}

func (s *Store) persistIterations(ctx context.Context, tx pgx.Tx, runID string, iterations []refinement.Iteration) error {
	rows := make([][]interface{}, len(iterations))
	for i, it := range iterations {
		evaluation, err := json.Marshal(it.Evaluation)
		if err != nil {
			return fmt.Errorf("failed to encode evaluation for iteration %d: %w", it.Number, err)
		}
		buildStatus := ""
		if it.Build != nil {
			buildStatus = string(it.Build.Status)
		}
		rows[i] = []interface{}{
			runID, it.Number, it.Evaluation.Score, buildStatus, it.Success,
			it.Duration.Milliseconds(), string(it.Source), evaluation,
		}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"iterations"}, iterationColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy iterations: %w", err)
	}
	if int(copyCount) != len(iterations) {
		return fmt.Errorf("mismatch in copied iterations count: expected %d, got %d", len(iterations), copyCount)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.pool.Query(ctx, sqlListRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var (
			r          RunSummary
			stopReason string
			durationMS int64
		)
		if err := rows.Scan(&r.RunID, &r.ProjectName, &r.Success, &stopReason, &r.TotalIterations, &durationMS, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		r.StopReason = refinement.StopReason(stopReason)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}
