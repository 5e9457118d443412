package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"

	"cloudbench/pkg/db"
	"cloudbench/services/orchestrator"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

const defaultListLimit = 50

// Store writes reports through GORM and reads them with pgx/scany.
type Store struct {
	pool *pgxpool.Pool
	orm  *gorm.DB
}

// NewStore returns a Store bound to pool and orm.
func NewStore(pool *pgxpool.Pool, orm *gorm.DB) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if orm == nil {
		return nil, errors.New("orm is required")
	}
	return &Store{pool: pool, orm: orm}, nil
}

// Save persists report, its stages and the rendered Markdown in one transaction. Reports
// are write-once: saving a run id twice fails.
func (s *Store) Save(ctx context.Context, report *orchestrator.BenchmarkReport, markdown string) error {
	if report == nil || report.RunID == "" {
		return errors.New("report with run id is required")
	}
	run, stages := newModels(report, markdown)

	return db.WithTimeout(ctx, db.DefaultTimeout, func(ctx context.Context) error {
		return s.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&run).Error; err != nil {
				return fmt.Errorf("insert run: %w", err)
			}
			if len(stages) == 0 {
				return nil
			}
			if err := tx.Create(&stages).Error; err != nil {
				return fmt.Errorf("insert stages: %w", err)
			}
			return nil
		})
	})
}

// List returns the most recent runs first.
func (s *Store) List(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	runs := []RunSummary{}
	err := db.Select(ctx, s.pool, &runs, `
		SELECT id, title, provider, status, COALESCE(failed_stage, '') AS failed_stage,
		       started_at, finished_at, total_ms
		FROM benchmark_runs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// Get returns one run with its stages in plan order.
func (s *Store) Get(ctx context.Context, id string) (*RunDetail, error) {
	var row struct {
		RunSummary
		Outputs []byte `db:"outputs"`
	}
	err := db.Get(ctx, s.pool, &row, `
		SELECT id, title, provider, status, COALESCE(failed_stage, '') AS failed_stage,
		       started_at, finished_at, total_ms, COALESCE(outputs, '{}'::jsonb) AS outputs
		FROM benchmark_runs
		WHERE id = $1`, id)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	detail := &RunDetail{RunSummary: row.RunSummary, Stages: []StageSummary{}}
	if len(row.Outputs) > 0 {
		if err := json.Unmarshal(row.Outputs, &detail.Outputs); err != nil {
			return nil, fmt.Errorf("decode outputs: %w", err)
		}
	}

	err = db.Select(ctx, s.pool, &detail.Stages, `
		SELECT position, name, action, status, started_at, finished_at, duration_ms,
		       COALESCE(error, '') AS error
		FROM benchmark_stages
		WHERE run_id = $1
		ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// Report returns the rendered Markdown stored with the run.
func (s *Store) Report(ctx context.Context, id string) (string, error) {
	var md string
	err := db.Get(ctx, s.pool, &md, `SELECT COALESCE(report, '') FROM benchmark_runs WHERE id = $1`, id)
	if err != nil {
		if pgxscan.NotFound(err) {
			return "", ErrNotFound
		}
		return "", err
	}
	return md, nil
}

// Prune deletes runs that started before cutoff and returns how many were removed.
// Their stages go with them through the foreign key cascade.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if cutoff.IsZero() {
		return 0, errors.New("prune cutoff is required")
	}
	tag, err := db.Exec(ctx, s.pool, `DELETE FROM benchmark_runs WHERE started_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks database reachability.
func (s *Store) Ping(ctx context.Context) error {
	return db.Ping(ctx, s.pool)
}
