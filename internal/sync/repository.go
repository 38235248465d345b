package sync

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/strideworks/stridesync/internal/loggy"
)

// RunRepository persists the sync run log
type RunRepository struct {
	db     *sql.DB
	logger *loggy.Logger
}

// NewRunRepository creates a new run log repository
func NewRunRepository(db *sql.DB, logger *loggy.Logger) *RunRepository {
	return &RunRepository{
		db:     db,
		logger: logger,
	}
}

// CreateRun inserts a new run log entry
func (r *RunRepository) CreateRun(ctx context.Context, run *RunLog) error {
	insert := sq.Insert("sync_runs").
		Columns("id", "started_at", "completed_at", "status",
			"total_count", "uploaded_count", "error", "created_at").
		Values(run.ID, run.StartedAt, run.CompletedAt, run.Status,
			run.TotalCount, run.UploadedCount, nullableString(run.Error), run.StartedAt)

	sqlStr, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("failed to insert sync run: %w", err)
	}

	return nil
}

// UpdateRun updates an existing run log entry
func (r *RunRepository) UpdateRun(ctx context.Context, run *RunLog) error {
	update := sq.Update("sync_runs").
		Set("completed_at", run.CompletedAt).
		Set("status", run.Status).
		Set("total_count", run.TotalCount).
		Set("uploaded_count", run.UploadedCount).
		Set("error", nullableString(run.Error)).
		Where(sq.Eq{"id": run.ID})

	sqlStr, args, err := update.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("failed to update sync run: %w", err)
	}

	return nil
}

// GetRecentRuns returns the most recent runs, newest first
func (r *RunRepository) GetRecentRuns(ctx context.Context, limit int) ([]*RunLog, error) {
	if limit <= 0 {
		limit = 10
	}

	query := sq.Select("id", "started_at", "completed_at", "status",
		"total_count", "uploaded_count", "error").
		From("sync_runs").
		OrderBy("started_at DESC").
		Limit(uint64(limit))

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			r.logger.Warn("failed to close rows", "error", cerr)
		}
	}()

	var runs []*RunLog
	for rows.Next() {
		run := &RunLog{}
		var errMsg sql.NullString
		var completedAt sql.NullTime

		err := rows.Scan(&run.ID, &run.StartedAt, &completedAt, &run.Status,
			&run.TotalCount, &run.UploadedCount, &errMsg)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}

		if completedAt.Valid {
			t := completedAt.Time
			run.CompletedAt = &t
		}
		if errMsg.Valid {
			run.Error = errMsg.String
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync runs: %w", err)
	}

	return runs, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
