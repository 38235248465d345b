package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/strideworks/stridesync/internal/loggy"
)

// ErrActivityNotFound is returned when a requested activity does not exist
var ErrActivityNotFound = errors.New("activity not found")

var activityColumns = []string{
	"id", "workout_type", "distance", "started_at", "timezone_offset",
	"ended_at", "calories", "total_duration", "split_times", "samples",
}

// Repository provides access to locally stored activities. It implements
// Source for the sync engine.
type Repository struct {
	db     *sql.DB
	logger *loggy.Logger
}

// NewRepository creates a new activity repository
func NewRepository(db *sql.DB, logger *loggy.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create persists a new activity
func (r *Repository) Create(ctx context.Context, a *Activity) error {
	splitsJSON, err := json.Marshal(a.Splits)
	if err != nil {
		return fmt.Errorf("failed to marshal splits: %w", err)
	}

	samplesJSON, err := json.Marshal(a.Samples)
	if err != nil {
		return fmt.Errorf("failed to marshal samples: %w", err)
	}

	now := time.Now()
	insert := sq.Insert("activities").
		Columns(append(activityColumns, "created_at", "updated_at")...).
		Values(a.ID, string(a.Type), a.DistanceMiles, a.StartedAt, a.TimezoneOffset,
			a.EndedAt, a.Calories, a.TotalDuration(), string(splitsJSON), string(samplesJSON),
			now, now)

	sqlStr, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}

	return nil
}

// GetByID returns a single activity
func (r *Repository) GetByID(ctx context.Context, id string) (*Activity, error) {
	query := sq.Select(activityColumns...).
		From("activities").
		Where(sq.Eq{"id": id}).
		Limit(1)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	a, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrActivityNotFound
		}
		return nil, err
	}

	return a, nil
}

// FetchAll returns the full activity history, newest first
func (r *Repository) FetchAll(ctx context.Context) ([]*Activity, error) {
	query := sq.Select(activityColumns...).
		From("activities").
		OrderBy("ended_at DESC")

	return r.queryActivities(ctx, query)
}

// FetchSince returns activities ended strictly after cursor, newest first
func (r *Repository) FetchSince(ctx context.Context, cursor time.Time) ([]*Activity, error) {
	query := sq.Select(activityColumns...).
		From("activities").
		Where(sq.Gt{"ended_at": cursor}).
		OrderBy("ended_at DESC")

	return r.queryActivities(ctx, query)
}

// Count returns the total number of stored activities
func (r *Repository) Count(ctx context.Context) (int, error) {
	query := sq.Select("COUNT(*)").From("activities")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count activities: %w", err)
	}

	return count, nil
}

func (r *Repository) queryActivities(ctx context.Context, query sq.SelectBuilder) ([]*Activity, error) {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			r.logger.Warn("failed to close rows", "error", cerr)
		}
	}()

	var activities []*Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activities: %w", err)
	}

	return activities, nil
}

// scanner abstracts sql.Row and sql.Rows for scanning
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanActivity(row scanner) (*Activity, error) {
	var (
		a             Activity
		workoutType   string
		totalDuration float64
		splitsJSON    string
		samplesJSON   string
	)

	err := row.Scan(&a.ID, &workoutType, &a.DistanceMiles, &a.StartedAt, &a.TimezoneOffset,
		&a.EndedAt, &a.Calories, &totalDuration, &splitsJSON, &samplesJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to scan activity: %w", err)
	}

	a.Type = Type(workoutType)

	if err := json.Unmarshal([]byte(splitsJSON), &a.Splits); err != nil {
		return nil, fmt.Errorf("failed to unmarshal splits: %w", err)
	}
	if err := json.Unmarshal([]byte(samplesJSON), &a.Samples); err != nil {
		return nil, fmt.Errorf("failed to unmarshal samples: %w", err)
	}

	return &a, nil
}
