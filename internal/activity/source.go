package activity

import (
	"context"
	"errors"
	"time"
)

// ErrSourceUnavailable is returned when the activity source cannot be
// read at all
var ErrSourceUnavailable = errors.New("activity source unavailable")

// Source supplies activity records to the sync engine. Implementations
// return records ordered newest-first.
type Source interface {
	// FetchAll returns the full activity history
	FetchAll(ctx context.Context) ([]*Activity, error)

	// FetchSince returns activities whose end time is strictly after
	// the given cursor
	FetchSince(ctx context.Context, cursor time.Time) ([]*Activity, error)
}
