package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/strideworks/stridesync/internal/config"
	"github.com/strideworks/stridesync/internal/loggy"
)

// Ledger tracks what has already been uploaded: a cursor holding the
// end time of the most recently confirmed activity, and the set of IDs
// confirmed uploaded in the current cursor epoch. Every mutation writes
// through to the settings store; the in-memory copy is only a cache.
type Ledger struct {
	settings config.SettingsRepository
	logger   *loggy.Logger

	mu       gosync.Mutex
	ids      map[string]struct{}
	idsReady bool
}

// NewLedger creates a new dedup ledger backed by the settings store
func NewLedger(settings config.SettingsRepository, logger *loggy.Logger) *Ledger {
	return &Ledger{
		settings: settings,
		logger:   logger,
	}
}

// Cursor returns the persisted sync cursor. The second return value is
// false when no cursor has been persisted yet.
func (l *Ledger) Cursor(ctx context.Context) (time.Time, bool, error) {
	value, err := l.settings.GetValue(ctx, config.KeyLastSyncedAt)
	if err != nil {
		if errors.Is(err, config.ErrSettingNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to read cursor: %w", err)
	}

	cursor, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse cursor %q: %w", value, err)
	}

	return cursor, true, nil
}

// AdvanceCursor moves the cursor forward to the given time. Calls with
// a time at or before the current cursor are no-ops, protecting against
// out-of-order completions.
func (l *Ledger) AdvanceCursor(ctx context.Context, to time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok, err := l.Cursor(ctx)
	if err != nil {
		return err
	}
	if ok && !to.After(current) {
		l.logger.Debug("cursor advance skipped", "current", current, "to", to)
		return nil
	}

	if err := l.settings.SetValue(ctx, config.KeyLastSyncedAt, to.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to persist cursor: %w", err)
	}

	return nil
}

// MarkUploaded unions the given IDs into the persisted uploaded set
func (l *Ledger) MarkUploaded(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.loadIDsLocked(ctx); err != nil {
		return err
	}

	for _, id := range ids {
		l.ids[id] = struct{}{}
	}

	return l.persistIDsLocked(ctx)
}

// IsUploaded reports whether an ID has been confirmed uploaded
func (l *Ledger) IsUploaded(ctx context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.loadIDsLocked(ctx); err != nil {
		return false, err
	}

	_, ok := l.ids[id]
	return ok, nil
}

// UploadedCount returns the number of IDs in the uploaded set
func (l *Ledger) UploadedCount(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.loadIDsLocked(ctx); err != nil {
		return 0, err
	}

	return len(l.ids), nil
}

// Reset clears the cursor and the uploaded-ID set together
func (l *Ledger) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.settings.DeleteValue(ctx, config.KeyLastSyncedAt); err != nil {
		return fmt.Errorf("failed to clear cursor: %w", err)
	}

	if err := l.settings.DeleteValue(ctx, config.KeyUploadedIDs); err != nil {
		return fmt.Errorf("failed to clear uploaded IDs: %w", err)
	}

	l.ids = make(map[string]struct{})
	l.idsReady = true

	return nil
}

// loadIDsLocked populates the in-memory ID cache from the settings
// store on first use. Caller must hold l.mu.
func (l *Ledger) loadIDsLocked(ctx context.Context) error {
	if l.idsReady {
		return nil
	}

	l.ids = make(map[string]struct{})

	value, err := l.settings.GetValue(ctx, config.KeyUploadedIDs)
	if err != nil {
		if errors.Is(err, config.ErrSettingNotFound) {
			l.idsReady = true
			return nil
		}
		return fmt.Errorf("failed to read uploaded IDs: %w", err)
	}

	var ids []string
	if err := json.Unmarshal([]byte(value), &ids); err != nil {
		return fmt.Errorf("failed to parse uploaded IDs: %w", err)
	}

	for _, id := range ids {
		l.ids[id] = struct{}{}
	}

	l.idsReady = true
	return nil
}

// persistIDsLocked writes the in-memory ID set through to the settings
// store. Caller must hold l.mu.
func (l *Ledger) persistIDsLocked(ctx context.Context) error {
	ids := make([]string, 0, len(l.ids))
	for id := range l.ids {
		ids = append(ids, id)
	}

	encoded, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to encode uploaded IDs: %w", err)
	}

	if err := l.settings.SetValue(ctx, config.KeyUploadedIDs, string(encoded)); err != nil {
		return fmt.Errorf("failed to persist uploaded IDs: %w", err)
	}

	return nil
}
