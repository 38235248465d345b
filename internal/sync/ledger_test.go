package sync

import (
	"context"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strideworks/stridesync/internal/config"
	"github.com/strideworks/stridesync/internal/loggy"
)

// memSettings is an in-memory SettingsRepository for tests
type memSettings struct {
	mu     gosync.Mutex
	values map[string]string
	writes int
}

func newMemSettings() *memSettings {
	return &memSettings{values: make(map[string]string)}
}

func (m *memSettings) GetValue(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.values[key]
	if !ok {
		return "", config.ErrSettingNotFound
	}
	return value, nil
}

func (m *memSettings) SetValue(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	m.writes++
	return nil
}

func (m *memSettings) DeleteValue(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *memSettings) GetSettingsByPrefix(_ context.Context, prefix string) ([]*config.Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var settings []*config.Setting
	for k, v := range m.values {
		if strings.HasPrefix(k, prefix) {
			settings = append(settings, &config.Setting{Key: k, Value: v})
		}
	}
	return settings, nil
}

func TestLedgerCursorAbsentInitially(t *testing.T) {
	ledger := NewLedger(newMemSettings(), loggy.NewNoopLogger())

	_, ok, err := ledger.Cursor(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLedgerAdvanceCursorMonotonic(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(newMemSettings(), loggy.NewNoopLogger())

	later := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	earlier := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)

	require.NoError(t, ledger.AdvanceCursor(ctx, later))

	cursor, ok, err := ledger.Cursor(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, cursor.Equal(later))

	// An earlier time must not move the cursor backwards
	require.NoError(t, ledger.AdvanceCursor(ctx, earlier))

	cursor, _, err = ledger.Cursor(ctx)
	require.NoError(t, err)
	assert.True(t, cursor.Equal(later))
}

func TestLedgerMarkAndCheck(t *testing.T) {
	ctx := context.Background()
	store := newMemSettings()
	ledger := NewLedger(store, loggy.NewNoopLogger())

	require.NoError(t, ledger.MarkUploaded(ctx, []string{"act-1", "act-2"}))

	uploaded, err := ledger.IsUploaded(ctx, "act-1")
	require.NoError(t, err)
	assert.True(t, uploaded)

	uploaded, err = ledger.IsUploaded(ctx, "act-3")
	require.NoError(t, err)
	assert.False(t, uploaded)

	count, err := ledger.UploadedCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestLedgerMarkWritesThrough(t *testing.T) {
	ctx := context.Background()
	store := newMemSettings()
	ledger := NewLedger(store, loggy.NewNoopLogger())

	require.NoError(t, ledger.MarkUploaded(ctx, []string{"act-1"}))
	require.NoError(t, ledger.MarkUploaded(ctx, []string{"act-2"}))

	// A fresh ledger over the same store must see the persisted set
	fresh := NewLedger(store, loggy.NewNoopLogger())
	uploaded, err := fresh.IsUploaded(ctx, "act-2")
	require.NoError(t, err)
	assert.True(t, uploaded)
}

func TestLedgerReset(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(newMemSettings(), loggy.NewNoopLogger())

	require.NoError(t, ledger.AdvanceCursor(ctx, time.Now()))
	require.NoError(t, ledger.MarkUploaded(ctx, []string{"act-1"}))

	require.NoError(t, ledger.Reset(ctx))

	_, ok, err := ledger.Cursor(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	uploaded, err := ledger.IsUploaded(ctx, "act-1")
	require.NoError(t, err)
	assert.False(t, uploaded)
}
