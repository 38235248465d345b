package config

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strideworks/stridesync/internal/loggy"
)

func newMockRepo(t *testing.T) (*SQLSettingsRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewSQLSettingsRepository(db, loggy.NewNoopLogger()), mock
}

func TestGetValue(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT value FROM settings").
		WithArgs(KeyLastSyncedAt).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("2026-01-15T10:00:00Z"))

	value, err := repo.GetValue(context.Background(), KeyLastSyncedAt)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-15T10:00:00Z", value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetValueNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT value FROM settings").
		WithArgs("missing.key").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	_, err := repo.GetValue(context.Background(), "missing.key")
	assert.ErrorIs(t, err, ErrSettingNotFound)
}

func TestSetValueInsertsWhenMissing(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE settings").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO settings").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.SetValue(context.Background(), KeyDeviceName, "quiet-falcon")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetValueUpdatesExisting(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE settings").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetValue(context.Background(), KeyDeviceName, "quiet-falcon")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenObfuscationRoundTrip(t *testing.T) {
	token := "sk-live-abcdef123456"

	stored := obfuscateValue(KeyServerToken, token)
	assert.True(t, strings.HasPrefix(stored, obfuscationPrefix))
	assert.NotContains(t, stored, token)

	assert.Equal(t, token, deobfuscateValue(KeyServerToken, stored))
}

func TestObfuscationSkipsPlainKeys(t *testing.T) {
	assert.Equal(t, "hello", obfuscateValue(KeyDeviceName, "hello"))
	assert.Equal(t, "hello", deobfuscateValue(KeyDeviceName, "hello"))
}

func TestGetSettingsByPrefix(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "key", "value", "created_at", "updated_at"}).
		AddRow("set-01", KeyDeviceName, "quiet-falcon", now, now).
		AddRow("set-02", KeySyncEnabled, "true", now, now)

	mock.ExpectQuery("SELECT id, key, value, created_at, updated_at FROM settings").
		WithArgs("sync.%").
		WillReturnRows(rows)

	settings, err := repo.GetSettingsByPrefix(context.Background(), "sync.")
	require.NoError(t, err)
	require.Len(t, settings, 2)
	assert.Equal(t, KeyDeviceName, settings[0].Key)
	assert.Equal(t, "true", settings[1].Value)
}
