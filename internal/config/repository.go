package config

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/strideworks/stridesync/internal/loggy"
	"github.com/strideworks/stridesync/internal/ulid"
)

// Well-known settings keys used by the sync engine
const (
	KeyLastSyncedAt   = "sync.last_synced_at"
	KeyUploadedIDs    = "sync.uploaded_ids"
	KeyPendingUploads = "sync.pending_uploads"
	KeyServerToken    = "sync.server_token"
	KeyServerURL      = "sync.server_url"
	KeyDeviceName     = "sync.device_name"
	KeySyncEnabled    = "sync.enabled"
)

// obfuscationPrefix marks values that are stored obfuscated
const obfuscationPrefix = "OBFS:"

// ErrSettingNotFound is returned when a requested setting does not exist
var ErrSettingNotFound = errors.New("setting not found")

// Setting represents a persisted key/value pair
type Setting struct {
	ID        string
	Key       string
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SettingsRepository provides access to persisted settings
type SettingsRepository interface {
	// GetValue returns the value for a key, or ErrSettingNotFound
	GetValue(ctx context.Context, key string) (string, error)

	// SetValue creates or updates the value for a key
	SetValue(ctx context.Context, key, value string) error

	// DeleteValue removes a key; deleting a missing key is not an error
	DeleteValue(ctx context.Context, key string) error

	// GetSettingsByPrefix returns all settings whose keys start with prefix
	GetSettingsByPrefix(ctx context.Context, prefix string) ([]*Setting, error)
}

// SQLSettingsRepository implements SettingsRepository using SQLite
type SQLSettingsRepository struct {
	db     *sql.DB
	logger *loggy.Logger
}

// NewSQLSettingsRepository creates a new SQL settings repository
func NewSQLSettingsRepository(db *sql.DB, logger *loggy.Logger) *SQLSettingsRepository {
	return &SQLSettingsRepository{
		db:     db,
		logger: logger,
	}
}

// GetValue returns the value for a key
func (r *SQLSettingsRepository) GetValue(ctx context.Context, key string) (string, error) {
	query := sq.Select("value").
		From("settings").
		Where(sq.Eq{"key": key}).
		Limit(1)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return "", fmt.Errorf("failed to build query: %w", err)
	}

	var value string
	err = r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrSettingNotFound
		}
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}

	return deobfuscateValue(key, value), nil
}

// SetValue creates or updates the value for a key
func (r *SQLSettingsRepository) SetValue(ctx context.Context, key, value string) error {
	stored := obfuscateValue(key, value)
	now := time.Now()

	// Update first; insert when no row matched
	update := sq.Update("settings").
		Set("value", stored).
		Set("updated_at", now).
		Where(sq.Eq{"key": key})

	sqlStr, args, err := update.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("failed to update setting %s: %w", key, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected > 0 {
		return nil
	}

	insert := sq.Insert("settings").
		Columns("id", "key", "value", "created_at", "updated_at").
		Values(ulid.SettingID(), key, stored, now, now)

	sqlStr, args, err = insert.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("failed to insert setting %s: %w", key, err)
	}

	return nil
}

// DeleteValue removes a key
func (r *SQLSettingsRepository) DeleteValue(ctx context.Context, key string) error {
	del := sq.Delete("settings").Where(sq.Eq{"key": key})

	sqlStr, args, err := del.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}

	return nil
}

// GetSettingsByPrefix returns all settings whose keys start with prefix
func (r *SQLSettingsRepository) GetSettingsByPrefix(ctx context.Context, prefix string) ([]*Setting, error) {
	query := sq.Select("id", "key", "value", "created_at", "updated_at").
		From("settings").
		Where(sq.Like{"key": prefix + "%"}).
		OrderBy("key ASC")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			r.logger.Warn("failed to close rows", "error", cerr)
		}
	}()

	var settings []*Setting
	for rows.Next() {
		s := &Setting{}
		if err := rows.Scan(&s.ID, &s.Key, &s.Value, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		s.Value = deobfuscateValue(s.Key, s.Value)
		settings = append(settings, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settings: %w", err)
	}

	return settings, nil
}

// isSensitiveKey reports whether the key's value should be obfuscated at rest
func isSensitiveKey(key string) bool {
	return key == KeyServerToken || strings.HasSuffix(key, ".token")
}

// obfuscateValue lightly obscures sensitive values before storage. This is
// not encryption; it only keeps tokens out of casual database dumps.
func obfuscateValue(key, value string) string {
	if !isSensitiveKey(key) || value == "" {
		return value
	}

	runes := []rune(value)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}

	return obfuscationPrefix + base64.StdEncoding.EncodeToString([]byte(string(runes)))
}

// deobfuscateValue reverses obfuscateValue. Values without the marker
// prefix are returned unchanged.
func deobfuscateValue(key, value string) string {
	if !isSensitiveKey(key) || !strings.HasPrefix(value, obfuscationPrefix) {
		return value
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, obfuscationPrefix))
	if err != nil {
		// Stored value is mangled; return it as-is rather than lose it
		return value
	}

	runes := []rune(string(decoded))
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}

	return string(runes)
}
