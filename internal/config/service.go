package config

import (
	"context"
	"errors"
	"strconv"

	"github.com/strideworks/stridesync/internal/loggy"
)

// SettingsService provides typed access to persisted settings
type SettingsService struct {
	repo   SettingsRepository
	logger *loggy.Logger
}

// NewSettingsService creates a new settings service
func NewSettingsService(repo SettingsRepository, logger *loggy.Logger) *SettingsService {
	return &SettingsService{
		repo:   repo,
		logger: logger,
	}
}

// GetString returns the string value for a key, or defaultValue when unset
func (s *SettingsService) GetString(ctx context.Context, key, defaultValue string) (string, error) {
	value, err := s.repo.GetValue(ctx, key)
	if err != nil {
		if errors.Is(err, ErrSettingNotFound) {
			return defaultValue, nil
		}
		return "", err
	}
	return value, nil
}

// SetString stores a string value for a key
func (s *SettingsService) SetString(ctx context.Context, key, value string) error {
	return s.repo.SetValue(ctx, key, value)
}

// GetBool returns the boolean value for a key, or defaultValue when unset
// or unparsable
func (s *SettingsService) GetBool(ctx context.Context, key string, defaultValue bool) (bool, error) {
	value, err := s.repo.GetValue(ctx, key)
	if err != nil {
		if errors.Is(err, ErrSettingNotFound) {
			return defaultValue, nil
		}
		return false, err
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		s.logger.Warn("unparsable boolean setting", "key", key, "value", value)
		return defaultValue, nil
	}
	return parsed, nil
}

// SetBool stores a boolean value for a key
func (s *SettingsService) SetBool(ctx context.Context, key string, value bool) error {
	return s.repo.SetValue(ctx, key, strconv.FormatBool(value))
}

// Delete removes a key
func (s *SettingsService) Delete(ctx context.Context, key string) error {
	return s.repo.DeleteValue(ctx, key)
}
