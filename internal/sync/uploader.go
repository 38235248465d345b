package sync

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/strideworks/stridesync/internal/activity"
	"github.com/strideworks/stridesync/internal/loggy"
)

// Upload retry defaults
const (
	DefaultMaxAttempts    = 3
	DefaultRetryBaseDelay = 2 * time.Second
)

// uploadClient is the slice of Client the uploader needs
type uploadClient interface {
	UploadWorkouts(ctx context.Context, batch []WorkoutUpload) error
}

// Uploader sends batches of activities to the server, retrying
// transient failures with exponential backoff. Batches are all-or-
// nothing: a batch either uploads completely or the error for the
// whole batch is returned. The uploader holds no ledger state.
type Uploader struct {
	client      uploadClient
	maxAttempts int
	baseDelay   time.Duration
	logger      *loggy.Logger
}

// NewUploader creates a new batch uploader. maxAttempts is the total
// number of attempts including the first; baseDelay is the wait before
// the first retry and doubles on each subsequent one.
func NewUploader(client uploadClient, maxAttempts int, baseDelay time.Duration, logger *loggy.Logger) *Uploader {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultRetryBaseDelay
	}

	return &Uploader{
		client:      client,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		logger:      logger,
	}
}

// Upload sends one batch, retrying transient failures
func (u *Uploader) Upload(ctx context.Context, batch []*activity.Activity) error {
	if len(batch) == 0 {
		return nil
	}

	payload := make([]WorkoutUpload, 0, len(batch))
	for _, a := range batch {
		payload = append(payload, NewWorkoutUpload(a))
	}

	attempt := 0
	operation := func() error {
		attempt++

		err := u.client.UploadWorkouts(ctx, payload)
		if err == nil {
			return nil
		}

		if ClassifyError(err) == ErrorTypeTerminal {
			u.logger.Error("batch upload failed permanently",
				"attempt", attempt, "count", len(payload), "error", err)
			return backoff.Permanent(err)
		}

		u.logger.Warn("batch upload failed, will retry",
			"attempt", attempt, "count", len(payload), "error", err)
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = u.baseDelay
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	return backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(u.maxAttempts-1)), ctx))
}

// ClassifyError maps a failure to its retry class. Credential
// revocation and malformed requests are terminal; auth failures that
// survived the refresh path, server errors, and network errors are
// transient.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}

	if errors.Is(err, ErrNotAuthenticated) {
		return ErrorTypeNotAuthenticated
	}
	if errors.Is(err, ErrCredentialRevoked) {
		return ErrorTypeTerminal
	}
	if errors.Is(err, activity.ErrSourceUnavailable) {
		return ErrorTypeSourceUnavailable
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsAuthError():
			return ErrorTypeTransient
		case apiErr.IsServerError():
			return ErrorTypeTransient
		default:
			// Remaining 4xx means the request itself is malformed;
			// retrying the same payload cannot succeed
			return ErrorTypeTerminal
		}
	}

	// Timeouts and transport errors
	return ErrorTypeTransient
}
