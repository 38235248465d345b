package sync

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strideworks/stridesync/internal/activity"
	"github.com/strideworks/stridesync/internal/loggy"
)

// scriptedClient returns one queued error per call, then succeeds
type scriptedClient struct {
	errs  []error
	calls int
	seen  [][]WorkoutUpload
	times []time.Time
}

func (c *scriptedClient) UploadWorkouts(_ context.Context, batch []WorkoutUpload) error {
	c.calls++
	c.seen = append(c.seen, batch)
	c.times = append(c.times, time.Now())
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		return err
	}
	return nil
}

func newTestUploader(client uploadClient) *Uploader {
	// Millisecond delays keep the retry schedule out of test runtime
	return NewUploader(client, 3, time.Millisecond, loggy.NewNoopLogger())
}

func TestUploadSuccessFirstAttempt(t *testing.T) {
	client := &scriptedClient{}
	uploader := newTestUploader(client)

	err := uploader.Upload(context.Background(), []*activity.Activity{testActivity("act-1")})
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)
	require.Len(t, client.seen, 1)
	assert.Equal(t, "act-1", client.seen[0][0].WorkoutID)
}

func TestUploadRetriesTransientThenSucceeds(t *testing.T) {
	client := &scriptedClient{errs: []error{
		&APIError{StatusCode: http.StatusServiceUnavailable},
		&APIError{StatusCode: http.StatusServiceUnavailable},
	}}
	uploader := newTestUploader(client)

	err := uploader.Upload(context.Background(), []*activity.Activity{testActivity("act-1")})
	require.NoError(t, err)
	assert.Equal(t, 3, client.calls)
}

func TestUploadExhaustsRetries(t *testing.T) {
	client := &scriptedClient{errs: []error{
		&APIError{StatusCode: http.StatusServiceUnavailable},
		&APIError{StatusCode: http.StatusServiceUnavailable},
		&APIError{StatusCode: http.StatusServiceUnavailable},
		&APIError{StatusCode: http.StatusServiceUnavailable},
	}}
	uploader := newTestUploader(client)

	err := uploader.Upload(context.Background(), []*activity.Activity{testActivity("act-1")})
	require.Error(t, err)
	// Three attempts total, never more
	assert.Equal(t, 3, client.calls)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
}

func TestUploadRetryDelaysDouble(t *testing.T) {
	client := &scriptedClient{errs: []error{
		&APIError{StatusCode: http.StatusServiceUnavailable},
		&APIError{StatusCode: http.StatusServiceUnavailable},
	}}

	base := 20 * time.Millisecond
	uploader := NewUploader(client, 3, base, loggy.NewNoopLogger())

	err := uploader.Upload(context.Background(), []*activity.Activity{testActivity("act-1")})
	require.NoError(t, err)
	require.Len(t, client.times, 3)

	first := client.times[1].Sub(client.times[0])
	second := client.times[2].Sub(client.times[1])

	// The waits follow the base delay doubling without jitter. Timers
	// can only overshoot, so the lower bounds are exact.
	assert.GreaterOrEqual(t, first, base)
	assert.GreaterOrEqual(t, second, 2*base)
	assert.Greater(t, second, first)
}

func TestUploadTerminalNotRetried(t *testing.T) {
	client := &scriptedClient{errs: []error{
		&APIError{StatusCode: http.StatusBadRequest, Message: "malformed"},
	}}
	uploader := newTestUploader(client)

	err := uploader.Upload(context.Background(), []*activity.Activity{testActivity("act-1")})
	require.Error(t, err)
	assert.Equal(t, 1, client.calls)
}

func TestUploadRevokedCredentialNotRetried(t *testing.T) {
	client := &scriptedClient{errs: []error{ErrCredentialRevoked}}
	uploader := newTestUploader(client)

	err := uploader.Upload(context.Background(), []*activity.Activity{testActivity("act-1")})
	assert.ErrorIs(t, err, ErrCredentialRevoked)
	assert.Equal(t, 1, client.calls)
}

func TestUploadEmptyBatch(t *testing.T) {
	client := &scriptedClient{}
	uploader := newTestUploader(client)

	require.NoError(t, uploader.Upload(context.Background(), nil))
	assert.Equal(t, 0, client.calls)
}
