// Package sync implements the activity synchronization engine: fetching
// locally recorded activities, batching them, uploading them to the
// remote server with retry, and tracking what has already been uploaded
// so that repeated runs are idempotent.
package sync

import (
	"errors"
	"fmt"
	"time"

	"github.com/strideworks/stridesync/internal/ulid"
)

// Phase identifies where a sync run currently is
type Phase string

// Sync run phases
const (
	PhaseIdle      Phase = "idle"
	PhaseFetching  Phase = "fetching_source"
	PhaseUploading Phase = "uploading"
	PhaseComplete  Phase = "complete"
	PhaseFailed    Phase = "failed"
)

// Terminal reports whether the phase ends a run
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseFailed
}

// Progress is a snapshot emitted on every phase transition and after
// every batch. All counters are monotonically non-decreasing within
// one run.
type Progress struct {
	Phase         Phase
	FetchedCount  int
	TotalToFetch  int
	UploadedCount int
	TotalToUpload int
	CurrentBatch  int
	TotalBatches  int
	Err           error // set only when Phase is PhaseFailed
}

// Sentinel errors surfaced by the engine
var (
	// ErrSyncInProgress is returned when a run is requested while
	// another is active
	ErrSyncInProgress = errors.New("sync already running")

	// ErrSyncDisabled is returned when syncing is turned off in settings
	ErrSyncDisabled = errors.New("sync is disabled")

	// ErrNotAuthenticated is returned when no credential is available;
	// no network attempt is made
	ErrNotAuthenticated = errors.New("not authenticated with sync server")

	// ErrCredentialRevoked is returned when the server reports the
	// credential is permanently invalid
	ErrCredentialRevoked = errors.New("server credential has been revoked")
)

// ErrorType classifies a failure for retry decisions
type ErrorType string

// Failure classes
const (
	ErrorTypeSourceUnavailable ErrorType = "source_unavailable"
	ErrorTypeNotAuthenticated  ErrorType = "not_authenticated"
	ErrorTypeTransient         ErrorType = "transient"
	ErrorTypeTerminal          ErrorType = "terminal"
)

// Run statuses persisted in the run log
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// RunLog records one sync run for diagnostics
type RunLog struct {
	ID            string
	StartedAt     time.Time
	CompletedAt   *time.Time
	Status        string
	TotalCount    int
	UploadedCount int
	Error         string
}

// NewRunLog creates a run log entry in the running state
func NewRunLog() *RunLog {
	return &RunLog{
		ID:        ulid.RunID(),
		StartedAt: time.Now(),
		Status:    RunStatusRunning,
	}
}

// MarkSuccessful finalizes the run log as succeeded
func (r *RunLog) MarkSuccessful(total, uploaded int) {
	now := time.Now()
	r.CompletedAt = &now
	r.Status = RunStatusSucceeded
	r.TotalCount = total
	r.UploadedCount = uploaded
}

// MarkFailed finalizes the run log as failed
func (r *RunLog) MarkFailed(total, uploaded int, err error) {
	now := time.Now()
	r.CompletedAt = &now
	r.Status = RunStatusFailed
	r.TotalCount = total
	r.UploadedCount = uploaded
	if err != nil {
		r.Error = err.Error()
	}
}

// Duration returns how long the run took, or how long it has been
// running when not yet complete
func (r *RunLog) Duration() time.Duration {
	if r.CompletedAt != nil {
		return r.CompletedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}

func (r *RunLog) String() string {
	return fmt.Sprintf("run %s [%s] uploaded %d/%d", r.ID, r.Status, r.UploadedCount, r.TotalCount)
}
