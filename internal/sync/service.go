package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/strideworks/stridesync/internal/activity"
	"github.com/strideworks/stridesync/internal/config"
	"github.com/strideworks/stridesync/internal/loggy"
)

// DefaultBatchDelay is the pause between consecutive batches
const DefaultBatchDelay = 500 * time.Millisecond

// progressBuffer is the capacity of a run's progress channel
const progressBuffer = 64

// Service orchestrates sync runs. At most one run executes at a time;
// a second request while a run is active returns ErrSyncInProgress.
type Service struct {
	source   activity.Source
	ledger   *Ledger
	uploader *Uploader
	client   *Client
	runs     *RunRepository
	settings *config.SettingsService
	cfg      config.SyncConfig
	logger   *loggy.Logger

	mu      gosync.Mutex
	syncing bool
}

// NewService creates a new sync orchestrator
func NewService(
	source activity.Source,
	ledger *Ledger,
	uploader *Uploader,
	client *Client,
	runs *RunRepository,
	settings *config.SettingsService,
	cfg config.SyncConfig,
	logger *loggy.Logger,
) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = DefaultBatchDelay
	}

	return &Service{
		source:   source,
		ledger:   ledger,
		uploader: uploader,
		client:   client,
		runs:     runs,
		settings: settings,
		cfg:      cfg,
		logger:   logger,
	}
}

// IsSyncing reports whether a run is currently active
func (s *Service) IsSyncing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncing
}

// Run starts a sync run and returns its progress stream. The channel
// terminates after a Complete or Failed value; subscribe before
// consuming slowly, stale snapshots are dropped when the buffer fills
// but the terminal value is always delivered.
func (s *Service) Run(ctx context.Context) (<-chan Progress, error) {
	s.mu.Lock()
	if s.syncing {
		s.mu.Unlock()
		return nil, ErrSyncInProgress
	}
	s.syncing = true
	s.mu.Unlock()

	release := func() {
		s.mu.Lock()
		s.syncing = false
		s.mu.Unlock()
	}

	enabled, err := s.settings.GetBool(ctx, config.KeySyncEnabled, true)
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to read sync settings: %w", err)
	}
	if !enabled {
		release()
		return nil, ErrSyncDisabled
	}

	// No credential means no network attempt at all
	if s.client.Token() == "" {
		release()
		return nil, ErrNotAuthenticated
	}

	ch := make(chan Progress, progressBuffer)

	go func() {
		defer close(ch)
		defer release()
		s.run(ctx, ch)
	}()

	return ch, nil
}

// run executes one complete sync pass
func (s *Service) run(ctx context.Context, ch chan Progress) {
	runLog := NewRunLog()
	s.recordRunStart(ctx, runLog)

	emit(ch, Progress{Phase: PhaseFetching})

	records, err := s.fetchEligible(ctx)
	if err != nil {
		s.fail(ctx, ch, runLog, 0, 0, 0, 0, err)
		return
	}

	total := len(records)
	emit(ch, Progress{
		Phase:        PhaseFetching,
		FetchedCount: total,
		TotalToFetch: total,
	})

	if total == 0 {
		s.logger.Info("sync complete, nothing to upload")
		runLog.MarkSuccessful(0, 0)
		s.recordRunEnd(ctx, runLog)
		emit(ch, Progress{Phase: PhaseComplete})
		return
	}

	batches := Chunk(records, s.cfg.BatchSize)
	maxEnd := maxEndTime(records)
	uploaded := 0

	// The limiter starts with a full bucket, so the first batch goes
	// out immediately and each later batch waits out the batch delay
	limiter := rate.NewLimiter(rate.Every(s.cfg.BatchDelay), 1)

	for i, batch := range batches {
		if err := limiter.Wait(ctx); err != nil {
			s.fail(ctx, ch, runLog, total, uploaded, i+1, len(batches), fmt.Errorf("sync cancelled: %w", err))
			return
		}

		emit(ch, Progress{
			Phase:         PhaseUploading,
			FetchedCount:  total,
			TotalToFetch:  total,
			UploadedCount: uploaded,
			TotalToUpload: total,
			CurrentBatch:  i + 1,
			TotalBatches:  len(batches),
		})

		if err := s.uploader.Upload(ctx, batch); err != nil {
			s.fail(ctx, ch, runLog, total, uploaded, i+1, len(batches), err)
			return
		}

		ids := make([]string, 0, len(batch))
		for _, a := range batch {
			ids = append(ids, a.ID)
		}
		if err := s.ledger.MarkUploaded(ctx, ids); err != nil {
			s.fail(ctx, ch, runLog, total, uploaded, i+1, len(batches), err)
			return
		}

		uploaded += len(batch)
		emit(ch, Progress{
			Phase:         PhaseUploading,
			FetchedCount:  total,
			TotalToFetch:  total,
			UploadedCount: uploaded,
			TotalToUpload: total,
			CurrentBatch:  i + 1,
			TotalBatches:  len(batches),
		})
	}

	// The cursor moves only after the whole run succeeded; a failed
	// run resumes from the old cursor with already-marked batches
	// filtered out by the ledger
	if err := s.ledger.AdvanceCursor(ctx, maxEnd); err != nil {
		s.fail(ctx, ch, runLog, total, uploaded, len(batches), len(batches), err)
		return
	}

	s.logger.Info("sync complete", "uploaded", uploaded, "batches", len(batches))
	runLog.MarkSuccessful(total, uploaded)
	s.recordRunEnd(ctx, runLog)

	emit(ch, Progress{
		Phase:         PhaseComplete,
		FetchedCount:  total,
		TotalToFetch:  total,
		UploadedCount: uploaded,
		TotalToUpload: total,
		CurrentBatch:  len(batches),
		TotalBatches:  len(batches),
	})
}

// fetchEligible pulls records from the source and filters out those
// already confirmed uploaded
func (s *Service) fetchEligible(ctx context.Context) ([]*activity.Activity, error) {
	cursor, ok, err := s.ledger.Cursor(ctx)
	if err != nil {
		return nil, err
	}

	var records []*activity.Activity
	if ok {
		records, err = s.source.FetchSince(ctx, cursor)
	} else {
		records, err = s.source.FetchAll(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", activity.ErrSourceUnavailable, err)
	}

	// The fetch window can legitimately overlap a partially failed
	// earlier run, so re-check every ID against the ledger
	eligible := make([]*activity.Activity, 0, len(records))
	for _, a := range records {
		done, err := s.ledger.IsUploaded(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		if !done {
			eligible = append(eligible, a)
		}
	}

	return eligible, nil
}

// UnsyncedCount returns how many activities are waiting to be uploaded
func (s *Service) UnsyncedCount(ctx context.Context) (int, error) {
	records, err := s.fetchEligible(ctx)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Reset clears the cursor and uploaded-ID set. The next run performs a
// full initial sync.
func (s *Service) Reset(ctx context.Context) error {
	s.mu.Lock()
	if s.syncing {
		s.mu.Unlock()
		return ErrSyncInProgress
	}
	s.mu.Unlock()

	return s.ledger.Reset(ctx)
}

// Cursor returns the persisted sync cursor; the second value is false
// when no successful run has completed yet
func (s *Service) Cursor(ctx context.Context) (time.Time, bool, error) {
	return s.ledger.Cursor(ctx)
}

// RecentRuns returns the most recent run log entries
func (s *Service) RecentRuns(ctx context.Context, limit int) ([]*RunLog, error) {
	if s.runs == nil {
		return nil, nil
	}
	return s.runs.GetRecentRuns(ctx, limit)
}

// fail finalizes a run. The batch counters carry the last values the
// upload loop reached so the terminal snapshot never moves backwards.
func (s *Service) fail(ctx context.Context, ch chan Progress, runLog *RunLog, total, uploaded, currentBatch, totalBatches int, err error) {
	s.logger.Error("sync failed",
		"error", err,
		"class", string(ClassifyError(err)),
		"uploaded", uploaded,
		"total", total,
	)

	runLog.MarkFailed(total, uploaded, err)
	s.recordRunEnd(ctx, runLog)

	emit(ch, Progress{
		Phase:         PhaseFailed,
		FetchedCount:  total,
		TotalToFetch:  total,
		UploadedCount: uploaded,
		TotalToUpload: total,
		CurrentBatch:  currentBatch,
		TotalBatches:  totalBatches,
		Err:           err,
	})
}

func (s *Service) recordRunStart(ctx context.Context, runLog *RunLog) {
	if s.runs == nil {
		return
	}
	if err := s.runs.CreateRun(ctx, runLog); err != nil {
		s.logger.Warn("failed to record sync run", "error", err)
	}
}

func (s *Service) recordRunEnd(ctx context.Context, runLog *RunLog) {
	if s.runs == nil {
		return
	}
	if err := s.runs.UpdateRun(ctx, runLog); err != nil {
		s.logger.Warn("failed to update sync run", "error", err)
	}
}

// emit delivers a progress snapshot. Non-terminal snapshots are dropped
// when the consumer is not keeping up; a terminal snapshot evicts stale
// values until it fits, so it is always delivered.
func emit(ch chan Progress, p Progress) {
	if !p.Phase.Terminal() {
		select {
		case ch <- p:
		default:
		}
		return
	}

	for {
		select {
		case ch <- p:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

func maxEndTime(records []*activity.Activity) time.Time {
	var max time.Time
	for _, a := range records {
		if a.EndedAt.After(max) {
			max = a.EndedAt
		}
	}
	return max
}
