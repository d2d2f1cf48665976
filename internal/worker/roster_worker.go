package worker

import (
	"context"
	"time"

	"luybot/internal/domain"
	"luybot/internal/metrics"

	"github.com/rs/zerolog"
)

// RosterWorker mirrors the user roster and progress records into the
// shared spreadsheet. The sync is a full replace, so requests coalesce:
// a burst of completions triggers at most one pending sync.
type RosterWorker struct {
	repo        domain.Repository
	sheets      domain.SheetsWriter
	retryPolicy RetryPolicy
	trigger     chan struct{}
	debounce    time.Duration
	logger      *zerolog.Logger
}

func NewRosterWorker(repo domain.Repository, sheets domain.SheetsWriter, retry RetryPolicy, logger *zerolog.Logger) *RosterWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 1 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}

	return &RosterWorker{
		repo:        repo,
		sheets:      sheets,
		retryPolicy: retry,
		trigger:     make(chan struct{}, 1),
		debounce:    5 * time.Second,
		logger:      logger,
	}
}

// EnqueueRosterSync requests a sync. Never blocks: if one is already
// pending, the new request folds into it.
func (w *RosterWorker) EnqueueRosterSync(ctx context.Context) error {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
	return nil
}

// Start launches the sync loop; stops when ctx is done.
func (w *RosterWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("roster worker started")
	defer w.logger.Info().Msg("roster worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.trigger:
		}

		// Let a burst of triggers settle before exporting once.
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.debounce):
		}

		w.syncWithRetry(ctx)
	}
}

func (w *RosterWorker) syncWithRetry(ctx context.Context) {
	for attempt := 1; attempt <= w.retryPolicy.MaxRetries; attempt++ {
		err := w.syncOnce(ctx)
		if err == nil {
			metrics.IncRosterSync("ok")
			return
		}

		w.logger.Error().Err(err).Int("attempt", attempt).Msg("roster sync failed")
		if attempt == w.retryPolicy.MaxRetries {
			metrics.IncRosterSync("error")
			w.logger.Error().Msg("roster sync gave up; next trigger will retry")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.retryPolicy.NextDelay(attempt)):
		}
	}
}

func (w *RosterWorker) syncOnce(ctx context.Context) error {
	users, err := w.repo.GetAllUsers(ctx)
	if err != nil {
		return err
	}
	if err := w.sheets.ReplaceUsersSheet(ctx, users); err != nil {
		return err
	}

	records, err := w.repo.ListAllProgress(ctx)
	if err != nil {
		return err
	}
	return w.sheets.ReplaceProgressSheet(ctx, records)
}
