package repository

import (
	"context"
	"sync/atomic"
	"time"

	"luybot/internal/domain"
	"luybot/internal/models"

	"github.com/rs/zerolog"
)

// FailoverStateRepository serves from Redis while it is healthy and
// degrades to the in-memory repository when it is not, probing the
// primary again after a minute.
type FailoverStateRepository struct {
	primary   domain.StateRepository
	fallback  domain.StateRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck time.Time
}

func NewFailoverStateRepository(primary, fallback domain.StateRepository, logger *zerolog.Logger) *FailoverStateRepository {
	return &FailoverStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverStateRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary state repository failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck = time.Now()
}

func (r *FailoverStateRepository) shouldProbe() bool {
	return r.isDown.Load() && time.Since(r.lastCheck) > time.Minute
}

func (r *FailoverStateRepository) GetState(ctx context.Context, userID int64) (*models.UserState, error) {
	if !r.isDown.Load() {
		state, err := r.primary.GetState(ctx, userID)
		if err == nil {
			return state, nil
		}
		r.markDown(err)
	}

	if r.shouldProbe() {
		state, err := r.primary.GetState(ctx, userID)
		if err == nil {
			r.isDown.Store(false)
			return state, nil
		}
		r.lastCheck = time.Now()
	}

	return r.fallback.GetState(ctx, userID)
}

func (r *FailoverStateRepository) SetState(ctx context.Context, state *models.UserState) error {
	if !r.isDown.Load() {
		err := r.primary.SetState(ctx, state)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.SetState(ctx, state)
}

func (r *FailoverStateRepository) ClearState(ctx context.Context, userID int64) error {
	if !r.isDown.Load() {
		err := r.primary.ClearState(ctx, userID)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.ClearState(ctx, userID)
}

func (r *FailoverStateRepository) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	if !r.isDown.Load() {
		allowed, err := r.primary.CheckRateLimit(ctx, userID, limit, window)
		if err == nil {
			return allowed, nil
		}
		r.markDown(err)
	}

	return r.fallback.CheckRateLimit(ctx, userID, limit, window)
}

func (r *FailoverStateRepository) AcquireCompletionToken(ctx context.Context, userID int64, day int, ttl time.Duration) (bool, error) {
	if !r.isDown.Load() {
		acquired, err := r.primary.AcquireCompletionToken(ctx, userID, day, ttl)
		if err == nil {
			return acquired, nil
		}
		r.markDown(err)
	}

	return r.fallback.AcquireCompletionToken(ctx, userID, day, ttl)
}

func (r *FailoverStateRepository) ReleaseCompletionToken(ctx context.Context, userID int64, day int) error {
	if !r.isDown.Load() {
		err := r.primary.ReleaseCompletionToken(ctx, userID, day)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.ReleaseCompletionToken(ctx, userID, day)
}
