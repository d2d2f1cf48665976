package repository

import (
	"context"
	"testing"
	"time"

	"luybot/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisRepo(t *testing.T) (*RedisStateRepository, *miniredis.Miniredis) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisStateRepository(client, time.Hour), s
}

func TestRedisStateRepository(t *testing.T) {
	repo, _ := newTestRedisRepo(t)
	ctx := context.Background()

	t.Run("SetAndGetState", func(t *testing.T) {
		state := &models.UserState{
			UserID:      123,
			CurrentStep: models.StateReadingLesson,
			TempData:    map[string]interface{}{"day": 3},
		}

		err := repo.SetState(ctx, state)
		require.NoError(t, err)

		got, err := repo.GetState(ctx, 123)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, state.UserID, got.UserID)
		assert.Equal(t, state.CurrentStep, got.CurrentStep)
		assert.Equal(t, 3, got.GetInt("day"))
	})

	t.Run("GetNonExistentState", func(t *testing.T) {
		got, err := repo.GetState(ctx, 999)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ClearState", func(t *testing.T) {
		state := &models.UserState{UserID: 456, CurrentStep: "test"}
		repo.SetState(ctx, state)

		err := repo.ClearState(ctx, 456)
		require.NoError(t, err)

		got, _ := repo.GetState(ctx, 456)
		assert.Nil(t, got)
	})
}

func TestRedisRateLimit(t *testing.T) {
	repo, _ := newTestRedisRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := repo.CheckRateLimit(ctx, 1, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err := repo.CheckRateLimit(ctx, 1, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRedisCompletionToken(t *testing.T) {
	repo, s := newTestRedisRepo(t)
	ctx := context.Background()

	acquired, err := repo.AcquireCompletionToken(ctx, 7, 2, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, acquired)

	// Second tap within the TTL is a duplicate
	acquired, err = repo.AcquireCompletionToken(ctx, 7, 2, 10*time.Second)
	require.NoError(t, err)
	assert.False(t, acquired)

	// A different day is an independent token
	acquired, err = repo.AcquireCompletionToken(ctx, 7, 3, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, acquired)

	// After expiry the token is free again
	s.FastForward(11 * time.Second)
	acquired, err = repo.AcquireCompletionToken(ctx, 7, 2, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, acquired)

	// An explicit release frees the token without waiting out the TTL
	require.NoError(t, repo.ReleaseCompletionToken(ctx, 7, 2))
	acquired, err = repo.AcquireCompletionToken(ctx, 7, 2, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestRedisNilClient(t *testing.T) {
	repo := NewRedisStateRepository(nil, time.Hour)
	ctx := context.Background()

	_, err := repo.GetState(ctx, 1)
	assert.Error(t, err)

	err = repo.SetState(ctx, &models.UserState{UserID: 1})
	assert.Error(t, err)

	_, err = repo.AcquireCompletionToken(ctx, 1, 1, time.Second)
	assert.Error(t, err)
}
