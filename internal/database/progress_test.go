package database

import (
	"context"
	"testing"
	"time"

	"luybot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressUpsertAndGet(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	_, err := db.GetProgress(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)

	p := models.NewProgress(42)
	p.CurrentDay = 1
	p.ReadyForDay1 = true

	require.NoError(t, db.UpsertProgress(ctx, p))

	got, err := db.GetProgress(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.UserID)
	assert.Equal(t, 1, got.CurrentDay)
	assert.True(t, got.ReadyForDay1)
	assert.Empty(t, got.Completed)

	// Mutate and upsert again: update path of the same row
	now := time.Now().Truncate(time.Second)
	p.Completed[1] = now
	p.CurrentDay = 2
	p.Responses[1] = "my budget notes"
	require.NoError(t, db.UpsertProgress(ctx, p))

	got, err = db.GetProgress(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentDay)
	require.Contains(t, got.Completed, 1)
	assert.WithinDuration(t, now, got.Completed[1], time.Second)
	assert.Equal(t, "my budget notes", got.Responses[1])
}

func TestProgressProgramCompletion(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	p := models.NewProgress(7)
	p.CurrentDay = 7
	for day := 1; day <= 7; day++ {
		p.Completed[day] = time.Now()
	}
	p.ProgramCompleted = true
	p.ProgramCompletedAt = time.Now()

	require.NoError(t, db.UpsertProgress(ctx, p))

	got, err := db.GetProgress(ctx, 7)
	require.NoError(t, err)
	assert.True(t, got.ProgramCompleted)
	assert.False(t, got.ProgramCompletedAt.IsZero())
	assert.Len(t, got.Completed, 7)
}

func TestProgressExtendedMap(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	p := models.NewProgress(9)
	p.Extended[8] = time.Now()
	p.Extended[9] = time.Now()
	require.NoError(t, db.UpsertProgress(ctx, p))

	got, err := db.GetProgress(ctx, 9)
	require.NoError(t, err)
	assert.True(t, got.HasExtended(8))
	assert.True(t, got.HasExtended(9))
	assert.False(t, got.HasExtended(10))
}

func TestSetCurrentDay(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	p := models.NewProgress(5)
	p.CurrentDay = 4
	require.NoError(t, db.UpsertProgress(ctx, p))

	// Admin override may go backwards
	require.NoError(t, db.SetCurrentDay(ctx, 5, 2))

	got, err := db.GetProgress(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentDay)

	assert.ErrorIs(t, db.SetCurrentDay(ctx, 404, 1), ErrNotFound)
}

func TestListAllProgress(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		p := models.NewProgress(id)
		p.CurrentDay = int(id)
		require.NoError(t, db.UpsertProgress(ctx, p))
	}

	records, err := db.ListAllProgress(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, int64(1), records[0].UserID)
	assert.Equal(t, 3, records[2].CurrentDay)
}
