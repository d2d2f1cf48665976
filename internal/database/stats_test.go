package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"luybot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedUserWithProgress(t *testing.T, db *DB, telegramID int64, currentDay int, paid bool, lastActive time.Time) {
	t.Helper()
	ctx := context.Background()

	user := &models.User{
		TelegramID:   telegramID,
		FirstName:    "User",
		IsPaid:       paid,
		LastActivity: lastActive,
	}
	if paid {
		user.Tier = models.TierEssential
		user.PaidAt = sql.NullTime{Time: lastActive, Valid: true}
	}
	require.NoError(t, db.CreateOrUpdateUser(ctx, user))

	p := models.NewProgress(telegramID)
	p.CurrentDay = currentDay
	for day := 1; day < currentDay; day++ {
		p.Completed[day] = time.Now()
	}
	require.NoError(t, db.UpsertProgress(ctx, p))
}

func TestCountUsersByDay(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	seedUserWithProgress(t, db, 1, 1, true, time.Now())
	seedUserWithProgress(t, db, 2, 1, true, time.Now())
	seedUserWithProgress(t, db, 3, 4, true, time.Now())

	counts, err := db.CountUsersByDay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, counts[1])
	assert.Equal(t, 1, counts[4])
	assert.Zero(t, counts[2])
}

func TestGetStuckUsers(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	// Stuck: paid, unfinished, silent for 10 days
	seedUserWithProgress(t, db, 1, 3, true, time.Now().AddDate(0, 0, -10))
	// Active paid user is not stuck
	seedUserWithProgress(t, db, 2, 3, true, time.Now())
	// Unpaid user never appears
	seedUserWithProgress(t, db, 3, 1, false, time.Now().AddDate(0, 0, -10))

	stuck, err := db.GetStuckUsers(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, int64(1), stuck[0].User.TelegramID)
	assert.Equal(t, 3, stuck[0].CurrentDay)
}

func TestGetStuckUsersSkipsCompleted(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	seedUserWithProgress(t, db, 1, 7, true, time.Now().AddDate(0, 0, -10))

	p, err := db.GetProgress(ctx, 1)
	require.NoError(t, err)
	p.ProgramCompleted = true
	p.ProgramCompletedAt = time.Now()
	require.NoError(t, db.UpsertProgress(ctx, p))

	stuck, err := db.GetStuckUsers(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, stuck)
}

func TestCompletionCountsByDay(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	seedUserWithProgress(t, db, 1, 3, true, time.Now()) // days 1,2 done
	seedUserWithProgress(t, db, 2, 2, true, time.Now()) // day 1 done

	counts, err := db.CompletionCountsByDay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, counts[1])
	assert.Equal(t, 1, counts[2])
	assert.Zero(t, counts[3])
}

func TestCountCompletedPrograms(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	seedUserWithProgress(t, db, 1, 7, true, time.Now())

	count, err := db.CountCompletedPrograms(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	p, err := db.GetProgress(ctx, 1)
	require.NoError(t, err)
	p.ProgramCompleted = true
	require.NoError(t, db.UpsertProgress(ctx, p))

	count, err = db.CountCompletedPrograms(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
