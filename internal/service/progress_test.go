package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"luybot/internal/content"
	"luybot/internal/database"
	"luybot/internal/domain"
	"luybot/internal/events"
	"luybot/internal/models"
	"luybot/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) CreateOrUpdateUser(ctx context.Context, u *models.User) error {
	return m.Called(ctx, u).Error(0)
}
func (m *mockRepo) GetUserByTelegramID(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}
func (m *mockRepo) SetUserPaid(ctx context.Context, id int64, tier string, price float64) error {
	return m.Called(ctx, id, tier, price).Error(0)
}
func (m *mockRepo) UpdateUserActivity(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}
func (m *mockRepo) GetAllUsers(ctx context.Context) ([]*models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}
func (m *mockRepo) GetPaidUsers(ctx context.Context, activeWithinDays int) ([]*models.User, error) {
	args := m.Called(ctx, activeWithinDays)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}
func (m *mockRepo) GetActiveUsers(ctx context.Context, days int) ([]*models.User, error) {
	args := m.Called(ctx, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}
func (m *mockRepo) GetProgress(ctx context.Context, userID int64) (*models.Progress, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Progress), args.Error(1)
}
func (m *mockRepo) UpsertProgress(ctx context.Context, p *models.Progress) error {
	return m.Called(ctx, p).Error(0)
}
func (m *mockRepo) SetCurrentDay(ctx context.Context, userID int64, day int) error {
	return m.Called(ctx, userID, day).Error(0)
}
func (m *mockRepo) ListAllProgress(ctx context.Context) ([]*models.Progress, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Progress), args.Error(1)
}
func (m *mockRepo) CountUsersByDay(ctx context.Context) (map[int]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int]int), args.Error(1)
}
func (m *mockRepo) CountCompletedPrograms(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
func (m *mockRepo) GetStuckUsers(ctx context.Context, staleDays int) ([]*database.StuckUser, error) {
	args := m.Called(ctx, staleDays)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*database.StuckUser), args.Error(1)
}
func (m *mockRepo) CompletionCountsByDay(ctx context.Context) (map[int]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int]int), args.Error(1)
}

type mockStates struct {
	mock.Mock
}

func (m *mockStates) GetUserState(ctx context.Context, userID int64) (*models.UserState, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserState), args.Error(1)
}
func (m *mockStates) SetUserState(ctx context.Context, userID int64, step string, data map[string]interface{}) error {
	return m.Called(ctx, userID, step, data).Error(0)
}
func (m *mockStates) ClearUserState(ctx context.Context, userID int64) error {
	return m.Called(ctx, userID).Error(0)
}
func (m *mockStates) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, userID, limit, window)
	return args.Bool(0), args.Error(1)
}
func (m *mockStates) AcquireCompletionToken(ctx context.Context, userID int64, day int, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, userID, day, ttl)
	return args.Bool(0), args.Error(1)
}
func (m *mockStates) ReleaseCompletionToken(ctx context.Context, userID int64, day int) error {
	return m.Called(ctx, userID, day).Error(0)
}

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(et string, p interface{}) error { return m.Called(et, p).Error(0) }

func testCatalog(t *testing.T) *content.Catalog {
	t.Helper()
	lessons := make([]content.Lesson, 0, 9)
	for day := 1; day <= 7; day++ {
		lessons = append(lessons, content.Lesson{Day: day, Title: "មេរៀន", Body: "អត្ថបទមេរៀន"})
	}
	lessons = append(lessons,
		content.Lesson{Day: 10, Title: "បន្ថែម", Body: "មាតិកាបន្ថែម"},
		content.Lesson{Day: 15, Title: "បន្ថែម", Body: "មាតិកាបន្ថែម"},
	)
	catalog, err := content.New(lessons, []string{"កុំបោះបង់!"}, []string{"សង្ខេបសប្តាហ៍"}, "អបអរសាទរ!", 7, 30)
	require.NoError(t, err)
	return catalog
}

func newTestEngine(t *testing.T) (*ProgressEngine, *mockRepo, *mockStates, *mockEventBus) {
	t.Helper()
	repo := new(mockRepo)
	states := new(mockStates)
	bus := new(mockEventBus)
	logger := zerolog.New(io.Discard)
	engine := NewProgressEngine(repo, testCatalog(t), states, bus, &logger)
	return engine, repo, states, bus
}

func paidUser(id int64) *models.User {
	return &models.User{TelegramID: id, IsPaid: true, Tier: models.TierEssential}
}

func TestOpenDay(t *testing.T) {
	ctx := context.Background()

	t.Run("UnknownDay", func(t *testing.T) {
		engine, _, _, _ := newTestEngine(t)

		_, err := engine.OpenDay(ctx, 1, 0)
		assert.ErrorIs(t, err, ErrUnknownDay)

		_, err = engine.OpenDay(ctx, 1, 8)
		assert.ErrorIs(t, err, ErrUnknownDay)
	})

	t.Run("NotPaid", func(t *testing.T) {
		engine, repo, _, _ := newTestEngine(t)
		repo.On("GetUserByTelegramID", ctx, int64(1)).Return(&models.User{TelegramID: 1}, nil).Once()

		_, err := engine.OpenDay(ctx, 1, 1)
		assert.ErrorIs(t, err, ErrNotPaid)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		engine, repo, _, _ := newTestEngine(t)
		repo.On("GetUserByTelegramID", ctx, int64(404)).Return(nil, database.ErrNotFound).Once()

		_, err := engine.OpenDay(ctx, 404, 1)
		assert.ErrorIs(t, err, ErrNotPaid)
	})

	t.Run("Day1ProvisionsMissingRecord", func(t *testing.T) {
		engine, repo, _, _ := newTestEngine(t)
		repo.On("GetUserByTelegramID", ctx, int64(2)).Return(paidUser(2), nil).Once()
		repo.On("GetProgress", ctx, int64(2)).Return(nil, database.ErrNotFound).Once()
		repo.On("UpsertProgress", ctx, mock.MatchedBy(func(p *models.Progress) bool {
			return p.UserID == 2 && p.CurrentDay == 1 && p.ReadyForDay1
		})).Return(nil).Once()
		repo.On("UpdateUserActivity", ctx, int64(2)).Return(nil).Once()

		view, err := engine.OpenDay(ctx, 2, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, view.Lesson.Day)
		assert.Empty(t, view.CompletedDays)
		repo.AssertExpectations(t)
	})

	t.Run("LaterDayWithoutRecord", func(t *testing.T) {
		engine, repo, _, _ := newTestEngine(t)
		repo.On("GetUserByTelegramID", ctx, int64(3)).Return(paidUser(3), nil).Once()
		repo.On("GetProgress", ctx, int64(3)).Return(nil, database.ErrNotFound).Once()

		_, err := engine.OpenDay(ctx, 3, 2)
		assert.ErrorIs(t, err, ErrNoProgress)
	})

	t.Run("LockedDay", func(t *testing.T) {
		engine, repo, _, _ := newTestEngine(t)
		progress := models.NewProgress(4)
		progress.CurrentDay = 2
		progress.Completed[1] = time.Now()

		repo.On("GetUserByTelegramID", ctx, int64(4)).Return(paidUser(4), nil).Once()
		repo.On("GetProgress", ctx, int64(4)).Return(progress, nil).Once()

		_, err := engine.OpenDay(ctx, 4, 5)
		assert.ErrorIs(t, err, ErrDayLocked)
	})

	t.Run("RevisitCompletedDay", func(t *testing.T) {
		engine, repo, _, _ := newTestEngine(t)
		progress := models.NewProgress(5)
		progress.CurrentDay = 4
		for day := 1; day <= 3; day++ {
			progress.Completed[day] = time.Now()
		}

		repo.On("GetUserByTelegramID", ctx, int64(5)).Return(paidUser(5), nil).Once()
		repo.On("GetProgress", ctx, int64(5)).Return(progress, nil).Once()
		repo.On("UpdateUserActivity", ctx, int64(5)).Return(nil).Once()

		view, err := engine.OpenDay(ctx, 5, 2)
		require.NoError(t, err)
		assert.Equal(t, 2, view.Lesson.Day)
		assert.Equal(t, []int{1, 2, 3}, view.CompletedDays)
		assert.Equal(t, 43, view.Percent)
		repo.AssertExpectations(t)
	})

	t.Run("StoreFailure", func(t *testing.T) {
		engine, repo, _, _ := newTestEngine(t)
		repo.On("GetUserByTelegramID", ctx, int64(6)).Return(nil, errors.New("disk gone")).Once()

		_, err := engine.OpenDay(ctx, 6, 1)
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})
}

func TestMarkDayComplete(t *testing.T) {
	ctx := context.Background()
	tokenTTL := models.CompletionTokenTTL * time.Second

	t.Run("RecordsAndAdvances", func(t *testing.T) {
		engine, repo, states, bus := newTestEngine(t)
		progress := models.NewProgress(1)
		progress.CurrentDay = 3
		progress.Completed[1] = time.Now()
		progress.Completed[2] = time.Now()

		states.On("AcquireCompletionToken", ctx, int64(1), 3, tokenTTL).Return(true, nil).Once()
		repo.On("GetProgress", ctx, int64(1)).Return(progress, nil).Once()
		repo.On("UpsertProgress", ctx, mock.MatchedBy(func(p *models.Progress) bool {
			return p.CurrentDay == 4 && p.IsCompleted(3) && !p.ProgramCompleted
		})).Return(nil).Once()
		repo.On("UpdateUserActivity", ctx, int64(1)).Return(nil).Once()
		bus.On("PublishJSON", events.EventDayCompleted, mock.Anything).Return(nil).Once()

		result := engine.MarkDayComplete(ctx, 1, 3)
		require.NoError(t, result.Err)
		assert.True(t, result.Recorded)
		assert.False(t, result.Duplicate)
		assert.Equal(t, 4, result.NewCurrentDay)
		repo.AssertExpectations(t)
		bus.AssertExpectations(t)
	})

	t.Run("DoubleTapIsDeduplicated", func(t *testing.T) {
		engine, repo, states, _ := newTestEngine(t)
		states.On("AcquireCompletionToken", ctx, int64(2), 1, tokenTTL).Return(false, nil).Once()

		result := engine.MarkDayComplete(ctx, 2, 1)
		require.NoError(t, result.Err)
		assert.True(t, result.Duplicate)
		assert.False(t, result.Recorded)
		repo.AssertNotCalled(t, "UpsertProgress", mock.Anything, mock.Anything)
	})

	t.Run("BrokenTokenStoreDoesNotBlock", func(t *testing.T) {
		engine, repo, states, bus := newTestEngine(t)
		progress := models.NewProgress(3)
		progress.CurrentDay = 1

		states.On("AcquireCompletionToken", ctx, int64(3), 1, tokenTTL).Return(false, errors.New("redis down")).Once()
		repo.On("GetProgress", ctx, int64(3)).Return(progress, nil).Once()
		repo.On("UpsertProgress", ctx, mock.Anything).Return(nil).Once()
		repo.On("UpdateUserActivity", ctx, int64(3)).Return(nil).Once()
		bus.On("PublishJSON", events.EventDayCompleted, mock.Anything).Return(nil).Once()

		result := engine.MarkDayComplete(ctx, 3, 1)
		require.NoError(t, result.Err)
		assert.True(t, result.Recorded)
	})

	t.Run("SkippingAheadIsRejected", func(t *testing.T) {
		engine, repo, states, _ := newTestEngine(t)
		progress := models.NewProgress(4)
		progress.CurrentDay = 1

		states.On("AcquireCompletionToken", ctx, int64(4), 3, tokenTTL).Return(true, nil).Once()
		states.On("ReleaseCompletionToken", ctx, int64(4), 3).Return(nil).Once()
		repo.On("GetProgress", ctx, int64(4)).Return(progress, nil).Once()

		result := engine.MarkDayComplete(ctx, 4, 3)
		assert.ErrorIs(t, result.Err, ErrDayLocked)
		repo.AssertNotCalled(t, "UpsertProgress", mock.Anything, mock.Anything)
		states.AssertExpectations(t)
	})

	t.Run("LastDayCompletesProgram", func(t *testing.T) {
		engine, repo, states, bus := newTestEngine(t)
		progress := models.NewProgress(5)
		progress.CurrentDay = 7
		for day := 1; day <= 6; day++ {
			progress.Completed[day] = time.Now()
		}

		states.On("AcquireCompletionToken", ctx, int64(5), 7, tokenTTL).Return(true, nil).Once()
		repo.On("GetProgress", ctx, int64(5)).Return(progress, nil).Once()
		repo.On("UpsertProgress", ctx, mock.MatchedBy(func(p *models.Progress) bool {
			return p.ProgramCompleted && !p.ProgramCompletedAt.IsZero() && p.CurrentDay == 7
		})).Return(nil).Once()
		repo.On("UpdateUserActivity", ctx, int64(5)).Return(nil).Once()
		bus.On("PublishJSON", events.EventDayCompleted, mock.Anything).Return(nil).Once()
		bus.On("PublishJSON", events.EventProgramCompleted, mock.Anything).Return(nil).Once()

		result := engine.MarkDayComplete(ctx, 5, 7)
		require.NoError(t, result.Err)
		assert.True(t, result.ProgramCompleted)
		bus.AssertExpectations(t)
	})

	t.Run("RemarkingLastDayKeepsOriginalStamp", func(t *testing.T) {
		engine, repo, states, _ := newTestEngine(t)
		completedAt := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
		progress := models.NewProgress(6)
		progress.CurrentDay = 7
		for day := 1; day <= 7; day++ {
			progress.Completed[day] = completedAt
		}
		progress.ProgramCompleted = true
		progress.ProgramCompletedAt = completedAt

		states.On("AcquireCompletionToken", ctx, int64(6), 7, tokenTTL).Return(true, nil).Once()
		repo.On("GetProgress", ctx, int64(6)).Return(progress, nil).Once()
		repo.On("UpsertProgress", ctx, mock.MatchedBy(func(p *models.Progress) bool {
			return p.ProgramCompletedAt.Equal(completedAt)
		})).Return(nil).Once()
		repo.On("UpdateUserActivity", ctx, int64(6)).Return(nil).Once()

		result := engine.MarkDayComplete(ctx, 6, 7)
		require.NoError(t, result.Err)
		// Already completed: no events fire a second time
		repo.AssertExpectations(t)
	})

	t.Run("StorageFailureIsReported", func(t *testing.T) {
		engine, repo, states, _ := newTestEngine(t)
		progress := models.NewProgress(7)
		progress.CurrentDay = 1

		states.On("AcquireCompletionToken", ctx, int64(7), 1, tokenTTL).Return(true, nil).Once()
		states.On("ReleaseCompletionToken", ctx, int64(7), 1).Return(nil).Once()
		repo.On("GetProgress", ctx, int64(7)).Return(progress, nil).Once()
		repo.On("UpsertProgress", ctx, mock.Anything).Return(errors.New("disk full")).Once()

		result := engine.MarkDayComplete(ctx, 7, 1)
		assert.ErrorIs(t, result.Err, ErrStoreUnavailable)
		assert.False(t, result.Recorded)
		states.AssertExpectations(t)
	})

	// A failed write must not leave the dedup token behind: the user's
	// immediate retry has to go through, not be answered as a duplicate.
	t.Run("RetryAfterFailedWriteIsNotDeduplicated", func(t *testing.T) {
		repo := new(mockRepo)
		bus := new(mockEventBus)
		logger := zerolog.New(io.Discard)
		tokens := NewStateService(repository.NewMemoryStateRepository(time.Minute), &logger)
		engine := NewProgressEngine(repo, testCatalog(t), tokens, bus, &logger)

		// Fresh record per read: the failed write left nothing behind
		first := models.NewProgress(8)
		first.CurrentDay = 1
		second := models.NewProgress(8)
		second.CurrentDay = 1

		repo.On("GetProgress", ctx, int64(8)).Return(first, nil).Once()
		repo.On("GetProgress", ctx, int64(8)).Return(second, nil).Once()
		repo.On("UpsertProgress", ctx, mock.Anything).Return(errors.New("disk full")).Once()
		repo.On("UpsertProgress", ctx, mock.Anything).Return(nil).Once()
		repo.On("UpdateUserActivity", ctx, int64(8)).Return(nil).Once()
		bus.On("PublishJSON", events.EventDayCompleted, mock.Anything).Return(nil).Once()

		res := engine.MarkDayComplete(ctx, 8, 1)
		assert.ErrorIs(t, res.Err, ErrStoreUnavailable)
		assert.False(t, res.Duplicate)

		res = engine.MarkDayComplete(ctx, 8, 1)
		require.NoError(t, res.Err)
		assert.True(t, res.Recorded)
		assert.False(t, res.Duplicate)
		repo.AssertExpectations(t)
		bus.AssertExpectations(t)
	})
}

func TestComputeStreak(t *testing.T) {
	tests := []struct {
		name string
		days []int
		want int
	}{
		{"Empty", nil, 0},
		{"SingleDay", []int{1}, 1},
		{"FullRun", []int{1, 2, 3}, 3},
		{"GapResets", []int{1, 3}, 1},
		{"TrailingRunWins", []int{1, 2, 4, 5, 6}, 3},
		{"Unordered", []int{6, 4, 5, 2, 1}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeStreak(tt.days))
		})
	}
}

func TestRenderProgressBar(t *testing.T) {
	bar := RenderProgressBar(3, 7)
	assert.Equal(t, 4, strings.Count(bar, "🟩"))
	assert.Equal(t, 6, strings.Count(bar, "⬜"))
	assert.Contains(t, bar, "43%")

	bar = RenderProgressBar(0, 7)
	assert.Equal(t, 0, strings.Count(bar, "🟩"))
	assert.Contains(t, bar, "0%")

	bar = RenderProgressBar(7, 7)
	assert.Equal(t, 10, strings.Count(bar, "🟩"))
	assert.Contains(t, bar, "100%")
}

func TestNavigation(t *testing.T) {
	ctx := context.Background()
	engine, repo, _, _ := newTestEngine(t)

	progress := models.NewProgress(1)
	progress.CurrentDay = 3
	progress.Completed[1] = time.Now()
	progress.Completed[2] = time.Now()

	repo.On("GetProgress", ctx, int64(1)).Return(progress, nil).Once()

	statuses, err := engine.Navigation(ctx, 1)
	require.NoError(t, err)
	require.Len(t, statuses, 7)

	assert.Equal(t, domain.DayDone, statuses[0].State)
	assert.Equal(t, domain.DayDone, statuses[1].State)
	assert.Equal(t, domain.DayCurrent, statuses[2].State)
	assert.Equal(t, domain.DayLocked, statuses[3].State)
	assert.Equal(t, domain.DayLocked, statuses[6].State)
}

func TestStreakAndOverview(t *testing.T) {
	ctx := context.Background()
	engine, repo, _, _ := newTestEngine(t)

	progress := models.NewProgress(1)
	progress.CurrentDay = 4
	for day := 1; day <= 3; day++ {
		progress.Completed[day] = time.Now()
	}

	repo.On("GetProgress", ctx, int64(1)).Return(progress, nil).Twice()

	streak, err := engine.Streak(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, streak)

	overview, err := engine.Overview(ctx, 1)
	require.NoError(t, err)
	assert.Contains(t, overview, "43%")
	assert.Contains(t, overview, "✅")
	assert.Contains(t, overview, "▶️")
	assert.Contains(t, overview, "🔒")
}

func TestMilestones(t *testing.T) {
	ctx := context.Background()
	engine, repo, _, _ := newTestEngine(t)

	progress := models.NewProgress(1)
	progress.CurrentDay = 5
	for day := 1; day <= 4; day++ {
		progress.Completed[day] = time.Now()
	}

	repo.On("GetProgress", ctx, int64(1)).Return(progress, nil).Once()

	milestones, err := engine.Milestones(ctx, 1)
	require.NoError(t, err)
	require.Len(t, milestones, 3)

	assert.Equal(t, 1, milestones[0].Day)
	assert.True(t, milestones[0].Reached)
	assert.Equal(t, 4, milestones[1].Day)
	assert.True(t, milestones[1].Reached)
	assert.Equal(t, 7, milestones[2].Day)
	assert.False(t, milestones[2].Reached)
}

func TestRecordExtendedDelivery(t *testing.T) {
	ctx := context.Background()
	engine, repo, _, _ := newTestEngine(t)

	progress := models.NewProgress(1)
	progress.CurrentDay = 8
	progress.ProgramCompleted = true

	repo.On("GetProgress", ctx, int64(1)).Return(progress, nil).Once()
	repo.On("UpsertProgress", ctx, mock.MatchedBy(func(p *models.Progress) bool {
		return p.HasExtended(10)
	})).Return(nil).Once()

	require.NoError(t, engine.RecordExtendedDelivery(ctx, 1, 10))
	repo.AssertExpectations(t)
}
