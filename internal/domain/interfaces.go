package domain

import (
	"context"
	"time"

	"luybot/internal/content"
	"luybot/internal/database"
	"luybot/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Repository is the persistent store behind the engine: users and
// their single course record.
type Repository interface {
	CreateOrUpdateUser(ctx context.Context, user *models.User) error
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	SetUserPaid(ctx context.Context, telegramID int64, tier string, price float64) error
	UpdateUserActivity(ctx context.Context, telegramID int64) error
	GetAllUsers(ctx context.Context) ([]*models.User, error)
	GetPaidUsers(ctx context.Context, activeWithinDays int) ([]*models.User, error)
	GetActiveUsers(ctx context.Context, days int) ([]*models.User, error)

	GetProgress(ctx context.Context, userID int64) (*models.Progress, error)
	UpsertProgress(ctx context.Context, progress *models.Progress) error
	SetCurrentDay(ctx context.Context, userID int64, day int) error
	ListAllProgress(ctx context.Context) ([]*models.Progress, error)

	CountUsersByDay(ctx context.Context) (map[int]int, error)
	CountCompletedPrograms(ctx context.Context) (int, error)
	GetStuckUsers(ctx context.Context, staleDays int) ([]*database.StuckUser, error)
	CompletionCountsByDay(ctx context.Context) (map[int]int, error)
}

// StateRepository keeps short-lived per-user data: conversational step,
// inbound rate limiting, and the completion dedup token.
type StateRepository interface {
	GetState(ctx context.Context, userID int64) (*models.UserState, error)
	SetState(ctx context.Context, state *models.UserState) error
	ClearState(ctx context.Context, userID int64) error
	CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
	AcquireCompletionToken(ctx context.Context, userID int64, day int, ttl time.Duration) (bool, error)
	ReleaseCompletionToken(ctx context.Context, userID int64, day int) error
}

type StateManager interface {
	GetUserState(ctx context.Context, userID int64) (*models.UserState, error)
	SetUserState(ctx context.Context, userID int64, step string, data map[string]interface{}) error
	ClearUserState(ctx context.Context, userID int64) error
	CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
	AcquireCompletionToken(ctx context.Context, userID int64, day int, ttl time.Duration) (bool, error)
	ReleaseCompletionToken(ctx context.Context, userID int64, day int) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}

// TelegramService is the messaging gateway the engine-facing code uses.
type TelegramService interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	SendMessage(chatID int64, text string) (tgbotapi.Message, error)
	SendMarkdown(chatID int64, text string) (tgbotapi.Message, error)
	SendWithInlineKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error)
	EditMessage(chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error)
	AnswerCallback(callbackID string, text string) error
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}

// ProgressService is the single authority on day access and completion.
type ProgressService interface {
	OpenDay(ctx context.Context, userID int64, day int) (*LessonView, error)
	MarkDayComplete(ctx context.Context, userID int64, day int) CompletionResult
	Overview(ctx context.Context, userID int64) (string, error)
	Streak(ctx context.Context, userID int64) (int, error)
	Milestones(ctx context.Context, userID int64) ([]Milestone, error)
	Navigation(ctx context.Context, userID int64) ([]DayStatus, error)
	RecordExtendedDelivery(ctx context.Context, userID int64, day int) error
	MaxDay() int
	ExtendedMaxDay() int
}

// DayState classifies one day for navigation rendering.
type DayState int

const (
	DayLocked DayState = iota
	DayReachable
	DayCurrent
	DayDone
)

type DayStatus struct {
	Day   int
	State DayState
}

// LessonView is what OpenDay hands the presentation layer: the content
// unit plus everything needed to render progress controls.
type LessonView struct {
	Lesson        content.Lesson
	CompletedDays []int
	ProgressBar   string
	Percent       int
	Navigation    []DayStatus
}

// CompletionResult reports a best-effort completion attempt. Recorded
// is false both on storage failure and on a deduplicated double tap;
// Duplicate tells the two apart.
type CompletionResult struct {
	Recorded         bool
	Duplicate        bool
	ProgramCompleted bool
	NewCurrentDay    int
	Err              error
}

type Milestone struct {
	Day     int
	Title   string
	Reached bool
}

type UserService interface {
	IsAdmin(userID int64) bool
	IsBlocked(userID int64) bool
	SaveUser(ctx context.Context, user *models.User) error
	GrantTier(ctx context.Context, telegramID int64, tier string) error
	UpdateUserActivity(ctx context.Context, telegramID int64) error
	GetUser(ctx context.Context, telegramID int64) (*models.User, error)
	GetAllUsers(ctx context.Context) ([]*models.User, error)
	GetPaidUsers(ctx context.Context) ([]*models.User, error)
	GetActiveUsers(ctx context.Context, days int) ([]*models.User, error)
}

// SheetsWriter mirrors the roster spreadsheet the marketing team reads.
type SheetsWriter interface {
	ReplaceUsersSheet(ctx context.Context, users []*models.User) error
	ReplaceProgressSheet(ctx context.Context, records []*models.Progress) error
}

type SyncWorker interface {
	EnqueueRosterSync(ctx context.Context) error
}
