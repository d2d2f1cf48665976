package models

const (
	TierFree      = "free"
	TierEssential = "essential"
	TierPremium   = "premium"
	TierVIP       = "vip"
)

const (
	ParseModeMarkdown = "Markdown"
	ParseModeHTML     = "HTML"
)

const (
	StateMainMenu      = "main_menu"
	StateReadingLesson = "reading_lesson"
	StateAwaitingReply = "awaiting_reply"
	StateAdminSetDay   = "admin_set_day"
	StateAdminMessage  = "admin_broadcast"
)

const (
	// DefaultRedisTTL время жизни состояния пользователя в Redis
	DefaultRedisTTL = 24 * 60 * 60 // 24 часа в секундах

	// CompletionTokenTTL lifetime of the dedup token guarding a
	// double-tapped "mark complete" callback, seconds.
	CompletionTokenTTL = 10

	// DefaultCourseDays core course length.
	DefaultCourseDays = 7

	// DefaultExtendedDays last day of the extended drip content.
	DefaultExtendedDays = 30

	// DeliveryHour час, в который отправляются уроки
	DeliveryHour = 7

	// MotivationHour evening motivation send hour.
	MotivationHour = 19

	// RateLimitMessages количество сообщений в окне
	RateLimitMessages = 20

	// RateLimitWindow окно ограничения частоты сообщений
	RateLimitWindow = 60 // 1 минута в секундах

	// SendRatePerSecond outbound sends per second during a scheduler tick.
	SendRatePerSecond = 4

	// DefaultStuckDays inactivity threshold for the stuck-user report.
	DefaultStuckDays = 3

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 1000
)

// ValidTier reports whether the tier name is one of the known levels.
func ValidTier(tier string) bool {
	switch tier {
	case TierFree, TierEssential, TierPremium, TierVIP:
		return true
	default:
		return false
	}
}
