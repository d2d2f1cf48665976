package bot

import (
	"context"
	"os"
	"time"

	"luybot/internal/config"
	"luybot/internal/content"
	"luybot/internal/domain"
	"luybot/internal/events"
	"luybot/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Bot struct {
	tgService       domain.TelegramService
	config          *config.Config
	stateService    domain.StateManager
	progressService domain.ProgressService
	userService     domain.UserService
	repo            domain.Repository
	catalog         *content.Catalog
	syncWorker      domain.SyncWorker
	eventBus        domain.EventPublisher
	metrics         *Metrics
	logger          *zerolog.Logger
}

func NewBot(
	tgService domain.TelegramService,
	config *config.Config,
	stateService domain.StateManager,
	progressService domain.ProgressService,
	userService domain.UserService,
	repo domain.Repository,
	catalog *content.Catalog,
	syncWorker domain.SyncWorker,
	eventBus domain.EventPublisher,
	metrics *Metrics,
	logger *zerolog.Logger,
) (*Bot, error) {
	if eventBus == nil {
		eventBus = events.NewEventBus()
	}

	if logger == nil {
		l := zerolog.New(os.Stdout).With().Timestamp().Logger()
		logger = &l
	}

	return &Bot{
		tgService:       tgService,
		config:          config,
		stateService:    stateService,
		progressService: progressService,
		userService:     userService,
		repo:            repo,
		catalog:         catalog,
		syncWorker:      syncWorker,
		eventBus:        eventBus,
		metrics:         metrics,
		logger:          logger,
	}, nil
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.tgService.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.tgService.GetSelf().UserName).Msg("Authorized on account")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	start := time.Now()
	defer func() {
		if b.metrics != nil {
			b.metrics.UpdateProcessingTime.Observe(time.Since(start).Seconds())
		}
	}()

	// Создаем контекст для обработки каждого обновления
	updateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	requestID := uuid.New().String()
	l := b.logger.With().Str("request_id", requestID).Logger()
	updateCtx = l.WithContext(updateCtx)

	b.withRecovery(func() {
		var userID int64
		if update.Message != nil {
			userID = update.Message.From.ID
		} else if update.CallbackQuery != nil {
			userID = update.CallbackQuery.From.ID
		}

		if userID == 0 {
			return
		}

		if b.isBlocked(userID) {
			return
		}

		b.trackActivity(userID)

		if !b.isAdmin(userID) {
			limit, window := b.inboundRateLimit()
			allowed, err := b.stateService.CheckRateLimit(updateCtx, userID, limit, window)
			if err != nil {
				b.logger.Error().Err(err).Int64("user_id", userID).Msg("Rate limit check failed")
			} else if !allowed {
				b.logger.Warn().Int64("user_id", userID).Msg("Rate limit exceeded")
				if update.Message != nil {
					b.sendMessage(update.Message.Chat.ID, msgRateLimited)
				}
				return
			}
		}

		if b.metrics != nil {
			b.metrics.MessagesProcessed.Inc()
		}

		if update.CallbackQuery != nil {
			b.handleCallbackQuery(updateCtx, update)
			return
		}

		if update.Message == nil {
			return
		}

		b.handleMessage(updateCtx, update)
	})
}

// inboundRateLimit reads the configured per-user message budget,
// falling back to the built-in defaults when the config leaves it out.
func (b *Bot) inboundRateLimit() (int, time.Duration) {
	limit := b.config.Bot.RateLimitMessages
	if limit <= 0 {
		limit = models.RateLimitMessages
	}
	window := time.Duration(b.config.Bot.RateLimitWindow) * time.Second
	if window <= 0 {
		window = models.RateLimitWindow * time.Second
	}
	return limit, window
}

func (b *Bot) isAdmin(userID int64) bool {
	return b.userService.IsAdmin(userID)
}

func (b *Bot) isBlocked(userID int64) bool {
	return b.userService.IsBlocked(userID)
}

func (b *Bot) sendMessage(chatID int64, text string) {
	if _, err := b.tgService.SendMessage(chatID, text); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

func (b *Bot) sendMarkdown(chatID int64, text string) {
	if _, err := b.tgService.SendMarkdown(chatID, text); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}
