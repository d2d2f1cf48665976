package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"luybot/internal/api"
	"luybot/internal/bot"
	"luybot/internal/config"
	"luybot/internal/content"
	"luybot/internal/database"
	"luybot/internal/domain"
	"luybot/internal/events"
	"luybot/internal/google"
	"luybot/internal/logging"
	"luybot/internal/metrics"
	"luybot/internal/models"
	"luybot/internal/repository"
	"luybot/internal/scheduler"
	"luybot/internal/service"
	"luybot/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, loadErr := loadConfigAndLogger()
	if loadErr != nil {
		return loadErr
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	catalog, err := content.Load(cfg.Course.LessonsPath, cfg.Course.MaxDay, cfg.Course.ExtendedMaxDay)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка загрузки каталога уроков")
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка инициализации базы данных")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register()

	sheetsService := initGoogleSheets(ctx, cfg, &logger)

	redisClient, stateService := initStateService(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Запускаем воркер синхронизации ростера в Google Sheets
	var rosterWorker *worker.RosterWorker
	if sheetsService != nil {
		retryPolicy := worker.RetryPolicy{MaxRetries: 5, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffFactor: 2}
		rosterWorker = worker.NewRosterWorker(db, sheetsService, retryPolicy, &logger)
		go rosterWorker.Start(ctx)
	}

	eventBus := events.NewEventBus()
	subscribeProgressEvents(ctx, eventBus, rosterWorker, &logger)

	// Инициализация бизнес-сервисов
	progressService := service.NewProgressEngine(db, catalog, stateService, eventBus, &logger)
	userService := service.NewUserService(db, cfg, eventBus, &logger)
	botMetrics := bot.NewMetrics()

	if cfg.API.Enabled {
		apiServer := api.NewHTTPServer(cfg.API, cfg.Course, db, &logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
		defer func() {
			_ = apiServer.Shutdown(context.Background())
		}()
	}

	if cfg.Monitoring.PrometheusEnabled {
		metricsServer := metrics.NewServer(cfg.Monitoring.PrometheusPort, &logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error().Err(err).Msg("Metrics server error")
			}
		}()
		defer func() {
			_ = metricsServer.Shutdown(context.Background())
		}()
	}

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	return startBot(ctx, cfg, catalog, db, stateService, progressService, userService, rosterWorker, eventBus, botMetrics, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", "bot-main").Logger()

	return cfg, logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if cfg == nil {
		return os.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("Ошибка создания директории для базы данных")
		return err
	}
	if cfg.Exports.Path != "" {
		if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
			logger.Error().Err(err).Msg("Ошибка создания директории для экспорта")
			return err
		}
	}
	return nil
}

// initGoogleSheets is best-effort: the bot runs without the roster
// mirror when credentials are absent.
func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.RosterSpreadSheetID == "" {
		logger.Warn().Msg("Google Sheets is not configured; roster sync disabled")
		return nil
	}

	sheetsSvc, err := google.NewSheetsService(cfg.Google.GoogleCredentialsFile, cfg.Google.RosterSpreadSheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize Google Sheets service")
		return nil
	}

	if err := sheetsSvc.TestConnection(ctx); err != nil {
		logger.Error().Err(err).Msg("Google Sheets connection test failed")
		return nil
	}

	logger.Info().Msg("Google Sheets service initialized successfully")
	return sheetsSvc
}

func initStateService(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, *service.StateService) {
	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient = repository.NewRedisClient(cfg.Redis)
		if errPing := repository.Ping(ctx, redisClient); errPing != nil {
			logger.Warn().Err(errPing).Msg("Redis unavailable")
		}
	}

	primaryRepo := repository.NewRedisStateRepository(redisClient, time.Duration(models.DefaultRedisTTL)*time.Second)
	fallbackRepo := repository.NewMemoryStateRepository(time.Duration(models.DefaultRedisTTL) * time.Second)
	stateRepo := repository.NewFailoverStateRepository(primaryRepo, fallbackRepo, logger)
	return redisClient, service.NewStateService(stateRepo, logger)
}

func startBot(
	ctx context.Context,
	cfg *config.Config,
	catalog *content.Catalog,
	db *database.DB,
	stateService *service.StateService,
	progressService *service.ProgressEngine,
	userService *service.UserService,
	rosterWorker *worker.RosterWorker,
	eventBus *events.EventBus,
	botMetrics *bot.Metrics,
	logger *zerolog.Logger,
) error {
	if cfg.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		logger.Error().Msg("Задайте токен бота в config.yaml")
		return os.ErrInvalid
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка создания BotAPI")
		return err
	}
	botAPI.Debug = cfg.Telegram.Debug

	botWrapper := bot.NewBotWrapper(botAPI)
	tgService := service.NewTelegramService(botWrapper)

	var syncWorker domain.SyncWorker
	if rosterWorker != nil {
		syncWorker = rosterWorker
	}

	telegramBot, err := bot.NewBot(
		tgService, cfg, stateService, progressService,
		userService, db, catalog, syncWorker,
		eventBus, botMetrics, logger,
	)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка создания бота")
		return err
	}

	drip, err := scheduler.New(userService, progressService, db, catalog, tgService, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка создания планировщика")
		return err
	}
	if err := drip.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("Ошибка запуска планировщика")
		return err
	}
	defer drip.Stop()

	logger.Info().Msg("Бот запущен...")
	telegramBot.Start(ctx)

	logger.Info().Msg("Shutdown complete.")
	return nil
}

// subscribeProgressEvents mirrors completion milestones into the shared
// roster spreadsheet.
func subscribeProgressEvents(
	ctx context.Context,
	bus *events.EventBus,
	rosterWorker *worker.RosterWorker,
	logger *zerolog.Logger,
) {
	if bus == nil || rosterWorker == nil {
		return
	}

	syncHandler := func(ev *events.Event) error {
		var payload events.ProgressEventPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			logger.Error().Err(err).Str("event", ev.Type).Msg("event bus: decode payload")
			return nil
		}

		if err := rosterWorker.EnqueueRosterSync(ctx); err != nil {
			logger.Error().Err(err).Int64("user_id", payload.UserID).Msg("event bus: enqueue roster sync")
		}
		return nil
	}

	bus.Subscribe(events.EventDayCompleted, syncHandler)
	bus.Subscribe(events.EventProgramCompleted, syncHandler)
	bus.Subscribe(events.EventUserPaid, syncHandler)
	bus.Subscribe(events.EventUserGraduated, syncHandler)
}
