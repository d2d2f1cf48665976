package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"luybot/internal/api"
	"luybot/internal/config"
	"luybot/internal/database"
	"luybot/internal/logging"
	"luybot/internal/metrics"

	"github.com/rs/zerolog"
)

// Standalone reporting API. Runs against the same SQLite file as the
// bot; useful when dashboards must not share the bot's lifecycle.
func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
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

	httpServer := api.NewHTTPServer(cfg.API, cfg.Course, db, &logger)
	go func() {
		<-ctx.Done()
		_ = httpServer.Shutdown(context.Background())
	}()

	return httpServer.Start()
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
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}
