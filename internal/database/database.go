package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound отсутствие записи в базе
	ErrNotFound = errors.New("record not found")
)

type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{DB: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		// Таблица пользователей
		`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            telegram_id INTEGER UNIQUE NOT NULL,
            username TEXT,
            first_name TEXT NOT NULL,
            last_name TEXT,
            is_paid BOOLEAN NOT NULL DEFAULT 0,
            paid_at DATETIME,
            tier TEXT NOT NULL DEFAULT 'free',
            tier_price REAL NOT NULL DEFAULT 0,
            is_admin BOOLEAN NOT NULL DEFAULT 0,
            is_blocked BOOLEAN NOT NULL DEFAULT 0,
            language_code TEXT,
            timezone TEXT NOT NULL DEFAULT 'Asia/Phnom_Penh',
            last_activity DATETIME NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		// Таблица прогресса, одна запись на пользователя
		`CREATE TABLE IF NOT EXISTS progress (
            user_id INTEGER PRIMARY KEY,
            current_day INTEGER NOT NULL DEFAULT 0,
            completed TEXT NOT NULL DEFAULT '{}',
            ready_for_day1 BOOLEAN NOT NULL DEFAULT 0,
            extended TEXT NOT NULL DEFAULT '{}',
            responses TEXT NOT NULL DEFAULT '{}',
            program_completed BOOLEAN NOT NULL DEFAULT 0,
            program_completed_at DATETIME,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE INDEX IF NOT EXISTS idx_users_telegram_id ON users(telegram_id)`,
		`CREATE INDEX IF NOT EXISTS idx_users_is_paid ON users(is_paid)`,
		`CREATE INDEX IF NOT EXISTS idx_users_last_activity ON users(last_activity)`,
		`CREATE INDEX IF NOT EXISTS idx_progress_current_day ON progress(current_day)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}
