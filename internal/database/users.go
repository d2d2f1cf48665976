package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"luybot/internal/models"
)

const userColumns = `id, telegram_id, username, first_name, last_name,
	is_paid, paid_at, tier, tier_price, is_admin, is_blocked,
	language_code, timezone, last_activity, created_at, updated_at`

func (db *DB) CreateOrUpdateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (
				telegram_id, username, first_name, last_name,
				is_paid, paid_at, tier, tier_price, is_admin, is_blocked,
				language_code, timezone, last_activity, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(telegram_id) DO UPDATE SET
                username = excluded.username,
                first_name = excluded.first_name,
                last_name = excluded.last_name,
                is_admin = excluded.is_admin,
                is_blocked = excluded.is_blocked,
                language_code = excluded.language_code,
                last_activity = excluded.last_activity,
                updated_at = excluded.updated_at`
	lastActivity := user.LastActivity
	if lastActivity.IsZero() {
		lastActivity = time.Now()
	}
	tier := user.Tier
	if tier == "" {
		tier = models.TierFree
	}
	timezone := user.Timezone
	if timezone == "" {
		timezone = "Asia/Phnom_Penh"
	}
	now := time.Now()
	_, err := db.ExecContext(ctx, query,
		user.TelegramID,
		user.Username,
		user.FirstName,
		user.LastName,
		user.IsPaid,
		user.PaidAt,
		tier,
		user.TierPrice,
		user.IsAdmin,
		user.IsBlocked,
		user.LanguageCode,
		timezone,
		lastActivity,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create or update user: %w", err)
	}
	return nil
}

// SetUserPaid flips the payment flag and tier in one statement. Tier
// and is_paid must stay consistent: free ⇔ unpaid.
func (db *DB) SetUserPaid(ctx context.Context, telegramID int64, tier string, price float64) error {
	if !models.ValidTier(tier) {
		return fmt.Errorf("unknown tier %q", tier)
	}
	paid := tier != models.TierFree
	query := `UPDATE users
              SET is_paid = ?, paid_at = ?, tier = ?, tier_price = ?, updated_at = ?
              WHERE telegram_id = ?`
	var paidAt interface{}
	now := time.Now()
	if paid {
		paidAt = now
	}
	res, err := db.ExecContext(ctx, query, paid, paidAt, tier, price, now, telegramID)
	if err != nil {
		return fmt.Errorf("failed to set user paid: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = ?`
	return db.queryUser(ctx, query, telegramID)
}

func (db *DB) queryUser(ctx context.Context, query string, args ...interface{}) (*models.User, error) {
	var user models.User
	err := db.QueryRowContext(ctx, query, args...).Scan(
		&user.ID, &user.TelegramID, &user.Username, &user.FirstName, &user.LastName,
		&user.IsPaid, &user.PaidAt, &user.Tier, &user.TierPrice, &user.IsAdmin, &user.IsBlocked,
		&user.LanguageCode, &user.Timezone, &user.LastActivity, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (db *DB) UpdateUserActivity(ctx context.Context, telegramID int64) error {
	query := `UPDATE users SET last_activity = ?, updated_at = ? WHERE telegram_id = ?`
	now := time.Now()
	_, err := db.ExecContext(ctx, query, now, now, telegramID)
	return err
}

func (db *DB) GetAllUsers(ctx context.Context) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY last_activity DESC`
	return db.queryUsers(ctx, query)
}

// GetPaidUsers returns the scheduler's population: paid users active
// within the given window, oldest payment first.
func (db *DB) GetPaidUsers(ctx context.Context, activeWithinDays int) ([]*models.User, error) {
	since := time.Now().AddDate(0, 0, -activeWithinDays)
	query := `SELECT ` + userColumns + `
              FROM users
              WHERE is_paid = 1 AND is_blocked = 0 AND last_activity >= ?
              ORDER BY paid_at ASC`
	return db.queryUsers(ctx, query, since)
}

func (db *DB) GetActiveUsers(ctx context.Context, days int) ([]*models.User, error) {
	since := time.Now().AddDate(0, 0, -days)
	query := `SELECT ` + userColumns + `
              FROM users WHERE last_activity >= ? ORDER BY last_activity DESC`
	return db.queryUsers(ctx, query, since)
}

func (db *DB) queryUsers(ctx context.Context, query string, args ...interface{}) ([]*models.User, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u := &models.User{}
		err := rows.Scan(
			&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.LastName,
			&u.IsPaid, &u.PaidAt, &u.Tier, &u.TierPrice, &u.IsAdmin, &u.IsBlocked,
			&u.LanguageCode, &u.Timezone, &u.LastActivity, &u.CreatedAt, &u.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
