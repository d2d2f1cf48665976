package database

import (
	"context"
	"fmt"
	"time"

	"luybot/internal/models"
)

// CountUsersByDay returns how many users sit on each current_day.
func (db *DB) CountUsersByDay(ctx context.Context) (map[int]int, error) {
	query := `SELECT current_day, COUNT(*) FROM progress GROUP BY current_day`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count users by day: %w", err)
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var day, count int
		if err := rows.Scan(&day, &count); err != nil {
			return nil, fmt.Errorf("failed to scan day count: %w", err)
		}
		counts[day] = count
	}
	return counts, rows.Err()
}

// CountCompletedPrograms returns how many users finished the course.
func (db *DB) CountCompletedPrograms(ctx context.Context) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM progress WHERE program_completed = 1`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count completed programs: %w", err)
	}
	return count, nil
}

// StuckUser pairs a user with their stalled course position for the
// outreach report.
type StuckUser struct {
	User       *models.User
	CurrentDay int
	LastActive time.Time
}

// GetStuckUsers returns paid users whose course has not finished and
// whose last activity is older than staleDays.
func (db *DB) GetStuckUsers(ctx context.Context, staleDays int) ([]*StuckUser, error) {
	cutoff := time.Now().AddDate(0, 0, -staleDays)
	rows, err := db.QueryContext(ctx,
		`SELECT u.id, u.telegram_id, u.username, u.first_name, u.last_name,
	            u.is_paid, u.paid_at, u.tier, u.tier_price, u.is_admin, u.is_blocked,
	            u.language_code, u.timezone, u.last_activity, u.created_at, u.updated_at,
	            p.current_day
         FROM users u
         JOIN progress p ON p.user_id = u.telegram_id
         WHERE u.is_paid = 1
           AND u.is_blocked = 0
           AND p.program_completed = 0
           AND u.last_activity < ?
         ORDER BY u.last_activity ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to get stuck users: %w", err)
	}
	defer rows.Close()

	var stuck []*StuckUser
	for rows.Next() {
		u := &models.User{}
		var currentDay int
		err := rows.Scan(
			&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.LastName,
			&u.IsPaid, &u.PaidAt, &u.Tier, &u.TierPrice, &u.IsAdmin, &u.IsBlocked,
			&u.LanguageCode, &u.Timezone, &u.LastActivity, &u.CreatedAt, &u.UpdatedAt,
			&currentDay,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stuck user: %w", err)
		}
		stuck = append(stuck, &StuckUser{User: u, CurrentDay: currentDay, LastActive: u.LastActivity})
	}
	return stuck, rows.Err()
}

// CompletionCountsByDay counts completions per day number across the
// whole population. The per-day set lives in a JSON column, so the
// aggregation happens here rather than in SQL.
func (db *DB) CompletionCountsByDay(ctx context.Context) (map[int]int, error) {
	records, err := db.ListAllProgress(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[int]int)
	for _, p := range records {
		for day := range p.Completed {
			counts[day]++
		}
	}
	return counts, nil
}
