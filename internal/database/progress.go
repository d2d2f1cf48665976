package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"luybot/internal/models"
)

// GetProgress loads the course record for a user. ErrNotFound when the
// user never started.
func (db *DB) GetProgress(ctx context.Context, userID int64) (*models.Progress, error) {
	query := `SELECT user_id, current_day, completed, ready_for_day1, extended,
                     responses, program_completed, program_completed_at, created_at, updated_at
              FROM progress WHERE user_id = ?`

	var (
		p                  models.Progress
		completedJSON      string
		extendedJSON       string
		responsesJSON      string
		programCompletedAt sql.NullTime
	)
	err := db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID, &p.CurrentDay, &completedJSON, &p.ReadyForDay1, &extendedJSON,
		&responsesJSON, &p.ProgramCompleted, &programCompletedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}

	if err := json.Unmarshal([]byte(completedJSON), &p.Completed); err != nil {
		return nil, fmt.Errorf("failed to decode completed days: %w", err)
	}
	if err := json.Unmarshal([]byte(extendedJSON), &p.Extended); err != nil {
		return nil, fmt.Errorf("failed to decode extended days: %w", err)
	}
	if err := json.Unmarshal([]byte(responsesJSON), &p.Responses); err != nil {
		return nil, fmt.Errorf("failed to decode responses: %w", err)
	}
	if programCompletedAt.Valid {
		p.ProgramCompletedAt = programCompletedAt.Time
	}
	return &p, nil
}

// UpsertProgress writes the whole record, creating it when missing.
// Every engine mutation goes through here so the row stays the single
// source of truth.
func (db *DB) UpsertProgress(ctx context.Context, p *models.Progress) error {
	completedJSON, err := json.Marshal(orEmpty(p.Completed))
	if err != nil {
		return fmt.Errorf("failed to encode completed days: %w", err)
	}
	extendedJSON, err := json.Marshal(orEmpty(p.Extended))
	if err != nil {
		return fmt.Errorf("failed to encode extended days: %w", err)
	}
	responses := p.Responses
	if responses == nil {
		responses = map[int]string{}
	}
	responsesJSON, err := json.Marshal(responses)
	if err != nil {
		return fmt.Errorf("failed to encode responses: %w", err)
	}

	var programCompletedAt interface{}
	if !p.ProgramCompletedAt.IsZero() {
		programCompletedAt = p.ProgramCompletedAt
	}

	now := time.Now()
	query := `INSERT INTO progress (
                user_id, current_day, completed, ready_for_day1, extended,
                responses, program_completed, program_completed_at, created_at, updated_at
              ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(user_id) DO UPDATE SET
                current_day = excluded.current_day,
                completed = excluded.completed,
                ready_for_day1 = excluded.ready_for_day1,
                extended = excluded.extended,
                responses = excluded.responses,
                program_completed = excluded.program_completed,
                program_completed_at = excluded.program_completed_at,
                updated_at = excluded.updated_at`
	_, err = db.ExecContext(ctx, query,
		p.UserID, p.CurrentDay, string(completedJSON), p.ReadyForDay1, string(extendedJSON),
		string(responsesJSON), p.ProgramCompleted, programCompletedAt, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert progress: %w", err)
	}
	return nil
}

// SetCurrentDay is the admin override, the only write allowed to move
// current_day backwards.
func (db *DB) SetCurrentDay(ctx context.Context, userID int64, day int) error {
	query := `UPDATE progress SET current_day = ?, updated_at = ? WHERE user_id = ?`
	res, err := db.ExecContext(ctx, query, day, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to set current day: %w", err)
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

// ListAllProgress returns every course record, for reporting.
func (db *DB) ListAllProgress(ctx context.Context) ([]*models.Progress, error) {
	query := `SELECT user_id FROM progress ORDER BY user_id`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan progress row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	records := make([]*models.Progress, 0, len(ids))
	for _, id := range ids {
		p, err := db.GetProgress(ctx, id)
		if err != nil {
			return nil, err
		}
		records = append(records, p)
	}
	return records, nil
}

func orEmpty(m map[int]time.Time) map[int]time.Time {
	if m == nil {
		return map[int]time.Time{}
	}
	return m
}
