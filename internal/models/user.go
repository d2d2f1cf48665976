package models

import (
	"database/sql"
	"time"
)

type User struct {
	ID           int64
	TelegramID   int64
	Username     string
	FirstName    string
	LastName     string
	IsPaid       bool
	PaidAt       sql.NullTime
	Tier         string
	TierPrice    float64
	IsAdmin      bool
	IsBlocked    bool
	LanguageCode string
	Timezone     string
	LastActivity time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CourseDay returns the day of the drip calendar counted from the
// payment date: max(1, full days elapsed since paid_at). Zero when the
// user never paid.
func (u *User) CourseDay(now time.Time) int {
	if !u.IsPaid || !u.PaidAt.Valid {
		return 0
	}
	days := int(now.Sub(u.PaidAt.Time).Hours() / 24)
	if days < 1 {
		return 1
	}
	return days
}

func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
