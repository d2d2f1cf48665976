package service

import "errors"

var (
	// ErrNotPaid доступ к курсу только после оплаты
	ErrNotPaid = errors.New("user has not paid for the course")

	// ErrNoProgress the user never ran the start flow.
	ErrNoProgress = errors.New("no progress record for user")

	// ErrDayLocked sequential unlock: the requested day is still ahead
	// of current_day.
	ErrDayLocked = errors.New("day is locked")

	// ErrUnknownDay requested day is outside [1, max_day].
	ErrUnknownDay = errors.New("unknown course day")

	// ErrStoreUnavailable transient storage failure; the caller shows a
	// generic retry message and does not retry on its own.
	ErrStoreUnavailable = errors.New("store unavailable")
)
