package bot

import (
	"errors"

	"luybot/internal/service"
)

func (b *Bot) getErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, service.ErrNotPaid) {
		return msgNotPaid
	}

	if errors.Is(err, service.ErrNoProgress) {
		return msgNoProgress
	}

	if errors.Is(err, service.ErrDayLocked) {
		return msgDayLocked
	}

	if errors.Is(err, service.ErrUnknownDay) {
		return msgUnknownDay
	}

	// Default error message
	return msgStoreError
}
