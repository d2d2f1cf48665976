package bot

import (
	"context"
	"time"
)

// withRecovery keeps one bad update from killing the long-poll loop:
// the panic is counted and logged, the next update is processed as
// usual.
func (b *Bot) withRecovery(handler func()) {
	defer func() {
		if r := recover(); r != nil {
			if b.metrics != nil {
				b.metrics.ErrorsTotal.Inc()
			}
			b.logger.Error().Interface("panic", r).Msg("Recovered from panic in update handler")
		}
	}()
	handler()
}

// trackActivity stamps last_active off the hot path. The stamp feeds
// the stuck-user report and the scheduler's active-window filter, so a
// lost write is harmless.
func (b *Bot) trackActivity(userID int64) {
	if userID == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.userService.UpdateUserActivity(ctx, userID); err != nil {
			b.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to update user activity")
		}
	}()
}
