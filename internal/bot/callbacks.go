package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

func (b *Bot) handleCallbackQuery(ctx context.Context, update tgbotapi.Update) {
	callback := update.CallbackQuery
	userID := callback.From.ID
	chatID := callback.Message.Chat.ID
	data := callback.Data
	l := zerolog.Ctx(ctx)

	l.Debug().
		Int64("user_id", userID).
		Str("data", data).
		Msg("Handling callback")

	switch {
	case strings.HasPrefix(data, "day:"):
		day, err := strconv.Atoi(strings.TrimPrefix(data, "day:"))
		if err != nil {
			b.answerCallback(callback.ID, "")
			return
		}
		b.answerCallback(callback.ID, "")
		b.openLesson(ctx, chatID, userID, day)

	case strings.HasPrefix(data, "done:"):
		day, err := strconv.Atoi(strings.TrimPrefix(data, "done:"))
		if err != nil {
			b.answerCallback(callback.ID, "")
			return
		}
		b.handleDayDone(ctx, callback, chatID, userID, day)

	case data == "overview":
		b.answerCallback(callback.ID, "")
		b.showOverview(ctx, chatID, userID)

	case data == "broadcast:confirm" && b.isAdmin(userID):
		b.answerCallback(callback.ID, "")
		b.confirmBroadcast(ctx, chatID, userID)

	case data == "broadcast:cancel" && b.isAdmin(userID):
		b.clearUserState(ctx, userID)
		b.answerCallback(callback.ID, "Cancelled")

	default:
		b.answerCallback(callback.ID, "")
	}
}

// handleDayDone records a completion tap. The tap is acknowledged even
// when nothing new was recorded so the button never feels stuck.
func (b *Bot) handleDayDone(ctx context.Context, callback *tgbotapi.CallbackQuery, chatID, userID int64, day int) {
	result := b.progressService.MarkDayComplete(ctx, userID, day)

	switch {
	case result.Err != nil:
		b.answerCallback(callback.ID, "")
		b.sendMessage(chatID, b.getErrorMessage(result.Err))
		return

	case result.Duplicate:
		b.answerCallback(callback.ID, msgAlreadyDone)
		return

	case !result.Recorded:
		b.answerCallback(callback.ID, "")
		b.sendMessage(chatID, msgStoreError)
		return
	}

	b.answerCallback(callback.ID, msgDayDone)

	if b.metrics != nil {
		b.metrics.DaysCompleted.WithLabelValues(fmt.Sprintf("%d", day)).Inc()
	}

	if result.ProgramCompleted {
		if b.metrics != nil {
			b.metrics.ProgramsCompleted.Inc()
		}
		b.sendMarkdown(chatID, msgProgramDone)
	} else {
		b.sendMessage(chatID, msgDayDone)
	}

	if b.syncWorker != nil {
		if err := b.syncWorker.EnqueueRosterSync(ctx); err != nil {
			b.logger.Error().Err(err).Msg("Failed to enqueue roster sync")
		}
	}

	// Refresh navigation so the freshly unlocked day is visible.
	b.showOverview(ctx, chatID, userID)
}

func (b *Bot) answerCallback(callbackID, text string) {
	if err := b.tgService.AnswerCallback(callbackID, text); err != nil {
		b.logger.Error().Err(err).Msg("Failed to answer callback")
	}
}
