package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"luybot/internal/domain"
	"luybot/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

func (b *Bot) handleMessage(ctx context.Context, update tgbotapi.Update) {
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID
	text := update.Message.Text
	l := zerolog.Ctx(ctx)

	l.Debug().
		Int64("user_id", userID).
		Str("username", update.Message.From.UserName).
		Str("text", text).
		Msg("Handling message")

	if b.isAdmin(userID) && strings.HasPrefix(text, "/") {
		if b.handleAdminCommand(ctx, update) {
			return
		}
	}

	state := b.getUserState(ctx, userID)

	switch {
	case text == "/start":
		b.clearUserState(ctx, userID)
		b.handleStart(ctx, update)

	case text == "/help":
		b.sendMessage(chatID, msgHelp)

	case text == btnTodayLesson, text == "/today":
		b.openCurrentLesson(ctx, chatID, userID)

	case text == btnMyProgress, text == "/progress":
		b.showOverview(ctx, chatID, userID)

	case text == btnMilestones:
		b.showMilestones(ctx, chatID, userID)

	case text == btnContacts:
		b.showContacts(chatID)

	case state != nil && state.CurrentStep == models.StateAdminSetDay && b.isAdmin(userID):
		b.handleSetDayInput(ctx, update, state)

	case state != nil && state.CurrentStep == models.StateAdminMessage && b.isAdmin(userID):
		b.handleBroadcastInput(ctx, update, text)

	default:
		b.sendMessage(chatID, msgUnknownCommand)
	}
}

// handleStart registers the user and shows the main menu. Whether the
// course itself opens depends on the payment flag, not on /start.
func (b *Bot) handleStart(ctx context.Context, update tgbotapi.Update) {
	from := update.Message.From

	user := &models.User{
		TelegramID:   from.ID,
		Username:     from.UserName,
		FirstName:    from.FirstName,
		LastName:     from.LastName,
		LanguageCode: from.LanguageCode,
		LastActivity: time.Now(),
	}
	if err := b.userService.SaveUser(ctx, user); err != nil {
		b.logger.Error().Err(err).Int64("user_id", from.ID).Msg("Failed to save user")
	}

	if b.syncWorker != nil {
		if err := b.syncWorker.EnqueueRosterSync(ctx); err != nil {
			b.logger.Error().Err(err).Msg("Failed to enqueue roster sync")
		}
	}

	msg := tgbotapi.NewMessage(update.Message.Chat.ID, msgWelcome)
	msg.ReplyMarkup = mainMenuKeyboard()
	if _, err := b.tgService.Send(msg); err != nil {
		b.logger.Error().Err(err).Msg("Failed to send welcome")
	}
}

// openCurrentLesson opens the user's frontier day; for a fresh user
// that is day 1.
func (b *Bot) openCurrentLesson(ctx context.Context, chatID, userID int64) {
	day := 1
	statuses, err := b.progressService.Navigation(ctx, userID)
	if err == nil {
		for _, status := range statuses {
			if status.State == domain.DayCurrent {
				day = status.Day
				break
			}
		}
	}

	b.openLesson(ctx, chatID, userID, day)
}

func (b *Bot) openLesson(ctx context.Context, chatID, userID int64, day int) {
	view, err := b.progressService.OpenDay(ctx, userID, day)
	if err != nil {
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	if b.metrics != nil {
		b.metrics.LessonsOpened.WithLabelValues(fmt.Sprintf("%d", day)).Inc()
	}

	text := formatLesson(view)
	if _, err := b.tgService.SendWithInlineKeyboard(chatID, text, lessonKeyboard(day)); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send lesson")
	}
}

func formatLesson(view *domain.LessonView) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("*ថ្ងៃទី %d — %s*\n", view.Lesson.Day, view.Lesson.Title))
	if view.Lesson.Subtitle != "" {
		sb.WriteString("_" + view.Lesson.Subtitle + "_\n")
	}
	if view.Lesson.Duration != "" {
		sb.WriteString(fmt.Sprintf("⏱ %s", view.Lesson.Duration))
		if view.Lesson.Difficulty != "" {
			sb.WriteString(" · " + view.Lesson.Difficulty)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	if len(view.Lesson.Objectives) > 0 {
		for _, objective := range view.Lesson.Objectives {
			sb.WriteString("• " + objective + "\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString(view.Lesson.Body)
	sb.WriteString("\n\n")
	sb.WriteString(view.ProgressBar)

	return sb.String()
}

func (b *Bot) showOverview(ctx context.Context, chatID, userID int64) {
	overview, err := b.progressService.Overview(ctx, userID)
	if err != nil {
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	statuses, err := b.progressService.Navigation(ctx, userID)
	if err != nil {
		b.sendMarkdown(chatID, overview)
		return
	}

	if _, err := b.tgService.SendWithInlineKeyboard(chatID, overview, navigationKeyboard(statuses)); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send overview")
	}
}

func (b *Bot) showMilestones(ctx context.Context, chatID, userID int64) {
	milestones, err := b.progressService.Milestones(ctx, userID)
	if err != nil {
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	streak, err := b.progressService.Streak(ctx, userID)
	if err != nil {
		streak = 0
	}

	var sb strings.Builder
	sb.WriteString("🏆 *សមិទ្ធផលរបស់អ្នក*\n\n")
	for _, milestone := range milestones {
		mark := "⬜"
		if milestone.Reached {
			mark = "✅"
		}
		sb.WriteString(fmt.Sprintf("%s %s (ថ្ងៃទី %d)\n", mark, milestone.Title, milestone.Day))
	}
	if streak > 0 {
		sb.WriteString(fmt.Sprintf("\n🔥 អ្នកកំពុងរៀនជាប់ៗគ្នា %d ថ្ងៃ!", streak))
	}

	b.sendMarkdown(chatID, sb.String())
}

func (b *Bot) showContacts(chatID int64) {
	if len(b.config.AdminContacts) == 0 {
		b.sendMessage(chatID, msgUnknownCommand)
		return
	}
	b.sendMessage(chatID, "📞 "+strings.Join(b.config.AdminContacts, "\n"))
}

// State helpers

func (b *Bot) getUserState(ctx context.Context, userID int64) *models.UserState {
	state, err := b.stateService.GetUserState(ctx, userID)
	if err != nil {
		b.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to get user state")
		return nil
	}
	return state
}

func (b *Bot) setUserState(ctx context.Context, userID int64, step string, data map[string]interface{}) {
	if err := b.stateService.SetUserState(ctx, userID, step, data); err != nil {
		b.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to set user state")
	}
}

func (b *Bot) clearUserState(ctx context.Context, userID int64) {
	if err := b.stateService.ClearUserState(ctx, userID); err != nil {
		b.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to clear user state")
	}
}
