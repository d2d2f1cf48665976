package bot

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"luybot/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// handleAdminCommand dispatches admin slash commands. Returns false for
// commands it does not own so regular routing can continue.
func (b *Bot) handleAdminCommand(ctx context.Context, update tgbotapi.Update) bool {
	chatID := update.Message.Chat.ID
	userID := update.Message.From.ID
	fields := strings.Fields(update.Message.Text)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "/admin":
		b.sendMessage(chatID, adminHelpText)
		return true

	case "/stats":
		b.sendStats(ctx, chatID)
		return true

	case "/stuck":
		b.sendStuckReport(ctx, chatID)
		return true

	case "/grant":
		b.handleGrant(ctx, chatID, fields[1:])
		return true

	case "/setday":
		if len(fields) == 3 {
			b.applySetDay(ctx, chatID, fields[1], fields[2])
		} else {
			b.setUserState(ctx, userID, models.StateAdminSetDay, nil)
			b.sendMessage(chatID, "Send: <telegram_id> <day>")
		}
		return true

	case "/broadcast":
		b.setUserState(ctx, userID, models.StateAdminMessage, nil)
		b.sendMessage(chatID, "Send the broadcast text. It goes to all paid users.")
		return true

	case "/sync":
		if b.syncWorker == nil {
			b.sendMessage(chatID, "Sheets sync is not configured")
			return true
		}
		if err := b.syncWorker.EnqueueRosterSync(ctx); err != nil {
			b.sendMessage(chatID, "Failed to enqueue sync: "+err.Error())
			return true
		}
		b.sendMessage(chatID, "Roster sync queued ✅")
		return true

	case "/export":
		b.handleExport(ctx, chatID)
		return true
	}

	return false
}

const adminHelpText = `Admin commands:
/stats — course funnel and completion counts
/stuck — paid users who stalled
/grant <telegram_id> <tier> — grant paid access
/setday <telegram_id> <day> — move a user's current day
/broadcast — message all paid users
/sync — push the roster to Google Sheets
/export — download users and progress as XLSX`

func (b *Bot) sendStats(ctx context.Context, chatID int64) {
	byDay, err := b.repo.CountUsersByDay(ctx)
	if err != nil {
		b.sendMessage(chatID, "Failed to load stats: "+err.Error())
		return
	}
	completed, err := b.repo.CountCompletedPrograms(ctx)
	if err != nil {
		b.sendMessage(chatID, "Failed to load stats: "+err.Error())
		return
	}
	completions, err := b.repo.CompletionCountsByDay(ctx)
	if err != nil {
		b.sendMessage(chatID, "Failed to load stats: "+err.Error())
		return
	}

	users, err := b.userService.GetAllUsers(ctx)
	if err != nil {
		b.sendMessage(chatID, "Failed to load stats: "+err.Error())
		return
	}
	paid := 0
	for _, u := range users {
		if u.IsPaid {
			paid++
		}
	}

	var sb strings.Builder
	sb.WriteString("📊 *Course stats*\n\n")
	sb.WriteString(fmt.Sprintf("Users: %d (paid: %d)\n", len(users), paid))
	sb.WriteString(fmt.Sprintf("Completed program: %d\n\n", completed))

	sb.WriteString("*Users by current day:*\n")
	for _, day := range sortedKeys(byDay) {
		sb.WriteString(fmt.Sprintf("  day %d: %d\n", day, byDay[day]))
	}

	sb.WriteString("\n*Completions per day:*\n")
	for _, day := range sortedKeys(completions) {
		sb.WriteString(fmt.Sprintf("  day %d: %d\n", day, completions[day]))
	}

	b.sendMarkdown(chatID, sb.String())
}

func (b *Bot) sendStuckReport(ctx context.Context, chatID int64) {
	stuck, err := b.repo.GetStuckUsers(ctx, b.config.Course.StuckAfterDays)
	if err != nil {
		b.sendMessage(chatID, "Failed to load stuck users: "+err.Error())
		return
	}
	if len(stuck) == 0 {
		b.sendMessage(chatID, "No stuck users 🎉")
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("⚠️ *Stuck users* (inactive %d+ days):\n\n", b.config.Course.StuckAfterDays))
	for _, s := range stuck {
		name := s.User.Username
		if name == "" {
			name = strings.TrimSpace(s.User.FirstName + " " + s.User.LastName)
		}
		sb.WriteString(fmt.Sprintf("• %s (id %d) — day %d, last seen %s\n",
			name, s.User.TelegramID, s.CurrentDay, s.LastActive.Format("2006-01-02")))
	}

	b.sendMarkdown(chatID, sb.String())
}

func (b *Bot) handleGrant(ctx context.Context, chatID int64, args []string) {
	if len(args) != 2 {
		b.sendMessage(chatID, "Usage: /grant <telegram_id> <tier>")
		return
	}
	targetID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		b.sendMessage(chatID, "Bad telegram id: "+args[0])
		return
	}

	if err := b.userService.GrantTier(ctx, targetID, args[1]); err != nil {
		b.sendMessage(chatID, "Grant failed: "+err.Error())
		return
	}

	b.sendMessage(chatID, fmt.Sprintf("Granted %q to user %d ✅", args[1], targetID))

	// Поприветствуем пользователя сразу, не дожидаясь утренней рассылки
	if _, err := b.tgService.SendMessage(targetID, msgWelcome); err != nil {
		b.logger.Warn().Err(err).Int64("user_id", targetID).Msg("Failed to notify granted user")
	}

	if b.syncWorker != nil {
		_ = b.syncWorker.EnqueueRosterSync(ctx)
	}
}

func (b *Bot) handleSetDayInput(ctx context.Context, update tgbotapi.Update, _ *models.UserState) {
	chatID := update.Message.Chat.ID
	fields := strings.Fields(update.Message.Text)
	if len(fields) != 2 {
		b.sendMessage(chatID, "Send: <telegram_id> <day>")
		return
	}
	b.clearUserState(ctx, update.Message.From.ID)
	b.applySetDay(ctx, chatID, fields[0], fields[1])
}

func (b *Bot) applySetDay(ctx context.Context, chatID int64, idArg, dayArg string) {
	targetID, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil {
		b.sendMessage(chatID, "Bad telegram id: "+idArg)
		return
	}
	day, err := strconv.Atoi(dayArg)
	if err != nil || day < 1 || day > b.progressService.MaxDay() {
		b.sendMessage(chatID, fmt.Sprintf("Day must be between 1 and %d", b.progressService.MaxDay()))
		return
	}

	if err := b.repo.SetCurrentDay(ctx, targetID, day); err != nil {
		b.sendMessage(chatID, "Failed to set day: "+err.Error())
		return
	}
	b.sendMessage(chatID, fmt.Sprintf("User %d moved to day %d ✅", targetID, day))
}

// Broadcast: text comes in while the admin is in StateAdminMessage,
// then an inline confirm step guards against fat fingers.
func (b *Bot) handleBroadcastInput(ctx context.Context, update tgbotapi.Update, text string) {
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	if strings.TrimSpace(text) == "" {
		b.sendMessage(chatID, "Broadcast text cannot be empty")
		return
	}

	b.setUserState(ctx, userID, models.StateAdminMessage, map[string]interface{}{"text": text})

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Send", "broadcast:confirm"),
			tgbotapi.NewInlineKeyboardButtonData("❌ Cancel", "broadcast:cancel"),
		),
	)
	preview := "Broadcast preview:\n\n" + text
	if _, err := b.tgService.SendWithInlineKeyboard(chatID, preview, keyboard); err != nil {
		b.logger.Error().Err(err).Msg("Failed to send broadcast preview")
	}
}

func (b *Bot) confirmBroadcast(ctx context.Context, chatID, userID int64) {
	state := b.getUserState(ctx, userID)
	text := state.GetString("text")
	if text == "" {
		b.sendMessage(chatID, "Nothing to broadcast")
		return
	}
	b.clearUserState(ctx, userID)

	users, err := b.userService.GetPaidUsers(ctx)
	if err != nil {
		b.sendMessage(chatID, "Failed to load recipients: "+err.Error())
		return
	}

	// Broadcast is paced like the scheduler ticks so a large roster
	// does not trip the outbound limits.
	delay := b.broadcastDelay()
	sent, failed := 0, 0
	for i, u := range users {
		if i > 0 && delay > 0 {
			time.Sleep(delay)
		}
		if _, err := b.tgService.SendMessage(u.TelegramID, text); err != nil {
			failed++
			b.logger.Warn().Err(err).Int64("user_id", u.TelegramID).Msg("Broadcast send failed")
			continue
		}
		sent++
	}

	b.sendMessage(chatID, fmt.Sprintf("Broadcast done: %d sent, %d failed", sent, failed))
}

func (b *Bot) broadcastDelay() time.Duration {
	rps := b.config.Bot.SendRatePerSecond
	if rps <= 0 {
		rps = models.SendRatePerSecond
	}
	return time.Duration(float64(time.Second) / rps)
}

func sortedKeys(m map[int]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
