package bot

import (
	"fmt"

	"luybot/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnTodayLesson),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnMyProgress),
			tgbotapi.NewKeyboardButton(btnMilestones),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnContacts),
		),
	)
}

// lessonKeyboard is shown under an open lesson: the completion button
// plus the overview shortcut.
func lessonKeyboard(day int) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(btnMarkDone, fmt.Sprintf("done:%d", day)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(btnOverview, "overview"),
		),
	)
}

// navigationKeyboard renders one button per course day, glyph by state.
// Locked days still get a button so a tap can explain why it is locked.
func navigationKeyboard(statuses []domain.DayStatus) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton

	for _, status := range statuses {
		glyph := "🔒"
		switch status.State {
		case domain.DayDone:
			glyph = "✅"
		case domain.DayCurrent:
			glyph = "▶️"
		case domain.DayReachable:
			glyph = "🟡"
		}

		btn := tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("%s %d", glyph, status.Day),
			fmt.Sprintf("day:%d", status.Day),
		)
		row = append(row, btn)
		if len(row) == 4 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
