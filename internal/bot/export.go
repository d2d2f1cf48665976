package bot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xuri/excelize/v2"
)

func (b *Bot) handleExport(ctx context.Context, chatID int64) {
	filePath, err := b.exportRosterToExcel(ctx)
	if err != nil {
		b.sendMessage(chatID, "Export failed: "+err.Error())
		return
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(filePath))
	if _, err := b.tgService.Send(doc); err != nil {
		b.logger.Error().Err(err).Str("file_path", filePath).Msg("Failed to send export")
		b.sendMessage(chatID, "Export saved to "+filePath+" but sending failed")
	}
}

// exportRosterToExcel создает Excel файл с пользователями и прогрессом
func (b *Bot) exportRosterToExcel(ctx context.Context) (string, error) {
	// Создаем папку для экспорта, если не существует
	if err := os.MkdirAll(b.config.Exports.Path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	users, err := b.userService.GetAllUsers(ctx)
	if err != nil {
		return "", fmt.Errorf("error getting users: %v", err)
	}

	records, err := b.repo.ListAllProgress(ctx)
	if err != nil {
		return "", fmt.Errorf("error getting progress: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const usersSheet = "Users"
	index, err := f.NewSheet(usersSheet)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	headers := []string{
		"ID", "Telegram ID", "Username", "First name", "Last name",
		"Paid", "Tier", "Paid at", "Blocked", "Last activity", "Registered",
	}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(usersSheet, cell, header)
	}

	for i, user := range users {
		row := i + 2
		paidAt := ""
		if user.PaidAt.Valid {
			paidAt = user.PaidAt.Time.Format("02.01.2006 15:04")
		}
		_ = f.SetCellValue(usersSheet, fmt.Sprintf("A%d", row), user.ID)
		_ = f.SetCellValue(usersSheet, fmt.Sprintf("B%d", row), user.TelegramID)
		_ = f.SetCellValue(usersSheet, fmt.Sprintf("C%d", row), user.Username)
		_ = f.SetCellValue(usersSheet, fmt.Sprintf("D%d", row), user.FirstName)
		_ = f.SetCellValue(usersSheet, fmt.Sprintf("E%d", row), user.LastName)
		_ = f.SetCellValue(usersSheet, fmt.Sprintf("F%d", row), boolToYesNo(user.IsPaid))
		_ = f.SetCellValue(usersSheet, fmt.Sprintf("G%d", row), user.Tier)
		_ = f.SetCellValue(usersSheet, fmt.Sprintf("H%d", row), paidAt)
		_ = f.SetCellValue(usersSheet, fmt.Sprintf("I%d", row), boolToYesNo(user.IsBlocked))
		_ = f.SetCellValue(usersSheet, fmt.Sprintf("J%d", row), user.LastActivity.Format("02.01.2006 15:04"))
		_ = f.SetCellValue(usersSheet, fmt.Sprintf("K%d", row), user.CreatedAt.Format("02.01.2006 15:04"))
	}

	_ = f.SetColWidth(usersSheet, "A", "B", 14)
	_ = f.SetColWidth(usersSheet, "C", "E", 18)
	_ = f.SetColWidth(usersSheet, "F", "I", 10)
	_ = f.SetColWidth(usersSheet, "J", "K", 20)

	const progressSheet = "Progress"
	if _, err := f.NewSheet(progressSheet); err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}

	progressHeaders := []string{
		"Telegram ID", "Current day", "Completed days", "Completed count", "Program completed", "Completed at",
	}
	for i, header := range progressHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(progressSheet, cell, header)
	}

	for i, p := range records {
		row := i + 2
		completedAt := ""
		if !p.ProgramCompletedAt.IsZero() {
			completedAt = p.ProgramCompletedAt.Format("02.01.2006 15:04")
		}
		_ = f.SetCellValue(progressSheet, fmt.Sprintf("A%d", row), p.UserID)
		_ = f.SetCellValue(progressSheet, fmt.Sprintf("B%d", row), p.CurrentDay)
		_ = f.SetCellValue(progressSheet, fmt.Sprintf("C%d", row), completedDaysList(p.Completed))
		_ = f.SetCellValue(progressSheet, fmt.Sprintf("D%d", row), len(p.Completed))
		_ = f.SetCellValue(progressSheet, fmt.Sprintf("E%d", row), boolToYesNo(p.ProgramCompleted))
		_ = f.SetCellValue(progressSheet, fmt.Sprintf("F%d", row), completedAt)
	}

	_ = f.SetColWidth(progressSheet, "A", "A", 14)
	_ = f.SetColWidth(progressSheet, "B", "F", 16)

	// Удаляем стандартный лист
	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("roster_export_%s.xlsx", time.Now().Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(b.config.Exports.Path, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	b.logger.Info().Str("file_path", filePath).Msg("Roster Excel file created")
	return filePath, nil
}

func completedDaysList(completed map[int]time.Time) string {
	days := make([]int, 0, len(completed))
	for day := range completed {
		days = append(days, day)
	}
	sort.Ints(days)

	parts := make([]string, len(days))
	for i, day := range days {
		parts[i] = strconv.Itoa(day)
	}
	return strings.Join(parts, ", ")
}

// boolToYesNo преобразует bool в "Да"/"Нет"
func boolToYesNo(v bool) string {
	if v {
		return "Да"
	}
	return "Нет"
}
