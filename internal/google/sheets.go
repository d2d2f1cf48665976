package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"luybot/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsService mirrors the roster into the shared spreadsheet the
// course team reads. Both sheets are full replaces: the database is the
// source of truth, the spreadsheet is a view.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
}

func NewSheetsService(credentialsFile, spreadsheetID string) (*SheetsService, error) {
	ctx := context.Background()

	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %v", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}

	client := config.Client(ctx)

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %v", err)
	}

	return &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
	}, nil
}

// TestConnection проверяет подключение к таблице
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, "Users!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %v", err)
	}
	return nil
}

// GetServiceAccountEmail возвращает email сервисного аккаунта
func (s *SheetsService) GetServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}

	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}

	return creds.ClientEmail, nil
}

// ReplaceUsersSheet полностью перезаписывает лист пользователей
func (s *SheetsService) ReplaceUsersSheet(ctx context.Context, users []*models.User) error {
	values := [][]interface{}{
		{"Telegram ID", "Username", "First Name", "Last Name", "Tier", "Paid At", "Is Admin", "Language", "Last Activity", "Created At"},
	}

	for _, user := range users {
		paidAt := ""
		if user.PaidAt.Valid {
			paidAt = user.PaidAt.Time.Format("2006-01-02 15:04:05")
		}
		row := []interface{}{
			user.TelegramID,
			user.Username,
			user.FirstName,
			user.LastName,
			user.Tier,
			paidAt,
			user.IsAdmin,
			user.LanguageCode,
			user.LastActivity.Format("2006-01-02 15:04:05"),
			user.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		values = append(values, row)
	}

	return s.replaceSheet(ctx, "Users", "A:J", values)
}

// ReplaceProgressSheet полностью перезаписывает лист с прогрессом
func (s *SheetsService) ReplaceProgressSheet(ctx context.Context, records []*models.Progress) error {
	values := [][]interface{}{
		{"User ID", "Current Day", "Completed Days", "Program Completed", "Completed At", "Updated At"},
	}

	for _, record := range records {
		completedAt := ""
		if !record.ProgramCompletedAt.IsZero() {
			completedAt = record.ProgramCompletedAt.Format("2006-01-02 15:04:05")
		}
		row := []interface{}{
			record.UserID,
			record.CurrentDay,
			formatDays(record.CompletedDays()),
			record.ProgramCompleted,
			completedAt,
			record.UpdatedAt.Format("2006-01-02 15:04:05"),
		}
		values = append(values, row)
	}

	return s.replaceSheet(ctx, "Progress", "A:F", values)
}

func (s *SheetsService) replaceSheet(ctx context.Context, sheetName, colRange string, values [][]interface{}) error {
	clearRange := fmt.Sprintf("%s!%s", sheetName, colRange)
	_, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, clearRange, &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to clear %s sheet: %v", sheetName, err)
	}

	valueRange := &sheets.ValueRange{Values: values}
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, sheetName+"!A1", valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to update %s sheet: %v", sheetName, err)
	}
	return nil
}

func formatDays(days []int) string {
	if len(days) == 0 {
		return ""
	}
	parts := make([]string, 0, len(days))
	for _, day := range days {
		parts = append(parts, fmt.Sprintf("%d", day))
	}
	return strings.Join(parts, ",")
}

// GetSheetIdByName возвращает ID листа по его названию
func (s *SheetsService) GetSheetIdByName(ctx context.Context, sheetName string) (int64, error) {
	spreadsheet, err := s.service.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("unable to get spreadsheet: %v", err)
	}

	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties.Title == sheetName {
			return sheet.Properties.SheetId, nil
		}
	}

	return 0, fmt.Errorf("sheet '%s' not found", sheetName)
}
