package service

import (
	"context"
	"fmt"

	"luybot/internal/config"
	"luybot/internal/domain"
	"luybot/internal/events"
	"luybot/internal/models"

	"github.com/rs/zerolog"
)

type UserService struct {
	repo       domain.Repository
	config     *config.Config
	eventBus   domain.EventPublisher
	logger     *zerolog.Logger
	adminsMap  map[int64]bool
	blockedMap map[int64]bool
}

func NewUserService(repo domain.Repository, cfg *config.Config, eventBus domain.EventPublisher, logger *zerolog.Logger) *UserService {
	adminsMap := make(map[int64]bool)
	for _, id := range cfg.Admins {
		adminsMap[id] = true
	}

	blockedMap := make(map[int64]bool)
	for _, id := range cfg.Blocked {
		blockedMap[id] = true
	}

	return &UserService{
		repo:       repo,
		config:     cfg,
		eventBus:   eventBus,
		logger:     logger,
		adminsMap:  adminsMap,
		blockedMap: blockedMap,
	}
}

func (s *UserService) IsAdmin(userID int64) bool {
	return s.adminsMap[userID]
}

func (s *UserService) IsBlocked(userID int64) bool {
	return s.blockedMap[userID]
}

func (s *UserService) SaveUser(ctx context.Context, user *models.User) error {
	user.IsAdmin = s.IsAdmin(user.TelegramID)
	user.IsBlocked = s.IsBlocked(user.TelegramID)
	return s.repo.CreateOrUpdateUser(ctx, user)
}

// GrantTier marks the user paid at the given tier. Payment is handled
// outside the bot; this is the admin hook that unlocks the course.
func (s *UserService) GrantTier(ctx context.Context, telegramID int64, tier string) error {
	if !models.ValidTier(tier) {
		return fmt.Errorf("unknown tier %q", tier)
	}

	price := s.config.TierPrice(tier)
	if err := s.repo.SetUserPaid(ctx, telegramID, tier, price); err != nil {
		return err
	}

	s.logger.Info().Int64("user_id", telegramID).Str("tier", tier).Msg("tier granted")

	if s.eventBus != nil {
		payload := events.ProgressEventPayload{UserID: telegramID, Tier: tier}
		if err := s.eventBus.PublishJSON(events.EventUserPaid, payload); err != nil {
			s.logger.Error().Err(err).Msg("failed to publish payment event")
		}
	}
	return nil
}

func (s *UserService) UpdateUserActivity(ctx context.Context, telegramID int64) error {
	return s.repo.UpdateUserActivity(ctx, telegramID)
}

func (s *UserService) GetUser(ctx context.Context, telegramID int64) (*models.User, error) {
	return s.repo.GetUserByTelegramID(ctx, telegramID)
}

func (s *UserService) GetAllUsers(ctx context.Context) ([]*models.User, error) {
	return s.repo.GetAllUsers(ctx)
}

func (s *UserService) GetPaidUsers(ctx context.Context) ([]*models.User, error) {
	return s.repo.GetPaidUsers(ctx, s.config.Course.ActiveWindowDays)
}

func (s *UserService) GetActiveUsers(ctx context.Context, days int) ([]*models.User, error) {
	return s.repo.GetActiveUsers(ctx, days)
}
