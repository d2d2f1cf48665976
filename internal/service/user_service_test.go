package service

import (
	"context"
	"testing"

	"luybot/internal/config"
	"luybot/internal/events"
	"luybot/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestUserService_IsAdmin(t *testing.T) {
	logger := zerolog.Nop()
	cfg := &config.Config{
		Admins: []int64{123, 456},
	}

	s := NewUserService(new(mockRepo), cfg, nil, &logger)

	assert.True(t, s.IsAdmin(123))
	assert.True(t, s.IsAdmin(456))
	assert.False(t, s.IsAdmin(789))
}

func TestUserService_IsBlocked(t *testing.T) {
	logger := zerolog.Nop()
	cfg := &config.Config{
		Admins:  []int64{123},
		Blocked: []int64{789, 999},
	}

	s := NewUserService(new(mockRepo), cfg, nil, &logger)

	assert.True(t, s.IsBlocked(789))
	assert.True(t, s.IsBlocked(999))
	assert.False(t, s.IsBlocked(123))
}

func TestUserService_SaveUser(t *testing.T) {
	repo := new(mockRepo)
	logger := zerolog.Nop()
	cfg := &config.Config{Admins: []int64{123}}
	s := NewUserService(repo, cfg, nil, &logger)

	user := &models.User{TelegramID: 123, FirstName: "Sokha"}

	repo.On("CreateOrUpdateUser", mock.Anything, user).Return(nil)

	err := s.SaveUser(context.Background(), user)
	assert.NoError(t, err)
	assert.True(t, user.IsAdmin)
	repo.AssertExpectations(t)
}

func TestUserService_GrantTier(t *testing.T) {
	repo := new(mockRepo)
	bus := new(mockEventBus)
	logger := zerolog.Nop()
	cfg := &config.Config{
		Tiers: []config.TierConfig{{Name: models.TierPremium, Price: 25}},
	}
	s := NewUserService(repo, cfg, bus, &logger)
	ctx := context.Background()

	t.Run("ValidTier", func(t *testing.T) {
		repo.On("SetUserPaid", ctx, int64(42), models.TierPremium, 25.0).Return(nil).Once()
		bus.On("PublishJSON", events.EventUserPaid, mock.Anything).Return(nil).Once()

		err := s.GrantTier(ctx, 42, models.TierPremium)
		assert.NoError(t, err)
		repo.AssertExpectations(t)
		bus.AssertExpectations(t)
	})

	t.Run("UnknownTier", func(t *testing.T) {
		err := s.GrantTier(ctx, 42, "platinum")
		assert.Error(t, err)
		repo.AssertNotCalled(t, "SetUserPaid", ctx, int64(42), "platinum", 0.0)
	})
}
