package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"luybot/internal/config"
	"luybot/internal/content"
	"luybot/internal/database"
	"luybot/internal/domain"
	"luybot/internal/metrics"
	"luybot/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// graduationDay is the sentinel slot in the extended-delivery map that
// records the one-time graduation message.
const graduationDay = 0

// Scheduler drives the three recurring sends: the morning lesson, the
// evening motivation and the weekly review. All times are wall-clock in
// the configured course timezone, so a restart never shifts the
// schedule.
type Scheduler struct {
	users    domain.UserService
	progress domain.ProgressService
	repo     domain.Repository
	catalog  *content.Catalog
	tg       domain.TelegramService
	cfg      *config.Config
	limiter  *rate.Limiter
	logger   *zerolog.Logger
	loc      *time.Location

	started atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// подменяется в тестах
	now func() time.Time
}

func New(
	users domain.UserService,
	progress domain.ProgressService,
	repo domain.Repository,
	catalog *content.Catalog,
	tg domain.TelegramService,
	cfg *config.Config,
	logger *zerolog.Logger,
) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Course.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load course timezone: %w", err)
	}

	rps := cfg.Bot.SendRatePerSecond
	if rps <= 0 {
		rps = models.SendRatePerSecond
	}
	burst := cfg.Bot.SendBurst
	if burst < 1 {
		burst = 1
	}

	return &Scheduler{
		users:    users,
		progress: progress,
		repo:     repo,
		catalog:  catalog,
		tg:       tg,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		logger:   logger,
		loc:      loc,
		now:      time.Now,
	}, nil
}

// Start launches the trigger loops. Calling it twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		s.logger.Warn().Msg("scheduler already running, start ignored")
		return nil
	}

	deliveryHour, deliveryMin, err := parseClock(s.cfg.Course.DeliveryTime)
	if err != nil {
		return fmt.Errorf("parse delivery_time: %w", err)
	}
	motivationHour, motivationMin, err := parseClock(s.cfg.Course.MotivationTime)
	if err != nil {
		return fmt.Errorf("parse motivation_time: %w", err)
	}
	reviewHour, reviewMin, err := parseClock(s.cfg.Course.ReviewTime)
	if err != nil {
		return fmt.Errorf("parse review_time: %w", err)
	}
	reviewWeekday, err := parseWeekday(s.cfg.Course.ReviewWeekday)
	if err != nil {
		return fmt.Errorf("parse review_weekday: %w", err)
	}

	ctx, s.cancel = context.WithCancel(ctx)

	s.runDaily(ctx, deliveryHour, deliveryMin, s.deliverLessons)
	s.runDaily(ctx, motivationHour, motivationMin, s.sendMotivation)
	s.runWeekly(ctx, reviewWeekday, reviewHour, reviewMin, s.sendWeeklyReview)

	s.logger.Info().
		Str("delivery", s.cfg.Course.DeliveryTime).
		Str("motivation", s.cfg.Course.MotivationTime).
		Str("review", fmt.Sprintf("%s %s", s.cfg.Course.ReviewWeekday, s.cfg.Course.ReviewTime)).
		Str("timezone", s.cfg.Course.Timezone).
		Msg("scheduler started")
	return nil
}

// Stop cancels the loops and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) runDaily(ctx context.Context, hour, minute int, tick func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(s.untilNext(hour, minute))
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				tick(ctx)
				timer.Reset(s.untilNext(hour, minute))
			}
		}
	}()
}

func (s *Scheduler) runWeekly(ctx context.Context, weekday time.Weekday, hour, minute int, tick func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(s.untilNextWeekday(weekday, hour, minute))
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				tick(ctx)
				timer.Reset(s.untilNextWeekday(weekday, hour, minute))
			}
		}
	}()
}

// deliverLessons is the morning trigger. The day a user receives is a
// function of their payment date, not of reading progress: the drip
// keeps moving even when the reader pauses.
func (s *Scheduler) deliverLessons(ctx context.Context) {
	users, err := s.users.GetPaidUsers(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("morning delivery: load users")
		return
	}

	now := s.now().In(s.loc)
	sent := 0
	for _, user := range users {
		var delivered bool
		if err := s.forUser(ctx, user.TelegramID, func() error {
			var uerr error
			delivered, uerr = s.deliverToUser(ctx, user, now)
			return uerr
		}); err != nil {
			s.logger.Error().Err(err).Int64("user_id", user.TelegramID).Msg("morning delivery failed for user")
			continue
		}
		if delivered {
			sent++
			metrics.IncScheduledSend("delivery")
		}
	}
	s.logger.Info().Int("users", len(users)).Int("delivered", sent).Msg("morning delivery finished")
}

func (s *Scheduler) deliverToUser(ctx context.Context, user *models.User, now time.Time) (bool, error) {
	day := user.CourseDay(now)
	if day == 0 {
		return false, nil
	}

	switch {
	case day <= s.progress.MaxDay():
		// Core days are advanced by the reader, not by the drip
		return false, nil
	case day <= s.progress.ExtendedMaxDay():
		return s.sendExtendedLesson(ctx, user, day)
	default:
		return s.sendGraduation(ctx, user)
	}
}

func (s *Scheduler) sendExtendedLesson(ctx context.Context, user *models.User, day int) (bool, error) {
	prog, err := s.repo.GetProgress(ctx, user.TelegramID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			// Never opened day 1; the drip has nothing to continue
			return false, nil
		}
		return false, err
	}
	if prog.HasExtended(day) {
		return false, nil
	}

	lesson, ok := s.catalog.Extended(day)
	if !ok {
		// Gap day in the extended track
		return false, nil
	}

	text := fmt.Sprintf("🎁 មាតិកាបន្ថែម\n\n*%s*\n\n%s", lesson.Title, lesson.Body)
	if err := s.limiter.Wait(ctx); err != nil {
		return false, err
	}
	if _, err := s.tg.SendMarkdown(user.TelegramID, text); err != nil {
		return false, err
	}

	return true, s.progress.RecordExtendedDelivery(ctx, user.TelegramID, day)
}

func (s *Scheduler) sendGraduation(ctx context.Context, user *models.User) (bool, error) {
	prog, err := s.repo.GetProgress(ctx, user.TelegramID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if prog.HasExtended(graduationDay) {
		return false, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return false, err
	}
	if _, err := s.tg.SendMarkdown(user.TelegramID, "🎓 "+s.catalog.Graduation()); err != nil {
		return false, err
	}

	return true, s.progress.RecordExtendedDelivery(ctx, user.TelegramID, graduationDay)
}

// sendMotivation is the evening trigger: one random nudge to the whole
// paid population, graduates included.
func (s *Scheduler) sendMotivation(ctx context.Context) {
	message, ok := s.catalog.RandomMotivation()
	if !ok {
		return
	}

	users, err := s.users.GetPaidUsers(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("motivation: load users")
		return
	}

	for _, user := range users {
		user := user
		if err := s.forUser(ctx, user.TelegramID, func() error {
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
			_, err := s.tg.SendMessage(user.TelegramID, "🌙 "+message)
			return err
		}); err != nil {
			s.logger.Error().Err(err).Int64("user_id", user.TelegramID).Msg("motivation failed for user")
			continue
		}
		metrics.IncScheduledSend("motivation")
	}
}

// sendWeeklyReview is the weekly trigger: a recap for readers in the
// extended track, keyed to how long they have been in the course.
func (s *Scheduler) sendWeeklyReview(ctx context.Context) {
	users, err := s.users.GetPaidUsers(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("weekly review: load users")
		return
	}

	now := s.now().In(s.loc)
	for _, user := range users {
		user := user
		var sent bool
		if err := s.forUser(ctx, user.TelegramID, func() error {
			day := user.CourseDay(now)
			if day <= s.progress.MaxDay() || day > s.progress.ExtendedMaxDay() {
				return nil
			}
			week := (day-1)/7 + 1
			review, ok := s.catalog.WeeklyReview(week)
			if !ok {
				return nil
			}
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
			if _, err := s.tg.SendMessage(user.TelegramID, "📋 "+review); err != nil {
				return err
			}
			sent = true
			return nil
		}); err != nil {
			s.logger.Error().Err(err).Int64("user_id", user.TelegramID).Msg("weekly review failed for user")
			continue
		}
		if sent {
			metrics.IncScheduledSend("weekly_review")
		}
	}
}

// forUser runs one user's send so that a panic or error never takes
// down the rest of the batch.
func (s *Scheduler) forUser(ctx context.Context, userID int64, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fn()
}

func (s *Scheduler) untilNext(hour, minute int) time.Duration {
	now := s.now().In(s.loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, s.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

func (s *Scheduler) untilNextWeekday(weekday time.Weekday, hour, minute int) time.Duration {
	now := s.now().In(s.loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, s.loc)
	for next.Weekday() != weekday || !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

func parseClock(value string) (hour, minute int, err error) {
	if _, err = fmt.Sscanf(value, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("invalid clock %q: %w", value, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("clock %q out of range", value)
	}
	return hour, minute, nil
}

func parseWeekday(value string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if d.String() == value {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", value)
}
