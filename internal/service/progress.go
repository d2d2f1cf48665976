package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"luybot/internal/content"
	"luybot/internal/database"
	"luybot/internal/domain"
	"luybot/internal/events"
	"luybot/internal/models"

	"github.com/rs/zerolog"
)

const progressBarSegments = 10

// ProgressEngine is the single authority on day access, completion and
// derived progress views. It keeps no state of its own: every decision
// reads the store fresh and writes back through it.
type ProgressEngine struct {
	repo     domain.Repository
	catalog  *content.Catalog
	states   domain.StateManager
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewProgressEngine(
	repo domain.Repository,
	catalog *content.Catalog,
	states domain.StateManager,
	eventBus domain.EventPublisher,
	logger *zerolog.Logger,
) *ProgressEngine {
	return &ProgressEngine{
		repo:     repo,
		catalog:  catalog,
		states:   states,
		eventBus: eventBus,
		logger:   logger,
	}
}

func (e *ProgressEngine) MaxDay() int         { return e.catalog.MaxDay() }
func (e *ProgressEngine) ExtendedMaxDay() int { return e.catalog.ExtendedMaxDay() }

// OpenDay decides whether the user may read the given core day and, if
// so, returns the lesson plus everything needed to render progress
// controls. Requesting day 1 provisions a missing record via upsert.
func (e *ProgressEngine) OpenDay(ctx context.Context, userID int64, day int) (*domain.LessonView, error) {
	if day < 1 || day > e.catalog.MaxDay() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDay, day)
	}

	user, err := e.repo.GetUserByTelegramID(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotPaid
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !user.IsPaid {
		return nil, ErrNotPaid
	}

	progress, err := e.repo.GetProgress(ctx, userID)
	switch {
	case errors.Is(err, database.ErrNotFound):
		if day != 1 {
			return nil, ErrNoProgress
		}
		progress = models.NewProgress(userID)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if day > 1 && day > progress.CurrentDay {
		return nil, ErrDayLocked
	}

	// First-ever touch of day 1 opens the course.
	if day == 1 && progress.CurrentDay == 0 {
		progress.CurrentDay = 1
		progress.ReadyForDay1 = true
		if err := e.repo.UpsertProgress(ctx, progress); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	lesson, ok := e.catalog.Lesson(day)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDay, day)
	}

	if err := e.repo.UpdateUserActivity(ctx, userID); err != nil {
		e.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to touch last activity")
	}

	completed := progress.CompletedDays()
	return &domain.LessonView{
		Lesson:        lesson,
		CompletedDays: completed,
		ProgressBar:   RenderProgressBar(len(completed), e.catalog.MaxDay()),
		Percent:       percent(len(completed), e.catalog.MaxDay()),
		Navigation:    navigation(progress, e.catalog.MaxDay()),
	}, nil
}

// MarkDayComplete records a completion. Best-effort: the returned
// result carries the failure, the caller-visible flow never blocks on
// it. A double tap within the token TTL is collapsed into one
// completion and reported as Duplicate.
func (e *ProgressEngine) MarkDayComplete(ctx context.Context, userID int64, day int) domain.CompletionResult {
	if day < 1 || day > e.catalog.MaxDay() {
		return domain.CompletionResult{Err: fmt.Errorf("%w: %d", ErrUnknownDay, day)}
	}

	tokenHeld := false
	acquired, err := e.states.AcquireCompletionToken(ctx, userID, day, models.CompletionTokenTTL*time.Second)
	if err != nil {
		// Dedup is advisory; a broken token store must not block completions.
		e.logger.Error().Err(err).Int64("user_id", userID).Msg("completion token check failed")
	} else if !acquired {
		e.logger.Debug().Int64("user_id", userID).Int("day", day).Msg("duplicate completion tap ignored")
		return domain.CompletionResult{Duplicate: true}
	} else {
		tokenHeld = true
	}

	progress, err := e.repo.GetProgress(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		e.releaseCompletionToken(ctx, userID, day, tokenHeld)
		return domain.CompletionResult{Err: ErrNoProgress}
	}
	if err != nil {
		e.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to load progress for completion")
		e.releaseCompletionToken(ctx, userID, day, tokenHeld)
		return domain.CompletionResult{Err: fmt.Errorf("%w: %v", ErrStoreUnavailable, err)}
	}

	// Sequential-completion invariant lives here, not in the store.
	if day > 1 && !progress.IsCompleted(day-1) {
		e.releaseCompletionToken(ctx, userID, day, tokenHeld)
		return domain.CompletionResult{Err: ErrDayLocked}
	}

	now := time.Now()
	alreadyDone := progress.IsCompleted(day)
	progress.Completed[day] = now

	if day < e.catalog.MaxDay() {
		if progress.CurrentDay < day+1 {
			progress.CurrentDay = day + 1
		}
	} else if !progress.ProgramCompleted {
		// Terminal transition happens exactly once; re-marking the last
		// day keeps the original completion stamp.
		progress.ProgramCompleted = true
		progress.ProgramCompletedAt = now
	}

	if err := e.repo.UpsertProgress(ctx, progress); err != nil {
		e.logger.Error().Err(err).Int64("user_id", userID).Int("day", day).Msg("failed to record completion")
		e.releaseCompletionToken(ctx, userID, day, tokenHeld)
		return domain.CompletionResult{Err: fmt.Errorf("%w: %v", ErrStoreUnavailable, err)}
	}

	if err := e.repo.UpdateUserActivity(ctx, userID); err != nil {
		e.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to touch last activity")
	}

	if e.eventBus != nil && !alreadyDone {
		payload := events.ProgressEventPayload{UserID: userID, Day: day, CompletedAt: now}
		if err := e.eventBus.PublishJSON(events.EventDayCompleted, payload); err != nil {
			e.logger.Error().Err(err).Msg("failed to publish day completion event")
		}
		if progress.ProgramCompleted && day == e.catalog.MaxDay() {
			if err := e.eventBus.PublishJSON(events.EventProgramCompleted, payload); err != nil {
				e.logger.Error().Err(err).Msg("failed to publish program completion event")
			}
		}
	}

	return domain.CompletionResult{
		Recorded:         true,
		ProgramCompleted: progress.ProgramCompleted,
		NewCurrentDay:    progress.CurrentDay,
	}
}

// releaseCompletionToken gives the dedup token back when nothing was
// recorded, so the user's retry is not mistaken for a double tap.
func (e *ProgressEngine) releaseCompletionToken(ctx context.Context, userID int64, day int, held bool) {
	if !held {
		return
	}
	if err := e.states.ReleaseCompletionToken(ctx, userID, day); err != nil {
		e.logger.Error().Err(err).Int64("user_id", userID).Int("day", day).Msg("failed to release completion token")
	}
}

// RecordExtendedDelivery stamps the extended-content map after the
// scheduler pushed a drip lesson.
func (e *ProgressEngine) RecordExtendedDelivery(ctx context.Context, userID int64, day int) error {
	progress, err := e.repo.GetProgress(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		progress = models.NewProgress(userID)
	} else if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if progress.Extended == nil {
		progress.Extended = make(map[int]time.Time)
	}
	progress.Extended[day] = time.Now()
	if err := e.repo.UpsertProgress(ctx, progress); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// Day 0 is the graduation slot, the end of the drip calendar.
	if day == 0 && e.eventBus != nil {
		payload := events.ProgressEventPayload{UserID: userID, CompletedAt: progress.Extended[day]}
		if err := e.eventBus.PublishJSON(events.EventUserGraduated, payload); err != nil {
			e.logger.Error().Err(err).Msg("failed to publish graduation event")
		}
	}
	return nil
}

// Streak returns the run of consecutive completed days ending at the
// most recent one.
func (e *ProgressEngine) Streak(ctx context.Context, userID int64) (int, error) {
	progress, err := e.repo.GetProgress(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return 0, ErrNoProgress
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ComputeStreak(progress.CompletedDays()), nil
}

// Navigation classifies every core day for keyboard rendering.
func (e *ProgressEngine) Navigation(ctx context.Context, userID int64) ([]domain.DayStatus, error) {
	progress, err := e.repo.GetProgress(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNoProgress
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return navigation(progress, e.catalog.MaxDay()), nil
}

// Overview renders the per-day status block shown by the overview
// command.
func (e *ProgressEngine) Overview(ctx context.Context, userID int64) (string, error) {
	progress, err := e.repo.GetProgress(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return "", ErrNoProgress
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return RenderOverview(progress, e.catalog), nil
}

// Milestones reports which course milestones the user has reached.
func (e *ProgressEngine) Milestones(ctx context.Context, userID int64) ([]domain.Milestone, error) {
	progress, err := e.repo.GetProgress(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNoProgress
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	maxDay := e.catalog.MaxDay()
	milestoneDays := []int{1, (maxDay + 1) / 2, maxDay}
	titles := []string{"ចាប់ផ្តើមដំណើរ", "ពាក់កណ្តាលផ្លូវ", "បញ្ចប់វគ្គសិក្សា"}

	milestones := make([]domain.Milestone, 0, len(milestoneDays))
	for i, day := range milestoneDays {
		milestones = append(milestones, domain.Milestone{
			Day:     day,
			Title:   titles[i],
			Reached: progress.IsCompleted(day),
		})
	}
	return milestones, nil
}

// ComputeStreak returns the length of the consecutive run that ends at
// the largest completed day. [1,2,4,5,6] → 3: the run 4-5-6. Product
// wants "how long is the current push", not the longest run ever.
func ComputeStreak(completedDays []int) int {
	if len(completedDays) == 0 {
		return 0
	}

	days := append([]int(nil), completedDays...)
	sort.Ints(days)

	streak := 1
	for i := 1; i < len(days); i++ {
		if days[i] == days[i-1]+1 {
			streak++
		} else if days[i] != days[i-1] {
			streak = 1
		}
	}
	return streak
}

// RenderProgressBar draws a 10-segment bar: round(done/total*10) filled
// glyphs plus a percent label.
func RenderProgressBar(done, total int) string {
	if total <= 0 {
		total = 1
	}
	if done > total {
		done = total
	}
	filled := int(math.Round(float64(done) / float64(total) * progressBarSegments))

	var bar strings.Builder
	for i := 0; i < progressBarSegments; i++ {
		if i < filled {
			bar.WriteString("🟩")
		} else {
			bar.WriteString("⬜")
		}
	}
	return fmt.Sprintf("%s %d%%", bar.String(), percent(done, total))
}

func percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(done) / float64(total) * 100))
}

// RenderOverview builds the full-course status block: one line per day
// with its state glyph and title.
func RenderOverview(progress *models.Progress, catalog *content.Catalog) string {
	var sb strings.Builder

	completed := progress.CompletedDays()
	sb.WriteString(RenderProgressBar(len(completed), catalog.MaxDay()))
	sb.WriteString("\n\n")

	for _, status := range navigation(progress, catalog.MaxDay()) {
		glyph := "🔒"
		switch status.State {
		case domain.DayDone:
			glyph = "✅"
		case domain.DayCurrent:
			glyph = "▶️"
		case domain.DayReachable:
			glyph = "🟡"
		}

		title := ""
		if lesson, ok := catalog.Lesson(status.Day); ok {
			title = lesson.Title
		}
		sb.WriteString(fmt.Sprintf("%s ថ្ងៃទី %d — %s\n", glyph, status.Day, title))
	}

	if progress.ProgramCompleted {
		sb.WriteString("\n🎓 ")
		sb.WriteString(catalog.Graduation())
		sb.WriteString("\n")
	}
	return sb.String()
}

func navigation(progress *models.Progress, maxDay int) []domain.DayStatus {
	statuses := make([]domain.DayStatus, 0, maxDay)
	for day := 1; day <= maxDay; day++ {
		state := domain.DayLocked
		switch {
		case progress.IsCompleted(day):
			state = domain.DayDone
		case day == progress.CurrentDay, day == 1 && progress.CurrentDay == 0:
			state = domain.DayCurrent
		case day < progress.CurrentDay:
			state = domain.DayReachable
		}
		statuses = append(statuses, domain.DayStatus{Day: day, State: state})
	}
	return statuses
}
