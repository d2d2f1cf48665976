package content

import (
	"fmt"
	"math/rand"
	"os"

	"gopkg.in/yaml.v2"
)

// Lesson is one immutable content unit, keyed by day number. Core days
// (1..MaxDay) are unlocked by the user, extended days by the scheduler.
type Lesson struct {
	Day        int      `yaml:"day"`
	Title      string   `yaml:"title"`
	Subtitle   string   `yaml:"subtitle"`
	Duration   string   `yaml:"duration"`
	Difficulty string   `yaml:"difficulty"`
	Objectives []string `yaml:"objectives"`
	Body       string   `yaml:"body"`
}

// Catalog holds every content unit of the course. Read-only after Load.
type Catalog struct {
	maxDay         int
	extendedMaxDay int
	lessons        map[int]Lesson
	motivations    []string
	weeklyReviews  []string
	graduation     string
}

type catalogFile struct {
	Lessons       []Lesson `yaml:"lessons"`
	Motivations   []string `yaml:"motivations"`
	WeeklyReviews []string `yaml:"weekly_reviews"`
	Graduation    string   `yaml:"graduation"`
}

// Load reads the lesson catalog from a YAML file and validates it
// against the configured course shape.
func Load(path string, maxDay, extendedMaxDay int) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lessons file: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse lessons file: %w", err)
	}

	return New(file.Lessons, file.Motivations, file.WeeklyReviews, file.Graduation, maxDay, extendedMaxDay)
}

// New builds a catalog from already-parsed units.
func New(lessons []Lesson, motivations, weeklyReviews []string, graduation string, maxDay, extendedMaxDay int) (*Catalog, error) {
	byDay := make(map[int]Lesson, len(lessons))
	for _, lesson := range lessons {
		if lesson.Day < 1 {
			return nil, fmt.Errorf("lesson %q has invalid day %d", lesson.Title, lesson.Day)
		}
		if lesson.Day > extendedMaxDay {
			return nil, fmt.Errorf("lesson day %d is beyond extended_max_day %d", lesson.Day, extendedMaxDay)
		}
		if _, dup := byDay[lesson.Day]; dup {
			return nil, fmt.Errorf("duplicate lesson for day %d", lesson.Day)
		}
		if lesson.Body == "" {
			return nil, fmt.Errorf("lesson for day %d has empty body", lesson.Day)
		}
		byDay[lesson.Day] = lesson
	}

	// Core days must be contiguous from 1; extended days may have gaps
	// (gap days simply deliver nothing).
	for day := 1; day <= maxDay; day++ {
		if _, ok := byDay[day]; !ok {
			return nil, fmt.Errorf("missing core lesson for day %d", day)
		}
	}

	return &Catalog{
		maxDay:         maxDay,
		extendedMaxDay: extendedMaxDay,
		lessons:        byDay,
		motivations:    motivations,
		weeklyReviews:  weeklyReviews,
		graduation:     graduation,
	}, nil
}

func (c *Catalog) MaxDay() int         { return c.maxDay }
func (c *Catalog) ExtendedMaxDay() int { return c.extendedMaxDay }

// Lesson returns the content unit for a core day (1..MaxDay).
func (c *Catalog) Lesson(day int) (Lesson, bool) {
	if day < 1 || day > c.maxDay {
		return Lesson{}, false
	}
	lesson, ok := c.lessons[day]
	return lesson, ok
}

// Extended returns the content unit for an extended day
// (MaxDay+1..ExtendedMaxDay).
func (c *Catalog) Extended(day int) (Lesson, bool) {
	if day <= c.maxDay || day > c.extendedMaxDay {
		return Lesson{}, false
	}
	lesson, ok := c.lessons[day]
	return lesson, ok
}

// RandomMotivation picks one message uniformly from the pool.
func (c *Catalog) RandomMotivation() (string, bool) {
	if len(c.motivations) == 0 {
		return "", false
	}
	return c.motivations[rand.Intn(len(c.motivations))], true
}

// WeeklyReview returns the recap for a 1-based week index, clamping to
// the last template so late weeks still get a message.
func (c *Catalog) WeeklyReview(week int) (string, bool) {
	if len(c.weeklyReviews) == 0 || week < 1 {
		return "", false
	}
	if week > len(c.weeklyReviews) {
		week = len(c.weeklyReviews)
	}
	return c.weeklyReviews[week-1], true
}

func (c *Catalog) Graduation() string { return c.graduation }
