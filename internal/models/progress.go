package models

import (
	"sort"
	"time"
)

// Progress is the single course-state record per user. Completed days
// are kept as a map keyed by day number so the course length is a
// config value, not a schema change.
type Progress struct {
	UserID             int64
	CurrentDay         int
	Completed          map[int]time.Time
	ReadyForDay1       bool
	Extended           map[int]time.Time
	Responses          map[int]string
	ProgramCompleted   bool
	ProgramCompletedAt time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func NewProgress(userID int64) *Progress {
	return &Progress{
		UserID:    userID,
		Completed: make(map[int]time.Time),
		Extended:  make(map[int]time.Time),
		Responses: make(map[int]string),
	}
}

func (p *Progress) IsCompleted(day int) bool {
	if p == nil || p.Completed == nil {
		return false
	}
	_, ok := p.Completed[day]
	return ok
}

// CompletedDays returns completed day numbers in ascending order.
func (p *Progress) CompletedDays() []int {
	if p == nil || len(p.Completed) == 0 {
		return nil
	}
	days := make([]int, 0, len(p.Completed))
	for day := range p.Completed {
		days = append(days, day)
	}
	sort.Ints(days)
	return days
}

func (p *Progress) HasExtended(day int) bool {
	if p == nil || p.Extended == nil {
		return false
	}
	_, ok := p.Extended[day]
	return ok
}
