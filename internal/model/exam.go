package model

import (
	"time"

	"github.com/google/uuid"
)

// Exam is the read-only configuration of an assessment.
type Exam struct {
	ID                       uuid.UUID  `json:"id"`
	Title                    string     `json:"title"`
	DurationMinutes          int        `json:"duration_minutes"`
	StartsAt                 *time.Time `json:"starts_at,omitempty"`
	EndsAt                   *time.Time `json:"ends_at,omitempty"`
	NegativeMarking          float64    `json:"negative_marking"`
	AutoSubmit               bool       `json:"auto_submit"`
	AllowContinueAfterTimeUp bool       `json:"allow_continue_after_time_up"`
}

// Duration returns the exam-level time budget.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// Section is an ordered, optionally independently timed group of questions.
type Section struct {
	ID              uuid.UUID `json:"id"`
	ExamID          uuid.UUID `json:"exam_id"`
	Title           string    `json:"title"`
	OrderIndex      int       `json:"order_index"`
	DurationMinutes *int      `json:"duration_minutes,omitempty"`
	NegativeMarking *float64  `json:"negative_marking,omitempty"`
	DefaultMarks    *float64  `json:"default_marks,omitempty"`
}

// Duration returns the section time budget and whether the section is timed.
func (s *Section) Duration() (time.Duration, bool) {
	if s.DurationMinutes == nil || *s.DurationMinutes <= 0 {
		return 0, false
	}
	return time.Duration(*s.DurationMinutes) * time.Minute, true
}
