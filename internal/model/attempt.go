package model

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt lifecycle states.
type AttemptStatus string

const (
	AttemptStatusOngoing   AttemptStatus = "ongoing"
	AttemptStatusCompleted AttemptStatus = "completed"
)

var (
	ongoingSpellings   = []string{"ongoing", "in_progress", "in-progress", "inprogress", "started"}
	completedSpellings = []string{"completed", "complete", "submitted", "expired", "finished"}
)

// OngoingSpellings returns every lower-case stored status that means ongoing.
// Queries filtering on ongoing rows compare lower(btrim(status)) against it.
func OngoingSpellings() []string {
	return slices.Clone(ongoingSpellings)
}

// NormalizeStatus maps legacy spellings found in stored rows to the canonical
// status. Unknown values are returned unchanged.
func NormalizeStatus(raw string) AttemptStatus {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case slices.Contains(ongoingSpellings, s):
		return AttemptStatusOngoing
	case slices.Contains(completedSpellings, s):
		return AttemptStatusCompleted
	}
	return AttemptStatus(raw)
}

// Attempt is one candidate's instance of taking an exam. Section progress is
// stored alongside the lifecycle fields so a reconnect resumes the cascade.
type Attempt struct {
	ID               uuid.UUID         `json:"id"`
	ExamID           uuid.UUID         `json:"exam_id"`
	CandidateID      string            `json:"candidate_id"`
	Status           AttemptStatus     `json:"status"`
	StartedAt        time.Time         `json:"started_at"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
	Score            *float64          `json:"score,omitempty"`
	TotalMarks       *float64          `json:"total_marks,omitempty"`
	ActiveSectionID  *uuid.UUID        `json:"active_section_id,omitempty"`
	SectionStartedAt *time.Time        `json:"section_started_at,omitempty"`
	LockedSections   []uuid.UUID       `json:"locked_sections"`
	Version          int               `json:"version"`
	Breakdown        []QuestionOutcome `json:"-"`
}

// Completed reports whether the attempt reached its terminal state.
func (a *Attempt) Completed() bool {
	return a.Status == AttemptStatusCompleted
}

// SectionLocked reports whether the given section is in the locked set.
func (a *Attempt) SectionLocked(sectionID uuid.UUID) bool {
	for _, id := range a.LockedSections {
		if id == sectionID {
			return true
		}
	}
	return false
}

// Result returns the stored score of a completed attempt.
func (a *Attempt) Result() *ScoreResult {
	if !a.Completed() {
		return nil
	}
	r := &ScoreResult{}
	if a.Score != nil {
		r.Score = *a.Score
	}
	if a.TotalMarks != nil {
		r.TotalPossible = *a.TotalMarks
	}
	r.Breakdown = a.Breakdown
	return r
}

// ScoreResult is the outcome of grading an attempt.
type ScoreResult struct {
	Score         float64           `json:"score"`
	TotalPossible float64           `json:"total_possible"`
	Breakdown     []QuestionOutcome `json:"breakdown,omitempty"`
}

// Outcome classifies how a single question contributed to the score.
type Outcome string

const (
	OutcomeCorrect    Outcome = "CORRECT"
	OutcomeIncorrect  Outcome = "INCORRECT"
	OutcomeUnanswered Outcome = "UNANSWERED"
	// OutcomeUnscorable marks an answered question whose stored key is missing
	// or undecodable. It earns nothing and is never penalized.
	OutcomeUnscorable Outcome = "UNSCORABLE"
)

// QuestionOutcome is the per-question scoring record.
type QuestionOutcome struct {
	QuestionID uuid.UUID `json:"question_id"`
	SectionID  uuid.UUID `json:"section_id"`
	Outcome    Outcome   `json:"outcome"`
	Marks      float64   `json:"marks"`
	Earned     float64   `json:"earned"`
}
