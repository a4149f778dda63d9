// Package timer evaluates the nested exam and section countdowns of an attempt.
//
// Nothing here ticks. Every evaluation is a function of the stored start
// timestamps and the current time, so a client that disconnects and returns
// later sees exactly the state the clocks imply.
package timer

import (
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-engine/internal/model"
)

// FinalizeReason explains why an evaluation requires the attempt to be closed.
type FinalizeReason string

const (
	ReasonNone              FinalizeReason = ""
	ReasonExamExpired       FinalizeReason = "exam_expired"
	ReasonSectionsExhausted FinalizeReason = "sections_exhausted"
)

// Progress is the stored timing state of an attempt.
type Progress struct {
	StartedAt        time.Time
	ActiveSectionID  *uuid.UUID
	SectionStartedAt *time.Time
	Locked           []uuid.UUID
}

// ProgressOf extracts the timing state of an attempt.
func ProgressOf(a *model.Attempt) Progress {
	return Progress{
		StartedAt:        a.StartedAt,
		ActiveSectionID:  a.ActiveSectionID,
		SectionStartedAt: a.SectionStartedAt,
		Locked:           a.LockedSections,
	}
}

// Evaluation is the outcome of applying the clocks to an attempt at one instant.
type Evaluation struct {
	ExamRemaining    time.Duration
	SectionRemaining *time.Duration
	ActiveSectionID  *uuid.UUID
	SectionStartedAt *time.Time
	Locked           []uuid.UUID
	NewlyLocked      []uuid.UUID
	TimeUp           bool
	Finalize         bool
	Reason           FinalizeReason
}

// Advanced reports whether the evaluation forced at least one section transition.
func (e *Evaluation) Advanced() bool {
	return len(e.NewlyLocked) > 0
}

// IsLocked reports whether sectionID is locked after the evaluation.
func (e *Evaluation) IsLocked(sectionID uuid.UUID) bool {
	return contains(e.Locked, sectionID)
}

// Evaluate applies the exam-level and section-level clocks at now. Sections must
// be ordered by OrderIndex.
//
// An expired section hands over to the next one at its own deadline, not at now.
// A section deadline at or after the exam deadline never fires: exam expiry wins.
func Evaluate(exam model.Exam, sections []model.Section, p Progress, now time.Time) Evaluation {
	ev := Evaluation{
		Locked: append([]uuid.UUID(nil), p.Locked...),
	}

	var examDeadline *time.Time
	if d := exam.Duration(); d > 0 {
		t := p.StartedAt.Add(d)
		examDeadline = &t
		ev.ExamRemaining = clampZero(t.Sub(now))
	}

	active := p.ActiveSectionID
	sectionStart := p.StartedAt
	if p.SectionStartedAt != nil {
		sectionStart = *p.SectionStartedAt
	}
	if active == nil && len(sections) > 0 {
		s := firstOpen(sections, ev.Locked)
		switch {
		case s == nil:
			ev.Finalize = true
			ev.Reason = ReasonSectionsExhausted
		case len(ev.Locked) == 0:
			// Rows written before section tracking resume at the first section.
			id := s.ID
			active = &id
		}
	}

	for active != nil {
		sec := find(sections, *active)
		if sec == nil {
			active = nil
			break
		}
		dur, timed := sec.Duration()
		if !timed {
			break
		}
		deadline := sectionStart.Add(dur)
		if now.Before(deadline) {
			break
		}
		if examDeadline != nil && !deadline.Before(*examDeadline) {
			break
		}

		ev.Locked = append(ev.Locked, sec.ID)
		ev.NewlyLocked = append(ev.NewlyLocked, sec.ID)

		next := nextOpen(sections, sec.ID, ev.Locked)
		if next == nil {
			active = nil
			ev.Finalize = true
			ev.Reason = ReasonSectionsExhausted
			break
		}
		id := next.ID
		active = &id
		sectionStart = deadline
	}

	ev.ActiveSectionID = active
	if active != nil {
		start := sectionStart
		ev.SectionStartedAt = &start
		if sec := find(sections, *active); sec != nil {
			if dur, timed := sec.Duration(); timed {
				rem := clampZero(start.Add(dur).Sub(now))
				if examDeadline != nil && rem > ev.ExamRemaining {
					rem = ev.ExamRemaining
				}
				ev.SectionRemaining = &rem
			}
		}
	}

	if examDeadline != nil && !now.Before(*examDeadline) && !ev.Finalize {
		ev.TimeUp = true
		if !exam.AllowContinueAfterTimeUp {
			ev.Finalize = true
			ev.Reason = ReasonExamExpired
		}
	}

	return ev
}

// Advance locks sectionID and activates the next open section by order index,
// whose clock starts at now. It returns nil when no section remains.
func Advance(sections []model.Section, locked []uuid.UUID, sectionID uuid.UUID, now time.Time) (next *model.Section, newLocked []uuid.UUID, sectionStart *time.Time) {
	newLocked = append([]uuid.UUID(nil), locked...)
	if !contains(newLocked, sectionID) {
		newLocked = append(newLocked, sectionID)
	}
	next = nextOpen(sections, sectionID, newLocked)
	if next == nil {
		return nil, newLocked, nil
	}
	start := now
	return next, newLocked, &start
}

// Deadline returns when the exam-level clock of an attempt started at startedAt
// runs out, and false for an unbounded exam.
func Deadline(exam model.Exam, startedAt time.Time) (time.Time, bool) {
	d := exam.Duration()
	if d <= 0 {
		return time.Time{}, false
	}
	return startedAt.Add(d), true
}

func find(sections []model.Section, id uuid.UUID) *model.Section {
	for i := range sections {
		if sections[i].ID == id {
			return &sections[i]
		}
	}
	return nil
}

func firstOpen(sections []model.Section, locked []uuid.UUID) *model.Section {
	for i := range sections {
		if !contains(locked, sections[i].ID) {
			return &sections[i]
		}
	}
	return nil
}

func nextOpen(sections []model.Section, after uuid.UUID, locked []uuid.UUID) *model.Section {
	seen := false
	for i := range sections {
		if sections[i].ID == after {
			seen = true
			continue
		}
		if seen && !contains(locked, sections[i].ID) {
			return &sections[i]
		}
	}
	return nil
}

func contains(ids []uuid.UUID, id uuid.UUID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func clampZero(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
