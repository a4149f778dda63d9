package timer

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-engine/internal/model"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func minutes(n int) *int { return &n }

func section(order int, dur *int) model.Section {
	return model.Section{ID: uuid.New(), OrderIndex: order, DurationMinutes: dur}
}

func progressAt(first model.Section) Progress {
	id := first.ID
	start := t0
	return Progress{StartedAt: t0, ActiveSectionID: &id, SectionStartedAt: &start}
}

func TestEvaluateFreshAttempt(t *testing.T) {
	exam := model.Exam{DurationMinutes: 60}
	a := section(0, minutes(20))
	ev := Evaluate(exam, []model.Section{a}, progressAt(a), t0)

	if ev.ExamRemaining != time.Hour {
		t.Errorf("exam remaining = %v, want 1h", ev.ExamRemaining)
	}
	if ev.SectionRemaining == nil || *ev.SectionRemaining != 20*time.Minute {
		t.Errorf("section remaining = %v, want 20m", ev.SectionRemaining)
	}
	if ev.Finalize || ev.TimeUp || ev.Advanced() {
		t.Errorf("fresh attempt must not transition: %+v", ev)
	}
}

func TestEvaluateLastSectionExpiryFinalizes(t *testing.T) {
	exam := model.Exam{DurationMinutes: 60}
	a := section(0, minutes(20))

	ev := Evaluate(exam, []model.Section{a}, progressAt(a), t0.Add(25*time.Minute))

	if !ev.IsLocked(a.ID) {
		t.Fatalf("section A must be locked after 25 minutes")
	}
	if !ev.Finalize || ev.Reason != ReasonSectionsExhausted {
		t.Errorf("want finalize by exhausted sections, got finalize=%v reason=%q", ev.Finalize, ev.Reason)
	}
	if ev.ActiveSectionID != nil {
		t.Errorf("no section may remain active")
	}
	if ev.ExamRemaining != 35*time.Minute {
		t.Errorf("exam remaining = %v, want 35m", ev.ExamRemaining)
	}
}

func TestEvaluateCascadesFromSectionDeadline(t *testing.T) {
	exam := model.Exam{DurationMinutes: 60}
	a := section(0, minutes(20))
	b := section(1, minutes(10))
	c := section(2, nil)
	sections := []model.Section{a, b, c}

	ev := Evaluate(exam, sections, progressAt(a), t0.Add(25*time.Minute))
	if len(ev.NewlyLocked) != 1 || ev.NewlyLocked[0] != a.ID {
		t.Fatalf("newly locked = %v, want [A]", ev.NewlyLocked)
	}
	if ev.ActiveSectionID == nil || *ev.ActiveSectionID != b.ID {
		t.Fatalf("active = %v, want B", ev.ActiveSectionID)
	}
	if !ev.SectionStartedAt.Equal(t0.Add(20 * time.Minute)) {
		t.Errorf("B must start at A's deadline, got %v", ev.SectionStartedAt)
	}
	if *ev.SectionRemaining != 5*time.Minute {
		t.Errorf("B remaining = %v, want 5m", *ev.SectionRemaining)
	}

	// Long absence: A and B both lapse, C is unbounded.
	ev = Evaluate(exam, sections, progressAt(a), t0.Add(45*time.Minute))
	if len(ev.NewlyLocked) != 2 {
		t.Fatalf("newly locked = %v, want [A B]", ev.NewlyLocked)
	}
	if *ev.ActiveSectionID != c.ID || ev.SectionRemaining != nil {
		t.Errorf("want unbounded C active, got %v remaining %v", ev.ActiveSectionID, ev.SectionRemaining)
	}
	if ev.Finalize {
		t.Errorf("unbounded last section must not finalize before exam expiry")
	}
}

func TestEvaluateExamExpiryTakesPriority(t *testing.T) {
	exam := model.Exam{DurationMinutes: 30}
	a := section(0, minutes(40))
	b := section(1, nil)

	ev := Evaluate(exam, []model.Section{a, b}, progressAt(a), t0.Add(50*time.Minute))
	if ev.Advanced() {
		t.Errorf("section deadline after exam deadline must not fire")
	}
	if !ev.TimeUp || !ev.Finalize || ev.Reason != ReasonExamExpired {
		t.Errorf("want exam expiry finalize, got %+v", ev)
	}
	if ev.ExamRemaining != 0 || *ev.SectionRemaining != 0 {
		t.Errorf("remaining must clamp to zero, got %v / %v", ev.ExamRemaining, *ev.SectionRemaining)
	}
}

func TestEvaluateTimeUpWithContinueAllowed(t *testing.T) {
	exam := model.Exam{DurationMinutes: 30, AllowContinueAfterTimeUp: true}
	a := section(0, nil)

	ev := Evaluate(exam, []model.Section{a}, progressAt(a), t0.Add(31*time.Minute))
	if !ev.TimeUp {
		t.Fatalf("want time-up warning")
	}
	if ev.Finalize {
		t.Errorf("continue-after-time-up must require an explicit finalize")
	}
}

func TestEvaluateSectionRemainingBoundedByExam(t *testing.T) {
	exam := model.Exam{DurationMinutes: 30}
	a := section(0, minutes(10))
	b := section(1, minutes(25))

	id := b.ID
	start := t0.Add(10 * time.Minute)
	p := Progress{StartedAt: t0, ActiveSectionID: &id, SectionStartedAt: &start, Locked: []uuid.UUID{a.ID}}

	ev := Evaluate(exam, []model.Section{a, b}, p, t0.Add(15*time.Minute))
	if *ev.SectionRemaining != 15*time.Minute {
		t.Errorf("section remaining = %v, want 15m (exam bound)", *ev.SectionRemaining)
	}
}

func TestEvaluateIsPure(t *testing.T) {
	exam := model.Exam{DurationMinutes: 60}
	a := section(0, minutes(20))
	b := section(1, nil)
	p := progressAt(a)

	first := Evaluate(exam, []model.Section{a, b}, p, t0.Add(30*time.Minute))
	second := Evaluate(exam, []model.Section{a, b}, p, t0.Add(30*time.Minute))
	if first.ExamRemaining != second.ExamRemaining || *first.ActiveSectionID != *second.ActiveSectionID || len(first.Locked) != len(second.Locked) {
		t.Fatalf("evaluations differ: %+v vs %+v", first, second)
	}
	if len(p.Locked) != 0 {
		t.Errorf("Evaluate must not mutate the input progress")
	}
}

func TestAdvance(t *testing.T) {
	a := section(0, minutes(10))
	b := section(1, nil)
	now := t0.Add(3 * time.Minute)

	next, locked, start := Advance([]model.Section{a, b}, nil, a.ID, now)
	if next == nil || next.ID != b.ID {
		t.Fatalf("next = %v, want B", next)
	}
	if len(locked) != 1 || locked[0] != a.ID || !start.Equal(now) {
		t.Errorf("locked=%v start=%v", locked, start)
	}

	next, locked, start = Advance([]model.Section{a, b}, locked, b.ID, now)
	if next != nil || start != nil || len(locked) != 2 {
		t.Errorf("advancing the last section must return nil, got %v %v %v", next, locked, start)
	}
}

func TestEvaluateAllSectionsLockedFinalizes(t *testing.T) {
	exam := model.Exam{DurationMinutes: 60}
	a := section(0, nil)
	b := section(1, nil)
	p := Progress{StartedAt: t0, Locked: []uuid.UUID{a.ID, b.ID}}

	ev := Evaluate(exam, []model.Section{a, b}, p, t0.Add(time.Minute))
	if !ev.Finalize || ev.Reason != ReasonSectionsExhausted {
		t.Fatalf("want finalize once every section is locked, got %+v", ev)
	}
}

func TestEvaluateLegacyRowStartsFirstSection(t *testing.T) {
	exam := model.Exam{DurationMinutes: 60}
	a := section(0, minutes(10))
	b := section(1, nil)

	ev := Evaluate(exam, []model.Section{a, b}, Progress{StartedAt: t0}, t0.Add(4*time.Minute))
	if ev.ActiveSectionID == nil || *ev.ActiveSectionID != a.ID {
		t.Fatalf("active = %v, want A", ev.ActiveSectionID)
	}
	if *ev.SectionRemaining != 6*time.Minute {
		t.Errorf("section remaining = %v, want 6m", *ev.SectionRemaining)
	}
}
