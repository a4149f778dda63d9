package service

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/repository"
	"github.com/stemsi/exstem-engine/internal/timer"
)

type fakeContent struct {
	mu      sync.Mutex
	content map[uuid.UUID]*model.ExamContent
	err     error
}

func (f *fakeContent) GetContent(_ context.Context, examID uuid.UUID) (*model.ExamContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.content[examID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

// fakeAttempts mimics the row semantics of AttemptRepository: every read
// returns a copy, creation is unique per ongoing (exam, candidate) and progress
// updates are version checked.
type fakeAttempts struct {
	mu            sync.Mutex
	rows          map[uuid.UUID]*model.Attempt
	order         []uuid.UUID
	completeCalls int
	createErr     error
	completeErr   error

	// content resolves deadlines for ListExpired.
	content *fakeContent
	listed  []uuid.UUID
}

func newFakeAttempts() *fakeAttempts {
	return &fakeAttempts{rows: make(map[uuid.UUID]*model.Attempt)}
}

func cloneAttempt(a *model.Attempt) *model.Attempt {
	c := *a
	c.LockedSections = append([]uuid.UUID(nil), a.LockedSections...)
	c.Breakdown = append([]model.QuestionOutcome(nil), a.Breakdown...)
	if a.ActiveSectionID != nil {
		id := *a.ActiveSectionID
		c.ActiveSectionID = &id
	}
	if a.SectionStartedAt != nil {
		t := *a.SectionStartedAt
		c.SectionStartedAt = &t
	}
	return &c
}

func (f *fakeAttempts) GetByID(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneAttempt(a), nil
}

func (f *fakeAttempts) GetLatest(_ context.Context, examID uuid.UUID, candidateID string) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *model.Attempt
	for _, id := range f.order {
		a := f.rows[id]
		if a.ExamID != examID || a.CandidateID != candidateID {
			continue
		}
		if latest == nil || !a.StartedAt.Before(latest.StartedAt) {
			latest = a
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	return cloneAttempt(latest), nil
}

func (f *fakeAttempts) Create(_ context.Context, a *model.Attempt) (*model.Attempt, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, false, f.createErr
	}
	for _, row := range f.rows {
		if row.ExamID == a.ExamID && row.CandidateID == a.CandidateID && row.Status == model.AttemptStatusOngoing {
			return cloneAttempt(row), false, nil
		}
	}
	row := cloneAttempt(a)
	row.ID = uuid.New()
	row.Status = model.AttemptStatusOngoing
	row.Version = 0
	f.rows[row.ID] = row
	f.order = append(f.order, row.ID)
	return cloneAttempt(row), true, nil
}

func (f *fakeAttempts) UpdateProgress(_ context.Context, a *model.Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[a.ID]
	if !ok || row.Version != a.Version || row.Status != model.AttemptStatusOngoing {
		return repository.ErrVersionConflict
	}
	upd := cloneAttempt(a)
	row.ActiveSectionID = upd.ActiveSectionID
	row.SectionStartedAt = upd.SectionStartedAt
	row.LockedSections = upd.LockedSections
	row.Version++
	a.Version = row.Version
	return nil
}

func (f *fakeAttempts) Complete(_ context.Context, id uuid.UUID, result model.ScoreResult, locked []uuid.UUID, at time.Time) (*model.Attempt, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return nil, false, f.completeErr
	}
	row, ok := f.rows[id]
	if !ok {
		return nil, false, repository.ErrNotFound
	}
	if row.Completed() {
		return cloneAttempt(row), false, nil
	}
	f.completeCalls++
	score, total := result.Score, result.TotalPossible
	row.Status = model.AttemptStatusCompleted
	row.CompletedAt = &at
	row.Score = &score
	row.TotalMarks = &total
	row.Breakdown = append([]model.QuestionOutcome(nil), result.Breakdown...)
	row.LockedSections = append([]uuid.UUID(nil), locked...)
	row.ActiveSectionID = nil
	row.SectionStartedAt = nil
	row.Version++
	return cloneAttempt(row), true, nil
}

// ListExpired applies the same due rule as the SQL query: no active section in
// an exam that has sections, or a passed exam or active section deadline.
func (f *fakeAttempts) ListExpired(_ context.Context, now time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uuid.UUID
	for id, row := range f.rows {
		if row.Status != model.AttemptStatusOngoing || id.String() <= after.String() {
			continue
		}
		if f.due(row, now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	f.listed = append(f.listed, ids...)
	return ids, nil
}

func (f *fakeAttempts) due(row *model.Attempt, now time.Time) bool {
	c, err := f.content.GetContent(context.Background(), row.ExamID)
	if err != nil || !c.Exam.AutoSubmit {
		return false
	}
	if row.ActiveSectionID == nil {
		return len(c.Sections) > 0
	}
	if d, ok := timer.Deadline(c.Exam, row.StartedAt); ok && !d.After(now) {
		return true
	}
	sec, ok := c.Section(*row.ActiveSectionID)
	if !ok {
		return false
	}
	dur, timed := sec.Duration()
	if !timed {
		return false
	}
	start := row.StartedAt
	if row.SectionStartedAt != nil {
		start = *row.SectionStartedAt
	}
	return !start.Add(dur).After(now)
}

func (f *fakeAttempts) sweptIDs() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.listed...)
}

func (f *fakeAttempts) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeAnswers struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]map[uuid.UUID]json.RawMessage
	upserts   int
	upsertErr error
	getErr    error
}

func newFakeAnswers() *fakeAnswers {
	return &fakeAnswers{rows: make(map[uuid.UUID]map[uuid.UUID]json.RawMessage)}
}

func (f *fakeAnswers) Upsert(_ context.Context, attemptID, questionID uuid.UUID, value json.RawMessage, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts++
	if f.rows[attemptID] == nil {
		f.rows[attemptID] = make(map[uuid.UUID]json.RawMessage)
	}
	f.rows[attemptID][questionID] = append(json.RawMessage(nil), value...)
	return nil
}

func (f *fakeAnswers) GetAll(_ context.Context, attemptID uuid.UUID) (map[uuid.UUID]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	out := make(map[uuid.UUID]json.RawMessage, len(f.rows[attemptID]))
	for k, v := range f.rows[attemptID] {
		out[k] = v
	}
	return out, nil
}
