// Package navigation keeps the session-local visited and review flags of live
// attempts. Nothing here is persisted: the answered flag is always derived from
// stored answers, and review marks disappear when an attempt is finalized.
package navigation

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-engine/internal/model"
)

type session struct {
	visited  map[uuid.UUID]bool
	marked   map[uuid.UUID]bool
	active   *uuid.UUID
	lastSeen time.Time
}

// Tracker holds navigation state for every live attempt served by this process.
type Tracker struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{sessions: make(map[uuid.UUID]*session)}
}

func (t *Tracker) get(attemptID uuid.UUID, now time.Time) *session {
	s, ok := t.sessions[attemptID]
	if !ok {
		s = &session{
			visited: make(map[uuid.UUID]bool),
			marked:  make(map[uuid.UUID]bool),
		}
		t.sessions[attemptID] = s
	}
	s.lastSeen = now
	return s
}

// Visit marks a question visited and makes it the active question.
func (t *Tracker) Visit(attemptID, questionID uuid.UUID, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.get(attemptID, now)
	s.visited[questionID] = true
	q := questionID
	s.active = &q
}

// ToggleReview flips the review mark of a question and returns the new value.
func (t *Tracker) ToggleReview(attemptID, questionID uuid.UUID, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.get(attemptID, now)
	s.marked[questionID] = !s.marked[questionID]
	if !s.marked[questionID] {
		delete(s.marked, questionID)
	}
	return s.marked[questionID]
}

// ActiveQuestion returns the last visited question of an attempt.
func (t *Tracker) ActiveQuestion(attemptID uuid.UUID) (uuid.UUID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[attemptID]
	if !ok || s.active == nil {
		return uuid.Nil, false
	}
	return *s.active, true
}

// Flags projects visited, answered and review flags for every question. A stored
// answer implies its question was visited and answered.
func (t *Tracker) Flags(attemptID uuid.UUID, questions []model.Question, answers map[uuid.UUID]json.RawMessage) map[uuid.UUID]model.QuestionFlags {
	t.mu.Lock()
	s := t.sessions[attemptID]
	out := make(map[uuid.UUID]model.QuestionFlags, len(questions))
	for _, q := range questions {
		var fl model.QuestionFlags
		if s != nil {
			fl.Visited = s.visited[q.ID]
			fl.MarkedForReview = s.marked[q.ID]
		}
		if Answered(q, answers) {
			fl.Answered = true
			fl.Visited = true
		}
		out[q.ID] = fl
	}
	t.mu.Unlock()
	return out
}

// Clear drops all navigation state of an attempt.
func (t *Tracker) Clear(attemptID uuid.UUID) {
	t.mu.Lock()
	delete(t.sessions, attemptID)
	t.mu.Unlock()
}

// Evict drops sessions not touched since before cutoff and returns how many.
func (t *Tracker) Evict(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id, s := range t.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(t.sessions, id)
			n++
		}
	}
	return n
}

// Len returns the number of tracked sessions.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Answered reports whether a stored, non-empty answer exists for q.
func Answered(q model.Question, answers map[uuid.UUID]json.RawMessage) bool {
	raw, ok := answers[q.ID]
	if !ok {
		return false
	}
	v, err := model.DecodeAnswer(q.Type, raw)
	return err == nil && !v.Empty()
}

// ProgressPercent returns answeredCount / totalQuestionCount * 100.
func ProgressPercent(questions []model.Question, answers map[uuid.UUID]json.RawMessage) float64 {
	if len(questions) == 0 {
		return 0
	}
	n := 0
	for _, q := range questions {
		if Answered(q, answers) {
			n++
		}
	}
	return float64(n) / float64(len(questions)) * 100
}
