package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/clock"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/lock"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/navigation"
	"github.com/stemsi/exstem-engine/internal/repository"
	"github.com/stemsi/exstem-engine/internal/scoring"
	"github.com/stemsi/exstem-engine/internal/timer"
)

// ContentStore fetches read-only exam content.
type ContentStore interface {
	GetContent(ctx context.Context, examID uuid.UUID) (*model.ExamContent, error)
}

// AttemptStore persists attempt lifecycle state.
type AttemptStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	GetLatest(ctx context.Context, examID uuid.UUID, candidateID string) (*model.Attempt, error)
	Create(ctx context.Context, a *model.Attempt) (*model.Attempt, bool, error)
	UpdateProgress(ctx context.Context, a *model.Attempt) error
	Complete(ctx context.Context, id uuid.UUID, result model.ScoreResult, locked []uuid.UUID, at time.Time) (*model.Attempt, bool, error)
	ListExpired(ctx context.Context, now time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

// AnswerStore persists the latest answer per question.
type AnswerStore interface {
	Upsert(ctx context.Context, attemptID, questionID uuid.UUID, value json.RawMessage, at time.Time) error
	GetAll(ctx context.Context, attemptID uuid.UUID) (map[uuid.UUID]json.RawMessage, error)
}

// AttemptDeps are the collaborators of an AttemptService.
type AttemptDeps struct {
	Content  ContentStore
	Attempts AttemptStore
	Answers  AnswerStore
	Locker   lock.Locker
	Clock    clock.Clock
	Tracker  *navigation.Tracker
	// LockWait bounds how long a call waits for another request on the same
	// attempt before failing with ErrConcurrentUpdate.
	LockWait time.Duration
}

// AttemptService runs the attempt lifecycle: start or resume, answer, review,
// section transitions and finalize. Every mutation holds the attempt's lock for
// the duration of the call only.
type AttemptService struct {
	content  ContentStore
	attempts AttemptStore
	answers  AnswerStore
	locker   lock.Locker
	clock    clock.Clock
	tracker  *navigation.Tracker
	lockWait time.Duration
	log      zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(deps AttemptDeps, log zerolog.Logger) *AttemptService {
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Tracker == nil {
		deps.Tracker = navigation.NewTracker()
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewKeyedMutex()
	}
	if deps.LockWait <= 0 {
		deps.LockWait = 5 * time.Second
	}
	return &AttemptService{
		content:  deps.Content,
		attempts: deps.Attempts,
		answers:  deps.Answers,
		locker:   deps.Locker,
		clock:    deps.Clock,
		tracker:  deps.Tracker,
		lockWait: deps.LockWait,
		log:      log.With().Str("component", "attempt_service").Logger(),
	}
}

// ResolveSession starts or resumes the candidate's attempt on an exam.
//
// A new attempt is only created inside the eligibility window. An ongoing attempt
// stays resumable after the window closes. A completed attempt yields a read-only
// state with its stored result.
func (s *AttemptService) ResolveSession(ctx context.Context, candidateID string, examID uuid.UUID) (*model.SessionState, error) {
	content, err := s.loadContent(ctx, examID)
	if err != nil {
		return nil, err
	}

	latest, err := s.attempts.GetLatest(ctx, examID, candidateID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, storageErr("get latest attempt", err)
	}

	if latest == nil {
		latest, err = s.create(ctx, content, candidateID)
		if err != nil {
			return nil, err
		}
	}

	if latest.Completed() {
		return s.buildState(ctx, content, latest, timer.Evaluation{})
	}
	return s.resume(ctx, content, latest.ID)
}

// State returns the current session state of an attempt owned by candidateID.
func (s *AttemptService) State(ctx context.Context, candidateID string, attemptID uuid.UUID) (*model.SessionState, error) {
	a, err := s.owned(ctx, candidateID, attemptID)
	if err != nil {
		return nil, err
	}
	content, err := s.loadContent(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}
	if a.Completed() {
		return s.buildState(ctx, content, a, timer.Evaluation{})
	}
	return s.resume(ctx, content, a.ID)
}

func (s *AttemptService) create(ctx context.Context, content *model.ExamContent, candidateID string) (*model.Attempt, error) {
	exam := content.Exam
	now := s.clock.Now()
	if exam.StartsAt != nil && now.Before(*exam.StartsAt) {
		return nil, ErrNotYetOpen
	}
	if exam.EndsAt != nil && now.After(*exam.EndsAt) {
		return nil, ErrWindowClosed
	}

	release, err := s.acquire(ctx, config.CacheKey.CandidateExamLockKey(candidateID, exam.ID))
	if err != nil {
		return nil, err
	}
	defer release()

	a := &model.Attempt{
		ExamID:      exam.ID,
		CandidateID: candidateID,
		Status:      model.AttemptStatusOngoing,
		StartedAt:   now,
	}
	if first, ok := content.FirstSection(); ok {
		id := first.ID
		a.ActiveSectionID = &id
		a.SectionStartedAt = &now
	}

	created, isNew, err := s.attempts.Create(ctx, a)
	if err != nil {
		return nil, storageErr("create attempt", err)
	}
	if isNew {
		s.log.Info().
			Str("attempt_id", created.ID.String()).
			Str("exam_id", exam.ID.String()).
			Str("candidate_id", candidateID).
			Msg("Attempt created")
	}
	return created, nil
}

func (s *AttemptService) resume(ctx context.Context, content *model.ExamContent, attemptID uuid.UUID) (*model.SessionState, error) {
	release, err := s.acquire(ctx, config.CacheKey.AttemptLockKey(attemptID))
	if err != nil {
		return nil, err
	}
	defer release()

	a, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	a, ev, err := s.refresh(ctx, content, a, s.clock.Now())
	if err != nil {
		return nil, err
	}
	return s.buildState(ctx, content, a, ev)
}

// RecordAnswer validates and stores an answer. The write is synchronous: an
// error means the answer was not stored.
func (s *AttemptService) RecordAnswer(ctx context.Context, candidateID string, attemptID, questionID uuid.UUID, value json.RawMessage) error {
	release, err := s.acquire(ctx, config.CacheKey.AttemptLockKey(attemptID))
	if err != nil {
		return err
	}
	defer release()

	a, err := s.owned(ctx, candidateID, attemptID)
	if err != nil {
		return err
	}
	if a.Completed() {
		return ErrAttemptClosed
	}

	content, err := s.loadContent(ctx, a.ExamID)
	if err != nil {
		return err
	}
	q, ok := content.Question(questionID)
	if !ok {
		return ErrQuestionNotFound
	}
	if _, err := model.DecodeAnswer(q.Type, value); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAnswer, err)
	}

	now := s.clock.Now()
	a, _, err = s.refresh(ctx, content, a, now)
	if err != nil {
		return err
	}
	if a.Completed() {
		return ErrAttemptClosed
	}
	if a.SectionLocked(q.SectionID) {
		return ErrSectionLocked
	}

	if err := s.answers.Upsert(ctx, a.ID, q.ID, value, now); err != nil {
		// A question removed after the content was cached.
		if errors.Is(err, repository.ErrNotFound) {
			return ErrQuestionNotFound
		}
		return storageErr("upsert answer", err)
	}
	s.tracker.Visit(a.ID, q.ID, now)
	return nil
}

// ToggleReview flips the review mark of a question and returns the new mark.
// Marks live in this process only.
func (s *AttemptService) ToggleReview(ctx context.Context, candidateID string, attemptID, questionID uuid.UUID) (bool, error) {
	release, err := s.acquire(ctx, config.CacheKey.AttemptLockKey(attemptID))
	if err != nil {
		return false, err
	}
	defer release()

	a, err := s.openQuestion(ctx, candidateID, attemptID, questionID)
	if err != nil {
		return false, err
	}
	return s.tracker.ToggleReview(a.ID, questionID, s.clock.Now()), nil
}

// VisitQuestion records that a question became the active question.
func (s *AttemptService) VisitQuestion(ctx context.Context, candidateID string, attemptID, questionID uuid.UUID) error {
	release, err := s.acquire(ctx, config.CacheKey.AttemptLockKey(attemptID))
	if err != nil {
		return err
	}
	defer release()

	a, err := s.openQuestion(ctx, candidateID, attemptID, questionID)
	if err != nil {
		return err
	}
	s.tracker.Visit(a.ID, questionID, s.clock.Now())
	return nil
}

// openQuestion checks that questionID belongs to an ongoing attempt of the
// candidate. The caller holds the attempt lock until its tracker write is done.
func (s *AttemptService) openQuestion(ctx context.Context, candidateID string, attemptID, questionID uuid.UUID) (*model.Attempt, error) {
	a, err := s.owned(ctx, candidateID, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Completed() {
		return nil, ErrAttemptClosed
	}
	content, err := s.loadContent(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}
	if _, ok := content.Question(questionID); !ok {
		return nil, ErrQuestionNotFound
	}
	return a, nil
}

// AdvanceSection locks sectionID and activates the next section, whose clock
// starts now. It returns nil when sectionID was the last section; the attempt
// is then due for finalize.
//
// Advancing a section that is already locked returns the current active section.
func (s *AttemptService) AdvanceSection(ctx context.Context, candidateID string, attemptID, sectionID uuid.UUID) (*uuid.UUID, error) {
	release, err := s.acquire(ctx, config.CacheKey.AttemptLockKey(attemptID))
	if err != nil {
		return nil, err
	}
	defer release()

	a, _, err := s.advance(ctx, candidateID, attemptID, sectionID)
	if err != nil {
		return nil, err
	}
	return a.ActiveSectionID, nil
}

// FinishSection advances past sectionID and finalizes the attempt when no
// section remains. On a completed attempt it returns the stored result, so a
// retried call after the final section sees the same response.
func (s *AttemptService) FinishSection(ctx context.Context, candidateID string, attemptID, sectionID uuid.UUID) (*model.FinishSectionResponse, error) {
	release, err := s.acquire(ctx, config.CacheKey.AttemptLockKey(attemptID))
	if err != nil {
		return nil, err
	}
	defer release()

	a, content, err := s.advance(ctx, candidateID, attemptID, sectionID)
	if errors.Is(err, ErrAttemptClosed) {
		return s.finished(ctx, candidateID, attemptID, sectionID)
	}
	if err != nil {
		return nil, err
	}
	if a.ActiveSectionID != nil {
		next := *a.ActiveSectionID
		return &model.FinishSectionResponse{NextSectionID: &next}, nil
	}

	done, err := s.finalizeLocked(ctx, content, a, s.clock.Now())
	if err != nil {
		return nil, err
	}
	return &model.FinishSectionResponse{Finalized: true, Result: done.Result()}, nil
}

func (s *AttemptService) finished(ctx context.Context, candidateID string, attemptID, sectionID uuid.UUID) (*model.FinishSectionResponse, error) {
	a, err := s.owned(ctx, candidateID, attemptID)
	if err != nil {
		return nil, err
	}
	if !a.Completed() {
		return nil, ErrAttemptClosed
	}
	content, err := s.loadContent(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}
	if _, ok := content.Section(sectionID); !ok {
		return nil, ErrSectionNotFound
	}
	return &model.FinishSectionResponse{Finalized: true, Result: a.Result()}, nil
}

func (s *AttemptService) advance(ctx context.Context, candidateID string, attemptID, sectionID uuid.UUID) (*model.Attempt, *model.ExamContent, error) {
	a, err := s.owned(ctx, candidateID, attemptID)
	if err != nil {
		return nil, nil, err
	}
	if a.Completed() {
		return nil, nil, ErrAttemptClosed
	}
	content, err := s.loadContent(ctx, a.ExamID)
	if err != nil {
		return nil, nil, err
	}
	if _, ok := content.Section(sectionID); !ok {
		return nil, nil, ErrSectionNotFound
	}

	now := s.clock.Now()
	a, _, err = s.refresh(ctx, content, a, now)
	if err != nil {
		return nil, nil, err
	}
	if a.Completed() {
		return nil, nil, ErrAttemptClosed
	}
	if a.SectionLocked(sectionID) {
		return a, content, nil
	}
	if a.ActiveSectionID == nil || *a.ActiveSectionID != sectionID {
		return nil, nil, ErrSectionNotActive
	}

	next, locked, start := timer.Advance(content.Sections, a.LockedSections, sectionID, now)
	a.LockedSections = locked
	a.SectionStartedAt = start
	a.ActiveSectionID = nil
	if next != nil {
		id := next.ID
		a.ActiveSectionID = &id
	}
	if err := s.saveProgress(ctx, a); err != nil {
		return nil, nil, err
	}

	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Str("section_id", sectionID.String()).
		Bool("last", next == nil).
		Msg("Section finished")
	return a, content, nil
}

// Finalize completes the attempt and returns its score. Calling it again
// returns the stored result without scoring twice.
func (s *AttemptService) Finalize(ctx context.Context, candidateID string, attemptID uuid.UUID) (*model.ScoreResult, error) {
	release, err := s.acquire(ctx, config.CacheKey.AttemptLockKey(attemptID))
	if err != nil {
		return nil, err
	}
	defer release()

	a, err := s.owned(ctx, candidateID, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Completed() {
		return a.Result(), nil
	}

	content, err := s.loadContent(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}
	done, err := s.finalizeLocked(ctx, content, a, s.clock.Now())
	if err != nil {
		return nil, err
	}
	return done.Result(), nil
}

// SweepExpired re-evaluates ongoing attempts of auto-submitting exams whose
// exam or section deadline has passed and closes those whose clocks require it. It returns how many attempts were finalized.
// Failures on single attempts are logged and skipped.
func (s *AttemptService) SweepExpired(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	closed := 0
	after := uuid.Nil
	now := s.clock.Now()
	for {
		ids, err := s.attempts.ListExpired(ctx, now, after, batchSize)
		if err != nil {
			return closed, storageErr("list expired attempts", err)
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return closed, err
			}
			done, err := s.closeIfExpired(ctx, id)
			if err != nil {
				s.log.Warn().Err(err).Str("attempt_id", id.String()).Msg("Sweep skipped attempt")
				continue
			}
			if done {
				closed++
			}
		}
		if len(ids) < batchSize {
			return closed, nil
		}
		after = ids[len(ids)-1]
	}
}

func (s *AttemptService) closeIfExpired(ctx context.Context, attemptID uuid.UUID) (bool, error) {
	release, err := s.acquire(ctx, config.CacheKey.AttemptLockKey(attemptID))
	if err != nil {
		return false, err
	}
	defer release()

	a, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return false, err
	}
	if a.Completed() {
		return false, nil
	}
	content, err := s.loadContent(ctx, a.ExamID)
	if err != nil {
		return false, err
	}
	a, _, err = s.refresh(ctx, content, a, s.clock.Now())
	if err != nil {
		return false, err
	}
	return a.Completed(), nil
}

// EvictIdleSessions drops navigation state not touched within idle.
func (s *AttemptService) EvictIdleSessions(idle time.Duration) int {
	return s.tracker.Evict(s.clock.Now().Add(-idle))
}

// refresh applies the clocks to an ongoing attempt and persists what they force:
// section locks, the new active section, or completion. The caller holds the
// attempt lock.
func (s *AttemptService) refresh(ctx context.Context, content *model.ExamContent, a *model.Attempt, now time.Time) (*model.Attempt, timer.Evaluation, error) {
	if a.Completed() {
		return a, timer.Evaluation{}, nil
	}

	ev := timer.Evaluate(content.Exam, content.Sections, timer.ProgressOf(a), now)

	if ev.Finalize {
		s.log.Info().
			Str("attempt_id", a.ID.String()).
			Str("reason", string(ev.Reason)).
			Msg("Clock expiry forces finalize")
		done, err := s.finalizeLocked(ctx, content, a, now)
		if err != nil {
			return nil, ev, err
		}
		return done, ev, nil
	}

	if ev.Advanced() || !sameSection(a.ActiveSectionID, ev.ActiveSectionID) {
		a.LockedSections = ev.Locked
		a.ActiveSectionID = ev.ActiveSectionID
		a.SectionStartedAt = ev.SectionStartedAt
		if err := s.saveProgress(ctx, a); err != nil {
			return nil, ev, err
		}
		if ev.Advanced() {
			s.log.Info().
				Str("attempt_id", a.ID.String()).
				Int("locked", len(ev.NewlyLocked)).
				Msg("Section time expired, advanced")
		}
	}
	return a, ev, nil
}

func (s *AttemptService) finalizeLocked(ctx context.Context, content *model.ExamContent, a *model.Attempt, now time.Time) (*model.Attempt, error) {
	answers, err := s.answers.GetAll(ctx, a.ID)
	if err != nil {
		return nil, storageErr("load answers", err)
	}
	result := scoring.ScoreDetailed(content.Exam, content.Sections, content.Questions, answers)

	locked := make([]uuid.UUID, 0, len(content.Sections))
	for _, sec := range content.Sections {
		locked = append(locked, sec.ID)
	}

	done, transitioned, err := s.attempts.Complete(ctx, a.ID, result, locked, now)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, storageErr("complete attempt", err)
	}
	s.tracker.Clear(a.ID)

	if transitioned {
		s.log.Info().
			Str("attempt_id", a.ID.String()).
			Str("candidate_id", a.CandidateID).
			Float64("score", result.Score).
			Float64("total", result.TotalPossible).
			Msg("Attempt finalized")
	}
	return done, nil
}

func (s *AttemptService) saveProgress(ctx context.Context, a *model.Attempt) error {
	err := s.attempts.UpdateProgress(ctx, a)
	if errors.Is(err, repository.ErrVersionConflict) {
		return ErrConcurrentUpdate
	}
	if err != nil {
		return storageErr("update attempt progress", err)
	}
	return nil
}

func (s *AttemptService) buildState(ctx context.Context, content *model.ExamContent, a *model.Attempt, ev timer.Evaluation) (*model.SessionState, error) {
	answers, err := s.answers.GetAll(ctx, a.ID)
	if err != nil {
		return nil, storageErr("load answers", err)
	}

	state := &model.SessionState{
		AttemptID:       a.ID,
		ExamID:          a.ExamID,
		CandidateID:     a.CandidateID,
		Status:          a.Status,
		LockedSections:  append([]uuid.UUID{}, a.LockedSections...),
		Answers:         answers,
		Flags:           s.tracker.Flags(a.ID, content.Questions, answers),
		ProgressPercent: navigation.ProgressPercent(content.Questions, answers),
	}

	if a.Completed() {
		zero := 0.0
		state.ReadOnly = true
		state.RemainingExamSeconds = &zero
		state.Result = a.Result()
		return state, nil
	}

	state.TimeUp = ev.TimeUp
	if content.Exam.Duration() > 0 {
		secs := ev.ExamRemaining.Seconds()
		state.RemainingExamSeconds = &secs
	}
	if ev.SectionRemaining != nil {
		secs := ev.SectionRemaining.Seconds()
		state.RemainingSectionSeconds = &secs
	}
	if a.ActiveSectionID != nil {
		id := *a.ActiveSectionID
		state.ActiveSectionID = &id
		if qid, ok := s.tracker.ActiveQuestion(a.ID); ok {
			for i, q := range content.QuestionsIn(id) {
				if q.ID == qid {
					state.ActiveQuestionIndex = i
					break
				}
			}
		}
	}
	return state, nil
}

func (s *AttemptService) acquire(ctx context.Context, key string) (lock.Release, error) {
	lctx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()
	release, err := s.locker.Acquire(lctx, key)
	if errors.Is(err, lock.ErrNotAcquired) {
		return nil, ErrConcurrentUpdate
	}
	if err != nil {
		return nil, storageErr("acquire attempt lock", err)
	}
	return release, nil
}

func (s *AttemptService) loadContent(ctx context.Context, examID uuid.UUID) (*model.ExamContent, error) {
	content, err := s.content.GetContent(ctx, examID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, storageErr("load exam content", err)
	}
	return content, nil
}

func (s *AttemptService) loadAttempt(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, error) {
	a, err := s.attempts.GetByID(ctx, attemptID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, storageErr("get attempt", err)
	}
	return a, nil
}

func (s *AttemptService) owned(ctx context.Context, candidateID string, attemptID uuid.UUID) (*model.Attempt, error) {
	a, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.CandidateID != candidateID {
		return nil, ErrAttemptNotOwned
	}
	return a, nil
}

func sameSection(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
