package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-engine/internal/model"
)

const attemptColumns = `id, exam_id, candidate_id, status, started_at, completed_at, score,
	total_marks, active_section_id, section_started_at, locked_sections, version, score_breakdown`

// AttemptRepository handles attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	a := &model.Attempt{}
	var status string
	var breakdown []byte
	err := row.Scan(&a.ID, &a.ExamID, &a.CandidateID, &status, &a.StartedAt, &a.CompletedAt,
		&a.Score, &a.TotalMarks, &a.ActiveSectionID, &a.SectionStartedAt, &a.LockedSections, &a.Version,
		&breakdown)
	if err != nil {
		return nil, notFound(err)
	}
	a.Status = model.NormalizeStatus(status)
	if len(breakdown) > 0 {
		if err := json.Unmarshal(breakdown, &a.Breakdown); err != nil {
			return nil, fmt.Errorf("decode score breakdown: %w", err)
		}
	}
	return a, nil
}

// GetByID retrieves an attempt by its UUID.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id))
}

// GetLatest retrieves the most recently started attempt of a candidate on an exam.
func (r *AttemptRepository) GetLatest(ctx context.Context, examID uuid.UUID, candidateID string) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE exam_id = $1 AND candidate_id = $2
		 ORDER BY started_at DESC
		 LIMIT 1`, examID, candidateID))
}

// Create inserts a new ongoing attempt. If another ongoing attempt for the same
// candidate and exam already exists, that one is returned with created=false.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) (*model.Attempt, bool, error) {
	locked := a.LockedSections
	if locked == nil {
		locked = []uuid.UUID{}
	}
	created, err := scanAttempt(r.pool.QueryRow(ctx,
		`INSERT INTO attempts (exam_id, candidate_id, status, started_at, active_section_id,
		                       section_started_at, locked_sections)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (exam_id, candidate_id) WHERE status = 'ongoing' DO NOTHING
		 RETURNING `+attemptColumns,
		a.ExamID, a.CandidateID, model.AttemptStatusOngoing, a.StartedAt,
		a.ActiveSectionID, a.SectionStartedAt, locked))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("insert attempt: %w", translate(err))
	}

	existing, err := scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE exam_id = $1 AND candidate_id = $2 AND lower(btrim(status)) = ANY($3)
		 ORDER BY started_at DESC
		 LIMIT 1`, a.ExamID, a.CandidateID, model.OngoingSpellings()))
	if err != nil {
		return nil, false, fmt.Errorf("load conflicting attempt: %w", err)
	}
	return existing, false, nil
}

// UpdateProgress persists section progress if the stored version still matches
// a.Version. On success a.Version is advanced. A row stored with a legacy
// ongoing spelling is rewritten to the canonical status.
func (r *AttemptRepository) UpdateProgress(ctx context.Context, a *model.Attempt) error {
	locked := a.LockedSections
	if locked == nil {
		locked = []uuid.UUID{}
	}
	var version int
	err := r.pool.QueryRow(ctx,
		`UPDATE attempts
		 SET status = $1, active_section_id = $2, section_started_at = $3, locked_sections = $4,
		     version = version + 1, updated_at = NOW()
		 WHERE id = $5 AND version = $6 AND lower(btrim(status)) = ANY($7)
		 RETURNING version`,
		model.AttemptStatusOngoing, a.ActiveSectionID, a.SectionStartedAt, locked, a.ID, a.Version,
		model.OngoingSpellings(),
	).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrVersionConflict
	}
	if err != nil {
		return translate(err)
	}
	a.Version = version
	return nil
}

// Complete moves an attempt to its terminal state with the given result. The row
// is locked for the duration so concurrent finalizers serialize; if the attempt
// was already completed the stored row is returned with transitioned=false and
// the stored score is left untouched.
func (r *AttemptRepository) Complete(ctx context.Context, id uuid.UUID, result model.ScoreResult, locked []uuid.UUID, at time.Time) (*model.Attempt, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanAttempt(tx.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, false, err
	}
	if current.Completed() {
		return current, false, nil
	}

	if locked == nil {
		locked = []uuid.UUID{}
	}
	breakdown, err := json.Marshal(result.Breakdown)
	if err != nil {
		return nil, false, fmt.Errorf("encode score breakdown: %w", err)
	}
	done, err := scanAttempt(tx.QueryRow(ctx,
		`UPDATE attempts
		 SET status = $1, completed_at = $2, score = $3, total_marks = $4,
		     active_section_id = NULL, section_started_at = NULL, locked_sections = $5,
		     score_breakdown = $6, version = version + 1, updated_at = NOW()
		 WHERE id = $7
		 RETURNING `+attemptColumns,
		model.AttemptStatusCompleted, at, result.Score, result.TotalPossible, locked, breakdown, id))
	if err != nil {
		return nil, false, fmt.Errorf("complete attempt: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}
	return done, true, nil
}

// ListExpired returns ids of ongoing attempts on auto-submitting exams that a
// clock may close at now, in id order after the given cursor. An attempt is due
// when its exam deadline or its active section deadline has passed, or when its
// exam has sections but none is active. Pass uuid.Nil to start from the beginning.
func (r *AttemptRepository) ListExpired(ctx context.Context, now time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id
		 FROM attempts a
		 JOIN exams e ON e.id = a.exam_id
		 LEFT JOIN exam_sections s ON s.id = a.active_section_id
		 WHERE lower(btrim(a.status)) = ANY($1) AND e.auto_submit AND a.id > $2
		   AND ((a.active_section_id IS NULL
		         AND EXISTS (SELECT 1 FROM exam_sections x WHERE x.exam_id = a.exam_id))
		        OR (e.duration_minutes > 0
		            AND a.started_at + e.duration_minutes * INTERVAL '1 minute' <= $3)
		        OR (s.duration_minutes > 0
		            AND COALESCE(a.section_started_at, a.started_at) + s.duration_minutes * INTERVAL '1 minute' <= $3))
		 ORDER BY a.id
		 LIMIT $4`, model.OngoingSpellings(), after, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
