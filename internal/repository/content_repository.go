package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-engine/internal/model"
)

// ContentRepository reads exam configuration, sections and questions.
type ContentRepository struct {
	pool *pgxpool.Pool
}

// NewContentRepository creates a new ContentRepository.
func NewContentRepository(pool *pgxpool.Pool) *ContentRepository {
	return &ContentRepository{pool: pool}
}

// GetContent loads an exam with its sections and questions in display order.
func (r *ContentRepository) GetContent(ctx context.Context, examID uuid.UUID) (*model.ExamContent, error) {
	c := &model.ExamContent{}
	e := &c.Exam
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, duration_minutes, starts_at, ends_at, negative_marking,
		        auto_submit, allow_continue_after_time_up
		 FROM exams WHERE id = $1`, examID,
	).Scan(&e.ID, &e.Title, &e.DurationMinutes, &e.StartsAt, &e.EndsAt, &e.NegativeMarking,
		&e.AutoSubmit, &e.AllowContinueAfterTimeUp)
	if err != nil {
		return nil, notFound(err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, title, order_index, duration_minutes, negative_marking, default_marks
		 FROM exam_sections
		 WHERE exam_id = $1
		 ORDER BY order_index ASC`, examID,
	)
	if err != nil {
		return nil, fmt.Errorf("query sections: %w", err)
	}
	for rows.Next() {
		var s model.Section
		if err := rows.Scan(&s.ID, &s.ExamID, &s.Title, &s.OrderIndex,
			&s.DurationMinutes, &s.NegativeMarking, &s.DefaultMarks); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan section: %w", err)
		}
		c.Sections = append(c.Sections, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx,
		`SELECT q.id, q.section_id, q.question_text, q.question_type, q.options,
		        q.correct_answer, q.marks, q.order_num
		 FROM questions q
		 JOIN exam_sections s ON s.id = q.section_id
		 WHERE s.exam_id = $1
		 ORDER BY s.order_index ASC, q.order_num ASC`, examID,
	)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.SectionID, &q.QuestionText, &q.Type, &q.Options,
			&q.CorrectAnswer, &q.Marks, &q.OrderNum); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		c.Questions = append(c.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	c.Normalize()
	return c, nil
}

// ListOpenExamIDs returns exams whose window has not closed at now.
func (r *ContentRepository) ListOpenExamIDs(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM exams
		 WHERE ends_at IS NULL OR ends_at > $1
		 ORDER BY id`, now,
	)
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
