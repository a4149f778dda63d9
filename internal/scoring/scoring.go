// Package scoring grades an attempt from its persisted answers. Everything here
// is pure: the same inputs always produce the same ScoreResult.
package scoring

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-engine/internal/model"
)

const defaultMarks = 1.0

// Score grades answers against the questions of the given sections and returns
// the clamped score and the total marks possible.
func Score(exam model.Exam, sections []model.Section, questions []model.Question, answers map[uuid.UUID]json.RawMessage) model.ScoreResult {
	r := ScoreDetailed(exam, sections, questions, answers)
	r.Breakdown = nil
	return r
}

// ScoreDetailed is Score with a per-question breakdown attached.
func ScoreDetailed(exam model.Exam, sections []model.Section, questions []model.Question, answers map[uuid.UUID]json.RawMessage) model.ScoreResult {
	bySection := make(map[uuid.UUID]*model.Section, len(sections))
	for i := range sections {
		bySection[sections[i].ID] = &sections[i]
	}

	var result model.ScoreResult
	result.Breakdown = make([]model.QuestionOutcome, 0, len(questions))

	for _, q := range questions {
		s := bySection[q.SectionID]
		marks := MarksFor(q, s)
		negative := NegativeFor(exam, s)
		result.TotalPossible += marks

		outcome := model.QuestionOutcome{
			QuestionID: q.ID,
			SectionID:  q.SectionID,
			Outcome:    model.OutcomeUnanswered,
			Marks:      marks,
		}

		given, err := model.DecodeAnswer(q.Type, answers[q.ID])
		if err != nil || given.Empty() {
			result.Breakdown = append(result.Breakdown, outcome)
			continue
		}

		key, err := model.DecodeAnswer(q.Type, q.CorrectAnswer)
		switch {
		case err != nil || key.Empty():
			outcome.Outcome = model.OutcomeUnscorable
		case given.Equal(key):
			outcome.Outcome = model.OutcomeCorrect
			outcome.Earned = marks
		default:
			outcome.Outcome = model.OutcomeIncorrect
			outcome.Earned = -negative
		}

		result.Score += outcome.Earned
		result.Breakdown = append(result.Breakdown, outcome)
	}

	if result.Score < 0 {
		result.Score = 0
	}
	return result
}

// MarksFor resolves a question's marks: its own value, then the section
// default, then 1.
func MarksFor(q model.Question, s *model.Section) float64 {
	if q.Marks != nil && *q.Marks > 0 {
		return *q.Marks
	}
	if s != nil && s.DefaultMarks != nil && *s.DefaultMarks > 0 {
		return *s.DefaultMarks
	}
	return defaultMarks
}

// NegativeFor resolves the deduction for an incorrect answer: the section
// override when defined, else the exam default.
func NegativeFor(exam model.Exam, s *model.Section) float64 {
	if s != nil && s.NegativeMarking != nil {
		return *s.NegativeMarking
	}
	return exam.NegativeMarking
}
