package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// QuestionFlags is the per-question navigation projection sent to the driver.
type QuestionFlags struct {
	Visited         bool `json:"visited"`
	Answered        bool `json:"answered"`
	MarkedForReview bool `json:"marked_for_review"`
}

// SessionState is the resumable view of an attempt. It is rebuilt from the stored
// attempt, its answers and the clock on every resolve and is never stored itself.
type SessionState struct {
	AttemptID               uuid.UUID                     `json:"attempt_id"`
	ExamID                  uuid.UUID                     `json:"exam_id"`
	CandidateID             string                        `json:"candidate_id"`
	Status                  AttemptStatus                 `json:"status"`
	ReadOnly                bool                          `json:"read_only"`
	TimeUp                  bool                          `json:"time_up"`
	ActiveSectionID         *uuid.UUID                    `json:"active_section_id,omitempty"`
	ActiveQuestionIndex     int                           `json:"active_question_index"`
	RemainingExamSeconds    *float64                      `json:"remaining_exam_seconds,omitempty"`
	RemainingSectionSeconds *float64                      `json:"remaining_section_seconds,omitempty"`
	LockedSections          []uuid.UUID                   `json:"locked_sections"`
	Answers                 map[uuid.UUID]json.RawMessage `json:"answers"`
	Flags                   map[uuid.UUID]QuestionFlags   `json:"flags"`
	ProgressPercent         float64                       `json:"progress_percent"`
	Result                  *ScoreResult                  `json:"result,omitempty"`
}

// SubmitAnswerRequest is the payload for recording an answer.
type SubmitAnswerRequest struct {
	Value json.RawMessage `json:"value" binding:"required,json_value"`
}

// FinishSectionResponse is returned when a section is finished. Exactly one of
// NextSectionID and Result is set.
type FinishSectionResponse struct {
	NextSectionID *uuid.UUID   `json:"next_section_id,omitempty"`
	Finalized     bool         `json:"finalized"`
	Result        *ScoreResult `json:"result,omitempty"`
}
