package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

type QuestionType string

const (
	QuestionTypeSingleChoice QuestionType = "SINGLE_CHOICE"
	QuestionTypeMultiChoice  QuestionType = "MULTI_CHOICE"
	QuestionTypeBoolean      QuestionType = "BOOLEAN"
	QuestionTypeNumeric      QuestionType = "NUMERIC"
	QuestionTypeFreeText     QuestionType = "FREE_TEXT"
)

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeSingleChoice, QuestionTypeMultiChoice, QuestionTypeBoolean,
		QuestionTypeNumeric, QuestionTypeFreeText:
		return true
	}
	return false
}

// Question represents a single exam question. CorrectAnswer uses the same JSON
// shape as a candidate answer for the question type.
type Question struct {
	ID            uuid.UUID       `json:"id"`
	SectionID     uuid.UUID       `json:"section_id"`
	QuestionText  string          `json:"question_text"`
	Type          QuestionType    `json:"question_type"`
	Options       json.RawMessage `json:"options,omitempty"`
	CorrectAnswer json.RawMessage `json:"correct_answer"`
	Marks         *float64        `json:"marks,omitempty"`
	OrderNum      int             `json:"order_num"`
}
