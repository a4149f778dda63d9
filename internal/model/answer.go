package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ErrMalformedAnswer is returned when an answer value does not match the shape
// required by its question type.
var ErrMalformedAnswer = errors.New("malformed answer value")

// Answer is a candidate's current response to one question of an attempt.
type Answer struct {
	AttemptID  uuid.UUID       `json:"attempt_id"`
	QuestionID uuid.UUID       `json:"question_id"`
	Value      json.RawMessage `json:"value"`
}

// AnswerValue is a decoded answer normalized for comparison.
// Text holds single-choice ids, boolean literals, numeric and free text.
// Set holds multi-choice option ids, sorted and deduplicated.
type AnswerValue struct {
	Text string
	Set  []string
}

// Empty reports whether the value carries no response.
func (v AnswerValue) Empty() bool {
	return v.Text == "" && len(v.Set) == 0
}

// Equal compares two values of the same question type.
func (v AnswerValue) Equal(o AnswerValue) bool {
	if v.Text != o.Text || len(v.Set) != len(o.Set) {
		return false
	}
	for i := range v.Set {
		if v.Set[i] != o.Set[i] {
			return false
		}
	}
	return true
}

// DecodeAnswer parses raw into a normalized AnswerValue for the question type.
// A missing value, JSON null, empty string or empty list decodes to an empty value.
func DecodeAnswer(t QuestionType, raw json.RawMessage) (AnswerValue, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return AnswerValue{}, nil
	}

	switch t {
	case QuestionTypeSingleChoice:
		s, err := scalarText(raw)
		if err != nil {
			return AnswerValue{}, err
		}
		return AnswerValue{Text: strings.TrimSpace(s)}, nil

	case QuestionTypeBoolean:
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			return AnswerValue{Text: strconv.FormatBool(b)}, nil
		}
		s, err := scalarText(raw)
		if err != nil {
			return AnswerValue{}, err
		}
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			return AnswerValue{}, nil
		}
		if s != "true" && s != "false" {
			return AnswerValue{}, fmt.Errorf("%w: boolean expected, got %q", ErrMalformedAnswer, s)
		}
		return AnswerValue{Text: s}, nil

	case QuestionTypeMultiChoice:
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			// A lone option id is accepted as a one-element selection.
			s, serr := scalarText(raw)
			if serr != nil {
				return AnswerValue{}, fmt.Errorf("%w: list of option ids expected", ErrMalformedAnswer)
			}
			items = []json.RawMessage{json.RawMessage(strconv.Quote(s))}
		}
		set := make(map[string]struct{}, len(items))
		for _, item := range items {
			s, err := scalarText(item)
			if err != nil {
				return AnswerValue{}, err
			}
			if s = strings.TrimSpace(s); s != "" {
				set[s] = struct{}{}
			}
		}
		if len(set) == 0 {
			return AnswerValue{}, nil
		}
		out := make([]string, 0, len(set))
		for s := range set {
			out = append(out, s)
		}
		sort.Strings(out)
		return AnswerValue{Set: out}, nil

	case QuestionTypeNumeric:
		s, err := scalarText(raw)
		if err != nil {
			return AnswerValue{}, err
		}
		if s == "" {
			return AnswerValue{}, nil
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return AnswerValue{}, fmt.Errorf("%w: numeric value expected, got %q", ErrMalformedAnswer, s)
		}
		return AnswerValue{Text: s}, nil

	case QuestionTypeFreeText:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return AnswerValue{}, fmt.Errorf("%w: text expected", ErrMalformedAnswer)
		}
		return AnswerValue{Text: s}, nil
	}

	return AnswerValue{}, fmt.Errorf("%w: unknown question type %q", ErrMalformedAnswer, t)
}

// scalarText accepts a JSON string or number and returns its literal text.
func scalarText(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("%w: scalar expected", ErrMalformedAnswer)
}
