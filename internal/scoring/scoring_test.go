package scoring

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-engine/internal/model"
)

func f(v float64) *float64 { return &v }

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestScoreNegativeMarkingSingleQuestion(t *testing.T) {
	sec := model.Section{ID: uuid.New(), NegativeMarking: f(0.25)}
	right := model.Question{
		ID: uuid.New(), SectionID: sec.ID, Type: model.QuestionTypeSingleChoice,
		CorrectAnswer: raw(`"a"`), Marks: f(4),
	}
	wrong := model.Question{
		ID: uuid.New(), SectionID: sec.ID, Type: model.QuestionTypeSingleChoice,
		CorrectAnswer: raw(`"b"`), Marks: f(4),
	}

	r := ScoreDetailed(model.Exam{}, []model.Section{sec}, []model.Question{right, wrong}, map[uuid.UUID]json.RawMessage{
		right.ID: raw(`"a"`),
		wrong.ID: raw(`"c"`),
	})

	if !approx(r.Breakdown[1].Earned, -0.25) {
		t.Fatalf("incorrect answer earned %v, want -0.25", r.Breakdown[1].Earned)
	}
	if !approx(r.Score, 3.75) {
		t.Errorf("score = %v, want 3.75", r.Score)
	}
	if !approx(r.TotalPossible, 8) {
		t.Errorf("total = %v, want 8", r.TotalPossible)
	}
}

func TestScoreAllIncorrectClampsToZero(t *testing.T) {
	sec := model.Section{ID: uuid.New(), NegativeMarking: f(0.25)}
	var qs []model.Question
	answers := map[uuid.UUID]json.RawMessage{}
	for i := 0; i < 3; i++ {
		q := model.Question{
			ID: uuid.New(), SectionID: sec.ID, Type: model.QuestionTypeSingleChoice,
			CorrectAnswer: raw(`"a"`), Marks: f(4),
		}
		qs = append(qs, q)
		answers[q.ID] = raw(`"b"`)
	}

	r := Score(model.Exam{}, []model.Section{sec}, qs, answers)
	if r.Score != 0 {
		t.Fatalf("score = %v, want 0", r.Score)
	}
	if !approx(r.TotalPossible, 12) {
		t.Errorf("total = %v, want 12 (never clamped)", r.TotalPossible)
	}
	if r.Breakdown != nil {
		t.Errorf("Score must not carry a breakdown")
	}
}

func TestScoreMarksAndNegativeFallbacks(t *testing.T) {
	exam := model.Exam{NegativeMarking: 0.5}
	withDefaults := model.Section{ID: uuid.New(), DefaultMarks: f(2)}
	bare := model.Section{ID: uuid.New(), NegativeMarking: f(0)}

	q1 := model.Question{ID: uuid.New(), SectionID: withDefaults.ID, Type: model.QuestionTypeBoolean, CorrectAnswer: raw(`true`)}
	q2 := model.Question{ID: uuid.New(), SectionID: withDefaults.ID, Type: model.QuestionTypeBoolean, CorrectAnswer: raw(`true`)}
	q3 := model.Question{ID: uuid.New(), SectionID: bare.ID, Type: model.QuestionTypeNumeric, CorrectAnswer: raw(`"3.14"`)}

	r := ScoreDetailed(exam, []model.Section{withDefaults, bare}, []model.Question{q1, q2, q3}, map[uuid.UUID]json.RawMessage{
		q1.ID: raw(`"TRUE"`), // section default marks 2
		q2.ID: raw(`false`),  // exam negative 0.5
		q3.ID: raw(`"3.140"`), // literal mismatch, section override 0
	})

	want := []struct {
		outcome model.Outcome
		earned  float64
		marks   float64
	}{
		{model.OutcomeCorrect, 2, 2},
		{model.OutcomeIncorrect, -0.5, 2},
		{model.OutcomeIncorrect, 0, 1},
	}
	for i, w := range want {
		got := r.Breakdown[i]
		if got.Outcome != w.outcome || !approx(got.Earned, w.earned) || !approx(got.Marks, w.marks) {
			t.Errorf("question %d: got %+v, want %+v", i, got, w)
		}
	}
	if !approx(r.Score, 1.5) || !approx(r.TotalPossible, 5) {
		t.Errorf("got %v/%v, want 1.5/5", r.Score, r.TotalPossible)
	}
}

func TestScoreMultiChoiceSetEquality(t *testing.T) {
	sec := model.Section{ID: uuid.New()}
	q := model.Question{ID: uuid.New(), SectionID: sec.ID, Type: model.QuestionTypeMultiChoice, CorrectAnswer: raw(`["a","c"]`)}

	tests := []struct {
		name   string
		answer string
		want   model.Outcome
	}{
		{"same order", `["a","c"]`, model.OutcomeCorrect},
		{"reordered", `["c","a"]`, model.OutcomeCorrect},
		{"duplicates", `["c","a","a"]`, model.OutcomeCorrect},
		{"subset", `["a"]`, model.OutcomeIncorrect},
		{"superset", `["a","b","c"]`, model.OutcomeIncorrect},
		{"empty list", `[]`, model.OutcomeUnanswered},
		{"null", `null`, model.OutcomeUnanswered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ScoreDetailed(model.Exam{}, []model.Section{sec}, []model.Question{q}, map[uuid.UUID]json.RawMessage{q.ID: raw(tt.answer)})
			if got := r.Breakdown[0].Outcome; got != tt.want {
				t.Errorf("outcome = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestScoreUnansweredAndEmptyValues(t *testing.T) {
	sec := model.Section{ID: uuid.New(), NegativeMarking: f(1)}
	missing := model.Question{ID: uuid.New(), SectionID: sec.ID, Type: model.QuestionTypeFreeText, CorrectAnswer: raw(`"Paris"`)}
	blank := model.Question{ID: uuid.New(), SectionID: sec.ID, Type: model.QuestionTypeFreeText, CorrectAnswer: raw(`"Paris"`)}
	caseDiff := model.Question{ID: uuid.New(), SectionID: sec.ID, Type: model.QuestionTypeFreeText, CorrectAnswer: raw(`"Paris"`), Marks: f(3)}

	r := ScoreDetailed(model.Exam{}, []model.Section{sec}, []model.Question{missing, blank, caseDiff}, map[uuid.UUID]json.RawMessage{
		blank.ID:    raw(`""`),
		caseDiff.ID: raw(`"paris"`),
	})

	if r.Breakdown[0].Outcome != model.OutcomeUnanswered || r.Breakdown[1].Outcome != model.OutcomeUnanswered {
		t.Fatalf("missing and blank answers must be unanswered: %+v", r.Breakdown)
	}
	if r.Breakdown[2].Outcome != model.OutcomeIncorrect {
		t.Errorf("free text must match literally, got %s", r.Breakdown[2].Outcome)
	}
	if r.Score != 0 || !approx(r.TotalPossible, 5) {
		t.Errorf("got %v/%v, want 0/5", r.Score, r.TotalPossible)
	}
}

func TestScoreBrokenKeyIsUnscorable(t *testing.T) {
	sec := model.Section{ID: uuid.New(), NegativeMarking: f(1)}
	noKey := model.Question{ID: uuid.New(), SectionID: sec.ID, Type: model.QuestionTypeSingleChoice, Marks: f(2)}
	badKey := model.Question{ID: uuid.New(), SectionID: sec.ID, Type: model.QuestionTypeMultiChoice, CorrectAnswer: raw(`{"x":1}`), Marks: f(2)}

	r := ScoreDetailed(model.Exam{}, []model.Section{sec}, []model.Question{noKey, badKey}, map[uuid.UUID]json.RawMessage{
		noKey.ID:  raw(`"a"`),
		badKey.ID: raw(`["a"]`),
	})

	for i, got := range r.Breakdown {
		if got.Outcome != model.OutcomeUnscorable || got.Earned != 0 {
			t.Errorf("question %d: got %+v, want unscorable with nothing earned", i, got)
		}
	}
	if r.Score != 0 || !approx(r.TotalPossible, 4) {
		t.Errorf("got %v/%v, want 0/4", r.Score, r.TotalPossible)
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	sec := model.Section{ID: uuid.New(), NegativeMarking: f(0.25)}
	var qs []model.Question
	answers := map[uuid.UUID]json.RawMessage{}
	for i := 0; i < 20; i++ {
		q := model.Question{ID: uuid.New(), SectionID: sec.ID, Type: model.QuestionTypeSingleChoice, CorrectAnswer: raw(`"a"`), Marks: f(2)}
		qs = append(qs, q)
		if i%3 == 0 {
			answers[q.ID] = raw(`"b"`)
		} else if i%3 == 1 {
			answers[q.ID] = raw(`"a"`)
		}
	}
	first := Score(model.Exam{}, []model.Section{sec}, qs, answers)
	for i := 0; i < 10; i++ {
		if got := Score(model.Exam{}, []model.Section{sec}, qs, answers); got.Score != first.Score || got.TotalPossible != first.TotalPossible {
			t.Fatalf("run %d: got %+v, want %+v", i, got, first)
		}
	}
}
