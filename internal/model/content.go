package model

import (
	"sort"

	"github.com/google/uuid"
)

// ExamContent bundles an exam with its ordered sections and questions as fetched
// from the content store.
type ExamContent struct {
	Exam      Exam       `json:"exam"`
	Sections  []Section  `json:"sections"`
	Questions []Question `json:"questions"`
}

// Normalize orders sections by index and questions by section order then order_num.
func (c *ExamContent) Normalize() {
	sort.SliceStable(c.Sections, func(i, j int) bool {
		return c.Sections[i].OrderIndex < c.Sections[j].OrderIndex
	})
	rank := make(map[uuid.UUID]int, len(c.Sections))
	for i, s := range c.Sections {
		rank[s.ID] = i
	}
	sort.SliceStable(c.Questions, func(i, j int) bool {
		ri, rj := rank[c.Questions[i].SectionID], rank[c.Questions[j].SectionID]
		if ri != rj {
			return ri < rj
		}
		return c.Questions[i].OrderNum < c.Questions[j].OrderNum
	})
}

// Section returns the section with the given id.
func (c *ExamContent) Section(id uuid.UUID) (*Section, bool) {
	for i := range c.Sections {
		if c.Sections[i].ID == id {
			return &c.Sections[i], true
		}
	}
	return nil, false
}

// Question returns the question with the given id.
func (c *ExamContent) Question(id uuid.UUID) (*Question, bool) {
	for i := range c.Questions {
		if c.Questions[i].ID == id {
			return &c.Questions[i], true
		}
	}
	return nil, false
}

// FirstSection returns the section with the lowest order index.
func (c *ExamContent) FirstSection() (*Section, bool) {
	if len(c.Sections) == 0 {
		return nil, false
	}
	return &c.Sections[0], true
}

// NextSection returns the section following id by order index, or false when id
// is the last section.
func (c *ExamContent) NextSection(id uuid.UUID) (*Section, bool) {
	for i := range c.Sections {
		if c.Sections[i].ID == id && i+1 < len(c.Sections) {
			return &c.Sections[i+1], true
		}
	}
	return nil, false
}

// QuestionsIn returns the questions of a section in display order.
func (c *ExamContent) QuestionsIn(sectionID uuid.UUID) []Question {
	var out []Question
	for _, q := range c.Questions {
		if q.SectionID == sectionID {
			out = append(out, q)
		}
	}
	return out
}
