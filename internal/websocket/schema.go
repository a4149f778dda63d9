package websocket

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-engine/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer        Action = "answer"
	ActionReview        Action = "review"
	ActionVisit         Action = "visit"
	ActionFinishSection Action = "finish_section"
	ActionFinalize      Action = "finalize"
	ActionState         Action = "state"
	ActionPing          Action = "ping"
)

// Request is a single client message. Which fields are read depends on Action.
type Request struct {
	Action     Action          `json:"action"`
	QuestionID string          `json:"question_id,omitempty"`
	SectionID  string          `json:"section_id,omitempty"`
	Value      json.RawMessage `json:"value,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError           Event = "error"
	EventState           Event = "state"
	EventSaved           Event = "saved"
	EventReview          Event = "review"
	EventVisited         Event = "visited"
	EventSectionFinished Event = "section_finished"
	EventFinalized       Event = "finalized"
	EventPong            Event = "pong"
)

type StateResponse struct {
	Event   Event               `json:"event"`
	Session *model.SessionState `json:"session"`
}

type SavedResponse struct {
	Event      Event     `json:"event"`
	QuestionID uuid.UUID `json:"question_id"`
}

type ReviewResponse struct {
	Event           Event     `json:"event"`
	QuestionID      uuid.UUID `json:"question_id"`
	MarkedForReview bool      `json:"marked_for_review"`
}

type VisitedResponse struct {
	Event      Event     `json:"event"`
	QuestionID uuid.UUID `json:"question_id"`
}

type SectionFinishedResponse struct {
	Event Event `json:"event"`
	*model.FinishSectionResponse
}

type FinalizedResponse struct {
	Event  Event              `json:"event"`
	Result *model.ScoreResult `json:"result"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
