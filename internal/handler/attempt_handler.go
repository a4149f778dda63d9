package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/middleware"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/validator"
)

// AttemptEngine is the engine surface the drivers call. It is implemented by
// service.AttemptService.
type AttemptEngine interface {
	ResolveSession(ctx context.Context, candidateID string, examID uuid.UUID) (*model.SessionState, error)
	State(ctx context.Context, candidateID string, attemptID uuid.UUID) (*model.SessionState, error)
	RecordAnswer(ctx context.Context, candidateID string, attemptID, questionID uuid.UUID, value json.RawMessage) error
	ToggleReview(ctx context.Context, candidateID string, attemptID, questionID uuid.UUID) (bool, error)
	VisitQuestion(ctx context.Context, candidateID string, attemptID, questionID uuid.UUID) error
	FinishSection(ctx context.Context, candidateID string, attemptID, sectionID uuid.UUID) (*model.FinishSectionResponse, error)
	Finalize(ctx context.Context, candidateID string, attemptID uuid.UUID) (*model.ScoreResult, error)
}

// AttemptHandler handles candidate-facing attempt endpoints.
type AttemptHandler struct {
	engine AttemptEngine
	log    zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(engine AttemptEngine, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		engine: engine,
		log:    log.With().Str("component", "attempt_handler").Logger(),
	}
}

// StartOrResume godoc
// POST /api/v1/exams/:exam_id/session
// Creates the candidate's attempt on first open, otherwise resumes it. Also the
// reload endpoint: the returned state carries remaining time and stored answers.
func (h *AttemptHandler) StartOrResume(c *gin.Context) {
	candidateID := middleware.GetCandidateID(c)
	if candidateID == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := parseID(c, "exam_id")
	if !ok {
		return
	}

	state, err := h.engine.ResolveSession(c.Request.Context(), candidateID, examID)
	if err != nil {
		failFromErr(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": state})
}

// GetState godoc
// GET /api/v1/attempts/:attempt_id
// Returns the current session state of an attempt.
func (h *AttemptHandler) GetState(c *gin.Context) {
	candidateID := middleware.GetCandidateID(c)
	if candidateID == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := parseID(c, "attempt_id")
	if !ok {
		return
	}

	state, err := h.engine.State(c.Request.Context(), candidateID, attemptID)
	if err != nil {
		failFromErr(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": state})
}

// SubmitAnswer godoc
// PUT /api/v1/attempts/:attempt_id/answers/:question_id
// Stores the answer for a question. Re-submitting overwrites the previous value.
func (h *AttemptHandler) SubmitAnswer(c *gin.Context) {
	candidateID := middleware.GetCandidateID(c)
	if candidateID == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := parseID(c, "attempt_id")
	if !ok {
		return
	}
	questionID, ok := parseID(c, "question_id")
	if !ok {
		return
	}

	var req model.SubmitAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.engine.RecordAnswer(c.Request.Context(), candidateID, attemptID, questionID, req.Value); err != nil {
		failFromErr(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "saved", "question_id": questionID})
}

// ToggleReview godoc
// POST /api/v1/attempts/:attempt_id/questions/:question_id/review
func (h *AttemptHandler) ToggleReview(c *gin.Context) {
	candidateID := middleware.GetCandidateID(c)
	if candidateID == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := parseID(c, "attempt_id")
	if !ok {
		return
	}
	questionID, ok := parseID(c, "question_id")
	if !ok {
		return
	}

	marked, err := h.engine.ToggleReview(c.Request.Context(), candidateID, attemptID, questionID)
	if err != nil {
		failFromErr(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"question_id": questionID, "marked_for_review": marked})
}

// VisitQuestion godoc
// POST /api/v1/attempts/:attempt_id/questions/:question_id/visit
func (h *AttemptHandler) VisitQuestion(c *gin.Context) {
	candidateID := middleware.GetCandidateID(c)
	if candidateID == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := parseID(c, "attempt_id")
	if !ok {
		return
	}
	questionID, ok := parseID(c, "question_id")
	if !ok {
		return
	}

	if err := h.engine.VisitQuestion(c.Request.Context(), candidateID, attemptID, questionID); err != nil {
		failFromErr(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"question_id": questionID, "status": "visited"})
}

// FinishSection godoc
// POST /api/v1/attempts/:attempt_id/sections/:section_id/finish
// Locks the section early. Returns the next section, or the score when it was
// the last one.
func (h *AttemptHandler) FinishSection(c *gin.Context) {
	candidateID := middleware.GetCandidateID(c)
	if candidateID == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := parseID(c, "attempt_id")
	if !ok {
		return
	}
	sectionID, ok := parseID(c, "section_id")
	if !ok {
		return
	}

	res, err := h.engine.FinishSection(c.Request.Context(), candidateID, attemptID, sectionID)
	if err != nil {
		failFromErr(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// Finalize godoc
// POST /api/v1/attempts/:attempt_id/finalize
// Submits the attempt. Calling it again returns the same result.
func (h *AttemptHandler) Finalize(c *gin.Context) {
	candidateID := middleware.GetCandidateID(c)
	if candidateID == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := parseID(c, "attempt_id")
	if !ok {
		return
	}

	result, err := h.engine.Finalize(c.Request.Context(), candidateID, attemptID)
	if err != nil {
		failFromErr(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": model.AttemptStatusCompleted, "result": result})
}
