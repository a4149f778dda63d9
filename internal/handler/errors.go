package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/service"
)

// classify maps an engine error to an HTTP status and API error code.
func classify(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrNotYetOpen):
		return http.StatusForbidden, response.ErrExamNotYetOpen
	case errors.Is(err, service.ErrWindowClosed):
		return http.StatusForbidden, response.ErrExamWindowClosed
	case errors.Is(err, service.ErrAttemptNotOwned):
		return http.StatusForbidden, response.ErrAttemptNotOwned

	case errors.Is(err, service.ErrSectionLocked):
		return http.StatusConflict, response.ErrSectionLocked
	case errors.Is(err, service.ErrSectionNotActive):
		return http.StatusConflict, response.ErrSectionNotActive
	case errors.Is(err, service.ErrAttemptClosed):
		return http.StatusConflict, response.ErrAttemptClosed
	case errors.Is(err, service.ErrConcurrentUpdate):
		return http.StatusConflict, response.ErrAttemptBusy

	case errors.Is(err, service.ErrExamNotFound):
		return http.StatusNotFound, response.ErrExamNotFound
	case errors.Is(err, service.ErrAttemptNotFound):
		return http.StatusNotFound, response.ErrAttemptNotFound
	case errors.Is(err, service.ErrQuestionNotFound):
		return http.StatusNotFound, response.ErrQuestionNotFound
	case errors.Is(err, service.ErrSectionNotFound):
		return http.StatusNotFound, response.ErrSectionNotFound

	case errors.Is(err, service.ErrInvalidAnswer):
		return http.StatusUnprocessableEntity, response.ErrInvalidAnswer

	case errors.Is(err, service.ErrPersistenceUnavailable):
		return http.StatusServiceUnavailable, response.ErrStorageUnavailable
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// failFromErr writes the error envelope for err. Server-side failures are
// logged; client errors are not.
func failFromErr(c *gin.Context, log zerolog.Logger, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).
			Str("request_id", response.RequestID(c)).
			Str("path", c.FullPath()).
			Str("code", string(code)).
			Msg("Request failed")
	}
	response.Fail(c, status, code)
}

// parseID reads a UUID path parameter, writing INVALID_ID on failure.
func parseID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
