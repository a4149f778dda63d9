package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/middleware"
	"github.com/stemsi/exstem-engine/internal/response"
	ws "github.com/stemsi/exstem-engine/internal/websocket"
)

const wsActionTimeout = 10 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams an attempt over a WebSocket. Every action goes through
// the same engine calls as the REST endpoints.
type WSHandler struct {
	engine   AttemptEngine
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(engine AttemptEngine, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		engine:   engine,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/attempts/:attempt_id/stream
// Upgrades to WebSocket for low-latency answering. The first event is the
// current session state.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	candidateID := middleware.GetCandidateID(c)
	if candidateID == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := parseID(c, "attempt_id")
	if !ok {
		return
	}

	// SECURITY: Resolve ownership before upgrading so a foreign attempt never
	// gets a socket.
	state, err := h.engine.State(c.Request.Context(), candidateID, attemptID)
	if err != nil {
		failFromErr(c, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("candidate_id", candidateID).
		Str("attempt_id", attemptID.String()).
		Logger()

	wsLog.Info().Msg("Candidate connected")

	if err := ws.WriteTyped(conn, ws.StateResponse{Event: ws.EventState, Session: state}); err != nil {
		return
	}

	for {
		var msg ws.Request
		err := ws.ReadJSON(conn, &msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		if err := h.dispatch(conn, wsLog, candidateID, attemptID, &msg); err != nil {
			wsLog.Debug().Err(err).Msg("Write failed, closing")
			break
		}
	}
}

// dispatch runs one client action. The returned error is a write failure; engine
// errors are reported to the client as error events.
func (h *WSHandler) dispatch(conn *websocket.Conn, log zerolog.Logger, candidateID string, attemptID uuid.UUID, msg *ws.Request) error {
	ctx, cancel := context.WithTimeout(context.Background(), wsActionTimeout)
	defer cancel()

	switch msg.Action {
	case ws.ActionPing:
		return ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})

	case ws.ActionState:
		state, err := h.engine.State(ctx, candidateID, attemptID)
		if err != nil {
			return h.writeEngineError(conn, log, err)
		}
		return ws.WriteTyped(conn, ws.StateResponse{Event: ws.EventState, Session: state})

	case ws.ActionAnswer:
		qID, err := uuid.Parse(msg.QuestionID)
		if err != nil {
			return ws.WriteError(conn, string(response.ErrInvalidID), "invalid question_id format")
		}
		if len(msg.Value) == 0 {
			return ws.WriteError(conn, string(response.ErrValidation), "value is required")
		}
		if err := h.engine.RecordAnswer(ctx, candidateID, attemptID, qID, msg.Value); err != nil {
			return h.writeEngineError(conn, log, err)
		}
		return ws.WriteTyped(conn, ws.SavedResponse{Event: ws.EventSaved, QuestionID: qID})

	case ws.ActionReview:
		qID, err := uuid.Parse(msg.QuestionID)
		if err != nil {
			return ws.WriteError(conn, string(response.ErrInvalidID), "invalid question_id format")
		}
		marked, err := h.engine.ToggleReview(ctx, candidateID, attemptID, qID)
		if err != nil {
			return h.writeEngineError(conn, log, err)
		}
		return ws.WriteTyped(conn, ws.ReviewResponse{Event: ws.EventReview, QuestionID: qID, MarkedForReview: marked})

	case ws.ActionVisit:
		qID, err := uuid.Parse(msg.QuestionID)
		if err != nil {
			return ws.WriteError(conn, string(response.ErrInvalidID), "invalid question_id format")
		}
		if err := h.engine.VisitQuestion(ctx, candidateID, attemptID, qID); err != nil {
			return h.writeEngineError(conn, log, err)
		}
		return ws.WriteTyped(conn, ws.VisitedResponse{Event: ws.EventVisited, QuestionID: qID})

	case ws.ActionFinishSection:
		sID, err := uuid.Parse(msg.SectionID)
		if err != nil {
			return ws.WriteError(conn, string(response.ErrInvalidID), "invalid section_id format")
		}
		res, err := h.engine.FinishSection(ctx, candidateID, attemptID, sID)
		if err != nil {
			return h.writeEngineError(conn, log, err)
		}
		return ws.WriteTyped(conn, ws.SectionFinishedResponse{Event: ws.EventSectionFinished, FinishSectionResponse: res})

	case ws.ActionFinalize:
		result, err := h.engine.Finalize(ctx, candidateID, attemptID)
		if err != nil {
			return h.writeEngineError(conn, log, err)
		}
		log.Info().Float64("score", result.Score).Msg("Attempt submitted over stream")
		return ws.WriteTyped(conn, ws.FinalizedResponse{Event: ws.EventFinalized, Result: result})

	default:
		log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		return ws.WriteError(conn, string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action))
	}
}

func (h *WSHandler) writeEngineError(conn *websocket.Conn, log zerolog.Logger, err error) error {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("code", string(code)).Msg("Stream action failed")
	}
	return ws.WriteError(conn, string(code), response.GetMessage(code))
}
