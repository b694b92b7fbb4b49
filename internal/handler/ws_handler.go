package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/examhall/examhall-backend/internal/middleware"
	"github.com/examhall/examhall-backend/internal/model"
	"github.com/examhall/examhall-backend/internal/response"
	"github.com/examhall/examhall-backend/internal/service"
	"github.com/examhall/examhall-backend/internal/submission"
	"github.com/examhall/examhall-backend/internal/timer"
	ws "github.com/examhall/examhall-backend/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// finalizeTimeout bounds grading after the socket has gone away.
const finalizeTimeout = 30 * time.Second

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

// WSHandler drives a live exam session over a WebSocket: the server owns the
// countdown, stores answers and grades on submit or time-up.
type WSHandler struct {
	sessionService *service.ExamSessionService
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
	clock          timer.Clock
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	sessionService *service.ExamSessionService,
	attemptService *service.AttemptService,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		attemptService: attemptService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// ExamStream godoc
// WS /ws/v1/exams/:exam_id/stream?token=
// Streams the countdown of the caller's active session. Start the session
// over REST first.
func (h *WSHandler) ExamStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	// Errors before the upgrade are plain HTTP responses.
	sess, err := h.sessionService.Active(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		fail(c, err)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close("bye")

	// Grading must finish even if the client drops mid-submit.
	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()

	wsLog := h.log.With().
		Str("session_id", sess.ID.String()).
		Str("exam_id", examID.String()).
		Str("examinee_id", claims.UserID.String()).
		Logger()

	state, err := h.sessionService.Snapshot(ctx, sess)
	if err != nil {
		wsLog.Error().Err(err).Msg("Failed to load session state")
		_ = conn.WriteError(string(response.ErrInternal), response.GetMessage(response.ErrInternal))
		return
	}
	if err := conn.WriteTyped(ws.ReadyEvent{Event: ws.EventReady, Session: state}); err != nil {
		return
	}

	var guard submission.Guard
	finalize := func(reason model.SubmitReason) {
		fctx, fcancel := context.WithTimeout(ctx, finalizeTimeout)
		defer fcancel()

		detail, err := h.attemptService.FinalizeSession(fctx, sess, reason)
		if err != nil {
			if !errors.Is(err, service.ErrAlreadySubmitted) {
				wsLog.Error().Err(err).Str("reason", string(reason)).Msg("Failed to finalize session")
			}
			h.writeErr(conn, err)
		} else {
			wsLog.Info().Str("reason", string(reason)).Float64("score", detail.Score).Msg("Session graded")
			_ = conn.WriteTyped(ws.GradedEvent{Event: ws.EventGraded, Reason: reason, Attempt: detail})
		}
		_ = conn.Close(string(reason))
	}

	total := time.Duration(state.RemainingSeconds) * time.Second
	offset := max(0, (sess.DeadlineAt.Sub(sess.StartedAt) - total).Minutes())

	var countdown *timer.Timer
	countdown = timer.New(total.Minutes(),
		func(elapsed float64) {
			left := countdown.Remaining()
			_ = conn.WriteTyped(ws.TickEvent{
				Event:            ws.EventTick,
				Remaining:        timer.FormatRemaining(left),
				RemainingSeconds: left,
				ElapsedMinutes:   offset + elapsed,
			})
		},
		func() {
			if !guard.TryMark() {
				return
			}
			_ = conn.WriteTyped(ws.TimeUpEvent{Event: ws.EventTimeUp})
			finalize(model.SubmitReasonTimeout)
		},
		timer.WithClock(h.clock),
	)
	defer func() {
		countdown.Stop()
		<-countdown.Done()
	}()
	countdown.Start()

	wsLog.Info().Int("remaining_seconds", state.RemainingSeconds).Msg("Examinee connected")

	for {
		var req ws.Request
		if err := conn.ReadRequest(&req); err != nil {
			if errors.Is(err, ws.ErrMalformed) {
				_ = conn.WriteError(string(response.ErrInvalidPayload), err.Error())
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch req.Action {
		case ws.ActionAnswer, ws.ActionClear:
			if guard.Marked() {
				h.writeErr(conn, service.ErrAlreadySubmitted)
				continue
			}
			h.handleAnswer(ctx, conn, sess, &req)

		case ws.ActionSubmit:
			if !guard.TryMark() {
				h.writeErr(conn, service.ErrAlreadySubmitted)
				continue
			}
			countdown.Stop()
			finalize(model.SubmitReasonManual)
			return

		case ws.ActionPing:
			_ = conn.WriteTyped(ws.PongEvent{Event: ws.EventPong})

		default:
			_ = conn.WriteError(string(response.ErrValidation), "unknown action: "+string(req.Action))
		}
	}
}

// handleAnswer records or clears one answer and acknowledges it.
func (h *WSHandler) handleAnswer(ctx context.Context, conn *ws.Conn, sess *model.ExamSession, req *ws.Request) {
	if req.QuestionID == uuid.Nil {
		_ = conn.WriteError(string(response.ErrValidation), "question_id is required")
		return
	}

	option := req.Option
	if req.Action == ws.ActionClear {
		option = ""
	} else if option == "" {
		_ = conn.WriteError(string(response.ErrValidation), "option is required")
		return
	}

	if err := h.sessionService.RecordAnswer(ctx, sess, req.QuestionID, option); err != nil {
		h.writeErr(conn, err)
		return
	}

	_ = conn.WriteTyped(ws.SavedEvent{Event: ws.EventSaved, QuestionID: req.QuestionID, Option: option})
}

// writeErr sends err as an ErrorEvent with the same code a REST call would
// get. Internal details are not echoed.
func (h *WSHandler) writeErr(conn *ws.Conn, err error) {
	_, code := classify(err)
	msg := response.GetMessage(code)
	var fieldErr *service.FieldError
	if errors.As(err, &fieldErr) {
		msg = fieldErr.Error()
	}
	if code == response.ErrInternal {
		h.log.Error().Err(err).Msg("WebSocket action failed")
	}
	_ = conn.WriteError(string(code), msg)
}
