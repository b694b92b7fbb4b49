package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/examhall/examhall-backend/internal/middleware"
	"github.com/examhall/examhall-backend/internal/model"
	"github.com/examhall/examhall-backend/internal/response"
	"github.com/examhall/examhall-backend/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second
)

// LeaderboardStreamHandler pushes an exam's leaderboard to its author over
// server-sent events, re-ranking on every submission.
type LeaderboardStreamHandler struct {
	leaderboardService *service.LeaderboardService
	keepAlive          time.Duration
	log                zerolog.Logger
}

// NewLeaderboardStreamHandler creates a new LeaderboardStreamHandler.
func NewLeaderboardStreamHandler(leaderboardService *service.LeaderboardService, log zerolog.Logger) *LeaderboardStreamHandler {
	return &LeaderboardStreamHandler{
		leaderboardService: leaderboardService,
		keepAlive:          keepAliveInterval,
		log:                log.With().Str("component", "leaderboard_stream").Logger(),
	}
}

// Stream godoc
// GET /api/v1/examiner/exams/:exam_id/leaderboard/live
// Sends a "snapshot" event, then a "leaderboard" event after each submission.
func (h *LeaderboardStreamHandler) Stream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	reqCtx := c.Request.Context()
	readAll := can(claims, model.PermissionExamsReadAll)

	// Authorization and existence are checked before any bytes are streamed.
	board, err := h.leaderboardService.ExaminerBoard(reqCtx, examID, claims.UserID, readAll)
	if err != nil {
		fail(c, err)
		return
	}

	pubsub := h.leaderboardService.Subscribe(reqCtx, examID)
	defer pubsub.Close()
	ch := pubsub.Channel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.SSEvent("snapshot", board)
	c.Writer.Flush()

	keepAliveTicker := time.NewTicker(h.keepAlive)
	defer keepAliveTicker.Stop()

	log := h.log.With().Str("exam_id", examID.String()).Logger()
	log.Info().Msg("Examiner attached to live leaderboard")

	for {
		select {
		case <-reqCtx.Done():
			log.Info().Msg("Examiner detached from live leaderboard")
			return

		case _, open := <-ch:
			if !open {
				return
			}
			h.refresh(c, reqCtx, examID, claims.UserID, readAll)

		case <-keepAliveTicker.C:
			c.SSEvent("ping", gin.H{"type": "ping"})
			c.Writer.Flush()
		}
	}
}

// refresh re-ranks the exam and writes a "leaderboard" event. A slow query is
// skipped rather than stalling the stream.
func (h *LeaderboardStreamHandler) refresh(c *gin.Context, parent context.Context, examID, examinerID uuid.UUID, readAll bool) {
	ctx, cancel := context.WithTimeout(parent, refreshTimeout)
	defer cancel()

	board, err := h.leaderboardService.ExaminerBoard(ctx, examID, examinerID, readAll)
	if err != nil {
		h.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to refresh leaderboard")
		return
	}

	c.SSEvent("leaderboard", board)
	c.Writer.Flush()
}
