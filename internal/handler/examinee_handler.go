package handler

import (
	"net/http"

	"github.com/examhall/examhall-backend/internal/middleware"
	"github.com/examhall/examhall-backend/internal/model"
	"github.com/examhall/examhall-backend/internal/response"
	"github.com/examhall/examhall-backend/internal/service"
	"github.com/examhall/examhall-backend/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ExamineeHandler handles exam-taking endpoints.
type ExamineeHandler struct {
	examService        *service.ExamService
	attemptService     *service.AttemptService
	sessionService     *service.ExamSessionService
	leaderboardService *service.LeaderboardService
}

// NewExamineeHandler creates a new ExamineeHandler.
func NewExamineeHandler(
	examService *service.ExamService,
	attemptService *service.AttemptService,
	sessionService *service.ExamSessionService,
	leaderboardService *service.LeaderboardService,
) *ExamineeHandler {
	return &ExamineeHandler{
		examService:        examService,
		attemptService:     attemptService,
		sessionService:     sessionService,
		leaderboardService: leaderboardService,
	}
}

type byCodeQuery struct {
	Code string `form:"code" binding:"required,exam_code"`
}

type leaderboardQuery struct {
	ExamID string `form:"exam_id" binding:"required,uuid"`
}

// ExamByCode godoc
// GET /api/v1/exam/by-code?code=XXXX-XXXX
// Returns the exam paper without answer keys.
func (h *ExamineeHandler) ExamByCode(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var q byCodeQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	paper, err := h.examService.PaperByCode(c.Request.Context(), q.Code, claims.UserID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, paper)
}

// SubmitExam godoc
// POST /api/v1/submit-exam
// Grades a submission against the stored answer key.
func (h *ExamineeHandler) SubmitExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.SubmissionPayload
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidPayload, fields)
		return
	}

	attempt, err := h.attemptService.Submit(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusCreated, attempt)
}

// Leaderboard godoc
// GET /api/v1/leaderboard?exam_id=
// Returns the ranked attempts on an exam and the caller's standing.
func (h *ExamineeHandler) Leaderboard(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var q leaderboardQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	board, err := h.leaderboardService.Board(c.Request.Context(), uuid.MustParse(q.ExamID), claims.UserID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, board)
}

// PreviousAttempts godoc
// GET /api/v1/previous-attempts?page=&per_page=
// Lists the caller's attempts, newest first.
func (h *ExamineeHandler) PreviousAttempts(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	page, perPage, ok := pageParams(c)
	if !ok {
		return
	}

	attempts, state, err := h.attemptService.History(c.Request.Context(), claims.UserID, page, perPage)
	if err != nil {
		fail(c, err)
		return
	}
	if attempts == nil {
		attempts = []model.Attempt{}
	}

	response.SuccessWithPagination(c, http.StatusOK, attempts, response.FromState(state))
}

// AttemptDetail godoc
// GET /api/v1/previous-attempts/:attempt_id
// Returns one of the caller's attempts with its question snapshot.
func (h *ExamineeHandler) AttemptDetail(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}

	attempt, err := h.attemptService.Detail(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, attempt)
}

// StartExam godoc
// POST /api/v1/exams/:exam_id/start
// Starts a server-timed session, or resumes the one in progress.
func (h *ExamineeHandler) StartExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	started, err := h.sessionService.Start(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		fail(c, err)
		return
	}

	status := http.StatusCreated
	if started.Resumed {
		status = http.StatusOK
	}
	response.Success(c, status, started)
}

// ExamState godoc
// GET /api/v1/exams/:exam_id/state
// Returns the live answers and remaining time of the caller's session.
func (h *ExamineeHandler) ExamState(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	state, err := h.sessionService.State(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}
