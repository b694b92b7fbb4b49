package handler

import (
	"net/http"
	"slices"

	"github.com/examhall/examhall-backend/internal/middleware"
	"github.com/examhall/examhall-backend/internal/model"
	"github.com/examhall/examhall-backend/internal/response"
	"github.com/examhall/examhall-backend/internal/service"
	"github.com/examhall/examhall-backend/internal/validator"
	"github.com/gin-gonic/gin"
)

// ExamHandler handles exam authoring endpoints for examiners.
type ExamHandler struct {
	examService        *service.ExamService
	leaderboardService *service.LeaderboardService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService, leaderboardService *service.LeaderboardService) *ExamHandler {
	return &ExamHandler{
		examService:        examService,
		leaderboardService: leaderboardService,
	}
}

// can reports whether the token carries perm.
func can(claims *service.Claims, perm model.Permission) bool {
	return slices.Contains(claims.Permissions, string(perm))
}

// MyExams godoc
// GET /api/v1/my-exams?page=&per_page=
// Lists exams authored by the caller.
func (h *ExamHandler) MyExams(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	page, perPage, ok := pageParams(c)
	if !ok {
		return
	}

	exams, state, err := h.examService.ListByAuthor(c.Request.Context(), claims.UserID, page, perPage)
	if err != nil {
		fail(c, err)
		return
	}
	if exams == nil {
		exams = []model.Exam{}
	}

	response.SuccessWithPagination(c, http.StatusOK, exams, response.FromState(state))
}

// CreateExam godoc
// POST /api/v1/examiner/exams
// Creates an exam with its questions and a fresh join code.
func (h *ExamHandler) CreateExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusCreated, exam)
}

// GetExam godoc
// GET /api/v1/examiner/exams/:exam_id
// Returns an exam with answer keys to its author.
func (h *ExamHandler) GetExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	exam, err := h.examService.GetOwned(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, exam)
}

// UpdateExam godoc
// PUT /api/v1/examiner/exams/:exam_id
// Replaces an exam's fields and questions. Refused once attempted.
func (h *ExamHandler) UpdateExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.Update(c.Request.Context(), examID, claims.UserID, req)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, exam)
}

// DeleteExam godoc
// DELETE /api/v1/examiner/exams/:exam_id
// Deletes an exam nobody has attempted yet.
func (h *ExamHandler) DeleteExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	if err := h.examService.Delete(c.Request.Context(), examID, claims.UserID); err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "exam deleted"})
}

// ExamLeaderboard godoc
// GET /api/v1/examiner/exams/:exam_id/leaderboard
// Returns the full ranking of an exam to its author.
func (h *ExamHandler) ExamLeaderboard(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	board, err := h.leaderboardService.ExaminerBoard(c.Request.Context(), examID, claims.UserID, can(claims, model.PermissionExamsReadAll))
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, board)
}
