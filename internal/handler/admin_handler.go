package handler

import (
	"net/http"

	"github.com/examhall/examhall-backend/internal/middleware"
	"github.com/examhall/examhall-backend/internal/model"
	"github.com/examhall/examhall-backend/internal/response"
	"github.com/examhall/examhall-backend/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AdminHandler handles permission-gated user and exam management.
type AdminHandler struct {
	userService *service.UserService
	examService *service.ExamService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(userService *service.UserService, examService *service.ExamService) *AdminHandler {
	return &AdminHandler{
		userService: userService,
		examService: examService,
	}
}

// ─── Users ───────────────────────────────────────────────────────────

// ListUsers godoc
// GET /api/v1/admin/users?page=&per_page=
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, perPage, ok := pageParams(c)
	if !ok {
		return
	}

	users, state, err := h.userService.List(c.Request.Context(), page, perPage)
	if err != nil {
		fail(c, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}

	response.SuccessWithPagination(c, http.StatusOK, users, response.FromState(state))
}

// DeleteUser godoc
// DELETE /api/v1/admin/users/:id
// Deletes an account. Admins cannot delete themselves.
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.userService.Delete(c.Request.Context(), id, claims.UserID); err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "user deleted"})
}

// ─── Exams ───────────────────────────────────────────────────────────

// ListExams godoc
// GET /api/v1/admin/exams?page=&per_page=
// Lists every exam regardless of author.
func (h *AdminHandler) ListExams(c *gin.Context) {
	page, perPage, ok := pageParams(c)
	if !ok {
		return
	}

	exams, state, err := h.examService.ListByAuthor(c.Request.Context(), uuid.Nil, page, perPage)
	if err != nil {
		fail(c, err)
		return
	}
	if exams == nil {
		exams = []model.Exam{}
	}

	response.SuccessWithPagination(c, http.StatusOK, exams, response.FromState(state))
}

// GetExam godoc
// GET /api/v1/admin/exams/:exam_id
func (h *AdminHandler) GetExam(c *gin.Context) {
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	exam, err := h.examService.Get(c.Request.Context(), examID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, exam)
}

// DeleteExam godoc
// DELETE /api/v1/admin/exams/:exam_id
// Deletes any exam, attempted or not. Attempt snapshots are kept.
func (h *AdminHandler) DeleteExam(c *gin.Context) {
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	if err := h.examService.ForceDelete(c.Request.Context(), examID); err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "exam deleted"})
}
