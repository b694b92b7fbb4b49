package handler

import (
	"net/http"

	"github.com/examhall/examhall-backend/internal/middleware"
	"github.com/examhall/examhall-backend/internal/model"
	"github.com/examhall/examhall-backend/internal/response"
	"github.com/examhall/examhall-backend/internal/service"
	"github.com/gin-gonic/gin"
)

// MonitorHandler serves the live monitoring view of an exam.
type MonitorHandler struct {
	monitorService *service.MonitorService
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(monitorService *service.MonitorService) *MonitorHandler {
	return &MonitorHandler{monitorService: monitorService}
}

// ExamSessions godoc
// GET /api/v1/examiner/exams/:exam_id/sessions
// Lists the in-progress sessions of an exam with their answered counts.
func (h *MonitorHandler) ExamSessions(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	monitor, err := h.monitorService.Progress(c.Request.Context(), examID, claims.UserID, can(claims, model.PermissionExamsReadAll))
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, monitor)
}
