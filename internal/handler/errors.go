package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/examhall/examhall-backend/internal/pagination"
	"github.com/examhall/examhall-backend/internal/response"
	"github.com/examhall/examhall-backend/internal/service"
	"github.com/examhall/examhall-backend/internal/submission"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// classify maps a service error to an HTTP status and error code. Unknown
// errors are internal.
func classify(err error) (int, response.ErrCode) {
	var (
		subErr   *submission.ValidationError
		fieldErr *service.FieldError
		pageErr  *pagination.ConfigError
	)
	switch {
	case errors.As(err, &subErr):
		return http.StatusBadRequest, response.ErrInvalidPayload
	case errors.As(err, &fieldErr):
		return http.StatusBadRequest, response.ErrValidation
	case errors.As(err, &pageErr):
		return http.StatusBadRequest, response.ErrInvalidPagination
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, response.ErrNotFound
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, response.ErrInvalidCredentials
	case errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict, response.ErrEmailTaken
	case errors.Is(err, service.ErrNotExamAuthor):
		return http.StatusForbidden, response.ErrNotExamAuthor
	case errors.Is(err, service.ErrExamNotAvailable):
		return http.StatusForbidden, response.ErrExamNotAvailable
	case errors.Is(err, service.ErrCannotDeleteSelf):
		return http.StatusForbidden, response.ErrActionForbidden
	case errors.Is(err, service.ErrExamLocked):
		return http.StatusConflict, response.ErrExamLocked
	case errors.Is(err, service.ErrAttemptLimitReached):
		return http.StatusConflict, response.ErrAttemptLimitReached
	case errors.Is(err, service.ErrAlreadySubmitted):
		return http.StatusConflict, response.ErrAlreadySubmitted
	case errors.Is(err, service.ErrSessionExpired):
		return http.StatusConflict, response.ErrSessionExpired
	case errors.Is(err, service.ErrUnsupportedFileType):
		return http.StatusBadRequest, response.ErrUnsupportedFile
	case errors.Is(err, service.ErrFileTooLarge):
		return http.StatusBadRequest, response.ErrFileTooLarge
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// fail writes the error response for a service error. Field-level errors
// carry the offending field; internal errors are logged, never echoed.
func fail(c *gin.Context, err error) {
	status, code := classify(err)

	var (
		subErr   *submission.ValidationError
		fieldErr *service.FieldError
	)
	switch {
	case errors.As(err, &subErr):
		response.FailWithFields(c, status, code, map[string]string{subErr.Field: subErr.Error()})
	case errors.As(err, &fieldErr):
		response.FailWithFields(c, status, code, map[string]string{fieldErr.Field: fieldErr.Reason})
	case code == response.ErrInternal:
		response.Logger(c).Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		_ = c.Error(err)
		response.Fail(c, status, code)
	default:
		response.Fail(c, status, code)
	}
}

// uuidParam parses a path parameter, writing 400 INVALID_ID on failure.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

// pageParams reads ?page=&per_page=. Non-numeric values are rejected; range
// problems are left to the paginator.
func pageParams(c *gin.Context) (page, perPage int, ok bool) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPagination)
		return 0, 0, false
	}
	perPage, err = strconv.Atoi(c.DefaultQuery("per_page", "10"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPagination)
		return 0, 0, false
	}
	return page, perPage, true
}
