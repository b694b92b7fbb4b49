package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/examhall/examhall-backend/internal/config"
	"github.com/examhall/examhall-backend/internal/middleware"
	"github.com/examhall/examhall-backend/internal/model"
	"github.com/examhall/examhall-backend/internal/pagination"
	"github.com/examhall/examhall-backend/internal/response"
	"github.com/examhall/examhall-backend/internal/service"
	"github.com/examhall/examhall-backend/internal/submission"
	"github.com/examhall/examhall-backend/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	validator.Setup()
	os.Exit(m.Run())
}

type envelope struct {
	Data  json.RawMessage     `json:"data"`
	Error *response.ErrorBody `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return env
}

// withClaims authenticates every request as a plain user.
func withClaims(perms ...model.Permission) gin.HandlerFunc {
	claims := &service.Claims{UserID: uuid.New(), Role: model.RoleUser}
	for _, p := range perms {
		claims.Permissions = append(claims.Permissions, string(p))
	}
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, claims)
		c.Next()
	}
}

// ─── Error mapping ───────────────────────────────────────────────────

func TestClassify(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   response.ErrCode
	}{
		{service.ErrNotFound, http.StatusNotFound, response.ErrNotFound},
		{fmt.Errorf("load exam: %w", service.ErrNotFound), http.StatusNotFound, response.ErrNotFound},
		{service.ErrInvalidCredentials, http.StatusUnauthorized, response.ErrInvalidCredentials},
		{service.ErrEmailTaken, http.StatusConflict, response.ErrEmailTaken},
		{service.ErrNotExamAuthor, http.StatusForbidden, response.ErrNotExamAuthor},
		{service.ErrExamNotAvailable, http.StatusForbidden, response.ErrExamNotAvailable},
		{service.ErrCannotDeleteSelf, http.StatusForbidden, response.ErrActionForbidden},
		{service.ErrExamLocked, http.StatusConflict, response.ErrExamLocked},
		{service.ErrAttemptLimitReached, http.StatusConflict, response.ErrAttemptLimitReached},
		{service.ErrAlreadySubmitted, http.StatusConflict, response.ErrAlreadySubmitted},
		{service.ErrSessionExpired, http.StatusConflict, response.ErrSessionExpired},
		{service.ErrUnsupportedFileType, http.StatusBadRequest, response.ErrUnsupportedFile},
		{service.ErrFileTooLarge, http.StatusBadRequest, response.ErrFileTooLarge},
		{&submission.ValidationError{Field: "questions"}, http.StatusBadRequest, response.ErrInvalidPayload},
		{&service.FieldError{Field: "exam_code", Reason: "taken"}, http.StatusBadRequest, response.ErrValidation},
		{&pagination.ConfigError{}, http.StatusBadRequest, response.ErrInvalidPagination},
		{pgx.ErrTxClosed, http.StatusInternalServerError, response.ErrInternal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, code := classify(tt.err)
			if status != tt.wantStatus || code != tt.wantCode {
				t.Errorf("classify(%v) = %d %s, want %d %s", tt.err, status, code, tt.wantStatus, tt.wantCode)
			}
		})
	}
}

func TestFailCarriesFieldsAndHidesInternals(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantField  string
		wantStatus int
	}{
		{"submission field", &submission.ValidationError{Field: "questions", Reason: "count mismatch"}, "questions", http.StatusBadRequest},
		{"service field", &service.FieldError{Field: "questions[0].options", Reason: "all four options are required"}, "questions[0].options", http.StatusBadRequest},
		{"internal", errors.New("pq: password authentication failed for user exam"), "", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/x", func(c *gin.Context) { fail(c, tt.err) })
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			env := decode(t, w)
			if tt.wantField != "" {
				if _, ok := env.Error.Fields[tt.wantField]; !ok {
					t.Errorf("fields = %v, want %q", env.Error.Fields, tt.wantField)
				}
				return
			}
			if strings.Contains(w.Body.String(), "password") {
				t.Errorf("internal error leaked: %s", w.Body.String())
			}
		})
	}
}

// ─── Request validation ──────────────────────────────────────────────

// Every case below is rejected before a service is called, so the
// handlers are built without any.
func TestRequestValidation(t *testing.T) {
	exams := NewExamHandler(nil, nil)
	examinee := NewExamineeHandler(nil, nil, nil, nil)
	monitor := NewMonitorHandler(nil)

	r := gin.New()
	anon := r.Group("/anon")
	anon.GET("/exam/by-code", examinee.ExamByCode)
	anon.GET("/examiner/exams/:exam_id/sessions", monitor.ExamSessions)

	api := r.Group("/api", withClaims(model.PermissionExamsTake, model.PermissionExamsWriteOwn))
	api.GET("/exam/by-code", examinee.ExamByCode)
	api.POST("/submit-exam", examinee.SubmitExam)
	api.GET("/leaderboard", examinee.Leaderboard)
	api.GET("/previous-attempts", examinee.PreviousAttempts)
	api.GET("/previous-attempts/:attempt_id", examinee.AttemptDetail)
	api.POST("/exams/:exam_id/start", examinee.StartExam)
	api.GET("/my-exams", exams.MyExams)
	api.POST("/examiner/exams", exams.CreateExam)
	api.GET("/examiner/exams/:exam_id", exams.GetExam)
	api.DELETE("/examiner/exams/:exam_id", exams.DeleteExam)
	api.GET("/examiner/exams/:exam_id/sessions", monitor.ExamSessions)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantCode   response.ErrCode
		wantField  string
	}{
		{"no claims", http.MethodGet, "/anon/exam/by-code?code=ABCD-2345", "", http.StatusUnauthorized, response.ErrTokenRequired, ""},
		{"missing code", http.MethodGet, "/api/exam/by-code", "", http.StatusBadRequest, response.ErrValidation, "code"},
		{"malformed code", http.MethodGet, "/api/exam/by-code?code=AB-1", "", http.StatusBadRequest, response.ErrValidation, "code"},
		{"ambiguous characters in code", http.MethodGet, "/api/exam/by-code?code=ABC0-OOIL", "", http.StatusBadRequest, response.ErrValidation, "code"},
		{"submission not json", http.MethodPost, "/api/submit-exam", "{", http.StatusBadRequest, response.ErrInvalidPayload, ""},
		{"leaderboard without exam", http.MethodGet, "/api/leaderboard", "", http.StatusBadRequest, response.ErrValidation, "exam_id"},
		{"leaderboard bad exam id", http.MethodGet, "/api/leaderboard?exam_id=42", "", http.StatusBadRequest, response.ErrValidation, "exam_id"},
		{"non-numeric page", http.MethodGet, "/api/previous-attempts?page=two", "", http.StatusBadRequest, response.ErrInvalidPagination, ""},
		{"non-numeric per_page", http.MethodGet, "/api/my-exams?per_page=all", "", http.StatusBadRequest, response.ErrInvalidPagination, ""},
		{"bad attempt id", http.MethodGet, "/api/previous-attempts/nope", "", http.StatusBadRequest, response.ErrInvalidID, ""},
		{"bad exam id on start", http.MethodPost, "/api/exams/nope/start", "", http.StatusBadRequest, response.ErrInvalidID, ""},
		{"bad exam id on get", http.MethodGet, "/api/examiner/exams/nope", "", http.StatusBadRequest, response.ErrInvalidID, ""},
		{"sessions without claims", http.MethodGet, "/anon/examiner/exams/nope/sessions", "", http.StatusUnauthorized, response.ErrTokenRequired, ""},
		{"bad exam id on sessions", http.MethodGet, "/api/examiner/exams/nope/sessions", "", http.StatusBadRequest, response.ErrInvalidID, ""},
		{"bad exam id on delete", http.MethodDelete, "/api/examiner/exams/nope", "", http.StatusBadRequest, response.ErrInvalidID, ""},
		{"exam without name", http.MethodPost, "/api/examiner/exams", `{"subject":"Physics","total_time_minutes":10,"questions":[]}`, http.StatusBadRequest, response.ErrValidation, "exam_name"},
		{"exam without questions", http.MethodPost, "/api/examiner/exams", `{"exam_name":"Optics","subject":"Physics","total_time_minutes":10}`, http.StatusBadRequest, response.ErrValidation, "questions"},
		{"exam with unknown policy", http.MethodPost, "/api/examiner/exams", `{"exam_name":"Optics","subject":"Physics","total_time_minutes":10,"attempts_allowed":"twice","questions":[]}`, http.StatusBadRequest, response.ErrValidation, "attempts_allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body *strings.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			} else {
				body = strings.NewReader("")
			}
			req := httptest.NewRequest(tt.method, tt.path, body)
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			env := decode(t, w)
			if env.Error == nil || env.Error.Code != tt.wantCode {
				t.Fatalf("error = %+v, want %s", env.Error, tt.wantCode)
			}
			if tt.wantField != "" {
				if _, ok := env.Error.Fields[tt.wantField]; !ok {
					t.Errorf("fields = %v, want %q", env.Error.Fields, tt.wantField)
				}
			}
		})
	}
}

// ─── Media ───────────────────────────────────────────────────────────

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = part.Write(content)
	} else {
		_ = mw.WriteField("note", "no file here")
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestUploadMedia(t *testing.T) {
	tests := []struct {
		name       string
		field      string
		content    []byte
		wantStatus int
		wantCode   response.ErrCode
	}{
		{"png", "file", pngHeader, http.StatusCreated, ""},
		{"no file", "", nil, http.StatusBadRequest, response.ErrFileRequired},
		{"wrong field", "image", pngHeader, http.StatusBadRequest, response.ErrFileRequired},
		{"text", "file", []byte("definitely not an image"), http.StatusBadRequest, response.ErrUnsupportedFile},
		{"too large", "file", append(append([]byte{}, pngHeader...), make([]byte, 4096)...), http.StatusBadRequest, response.ErrFileTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			media := service.NewMediaService(&config.Config{UploadDir: dir, MaxUploadBytes: 1024}, zerolog.Nop())
			r := gin.New()
			r.POST("/upload", NewMediaHandler(media).UploadMedia)

			body, contentType := multipartBody(t, tt.field, "diagram.png", tt.content)
			req := httptest.NewRequest(http.MethodPost, "/upload", body)
			req.Header.Set("Content-Type", contentType)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			env := decode(t, w)
			if tt.wantCode != "" {
				if env.Error == nil || env.Error.Code != tt.wantCode {
					t.Fatalf("error = %+v, want %s", env.Error, tt.wantCode)
				}
				return
			}

			var img service.UploadedImage
			if err := json.Unmarshal(env.Data, &img); err != nil {
				t.Fatal(err)
			}
			if img.ImageID == "" || !strings.HasPrefix(img.URL, "/uploads/") {
				t.Errorf("image = %+v", img)
			}
			if entries, _ := os.ReadDir(dir); len(entries) != 1 {
				t.Errorf("stored %d files, want 1", len(entries))
			}
		})
	}
}

func TestCan(t *testing.T) {
	claims := &service.Claims{Permissions: []string{string(model.PermissionExamsTake)}}
	if !can(claims, model.PermissionExamsTake) {
		t.Error("granted permission not reported")
	}
	if can(claims, model.PermissionExamsReadAll) {
		t.Error("missing permission reported")
	}
}
