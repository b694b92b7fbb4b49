package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/examhall/examhall-backend/internal/model"
	"github.com/examhall/examhall-backend/internal/pagination"
	"github.com/examhall/examhall-backend/internal/response"
	"github.com/examhall/examhall-backend/internal/submission"
	ws "github.com/examhall/examhall-backend/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testToken = "test-token"

// fakeAPI serves a small subset of the REST surface with real envelopes.
func fakeAPI(t *testing.T) (*httptest.Server, *model.Exam, uuid.UUID) {
	t.Helper()

	userID := uuid.New()
	exam := &model.Exam{
		ID:               uuid.New(),
		ExamCode:         "ABCD-2345",
		ExamName:         "Physics",
		TotalTimeMinutes: 5,
		Questions: []model.Question{
			{ID: uuid.New(), QuestionText: "1", CorrectAnswer: "A", Marks: 1, Options: model.Options{"A": {Text: "a"}, "B": {Text: "b"}, "C": {Text: "c"}, "D": {Text: "d"}}},
			{ID: uuid.New(), QuestionText: "2", CorrectAnswer: "B", Marks: 1, Options: model.Options{"A": {Text: "a"}, "B": {Text: "b"}, "C": {Text: "c"}, "D": {Text: "d"}}},
		},
	}

	requireToken := func(c *gin.Context) {
		if c.GetHeader("Authorization") != "Bearer "+testToken {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}
		c.Next()
	}

	r := gin.New()
	api := r.Group("/api/v1")
	api.POST("/auth/login", func(c *gin.Context) {
		var req model.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Password != "secret" {
			response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
			return
		}
		response.Success(c, http.StatusOK, model.LoginResponse{
			Token: testToken,
			User:  model.User{ID: userID, Name: "Ana", Email: req.Email, Role: model.RoleUser},
		})
	})

	auth := api.Group("", requireToken)
	auth.POST("/auth/logout", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"message": "signed out"})
	})
	auth.GET("/exam/by-code", func(c *gin.Context) {
		if c.Query("code") != exam.ExamCode {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Success(c, http.StatusOK, exam.Paper())
	})
	auth.POST("/submit-exam", func(c *gin.Context) {
		var p model.SubmissionPayload
		if err := c.ShouldBindJSON(&p); err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
			return
		}
		if err := submission.Verify(&p, exam); err != nil {
			var ve *submission.ValidationError
			errors.As(err, &ve)
			response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidPayload, map[string]string{ve.Field: ve.Error()})
			return
		}
		response.Success(c, http.StatusCreated, model.AttemptDetail{Attempt: model.Attempt{
			ID: uuid.New(), ExamID: exam.ID, ExamineeID: userID, TimeTakenSeconds: p.TimeTakenSeconds,
		}})
	})
	auth.GET("/my-exams", func(c *gin.Context) {
		state, err := pagination.New(25, 10, 5)
		if err != nil {
			t.Fatal(err)
		}
		response.SuccessWithPagination(c, http.StatusOK, []model.Exam{*exam}, response.FromState(state))
	})

	return httptest.NewServer(r), exam, userID
}

func TestClientLoginAndExamFlow(t *testing.T) {
	srv, exam, userID := fakeAPI(t)
	defer srv.Close()

	session := NewSessionContext()
	client := New(srv.URL+"/api/v1", session)
	ctx := context.Background()

	if _, err := client.ExamByCode(ctx, exam.ExamCode); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("ExamByCode before login: err = %v, want ErrNotAuthenticated", err)
	}

	if _, err := client.Login(ctx, "ana@example.com", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if session.Token() != testToken || session.User().ID != userID {
		t.Fatalf("session not populated: token=%q user=%+v", session.Token(), session.User())
	}

	paper, err := client.ExamByCode(ctx, exam.ExamCode)
	if err != nil {
		t.Fatalf("ExamByCode: %v", err)
	}
	if len(paper.Questions) != 2 || paper.ID != exam.ID {
		t.Fatalf("paper = %+v", paper)
	}

	answers := model.AnswerState{paper.Questions[0].ID: model.OptionA}
	payload, err := submission.Assemble(paper.Exam(), answers, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	result, err := client.SubmitExam(ctx, payload)
	if err != nil {
		t.Fatalf("SubmitExam: %v", err)
	}
	if result.ExamID != exam.ID || result.TimeTakenSeconds != 30 {
		t.Fatalf("result = %+v", result.Attempt)
	}

	exams, page, err := client.MyExams(ctx, 5, 10)
	if err != nil {
		t.Fatalf("MyExams: %v", err)
	}
	if len(exams) != 1 || page.Page != 3 || page.TotalPages != 3 || page.HasNext || !page.HasPrev {
		t.Fatalf("MyExams = %d exams, page %+v", len(exams), page)
	}

	if err := client.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if session.Authenticated() {
		t.Fatal("session still authenticated after logout")
	}
}

func TestClientNetworkErrors(t *testing.T) {
	srv, _, _ := fakeAPI(t)
	defer srv.Close()
	ctx := context.Background()

	client := New(srv.URL+"/api/v1", nil)

	_, err := client.Login(ctx, "ana@example.com", "wrong")
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("err = %v, want NetworkError", err)
	}
	if ne.StatusCode != http.StatusUnauthorized || ne.Code != string(response.ErrInvalidCredentials) || ne.Message == "" {
		t.Fatalf("NetworkError = %+v", ne)
	}
	if !IsUnauthorized(err) || ne.Unreachable() {
		t.Fatal("401 not classified")
	}

	client.Session().SetAuth("stale", model.User{ID: uuid.New()})
	if _, err := client.ExamByCode(ctx, "ZZZZ-ZZZZ"); !HasCode(err, string(response.ErrTokenInvalid)) {
		t.Fatalf("stale token: err = %v", err)
	}

	client.Session().SetAuth(testToken, model.User{ID: uuid.New()})
	if _, err := client.ExamByCode(ctx, "ZZZZ-ZZZZ"); !HasCode(err, string(response.ErrNotFound)) {
		t.Fatalf("unknown code: err = %v", err)
	}
}

func TestClientSubmitRejectedPayload(t *testing.T) {
	srv, exam, _ := fakeAPI(t)
	defer srv.Close()

	client := New(srv.URL+"/api/v1", nil)
	client.Session().SetAuth(testToken, model.User{ID: uuid.New()})

	payload, err := submission.Assemble(exam, nil, 1)
	if err != nil {
		t.Fatal(err)
	}
	payload.Questions = payload.Questions[:1]

	_, err = client.SubmitExam(context.Background(), payload)
	var ne *NetworkError
	if !errors.As(err, &ne) || ne.StatusCode != http.StatusBadRequest {
		t.Fatalf("err = %v, want 400", err)
	}
	if _, ok := ne.Fields["questions"]; !ok {
		t.Fatalf("fields = %v, want questions", ne.Fields)
	}
}

func TestClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := New(url, nil)
	_, err := client.Login(context.Background(), "a@b.c", "secret")
	var ne *NetworkError
	if !errors.As(err, &ne) || !ne.Unreachable() {
		t.Fatalf("err = %v, want unreachable NetworkError", err)
	}
}

func TestStreamURL(t *testing.T) {
	id := uuid.MustParse("7f1c0f1e-52b0-4b8e-9d0e-3c6f7a1b2c3d")
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:8080/api/v1", "ws://localhost:8080/ws/v1/exams/" + id.String() + "/stream?token=tok"},
		{"https://exams.example.com/api/v1/", "wss://exams.example.com/ws/v1/exams/" + id.String() + "/stream?token=tok"},
		{"http://gateway/examhall/api/v1", "ws://gateway/examhall/ws/v1/exams/" + id.String() + "/stream?token=tok"},
	}
	for _, tt := range tests {
		got, err := New(tt.base, nil).streamURL(id, "tok")
		if err != nil {
			t.Fatalf("streamURL(%q): %v", tt.base, err)
		}
		if got != tt.want {
			t.Errorf("streamURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestExamStreamRoundTrip(t *testing.T) {
	examID, questionID := uuid.New(), uuid.New()
	upgrader := websocket.Upgrader{}

	r := gin.New()
	r.GET("/ws/v1/exams/:exam_id/stream", func(c *gin.Context) {
		if c.Query("token") != testToken || c.Param("exam_id") != examID.String() {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteJSON(ws.ReadyEvent{Event: ws.EventReady, Session: &model.ExamSessionState{ExamID: examID, RemainingSeconds: 60}})
		for {
			var req ws.Request
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			switch req.Action {
			case ws.ActionAnswer:
				_ = conn.WriteJSON(ws.SavedEvent{Event: ws.EventSaved, QuestionID: req.QuestionID, Option: req.Option})
			case ws.ActionSubmit:
				_ = conn.WriteJSON(ws.GradedEvent{Event: ws.EventGraded, Reason: model.SubmitReasonManual, Attempt: &model.AttemptDetail{Attempt: model.Attempt{ExamID: examID, Score: 1}}})
				return
			}
		}
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	client := New(srv.URL+"/api/v1", nil)
	if _, err := client.OpenExamStream(context.Background(), examID); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("open before login: err = %v", err)
	}

	client.Session().SetAuth("stale", model.User{ID: uuid.New()})
	if _, err := client.OpenExamStream(context.Background(), examID); !IsUnauthorized(err) {
		t.Fatalf("stale token: err = %v, want 401", err)
	}

	client.Session().SetAuth(testToken, model.User{ID: uuid.New()})
	stream, err := client.OpenExamStream(context.Background(), examID)
	if err != nil {
		t.Fatalf("OpenExamStream: %v", err)
	}
	defer stream.Close()

	ev, err := stream.Next()
	if err != nil || ev.Event != ws.EventReady || ev.Session.RemainingSeconds != 60 {
		t.Fatalf("ready = %+v, err %v", ev, err)
	}

	if err := stream.Answer(questionID, model.OptionC); err != nil {
		t.Fatal(err)
	}
	ev, err = stream.Next()
	if err != nil || ev.Event != ws.EventSaved || ev.QuestionID != questionID || ev.Option != model.OptionC {
		t.Fatalf("saved = %+v, err %v", ev, err)
	}

	if err := stream.Submit(); err != nil {
		t.Fatal(err)
	}
	ev, err = stream.Next()
	if err != nil || ev.Event != ws.EventGraded || ev.Attempt == nil || ev.Attempt.ExamID != examID {
		t.Fatalf("graded = %+v, err %v", ev, err)
	}
}
