// Package apiclient talks to the ExamHall REST API on behalf of a signed-in
// session.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/examhall/examhall-backend/internal/leaderboard"
	"github.com/examhall/examhall-backend/internal/model"
	"github.com/examhall/examhall-backend/internal/pagination"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single API call.
const DefaultTimeout = 30 * time.Second

// Client calls the REST API. It never retries; failures surface as
// *NetworkError for the caller to show.
type Client struct {
	baseURL string
	http    *http.Client
	session *SessionContext
	log     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log.With().Str("component", "apiclient").Logger() }
}

// New creates a Client for the API rooted at baseURL (e.g.
// http://localhost:8080/api/v1).
func New(baseURL string, session *SessionContext, opts ...Option) *Client {
	if session == nil {
		session = NewSessionContext()
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		session: session,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns the session the client acts for.
func (c *Client) Session() *SessionContext { return c.session }

// envelope mirrors the server's response wrapper.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
	Pagination *pagination.State `json:"pagination"`
}

// do sends one request and decodes the envelope's data into out.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out interface{}, auth bool) (*pagination.State, error) {
	token := c.session.Token()
	if auth && token == "" {
		return nil, ErrNotAuthenticated
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("op", op).Msg("Request failed")
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("op", op).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("API call")

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		ne := &NetworkError{Op: op, StatusCode: resp.StatusCode}
		if decodeErr == nil && env.Error != nil {
			ne.Code = env.Error.Code
			ne.Message = env.Error.Message
			ne.Fields = env.Error.Fields
		}
		return nil, ne
	}
	if decodeErr != nil {
		return nil, &NetworkError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", decodeErr)}
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, &NetworkError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode data: %w", err)}
		}
	}
	return env.Pagination, nil
}

func pageQuery(page, perPage int) url.Values {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if perPage > 0 {
		q.Set("per_page", strconv.Itoa(perPage))
	}
	return q
}

func orEmpty(p *pagination.State) pagination.State {
	if p == nil {
		return pagination.State{}
	}
	return *p
}

// ─── Auth ──────────────────────────────────────────────────────────────────

// Login authenticates and stores the token in the session.
func (c *Client) Login(ctx context.Context, email, password string) (*model.LoginResponse, error) {
	var out model.LoginResponse
	req := model.LoginRequest{Email: email, Password: password}
	if _, err := c.do(ctx, "login", http.MethodPost, "/auth/login", nil, req, &out, false); err != nil {
		return nil, err
	}
	c.session.SetAuth(out.Token, out.User)
	return &out, nil
}

// Register creates an account and signs it in.
func (c *Client) Register(ctx context.Context, name, email, password string) (*model.LoginResponse, error) {
	var out model.LoginResponse
	req := model.RegisterRequest{Name: name, Email: email, Password: password}
	if _, err := c.do(ctx, "register", http.MethodPost, "/auth/register", nil, req, &out, false); err != nil {
		return nil, err
	}
	c.session.SetAuth(out.Token, out.User)
	return &out, nil
}

// Me returns the signed-in user and the permissions on its token.
func (c *Client) Me(ctx context.Context) (*model.MeResponse, error) {
	var out model.MeResponse
	if _, err := c.do(ctx, "me", http.MethodGet, "/auth/me", nil, nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes the token server-side and clears the session. The session
// is cleared even when the server cannot be reached.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, "logout", http.MethodPost, "/auth/logout", nil, nil, nil, true)
	c.session.Clear()
	return err
}

// ─── Examinee ──────────────────────────────────────────────────────────────

// ExamByCode fetches the exam paper for a join code.
func (c *Client) ExamByCode(ctx context.Context, code string) (*model.ExamPaper, error) {
	var out model.ExamPaper
	q := url.Values{"code": {code}}
	if _, err := c.do(ctx, "exam by code", http.MethodGet, "/exam/by-code", q, nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitExam posts a submission and returns the graded attempt.
func (c *Client) SubmitExam(ctx context.Context, payload *model.SubmissionPayload) (*model.AttemptDetail, error) {
	var out model.AttemptDetail
	if _, err := c.do(ctx, "submit exam", http.MethodPost, "/submit-exam", nil, payload, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// Leaderboard fetches the ranked board for an exam.
func (c *Client) Leaderboard(ctx context.Context, examID uuid.UUID) (*leaderboard.Board, error) {
	var out leaderboard.Board
	q := url.Values{"exam_id": {examID.String()}}
	if _, err := c.do(ctx, "leaderboard", http.MethodGet, "/leaderboard", q, nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// PreviousAttempts lists the caller's graded attempts.
func (c *Client) PreviousAttempts(ctx context.Context, page, perPage int) ([]model.Attempt, pagination.State, error) {
	var out []model.Attempt
	p, err := c.do(ctx, "previous attempts", http.MethodGet, "/previous-attempts", pageQuery(page, perPage), nil, &out, true)
	if err != nil {
		return nil, pagination.State{}, err
	}
	return out, orEmpty(p), nil
}

// AttemptDetail fetches one attempt with its question snapshot.
func (c *Client) AttemptDetail(ctx context.Context, attemptID uuid.UUID) (*model.AttemptDetail, error) {
	var out model.AttemptDetail
	if _, err := c.do(ctx, "attempt detail", http.MethodGet, "/previous-attempts/"+attemptID.String(), nil, nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartExam opens a server-timed session, or resumes the one in progress.
func (c *Client) StartExam(ctx context.Context, examID uuid.UUID) (*model.StartedSession, error) {
	var out model.StartedSession
	if _, err := c.do(ctx, "start exam", http.MethodPost, "/exams/"+examID.String()+"/start", nil, nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExamState returns the live session's saved answers and remaining time.
func (c *Client) ExamState(ctx context.Context, examID uuid.UUID) (*model.ExamSessionState, error) {
	var out model.ExamSessionState
	if _, err := c.do(ctx, "exam state", http.MethodGet, "/exams/"+examID.String()+"/state", nil, nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// ─── Examiner ──────────────────────────────────────────────────────────────

// MyExams lists exams authored by the caller.
func (c *Client) MyExams(ctx context.Context, page, perPage int) ([]model.Exam, pagination.State, error) {
	var out []model.Exam
	p, err := c.do(ctx, "my exams", http.MethodGet, "/my-exams", pageQuery(page, perPage), nil, &out, true)
	if err != nil {
		return nil, pagination.State{}, err
	}
	return out, orEmpty(p), nil
}

// CreateExam creates an exam with its questions.
func (c *Client) CreateExam(ctx context.Context, req *model.CreateExamRequest) (*model.Exam, error) {
	var out model.Exam
	if _, err := c.do(ctx, "create exam", http.MethodPost, "/examiner/exams", nil, req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetExam fetches an authored exam including answer keys.
func (c *Client) GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	var out model.Exam
	if _, err := c.do(ctx, "get exam", http.MethodGet, "/examiner/exams/"+examID.String(), nil, nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateExam replaces an authored exam that has no attempts yet.
func (c *Client) UpdateExam(ctx context.Context, examID uuid.UUID, req *model.CreateExamRequest) (*model.Exam, error) {
	var out model.Exam
	if _, err := c.do(ctx, "update exam", http.MethodPut, "/examiner/exams/"+examID.String(), nil, req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExaminerLeaderboard fetches the full ranking of an authored exam.
func (c *Client) ExaminerLeaderboard(ctx context.Context, examID uuid.UUID) (*leaderboard.Board, error) {
	var out leaderboard.Board
	if _, err := c.do(ctx, "examiner leaderboard", http.MethodGet, "/examiner/exams/"+examID.String()+"/leaderboard", nil, nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteExam removes an exam the caller authored.
func (c *Client) DeleteExam(ctx context.Context, examID uuid.UUID) error {
	_, err := c.do(ctx, "delete exam", http.MethodDelete, "/examiner/exams/"+examID.String(), nil, nil, nil, true)
	return err
}

// ExamSessions lists the in-progress sessions of an authored exam.
func (c *Client) ExamSessions(ctx context.Context, examID uuid.UUID) (*model.ExamMonitor, error) {
	var out model.ExamMonitor
	if _, err := c.do(ctx, "exam sessions", http.MethodGet, "/examiner/exams/"+examID.String()+"/sessions", nil, nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}
