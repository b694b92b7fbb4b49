package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/examhall/examhall-backend/internal/model"
	ws "github.com/examhall/examhall-backend/internal/websocket"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const streamWriteWait = 10 * time.Second

// StreamEvent is any server event on the exam stream. Only the fields of
// the named Event are set.
type StreamEvent struct {
	Event            ws.Event                `json:"event"`
	Session          *model.ExamSessionState `json:"session,omitempty"`
	Remaining        string                  `json:"remaining,omitempty"`
	RemainingSeconds int                     `json:"remaining_seconds,omitempty"`
	ElapsedMinutes   float64                 `json:"elapsed_minutes,omitempty"`
	QuestionID       uuid.UUID               `json:"question_id,omitempty"`
	Option           model.OptionLetter      `json:"option,omitempty"`
	Reason           model.SubmitReason      `json:"reason,omitempty"`
	Attempt          *model.AttemptDetail    `json:"attempt,omitempty"`
	Code             string                  `json:"code,omitempty"`
	Error            string                  `json:"error,omitempty"`
}

// ExamStream is a live exam session over WebSocket.
type ExamStream struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// streamURL maps http(s)://host/api/v1 to ws(s)://host/ws/v1/exams/{id}/stream.
func (c *Client) streamURL(examID uuid.UUID, token string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), "/api/v1") + "/ws/v1/exams/" + examID.String() + "/stream"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

// OpenExamStream connects to the live session of an exam. The session must
// have been started first.
func (c *Client) OpenExamStream(ctx context.Context, examID uuid.UUID) (*ExamStream, error) {
	token := c.session.Token()
	if token == "" {
		return nil, ErrNotAuthenticated
	}
	u, err := c.streamURL(examID, token)
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		ne := &NetworkError{Op: "exam stream", Err: err}
		if resp != nil {
			ne.StatusCode = resp.StatusCode
			if resp.StatusCode == http.StatusUnauthorized {
				ne.Message = "token rejected"
			}
		}
		return nil, ne
	}
	return &ExamStream{conn: conn}, nil
}

func (s *ExamStream) send(req ws.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return s.conn.WriteJSON(req)
}

// Answer selects an option.
func (s *ExamStream) Answer(questionID uuid.UUID, option model.OptionLetter) error {
	return s.send(ws.Request{Action: ws.ActionAnswer, QuestionID: questionID, Option: option})
}

// Clear removes the answer to a question.
func (s *ExamStream) Clear(questionID uuid.UUID) error {
	return s.send(ws.Request{Action: ws.ActionClear, QuestionID: questionID})
}

// Submit asks the server to grade the session now.
func (s *ExamStream) Submit() error {
	return s.send(ws.Request{Action: ws.ActionSubmit})
}

// Ping asks for a pong event.
func (s *ExamStream) Ping() error {
	return s.send(ws.Request{Action: ws.ActionPing})
}

// Next blocks for the next server event.
func (s *ExamStream) Next() (*StreamEvent, error) {
	var ev StreamEvent
	if err := s.conn.ReadJSON(&ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Close closes the connection without submitting.
func (s *ExamStream) Close() error {
	s.mu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(streamWriteWait))
	s.mu.Unlock()
	return s.conn.Close()
}
