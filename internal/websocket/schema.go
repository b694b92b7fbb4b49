package websocket

import (
	"github.com/examhall/examhall-backend/internal/model"
	"github.com/google/uuid"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer Action = "answer"
	ActionClear  Action = "clear"
	ActionSubmit Action = "submit"
	ActionPing   Action = "ping"
)

// Request is a client message. QuestionID and Option are used by answer and
// clear only.
type Request struct {
	Action     Action             `json:"action"`
	QuestionID uuid.UUID          `json:"question_id,omitempty"`
	Option     model.OptionLetter `json:"option,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventReady  Event = "ready"
	EventTick   Event = "tick"
	EventSaved  Event = "saved"
	EventTimeUp Event = "time_up"
	EventGraded Event = "graded"
	EventError  Event = "error"
	EventPong   Event = "pong"
)

// ReadyEvent is sent once after the upgrade with the resumed session state.
type ReadyEvent struct {
	Event   Event                   `json:"event"`
	Session *model.ExamSessionState `json:"session"`
}

// TickEvent is sent every second while the countdown runs.
type TickEvent struct {
	Event            Event   `json:"event"`
	Remaining        string  `json:"remaining"`
	RemainingSeconds int     `json:"remaining_seconds"`
	ElapsedMinutes   float64 `json:"elapsed_minutes"`
}

// SavedEvent acknowledges an answer or clear.
type SavedEvent struct {
	Event      Event              `json:"event"`
	QuestionID uuid.UUID          `json:"question_id"`
	Option     model.OptionLetter `json:"option,omitempty"`
}

// TimeUpEvent announces that the countdown ended and auto-submission started.
type TimeUpEvent struct {
	Event Event `json:"event"`
}

// GradedEvent carries the stored attempt.
type GradedEvent struct {
	Event   Event                `json:"event"`
	Reason  model.SubmitReason   `json:"reason"`
	Attempt *model.AttemptDetail `json:"attempt"`
}

// ErrorEvent reports a failed action. Code matches the REST error codes.
type ErrorEvent struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type PongEvent struct {
	Event Event `json:"event"`
}
