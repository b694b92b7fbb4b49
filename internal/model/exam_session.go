package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates live exam session states.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
)

// ExamSession is a server-timed attempt in progress.
type ExamSession struct {
	ID         uuid.UUID     `json:"id"`
	ExamID     uuid.UUID     `json:"exam_id"`
	ExamineeID uuid.UUID     `json:"examinee_id"`
	StartedAt  time.Time     `json:"started_at"`
	DeadlineAt time.Time     `json:"deadline_at"`
	Status     SessionStatus `json:"status"`
	AttemptID  *uuid.UUID    `json:"attempt_id,omitempty"`
}

// Remaining returns the time left before the deadline, never negative.
func (s *ExamSession) Remaining(now time.Time) time.Duration {
	d := s.DeadlineAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// ExamSessionState is returned when a client (re)connects to a live session.
type ExamSessionState struct {
	SessionID        uuid.UUID               `json:"session_id"`
	ExamID           uuid.UUID               `json:"exam_id"`
	ExamineeID       uuid.UUID               `json:"examinee_id"`
	Answers          map[string]OptionLetter `json:"answers"`
	RemainingSeconds int                     `json:"remaining_seconds"`
	StartedAt        time.Time               `json:"started_at"`
}

// StartedSession is returned when an examinee starts or resumes an exam.
type StartedSession struct {
	State   *ExamSessionState `json:"session"`
	Paper   *ExamPaper        `json:"exam"`
	Resumed bool              `json:"resumed"`
}

// PersistedAnswer is queued for the autosave worker on every live answer
// change. An empty Option means the answer was cleared.
type PersistedAnswer struct {
	SessionID  uuid.UUID    `json:"session_id"`
	QuestionID uuid.UUID    `json:"question_id"`
	Option     OptionLetter `json:"option,omitempty"`
	At         time.Time    `json:"at"`
}

// SessionProgress is an in-progress session as seen by the exam's author.
type SessionProgress struct {
	SessionID        uuid.UUID `json:"session_id"`
	ExamineeID       uuid.UUID `json:"examinee_id"`
	ExamineeName     string    `json:"examinee_name"`
	StartedAt        time.Time `json:"started_at"`
	DeadlineAt       time.Time `json:"deadline_at"`
	Answered         int64     `json:"answered"`
	RemainingSeconds int       `json:"remaining_seconds"`
}

// ExamMonitor is a live view of the open sessions of an exam.
type ExamMonitor struct {
	ExamID         uuid.UUID         `json:"exam_id"`
	TotalQuestions int               `json:"total_questions"`
	InProgress     int               `json:"in_progress"`
	Sessions       []SessionProgress `json:"sessions"`
}
