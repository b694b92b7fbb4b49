package model

import (
	"time"

	"github.com/google/uuid"
)

// Attempt is one examinee's graded pass at an exam.
type Attempt struct {
	ID                  uuid.UUID    `json:"attempt_id"`
	ExamID              uuid.UUID    `json:"exam_id"`
	ExamineeID          uuid.UUID    `json:"examinee_id"`
	Score               float64      `json:"score"`
	TotalQuestions      int          `json:"total_questions"`
	CorrectAnswers      int          `json:"correct_answers"`
	WrongAnswers        int          `json:"wrong_answers"`
	UnansweredQuestions int          `json:"unanswered_questions"`
	Percentage          int          `json:"percentage"`
	TimeTakenSeconds    float64      `json:"time_taken_seconds"`
	SubmitReason        SubmitReason `json:"submit_reason"`
	CreatedAt           time.Time    `json:"created_at"`

	// Exam summary, filled by list/detail queries.
	ExamName           string  `json:"exam_name,omitempty"`
	Subject            string  `json:"subject,omitempty"`
	Chapter            string  `json:"chapter,omitempty"`
	ClassName          string  `json:"class_name,omitempty"`
	TotalMarks         int     `json:"total_marks,omitempty"`
	TotalTimeMinutes   int     `json:"total_time_minutes,omitempty"`
	NegativeMarksValue float64 `json:"negative_marks_value"`
	ExaminerName       string  `json:"examiner_name,omitempty"`
}

// AttemptQuestion is the per-question snapshot stored with an attempt.
// SelectedAnswer is nil for unanswered questions.
type AttemptQuestion struct {
	ID                 uuid.UUID     `json:"id"`
	AttemptID          uuid.UUID     `json:"attempt_id"`
	OriginalQuestionID *uuid.UUID    `json:"original_question_id,omitempty"`
	QuestionText       string        `json:"question_text"`
	QuestionImageURL   string        `json:"question_image_url,omitempty"`
	Options            Options       `json:"options"`
	CorrectAnswer      OptionLetter  `json:"correct_option"`
	SelectedAnswer     *OptionLetter `json:"selected_option"`
	IsCorrect          bool          `json:"is_correct"`
	Marks              float64       `json:"marks"`
	QuestionOrder      int           `json:"question_order"`
}

// AttemptDetail is an attempt plus its question snapshot.
type AttemptDetail struct {
	Attempt
	Questions []AttemptQuestion `json:"questions"`
}

// AttemptSubmittedEvent is published on the exam leaderboard channel.
type AttemptSubmittedEvent struct {
	Type       string    `json:"type"`
	AttemptID  uuid.UUID `json:"attempt_id"`
	ExamID     uuid.UUID `json:"exam_id"`
	ExamineeID uuid.UUID `json:"examinee_id"`
	Score      float64   `json:"score"`
}
