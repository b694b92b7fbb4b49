package model

import "github.com/google/uuid"

// SubmissionOption is one option of a submitted question.
type SubmissionOption struct {
	OptionLetter   OptionLetter `json:"option_letter"`
	OptionText     string       `json:"option_text"`
	OptionImageURL string       `json:"option_image_url,omitempty"`
	SelectedByUser bool         `json:"selected_by_user"`
}

// SubmissionQuestion is one question of a submission payload.
type SubmissionQuestion struct {
	QuestionID       uuid.UUID          `json:"question_id"`
	QuestionText     string             `json:"question_text"`
	QuestionImageURL string             `json:"question_image_url,omitempty"`
	Marks            float64            `json:"marks"`
	Options          []SubmissionOption `json:"options"`
}

// SubmissionPayload is the body of POST /submit-exam.
type SubmissionPayload struct {
	ExamID           uuid.UUID            `json:"exam_id" binding:"required"`
	TimeTakenSeconds float64              `json:"time_taken_seconds" binding:"min=0"`
	Questions        []SubmissionQuestion `json:"questions" binding:"required"`
}

// SubmitReason records why an attempt was submitted.
type SubmitReason string

const (
	SubmitReasonManual  SubmitReason = "manual"
	SubmitReasonTimeout SubmitReason = "timeout"
)
