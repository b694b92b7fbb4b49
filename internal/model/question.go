package model

import (
	"fmt"

	"github.com/google/uuid"
)

// OptionLetter identifies one of the four answer options.
type OptionLetter string

const (
	OptionA OptionLetter = "A"
	OptionB OptionLetter = "B"
	OptionC OptionLetter = "C"
	OptionD OptionLetter = "D"
)

// OptionLetters lists the option letters in display order.
var OptionLetters = []OptionLetter{OptionA, OptionB, OptionC, OptionD}

// Valid reports whether l is one of A–D.
func (l OptionLetter) Valid() bool {
	switch l {
	case OptionA, OptionB, OptionC, OptionD:
		return true
	}
	return false
}

// Option is a single answer choice. Either text or an image must be set.
type Option struct {
	Text     string `json:"text"`
	ImageURL string `json:"image_url,omitempty"`
	ImageID  string `json:"image_id,omitempty"`
}

// Empty reports whether the option has neither text nor image.
func (o Option) Empty() bool {
	return o.Text == "" && o.ImageURL == ""
}

// Options maps option letters to their content. Stored as JSONB.
type Options map[OptionLetter]Option

// Complete returns an error naming the first missing option letter.
func (o Options) Complete() error {
	for _, l := range OptionLetters {
		opt, ok := o[l]
		if !ok || opt.Empty() {
			return fmt.Errorf("option %s requires text or image", l)
		}
	}
	if len(o) != len(OptionLetters) {
		return fmt.Errorf("exactly %d options are allowed", len(OptionLetters))
	}
	return nil
}

// Question represents a single multiple-choice question.
type Question struct {
	ID            uuid.UUID    `json:"question_id"`
	ExamID        uuid.UUID    `json:"exam_id"`
	QuestionText  string       `json:"question_text"`
	ImageURL      string       `json:"question_image_url,omitempty"`
	ImageID       string       `json:"question_image_id,omitempty"`
	Options       Options      `json:"options"`
	CorrectAnswer OptionLetter `json:"correct_answer"`
	Marks         float64      `json:"marks"`
	QuestionOrder int          `json:"question_order"`
}

// Weight returns the marks awarded for a correct answer (defaults to 1).
func (q Question) Weight() float64 {
	if q.Marks <= 0 {
		return 1
	}
	return q.Marks
}

// QuestionForExaminee is a question without the correct answer.
type QuestionForExaminee struct {
	ID            uuid.UUID `json:"question_id"`
	QuestionText  string    `json:"question_text"`
	ImageURL      string    `json:"question_image_url,omitempty"`
	Options       Options   `json:"options"`
	Marks         float64   `json:"marks"`
	QuestionOrder int       `json:"question_order"`
}

// ForExaminee strips the answer key from q.
func (q Question) ForExaminee() QuestionForExaminee {
	return QuestionForExaminee{
		ID:            q.ID,
		QuestionText:  q.QuestionText,
		ImageURL:      q.ImageURL,
		Options:       q.Options,
		Marks:         q.Weight(),
		QuestionOrder: q.QuestionOrder,
	}
}

// QuestionRequest is a question inside a create/update exam payload.
type QuestionRequest struct {
	QuestionText  string       `json:"question_text" binding:"required_without=ImageURL,max=4000"`
	ImageURL      string       `json:"question_image_url" binding:"omitempty,max=1024"`
	ImageID       string       `json:"question_image_id" binding:"omitempty,max=255"`
	Options       Options      `json:"options" binding:"required"`
	CorrectAnswer OptionLetter `json:"correct_answer" binding:"required,oneof=A B C D"`
	Marks         float64      `json:"marks" binding:"omitempty,gt=0"`
}

// ToQuestion converts the request into a Question placed at position order.
func (r QuestionRequest) ToQuestion(order int) Question {
	marks := r.Marks
	if marks <= 0 {
		marks = 1
	}
	return Question{
		QuestionText:  r.QuestionText,
		ImageURL:      r.ImageURL,
		ImageID:       r.ImageID,
		Options:       r.Options,
		CorrectAnswer: r.CorrectAnswer,
		Marks:         marks,
		QuestionOrder: order,
	}
}
