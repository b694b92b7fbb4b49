// Package submission turns in-progress answers into the payload accepted by
// POST /submit-exam, and checks received payloads against the exam.
package submission

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/examhall/examhall-backend/internal/model"
	"github.com/google/uuid"
)

// ErrInvalidSubmission is wrapped by every ValidationError.
var ErrInvalidSubmission = errors.New("invalid submission")

// ValidationError reports the field that made a submission unusable.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid submission: %s is required", e.Field)
	}
	return fmt.Sprintf("invalid submission: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidSubmission }

func missing(field string) error {
	return &ValidationError{Field: field}
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Assemble builds the submission payload for exam. Every question is
// included in exam order, and the option matching the examinee's answer (if
// any) is marked selected_by_user. elapsedMinutes is the last elapsed value
// reported by the timer. answers is not modified.
func Assemble(exam *model.Exam, answers model.AnswerState, elapsedMinutes float64) (*model.SubmissionPayload, error) {
	if exam == nil {
		return nil, missing("exam")
	}
	if exam.ID == uuid.Nil {
		return nil, missing("exam_id")
	}

	questions := make([]model.SubmissionQuestion, len(exam.Questions))
	for i, q := range exam.Questions {
		if q.ID == uuid.Nil {
			return nil, missing(fmt.Sprintf("questions[%d].question_id", i))
		}

		selected, answered := answers[q.ID]
		options := make([]model.SubmissionOption, len(model.OptionLetters))
		for j, letter := range model.OptionLetters {
			opt := q.Options[letter]
			options[j] = model.SubmissionOption{
				OptionLetter:   letter,
				OptionText:     opt.Text,
				OptionImageURL: opt.ImageURL,
				SelectedByUser: answered && selected == letter,
			}
		}

		questions[i] = model.SubmissionQuestion{
			QuestionID:       q.ID,
			QuestionText:     q.QuestionText,
			QuestionImageURL: q.ImageURL,
			Marks:            q.Weight(),
			Options:          options,
		}
	}

	return &model.SubmissionPayload{
		ExamID:           exam.ID,
		TimeTakenSeconds: toSeconds(elapsedMinutes),
		Questions:        questions,
	}, nil
}

// toSeconds converts minutes to seconds, trimmed to millisecond precision.
func toSeconds(minutes float64) float64 {
	if minutes <= 0 || math.IsNaN(minutes) {
		return 0
	}
	return math.Round(minutes*60*1000) / 1000
}

// Selections extracts the examinee's answers from a payload.
func Selections(p *model.SubmissionPayload) model.AnswerState {
	answers := make(model.AnswerState, len(p.Questions))
	for _, q := range p.Questions {
		for _, opt := range q.Options {
			if opt.SelectedByUser {
				answers[q.QuestionID] = opt.OptionLetter
				break
			}
		}
	}
	return answers
}

// Verify checks a received payload against the stored exam: it must name the
// exam, include every question exactly once, reference no unknown questions,
// and select at most one A–D option per question.
func Verify(p *model.SubmissionPayload, exam *model.Exam) error {
	if p == nil {
		return missing("payload")
	}
	if p.ExamID == uuid.Nil {
		return missing("exam_id")
	}
	if exam == nil || p.ExamID != exam.ID {
		return invalid("exam_id", "does not match the exam")
	}
	if math.IsNaN(p.TimeTakenSeconds) || p.TimeTakenSeconds < 0 {
		return invalid("time_taken_seconds", "must be a non-negative number")
	}

	known := make(map[uuid.UUID]bool, len(exam.Questions))
	for _, q := range exam.Questions {
		known[q.ID] = false
	}

	for i, q := range p.Questions {
		field := fmt.Sprintf("questions[%d]", i)
		if q.QuestionID == uuid.Nil {
			return missing(field + ".question_id")
		}
		seen, ok := known[q.QuestionID]
		if !ok {
			return invalid(field+".question_id", "unknown question")
		}
		if seen {
			return invalid(field+".question_id", "duplicate question")
		}
		known[q.QuestionID] = true

		selected := 0
		for j, opt := range q.Options {
			if !opt.OptionLetter.Valid() {
				return invalid(fmt.Sprintf("%s.options[%d].option_letter", field, j), "must be one of A B C D")
			}
			if opt.SelectedByUser {
				selected++
			}
		}
		if selected > 1 {
			return invalid(field+".options", "more than one option selected")
		}
	}

	for i, q := range exam.Questions {
		if !known[q.ID] {
			return invalid("questions", fmt.Sprintf("question %d (%s) is missing", i+1, q.ID))
		}
	}
	return nil
}

// Guard is the "already submitted" flag shared by the manual submit path and
// the timer's time-up path. Only the first caller of TryMark proceeds.
type Guard struct {
	submitted atomic.Bool
}

// TryMark sets the flag and reports whether this call set it.
func (g *Guard) TryMark() bool {
	return g.submitted.CompareAndSwap(false, true)
}

// Marked reports whether a submission already happened.
func (g *Guard) Marked() bool {
	return g.submitted.Load()
}
