package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptPolicy controls how many attempts an examinee may make.
type AttemptPolicy string

const (
	AttemptPolicySingle    AttemptPolicy = "single"
	AttemptPolicyMultiple  AttemptPolicy = "multiple"
	AttemptPolicyUnlimited AttemptPolicy = "unlimited"
)

// Limit returns the maximum number of attempts, or 0 when unlimited.
// maxMultiple caps the "multiple" policy.
func (p AttemptPolicy) Limit(maxMultiple int) int {
	switch p {
	case AttemptPolicyMultiple:
		return maxMultiple
	case AttemptPolicyUnlimited:
		return 0
	default:
		return 1
	}
}

// Exam represents an exam entity.
type Exam struct {
	ID                 uuid.UUID     `json:"exam_id"`
	ExamCode           string        `json:"exam_code"`
	ExamName           string        `json:"exam_name"`
	Subject            string        `json:"subject"`
	Chapter            string        `json:"chapter"`
	ClassName          string        `json:"class_name"`
	Description        string        `json:"description"`
	TotalMarks         int           `json:"total_marks"`
	PassingMarks       string        `json:"passing_marks"`
	TotalTimeMinutes   int           `json:"total_time_minutes"`
	StartAt            *time.Time    `json:"start_datetime,omitempty"`
	EndAt              *time.Time    `json:"end_datetime,omitempty"`
	AttemptsAllowed    AttemptPolicy `json:"attempts_allowed"`
	NegativeMarksValue float64       `json:"negative_marks_value"`
	ExaminerName       string        `json:"examiner_name"`
	AuthorID           uuid.UUID     `json:"author_id"`
	QuestionCount      int           `json:"question_count"`
	Questions          []Question    `json:"questions,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// Duration returns the exam time limit.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.TotalTimeMinutes) * time.Minute
}

// Open reports whether now falls inside the exam's availability window.
func (e *Exam) Open(now time.Time) bool {
	if e.StartAt != nil && now.Before(*e.StartAt) {
		return false
	}
	if e.EndAt != nil && now.After(*e.EndAt) {
		return false
	}
	return true
}

// AnswerKey returns question id → correct letter.
func (e *Exam) AnswerKey() map[uuid.UUID]OptionLetter {
	key := make(map[uuid.UUID]OptionLetter, len(e.Questions))
	for _, q := range e.Questions {
		key[q.ID] = q.CorrectAnswer
	}
	return key
}

// ExamPaper is the examinee-facing view of an exam (no correct answers).
type ExamPaper struct {
	ID                 uuid.UUID             `json:"exam_id"`
	ExamCode           string                `json:"exam_code"`
	ExamName           string                `json:"exam_name"`
	Subject            string                `json:"subject"`
	Chapter            string                `json:"chapter"`
	ClassName          string                `json:"class_name"`
	Description        string                `json:"description"`
	TotalMarks         int                   `json:"total_marks"`
	PassingMarks       string                `json:"passing_marks"`
	TotalTimeMinutes   int                   `json:"total_time_minutes"`
	AttemptsAllowed    AttemptPolicy         `json:"attempts_allowed"`
	NegativeMarksValue float64               `json:"negative_marks_value"`
	ExaminerName       string                `json:"examiner_name"`
	Questions          []QuestionForExaminee `json:"questions"`
}

// Paper builds the examinee-facing view of e.
func (e *Exam) Paper() *ExamPaper {
	questions := make([]QuestionForExaminee, len(e.Questions))
	for i, q := range e.Questions {
		questions[i] = q.ForExaminee()
	}
	return &ExamPaper{
		ID:                 e.ID,
		ExamCode:           e.ExamCode,
		ExamName:           e.ExamName,
		Subject:            e.Subject,
		Chapter:            e.Chapter,
		ClassName:          e.ClassName,
		Description:        e.Description,
		TotalMarks:         e.TotalMarks,
		PassingMarks:       e.PassingMarks,
		TotalTimeMinutes:   e.TotalTimeMinutes,
		AttemptsAllowed:    e.AttemptsAllowed,
		NegativeMarksValue: e.NegativeMarksValue,
		ExaminerName:       e.ExaminerName,
		Questions:          questions,
	}
}

// Exam converts a paper back into an Exam definition without answer keys.
// Used by clients that only ever see the paper.
func (p *ExamPaper) Exam() *Exam {
	questions := make([]Question, len(p.Questions))
	for i, q := range p.Questions {
		questions[i] = Question{
			ID:            q.ID,
			ExamID:        p.ID,
			QuestionText:  q.QuestionText,
			ImageURL:      q.ImageURL,
			Options:       q.Options,
			Marks:         q.Marks,
			QuestionOrder: q.QuestionOrder,
		}
	}
	return &Exam{
		ID:                 p.ID,
		ExamCode:           p.ExamCode,
		ExamName:           p.ExamName,
		Subject:            p.Subject,
		Chapter:            p.Chapter,
		ClassName:          p.ClassName,
		Description:        p.Description,
		TotalMarks:         p.TotalMarks,
		PassingMarks:       p.PassingMarks,
		TotalTimeMinutes:   p.TotalTimeMinutes,
		AttemptsAllowed:    p.AttemptsAllowed,
		NegativeMarksValue: p.NegativeMarksValue,
		ExaminerName:       p.ExaminerName,
		QuestionCount:      len(questions),
		Questions:          questions,
	}
}

// CreateExamRequest is the payload for creating or replacing an exam.
type CreateExamRequest struct {
	ExamName           string            `json:"exam_name" binding:"required,min=3,max=255"`
	Subject            string            `json:"subject" binding:"required,max=100"`
	Chapter            string            `json:"chapter" binding:"omitempty,max=100"`
	ClassName          string            `json:"class_name" binding:"omitempty,max=50"`
	Description        string            `json:"description" binding:"omitempty,max=4000"`
	TotalMarks         int               `json:"total_marks" binding:"min=0"`
	PassingMarks       string            `json:"passing_marks" binding:"omitempty,max=100"`
	TotalTimeMinutes   int               `json:"total_time_minutes" binding:"required,min=1,max=600"`
	StartAt            *time.Time        `json:"start_datetime" binding:"omitempty"`
	EndAt              *time.Time        `json:"end_datetime" binding:"omitempty,gtfield=StartAt"`
	AttemptsAllowed    AttemptPolicy     `json:"attempts_allowed" binding:"omitempty,oneof=single multiple unlimited"`
	NegativeMarksValue float64           `json:"negative_marks_value" binding:"min=0"`
	ExaminerName       string            `json:"examiner_name" binding:"omitempty,max=100"`
	Questions          []QuestionRequest `json:"questions" binding:"required,min=1,dive"`
}

// ToExam converts the request into an Exam owned by authorID.
func (r CreateExamRequest) ToExam(authorID uuid.UUID) *Exam {
	policy := r.AttemptsAllowed
	if policy == "" {
		policy = AttemptPolicySingle
	}
	questions := make([]Question, len(r.Questions))
	for i, q := range r.Questions {
		questions[i] = q.ToQuestion(i + 1)
	}
	return &Exam{
		ExamName:           r.ExamName,
		Subject:            r.Subject,
		Chapter:            r.Chapter,
		ClassName:          r.ClassName,
		Description:        r.Description,
		TotalMarks:         r.TotalMarks,
		PassingMarks:       r.PassingMarks,
		TotalTimeMinutes:   r.TotalTimeMinutes,
		StartAt:            r.StartAt,
		EndAt:              r.EndAt,
		AttemptsAllowed:    policy,
		NegativeMarksValue: r.NegativeMarksValue,
		ExaminerName:       r.ExaminerName,
		AuthorID:           authorID,
		QuestionCount:      len(questions),
		Questions:          questions,
	}
}
