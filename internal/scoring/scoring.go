// Package scoring grades a multiple-choice attempt.
//
// The same code computes the authoritative score on the server and the
// preview shown by clients, so both always agree.
package scoring

import (
	"fmt"
	"strings"

	"github.com/examhall/examhall-backend/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ClampPolicy decides what happens to a negative total score.
type ClampPolicy string

const (
	// ClampNone reports the raw total, which may be negative.
	ClampNone ClampPolicy = "none"
	// ClampFloorZero floors the total at zero.
	ClampFloorZero ClampPolicy = "floor_zero"
)

// ParseClampPolicy parses a policy name. Empty means ClampNone.
func ParseClampPolicy(s string) (ClampPolicy, error) {
	switch ClampPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ClampNone:
		return ClampNone, nil
	case ClampFloorZero:
		return ClampFloorZero, nil
	}
	return ClampNone, fmt.Errorf("unknown score clamp policy %q", s)
}

// Outcome classifies one question of an attempt.
type Outcome string

const (
	OutcomeCorrect    Outcome = "correct"
	OutcomeWrong      Outcome = "wrong"
	OutcomeUnanswered Outcome = "unanswered"
)

// QuestionResult is the graded state of one question.
type QuestionResult struct {
	QuestionID uuid.UUID          `json:"question_id"`
	Selected   model.OptionLetter `json:"selected_option,omitempty"`
	Correct    model.OptionLetter `json:"correct_option"`
	Outcome    Outcome            `json:"outcome"`
	Awarded    float64            `json:"awarded"`
}

// Result summarises a graded attempt.
type Result struct {
	Score          float64          `json:"score"`
	Correct        int              `json:"correct_answers"`
	Wrong          int              `json:"wrong_answers"`
	Unanswered     int              `json:"unanswered_questions"`
	TotalQuestions int              `json:"total_questions"`
	Percentage     int              `json:"percentage"`
	Breakdown      []QuestionResult `json:"breakdown"`
}

// Calculate grades answers against questions. A question with no entry in
// answers is unanswered; any entry other than the correct letter is wrong and
// costs negativeMark. answers is never modified.
func Calculate(questions []model.Question, answers model.AnswerState, negativeMark float64, policy ClampPolicy) Result {
	penalty := decimal.NewFromFloat(negativeMark)
	total := decimal.Zero

	res := Result{
		TotalQuestions: len(questions),
		Breakdown:      make([]QuestionResult, 0, len(questions)),
	}

	for _, q := range questions {
		qr := QuestionResult{QuestionID: q.ID, Correct: q.CorrectAnswer}

		selected, ok := answers[q.ID]
		switch {
		case !ok:
			qr.Outcome = OutcomeUnanswered
			res.Unanswered++
		case selected == q.CorrectAnswer:
			qr.Selected = selected
			qr.Outcome = OutcomeCorrect
			gain := decimal.NewFromFloat(q.Weight())
			qr.Awarded = gain.InexactFloat64()
			total = total.Add(gain)
			res.Correct++
		default:
			qr.Selected = selected
			qr.Outcome = OutcomeWrong
			qr.Awarded = penalty.Neg().InexactFloat64()
			total = total.Sub(penalty)
			res.Wrong++
		}

		res.Breakdown = append(res.Breakdown, qr)
	}

	if policy == ClampFloorZero && total.IsNegative() {
		total = decimal.Zero
	}

	res.Score = total.InexactFloat64()
	res.Percentage = Percentage(res.Correct, res.TotalQuestions)
	return res
}

// Percentage returns round(correct/total*100) with halves rounded up.
// A zero total yields 0.
func Percentage(correct, total int) int {
	if total <= 0 {
		return 0
	}
	pct := decimal.NewFromInt(int64(correct)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(0)
	return int(pct.IntPart())
}
