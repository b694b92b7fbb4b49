package scoring

import (
	"math/rand"
	"testing"

	"github.com/examhall/examhall-backend/internal/model"
	"github.com/google/uuid"
)

func makeQuestions(correct ...model.OptionLetter) []model.Question {
	qs := make([]model.Question, len(correct))
	for i, c := range correct {
		qs[i] = model.Question{ID: uuid.New(), CorrectAnswer: c, Marks: 1, QuestionOrder: i + 1}
	}
	return qs
}

func TestCalculateNegativeMarkingExample(t *testing.T) {
	qs := makeQuestions(model.OptionA, model.OptionB, model.OptionC, model.OptionD)
	answers := model.AnswerState{
		qs[0].ID: model.OptionA,
		qs[1].ID: "X",
		qs[3].ID: model.OptionD,
	}

	res := Calculate(qs, answers, 0.25, ClampNone)

	if res.Correct != 2 || res.Wrong != 1 || res.Unanswered != 1 {
		t.Fatalf("counts = %d/%d/%d, want 2/1/1", res.Correct, res.Wrong, res.Unanswered)
	}
	if res.Score != 1.75 {
		t.Fatalf("score = %v, want 1.75", res.Score)
	}
	if res.TotalQuestions != 4 {
		t.Fatalf("total = %d, want 4", res.TotalQuestions)
	}
	if res.Percentage != 50 {
		t.Fatalf("percentage = %d, want 50", res.Percentage)
	}

	wantOutcomes := []Outcome{OutcomeCorrect, OutcomeWrong, OutcomeUnanswered, OutcomeCorrect}
	for i, qr := range res.Breakdown {
		if qr.Outcome != wantOutcomes[i] {
			t.Errorf("breakdown[%d] = %s, want %s", i, qr.Outcome, wantOutcomes[i])
		}
		if qr.Correct != qs[i].CorrectAnswer {
			t.Errorf("breakdown[%d] correct = %s, want %s", i, qr.Correct, qs[i].CorrectAnswer)
		}
	}
	if res.Breakdown[1].Selected != "X" || res.Breakdown[1].Awarded != -0.25 {
		t.Errorf("wrong answer breakdown = %+v", res.Breakdown[1])
	}
	if res.Breakdown[2].Selected != "" {
		t.Errorf("unanswered question reports selection %q", res.Breakdown[2].Selected)
	}
}

func TestCalculateScores(t *testing.T) {
	qs := makeQuestions(model.OptionA, model.OptionB, model.OptionC)
	qs[2].Marks = 2.5

	tests := []struct {
		name     string
		answers  model.AnswerState
		negative float64
		policy   ClampPolicy
		want     float64
	}{
		{"all unanswered", model.AnswerState{}, 1, ClampNone, 0},
		{"weighted correct", model.AnswerState{qs[2].ID: model.OptionC}, 0, ClampNone, 2.5},
		{"all wrong goes negative", model.AnswerState{qs[0].ID: "B", qs[1].ID: "C", qs[2].ID: "D"}, 0.5, ClampNone, -1.5},
		{"all wrong floored", model.AnswerState{qs[0].ID: "B", qs[1].ID: "C", qs[2].ID: "D"}, 0.5, ClampFloorZero, 0},
		{"floor keeps positive totals", model.AnswerState{qs[0].ID: "A", qs[1].ID: "C"}, 0.5, ClampFloorZero, 0.5},
		{"tenths stay exact", model.AnswerState{qs[0].ID: "A", qs[1].ID: "D", qs[2].ID: "D"}, 0.1, ClampNone, 0.8},
		{"default marks", model.AnswerState{qs[0].ID: "A", qs[1].ID: "B"}, 0, ClampNone, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Calculate(qs, tt.answers, tt.negative, tt.policy)
			if res.Score != tt.want {
				t.Fatalf("score = %v, want %v", res.Score, tt.want)
			}
		})
	}
}

func TestCalculateMissingMarksDefaultToOne(t *testing.T) {
	q := model.Question{ID: uuid.New(), CorrectAnswer: model.OptionB}
	res := Calculate([]model.Question{q}, model.AnswerState{q.ID: model.OptionB}, 0, ClampNone)
	if res.Score != 1 {
		t.Fatalf("score = %v, want 1", res.Score)
	}
}

func TestCalculateSumInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	letters := []model.OptionLetter{"A", "B", "C", "D", "X"}

	for round := 0; round < 200; round++ {
		n := rng.Intn(30)
		qs := make([]model.Question, n)
		answers := model.AnswerState{}
		for i := range qs {
			qs[i] = model.Question{ID: uuid.New(), CorrectAnswer: letters[rng.Intn(4)], Marks: float64(rng.Intn(3))}
			if rng.Intn(3) > 0 {
				answers[qs[i].ID] = letters[rng.Intn(len(letters))]
			}
		}
		// Answers for questions not in the exam are ignored.
		answers[uuid.New()] = model.OptionA

		res := Calculate(qs, answers, float64(rng.Intn(4))/4, ClampNone)
		if res.Correct+res.Wrong+res.Unanswered != res.TotalQuestions {
			t.Fatalf("round %d: %d+%d+%d != %d", round, res.Correct, res.Wrong, res.Unanswered, res.TotalQuestions)
		}
		if res.TotalQuestions != n || len(res.Breakdown) != n {
			t.Fatalf("round %d: total=%d breakdown=%d, want %d", round, res.TotalQuestions, len(res.Breakdown), n)
		}
	}
}

func TestCalculateDoesNotMutateAnswers(t *testing.T) {
	qs := makeQuestions(model.OptionA, model.OptionB)
	answers := model.AnswerState{qs[0].ID: model.OptionC}
	before := answers.Clone()

	Calculate(qs, answers, 1, ClampFloorZero)

	if len(answers) != len(before) || answers[qs[0].ID] != before[qs[0].ID] {
		t.Fatalf("answers mutated: %v", answers)
	}
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		correct, total, want int
	}{
		{3, 7, 43},
		{1, 8, 13},
		{1, 3, 33},
		{2, 3, 67},
		{0, 5, 0},
		{5, 5, 100},
		{0, 0, 0},
		{1, 200, 1},
	}
	for _, tt := range tests {
		if got := Percentage(tt.correct, tt.total); got != tt.want {
			t.Errorf("Percentage(%d, %d) = %d, want %d", tt.correct, tt.total, got, tt.want)
		}
	}
}

func TestParseClampPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    ClampPolicy
		wantErr bool
	}{
		{"", ClampNone, false},
		{"none", ClampNone, false},
		{"FLOOR_ZERO", ClampFloorZero, false},
		{"clamp", ClampNone, true},
	}
	for _, tt := range tests {
		got, err := ParseClampPolicy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseClampPolicy(%q) = %v, %v", tt.in, got, err)
		}
	}
}
