package submission

import (
	"errors"
	"sync"
	"testing"

	"github.com/examhall/examhall-backend/internal/model"
	"github.com/google/uuid"
)

func sampleExam(n int) *model.Exam {
	exam := &model.Exam{ID: uuid.New(), ExamName: "Algebra", TotalTimeMinutes: 10}
	for i := 0; i < n; i++ {
		exam.Questions = append(exam.Questions, model.Question{
			ID:           uuid.New(),
			QuestionText: "q",
			Options: model.Options{
				"A": {Text: "a"}, "B": {Text: "b"}, "C": {Text: "c"}, "D": {ImageURL: "/uploads/d.png"},
			},
			CorrectAnswer: model.OptionA,
			QuestionOrder: i + 1,
		})
	}
	return exam
}

func TestAssembleIncludesEveryQuestion(t *testing.T) {
	exam := sampleExam(5)

	answerSets := []model.AnswerState{
		{},
		{exam.Questions[0].ID: model.OptionB},
		{exam.Questions[1].ID: model.OptionD, exam.Questions[4].ID: model.OptionA},
		{exam.Questions[2].ID: "X"},
	}

	for i, answers := range answerSets {
		p, err := Assemble(exam, answers, 1.5)
		if err != nil {
			t.Fatalf("set %d: %v", i, err)
		}
		if len(p.Questions) != len(exam.Questions) {
			t.Fatalf("set %d: %d questions, want %d", i, len(p.Questions), len(exam.Questions))
		}
		for j, q := range p.Questions {
			if q.QuestionID != exam.Questions[j].ID {
				t.Fatalf("set %d: question %d out of order", i, j)
			}
			if len(q.Options) != 4 {
				t.Fatalf("set %d: question %d has %d options", i, j, len(q.Options))
			}
			selected := 0
			for _, opt := range q.Options {
				if opt.SelectedByUser {
					selected++
					if want := answers[q.QuestionID]; opt.OptionLetter != want {
						t.Fatalf("set %d: selected %s, want %s", i, opt.OptionLetter, want)
					}
				}
			}
			if selected > 1 {
				t.Fatalf("set %d: question %d has %d selections", i, j, selected)
			}
			if _, answered := answers[q.QuestionID]; answered && answers[q.QuestionID].Valid() && selected != 1 {
				t.Fatalf("set %d: answered question %d lost its selection", i, j)
			}
		}
	}
}

func TestAssembleTimeTaken(t *testing.T) {
	exam := sampleExam(1)
	tests := []struct {
		minutes float64
		want    float64
	}{
		{1.5, 90},
		{125.0 / 60, 125},
		{0, 0},
		{-1, 0},
		{1.0 / 60, 1},
	}
	for _, tt := range tests {
		p, err := Assemble(exam, nil, tt.minutes)
		if err != nil {
			t.Fatal(err)
		}
		if p.TimeTakenSeconds != tt.want {
			t.Errorf("minutes=%v: time_taken_seconds = %v, want %v", tt.minutes, p.TimeTakenSeconds, tt.want)
		}
	}
}

func TestAssembleValidationErrors(t *testing.T) {
	noID := sampleExam(2)
	noID.ID = uuid.Nil

	badQuestion := sampleExam(3)
	badQuestion.Questions[1].ID = uuid.Nil

	tests := []struct {
		name  string
		exam  *model.Exam
		field string
	}{
		{"nil exam", nil, "exam"},
		{"missing exam id", noID, "exam_id"},
		{"missing question id", badQuestion, "questions[1].question_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Assemble(tt.exam, model.AnswerState{}, 1)
			if p != nil {
				t.Fatal("partial payload returned")
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Fatalf("field = %q, want %q", ve.Field, tt.field)
			}
			if !errors.Is(err, ErrInvalidSubmission) {
				t.Fatal("ValidationError does not wrap ErrInvalidSubmission")
			}
		})
	}
}

func TestAssembleDoesNotMutateAnswers(t *testing.T) {
	exam := sampleExam(2)
	answers := model.AnswerState{exam.Questions[0].ID: model.OptionC}
	if _, err := Assemble(exam, answers, 2); err != nil {
		t.Fatal(err)
	}
	if len(answers) != 1 || answers[exam.Questions[0].ID] != model.OptionC {
		t.Fatalf("answers mutated: %v", answers)
	}
}

func TestSelectionsRoundTrip(t *testing.T) {
	exam := sampleExam(3)
	answers := model.AnswerState{exam.Questions[0].ID: model.OptionD, exam.Questions[2].ID: model.OptionB}

	p, err := Assemble(exam, answers, 3)
	if err != nil {
		t.Fatal(err)
	}
	got := Selections(p)
	if len(got) != 2 || got[exam.Questions[0].ID] != model.OptionD || got[exam.Questions[2].ID] != model.OptionB {
		t.Fatalf("Selections = %v", got)
	}
	if err := Verify(p, exam); err != nil {
		t.Fatalf("Verify on assembled payload: %v", err)
	}
}

func TestVerifyRejectsBadPayloads(t *testing.T) {
	exam := sampleExam(3)
	base := func() *model.SubmissionPayload {
		p, err := Assemble(exam, model.AnswerState{}, 1)
		if err != nil {
			t.Fatal(err)
		}
		return p
	}

	tests := []struct {
		name   string
		mutate func(p *model.SubmissionPayload)
		field  string
	}{
		{"missing exam id", func(p *model.SubmissionPayload) { p.ExamID = uuid.Nil }, "exam_id"},
		{"other exam", func(p *model.SubmissionPayload) { p.ExamID = uuid.New() }, "exam_id"},
		{"negative time", func(p *model.SubmissionPayload) { p.TimeTakenSeconds = -1 }, "time_taken_seconds"},
		{"dropped question", func(p *model.SubmissionPayload) { p.Questions = p.Questions[:2] }, "questions"},
		{"unknown question", func(p *model.SubmissionPayload) { p.Questions[0].QuestionID = uuid.New() }, "questions[0].question_id"},
		{"duplicate question", func(p *model.SubmissionPayload) { p.Questions[1].QuestionID = p.Questions[0].QuestionID }, "questions[1].question_id"},
		{"two selections", func(p *model.SubmissionPayload) {
			p.Questions[2].Options[0].SelectedByUser = true
			p.Questions[2].Options[1].SelectedByUser = true
		}, "questions[2].options"},
		{"bad letter", func(p *model.SubmissionPayload) { p.Questions[0].Options[3].OptionLetter = "E" }, "questions[0].options[3].option_letter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base()
			tt.mutate(p)
			err := Verify(p, exam)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Fatalf("field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
}

func TestGuardAllowsOneWinner(t *testing.T) {
	var g Guard
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryMark() {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("winners = %d, want 1", winners)
	}
	if !g.Marked() {
		t.Fatal("guard not marked")
	}
}
