package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/examhall/examhall-backend/internal/model"
	"github.com/examhall/examhall-backend/internal/validator"
)

func TestGenerateExamCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		code, err := GenerateExamCode()
		if err != nil {
			t.Fatalf("GenerateExamCode: %v", err)
		}
		if !validator.ValidExamCode(code) {
			t.Fatalf("code %q does not match XXXX-XXXX", code)
		}
		for _, r := range strings.ReplaceAll(code, "-", "") {
			if !strings.ContainsRune(ExamCodeAlphabet, r) {
				t.Fatalf("code %q uses %q outside the alphabet", code, r)
			}
		}
		seen[code] = true
	}
	if len(seen) < 190 {
		t.Errorf("only %d distinct codes in 200 draws", len(seen))
	}
}

func TestNormalizeExamCode(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"abcd-efgh", "ABCD-EFGH"},
		{"  ABCD-EFGH ", "ABCD-EFGH"},
		{"abcdefgh", "ABCD-EFGH"},
		{"abc", "ABC"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeExamCode(tt.in); got != tt.want {
			t.Errorf("NormalizeExamCode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidateQuestions(t *testing.T) {
	valid := model.QuestionRequest{QuestionText: "2+2?", Options: completeOptions(), CorrectAnswer: model.OptionA}

	missingD := completeOptions()
	delete(missingD, model.OptionD)
	blankC := completeOptions()
	blankC[model.OptionC] = model.Option{}
	extra := completeOptions()
	extra["E"] = model.Option{Text: "five"}

	tests := []struct {
		name      string
		questions []model.QuestionRequest
		wantField string
	}{
		{name: "valid", questions: []model.QuestionRequest{valid, valid}},
		{name: "image only question", questions: []model.QuestionRequest{{ImageURL: "/uploads/q.png", Options: completeOptions(), CorrectAnswer: "B"}}},
		{name: "missing option", questions: []model.QuestionRequest{valid, {QuestionText: "q", Options: missingD, CorrectAnswer: "A"}}, wantField: "questions[1].options"},
		{name: "blank option", questions: []model.QuestionRequest{{QuestionText: "q", Options: blankC, CorrectAnswer: "A"}}, wantField: "questions[0].options"},
		{name: "fifth option", questions: []model.QuestionRequest{{QuestionText: "q", Options: extra, CorrectAnswer: "A"}}, wantField: "questions[0].options"},
		{name: "no text or image", questions: []model.QuestionRequest{{QuestionText: "  ", Options: completeOptions(), CorrectAnswer: "A"}}, wantField: "questions[0].question_text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQuestions(tt.questions)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("err = %v, want *FieldError", err)
			}
			if fe.Field != tt.wantField {
				t.Errorf("field = %q, want %q", fe.Field, tt.wantField)
			}
		})
	}
}
