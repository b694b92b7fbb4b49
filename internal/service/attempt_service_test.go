package service

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/examhall/examhall-backend/internal/config"
	"github.com/examhall/examhall-backend/internal/model"
	"github.com/examhall/examhall-backend/internal/scoring"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestBuildAttempt(t *testing.T) {
	exam := sampleExam("A", "B", "C", "D")
	examinee := uuid.New()
	answers := model.AnswerState{
		exam.Questions[0].ID: "A",
		exam.Questions[1].ID: "D",
		exam.Questions[3].ID: "D",
	}

	d := BuildAttempt(exam, examinee, answers, 95, model.SubmitReasonTimeout, scoring.ClampNone)

	if d.Score != 1.75 || d.CorrectAnswers != 2 || d.WrongAnswers != 1 || d.UnansweredQuestions != 1 {
		t.Fatalf("attempt = %+v", d.Attempt)
	}
	if d.Percentage != 50 || d.TotalQuestions != 4 {
		t.Errorf("percentage/total = %d/%d", d.Percentage, d.TotalQuestions)
	}
	if d.ExamID != exam.ID || d.ExamineeID != examinee || d.SubmitReason != model.SubmitReasonTimeout {
		t.Errorf("identity fields = %+v", d.Attempt)
	}
	if d.ExamName != exam.ExamName || d.NegativeMarksValue != 0.25 {
		t.Errorf("exam snapshot = %q/%v", d.ExamName, d.NegativeMarksValue)
	}

	if len(d.Questions) != 4 {
		t.Fatalf("snapshot has %d questions", len(d.Questions))
	}
	for i, q := range d.Questions {
		if q.QuestionOrder != i+1 || *q.OriginalQuestionID != exam.Questions[i].ID {
			t.Errorf("question %d order/id mismatch", i)
		}
		if q.CorrectAnswer != exam.Questions[i].CorrectAnswer {
			t.Errorf("question %d correct = %s", i, q.CorrectAnswer)
		}
	}
	if !d.Questions[0].IsCorrect || d.Questions[1].IsCorrect {
		t.Error("is_correct flags wrong")
	}
	if d.Questions[2].SelectedAnswer != nil {
		t.Error("unanswered question has a selection")
	}
	if d.Questions[1].SelectedAnswer == nil || *d.Questions[1].SelectedAnswer != "D" {
		t.Error("wrong selection not recorded")
	}
}

func TestBuildAttemptFloorZero(t *testing.T) {
	exam := sampleExam("A", "B")
	exam.NegativeMarksValue = 1
	answers := model.AnswerState{exam.Questions[0].ID: "C", exam.Questions[1].ID: "C"}

	if d := BuildAttempt(exam, uuid.New(), answers, 0, model.SubmitReasonManual, scoring.ClampNone); d.Score != -2 {
		t.Errorf("unclamped score = %v, want -2", d.Score)
	}
	if d := BuildAttempt(exam, uuid.New(), answers, 0, model.SubmitReasonManual, scoring.ClampFloorZero); d.Score != 0 {
		t.Errorf("floored score = %v, want 0", d.Score)
	}
}

func TestClampTimeTaken(t *testing.T) {
	exam := &model.Exam{TotalTimeMinutes: 10}
	grace := 30 * time.Second

	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"negative", -5, 0},
		{"nan", math.NaN(), 0},
		{"within limit", 123.5, 123.5},
		{"within grace", 620, 620},
		{"over grace", 5000, 630},
	}
	for _, tt := range tests {
		if got := ClampTimeTaken(tt.in, exam, grace); got != tt.want {
			t.Errorf("%s: ClampTimeTaken(%v) = %v, want %v", tt.name, tt.in, got, tt.want)
		}
	}
}

func TestAcceptsSubmissions(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	exam := &model.Exam{TotalTimeMinutes: 30, StartAt: &start, EndAt: &end}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before window", start.Add(-time.Minute), false},
		{"inside window", start.Add(time.Hour), true},
		{"after close within duration and grace", end.Add(30*time.Minute + 10*time.Second), true},
		{"too late", end.Add(31 * time.Minute), false},
	}
	for _, tt := range tests {
		s := &AttemptService{cfg: &config.Config{SubmitGrace: 30 * time.Second}, now: func() time.Time { return tt.now }}
		if got := s.acceptsSubmissions(exam); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
	open := &model.Exam{TotalTimeMinutes: 30}
	s := &AttemptService{cfg: &config.Config{}, now: time.Now}
	if !s.acceptsSubmissions(open) {
		t.Error("exam without window rejected")
	}
}

func TestAttemptPublishReachesSubscribers(t *testing.T) {
	_, rdb := newRedis(t)
	ctx := context.Background()
	exam := sampleExam("A")

	boards := NewLeaderboardService(&fakeSource{}, nil, rdb, zerolog.Nop())
	sub := boards.Subscribe(ctx, exam.ID)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	s := &AttemptService{rdb: rdb, log: zerolog.Nop()}
	d := BuildAttempt(exam, uuid.New(), model.AnswerState{}, 10, model.SubmitReasonManual, scoring.ClampNone)
	d.ID = uuid.New()
	s.publish(ctx, d)

	select {
	case msg := <-sub.Channel():
		if msg.Channel != config.CacheKey.ExamLeaderboardChannel(exam.ID) {
			t.Errorf("channel = %s", msg.Channel)
		}
		var ev model.AttemptSubmittedEvent
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if ev.Type != EventAttemptSubmitted || ev.AttemptID != d.ID {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}
