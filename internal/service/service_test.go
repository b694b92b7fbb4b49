package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/examhall/examhall-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func completeOptions() model.Options {
	return model.Options{
		model.OptionA: {Text: "one"},
		model.OptionB: {Text: "two"},
		model.OptionC: {Text: "three"},
		model.OptionD: {ImageURL: "/uploads/four.png"},
	}
}

func sampleExam(correct ...model.OptionLetter) *model.Exam {
	exam := &model.Exam{
		ID:                 uuid.New(),
		ExamCode:           "ABCD-EFGH",
		ExamName:           "Kinematics",
		Subject:            "Physics",
		TotalTimeMinutes:   10,
		AttemptsAllowed:    model.AttemptPolicySingle,
		NegativeMarksValue: 0.25,
		AuthorID:           uuid.New(),
	}
	for i, c := range correct {
		exam.Questions = append(exam.Questions, model.Question{
			ID:            uuid.New(),
			ExamID:        exam.ID,
			QuestionText:  "question",
			Options:       completeOptions(),
			CorrectAnswer: c,
			Marks:         1,
			QuestionOrder: i + 1,
		})
	}
	exam.QuestionCount = len(exam.Questions)
	return exam
}

// countingLoader serves exams from memory and counts database round trips.
type countingLoader struct {
	mu    sync.Mutex
	exams map[uuid.UUID]*model.Exam
	delay time.Duration
	loads atomic.Int32
}

func newLoader(exams ...*model.Exam) *countingLoader {
	l := &countingLoader{exams: map[uuid.UUID]*model.Exam{}}
	for _, e := range exams {
		l.exams[e.ID] = e
	}
	return l
}

func (l *countingLoader) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	l.loads.Add(1)
	time.Sleep(l.delay)
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.exams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cloneExam(e), nil
}

func (l *countingLoader) GetIDByCode(_ context.Context, code string) (uuid.UUID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.exams {
		if e.ExamCode == code {
			return e.ID, nil
		}
	}
	return uuid.Nil, pgx.ErrNoRows
}

func newCache(t *testing.T, loader ExamLoader) (*ExamCache, *miniredis.Miniredis) {
	t.Helper()
	mr, rdb := newRedis(t)
	return NewExamCache(rdb, loader, time.Minute, zerolog.Nop()), mr
}
