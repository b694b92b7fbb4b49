package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/examhall/examhall-backend/internal/config"
	"github.com/examhall/examhall-backend/internal/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func liveSession(now time.Time) *model.ExamSession {
	return &model.ExamSession{
		ID:         uuid.New(),
		ExamID:     uuid.New(),
		ExamineeID: uuid.New(),
		StartedAt:  now,
		DeadlineAt: now.Add(10 * time.Minute),
		Status:     model.SessionStatusInProgress,
	}
}

func TestAnswerStoreSelectAndClear(t *testing.T) {
	mr, rdb := newRedis(t)
	store := NewAnswerStore(rdb, zerolog.Nop())
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	sess := liveSession(now)
	q1, q2 := uuid.New(), uuid.New()

	if err := store.Select(ctx, sess, q1, model.OptionB); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if err := store.Select(ctx, sess, q2, model.OptionC); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if err := store.Clear(ctx, sess, q2); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	answers, err := store.Load(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(answers) != 1 || answers[q1] != model.OptionB {
		t.Errorf("answers = %v", answers)
	}

	ttl := mr.TTL(config.CacheKey.SessionAnswersKey(sess.ID))
	if want := 10*time.Minute + liveKeyGrace; ttl != want {
		t.Errorf("ttl = %v, want %v", ttl, want)
	}

	queued, err := mr.List(config.WorkerKey.PersistAnswersQueue)
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if len(queued) != 3 {
		t.Fatalf("queued %d jobs, want 3", len(queued))
	}
	var last model.PersistedAnswer
	if err := json.Unmarshal([]byte(queued[2]), &last); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if last.SessionID != sess.ID || last.QuestionID != q2 || last.Option != "" {
		t.Errorf("clear job = %+v", last)
	}
}

func TestAnswerStoreLiveAndDrop(t *testing.T) {
	mr, rdb := newRedis(t)
	store := NewAnswerStore(rdb, zerolog.Nop())
	ctx := context.Background()
	sess := liveSession(time.Now())

	if _, err := store.Live(ctx, sess.ID); !errors.Is(err, redis.Nil) {
		t.Fatalf("Live before Remember: err = %v, want redis.Nil", err)
	}
	if err := store.Remember(ctx, sess); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	got, err := store.Live(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Live: %v", err)
	}
	if got.ExamineeID != sess.ExamineeID || !got.DeadlineAt.Equal(sess.DeadlineAt) {
		t.Errorf("live = %+v", got)
	}

	store.Drop(ctx, sess.ID)
	if _, err := store.Live(ctx, sess.ID); !errors.Is(err, redis.Nil) {
		t.Errorf("Live after Drop: err = %v", err)
	}
	queued, _ := mr.List(config.WorkerKey.FinalizedSessionQueue)
	if len(queued) != 1 || queued[0] != sess.ID.String() {
		t.Errorf("finalized queue = %v", queued)
	}
}
