package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/examhall/examhall-backend/internal/config"
	"github.com/examhall/examhall-backend/internal/model"
	"github.com/examhall/examhall-backend/internal/service"
	"github.com/google/uuid"
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

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// ─── Autosave ────────────────────────────────────────────────────────

type fakeSink struct {
	mu        sync.Mutex
	saved     []model.PersistedAnswer
	failBatch bool
	failOne   error
}

func (s *fakeSink) SaveAnswers(_ context.Context, answers []model.PersistedAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failBatch {
		return errors.New("batch failed")
	}
	s.saved = append(s.saved, answers...)
	return nil
}

func (s *fakeSink) SaveAnswer(_ context.Context, a model.PersistedAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOne != nil {
		return s.failOne
	}
	s.saved = append(s.saved, a)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func TestLatestAnswers(t *testing.T) {
	sess, q1, q2 := uuid.New(), uuid.New(), uuid.New()
	t0 := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	got := latestAnswers([]model.PersistedAnswer{
		{SessionID: sess, QuestionID: q1, Option: model.OptionA, At: t0},
		{SessionID: sess, QuestionID: q2, Option: model.OptionB, At: t0},
		{SessionID: sess, QuestionID: q1, Option: "", At: t0.Add(time.Second)},
		{SessionID: sess, QuestionID: q2, Option: model.OptionC, At: t0.Add(-time.Second)},
	})

	if len(got) != 2 {
		t.Fatalf("got %d answers, want 2", len(got))
	}
	if got[0].QuestionID != q1 || got[0].Option != "" {
		t.Errorf("q1 = %+v, want the later clear", got[0])
	}
	if got[1].QuestionID != q2 || got[1].Option != model.OptionB {
		t.Errorf("q2 = %+v, want the newer B", got[1])
	}
}

func pushAnswer(t *testing.T, rdb *redis.Client, a model.PersistedAnswer) {
	t.Helper()
	raw, _ := json.Marshal(a)
	if err := rdb.RPush(context.Background(), config.WorkerKey.PersistAnswersQueue, raw).Err(); err != nil {
		t.Fatalf("RPush: %v", err)
	}
}

func TestAutosaveWorkerPersistsQueuedAnswers(t *testing.T) {
	_, rdb := newRedis(t)
	sink := &fakeSink{}
	w := NewAutosaveWorker(sink, rdb, zerolog.Nop())
	w.batchTimeout = 50 * time.Millisecond

	sess := uuid.New()
	for range 3 {
		pushAnswer(t, rdb, model.PersistedAnswer{SessionID: sess, QuestionID: uuid.New(), Option: model.OptionA, At: time.Now()})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	waitFor(t, func() bool { return sink.count() == 3 })
	cancel()
	<-done
}

func TestAutosaveWorkerDrainsOnShutdown(t *testing.T) {
	_, rdb := newRedis(t)
	sink := &fakeSink{}
	w := NewAutosaveWorker(sink, rdb, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pushAnswer(t, rdb, model.PersistedAnswer{SessionID: uuid.New(), QuestionID: uuid.New(), Option: model.OptionD, At: time.Now()})
	w.Start(ctx)

	if sink.count() != 1 {
		t.Errorf("saved %d answers on shutdown, want 1", sink.count())
	}
	if n, _ := rdb.LLen(context.Background(), config.WorkerKey.PersistAnswersQueue).Result(); n != 0 {
		t.Errorf("queue length = %d, want 0", n)
	}
}

func TestAutosaveWorkerRequeuesFailedRows(t *testing.T) {
	_, rdb := newRedis(t)
	sink := &fakeSink{failBatch: true, failOne: errors.New("db down")}
	w := NewAutosaveWorker(sink, rdb, zerolog.Nop())

	a := model.PersistedAnswer{SessionID: uuid.New(), QuestionID: uuid.New(), Option: model.OptionB, At: time.Now()}
	w.flush(context.Background(), []model.PersistedAnswer{a})

	raw, err := rdb.LPop(context.Background(), config.WorkerKey.PersistAnswersQueue).Result()
	if err != nil {
		t.Fatalf("answer not requeued: %v", err)
	}
	var back model.PersistedAnswer
	if err := json.Unmarshal([]byte(raw), &back); err != nil || back.QuestionID != a.QuestionID {
		t.Errorf("requeued %s, err %v", raw, err)
	}
}

// ─── Cleanup ─────────────────────────────────────────────────────────

func TestCleanupWorkerDeletesAnswerHashes(t *testing.T) {
	mr, rdb := newRedis(t)
	w := NewCleanupWorker(rdb, zerolog.Nop())
	w.batchTimeout = 50 * time.Millisecond

	finished, live := uuid.New(), uuid.New()
	mr.HSet(config.CacheKey.SessionAnswersKey(finished), "q", "A")
	mr.HSet(config.CacheKey.SessionAnswersKey(live), "q", "B")
	if err := rdb.RPush(context.Background(), config.WorkerKey.FinalizedSessionQueue, finished.String(), "not-a-uuid").Err(); err != nil {
		t.Fatalf("RPush: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	waitFor(t, func() bool { return !mr.Exists(config.CacheKey.SessionAnswersKey(finished)) })
	cancel()
	<-done

	if !mr.Exists(config.CacheKey.SessionAnswersKey(live)) {
		t.Error("live session answers deleted")
	}
}

// ─── Expiry ──────────────────────────────────────────────────────────

type fakeSessions struct {
	mu        sync.Mutex
	overdue   []model.ExamSession
	abandoned []uuid.UUID
	cutoff    time.Time
}

func (f *fakeSessions) ListOverdue(_ context.Context, cutoff time.Time, limit int) ([]model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoff = cutoff
	out := f.overdue
	if len(out) > limit {
		out = out[:limit]
	}
	return append([]model.ExamSession(nil), out...), nil
}

func (f *fakeSessions) Abandon(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abandoned = append(f.abandoned, id)
	f.remove(id)
	return nil
}

func (f *fakeSessions) remove(id uuid.UUID) {
	for i, s := range f.overdue {
		if s.ID == id {
			f.overdue = append(f.overdue[:i], f.overdue[i+1:]...)
			return
		}
	}
}

type fakeFinalizer struct {
	sessions *fakeSessions
	results  map[uuid.UUID]error
	reasons  []model.SubmitReason
}

func (f *fakeFinalizer) FinalizeSession(_ context.Context, sess *model.ExamSession, reason model.SubmitReason) (*model.AttemptDetail, error) {
	f.reasons = append(f.reasons, reason)
	if err := f.results[sess.ID]; err != nil {
		if errors.Is(err, service.ErrAlreadySubmitted) {
			f.sessions.mu.Lock()
			f.sessions.remove(sess.ID)
			f.sessions.mu.Unlock()
		}
		return nil, err
	}
	f.sessions.mu.Lock()
	f.sessions.remove(sess.ID)
	f.sessions.mu.Unlock()
	return &model.AttemptDetail{Attempt: model.Attempt{ExamID: sess.ExamID, Score: 1}}, nil
}

func TestExpiryWorkerSweep(t *testing.T) {
	graded, raced, deleted, broken := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	sessions := &fakeSessions{overdue: []model.ExamSession{
		{ID: graded}, {ID: raced}, {ID: deleted}, {ID: broken},
	}}
	finalizer := &fakeFinalizer{sessions: sessions, results: map[uuid.UUID]error{
		raced:   service.ErrAlreadySubmitted,
		deleted: service.ErrNotFound,
		broken:  errors.New("redis down"),
	}}

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	w := NewExpiryWorker(sessions, finalizer, time.Second, zerolog.Nop())
	w.now = func() time.Time { return now }

	if n := w.Sweep(context.Background()); n != 1 {
		t.Errorf("graded %d sessions, want 1", n)
	}
	if len(sessions.abandoned) != 1 || sessions.abandoned[0] != deleted {
		t.Errorf("abandoned = %v, want [%s]", sessions.abandoned, deleted)
	}
	if len(sessions.overdue) != 1 || sessions.overdue[0].ID != broken {
		t.Errorf("left overdue = %v, want only the failing session", sessions.overdue)
	}
	if !sessions.cutoff.Equal(now.Add(-w.grace)) {
		t.Errorf("cutoff = %v, want %v", sessions.cutoff, now.Add(-w.grace))
	}
	for _, r := range finalizer.reasons {
		if r != model.SubmitReasonTimeout {
			t.Errorf("reason = %q, want timeout", r)
		}
	}
}

func TestExpiryWorkerSweepWorksThroughBacklog(t *testing.T) {
	sessions := &fakeSessions{}
	for range expiryBatchSize + 5 {
		sessions.overdue = append(sessions.overdue, model.ExamSession{ID: uuid.New()})
	}
	finalizer := &fakeFinalizer{sessions: sessions}
	w := NewExpiryWorker(sessions, finalizer, time.Second, zerolog.Nop())

	if n := w.Sweep(context.Background()); n != expiryBatchSize+5 {
		t.Errorf("graded %d, want %d", n, expiryBatchSize+5)
	}
}
