package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/examhall/examhall-backend/internal/config"
	"github.com/examhall/examhall-backend/internal/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// liveKeyGrace keeps live keys around a little past the deadline so the
// expiry worker can still read the answers.
const liveKeyGrace = time.Hour

// AnswerStore keeps the answers of live sessions in Redis and queues every
// change for the autosave worker.
type AnswerStore struct {
	rdb *redis.Client
	log zerolog.Logger
	now func() time.Time
}

// NewAnswerStore creates a new AnswerStore.
func NewAnswerStore(rdb *redis.Client, log zerolog.Logger) *AnswerStore {
	return &AnswerStore{
		rdb: rdb,
		log: log.With().Str("component", "answer_store").Logger(),
		now: time.Now,
	}
}

func (s *AnswerStore) ttl(sess *model.ExamSession) time.Duration {
	return sess.Remaining(s.now()) + liveKeyGrace
}

// Remember caches an in-progress session so answer writes skip the database.
func (s *AnswerStore) Remember(ctx context.Context, sess *model.ExamSession) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, config.CacheKey.LiveSessionKey(sess.ID), raw, s.ttl(sess)).Err()
}

// Live returns the cached session, or redis.Nil once it has been dropped or
// evicted.
func (s *AnswerStore) Live(ctx context.Context, sessionID uuid.UUID) (*model.ExamSession, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.LiveSessionKey(sessionID)).Bytes()
	if err != nil {
		return nil, err
	}
	var sess model.ExamSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode live session: %w", err)
	}
	return &sess, nil
}

// Select records letter as the answer to questionID.
func (s *AnswerStore) Select(ctx context.Context, sess *model.ExamSession, questionID uuid.UUID, letter model.OptionLetter) error {
	key := config.CacheKey.SessionAnswersKey(sess.ID)
	return s.write(ctx, sess, questionID, letter, func(pipe redis.Pipeliner) {
		pipe.HSet(ctx, key, questionID.String(), string(letter))
	})
}

// Clear removes the answer to questionID.
func (s *AnswerStore) Clear(ctx context.Context, sess *model.ExamSession, questionID uuid.UUID) error {
	key := config.CacheKey.SessionAnswersKey(sess.ID)
	return s.write(ctx, sess, questionID, "", func(pipe redis.Pipeliner) {
		pipe.HDel(ctx, key, questionID.String())
	})
}

func (s *AnswerStore) write(ctx context.Context, sess *model.ExamSession, questionID uuid.UUID, letter model.OptionLetter, change func(redis.Pipeliner)) error {
	job, err := json.Marshal(model.PersistedAnswer{
		SessionID:  sess.ID,
		QuestionID: questionID,
		Option:     letter,
		At:         s.now().UTC(),
	})
	if err != nil {
		return err
	}

	key := config.CacheKey.SessionAnswersKey(sess.ID)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		change(pipe)
		pipe.Expire(ctx, key, s.ttl(sess))
		pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, job)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store answer: %w", err)
	}
	return nil
}

// Load returns the live answers of a session. An empty state means nothing
// is cached, not necessarily that nothing was answered.
func (s *AnswerStore) Load(ctx context.Context, sessionID uuid.UUID) (model.AnswerState, error) {
	raw, err := s.rdb.HGetAll(ctx, config.CacheKey.SessionAnswersKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	return model.AnswerStateFromStrings(raw), nil
}

// Drop forgets a finalized session. The live entry goes immediately so later
// answer writes hit the database and see the completed status; the answer
// hash is removed by the cleanup worker.
func (s *AnswerStore) Drop(ctx context.Context, sessionID uuid.UUID) {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, config.CacheKey.LiveSessionKey(sessionID))
		pipe.RPush(ctx, config.WorkerKey.FinalizedSessionQueue, sessionID.String())
		return nil
	})
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Failed to drop live session")
	}
}
