package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/examhall/examhall-backend/internal/config"
	"github.com/examhall/examhall-backend/internal/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ExamLoader fetches exams from the system of record.
type ExamLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	GetIDByCode(ctx context.Context, code string) (uuid.UUID, error)
}

// ExamCache keeps full exam definitions, answer keys included, in Redis and
// falls back to the loader on a miss. Concurrent misses for the same key
// share one load.
//
//	GET exam:code:{code}        -> exam id
//	GET exam:{id}:definition    -> exam JSON
type ExamCache struct {
	rdb    *redis.Client
	loader ExamLoader
	ttl    time.Duration
	sf     singleflight.Group
	log    zerolog.Logger
}

// NewExamCache creates an ExamCache. A ttl of zero keeps entries until invalidated.
func NewExamCache(rdb *redis.Client, loader ExamLoader, ttl time.Duration, log zerolog.Logger) *ExamCache {
	return &ExamCache{
		rdb:    rdb,
		loader: loader,
		ttl:    ttl,
		log:    log.With().Str("component", "exam_cache").Logger(),
	}
}

// ByID returns the exam with its questions.
func (c *ExamCache) ByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	key := config.CacheKey.ExamDefinitionKey(id)
	if exam, ok := c.cached(ctx, key); ok {
		return exam, nil
	}

	v, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Another caller may have filled the cache meanwhile.
		if exam, ok := c.cached(ctx, key); ok {
			return exam, nil
		}

		exam, err := c.loader.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		raw, err := json.Marshal(exam)
		if err != nil {
			return nil, fmt.Errorf("marshal exam: %w", err)
		}
		if err := c.rdb.Set(ctx, key, raw, c.ttlWithJitter()).Err(); err != nil {
			c.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to cache exam")
		}
		return exam, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneExam(v.(*model.Exam)), nil
}

// ByCode resolves a join code and returns the exam.
func (c *ExamCache) ByCode(ctx context.Context, code string) (*model.Exam, error) {
	key := config.CacheKey.ExamCodeKey(code)

	raw, err := c.rdb.Get(ctx, key).Result()
	if err == nil {
		if id, perr := uuid.Parse(raw); perr == nil {
			return c.ByID(ctx, id)
		}
	} else if !errors.Is(err, redis.Nil) {
		c.log.Warn().Err(err).Msg("Exam code lookup failed, using database")
	}

	v, err, _ := c.sf.Do(key, func() (interface{}, error) {
		id, err := c.loader.GetIDByCode(ctx, code)
		if err != nil {
			return uuid.Nil, err
		}
		if err := c.rdb.Set(ctx, key, id.String(), c.ttlWithJitter()).Err(); err != nil {
			c.log.Warn().Err(err).Str("exam_code", code).Msg("Failed to cache exam code")
		}
		return id, nil
	})
	if err != nil {
		return nil, err
	}
	return c.ByID(ctx, v.(uuid.UUID))
}

// Invalidate drops the cached definition and code mapping.
func (c *ExamCache) Invalidate(ctx context.Context, id uuid.UUID, code string) error {
	keys := []string{config.CacheKey.ExamDefinitionKey(id)}
	if code != "" {
		keys = append(keys, config.CacheKey.ExamCodeKey(code))
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate exam cache: %w", err)
	}
	return nil
}

func (c *ExamCache) cached(ctx context.Context, key string) (*model.Exam, bool) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Str("key", key).Msg("Exam cache read failed")
		}
		return nil, false
	}
	var exam model.Exam
	if err := json.Unmarshal(raw, &exam); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Corrupt exam cache entry")
		return nil, false
	}
	return &exam, true
}

func (c *ExamCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	return c.ttl + time.Duration(rand.Int64N(int64(c.ttl)/10+1))
}

// cloneExam copies the question slice so callers sharing a singleflight
// result cannot affect each other.
func cloneExam(e *model.Exam) *model.Exam {
	out := *e
	out.Questions = append([]model.Question(nil), e.Questions...)
	return &out
}
