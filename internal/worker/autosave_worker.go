package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/examhall/examhall-backend/internal/config"
	"github.com/examhall/examhall-backend/internal/model"
	"github.com/examhall/examhall-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	AnswerBatchSize    = 100
	AnswerBatchTimeout = 2 * time.Second
	PollTimeout        = time.Second // BLPOP timeouts below 1s are rounded up by Redis
)

// AnswerSink persists live answer changes.
type AnswerSink interface {
	SaveAnswers(ctx context.Context, answers []model.PersistedAnswer) error
	SaveAnswer(ctx context.Context, a model.PersistedAnswer) error
}

// AutosaveWorker consumes persist_answers_queue and mirrors live answers to
// PostgreSQL in batches.
type AutosaveWorker struct {
	sink AnswerSink
	rdb  *redis.Client
	log  zerolog.Logger

	batchSize    int
	batchTimeout time.Duration
}

// NewAutosaveWorker creates a new AutosaveWorker.
func NewAutosaveWorker(sink AnswerSink, rdb *redis.Client, log zerolog.Logger) *AutosaveWorker {
	return &AutosaveWorker{
		sink:         sink,
		rdb:          rdb,
		log:          log.With().Str("component", "autosave_worker").Logger(),
		batchSize:    AnswerBatchSize,
		batchTimeout: AnswerBatchTimeout,
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

// Start runs until ctx is cancelled, then flushes what it holds and drains
// the queue.
func (w *AutosaveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	batch := make([]model.PersistedAnswer, 0, w.batchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= w.batchSize || time.Since(lastFlush) >= w.batchTimeout) {
			w.flush(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.flush(context.Background(), batch)
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return

		default:
			item, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistAnswersQueue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
					time.Sleep(PollTimeout)
				}
				continue
			}
			if len(item) < 2 {
				continue
			}

			var a model.PersistedAnswer
			if err := json.Unmarshal([]byte(item[1]), &a); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}
			batch = append(batch, a)
		}
	}
}

// ----------------------------------------------------------------
// Batch upsert with per-row fallback
// ----------------------------------------------------------------

func (w *AutosaveWorker) flush(ctx context.Context, batch []model.PersistedAnswer) {
	if len(batch) == 0 {
		return
	}
	latest := latestAnswers(batch)

	err := w.sink.SaveAnswers(ctx, latest)
	if err == nil {
		w.log.Debug().Int("count", len(latest)).Msg("Answers persisted")
		return
	}
	w.log.Warn().Err(err).Int("count", len(latest)).Msg("Batch upsert failed, using fallback")

	for _, a := range latest {
		err := w.sink.SaveAnswer(ctx, a)
		switch {
		case err == nil:
		case repository.IsForeignKeyViolation(err):
			// The session is gone with its exam.
			w.log.Warn().Str("session_id", a.SessionID.String()).Msg("Dropping answer for deleted session")
		default:
			w.log.Error().Err(err).Str("session_id", a.SessionID.String()).Msg("Persist failed, requeueing")
			w.requeue(ctx, a)
		}
	}
}

func (w *AutosaveWorker) requeue(ctx context.Context, a model.PersistedAnswer) {
	raw, err := json.Marshal(a)
	if err != nil {
		return
	}
	if err := w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, raw).Err(); err != nil {
		w.log.Error().Err(err).Str("session_id", a.SessionID.String()).Msg("Requeue failed, answer lost from mirror")
	}
}

// drain persists everything left in the queue before shutdown.
func (w *AutosaveWorker) drain(ctx context.Context) {
	var rest []model.PersistedAnswer
	for {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.PersistAnswersQueue).Result()
		if err != nil {
			break
		}
		var a model.PersistedAnswer
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}
		rest = append(rest, a)
	}
	if len(rest) == 0 {
		return
	}

	if err := w.sink.SaveAnswers(ctx, latestAnswers(rest)); err != nil {
		w.log.Error().Err(err).Int("count", len(rest)).Msg("Drain persist error, requeueing")
		for _, a := range rest {
			w.requeue(ctx, a)
		}
		return
	}
	w.log.Info().Int("count", len(rest)).Msg("Drained remaining items")
}

type answerKey struct {
	session  uuid.UUID
	question uuid.UUID
}

// latestAnswers keeps the newest change per (session, question). Ties go to
// the later queue position. Order of first appearance is preserved.
func latestAnswers(batch []model.PersistedAnswer) []model.PersistedAnswer {
	index := make(map[answerKey]int, len(batch))
	out := make([]model.PersistedAnswer, 0, len(batch))
	for _, a := range batch {
		k := answerKey{a.SessionID, a.QuestionID}
		if i, ok := index[k]; ok {
			if !a.At.Before(out[i].At) {
				out[i] = a
			}
			continue
		}
		index[k] = len(out)
		out = append(out, a)
	}
	return out
}
