package worker

import (
	"context"
	"errors"
	"time"

	"github.com/examhall/examhall-backend/internal/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	CleanupBatchSize    = 50
	CleanupBatchTimeout = 2 * time.Second
)

// CleanupWorker consumes finalized_sessions_queue and deletes the live
// answer hashes of graded sessions.
type CleanupWorker struct {
	rdb *redis.Client
	log zerolog.Logger

	batchSize    int
	batchTimeout time.Duration
}

// NewCleanupWorker creates a new CleanupWorker.
func NewCleanupWorker(rdb *redis.Client, log zerolog.Logger) *CleanupWorker {
	return &CleanupWorker{
		rdb:          rdb,
		log:          log.With().Str("component", "cleanup_worker").Logger(),
		batchSize:    CleanupBatchSize,
		batchTimeout: CleanupBatchTimeout,
	}
}

// Start runs until ctx is cancelled, then flushes the pending batch.
func (w *CleanupWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	batch := make([]uuid.UUID, 0, w.batchSize)
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
			w.flush(context.Background(), batch)
			w.log.Info().Msg("Worker stopped")
			return

		default:
			item, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.FinalizedSessionQueue).Result()
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

			id, err := uuid.Parse(item[1])
			if err != nil {
				w.log.Error().Err(err).Str("payload", item[1]).Msg("Invalid session id")
				continue
			}
			batch = append(batch, id)
		}
	}
}

// flush deletes the answer hashes of a batch in one round trip.
func (w *CleanupWorker) flush(ctx context.Context, batch []uuid.UUID) {
	if len(batch) == 0 {
		return
	}

	pipe := w.rdb.Pipeline()
	for _, id := range batch {
		pipe.Del(ctx, config.CacheKey.SessionAnswersKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		// The keys still expire on their own.
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Failed to clear live answers")
		return
	}
	w.log.Debug().Int("count", len(batch)).Msg("Cleared live answers")
}
