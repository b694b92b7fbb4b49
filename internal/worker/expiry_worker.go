package worker

import (
	"context"
	"errors"
	"time"

	"github.com/examhall/examhall-backend/internal/model"
	"github.com/examhall/examhall-backend/internal/service"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const expiryBatchSize = 100

// OverdueSessions lists and closes sessions whose deadline has passed.
type OverdueSessions interface {
	ListOverdue(ctx context.Context, cutoff time.Time, limit int) ([]model.ExamSession, error)
	Abandon(ctx context.Context, id uuid.UUID) error
}

// Finalizer grades a live session.
type Finalizer interface {
	FinalizeSession(ctx context.Context, session *model.ExamSession, reason model.SubmitReason) (*model.AttemptDetail, error)
}

// ExpiryWorker auto-submits sessions nobody submitted, e.g. because the
// examinee closed the socket before time ran out.
type ExpiryWorker struct {
	sessions  OverdueSessions
	finalizer Finalizer
	interval  time.Duration
	// grace lets a connected socket's own timer win first.
	grace time.Duration
	now   func() time.Time
	log   zerolog.Logger
}

// NewExpiryWorker creates a new ExpiryWorker polling every interval.
func NewExpiryWorker(sessions OverdueSessions, finalizer Finalizer, interval time.Duration, log zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &ExpiryWorker{
		sessions:  sessions,
		finalizer: finalizer,
		interval:  interval,
		grace:     5 * time.Second,
		now:       time.Now,
		log:       log.With().Str("component", "expiry_worker").Logger(),
	}
}

// Start polls until ctx is cancelled.
func (w *ExpiryWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("Worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep finalizes every overdue session and returns how many it graded.
func (w *ExpiryWorker) Sweep(ctx context.Context) int {
	graded := 0
	for ctx.Err() == nil {
		overdue, err := w.sessions.ListOverdue(ctx, w.now().Add(-w.grace), expiryBatchSize)
		if err != nil {
			if ctx.Err() == nil {
				w.log.Error().Err(err).Msg("Failed to list overdue sessions")
			}
			return graded
		}

		progressed := 0
		for i := range overdue {
			ok, closed := w.expire(ctx, &overdue[i])
			if ok {
				graded++
			}
			if closed {
				progressed++
			}
		}
		// A short page means the backlog is empty; a page without progress
		// would repeat forever.
		if len(overdue) < expiryBatchSize || progressed == 0 {
			return graded
		}
	}
	return graded
}

// expire grades one session. closed reports whether the session left the
// in-progress state, whoever closed it.
func (w *ExpiryWorker) expire(ctx context.Context, sess *model.ExamSession) (graded, closed bool) {
	log := w.log.With().Str("session_id", sess.ID.String()).Str("exam_id", sess.ExamID.String()).Logger()

	detail, err := w.finalizer.FinalizeSession(ctx, sess, model.SubmitReasonTimeout)
	switch {
	case err == nil:
		log.Info().Float64("score", detail.Score).Msg("Overdue session auto-submitted")
		return true, true

	case errors.Is(err, service.ErrAlreadySubmitted):
		return false, true

	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrAttemptLimitReached):
		// The exam is gone or the examinee used up their attempts elsewhere.
		if err := w.sessions.Abandon(ctx, sess.ID); err != nil {
			log.Error().Err(err).Msg("Failed to abandon session")
			return false, false
		}
		log.Warn().Err(err).Msg("Abandoned ungradable session")
		return false, true

	default:
		log.Error().Err(err).Msg("Failed to auto-submit session")
		return false, false
	}
}
