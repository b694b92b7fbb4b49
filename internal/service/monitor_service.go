package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/examhall/examhall-backend/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// MonitorSource reads the open sessions of an exam and their answer counts.
type MonitorSource interface {
	InProgressSessions(ctx context.Context, examID uuid.UUID) ([]model.SessionProgress, error)
	StoredAnsweredCounts(ctx context.Context, examID uuid.UUID) (map[uuid.UUID]int64, error)
	LiveAnsweredCounts(ctx context.Context, sessionIDs []uuid.UUID) (map[uuid.UUID]int64, error)
}

// MonitorService orchestrates live exam monitoring business logic.
type MonitorService struct {
	source MonitorSource
	cache  *ExamCache
	log    zerolog.Logger
	now    func() time.Time
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(source MonitorSource, cache *ExamCache, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		source: source,
		cache:  cache,
		log:    log.With().Str("component", "monitor_service").Logger(),
		now:    time.Now,
	}
}

// Progress returns every open session of an exam with its answered count.
// Only the author may watch an exam unless readAll is set.
//
// Live counts come from Redis and win over the mirrored counts, which lag
// behind by up to one autosave batch. Live counts are best-effort.
func (s *MonitorService) Progress(ctx context.Context, examID, examinerID uuid.UUID, readAll bool) (*model.ExamMonitor, error) {
	exam, err := s.cache.ByID(ctx, examID)
	if err != nil {
		return nil, notFound(err)
	}
	if exam.AuthorID != examinerID && !readAll {
		return nil, ErrNotExamAuthor
	}

	sessions, err := s.source.InProgressSessions(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list open sessions: %w", err)
	}

	ids := make([]uuid.UUID, len(sessions))
	for i, p := range sessions {
		ids[i] = p.SessionID
	}

	var stored, live map[uuid.UUID]int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stored, err = s.source.StoredAnsweredCounts(gctx, examID)
		return err
	})
	g.Go(func() error {
		var err error
		if live, err = s.source.LiveAnsweredCounts(gctx, ids); err != nil {
			s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Live answer counts unavailable")
			live = nil
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("count answers: %w", err)
	}

	now := s.now()
	for i := range sessions {
		p := &sessions[i]
		if n, ok := live[p.SessionID]; ok {
			p.Answered = n
		} else {
			p.Answered = stored[p.SessionID]
		}
		if remaining := p.DeadlineAt.Sub(now); remaining > 0 {
			p.RemainingSeconds = int(math.Ceil(remaining.Seconds()))
		}
	}

	if sessions == nil {
		sessions = []model.SessionProgress{}
	}
	return &model.ExamMonitor{
		ExamID:         exam.ID,
		TotalQuestions: len(exam.Questions),
		InProgress:     len(sessions),
		Sessions:       sessions,
	}, nil
}
