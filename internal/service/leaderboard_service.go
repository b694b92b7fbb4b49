package service

import (
	"context"
	"fmt"

	"github.com/examhall/examhall-backend/internal/config"
	"github.com/examhall/examhall-backend/internal/leaderboard"
	"github.com/examhall/examhall-backend/internal/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// LeaderboardSource lists the attempts on an exam.
type LeaderboardSource interface {
	LeaderboardEntries(ctx context.Context, examID uuid.UUID) ([]model.LeaderboardEntry, error)
}

// LeaderboardService ranks attempts on every request. Boards are small and
// change on every submission, so they are never cached.
type LeaderboardService struct {
	source LeaderboardSource
	cache  *ExamCache
	rdb    *redis.Client
	log    zerolog.Logger
}

// NewLeaderboardService creates a new LeaderboardService.
func NewLeaderboardService(source LeaderboardSource, cache *ExamCache, rdb *redis.Client, log zerolog.Logger) *LeaderboardService {
	return &LeaderboardService{
		source: source,
		cache:  cache,
		rdb:    rdb,
		log:    log.With().Str("component", "leaderboard_service").Logger(),
	}
}

// Board returns the ranked leaderboard of an exam with currentUser's standing.
func (s *LeaderboardService) Board(ctx context.Context, examID, currentUser uuid.UUID) (*leaderboard.Board, error) {
	if _, err := s.cache.ByID(ctx, examID); err != nil {
		return nil, notFound(err)
	}
	return s.rank(ctx, examID, currentUser)
}

// ExaminerBoard is Board for the exam's author. readAll lets admins view any exam.
func (s *LeaderboardService) ExaminerBoard(ctx context.Context, examID, examinerID uuid.UUID, readAll bool) (*leaderboard.Board, error) {
	exam, err := s.cache.ByID(ctx, examID)
	if err != nil {
		return nil, notFound(err)
	}
	if exam.AuthorID != examinerID && !readAll {
		return nil, ErrNotExamAuthor
	}
	return s.rank(ctx, examID, examinerID)
}

func (s *LeaderboardService) rank(ctx context.Context, examID, currentUser uuid.UUID) (*leaderboard.Board, error) {
	entries, err := s.source.LeaderboardEntries(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list leaderboard entries: %w", err)
	}
	board := leaderboard.Rank(entries, currentUser)
	return &board, nil
}

// Subscribe returns a subscription to submission events on an exam. The
// caller must close it.
func (s *LeaderboardService) Subscribe(ctx context.Context, examID uuid.UUID) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.ExamLeaderboardChannel(examID))
}
