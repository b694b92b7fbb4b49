package service

import (
	"context"
	"fmt"

	"github.com/examhall/examhall-backend/internal/repository"
	"golang.org/x/sync/errgroup"
)

const dashboardListSize = 5

// DashboardSource reads the aggregates shown on the admin dashboard.
type DashboardSource interface {
	SummaryCounts(ctx context.Context) (repository.DashboardCounts, error)
	UpcomingExams(ctx context.Context, limit int) ([]repository.DashboardUpcomingExam, error)
	RecentExamResults(ctx context.Context, limit int) ([]repository.DashboardRecentExamResult, error)
}

// DashboardData consolidates all metrics for the admin dashboard.
type DashboardData struct {
	repository.DashboardCounts
	UpcomingExams        []repository.DashboardUpcomingExam     `json:"upcoming_exams"`
	RecentCompletedExams []repository.DashboardRecentExamResult `json:"recent_completed_exams"`
}

// DashboardService handles admin dashboard business logic.
type DashboardService struct {
	repo DashboardSource
}

// NewDashboardService creates a new DashboardService.
func NewDashboardService(repo DashboardSource) *DashboardService {
	return &DashboardService{repo: repo}
}

// GetDashboardData fetches all dashboard sections concurrently.
func (s *DashboardService) GetDashboardData(ctx context.Context) (*DashboardData, error) {
	data := &DashboardData{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		counts, err := s.repo.SummaryCounts(gctx)
		if err != nil {
			return fmt.Errorf("summary counts: %w", err)
		}
		data.DashboardCounts = counts
		return nil
	})
	g.Go(func() error {
		upcoming, err := s.repo.UpcomingExams(gctx, dashboardListSize)
		if err != nil {
			return fmt.Errorf("upcoming exams: %w", err)
		}
		data.UpcomingExams = upcoming
		return nil
	})
	g.Go(func() error {
		recent, err := s.repo.RecentExamResults(gctx, dashboardListSize)
		if err != nil {
			return fmt.Errorf("recent results: %w", err)
		}
		data.RecentCompletedExams = recent
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if data.UpcomingExams == nil {
		data.UpcomingExams = []repository.DashboardUpcomingExam{}
	}
	if data.RecentCompletedExams == nil {
		data.RecentCompletedExams = []repository.DashboardRecentExamResult{}
	}
	return data, nil
}
