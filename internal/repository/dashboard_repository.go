package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DashboardRepository handles admin dashboard data access.
type DashboardRepository struct {
	pool *pgxpool.Pool
}

// NewDashboardRepository creates a new DashboardRepository.
func NewDashboardRepository(pool *pgxpool.Pool) *DashboardRepository {
	return &DashboardRepository{pool: pool}
}

// DashboardCounts are the headline numbers of the admin dashboard.
type DashboardCounts struct {
	Users        int `json:"total_users"`
	Exams        int `json:"total_exams"`
	Questions    int `json:"total_questions"`
	Attempts     int `json:"total_attempts"`
	OpenSessions int `json:"open_sessions"`
}

// SummaryCounts retrieves the high-level metrics for the dashboard.
func (r *DashboardRepository) SummaryCounts(ctx context.Context) (DashboardCounts, error) {
	var c DashboardCounts
	err := r.pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM exams),
			(SELECT COUNT(*) FROM questions),
			(SELECT COUNT(*) FROM attempts),
			(SELECT COUNT(*) FROM exam_sessions WHERE status = 'IN_PROGRESS')`,
	).Scan(&c.Users, &c.Exams, &c.Questions, &c.Attempts, &c.OpenSessions)
	return c, err
}

// DashboardUpcomingExam is an exam whose availability window has not opened yet.
type DashboardUpcomingExam struct {
	ID               uuid.UUID `json:"exam_id"`
	ExamName         string    `json:"exam_name"`
	ExamCode         string    `json:"exam_code"`
	StartAt          time.Time `json:"start_datetime"`
	TotalTimeMinutes int       `json:"total_time_minutes"`
}

// UpcomingExams retrieves the next limit exams by opening time.
func (r *DashboardRepository) UpcomingExams(ctx context.Context, limit int) ([]DashboardUpcomingExam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_name, exam_code, start_at, total_time_minutes
		 FROM exams
		 WHERE start_at > NOW()
		 ORDER BY start_at ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	exams := []DashboardUpcomingExam{}
	for rows.Next() {
		var e DashboardUpcomingExam
		if err := rows.Scan(&e.ID, &e.ExamName, &e.ExamCode, &e.StartAt, &e.TotalTimeMinutes); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// DashboardRecentExamResult summarizes the attempts of a recently taken exam.
type DashboardRecentExamResult struct {
	ExamID           uuid.UUID `json:"exam_id"`
	ExamName         string    `json:"exam_name"`
	LastAttemptAt    time.Time `json:"last_attempt_at"`
	ParticipantCount int       `json:"participant_count"`
	AttemptCount     int       `json:"attempt_count"`
	AverageScore     float64   `json:"average_score"`
}

// RecentExamResults retrieves the limit exams with the latest attempts.
// Attempts of deleted exams are left out.
func (r *DashboardRepository) RecentExamResults(ctx context.Context, limit int) ([]DashboardRecentExamResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT
			a.exam_id,
			MAX(a.exam_name),
			MAX(a.created_at) AS last_attempt_at,
			COUNT(DISTINCT a.examinee_id),
			COUNT(*),
			AVG(a.score)
		 FROM attempts a
		 WHERE a.exam_id IS NOT NULL
		 GROUP BY a.exam_id
		 ORDER BY last_attempt_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []DashboardRecentExamResult{}
	for rows.Next() {
		var e DashboardRecentExamResult
		if err := rows.Scan(&e.ExamID, &e.ExamName, &e.LastAttemptAt, &e.ParticipantCount, &e.AttemptCount, &e.AverageScore); err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}
