package repository

import (
	"context"

	"github.com/examhall/examhall-backend/internal/config"
	"github.com/examhall/examhall-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// MonitorRepository provides data access for live exam monitoring.
// It combines PostgreSQL (session rows) and Redis (live answer hashes).
type MonitorRepository struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool, rdb *redis.Client) *MonitorRepository {
	return &MonitorRepository{pool: pool, rdb: rdb}
}

// InProgressSessions returns the open sessions of an exam, oldest first.
func (r *MonitorRepository) InProgressSessions(ctx context.Context, examID uuid.UUID) ([]model.SessionProgress, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.examinee_id, u.name, s.started_at, s.deadline_at
		 FROM exam_sessions s
		 JOIN users u ON u.id = s.examinee_id
		 WHERE s.exam_id = $1 AND s.status = 'IN_PROGRESS'
		 ORDER BY s.started_at`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.SessionProgress
	for rows.Next() {
		var p model.SessionProgress
		if err := rows.Scan(&p.SessionID, &p.ExamineeID, &p.ExamineeName, &p.StartedAt, &p.DeadlineAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, p)
	}
	return sessions, rows.Err()
}

// StoredAnsweredCounts returns the number of answers already mirrored to
// PostgreSQL for every open session of the exam.
func (r *MonitorRepository) StoredAnsweredCounts(ctx context.Context, examID uuid.UUID) (map[uuid.UUID]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.session_id, COUNT(*)
		 FROM session_answers a
		 JOIN exam_sessions s ON s.id = a.session_id
		 WHERE s.exam_id = $1 AND s.status = 'IN_PROGRESS' AND a.selected_option IS NOT NULL
		 GROUP BY a.session_id`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int64)
	for rows.Next() {
		var id uuid.UUID
		var n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// LiveAnsweredCounts reads the size of each session's answer hash in one
// pipeline. Sessions without a cached hash are left out.
func (r *MonitorRepository) LiveAnsweredCounts(ctx context.Context, sessionIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	counts := make(map[uuid.UUID]int64, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return counts, nil
	}

	cmds := make(map[uuid.UUID]*redis.IntCmd, len(sessionIDs))
	_, err := r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range sessionIDs {
			cmds[id] = pipe.HLen(ctx, config.CacheKey.SessionAnswersKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for id, cmd := range cmds {
		if n := cmd.Val(); n > 0 {
			counts[id] = n
		}
	}
	return counts, nil
}
