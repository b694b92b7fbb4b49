package repository

import (
	"context"
	"errors"
	"time"

	"github.com/examhall/examhall-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ExamSessionRepository handles live, server-timed exam sessions and the
// answers mirrored from Redis.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

const sessionColumns = `id, exam_id, examinee_id, started_at, deadline_at, status, attempt_id`

func scanSession(row pgx.Row) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	if err := row.Scan(&s.ID, &s.ExamID, &s.ExamineeID, &s.StartedAt, &s.DeadlineAt, &s.Status, &s.AttemptID); err != nil {
		return nil, err
	}
	return s, nil
}

// GetByID retrieves a session by id.
func (r *ExamSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id))
}

// GetActive retrieves the examinee's in-progress session for an exam.
func (r *ExamSessionRepository) GetActive(ctx context.Context, examID, examineeID uuid.UUID) (*model.ExamSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE exam_id = $1 AND examinee_id = $2 AND status = $3`,
		examID, examineeID, model.SessionStatusInProgress))
}

// Start opens a session, or returns the one already in progress.
// The second return value is true when a new session was created.
func (r *ExamSessionRepository) Start(ctx context.Context, examID, examineeID uuid.UUID, duration time.Duration) (*model.ExamSession, bool, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`INSERT INTO exam_sessions (exam_id, examinee_id, started_at, deadline_at, status)
		 VALUES ($1, $2, NOW(), NOW() + make_interval(secs => $3), $4)
		 ON CONFLICT (exam_id, examinee_id) WHERE status = 'IN_PROGRESS' DO NOTHING
		 RETURNING `+sessionColumns,
		examID, examineeID, duration.Seconds(), model.SessionStatusInProgress))
	if err == nil {
		return s, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}
	s, err = r.GetActive(ctx, examID, examineeID)
	return s, false, err
}

// ListOverdue returns in-progress sessions whose deadline passed before cutoff.
func (r *ExamSessionRepository) ListOverdue(ctx context.Context, cutoff time.Time, limit int) ([]model.ExamSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE status = $1 AND deadline_at < $2
		 ORDER BY deadline_at
		 LIMIT $3`, model.SessionStatusInProgress, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.ExamSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// Abandon closes a session that can no longer be graded, e.g. because its
// exam was deleted.
func (r *ExamSessionRepository) Abandon(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions SET status = $1, finished_at = NOW()
		 WHERE id = $2 AND status = $3`,
		model.SessionStatusCompleted, id, model.SessionStatusInProgress)
	return err
}

// ListAnswers returns the answers persisted for a session. Used to rebuild
// live state when the Redis hash is gone.
func (r *ExamSessionRepository) ListAnswers(ctx context.Context, sessionID uuid.UUID) (model.AnswerState, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, selected_option FROM session_answers
		 WHERE session_id = $1 AND selected_option IS NOT NULL`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	answers := model.AnswerState{}
	for rows.Next() {
		var (
			qid    uuid.UUID
			letter string
		)
		if err := rows.Scan(&qid, &letter); err != nil {
			return nil, err
		}
		answers.Select(qid, model.OptionLetter(letter))
	}
	return answers, rows.Err()
}

// SaveAnswers upserts a batch of live answer changes. An empty option stores
// NULL. Older changes never overwrite newer ones. The batch must not repeat a
// (session, question) pair.
func (r *ExamSessionRepository) SaveAnswers(ctx context.Context, answers []model.PersistedAnswer) error {
	n := len(answers)
	if n == 0 {
		return nil
	}

	sessionIDs := make([]uuid.UUID, n)
	questionIDs := make([]uuid.UUID, n)
	options := make([]*string, n)
	ats := make([]time.Time, n)
	for i, a := range answers {
		sessionIDs[i] = a.SessionID
		questionIDs[i] = a.QuestionID
		if a.Option != "" {
			opt := string(a.Option)
			options[i] = &opt
		}
		ats[i] = a.At
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO session_answers (session_id, question_id, selected_option, updated_at)
		 SELECT * FROM UNNEST($1::uuid[], $2::uuid[], $3::text[], $4::timestamptz[])
		 ON CONFLICT (session_id, question_id) DO UPDATE
		 SET selected_option = EXCLUDED.selected_option, updated_at = EXCLUDED.updated_at
		 WHERE session_answers.updated_at <= EXCLUDED.updated_at`,
		sessionIDs, questionIDs, options, ats,
	)
	return err
}

// SaveAnswer is SaveAnswers for a single change.
func (r *ExamSessionRepository) SaveAnswer(ctx context.Context, a model.PersistedAnswer) error {
	var option *string
	if a.Option != "" {
		opt := string(a.Option)
		option = &opt
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO session_answers (session_id, question_id, selected_option, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session_id, question_id) DO UPDATE
		 SET selected_option = EXCLUDED.selected_option, updated_at = EXCLUDED.updated_at
		 WHERE session_answers.updated_at <= EXCLUDED.updated_at`,
		a.SessionID, a.QuestionID, option, a.At,
	)
	return err
}
