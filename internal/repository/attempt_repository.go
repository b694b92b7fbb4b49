package repository

import (
	"context"
	"fmt"

	"github.com/examhall/examhall-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AttemptRepository handles graded attempts and their question snapshots.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// CreateParams controls the guards applied while storing an attempt.
type CreateParams struct {
	// Limit is the maximum number of attempts per examinee; 0 means unlimited.
	Limit int
	// SessionID, when set, is the live session being finalized. The session
	// is claimed in the same transaction so only one submit path wins.
	SessionID *uuid.UUID
}

const attemptColumns = `a.id, COALESCE(a.exam_id, '00000000-0000-0000-0000-000000000000'::uuid), a.examinee_id,
	a.score, a.total_questions, a.correct_answers, a.wrong_answers, a.unanswered_questions,
	a.percentage, a.time_taken_seconds, a.submit_reason, a.created_at,
	a.exam_name, a.subject, a.chapter, a.class_name, a.total_marks, a.total_time_minutes,
	a.negative_marks_value, a.examiner_name`

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := row.Scan(&a.ID, &a.ExamID, &a.ExamineeID,
		&a.Score, &a.TotalQuestions, &a.CorrectAnswers, &a.WrongAnswers, &a.UnansweredQuestions,
		&a.Percentage, &a.TimeTakenSeconds, &a.SubmitReason, &a.CreatedAt,
		&a.ExamName, &a.Subject, &a.Chapter, &a.ClassName, &a.TotalMarks, &a.TotalTimeMinutes,
		&a.NegativeMarksValue, &a.ExaminerName)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Create stores an attempt and its snapshot in one transaction.
//
// Attempts by the same examinee on the same exam are serialized with an
// advisory lock so the limit check cannot be raced. ErrAttemptLimit and
// ErrSessionClaimed are returned without writing anything.
func (r *AttemptRepository) Create(ctx context.Context, d *model.AttemptDetail, p CreateParams) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`SELECT pg_advisory_xact_lock(hashtextextended($1::uuid::text || ':' || $2::uuid::text, 0))`,
			d.ExamID, d.ExamineeID); err != nil {
			return fmt.Errorf("lock examinee: %w", err)
		}

		if p.SessionID != nil {
			tag, err := tx.Exec(ctx,
				`UPDATE exam_sessions SET status = $1, finished_at = NOW()
				 WHERE id = $2 AND status = $3`,
				model.SessionStatusCompleted, *p.SessionID, model.SessionStatusInProgress)
			if err != nil {
				return fmt.Errorf("claim session: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return ErrSessionClaimed
			}
		}

		if p.Limit > 0 {
			var count int
			if err := tx.QueryRow(ctx,
				`SELECT COUNT(*) FROM attempts WHERE exam_id = $1 AND examinee_id = $2`,
				d.ExamID, d.ExamineeID).Scan(&count); err != nil {
				return fmt.Errorf("count attempts: %w", err)
			}
			if count >= p.Limit {
				return ErrAttemptLimit
			}
		}

		err := tx.QueryRow(ctx,
			`INSERT INTO attempts (exam_id, examinee_id, score, total_questions, correct_answers,
			                       wrong_answers, unanswered_questions, percentage, time_taken_seconds,
			                       submit_reason, exam_name, subject, chapter, class_name, total_marks,
			                       total_time_minutes, negative_marks_value, examiner_name)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
			 RETURNING id, created_at`,
			d.ExamID, d.ExamineeID, d.Score, d.TotalQuestions, d.CorrectAnswers,
			d.WrongAnswers, d.UnansweredQuestions, d.Percentage, d.TimeTakenSeconds,
			d.SubmitReason, d.ExamName, d.Subject, d.Chapter, d.ClassName, d.TotalMarks,
			d.TotalTimeMinutes, d.NegativeMarksValue, d.ExaminerName,
		).Scan(&d.ID, &d.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert attempt: %w", err)
		}

		for i := range d.Questions {
			d.Questions[i].ID = uuid.New()
			d.Questions[i].AttemptID = d.ID
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"attempt_questions"},
			[]string{"id", "attempt_id", "original_question_id", "question_text", "question_image_url",
				"options", "correct_answer", "selected_answer", "is_correct", "marks", "question_order"},
			pgx.CopyFromSlice(len(d.Questions), func(i int) ([]any, error) {
				q := d.Questions[i]
				var selected *string
				if q.SelectedAnswer != nil {
					s := string(*q.SelectedAnswer)
					selected = &s
				}
				return []any{q.ID, q.AttemptID, q.OriginalQuestionID, q.QuestionText, q.QuestionImageURL,
					q.Options, string(q.CorrectAnswer), selected, q.IsCorrect, q.Marks, q.QuestionOrder}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy snapshot: %w", err)
		}

		if p.SessionID != nil {
			if _, err := tx.Exec(ctx,
				`UPDATE exam_sessions SET attempt_id = $1 WHERE id = $2`, d.ID, *p.SessionID); err != nil {
				return fmt.Errorf("link session: %w", err)
			}
		}
		return nil
	})
}

// CountByExamAndExaminee returns how many attempts the examinee has made.
func (r *AttemptRepository) CountByExamAndExaminee(ctx context.Context, examID, examineeID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE exam_id = $1 AND examinee_id = $2`,
		examID, examineeID).Scan(&n)
	return n, err
}

// ListByExaminee returns a page of the examinee's attempts, newest first.
func (r *AttemptRepository) ListByExaminee(ctx context.Context, examineeID uuid.UUID, limit, offset int) ([]model.Attempt, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE examinee_id = $1`, examineeID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts a
		 WHERE a.examinee_id = $1
		 ORDER BY a.created_at DESC, a.id
		 LIMIT $2 OFFSET $3`, examineeID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	attempts := make([]model.Attempt, 0, limit)
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, 0, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, total, rows.Err()
}

// GetDetail returns an attempt with its question snapshot.
func (r *AttemptRepository) GetDetail(ctx context.Context, id uuid.UUID) (*model.AttemptDetail, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts a WHERE a.id = $1`, id))
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, attempt_id, original_question_id, question_text, question_image_url, options,
		        correct_answer, selected_answer, is_correct, marks, question_order
		 FROM attempt_questions
		 WHERE attempt_id = $1
		 ORDER BY question_order`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	detail := &model.AttemptDetail{Attempt: *a, Questions: []model.AttemptQuestion{}}
	for rows.Next() {
		var q model.AttemptQuestion
		if err := rows.Scan(&q.ID, &q.AttemptID, &q.OriginalQuestionID, &q.QuestionText, &q.QuestionImageURL,
			&q.Options, &q.CorrectAnswer, &q.SelectedAnswer, &q.IsCorrect, &q.Marks, &q.QuestionOrder); err != nil {
			return nil, err
		}
		detail.Questions = append(detail.Questions, q)
	}
	return detail, rows.Err()
}

// LeaderboardEntries returns every attempt on the exam in submission order.
// Ranking happens in the service.
func (r *AttemptRepository) LeaderboardEntries(ctx context.Context, examID uuid.UUID) ([]model.LeaderboardEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.examinee_id, u.name, a.score, a.correct_answers, a.wrong_answers,
		        a.unanswered_questions, a.time_taken_seconds, a.created_at
		 FROM attempts a
		 JOIN users u ON u.id = a.examinee_id
		 WHERE a.exam_id = $1
		 ORDER BY a.created_at, a.id`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []model.LeaderboardEntry{}
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.AttemptID, &e.ExamineeID, &e.Name, &e.Score, &e.CorrectAnswers, &e.WrongAnswers,
			&e.UnansweredQuestions, &e.TimeTakenSeconds, &e.SubmittedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
