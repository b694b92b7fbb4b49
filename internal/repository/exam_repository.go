package repository

import (
	"context"
	"fmt"

	"github.com/examhall/examhall-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ExamRepository handles exam data access. Questions are written together
// with their exam and read through QuestionRepository.
type ExamRepository struct {
	pool      *pgxpool.Pool
	questions *QuestionRepository
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool, questions *QuestionRepository) *ExamRepository {
	return &ExamRepository{pool: pool, questions: questions}
}

const examColumns = `id, exam_code, exam_name, subject, chapter, class_name, description,
	total_marks, passing_marks, total_time_minutes, start_at, end_at, attempts_allowed,
	negative_marks_value, examiner_name, author_id, question_count, created_at, updated_at`

func scanExam(row pgx.Row) (*model.Exam, error) {
	e := &model.Exam{}
	err := row.Scan(&e.ID, &e.ExamCode, &e.ExamName, &e.Subject, &e.Chapter, &e.ClassName, &e.Description,
		&e.TotalMarks, &e.PassingMarks, &e.TotalTimeMinutes, &e.StartAt, &e.EndAt, &e.AttemptsAllowed,
		&e.NegativeMarksValue, &e.ExaminerName, &e.AuthorID, &e.QuestionCount, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetByID retrieves an exam and its questions.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e, err := scanExam(r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if e.Questions, err = r.questions.ListByExam(ctx, e.ID); err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return e, nil
}

// GetIDByCode resolves a join code to an exam id.
func (r *ExamRepository) GetIDByCode(ctx context.Context, code string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT id FROM exams WHERE exam_code = $1`, code).Scan(&id)
	return id, err
}

// ListByAuthorPaginated retrieves exams filtered by author with pagination.
// Pass uuid.Nil to list every exam.
func (r *ExamRepository) ListByAuthorPaginated(ctx context.Context, authorID uuid.UUID, limit, offset int) ([]model.Exam, int, error) {
	where := ""
	var args []any
	if authorID != uuid.Nil {
		where = ` WHERE author_id = $1`
		args = append(args, authorID)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM exams`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + examColumns + ` FROM exams` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	exams := make([]model.Exam, 0, limit)
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, 0, err
		}
		exams = append(exams, *e)
	}
	return exams, total, rows.Err()
}

// Create inserts an exam and its questions in one transaction.
// Returns ErrDuplicateExamCode when the generated code is already taken.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		e.QuestionCount = len(e.Questions)
		err := tx.QueryRow(ctx,
			`INSERT INTO exams (exam_code, exam_name, subject, chapter, class_name, description,
			                    total_marks, passing_marks, total_time_minutes, start_at, end_at,
			                    attempts_allowed, negative_marks_value, examiner_name, author_id, question_count)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			 RETURNING id, created_at, updated_at`,
			e.ExamCode, e.ExamName, e.Subject, e.Chapter, e.ClassName, e.Description,
			e.TotalMarks, e.PassingMarks, e.TotalTimeMinutes, e.StartAt, e.EndAt,
			e.AttemptsAllowed, e.NegativeMarksValue, e.ExaminerName, e.AuthorID, e.QuestionCount,
		).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err, "exams_exam_code_key") {
				return ErrDuplicateExamCode
			}
			return err
		}
		return r.questions.insertAll(ctx, tx, e.ID, e.Questions)
	})
}

// Update replaces an exam's fields and questions. The exam code, author and
// creation time are kept. Fails with ErrExamHasAttempts once anyone has
// submitted an attempt.
func (r *ExamRepository) Update(ctx context.Context, e *model.Exam) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockUnattempted(ctx, tx, e.ID); err != nil {
			return err
		}
		e.QuestionCount = len(e.Questions)
		err := tx.QueryRow(ctx,
			`UPDATE exams
			 SET exam_name = $1, subject = $2, chapter = $3, class_name = $4, description = $5,
			     total_marks = $6, passing_marks = $7, total_time_minutes = $8, start_at = $9,
			     end_at = $10, attempts_allowed = $11, negative_marks_value = $12,
			     examiner_name = $13, question_count = $14, updated_at = NOW()
			 WHERE id = $15
			 RETURNING exam_code, author_id, created_at, updated_at`,
			e.ExamName, e.Subject, e.Chapter, e.ClassName, e.Description,
			e.TotalMarks, e.PassingMarks, e.TotalTimeMinutes, e.StartAt,
			e.EndAt, e.AttemptsAllowed, e.NegativeMarksValue,
			e.ExaminerName, e.QuestionCount, e.ID,
		).Scan(&e.ExamCode, &e.AuthorID, &e.CreatedAt, &e.UpdatedAt)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE exam_id = $1`, e.ID); err != nil {
			return fmt.Errorf("clear questions: %w", err)
		}
		return r.questions.insertAll(ctx, tx, e.ID, e.Questions)
	})
}

// Delete removes an exam and its questions. Unless force is set, exams with
// attempts are refused with ErrExamHasAttempts. Forced deletes keep attempt
// snapshots, which lose their exam link.
func (r *ExamRepository) Delete(ctx context.Context, id uuid.UUID, force bool) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if !force {
			if err := lockUnattempted(ctx, tx, id); err != nil {
				return err
			}
		}
		tag, err := tx.Exec(ctx, `DELETE FROM exams WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
}

// HasAttempts reports whether any attempt references the exam.
func (r *ExamRepository) HasAttempts(ctx context.Context, id uuid.UUID) (bool, error) {
	return hasAttempts(ctx, r.pool, id)
}

// lockUnattempted row-locks the exam and fails if it already has attempts.
// Attempt inserts take a share lock on the same row, so the check cannot race.
func lockUnattempted(ctx context.Context, q querier, id uuid.UUID) error {
	var locked uuid.UUID
	if err := q.QueryRow(ctx, `SELECT id FROM exams WHERE id = $1 FOR UPDATE`, id).Scan(&locked); err != nil {
		return err
	}
	attempted, err := hasAttempts(ctx, q, id)
	if err != nil {
		return err
	}
	if attempted {
		return ErrExamHasAttempts
	}
	return nil
}

func hasAttempts(ctx context.Context, q querier, id uuid.UUID) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM attempts WHERE exam_id = $1)`, id).Scan(&exists)
	return exists, err
}
