package repository

import (
	"context"
	"fmt"

	"github.com/examhall/examhall-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByExam retrieves all questions for a given exam in display order.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, question_text, image_url, image_id, options, correct_answer, marks, question_order
		 FROM questions WHERE exam_id = $1
		 ORDER BY question_order`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	questions := []model.Question{}
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.QuestionText, &q.ImageURL, &q.ImageID,
			&q.Options, &q.CorrectAnswer, &q.Marks, &q.QuestionOrder); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// insertAll bulk-inserts questions with CopyFrom, assigning fresh ids and
// 1-based order by slice position.
func (r *QuestionRepository) insertAll(ctx context.Context, tx pgx.Tx, examID uuid.UUID, questions []model.Question) error {
	if len(questions) == 0 {
		return nil
	}
	for i := range questions {
		questions[i].ID = uuid.New()
		questions[i].ExamID = examID
		questions[i].QuestionOrder = i + 1
	}

	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"questions"},
		[]string{"id", "exam_id", "question_text", "image_url", "image_id", "options", "correct_answer", "marks", "question_order"},
		pgx.CopyFromSlice(len(questions), func(i int) ([]any, error) {
			q := questions[i]
			return []any{q.ID, q.ExamID, q.QuestionText, q.ImageURL, q.ImageID,
				q.Options, string(q.CorrectAnswer), q.Weight(), q.QuestionOrder}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy questions: %w", err)
	}
	return nil
}
