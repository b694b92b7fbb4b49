package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/examhall/examhall-backend/internal/config"
	"github.com/examhall/examhall-backend/internal/model"
	"github.com/examhall/examhall-backend/internal/pagination"
	"github.com/examhall/examhall-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ExamCodeAlphabet excludes look-alike characters (0/O, 1/I/L).
const ExamCodeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const codeAttempts = 5

// ExamService handles exam authoring and examinee access.
type ExamService struct {
	exams    *repository.ExamRepository
	attempts *repository.AttemptRepository
	cache    *ExamCache
	cfg      *config.Config
	log      zerolog.Logger
	now      func() time.Time
	newCode  func() (string, error)
}

// NewExamService creates a new ExamService.
func NewExamService(
	exams *repository.ExamRepository,
	attempts *repository.AttemptRepository,
	cache *ExamCache,
	cfg *config.Config,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		exams:    exams,
		attempts: attempts,
		cache:    cache,
		cfg:      cfg,
		log:      log.With().Str("component", "exam_service").Logger(),
		now:      time.Now,
		newCode:  GenerateExamCode,
	}
}

// GenerateExamCode returns a random XXXX-XXXX join code.
func GenerateExamCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	var b strings.Builder
	for i, v := range buf {
		if i == 4 {
			b.WriteByte('-')
		}
		b.WriteByte(ExamCodeAlphabet[int(v)%len(ExamCodeAlphabet)])
	}
	return b.String(), nil
}

// NormalizeExamCode upper-cases a code and restores the dash when the user
// typed the eight characters without it.
func NormalizeExamCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) == 8 && !strings.Contains(code, "-") {
		code = code[:4] + "-" + code[4:]
	}
	return code
}

// ValidateQuestions checks rules binding tags cannot express.
func ValidateQuestions(questions []model.QuestionRequest) error {
	for i, q := range questions {
		if err := q.Options.Complete(); err != nil {
			return &FieldError{Field: fmt.Sprintf("questions[%d].options", i), Reason: err.Error()}
		}
		if strings.TrimSpace(q.QuestionText) == "" && q.ImageURL == "" {
			return &FieldError{Field: fmt.Sprintf("questions[%d].question_text", i), Reason: "text or image is required"}
		}
	}
	return nil
}

// Create stores a new exam with a fresh join code, retrying on code collisions.
func (s *ExamService) Create(ctx context.Context, authorID uuid.UUID, req model.CreateExamRequest) (*model.Exam, error) {
	if err := ValidateQuestions(req.Questions); err != nil {
		return nil, err
	}
	exam := req.ToExam(authorID)

	for i := 0; i < codeAttempts; i++ {
		code, err := s.newCode()
		if err != nil {
			return nil, err
		}
		exam.ExamCode = code

		err = s.exams.Create(ctx, exam)
		if err == nil {
			s.log.Info().
				Str("exam_id", exam.ID.String()).
				Str("exam_code", exam.ExamCode).
				Int("questions", len(exam.Questions)).
				Msg("Exam created")
			return exam, nil
		}
		if !errors.Is(err, repository.ErrDuplicateExamCode) {
			return nil, fmt.Errorf("create exam: %w", err)
		}
		s.log.Debug().Str("exam_code", code).Msg("Exam code collision, retrying")
	}
	return nil, fmt.Errorf("create exam: no free code after %d attempts", codeAttempts)
}

// Get retrieves an exam with questions.
func (s *ExamService) Get(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.exams.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return exam, nil
}

// GetOwned retrieves an exam authored by authorID.
func (s *ExamService) GetOwned(ctx context.Context, id, authorID uuid.UUID) (*model.Exam, error) {
	exam, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if exam.AuthorID != authorID {
		return nil, ErrNotExamAuthor
	}
	return exam, nil
}

// Update replaces an owned exam. Refused once the exam has attempts.
func (s *ExamService) Update(ctx context.Context, id, authorID uuid.UUID, req model.CreateExamRequest) (*model.Exam, error) {
	if err := ValidateQuestions(req.Questions); err != nil {
		return nil, err
	}
	current, err := s.GetOwned(ctx, id, authorID)
	if err != nil {
		return nil, err
	}

	exam := req.ToExam(authorID)
	exam.ID = id
	if err := s.exams.Update(ctx, exam); err != nil {
		if errors.Is(err, repository.ErrExamHasAttempts) {
			return nil, ErrExamLocked
		}
		return nil, fmt.Errorf("update exam: %w", notFound(err))
	}
	s.invalidate(ctx, id, current.ExamCode)

	s.log.Info().Str("exam_id", id.String()).Msg("Exam updated")
	return exam, nil
}

// Delete removes an owned exam. Refused once the exam has attempts.
func (s *ExamService) Delete(ctx context.Context, id, authorID uuid.UUID) error {
	exam, err := s.GetOwned(ctx, id, authorID)
	if err != nil {
		return err
	}
	return s.delete(ctx, exam, false)
}

// ForceDelete removes any exam. Attempt snapshots are kept.
func (s *ExamService) ForceDelete(ctx context.Context, id uuid.UUID) error {
	exam, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.delete(ctx, exam, true)
}

func (s *ExamService) delete(ctx context.Context, exam *model.Exam, force bool) error {
	if err := s.exams.Delete(ctx, exam.ID, force); err != nil {
		if errors.Is(err, repository.ErrExamHasAttempts) {
			return ErrExamLocked
		}
		return fmt.Errorf("delete exam: %w", notFound(err))
	}
	s.invalidate(ctx, exam.ID, exam.ExamCode)
	s.log.Info().Str("exam_id", exam.ID.String()).Bool("force", force).Msg("Exam deleted")
	return nil
}

func (s *ExamService) invalidate(ctx context.Context, id uuid.UUID, code string) {
	if err := s.cache.Invalidate(ctx, id, code); err != nil {
		s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Stale exam cache entry left behind")
	}
}

// ListByAuthor returns a page of the author's exams. uuid.Nil lists all exams.
func (s *ExamService) ListByAuthor(ctx context.Context, authorID uuid.UUID, page, perPage int) ([]model.Exam, pagination.State, error) {
	return paginate(page, perPage, func(limit, offset int) ([]model.Exam, int, error) {
		return s.exams.ListByAuthorPaginated(ctx, authorID, limit, offset)
	})
}

// PaperByCode returns the examinee view of the exam behind code after
// checking the availability window and the attempt policy.
func (s *ExamService) PaperByCode(ctx context.Context, code string, examineeID uuid.UUID) (*model.ExamPaper, error) {
	exam, err := s.cache.ByCode(ctx, NormalizeExamCode(code))
	if err != nil {
		return nil, notFound(err)
	}
	if err := s.CheckAccess(ctx, exam, examineeID); err != nil {
		return nil, err
	}
	return exam.Paper(), nil
}

// CheckAccess verifies that examineeID may start a new attempt on exam now.
func (s *ExamService) CheckAccess(ctx context.Context, exam *model.Exam, examineeID uuid.UUID) error {
	if !exam.Open(s.now()) {
		return ErrExamNotAvailable
	}
	limit := exam.AttemptsAllowed.Limit(s.cfg.MaxMultipleAttempts)
	if limit == 0 {
		return nil
	}
	used, err := s.attempts.CountByExamAndExaminee(ctx, exam.ID, examineeID)
	if err != nil {
		return fmt.Errorf("count attempts: %w", err)
	}
	if used >= limit {
		return ErrAttemptLimitReached
	}
	return nil
}
