package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/examhall/examhall-backend/internal/model"
	"github.com/examhall/examhall-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ExamSessionService handles live, server-timed exam sessions.
type ExamSessionService struct {
	sessions *repository.ExamSessionRepository
	exams    *ExamService
	cache    *ExamCache
	answers  *AnswerStore
	log      zerolog.Logger
	now      func() time.Time
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(
	sessions *repository.ExamSessionRepository,
	exams *ExamService,
	cache *ExamCache,
	answers *AnswerStore,
	log zerolog.Logger,
) *ExamSessionService {
	return &ExamSessionService{
		sessions: sessions,
		exams:    exams,
		cache:    cache,
		answers:  answers,
		log:      log.With().Str("component", "exam_session_service").Logger(),
		now:      time.Now,
	}
}

// Start opens a live session for the exam, or resumes the one already in
// progress. Resuming skips the window and attempt checks.
func (s *ExamSessionService) Start(ctx context.Context, examID, examineeID uuid.UUID) (*model.StartedSession, error) {
	exam, err := s.cache.ByID(ctx, examID)
	if err != nil {
		return nil, notFound(err)
	}

	sess, err := s.sessions.GetActive(ctx, examID, examineeID)
	resumed := err == nil
	switch {
	case resumed:
	case errors.Is(err, pgx.ErrNoRows):
		if err := s.exams.CheckAccess(ctx, exam, examineeID); err != nil {
			return nil, err
		}
		if sess, resumed, err = s.start(ctx, exam, examineeID); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("get active session: %w", err)
	}

	if err := s.answers.Remember(ctx, sess); err != nil {
		s.log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("Failed to cache live session")
	}

	state, err := s.state(ctx, sess)
	if err != nil {
		return nil, err
	}
	return &model.StartedSession{State: state, Paper: exam.Paper(), Resumed: resumed}, nil
}

func (s *ExamSessionService) start(ctx context.Context, exam *model.Exam, examineeID uuid.UUID) (*model.ExamSession, bool, error) {
	sess, created, err := s.sessions.Start(ctx, exam.ID, examineeID, exam.Duration())
	if err != nil {
		return nil, false, fmt.Errorf("start session: %w", err)
	}
	if created {
		s.log.Info().
			Str("session_id", sess.ID.String()).
			Str("exam_id", exam.ID.String()).
			Str("examinee_id", examineeID.String()).
			Time("deadline", sess.DeadlineAt).
			Msg("Exam session started")
	}
	return sess, !created, nil
}

// Active returns the examinee's in-progress session for an exam.
func (s *ExamSessionService) Active(ctx context.Context, examID, examineeID uuid.UUID) (*model.ExamSession, error) {
	sess, err := s.sessions.GetActive(ctx, examID, examineeID)
	if err != nil {
		return nil, notFound(err)
	}
	return sess, nil
}

// State returns the answers and remaining time of the examinee's live session.
func (s *ExamSessionService) State(ctx context.Context, examID, examineeID uuid.UUID) (*model.ExamSessionState, error) {
	sess, err := s.Active(ctx, examID, examineeID)
	if err != nil {
		return nil, err
	}
	return s.state(ctx, sess)
}

// Snapshot is State for a session the caller already holds.
func (s *ExamSessionService) Snapshot(ctx context.Context, sess *model.ExamSession) (*model.ExamSessionState, error) {
	return s.state(ctx, sess)
}

func (s *ExamSessionService) state(ctx context.Context, sess *model.ExamSession) (*model.ExamSessionState, error) {
	answers, err := s.Answers(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.OptionLetter, len(answers))
	for qid, letter := range answers {
		out[qid.String()] = letter
	}
	return &model.ExamSessionState{
		SessionID:        sess.ID,
		ExamID:           sess.ExamID,
		ExamineeID:       sess.ExamineeID,
		Answers:          out,
		RemainingSeconds: int(math.Ceil(sess.Remaining(s.now()).Seconds())),
		StartedAt:        sess.StartedAt,
	}, nil
}

// Answers returns the live answers, rebuilding from the database when the
// Redis hash is gone.
func (s *ExamSessionService) Answers(ctx context.Context, sessionID uuid.UUID) (model.AnswerState, error) {
	answers, err := s.answers.Load(ctx, sessionID)
	if err == nil && len(answers) > 0 {
		return answers, nil
	}
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Live answers unavailable, using database")
	}
	answers, err = s.sessions.ListAnswers(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	return answers, nil
}

// RecordAnswer stores letter as the answer to questionID. An empty letter
// clears the answer.
func (s *ExamSessionService) RecordAnswer(ctx context.Context, sess *model.ExamSession, questionID uuid.UUID, letter model.OptionLetter) error {
	if err := s.ensureWritable(ctx, sess); err != nil {
		return err
	}

	exam, err := s.cache.ByID(ctx, sess.ExamID)
	if err != nil {
		return notFound(err)
	}
	if _, ok := exam.AnswerKey()[questionID]; !ok {
		return &FieldError{Field: "question_id", Reason: "not part of this exam"}
	}

	if letter == "" {
		return s.answers.Clear(ctx, sess, questionID)
	}
	if !letter.Valid() {
		return &FieldError{Field: "option", Reason: "must be one of A, B, C, D"}
	}
	return s.answers.Select(ctx, sess, questionID, letter)
}

// ensureWritable rejects writes after the deadline or after the session was
// finalized by another path.
func (s *ExamSessionService) ensureWritable(ctx context.Context, sess *model.ExamSession) error {
	if !s.now().Before(sess.DeadlineAt) {
		return ErrSessionExpired
	}
	_, err := s.answers.Live(ctx, sess.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("Live session lookup failed, using database")
	}
	current, err := s.sessions.GetByID(ctx, sess.ID)
	if err != nil {
		return notFound(err)
	}
	if current.Status != model.SessionStatusInProgress {
		return ErrAlreadySubmitted
	}
	if err := s.answers.Remember(ctx, current); err != nil {
		s.log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("Failed to cache live session")
	}
	return nil
}
