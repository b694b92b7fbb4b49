package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/examhall/examhall-backend/internal/config"
	"github.com/examhall/examhall-backend/internal/model"
	"github.com/examhall/examhall-backend/internal/pagination"
	"github.com/examhall/examhall-backend/internal/repository"
	"github.com/examhall/examhall-backend/internal/scoring"
	"github.com/examhall/examhall-backend/internal/submission"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// EventAttemptSubmitted is the type of events published on exam leaderboard channels.
const EventAttemptSubmitted = "attempt_submitted"

// AttemptService grades submissions and serves attempt history.
type AttemptService struct {
	attempts *repository.AttemptRepository
	sessions *repository.ExamSessionRepository
	cache    *ExamCache
	answers  *AnswerStore
	rdb      *redis.Client
	cfg      *config.Config
	clamp    scoring.ClampPolicy
	log      zerolog.Logger
	now      func() time.Time
}

// NewAttemptService creates a new AttemptService. An unknown clamp policy in
// cfg is an error so a typo cannot silently change grading.
func NewAttemptService(
	attempts *repository.AttemptRepository,
	sessions *repository.ExamSessionRepository,
	cache *ExamCache,
	answers *AnswerStore,
	rdb *redis.Client,
	cfg *config.Config,
	log zerolog.Logger,
) (*AttemptService, error) {
	clamp, err := scoring.ParseClampPolicy(cfg.ScoreClampPolicy)
	if err != nil {
		return nil, err
	}
	return &AttemptService{
		attempts: attempts,
		sessions: sessions,
		cache:    cache,
		answers:  answers,
		rdb:      rdb,
		cfg:      cfg,
		clamp:    clamp,
		log:      log.With().Str("component", "attempt_service").Logger(),
		now:      time.Now,
	}, nil
}

// Submit grades a client-assembled submission. If the examinee has a live
// session for the exam it is claimed by this submission.
func (s *AttemptService) Submit(ctx context.Context, examineeID uuid.UUID, payload *model.SubmissionPayload) (*model.AttemptDetail, error) {
	if payload == nil {
		return nil, &submission.ValidationError{Field: "payload"}
	}
	exam, err := s.cache.ByID(ctx, payload.ExamID)
	if err != nil {
		return nil, notFound(err)
	}
	if err := submission.Verify(payload, exam); err != nil {
		return nil, err
	}
	if !s.acceptsSubmissions(exam) {
		return nil, ErrExamNotAvailable
	}

	answers := submission.Selections(payload)
	timeTaken := ClampTimeTaken(payload.TimeTakenSeconds, exam, s.cfg.SubmitGrace)

	var sessionID *uuid.UUID
	live, err := s.sessions.GetActive(ctx, exam.ID, examineeID)
	switch {
	case err == nil:
		sessionID = &live.ID
		if elapsed := s.now().Sub(live.StartedAt).Seconds(); elapsed >= 0 && elapsed < timeTaken {
			timeTaken = elapsed
		}
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("get live session: %w", err)
	}

	detail, err := s.grade(ctx, exam, examineeID, answers, timeTaken, model.SubmitReasonManual, sessionID)
	if err != nil {
		return nil, err
	}
	if sessionID != nil {
		s.answers.Drop(ctx, *sessionID)
	}
	return detail, nil
}

// FinalizeSession grades a live session from its stored answers. Exactly one
// of the racing callers (manual submit, socket timer, expiry worker) wins;
// the others get ErrAlreadySubmitted.
func (s *AttemptService) FinalizeSession(ctx context.Context, session *model.ExamSession, reason model.SubmitReason) (*model.AttemptDetail, error) {
	exam, err := s.cache.ByID(ctx, session.ExamID)
	if err != nil {
		return nil, notFound(err)
	}

	answers, err := s.answers.Load(ctx, session.ID)
	if err != nil || len(answers) == 0 {
		if err != nil {
			s.log.Warn().Err(err).Str("session_id", session.ID.String()).Msg("Live answers unavailable, using database")
		}
		if answers, err = s.sessions.ListAnswers(ctx, session.ID); err != nil {
			return nil, fmt.Errorf("load answers: %w", err)
		}
	}

	end := s.now()
	if end.After(session.DeadlineAt) {
		end = session.DeadlineAt
	}
	timeTaken := math.Max(0, end.Sub(session.StartedAt).Seconds())

	detail, err := s.grade(ctx, exam, session.ExamineeID, answers, timeTaken, reason, &session.ID)
	if err != nil {
		return nil, err
	}
	s.answers.Drop(ctx, session.ID)
	return detail, nil
}

func (s *AttemptService) grade(
	ctx context.Context,
	exam *model.Exam,
	examineeID uuid.UUID,
	answers model.AnswerState,
	timeTaken float64,
	reason model.SubmitReason,
	sessionID *uuid.UUID,
) (*model.AttemptDetail, error) {
	detail := BuildAttempt(exam, examineeID, answers, timeTaken, reason, s.clamp)

	err := s.attempts.Create(ctx, detail, repository.CreateParams{
		Limit:     exam.AttemptsAllowed.Limit(s.cfg.MaxMultipleAttempts),
		SessionID: sessionID,
	})
	switch {
	case errors.Is(err, repository.ErrSessionClaimed):
		return nil, ErrAlreadySubmitted
	case errors.Is(err, repository.ErrAttemptLimit):
		return nil, ErrAttemptLimitReached
	case err != nil:
		return nil, fmt.Errorf("store attempt: %w", err)
	}

	s.log.Info().
		Str("attempt_id", detail.ID.String()).
		Str("exam_id", exam.ID.String()).
		Str("examinee_id", examineeID.String()).
		Float64("score", detail.Score).
		Str("reason", string(reason)).
		Msg("Attempt graded")

	s.publish(ctx, detail)
	return detail, nil
}

func (s *AttemptService) publish(ctx context.Context, d *model.AttemptDetail) {
	event, _ := json.Marshal(model.AttemptSubmittedEvent{
		Type:       EventAttemptSubmitted,
		AttemptID:  d.ID,
		ExamID:     d.ExamID,
		ExamineeID: d.ExamineeID,
		Score:      d.Score,
	})
	if err := s.rdb.Publish(ctx, config.CacheKey.ExamLeaderboardChannel(d.ExamID), event).Err(); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", d.ID.String()).Msg("Failed to publish attempt event")
	}
}

// acceptsSubmissions allows late submissions from attempts started just
// before the window closed.
func (s *AttemptService) acceptsSubmissions(exam *model.Exam) bool {
	now := s.now()
	if exam.StartAt != nil && now.Before(*exam.StartAt) {
		return false
	}
	if exam.EndAt != nil && now.After(exam.EndAt.Add(exam.Duration()+s.cfg.SubmitGrace)) {
		return false
	}
	return true
}

// ClampTimeTaken bounds a client-reported duration to [0, limit+grace].
func ClampTimeTaken(seconds float64, exam *model.Exam, grace time.Duration) float64 {
	if math.IsNaN(seconds) || seconds < 0 {
		return 0
	}
	max := (exam.Duration() + grace).Seconds()
	if seconds > max {
		return max
	}
	return seconds
}

// BuildAttempt grades answers and assembles the attempt with its question
// snapshot. It does not touch storage.
func BuildAttempt(
	exam *model.Exam,
	examineeID uuid.UUID,
	answers model.AnswerState,
	timeTaken float64,
	reason model.SubmitReason,
	clamp scoring.ClampPolicy,
) *model.AttemptDetail {
	result := scoring.Calculate(exam.Questions, answers, exam.NegativeMarksValue, clamp)

	questions := make([]model.AttemptQuestion, len(exam.Questions))
	for i, q := range exam.Questions {
		qid := q.ID
		aq := model.AttemptQuestion{
			OriginalQuestionID: &qid,
			QuestionText:       q.QuestionText,
			QuestionImageURL:   q.ImageURL,
			Options:            q.Options,
			CorrectAnswer:      q.CorrectAnswer,
			IsCorrect:          result.Breakdown[i].Outcome == scoring.OutcomeCorrect,
			Marks:              q.Weight(),
			QuestionOrder:      i + 1,
		}
		if sel := result.Breakdown[i].Selected; sel != "" {
			aq.SelectedAnswer = &sel
		}
		questions[i] = aq
	}

	return &model.AttemptDetail{
		Attempt: model.Attempt{
			ExamID:              exam.ID,
			ExamineeID:          examineeID,
			Score:               result.Score,
			TotalQuestions:      result.TotalQuestions,
			CorrectAnswers:      result.Correct,
			WrongAnswers:        result.Wrong,
			UnansweredQuestions: result.Unanswered,
			Percentage:          result.Percentage,
			TimeTakenSeconds:    timeTaken,
			SubmitReason:        reason,
			ExamName:            exam.ExamName,
			Subject:             exam.Subject,
			Chapter:             exam.Chapter,
			ClassName:           exam.ClassName,
			TotalMarks:          exam.TotalMarks,
			TotalTimeMinutes:    exam.TotalTimeMinutes,
			NegativeMarksValue:  exam.NegativeMarksValue,
			ExaminerName:        exam.ExaminerName,
		},
		Questions: questions,
	}
}

// History returns a page of the examinee's attempts.
func (s *AttemptService) History(ctx context.Context, examineeID uuid.UUID, page, perPage int) ([]model.Attempt, pagination.State, error) {
	return paginate(page, perPage, func(limit, offset int) ([]model.Attempt, int, error) {
		return s.attempts.ListByExaminee(ctx, examineeID, limit, offset)
	})
}

// Detail returns one of the examinee's attempts with its snapshot.
func (s *AttemptService) Detail(ctx context.Context, attemptID, examineeID uuid.UUID) (*model.AttemptDetail, error) {
	d, err := s.attempts.GetDetail(ctx, attemptID)
	if err != nil {
		return nil, notFound(err)
	}
	if d.ExamineeID != examineeID {
		return nil, ErrNotFound
	}
	return d, nil
}
