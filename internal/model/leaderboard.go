package model

import (
	"time"

	"github.com/google/uuid"
)

// LeaderboardEntry is one attempt as shown on an exam leaderboard.
type LeaderboardEntry struct {
	AttemptID           uuid.UUID `json:"attempt_id"`
	ExamineeID          uuid.UUID `json:"examinee_id"`
	Name                string    `json:"name"`
	Score               float64   `json:"score"`
	CorrectAnswers      int       `json:"correct_answers"`
	WrongAnswers        int       `json:"wrong_answers"`
	UnansweredQuestions int       `json:"unanswered_questions"`
	TimeTakenSeconds    float64   `json:"time_taken_seconds"`
	Rank                int       `json:"rank"`
	SubmittedAt         time.Time `json:"submitted_at"`
}
