package config

import (
	"fmt"

	"github.com/google/uuid"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamCodeKey maps a join code to its exam id
func (r *CacheKeyStruct) ExamCodeKey(code string) string {
	return fmt.Sprintf("exam:code:%s", code)
}

// ExamDefinitionKey holds the cached exam definition, answer key included
func (r *CacheKeyStruct) ExamDefinitionKey(examID uuid.UUID) string {
	return fmt.Sprintf("exam:%s:definition", examID)
}

// SessionAnswersKey returns the hash of live answers for an exam session
func (r *CacheKeyStruct) SessionAnswersKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("session:%s:answers", sessionID)
}

// LiveSessionKey caches an in-progress session (owner, exam and deadline)
func (r *CacheKeyStruct) LiveSessionKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("session:%s:live", sessionID)
}

// ExamLeaderboardChannel returns the Redis PubSub channel announcing new attempts
func (r *CacheKeyStruct) ExamLeaderboardChannel(examID uuid.UUID) string {
	return fmt.Sprintf("exam:%s:leaderboard", examID)
}

// RevokedTokenKey marks a logged-out JWT id
func (r *CacheKeyStruct) RevokedTokenKey(jti string) string {
	return fmt.Sprintf("auth:revoked:%s", jti)
}

var CacheKey = NewCacheKeyStruct()
