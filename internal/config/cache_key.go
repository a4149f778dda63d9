package config

import (
	"fmt"

	"github.com/google/uuid"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamContentKey returns the cache key for an exam's sections and questions.
func (r *CacheKeyStruct) ExamContentKey(examID uuid.UUID) string {
	return fmt.Sprintf("exam:%s:content", examID)
}

// AttemptLockKey returns the lock key guarding mutations of one attempt.
func (r *CacheKeyStruct) AttemptLockKey(attemptID uuid.UUID) string {
	return fmt.Sprintf("lock:attempt:%s", attemptID)
}

// CandidateExamLockKey returns the lock key guarding attempt creation for a
// candidate on an exam.
func (r *CacheKeyStruct) CandidateExamLockKey(candidateID string, examID uuid.UUID) string {
	return fmt.Sprintf("lock:candidate:%s:exam:%s", candidateID, examID)
}

var CacheKey = NewCacheKeyStruct()
