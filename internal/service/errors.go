package service

import (
	"errors"
	"fmt"
)

// Eligibility and state-machine errors. Drivers map these to user-facing codes.
var (
	ErrNotYetOpen       = errors.New("exam is not open yet")
	ErrWindowClosed     = errors.New("exam window has closed")
	ErrSectionLocked    = errors.New("section is locked")
	ErrSectionNotActive = errors.New("section is not the active section")
	ErrAttemptClosed    = errors.New("attempt is already completed")
	ErrAttemptNotOwned  = errors.New("attempt belongs to another candidate")
	ErrInvalidAnswer    = errors.New("answer does not match the question type")
)

// Lookup errors.
var (
	ErrExamNotFound     = errors.New("exam not found")
	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrQuestionNotFound = errors.New("question not found in this exam")
	ErrSectionNotFound  = errors.New("section not found in this exam")
)

// Retryable errors. The engine never retries on its own.
var (
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	ErrConcurrentUpdate       = errors.New("attempt is being modified by another request")
)

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistenceUnavailable, err)
}
