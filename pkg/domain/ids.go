// Package domain holds shared identifier and value types. Typed IDs make it
// a compile error to pass a quiz ID where a user ID is expected.
package domain

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	dErrors "quizdeck/pkg/domain-errors"
)

// UserID identifies an author or recipient. Issued by the external identity
// provider; this service only validates shape.
type UserID uuid.UUID

// QuizID is the surrogate key of a quiz: positive, monotonically increasing,
// immutable once assigned. Used as the pagination tie-breaker.
type QuizID int64

// ParseUserID validates that s is a non-nil UUID.
func ParseUserID(s string) (UserID, error) {
	if s == "" {
		return UserID{}, dErrors.New(dErrors.CodeValidation, "user id is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return UserID{}, dErrors.New(dErrors.CodeValidation, "user id must be a valid UUID")
	}
	if parsed == uuid.Nil {
		return UserID{}, dErrors.New(dErrors.CodeValidation, "user id must not be the nil UUID")
	}
	return UserID(parsed), nil
}

// ParseQuizID validates that s is a positive decimal integer.
func ParseQuizID(s string) (QuizID, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "quiz id must be a positive integer")
	}
	return QuizID(n), nil
}

func (u UserID) String() string { return uuid.UUID(u).String() }
func (u UserID) IsZero() bool   { return uuid.UUID(u) == uuid.Nil }

func (q QuizID) String() string { return strconv.FormatInt(int64(q), 10) }
func (q QuizID) Int64() int64   { return int64(q) }
