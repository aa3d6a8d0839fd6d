// Package store defines the quiz lifecycle repository contracts and provides
// PostgreSQL and in-memory implementations.
//
// The conditional mutations (UpdateIfScheduled, DeleteIfScheduled) combine
// the eligibility predicate and the write into one atomic operation, so no
// check-then-act window exists at this layer. A zero affected count is
// ambiguous by design; callers classify it with a follow-up read if they
// need a precise error.
package store

import (
	"context"

	"quizdeck/internal/quiz/models"
	"quizdeck/pkg/domain"
)

// Page is one keyset page of quizzes. HasNext is computed by fetching one
// row beyond the requested limit and truncating.
type Page struct {
	Quizzes []*models.Quiz
	HasNext bool
}

// DateIDKey is the composite continuation point for date-ordered scans.
type DateIDKey struct {
	Date domain.CalendarDate
	ID   domain.QuizID
}

// TransitionCounts reports how many cached statuses one transition run
// flipped. Both counts are legitimately zero when the run is a rerun.
type TransitionCounts struct {
	Activated int64
	Completed int64
}

// Store is the storage boundary for quizzes and assignments.
//
// List methods return rows for the given author only, ordered as documented,
// fetching limit+1 rows internally to compute HasNext. The today/day
// parameters are business calendar dates; implementations translate them to
// their native time representation via domain.DayBoundary.
type Store interface {
	// Create persists a new quiz and assigns its surrogate id.
	Create(ctx context.Context, quiz *models.Quiz) error

	// FindByID returns sentinel.ErrNotFound when no row exists.
	FindByID(ctx context.Context, id domain.QuizID) (*models.Quiz, error)

	// ListActiveForAuthor returns quizzes publishing on day, ascending by id,
	// resuming after afterID when it is non-zero.
	ListActiveForAuthor(ctx context.Context, authorID domain.UserID, day domain.CalendarDate, limit int, afterID domain.QuizID) (*Page, error)

	// ListScheduledForAuthor returns quizzes publishing strictly after today,
	// ascending by (publish date, id).
	ListScheduledForAuthor(ctx context.Context, authorID domain.UserID, today domain.CalendarDate, limit int, after *DateIDKey) (*Page, error)

	// ListCompletedForAuthor returns quizzes publishing strictly before today,
	// descending by (publish date, id).
	ListCompletedForAuthor(ctx context.Context, authorID domain.UserID, today domain.CalendarDate, limit int, after *DateIDKey) (*Page, error)

	// UpdateIfScheduled applies the patch iff the row exists, belongs to
	// authorID and its publish date is strictly after today. Returns the
	// affected row count (0 or 1); the guard and the write are atomic.
	UpdateIfScheduled(ctx context.Context, id domain.QuizID, authorID domain.UserID, today domain.CalendarDate, patch models.QuizPatch) (int64, error)

	// DeleteIfScheduled deletes under the same guard as UpdateIfScheduled.
	DeleteIfScheduled(ctx context.Context, id domain.QuizID, authorID domain.UserID, today domain.CalendarDate) (int64, error)

	// TransitionStatuses reconciles the cached status column with the state
	// derived from publish dates: scheduled rows publishing today become
	// active, scheduled-or-active rows publishing before today become
	// completed. Idempotent; rows already in the target state do not match.
	TransitionStatuses(ctx context.Context, today domain.CalendarDate) (TransitionCounts, error)

	// GetAssignment returns sentinel.ErrNotFound when the recipient has no
	// record for the quiz yet.
	GetAssignment(ctx context.Context, quizID domain.QuizID, recipientID domain.UserID) (*models.Assignment, error)

	// EnsureAssignment lazily creates the (quiz, recipient) record and
	// returns it; concurrent calls converge on one row.
	EnsureAssignment(ctx context.Context, quizID domain.QuizID, recipientID domain.UserID) (*models.Assignment, error)

	// MarkSolved flips IsSolved false to true. Returns 0 when the record is
	// missing or already solved; the transition is monotonic.
	MarkSolved(ctx context.Context, quizID domain.QuizID, recipientID domain.UserID) (int64, error)

	// GrantReward flips RewardGranted iff the assignment is already solved
	// and not yet rewarded.
	GrantReward(ctx context.Context, quizID domain.QuizID, recipientID domain.UserID) (int64, error)
}
