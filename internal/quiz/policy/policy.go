// Package policy derives quiz lifecycle state and mutation eligibility.
//
// Everything here is a pure function of calendar dates and identities. The
// same predicate backs the read path (what is displayed as editable), the
// write path (what the store guard permits) and the transition job's
// reconciliation target, so the three can never disagree on interpretation.
package policy

import (
	"quizdeck/internal/quiz/models"
	"quizdeck/pkg/domain"
)

// DeriveStatus computes the lifecycle state from the publish date and the
// business "today". A quiz is active on exactly its publish date.
func DeriveStatus(publishDate, today domain.CalendarDate) models.QuizStatus {
	switch {
	case publishDate.After(today):
		return models.StatusScheduled
	case publishDate.Equal(today):
		return models.StatusActive
	default:
		return models.StatusCompleted
	}
}

// CanMutate reports whether requester may edit or delete the quiz. The
// boundary is strict: once the publish date arrives the quiz is frozen, so a
// same-day quiz is already immutable.
func CanMutate(publishDate domain.CalendarDate, authorID, requesterID domain.UserID, today domain.CalendarDate) bool {
	if requesterID != authorID {
		return false
	}
	return DeriveStatus(publishDate, today) == models.StatusScheduled
}

// IsEditableForViewer is the read-path twin of CanMutate, used to compute
// the editability flag shown to clients. Delegating keeps display and write
// authorization on one predicate.
func IsEditableForViewer(publishDate domain.CalendarDate, authorID, viewerID domain.UserID, today domain.CalendarDate) bool {
	return CanMutate(publishDate, authorID, viewerID, today)
}
