package models

import (
	"encoding/json"
	"time"

	"quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domain-errors"
)

// QuizStatus is the lifecycle state of a quiz. It is always derivable from
// the publish date and the business "today"; the persisted copy on Quiz is a
// cache maintained by the transition job and must never drive authorization.
type QuizStatus string

const (
	StatusScheduled QuizStatus = "scheduled"
	StatusActive    QuizStatus = "active"
	StatusCompleted QuizStatus = "completed"
)

// Quiz is the scheduled content unit. PublishDate is the single field that
// drives lifecycle state; payload fields are mutable only while the quiz is
// still scheduled.
type Quiz struct {
	ID           domain.QuizID
	AuthorID     domain.UserID
	PublishDate  domain.CalendarDate
	Question     string
	Answer       string
	Hint         *string
	RewardPoints int
	CachedStatus QuizStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Assignment is the per-recipient completion record. Rows are created lazily
// on first view and never deleted; IsSolved only ever goes false to true.
type Assignment struct {
	QuizID        domain.QuizID
	RecipientID   domain.UserID
	IsSolved      bool
	RewardGranted bool
	CreatedAt     time.Time
	SolvedAt      *time.Time
}

// Field is a tri-state patch value distinguishing "not provided" from an
// explicit null. An absent JSON key leaves Set false (leave unchanged); an
// explicit null sets Set true with Valid false (clear).
type Field[T any] struct {
	Set   bool
	Valid bool
	Value T
}

func (f *Field[T]) UnmarshalJSON(b []byte) error {
	f.Set = true
	if string(b) == "null" {
		f.Valid = false
		var zero T
		f.Value = zero
		return nil
	}
	f.Valid = true
	return json.Unmarshal(b, &f.Value)
}

// QuizPatch carries a partial update. Only Hint is nullable, so only Hint
// may be cleared with an explicit null.
type QuizPatch struct {
	Question     Field[string] `json:"question"`
	Answer       Field[string] `json:"answer"`
	Hint         Field[string] `json:"hint"`
	RewardPoints Field[int]    `json:"reward_points"`
}

// IsEmpty reports whether the patch contains no fields at all.
func (p QuizPatch) IsEmpty() bool {
	return !p.Question.Set && !p.Answer.Set && !p.Hint.Set && !p.RewardPoints.Set
}

// Validate enforces patch-shape invariants before any write is attempted.
func (p QuizPatch) Validate() error {
	if p.IsEmpty() {
		return dErrors.New(dErrors.CodeValidation, "patch must contain at least one field")
	}
	if p.Question.Set && (!p.Question.Valid || p.Question.Value == "") {
		return dErrors.New(dErrors.CodeValidation, "question cannot be cleared")
	}
	if p.Answer.Set && (!p.Answer.Valid || p.Answer.Value == "") {
		return dErrors.New(dErrors.CodeValidation, "answer cannot be cleared")
	}
	if p.RewardPoints.Set && !p.RewardPoints.Valid {
		return dErrors.New(dErrors.CodeValidation, "reward_points cannot be cleared")
	}
	if p.RewardPoints.Set && p.RewardPoints.Value < 0 {
		return dErrors.New(dErrors.CodeValidation, "reward_points must not be negative")
	}
	return nil
}

// Apply writes the patch onto a quiz in memory. Used by the in-memory store;
// the Postgres store expresses the same semantics in SQL.
func (p QuizPatch) Apply(q *Quiz) {
	if p.Question.Set {
		q.Question = p.Question.Value
	}
	if p.Answer.Set {
		q.Answer = p.Answer.Value
	}
	if p.Hint.Set {
		if p.Hint.Valid {
			hint := p.Hint.Value
			q.Hint = &hint
		} else {
			q.Hint = nil
		}
	}
	if p.RewardPoints.Set {
		q.RewardPoints = p.RewardPoints.Value
	}
}
