// Package service implements the quiz lifecycle use cases on top of the
// store, the business calendar and the profile directory. All temporal
// decisions are made against the calendar's "today"; the cached status column
// is never consulted here.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"quizdeck/internal/platform/clock"
	"quizdeck/internal/platform/metrics"
	"quizdeck/internal/profile"
	"quizdeck/internal/quiz/cursor"
	"quizdeck/internal/quiz/models"
	"quizdeck/internal/quiz/policy"
	"quizdeck/internal/quiz/store"
	"quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domain-errors"
	"quizdeck/pkg/platform/sentinel"
)

const (
	minPageSize     = 1
	maxPageSize     = 50
	defaultPageSize = 20

	// profileLookupConcurrency bounds parallel directory calls per page.
	profileLookupConcurrency = 4
)

// Service coordinates quiz lifecycle operations.
type Service struct {
	store    store.Store
	profiles profile.Directory
	calendar *clock.BusinessCalendar
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New creates a quiz service. metrics may be nil in tests.
func New(st store.Store, profiles profile.Directory, calendar *clock.BusinessCalendar, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:    st,
		profiles: profiles,
		calendar: calendar,
		logger:   logger,
		metrics:  m,
	}
}

// QuizView is a quiz together with its derived lifecycle state, the
// requester-specific editability flag and the author's display profile.
type QuizView struct {
	Quiz     *models.Quiz
	Status   models.QuizStatus
	Editable bool
	Author   profile.DisplayProfile
}

// ListPage is one page of quiz views. NextCursor is empty on the last page.
type ListPage struct {
	Items      []QuizView
	NextCursor string
}

// Detail is the single-quiz view plus the requester's assignment record.
// Assignment is nil while the quiz is still scheduled.
type Detail struct {
	QuizView
	Assignment *models.Assignment
}

// CreateInput carries the fields for a new quiz.
type CreateInput struct {
	PublishDate  string
	Question     string
	Answer       string
	Hint         *string
	RewardPoints int
}

// ListActive returns the requester's quizzes publishing today, ascending by
// id. cursorToken is the opaque token from a previous page; malformed tokens
// restart from the first page.
func (s *Service) ListActive(ctx context.Context, authorID domain.UserID, limit int, cursorToken string) (*ListPage, error) {
	limit = clampPageSize(limit)
	var afterID domain.QuizID
	if c := cursor.DecodeID(cursorToken); c != nil {
		afterID = c.ID
	}

	today := s.calendar.Today(ctx)
	page, err := s.store.ListActiveForAuthor(ctx, authorID, today, limit, afterID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list active quizzes")
	}

	result := s.buildPage(ctx, page, authorID, today)
	if page.HasNext && len(page.Quizzes) > 0 {
		last := page.Quizzes[len(page.Quizzes)-1]
		result.NextCursor = cursor.EncodeID(last.ID)
	}
	return result, nil
}

// ListScheduled returns the requester's not-yet-published quizzes, ascending
// by (publish date, id).
func (s *Service) ListScheduled(ctx context.Context, authorID domain.UserID, limit int, cursorToken string) (*ListPage, error) {
	limit = clampPageSize(limit)
	after := dateIDKey(cursor.DecodeDateID(cursorToken))

	today := s.calendar.Today(ctx)
	page, err := s.store.ListScheduledForAuthor(ctx, authorID, today, limit, after)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list scheduled quizzes")
	}

	result := s.buildPage(ctx, page, authorID, today)
	if page.HasNext && len(page.Quizzes) > 0 {
		last := page.Quizzes[len(page.Quizzes)-1]
		result.NextCursor = cursor.EncodeDateID(last.PublishDate, last.ID)
	}
	return result, nil
}

// ListCompleted returns the requester's archived quizzes, descending by
// (publish date, id), newest first.
func (s *Service) ListCompleted(ctx context.Context, authorID domain.UserID, limit int, cursorToken string) (*ListPage, error) {
	limit = clampPageSize(limit)
	after := dateIDKey(cursor.DecodeDateID(cursorToken))

	today := s.calendar.Today(ctx)
	page, err := s.store.ListCompletedForAuthor(ctx, authorID, today, limit, after)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list completed quizzes")
	}

	result := s.buildPage(ctx, page, authorID, today)
	if page.HasNext && len(page.Quizzes) > 0 {
		last := page.Quizzes[len(page.Quizzes)-1]
		result.NextCursor = cursor.EncodeDateID(last.PublishDate, last.ID)
	}
	return result, nil
}

// Detail returns one quiz with derived status, editability, author display
// profile and the requester's assignment. Scheduled quizzes exist only for
// their author; everyone else gets not-found so scheduling stays private.
// Viewing a non-scheduled quiz lazily creates the requester's assignment.
func (s *Service) Detail(ctx context.Context, viewerID domain.UserID, id domain.QuizID) (*Detail, error) {
	quiz, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "quiz not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load quiz")
	}

	today := s.calendar.Today(ctx)
	status := policy.DeriveStatus(quiz.PublishDate, today)
	if status == models.StatusScheduled && viewerID != quiz.AuthorID {
		return nil, dErrors.New(dErrors.CodeNotFound, "quiz not found")
	}

	detail := &Detail{QuizView: QuizView{
		Quiz:     quiz,
		Status:   status,
		Editable: policy.IsEditableForViewer(quiz.PublishDate, quiz.AuthorID, viewerID, today),
	}}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		detail.Author = s.lookupProfile(gctx, quiz.AuthorID)
		return nil
	})
	if status != models.StatusScheduled {
		g.Go(func() error {
			assignment, err := s.store.EnsureAssignment(gctx, id, viewerID)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "ensure assignment")
			}
			detail.Assignment = assignment
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return detail, nil
}

// Create schedules a new quiz. The publish date must be today or later;
// content rules match the patch invariants.
func (s *Service) Create(ctx context.Context, authorID domain.UserID, input CreateInput) (*QuizView, error) {
	publishDate, err := domain.ParseCalendarDate(input.PublishDate)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid publish_date")
	}
	if input.Question == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "question is required")
	}
	if input.Answer == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "answer is required")
	}
	if input.RewardPoints < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "reward_points must not be negative")
	}

	today := s.calendar.Today(ctx)
	if publishDate.Before(today) {
		return nil, dErrors.New(dErrors.CodeValidation, "publish_date must not be in the past")
	}

	quiz := &models.Quiz{
		AuthorID:     authorID,
		PublishDate:  publishDate,
		Question:     input.Question,
		Answer:       input.Answer,
		Hint:         input.Hint,
		RewardPoints: input.RewardPoints,
		CachedStatus: policy.DeriveStatus(publishDate, today),
	}
	if err := s.store.Create(ctx, quiz); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create quiz")
	}
	if s.metrics != nil {
		s.metrics.QuizzesCreated.Inc()
	}
	s.logger.InfoContext(ctx, "quiz created",
		"quiz_id", quiz.ID.Int64(),
		"publish_date", quiz.PublishDate.String(),
	)

	return &QuizView{
		Quiz:     quiz,
		Status:   policy.DeriveStatus(publishDate, today),
		Editable: policy.IsEditableForViewer(publishDate, authorID, authorID, today),
		Author:   s.lookupProfile(ctx, authorID),
	}, nil
}

// Update applies a guarded partial update. The store guard is authoritative;
// a zero affected count is classified afterwards with a best-effort read.
func (s *Service) Update(ctx context.Context, requesterID domain.UserID, id domain.QuizID, patch models.QuizPatch) (*QuizView, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	today := s.calendar.Today(ctx)
	affected, err := s.store.UpdateIfScheduled(ctx, id, requesterID, today, patch)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "update quiz")
	}
	if affected == 0 {
		return nil, s.classifyMutationFailure(ctx, id, requesterID, today)
	}

	quiz, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "reload quiz")
	}
	return &QuizView{
		Quiz:     quiz,
		Status:   policy.DeriveStatus(quiz.PublishDate, today),
		Editable: policy.IsEditableForViewer(quiz.PublishDate, quiz.AuthorID, requesterID, today),
		Author:   s.lookupProfile(ctx, quiz.AuthorID),
	}, nil
}

// Delete removes a quiz under the same guard as Update.
func (s *Service) Delete(ctx context.Context, requesterID domain.UserID, id domain.QuizID) error {
	today := s.calendar.Today(ctx)
	affected, err := s.store.DeleteIfScheduled(ctx, id, requesterID, today)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "delete quiz")
	}
	if affected == 0 {
		return s.classifyMutationFailure(ctx, id, requesterID, today)
	}
	s.logger.InfoContext(ctx, "quiz deleted", "quiz_id", id.Int64())
	return nil
}

// classifyMutationFailure explains why a guarded write matched zero rows.
// The follow-up read runs outside the guard, so the answer can be stale; it
// only shapes the error message, never a write.
func (s *Service) classifyMutationFailure(ctx context.Context, id domain.QuizID, requesterID domain.UserID, today domain.CalendarDate) error {
	if s.metrics != nil {
		s.metrics.MutationConflicts.Inc()
	}
	quiz, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "quiz not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "classify mutation failure")
	}
	if quiz.AuthorID != requesterID {
		return dErrors.New(dErrors.CodeForbidden, "quiz belongs to another author")
	}
	if policy.DeriveStatus(quiz.PublishDate, today) != models.StatusScheduled {
		return dErrors.New(dErrors.CodeConflict, "quiz is no longer editable")
	}
	// Guard and read disagreed; something changed in between. Treat as a
	// racing state change.
	return dErrors.New(dErrors.CodeConflict, "quiz state changed concurrently")
}

// Solve marks the requester's assignment solved. Solving twice is an
// idempotent success; the flag never goes back to unsolved.
func (s *Service) Solve(ctx context.Context, viewerID domain.UserID, id domain.QuizID) (*models.Assignment, error) {
	quiz, status, err := s.loadForAssignment(ctx, viewerID, id)
	if err != nil {
		return nil, err
	}
	if status == models.StatusScheduled {
		// Only reachable by the author; recipients get not-found above.
		return nil, dErrors.New(dErrors.CodeConflict, "quiz is not active yet")
	}

	if _, err := s.store.EnsureAssignment(ctx, quiz.ID, viewerID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "ensure assignment")
	}
	if _, err := s.store.MarkSolved(ctx, quiz.ID, viewerID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "mark solved")
	}
	assignment, err := s.store.GetAssignment(ctx, quiz.ID, viewerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load assignment")
	}
	return assignment, nil
}

// GrantReward flips the reward flag on an already-solved assignment. Granting
// twice is an idempotent success; granting before solving is a conflict.
func (s *Service) GrantReward(ctx context.Context, viewerID domain.UserID, id domain.QuizID) (*models.Assignment, error) {
	quiz, status, err := s.loadForAssignment(ctx, viewerID, id)
	if err != nil {
		return nil, err
	}
	if status == models.StatusScheduled {
		return nil, dErrors.New(dErrors.CodeConflict, "quiz is not active yet")
	}

	affected, err := s.store.GrantReward(ctx, quiz.ID, viewerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "grant reward")
	}
	assignment, err := s.store.GetAssignment(ctx, quiz.ID, viewerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeConflict, "reward requires a solved quiz")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load assignment")
	}
	if affected == 0 && !assignment.RewardGranted {
		return nil, dErrors.New(dErrors.CodeConflict, "reward requires a solved quiz")
	}
	return assignment, nil
}

// RunTransitions executes one reconciliation of the status cache for the
// current business date.
func (s *Service) RunTransitions(ctx context.Context) (store.TransitionCounts, error) {
	today := s.calendar.Today(ctx)
	counts, err := s.store.TransitionStatuses(ctx, today)
	if err != nil {
		return counts, dErrors.Wrap(err, dErrors.CodeInternal, "transition statuses")
	}
	s.metrics.RecordTransitions(counts.Activated, counts.Completed)
	s.logger.InfoContext(ctx, "lifecycle transitions applied",
		"business_date", today.String(),
		"activated", counts.Activated,
		"completed", counts.Completed,
	)
	return counts, nil
}

func (s *Service) loadForAssignment(ctx context.Context, viewerID domain.UserID, id domain.QuizID) (*models.Quiz, models.QuizStatus, error) {
	quiz, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, "", dErrors.New(dErrors.CodeNotFound, "quiz not found")
		}
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "load quiz")
	}
	status := policy.DeriveStatus(quiz.PublishDate, s.calendar.Today(ctx))
	if status == models.StatusScheduled && viewerID != quiz.AuthorID {
		return nil, "", dErrors.New(dErrors.CodeNotFound, "quiz not found")
	}
	return quiz, status, nil
}

// buildPage derives per-item status and editability and enriches each item
// with the author's display profile.
func (s *Service) buildPage(ctx context.Context, page *store.Page, viewerID domain.UserID, today domain.CalendarDate) *ListPage {
	items := make([]QuizView, len(page.Quizzes))
	for i, quiz := range page.Quizzes {
		items[i] = QuizView{
			Quiz:     quiz,
			Status:   policy.DeriveStatus(quiz.PublishDate, today),
			Editable: policy.IsEditableForViewer(quiz.PublishDate, quiz.AuthorID, viewerID, today),
		}
	}
	s.enrichAuthors(ctx, items)
	return &ListPage{Items: items}
}

// enrichAuthors resolves display profiles for the distinct authors on a
// page, in parallel. Failures degrade to empty display data and never fail
// the page.
func (s *Service) enrichAuthors(ctx context.Context, items []QuizView) {
	distinct := make(map[domain.UserID]struct{})
	for _, item := range items {
		distinct[item.Quiz.AuthorID] = struct{}{}
	}

	var mu sync.Mutex
	resolved := make(map[domain.UserID]profile.DisplayProfile, len(distinct))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(profileLookupConcurrency)
	for authorID := range distinct {
		authorID := authorID
		g.Go(func() error {
			p := s.lookupProfile(gctx, authorID)
			mu.Lock()
			resolved[authorID] = p
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	for i := range items {
		items[i].Author = resolved[items[i].Quiz.AuthorID]
	}
}

// lookupProfile fetches a display profile, degrading to an id-only profile
// on any failure.
func (s *Service) lookupProfile(ctx context.Context, userID domain.UserID) profile.DisplayProfile {
	p, err := s.profiles.Lookup(ctx, userID)
	if err != nil {
		// Not-found and not-configured are normal outcomes, not failures.
		if !errors.Is(err, sentinel.ErrUnavailable) && !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "profile lookup failed",
				"user_id", userID.String(),
				"error", err,
			)
			if s.metrics != nil {
				s.metrics.ProfileFailures.Inc()
			}
		}
		return profile.DisplayProfile{UserID: userID}
	}
	return *p
}

func clampPageSize(limit int) int {
	switch {
	case limit <= 0:
		return defaultPageSize
	case limit < minPageSize:
		return minPageSize
	case limit > maxPageSize:
		return maxPageSize
	default:
		return limit
	}
}

func dateIDKey(c *cursor.DateIDCursor) *store.DateIDKey {
	if c == nil {
		return nil
	}
	return &store.DateIDKey{Date: c.Date, ID: c.ID}
}
