package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"quizdeck/internal/quiz/models"
	"quizdeck/internal/quiz/policy"
	"quizdeck/pkg/domain"
	"quizdeck/pkg/platform/sentinel"
)

type assignmentKey struct {
	quizID      domain.QuizID
	recipientID domain.UserID
}

// InMemoryStore implements Store with process-local state. Guarded mutations
// hold the lock across predicate and write, giving the same atomicity the
// Postgres implementation gets from single-statement conditional updates.
type InMemoryStore struct {
	mu          sync.RWMutex
	nextID      domain.QuizID
	quizzes     map[domain.QuizID]*models.Quiz
	assignments map[assignmentKey]*models.Assignment
	now         func() time.Time
}

// InMemoryOption configures an InMemoryStore.
type InMemoryOption func(*InMemoryStore)

// WithClock sets the clock function for testability.
func WithClock(now func() time.Time) InMemoryOption {
	return func(s *InMemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewInMemory(opts ...InMemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		nextID:      1,
		quizzes:     make(map[domain.QuizID]*models.Quiz),
		assignments: make(map[assignmentKey]*models.Assignment),
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *InMemoryStore) Create(_ context.Context, quiz *models.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	quiz.ID = s.nextID
	s.nextID++
	now := s.now()
	quiz.CreatedAt = now
	quiz.UpdatedAt = now
	if quiz.CachedStatus == "" {
		quiz.CachedStatus = models.StatusScheduled
	}
	stored := *quiz
	s.quizzes[quiz.ID] = &stored
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.QuizID) (*models.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	quiz, ok := s.quizzes[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *quiz
	return &clone, nil
}

func (s *InMemoryStore) ListActiveForAuthor(_ context.Context, authorID domain.UserID, day domain.CalendarDate, limit int, afterID domain.QuizID) (*Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Quiz
	for _, quiz := range s.quizzes {
		if quiz.AuthorID != authorID || !quiz.PublishDate.Equal(day) {
			continue
		}
		if quiz.ID <= afterID {
			continue
		}
		matched = append(matched, quiz)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return s.page(matched, limit), nil
}

func (s *InMemoryStore) ListScheduledForAuthor(_ context.Context, authorID domain.UserID, today domain.CalendarDate, limit int, after *DateIDKey) (*Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Quiz
	for _, quiz := range s.quizzes {
		if quiz.AuthorID != authorID || !quiz.PublishDate.After(today) {
			continue
		}
		if after != nil {
			beyond := quiz.PublishDate.After(after.Date) ||
				(quiz.PublishDate.Equal(after.Date) && quiz.ID > after.ID)
			if !beyond {
				continue
			}
		}
		matched = append(matched, quiz)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].PublishDate != matched[j].PublishDate {
			return matched[i].PublishDate.Before(matched[j].PublishDate)
		}
		return matched[i].ID < matched[j].ID
	})
	return s.page(matched, limit), nil
}

func (s *InMemoryStore) ListCompletedForAuthor(_ context.Context, authorID domain.UserID, today domain.CalendarDate, limit int, after *DateIDKey) (*Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Quiz
	for _, quiz := range s.quizzes {
		if quiz.AuthorID != authorID || !quiz.PublishDate.Before(today) {
			continue
		}
		if after != nil {
			beyond := quiz.PublishDate.Before(after.Date) ||
				(quiz.PublishDate.Equal(after.Date) && quiz.ID < after.ID)
			if !beyond {
				continue
			}
		}
		matched = append(matched, quiz)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].PublishDate != matched[j].PublishDate {
			return matched[i].PublishDate.After(matched[j].PublishDate)
		}
		return matched[i].ID > matched[j].ID
	})
	return s.page(matched, limit), nil
}

// page applies the limit+1 truncation rule to an already-ordered slice.
func (s *InMemoryStore) page(matched []*models.Quiz, limit int) *Page {
	hasNext := len(matched) > limit
	if hasNext {
		matched = matched[:limit]
	}
	out := make([]*models.Quiz, 0, len(matched))
	for _, quiz := range matched {
		clone := *quiz
		out = append(out, &clone)
	}
	return &Page{Quizzes: out, HasNext: hasNext}
}

func (s *InMemoryStore) UpdateIfScheduled(_ context.Context, id domain.QuizID, authorID domain.UserID, today domain.CalendarDate, patch models.QuizPatch) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	quiz, ok := s.quizzes[id]
	if !ok || !policy.CanMutate(quiz.PublishDate, quiz.AuthorID, authorID, today) {
		return 0, nil
	}
	patch.Apply(quiz)
	quiz.UpdatedAt = s.now()
	return 1, nil
}

func (s *InMemoryStore) DeleteIfScheduled(_ context.Context, id domain.QuizID, authorID domain.UserID, today domain.CalendarDate) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	quiz, ok := s.quizzes[id]
	if !ok || !policy.CanMutate(quiz.PublishDate, quiz.AuthorID, authorID, today) {
		return 0, nil
	}
	delete(s.quizzes, id)
	return 1, nil
}

func (s *InMemoryStore) TransitionStatuses(_ context.Context, today domain.CalendarDate) (TransitionCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var counts TransitionCounts
	for _, quiz := range s.quizzes {
		switch {
		case quiz.PublishDate.Equal(today) && quiz.CachedStatus == models.StatusScheduled:
			quiz.CachedStatus = models.StatusActive
			quiz.UpdatedAt = s.now()
			counts.Activated++
		case quiz.PublishDate.Before(today) && quiz.CachedStatus != models.StatusCompleted:
			quiz.CachedStatus = models.StatusCompleted
			quiz.UpdatedAt = s.now()
			counts.Completed++
		}
	}
	return counts, nil
}

func (s *InMemoryStore) GetAssignment(_ context.Context, quizID domain.QuizID, recipientID domain.UserID) (*models.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	assignment, ok := s.assignments[assignmentKey{quizID, recipientID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *assignment
	return &clone, nil
}

func (s *InMemoryStore) EnsureAssignment(_ context.Context, quizID domain.QuizID, recipientID domain.UserID) (*models.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quizzes[quizID]; !ok {
		return nil, sentinel.ErrNotFound
	}
	key := assignmentKey{quizID, recipientID}
	assignment, ok := s.assignments[key]
	if !ok {
		assignment = &models.Assignment{
			QuizID:      quizID,
			RecipientID: recipientID,
			CreatedAt:   s.now(),
		}
		s.assignments[key] = assignment
	}
	clone := *assignment
	return &clone, nil
}

func (s *InMemoryStore) MarkSolved(_ context.Context, quizID domain.QuizID, recipientID domain.UserID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	assignment, ok := s.assignments[assignmentKey{quizID, recipientID}]
	if !ok || assignment.IsSolved {
		return 0, nil
	}
	now := s.now()
	assignment.IsSolved = true
	assignment.SolvedAt = &now
	return 1, nil
}

func (s *InMemoryStore) GrantReward(_ context.Context, quizID domain.QuizID, recipientID domain.UserID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	assignment, ok := s.assignments[assignmentKey{quizID, recipientID}]
	if !ok || !assignment.IsSolved || assignment.RewardGranted {
		return 0, nil
	}
	assignment.RewardGranted = true
	return 1, nil
}
