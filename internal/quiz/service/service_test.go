package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizdeck/internal/platform/clock"
	"quizdeck/internal/profile"
	"quizdeck/internal/quiz/models"
	"quizdeck/internal/quiz/service"
	"quizdeck/internal/quiz/store"
	"quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domain-errors"
	"quizdeck/pkg/requestcontext"
)

type stubDirectory struct {
	profiles map[domain.UserID]*profile.DisplayProfile
	err      error
}

func (d *stubDirectory) Lookup(_ context.Context, userID domain.UserID) (*profile.DisplayProfile, error) {
	if d.err != nil {
		return nil, d.err
	}
	if p, ok := d.profiles[userID]; ok {
		return p, nil
	}
	return &profile.DisplayProfile{UserID: userID, DisplayName: "someone"}, nil
}

type fixture struct {
	svc      *service.Service
	store    *store.InMemoryStore
	dir      *stubDirectory
	calendar *clock.BusinessCalendar
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	calendar, err := clock.NewBusinessCalendar("Asia/Seoul")
	require.NoError(t, err)

	st := store.NewInMemory()
	dir := &stubDirectory{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{
		svc:      service.New(st, dir, calendar, logger, nil),
		store:    st,
		dir:      dir,
		calendar: calendar,
	}
}

// ctxOn pins the request instant to 10:00 local time on the given business
// date, so "today" is deterministic.
func (f *fixture) ctxOn(t *testing.T, date string) context.Context {
	t.Helper()
	d, err := domain.ParseCalendarDate(date)
	require.NoError(t, err)
	start, _ := domain.DayBoundary(d, f.calendar.Location())
	return requestcontext.WithTime(context.Background(), start.Add(10*time.Hour))
}

func (f *fixture) mustCreate(t *testing.T, ctx context.Context, author domain.UserID, publishDate string) *models.Quiz {
	t.Helper()
	view, err := f.svc.Create(ctx, author, service.CreateInput{
		PublishDate: publishDate,
		Question:    "q?",
		Answer:      "a",
	})
	require.NoError(t, err)
	return view.Quiz
}

func TestService_Create(t *testing.T) {
	f := newFixture(t)
	author := domain.UserID(uuid.New())
	ctx := f.ctxOn(t, "2025-10-20")

	t.Run("future date is scheduled", func(t *testing.T) {
		view, err := f.svc.Create(ctx, author, service.CreateInput{
			PublishDate: "2025-10-21", Question: "q?", Answer: "a",
		})
		require.NoError(t, err)
		assert.Equal(t, models.StatusScheduled, view.Status)
		assert.True(t, view.Editable)
	})

	t.Run("today is active and frozen immediately", func(t *testing.T) {
		view, err := f.svc.Create(ctx, author, service.CreateInput{
			PublishDate: "2025-10-20", Question: "q?", Answer: "a",
		})
		require.NoError(t, err)
		assert.Equal(t, models.StatusActive, view.Status)
		assert.False(t, view.Editable)
	})

	t.Run("past date is rejected", func(t *testing.T) {
		_, err := f.svc.Create(ctx, author, service.CreateInput{
			PublishDate: "2025-10-19", Question: "q?", Answer: "a",
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("malformed date is rejected", func(t *testing.T) {
		_, err := f.svc.Create(ctx, author, service.CreateInput{
			PublishDate: "2025-1-2", Question: "q?", Answer: "a",
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("empty question is rejected", func(t *testing.T) {
		_, err := f.svc.Create(ctx, author, service.CreateInput{
			PublishDate: "2025-10-21", Answer: "a",
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// TestService_LifecycleAcrossDays drives one quiz through all three states
// by moving the request instant instead of the data.
func TestService_LifecycleAcrossDays(t *testing.T) {
	f := newFixture(t)
	author := domain.UserID(uuid.New())

	quiz := f.mustCreate(t, f.ctxOn(t, "2025-10-19"), author, "2025-10-20")

	detail, err := f.svc.Detail(f.ctxOn(t, "2025-10-19"), author, quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusScheduled, detail.Status)
	assert.True(t, detail.Editable)
	assert.Nil(t, detail.Assignment, "no assignment while scheduled")

	detail, err = f.svc.Detail(f.ctxOn(t, "2025-10-20"), author, quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, detail.Status)
	assert.False(t, detail.Editable)
	require.NotNil(t, detail.Assignment, "viewing an active quiz creates the assignment")

	detail, err = f.svc.Detail(f.ctxOn(t, "2025-10-21"), author, quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, detail.Status)
	assert.False(t, detail.Editable)
}

func TestService_Detail_ScheduledIsPrivate(t *testing.T) {
	f := newFixture(t)
	author := domain.UserID(uuid.New())
	viewer := domain.UserID(uuid.New())

	quiz := f.mustCreate(t, f.ctxOn(t, "2025-10-19"), author, "2025-10-21")

	_, err := f.svc.Detail(f.ctxOn(t, "2025-10-19"), viewer, quiz.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound), "scheduled quiz hidden from non-authors")

	// Once published the same viewer can see it.
	detail, err := f.svc.Detail(f.ctxOn(t, "2025-10-21"), viewer, quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, detail.Status)
	assert.False(t, detail.Editable, "non-author is never shown as editable")
}

func TestService_Lists_CursorWalk(t *testing.T) {
	f := newFixture(t)
	author := domain.UserID(uuid.New())
	createCtx := f.ctxOn(t, "2025-10-10")

	for _, d := range []string{"2025-10-19", "2025-10-19", "2025-10-18", "2025-10-20", "2025-10-20", "2025-10-21", "2025-10-21", "2025-10-22"} {
		f.mustCreate(t, createCtx, author, d)
	}
	ctx := f.ctxOn(t, "2025-10-20")

	t.Run("active", func(t *testing.T) {
		page, err := f.svc.ListActive(ctx, author, 1, "")
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		require.NotEmpty(t, page.NextCursor)

		page2, err := f.svc.ListActive(ctx, author, 10, page.NextCursor)
		require.NoError(t, err)
		require.Len(t, page2.Items, 1)
		assert.Empty(t, page2.NextCursor)
		assert.Greater(t, page2.Items[0].Quiz.ID, page.Items[0].Quiz.ID)
		for _, item := range append(page.Items, page2.Items...) {
			assert.Equal(t, models.StatusActive, item.Status)
		}
	})

	t.Run("scheduled", func(t *testing.T) {
		var all []service.QuizView
		token := ""
		for {
			page, err := f.svc.ListScheduled(ctx, author, 2, token)
			require.NoError(t, err)
			all = append(all, page.Items...)
			if page.NextCursor == "" {
				break
			}
			token = page.NextCursor
		}
		require.Len(t, all, 3)
		for _, item := range all {
			assert.Equal(t, models.StatusScheduled, item.Status)
			assert.True(t, item.Editable)
		}
		assert.Equal(t, "2025-10-21", all[0].Quiz.PublishDate.String())
		assert.Equal(t, "2025-10-22", all[2].Quiz.PublishDate.String())
	})

	t.Run("completed newest first", func(t *testing.T) {
		page, err := f.svc.ListCompleted(ctx, author, 10, "")
		require.NoError(t, err)
		require.Len(t, page.Items, 3)
		assert.Equal(t, "2025-10-19", page.Items[0].Quiz.PublishDate.String())
		assert.Equal(t, "2025-10-18", page.Items[2].Quiz.PublishDate.String())
	})

	t.Run("garbage cursor restarts from first page", func(t *testing.T) {
		clean, err := f.svc.ListScheduled(ctx, author, 10, "")
		require.NoError(t, err)
		dirty, err := f.svc.ListScheduled(ctx, author, 10, "!!not-a-cursor!!")
		require.NoError(t, err)
		assert.Equal(t, len(clean.Items), len(dirty.Items))
	})
}

func TestService_ListActive_ClampsPageSize(t *testing.T) {
	f := newFixture(t)
	author := domain.UserID(uuid.New())
	ctx := f.ctxOn(t, "2025-10-20")

	for i := 0; i < 60; i++ {
		f.mustCreate(t, ctx, author, "2025-10-20")
	}

	page, err := f.svc.ListActive(ctx, author, 500, "")
	require.NoError(t, err)
	assert.Len(t, page.Items, 50, "page size capped at 50")
	assert.NotEmpty(t, page.NextCursor)
}

func TestService_Update_ZeroRowClassification(t *testing.T) {
	f := newFixture(t)
	author := domain.UserID(uuid.New())
	other := domain.UserID(uuid.New())

	patch := models.QuizPatch{
		Question: models.Field[string]{Set: true, Valid: true, Value: "new"},
	}

	quiz := f.mustCreate(t, f.ctxOn(t, "2025-10-19"), author, "2025-10-21")

	t.Run("missing quiz is not found", func(t *testing.T) {
		_, err := f.svc.Update(f.ctxOn(t, "2025-10-19"), author, domain.QuizID(404), patch)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("foreign quiz is forbidden", func(t *testing.T) {
		_, err := f.svc.Update(f.ctxOn(t, "2025-10-19"), other, quiz.ID, patch)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("published quiz is a conflict", func(t *testing.T) {
		_, err := f.svc.Update(f.ctxOn(t, "2025-10-21"), author, quiz.ID, patch)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("scheduled quiz updates", func(t *testing.T) {
		view, err := f.svc.Update(f.ctxOn(t, "2025-10-19"), author, quiz.ID, patch)
		require.NoError(t, err)
		assert.Equal(t, "new", view.Quiz.Question)
	})

	t.Run("empty patch is a validation error", func(t *testing.T) {
		_, err := f.svc.Update(f.ctxOn(t, "2025-10-19"), author, quiz.ID, models.QuizPatch{})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestService_Delete(t *testing.T) {
	f := newFixture(t)
	author := domain.UserID(uuid.New())

	t.Run("scheduled quiz deletes", func(t *testing.T) {
		quiz := f.mustCreate(t, f.ctxOn(t, "2025-10-19"), author, "2025-10-21")
		require.NoError(t, f.svc.Delete(f.ctxOn(t, "2025-10-19"), author, quiz.ID))

		err := f.svc.Delete(f.ctxOn(t, "2025-10-19"), author, quiz.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("same-day quiz is a conflict", func(t *testing.T) {
		quiz := f.mustCreate(t, f.ctxOn(t, "2025-10-19"), author, "2025-10-21")
		err := f.svc.Delete(f.ctxOn(t, "2025-10-21"), author, quiz.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func TestService_SolveAndReward(t *testing.T) {
	f := newFixture(t)
	author := domain.UserID(uuid.New())
	recipient := domain.UserID(uuid.New())

	quiz := f.mustCreate(t, f.ctxOn(t, "2025-10-19"), author, "2025-10-20")
	ctx := f.ctxOn(t, "2025-10-20")

	t.Run("reward before solve is a conflict", func(t *testing.T) {
		_, err := f.svc.GrantReward(ctx, recipient, quiz.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("solve is idempotent", func(t *testing.T) {
		a, err := f.svc.Solve(ctx, recipient, quiz.ID)
		require.NoError(t, err)
		assert.True(t, a.IsSolved)
		require.NotNil(t, a.SolvedAt)
		solvedAt := *a.SolvedAt

		a, err = f.svc.Solve(ctx, recipient, quiz.ID)
		require.NoError(t, err)
		assert.True(t, a.IsSolved)
		assert.Equal(t, solvedAt, *a.SolvedAt, "second solve does not move the timestamp")
	})

	t.Run("reward after solve, idempotent", func(t *testing.T) {
		a, err := f.svc.GrantReward(ctx, recipient, quiz.ID)
		require.NoError(t, err)
		assert.True(t, a.RewardGranted)

		a, err = f.svc.GrantReward(ctx, recipient, quiz.ID)
		require.NoError(t, err)
		assert.True(t, a.RewardGranted)
	})

	t.Run("scheduled quiz cannot be solved", func(t *testing.T) {
		future := f.mustCreate(t, f.ctxOn(t, "2025-10-19"), author, "2025-10-25")

		_, err := f.svc.Solve(f.ctxOn(t, "2025-10-20"), author, future.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

		_, err = f.svc.Solve(f.ctxOn(t, "2025-10-20"), recipient, future.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound), "hidden from non-authors")
	})
}

func TestService_ProfileDegradation(t *testing.T) {
	f := newFixture(t)
	author := domain.UserID(uuid.New())
	f.dir.err = errors.New("directory is down")

	ctx := f.ctxOn(t, "2025-10-20")
	f.mustCreate(t, ctx, author, "2025-10-20")

	page, err := f.svc.ListActive(ctx, author, 10, "")
	require.NoError(t, err, "profile failure never fails the page")
	require.Len(t, page.Items, 1)
	assert.Equal(t, author, page.Items[0].Author.UserID)
	assert.Empty(t, page.Items[0].Author.DisplayName)
}

func TestService_RunTransitions(t *testing.T) {
	f := newFixture(t)
	author := domain.UserID(uuid.New())

	f.mustCreate(t, f.ctxOn(t, "2025-10-19"), author, "2025-10-20")
	f.mustCreate(t, f.ctxOn(t, "2025-10-19"), author, "2025-10-19")

	ctx := f.ctxOn(t, "2025-10-20")
	counts, err := f.svc.RunTransitions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Activated)
	assert.Equal(t, int64(1), counts.Completed)

	counts, err = f.svc.RunTransitions(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts.Activated)
	assert.Zero(t, counts.Completed)
}
