package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizdeck/internal/platform/clock"
	"quizdeck/internal/profile"
	"quizdeck/internal/quiz/handler"
	"quizdeck/internal/quiz/service"
	"quizdeck/internal/quiz/store"
	"quizdeck/pkg/domain"
	"quizdeck/pkg/requestcontext"
)

type fixture struct {
	router   chi.Router
	store    *store.InMemoryStore
	calendar *clock.BusinessCalendar

	// userID and now are injected into every request's context, standing in
	// for the auth and request-time middleware.
	userID domain.UserID
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	calendar, err := clock.NewBusinessCalendar("Asia/Seoul")
	require.NoError(t, err)

	st := store.NewInMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(st, profile.NoopDirectory{}, calendar, logger, nil)

	f := &fixture{
		store:    st,
		calendar: calendar,
		userID:   domain.UserID(uuid.New()),
	}
	f.setToday(t, "2025-10-20")

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithUserID(r.Context(), f.userID)
			ctx = requestcontext.WithTime(ctx, f.now)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Mount("/quizzes", handler.New(svc, logger).Routes())
	f.router = router
	return f
}

func (f *fixture) setToday(t *testing.T, date string) {
	t.Helper()
	d, err := domain.ParseCalendarDate(date)
	require.NoError(t, err)
	start, _ := domain.DayBoundary(d, f.calendar.Location())
	f.now = start.Add(10 * time.Hour)
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHandler_CreateAndDetail(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/quizzes/", map[string]any{
		"publish_date":  "2025-10-21",
		"question":      "q?",
		"answer":        "a",
		"hint":          "starts with a",
		"reward_points": 10,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decodeBody(t, rec)
	assert.Equal(t, "scheduled", created["status"])
	assert.Equal(t, true, created["editable"])
	assert.Equal(t, "2025-10-21", created["publish_date"])
	quizID := int64(created["id"].(float64))

	rec = f.do(t, http.MethodGet, quizPath(quizID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decodeBody(t, rec)
	assert.Equal(t, "q?", detail["question"])
	assert.Nil(t, detail["assignment"], "no assignment while scheduled")
}

func TestHandler_Create_Invalid(t *testing.T) {
	f := newFixture(t)

	t.Run("past publish date", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/quizzes/", map[string]any{
			"publish_date": "2025-10-19", "question": "q?", "answer": "a",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "validation_error", decodeBody(t, rec)["error"])
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/quizzes/", bytes.NewBufferString("{not json"))
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandler_Lists(t *testing.T) {
	f := newFixture(t)

	for _, d := range []string{"2025-10-20", "2025-10-20", "2025-10-21", "2025-10-22"} {
		rec := f.do(t, http.MethodPost, "/quizzes/", map[string]any{
			"publish_date": d, "question": "q?", "answer": "a",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	t.Run("active with cursor", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/quizzes/active?limit=1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		require.Len(t, body["items"], 1)
		token, ok := body["next_cursor"].(string)
		require.True(t, ok, "expected a continuation token")

		rec = f.do(t, http.MethodGet, "/quizzes/active?limit=10&cursor="+token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body = decodeBody(t, rec)
		assert.Len(t, body["items"], 1)
		_, hasNext := body["next_cursor"]
		assert.False(t, hasNext, "last page has no cursor")
	})

	t.Run("scheduled", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/quizzes/scheduled", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decodeBody(t, rec)["items"], 2)
	})

	t.Run("completed is empty today", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/quizzes/completed", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decodeBody(t, rec)["items"], 0)
	})
}

func TestHandler_PatchAndDelete(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/quizzes/", map[string]any{
		"publish_date": "2025-10-21", "question": "q?", "answer": "a", "hint": "h",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	quizID := int64(decodeBody(t, rec)["id"].(float64))

	t.Run("patch with explicit null clears hint", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, quizPath(quizID),
			bytes.NewBufferString(`{"question":"q2?","hint":null}`))
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		body := decodeBody(t, rec)
		assert.Equal(t, "q2?", body["question"])
		_, hasHint := body["hint"]
		assert.False(t, hasHint, "cleared hint is omitted")
	})

	t.Run("empty patch is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, quizPath(quizID), bytes.NewBufferString(`{}`))
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("patch after publish conflicts", func(t *testing.T) {
		f.setToday(t, "2025-10-21")
		defer f.setToday(t, "2025-10-20")

		req := httptest.NewRequest(http.MethodPatch, quizPath(quizID),
			bytes.NewBufferString(`{"question":"late"}`))
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("delete", func(t *testing.T) {
		rec := f.do(t, http.MethodDelete, quizPath(quizID), nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = f.do(t, http.MethodGet, quizPath(quizID), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandler_SolveAndReward(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/quizzes/", map[string]any{
		"publish_date": "2025-10-20", "question": "q?", "answer": "a",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	quizID := int64(decodeBody(t, rec)["id"].(float64))

	t.Run("reward before solve conflicts", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, quizPath(quizID)+"/reward", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("solve then reward", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, quizPath(quizID)+"/solve", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, decodeBody(t, rec)["is_solved"])

		rec = f.do(t, http.MethodPost, quizPath(quizID)+"/reward", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, decodeBody(t, rec)["reward_granted"])
	})
}

func TestHandler_InvalidQuizID(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/quizzes/abc", "/quizzes/0", "/quizzes/-1"} {
		rec := f.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func quizPath(id int64) string {
	return "/quizzes/" + strconv.FormatInt(id, 10)
}
