// Package handler exposes the quiz lifecycle API over HTTP.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"quizdeck/internal/profile"
	"quizdeck/internal/quiz/models"
	"quizdeck/internal/quiz/service"
	"quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domain-errors"
	"quizdeck/pkg/platform/httputil"
	"quizdeck/pkg/requestcontext"
)

// Handler serves the /quizzes routes.
type Handler struct {
	service *service.Service
	logger  *slog.Logger
}

func New(svc *service.Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Routes returns the router for the quiz API. Callers mount it under
// /quizzes behind the auth middleware.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/active", h.listActive)
	r.Get("/scheduled", h.listScheduled)
	r.Get("/completed", h.listCompleted)
	r.Post("/", h.create)
	r.Route("/{quizID}", func(r chi.Router) {
		r.Get("/", h.detail)
		r.Patch("/", h.update)
		r.Delete("/", h.delete)
		r.Post("/solve", h.solve)
		r.Post("/reward", h.reward)
	})

	return r
}

type authorResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

type quizResponse struct {
	ID           int64          `json:"id"`
	PublishDate  string         `json:"publish_date"`
	Question     string         `json:"question"`
	Answer       string         `json:"answer"`
	Hint         *string        `json:"hint,omitempty"`
	RewardPoints int            `json:"reward_points"`
	Status       string         `json:"status"`
	Editable     bool           `json:"editable"`
	Author       authorResponse `json:"author"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type listResponse struct {
	Items      []quizResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type assignmentResponse struct {
	QuizID        int64      `json:"quiz_id"`
	IsSolved      bool       `json:"is_solved"`
	RewardGranted bool       `json:"reward_granted"`
	SolvedAt      *time.Time `json:"solved_at,omitempty"`
}

type detailResponse struct {
	quizResponse
	Assignment *assignmentResponse `json:"assignment,omitempty"`
}

type createRequest struct {
	PublishDate  string  `json:"publish_date"`
	Question     string  `json:"question"`
	Answer       string  `json:"answer"`
	Hint         *string `json:"hint"`
	RewardPoints int     `json:"reward_points"`
}

func (h *Handler) listActive(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListActive(r.Context(), requestcontext.UserID(r.Context()), queryLimit(r), r.URL.Query().Get("cursor"))
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(page))
}

func (h *Handler) listScheduled(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListScheduled(r.Context(), requestcontext.UserID(r.Context()), queryLimit(r), r.URL.Query().Get("cursor"))
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(page))
}

func (h *Handler) listCompleted(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListCompleted(r.Context(), requestcontext.UserID(r.Context()), queryLimit(r), r.URL.Query().Get("cursor"))
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(page))
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	quizID, err := pathQuizID(r)
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	detail, err := h.service.Detail(r.Context(), requestcontext.UserID(r.Context()), quizID)
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	resp := detailResponse{quizResponse: toQuizResponse(detail.QuizView)}
	if detail.Assignment != nil {
		a := toAssignmentResponse(detail.Assignment)
		resp.Assignment = &a
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r, w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON body"))
		return
	}
	view, err := h.service.Create(r.Context(), requestcontext.UserID(r.Context()), service.CreateInput{
		PublishDate:  req.PublishDate,
		Question:     req.Question,
		Answer:       req.Answer,
		Hint:         req.Hint,
		RewardPoints: req.RewardPoints,
	})
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toQuizResponse(*view))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	quizID, err := pathQuizID(r)
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	var patch models.QuizPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.writeError(r, w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON body"))
		return
	}
	view, err := h.service.Update(r.Context(), requestcontext.UserID(r.Context()), quizID, patch)
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toQuizResponse(*view))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	quizID, err := pathQuizID(r)
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	if err := h.service.Delete(r.Context(), requestcontext.UserID(r.Context()), quizID); err != nil {
		h.writeError(r, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) solve(w http.ResponseWriter, r *http.Request) {
	quizID, err := pathQuizID(r)
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	assignment, err := h.service.Solve(r.Context(), requestcontext.UserID(r.Context()), quizID)
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAssignmentResponse(assignment))
}

func (h *Handler) reward(w http.ResponseWriter, r *http.Request) {
	quizID, err := pathQuizID(r)
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	assignment, err := h.service.GrantReward(r.Context(), requestcontext.UserID(r.Context()), quizID)
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAssignmentResponse(assignment))
}

func (h *Handler) writeError(r *http.Request, w http.ResponseWriter, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}

func pathQuizID(r *http.Request) (domain.QuizID, error) {
	quizID, err := domain.ParseQuizID(chi.URLParam(r, "quizID"))
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid quiz id")
	}
	return quizID, nil
}

func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

func toListResponse(page *service.ListPage) listResponse {
	items := make([]quizResponse, len(page.Items))
	for i, item := range page.Items {
		items[i] = toQuizResponse(item)
	}
	return listResponse{Items: items, NextCursor: page.NextCursor}
}

func toQuizResponse(view service.QuizView) quizResponse {
	return quizResponse{
		ID:           view.Quiz.ID.Int64(),
		PublishDate:  view.Quiz.PublishDate.String(),
		Question:     view.Quiz.Question,
		Answer:       view.Quiz.Answer,
		Hint:         view.Quiz.Hint,
		RewardPoints: view.Quiz.RewardPoints,
		Status:       string(view.Status),
		Editable:     view.Editable,
		Author:       toAuthorResponse(view.Author),
		CreatedAt:    view.Quiz.CreatedAt,
		UpdatedAt:    view.Quiz.UpdatedAt,
	}
}

func toAuthorResponse(p profile.DisplayProfile) authorResponse {
	return authorResponse{
		ID:          p.UserID.String(),
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
	}
}

func toAssignmentResponse(a *models.Assignment) assignmentResponse {
	return assignmentResponse{
		QuizID:        a.QuizID.Int64(),
		IsSolved:      a.IsSolved,
		RewardGranted: a.RewardGranted,
		SolvedAt:      a.SolvedAt,
	}
}
