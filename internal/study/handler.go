package study

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"hamstudy/internal/app/apiresp"
	"hamstudy/internal/auth"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc studyService
}

type studyService interface {
	ToggleBookmark(ctx context.Context, userID, questionID int64) (bool, error)
	ListBookmarks(ctx context.Context, userID int64) ([]BookmarkedQuestion, error)
	CreateTerm(ctx context.Context, in UpsertTermInput) (*GlossaryTerm, error)
	UpdateTerm(ctx context.Context, id int64, in UpsertTermInput) (*GlossaryTerm, error)
	DeleteTerm(ctx context.Context, id int64) error
	ListFlashcards(ctx context.Context, userID int64, licenseClass string) ([]Flashcard, error)
	MarkFlashcard(ctx context.Context, userID, termID int64, known bool) error
	UserReadiness(ctx context.Context, userID int64, licenseClass string) (*Readiness, error)
}

type response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type markFlashcardRequest struct {
	Known bool `json:"known"`
}

func NewHandler(svc studyService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) ToggleBookmark(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	questionID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || questionID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid question id"})
		return
	}

	bookmarked, err := h.svc.ToggleBookmark(r.Context(), user.ID, questionID)
	if err != nil {
		switch {
		case errors.Is(err, ErrQuestionNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]any{"bookmarked": bookmarked}})
}

func (h *Handler) ListBookmarks(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	items, err := h.svc.ListBookmarks(r.Context(), user.ID)
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: items})
}

func (h *Handler) ListFlashcards(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	items, err := h.svc.ListFlashcards(r.Context(), user.ID, r.URL.Query().Get("license_class"))
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: items})
}

func (h *Handler) MarkFlashcard(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	termID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || termID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid term id"})
		return
	}

	var req markFlashcardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	if err := h.svc.MarkFlashcard(r.Context(), user.ID, termID, req.Known); err != nil {
		switch {
		case errors.Is(err, ErrTermNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]any{"known": req.Known}})
}

func (h *Handler) CreateTerm(w http.ResponseWriter, r *http.Request) {
	var in UpsertTermInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	term, err := h.svc.CreateTerm(r.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusCreated, response{OK: true, Data: term})
}

func (h *Handler) UpdateTerm(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid term id"})
		return
	}

	var in UpsertTermInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	term, err := h.svc.UpdateTerm(r.Context(), id, in)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrTermNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: term})
}

func (h *Handler) DeleteTerm(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid term id"})
		return
	}

	if err := h.svc.DeleteTerm(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, ErrTermNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]any{"deleted": true}})
}

func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	licenseClass := r.URL.Query().Get("license_class")
	if licenseClass == "" {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "license_class is required"})
		return
	}

	readiness, err := h.svc.UserReadiness(r.Context(), user.ID, licenseClass)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownLicenseClass):
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: readiness})
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload response) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
