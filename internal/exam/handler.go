package exam

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"hamstudy/internal/app/apiresp"
	"hamstudy/internal/auth"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc sessionService
}

type sessionService interface {
	StartSession(ctx context.Context, in StartSessionInput) (*Session, error)
	GetSession(ctx context.Context, sessionID string) (*SessionSummary, error)
	GetSessionQuestion(ctx context.Context, sessionID string, position int) (*SessionQuestion, error)
	SaveAnswer(ctx context.Context, in SaveAnswerInput) (*AnswerFeedback, error)
	SubmitSession(ctx context.Context, sessionID string) (*SessionSummary, error)
	GetSessionResult(ctx context.Context, sessionID string) (*SessionResult, error)
	GetSessionOwner(ctx context.Context, sessionID string) (int64, error)
	ListUserSessions(ctx context.Context, userID int64, limit int) ([]SessionSummary, error)
}

type response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type startSessionRequest struct {
	LicenseClass  string   `json:"license_class"`
	Mode          string   `json:"mode"`
	QuestionCount int      `json:"question_count"`
	Subelements   []string `json:"subelements"`
}

type saveAnswerRequest struct {
	Answer string `json:"answer"`
}

func NewHandler(svc sessionService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.LicenseClass) == "" {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "license_class is required"})
		return
	}

	session, err := h.svc.StartSession(r.Context(), StartSessionInput{
		UserID:        user.ID,
		LicenseClass:  req.LicenseClass,
		Mode:          req.Mode,
		QuestionCount: req.QuestionCount,
		Subelements:   req.Subelements,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownLicenseClass):
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrPoolEmpty):
			writeJSON(w, r, http.StatusConflict, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusCreated, response{OK: true, Data: session})
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := h.authorizeSession(r)
	if err != nil {
		h.writeAccessError(w, r, err)
		return
	}

	summary, err := h.svc.GetSession(r.Context(), sessionID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: summary})
}

func (h *Handler) Question(w http.ResponseWriter, r *http.Request) {
	sessionID, err := h.authorizeSession(r)
	if err != nil {
		h.writeAccessError(w, r, err)
		return
	}

	position, err := strconv.Atoi(chi.URLParam(r, "position"))
	if err != nil || position <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid question position"})
		return
	}

	sq, err := h.svc.GetSessionQuestion(r.Context(), sessionID, position)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: sq})
}

func (h *Handler) SaveAnswer(w http.ResponseWriter, r *http.Request) {
	sessionID, err := h.authorizeSession(r)
	if err != nil {
		h.writeAccessError(w, r, err)
		return
	}

	position, err := strconv.Atoi(chi.URLParam(r, "position"))
	if err != nil || position <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid question position"})
		return
	}

	var req saveAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	feedback, err := h.svc.SaveAnswer(r.Context(), SaveAnswerInput{
		SessionID: sessionID,
		Position:  position,
		Answer:    req.Answer,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: feedback})
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	sessionID, err := h.authorizeSession(r)
	if err != nil {
		h.writeAccessError(w, r, err)
		return
	}

	summary, err := h.svc.SubmitSession(r.Context(), sessionID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: summary})
}

func (h *Handler) Result(w http.ResponseWriter, r *http.Request) {
	sessionID, err := h.authorizeSession(r)
	if err != nil {
		h.writeAccessError(w, r, err)
		return
	}

	result, err := h.svc.GetSessionResult(r.Context(), sessionID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: result})
}

func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sessions, err := h.svc.ListUserSessions(r.Context(), user.ID, limit)
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: sessions})
}

// authorizeSession resolves the session id in the URL and checks the
// current user may access it: admins always, otherwise only the owner.
func (h *Handler) authorizeSession(r *http.Request) (string, error) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		return "", errors.New("unauthorized")
	}

	sessionID := strings.TrimSpace(chi.URLParam(r, "id"))
	if sessionID == "" {
		return "", ErrSessionNotFound
	}

	if user.Role == "admin" {
		return sessionID, nil
	}

	ownerID, err := h.svc.GetSessionOwner(r.Context(), sessionID)
	if err != nil {
		return "", err
	}
	if ownerID != user.ID {
		return "", ErrSessionForbidden
	}
	return sessionID, nil
}

func (h *Handler) writeAccessError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
	case errors.Is(err, ErrSessionForbidden):
		writeJSON(w, r, http.StatusForbidden, response{OK: false, Error: "forbidden"})
	case err.Error() == "unauthorized":
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
	default:
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
	case errors.Is(err, ErrSessionNotEditable), errors.Is(err, ErrSessionNotFinal):
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
	case errors.Is(err, ErrInvalidPosition), errors.Is(err, ErrInvalidAnswer):
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
	default:
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload response) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
