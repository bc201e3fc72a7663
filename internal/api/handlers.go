package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hyorim/carenotes/internal/apperr"
	"github.com/hyorim/carenotes/internal/checksum"
	"github.com/hyorim/carenotes/internal/models"
	"github.com/hyorim/carenotes/internal/palette"
	"github.com/hyorim/carenotes/internal/patients"
	"github.com/hyorim/carenotes/internal/session"
	"github.com/hyorim/carenotes/internal/sse"
)

const defaultSuggestionLimit = 10

// Handler holds API route handlers.
type Handler struct {
	sessions  *session.Manager
	directory patients.Directory
	palette   *palette.Palette
	events    *sse.Broker
}

// NewHandler creates a new Handler. directory and events may be nil.
func NewHandler(sessions *session.Manager, directory patients.Directory, pal *palette.Palette, events *sse.Broker) *Handler {
	if pal == nil {
		pal = palette.Default()
	}
	return &Handler{sessions: sessions, directory: directory, palette: pal, events: events}
}

// fail maps domain errors to HTTP responses.
func fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrClosed):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// knownPatient checks patientID against a non-empty directory. An empty or
// missing directory admits every patient.
func (h *Handler) knownPatient(patientID string) error {
	if h.directory == nil {
		return nil
	}
	n, err := h.directory.Count()
	if err != nil || n == 0 {
		return err
	}
	_, err = h.directory.Get(patientID)
	return err
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("session not found"))
		return nil, false
	}
	return s, true
}

func (h *Handler) writeSession(w http.ResponseWriter, status int, s *session.Session) {
	rm, err := s.Snapshot()
	if err != nil {
		fail(w, "snapshot", err)
		return
	}
	writeJSON(w, status, SessionResponse{ID: s.ID, ReadModel: rm})
}

// ListPatients handles GET /api/patients.
//
//	@Summary		List patients, optionally those linked to a caregiver
//	@Tags			patients
//	@Produce		json
//	@Param			caregiver	query		string	false	"Caregiver account"
//	@Success		200			{object}	PatientListResponse
//	@Security		BearerAuth
//	@Router			/patients [get]
func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	if h.directory == nil {
		writeJSON(w, http.StatusOK, PatientListResponse{Patients: []models.Patient{}})
		return
	}
	var (
		list []models.Patient
		err  error
	)
	if caregiver := r.URL.Query().Get("caregiver"); caregiver != "" {
		list, err = h.directory.ListForCaregiver(caregiver)
	} else {
		list, err = h.directory.List()
	}
	if err != nil {
		fail(w, "list patients", err)
		return
	}
	writeJSON(w, http.StatusOK, PatientListResponse{Patients: list})
}

// GetPatient handles GET /api/patients/{patientID}.
//
//	@Summary		Get a patient from the directory
//	@Tags			patients
//	@Produce		json
//	@Param			patientID	path		string	true	"Patient id"
//	@Success		200			{object}	models.Patient
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/patients/{patientID} [get]
func (h *Handler) GetPatient(w http.ResponseWriter, r *http.Request) {
	if h.directory == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	p, err := h.directory.Get(chi.URLParam(r, "patientID"))
	if err != nil {
		fail(w, "get patient", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CreateSession handles POST /api/sessions.
//
//	@Summary		Open a timeline view for a patient
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PatientRequest	true	"Patient to load"
//	@Success		201		{object}	SessionResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions [post]
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req PatientRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := h.knownPatient(req.PatientID); err != nil {
		fail(w, "lookup patient", err)
		return
	}
	s, err := h.sessions.Create(req.PatientID)
	if err != nil {
		fail(w, "create session", err)
		return
	}
	w.Header().Set("Location", "/api/sessions/"+s.ID)
	h.writeSession(w, http.StatusCreated, s)
}

// GetSession handles GET /api/sessions/{sessionID}.
//
//	@Summary		Get the current read model of a view
//	@Tags			sessions
//	@Produce		json
//	@Param			sessionID		path		string	true	"Session id"
//	@Param			If-None-Match	header		string	false	"ETag of a cached read model"
//	@Success		200				{object}	SessionResponse
//	@Success		304				"Not modified"
//	@Failure		404				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{sessionID} [get]
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	rm, err := s.Snapshot()
	if err != nil {
		fail(w, "snapshot", err)
		return
	}
	body, err := json.Marshal(SessionResponse{ID: s.ID, ReadModel: rm})
	if err != nil {
		fail(w, "encode session", err)
		return
	}
	etag := checksum.ETag(body)
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append(body, '\n'))
}

// DeleteSession handles DELETE /api/sessions/{sessionID}.
//
//	@Summary		Close a timeline view
//	@Tags			sessions
//	@Param			sessionID	path	string	true	"Session id"
//	@Success		204			"Session closed"
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{sessionID} [delete]
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(chi.URLParam(r, "sessionID")); err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("session not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SwitchPatient handles PUT /api/sessions/{sessionID}/patient.
//
//	@Summary		Switch a view to another patient
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			sessionID	path		string			true	"Session id"
//	@Param			body		body		PatientRequest	true	"Patient to load"
//	@Success		202			{object}	SessionResponse
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{sessionID}/patient [put]
func (h *Handler) SwitchPatient(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req PatientRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := h.knownPatient(req.PatientID); err != nil {
		fail(w, "lookup patient", err)
		return
	}
	if err := s.Load(req.PatientID); err != nil {
		fail(w, "switch patient", err)
		return
	}
	h.writeSession(w, http.StatusAccepted, s)
}

// Reload handles POST /api/sessions/{sessionID}/reload.
//
//	@Summary		Fetch the current patient's notes again
//	@Tags			sessions
//	@Produce		json
//	@Param			sessionID	path		string	true	"Session id"
//	@Success		202			{object}	SessionResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{sessionID}/reload [post]
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Reload(); err != nil {
		fail(w, "reload", err)
		return
	}
	h.writeSession(w, http.StatusAccepted, s)
}

// SetQuery handles PUT /api/sessions/{sessionID}/query.
//
//	@Summary		Set the search query; the filter follows after the debounce interval
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			sessionID	path		string			true	"Session id"
//	@Param			body		body		QueryRequest	true	"Raw query"
//	@Success		200			{object}	SessionResponse
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{sessionID}/query [put]
func (h *Handler) SetQuery(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req QueryRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := s.SetQuery(req.Query); err != nil {
		fail(w, "set query", err)
		return
	}
	h.writeSession(w, http.StatusOK, s)
}

// SelectDate handles PUT /api/sessions/{sessionID}/selection.
//
//	@Summary		Select a date of the filtered timeline
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			sessionID	path		string				true	"Session id"
//	@Param			body		body		SelectionRequest	true	"Date to select"
//	@Success		200			{object}	SessionResponse
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{sessionID}/selection [put]
func (h *Handler) SelectDate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req SelectionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := s.SelectDate(req.Date); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("date not in view"))
			return
		}
		fail(w, "select date", err)
		return
	}
	h.writeSession(w, http.StatusOK, s)
}

// ToggleKeyword handles POST /api/sessions/{sessionID}/keywords/toggle.
//
//	@Summary		Apply a keyword as the query, or clear it when already active
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			sessionID	path		string					true	"Session id"
//	@Param			body		body		ToggleKeywordRequest	true	"Keyword chip"
//	@Success		200			{object}	SessionResponse
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{sessionID}/keywords/toggle [post]
func (h *Handler) ToggleKeyword(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req ToggleKeywordRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if _, err := s.ToggleKeyword(req.Keyword); err != nil {
		fail(w, "toggle keyword", err)
		return
	}
	h.writeSession(w, http.StatusOK, s)
}

// Suggestions handles GET /api/sessions/{sessionID}/suggestions.
//
//	@Summary		Suggest keywords for a partial query
//	@Tags			sessions
//	@Produce		json
//	@Param			sessionID	path		string	true	"Session id"
//	@Param			q			query		string	false	"Partial query"
//	@Param			limit		query		int		false	"Max suggestions"
//	@Success		200			{object}	SuggestionsResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{sessionID}/suggestions [get]
func (h *Handler) Suggestions(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultSuggestionLimit
	}
	out, err := h.sessions.Suggest(chi.URLParam(r, "sessionID"), r.URL.Query().Get("q"), limit)
	if err != nil {
		fail(w, "suggest", err)
		return
	}
	writeJSON(w, http.StatusOK, SuggestionsResponse{Suggestions: out})
}

// Events handles GET /api/sessions/{sessionID}/events.
//
//	@Summary		Stream view updates as Server-Sent Events
//	@Tags			sessions
//	@Produce		text/event-stream
//	@Param			sessionID	path	string	true	"Session id"
//	@Success		200			"Event stream"
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{sessionID}/events [get]
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.events.ServeTopic(w, r, s.ID)
}

// Palette handles GET /api/palette.
//
//	@Summary		Get the keyword color palette
//	@Tags			palette
//	@Produce		json
//	@Success		200	{object}	palette.Config
//	@Security		BearerAuth
//	@Router			/palette [get]
func (h *Handler) Palette(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.palette.Config())
}
