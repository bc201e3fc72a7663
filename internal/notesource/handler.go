package notesource

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/hyorim/carenotes/internal/apperr"
	"github.com/hyorim/carenotes/internal/models"
)

type notesResponse struct {
	OK        bool              `json:"ok"`
	PatientID string            `json:"patient_id"`
	Notes     []models.DayEntry `json:"notes"`
}

type detailResponse struct {
	Detail string `json:"detail"`
}

// Register mounts GET /patients/{patientID}/nursing-notes on r.
func (s *Store) Register(r chi.Router, logger *slog.Logger) {
	r.Get("/patients/{patientID}/nursing-notes", func(w http.ResponseWriter, req *http.Request) {
		id, err := url.PathUnescape(chi.URLParam(req, "patientID"))
		if err != nil {
			writeDetail(w, http.StatusBadRequest, "invalid patient id")
			return
		}
		notes, err := s.Notes(req.Context(), id)
		switch {
		case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrInvalidInput):
			writeDetail(w, http.StatusNotFound, "환자 기록을 찾을 수 없습니다: "+id)
			return
		case err != nil:
			logger.Error("notesource: read failed", slog.String("patient_id", id), slog.String("error", err.Error()))
			writeDetail(w, http.StatusInternalServerError, "failed to read notes")
			return
		}
		writeBody(w, http.StatusOK, notesResponse{OK: true, PatientID: id, Notes: notes})
	})
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeBody(w, status, detailResponse{Detail: detail})
}

func writeBody(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
