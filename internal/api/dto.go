package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/hyorim/carenotes/internal/controller"
	"github.com/hyorim/carenotes/internal/models"
	"github.com/hyorim/carenotes/internal/session"
)

// PatientRequest selects a patient, for session creation and switching.
type PatientRequest struct {
	PatientID string `json:"patient_id" example:"25-0000032" validate:"required"`
}

// Validate implements validation.Validatable.
func (r *PatientRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.PatientID, validation.Required, validation.Length(1, 64)),
	)
}

// QueryRequest sets the raw search query. An empty query clears the filter.
type QueryRequest struct {
	Query string `json:"query" example:"가래"`
}

// Validate implements validation.Validatable.
func (r *QueryRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Query, validation.RuneLength(0, 200)),
	)
}

// SelectionRequest selects a date in the filtered timeline.
type SelectionRequest struct {
	Date string `json:"date" example:"2025-07-24" validate:"required"`
}

// Validate implements validation.Validatable.
func (r *SelectionRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Date, validation.Required, validation.Date("2006-01-02")),
	)
}

// ToggleKeywordRequest toggles a keyword chip.
type ToggleKeywordRequest struct {
	Keyword string `json:"keyword" example:"발열" validate:"required"`
}

// Validate implements validation.Validatable.
func (r *ToggleKeywordRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Keyword, validation.Required, validation.RuneLength(1, 100)),
	)
}

// SessionResponse is a session's read model together with its id.
type SessionResponse struct {
	ID string `json:"id" example:"6f1c2a9e-3d4b-4e8f-9a51-0c7d2b6e8f10" validate:"required"`
	controller.ReadModel
}

// PatientListResponse wraps directory listings.
type PatientListResponse struct {
	Patients []models.Patient `json:"patients" validate:"required"`
}

// SuggestionsResponse wraps keyword suggestions.
type SuggestionsResponse struct {
	Suggestions []session.Suggestion `json:"suggestions" validate:"required"`
}
