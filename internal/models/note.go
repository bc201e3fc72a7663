// Package models defines the domain types for carenotes.
package models

// OtherKeyword is the category reported for items that carry no keyword.
const OtherKeyword = "기타"

// DayEntry is one calendar date's worth of nursing notes.
type DayEntry struct {
	Date  string     `json:"date"` // YYYY-MM-DD
	Items []NoteItem `json:"items"`
}

// NoteItem is a single keyword+detail observation.
type NoteItem struct {
	Keyword string `json:"keyword,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// Category returns the keyword, or OtherKeyword when it is empty.
func (it NoteItem) Category() string {
	if it.Keyword == "" {
		return OtherKeyword
	}
	return it.Keyword
}

// KeywordStat is a derived keyword frequency.
type KeywordStat struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

// Segment is one run of highlighted or plain text.
type Segment struct {
	Text  string `json:"text"`
	Match bool   `json:"match"`
}

// Patient is a directory record for an admitted patient.
type Patient struct {
	ID            string `json:"patient_id" yaml:"patient_id"`
	Name          string `json:"patient_name" yaml:"name"`
	BirthDate     string `json:"birth_date,omitempty" yaml:"birth_date"`
	RoomNumber    string `json:"room_number,omitempty" yaml:"room_number"`
	AdmissionDate string `json:"admission_date,omitempty" yaml:"admission_date"`
	Relationship  string `json:"relationship,omitempty" yaml:"-"`
}

// CaregiverLink connects a caregiver account to a patient.
type CaregiverLink struct {
	Caregiver    string `yaml:"caregiver"`
	PatientID    string `yaml:"patient_id"`
	Relationship string `yaml:"relationship"`
}
