package patients

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/hyorim/carenotes/internal/apperr"
	"github.com/hyorim/carenotes/internal/models"
)

// Seed is the initial directory content loaded from configuration.
type Seed struct {
	Patients []models.Patient       `yaml:"patients"`
	Links    []models.CaregiverLink `yaml:"links"`
}

// UpsertPatient inserts or replaces a patient record.
func (db *DB) UpsertPatient(p models.Patient) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("patients: patient id is required: %w", apperr.ErrInvalidInput)
	}
	_, err := db.conn.Exec(`
		INSERT INTO patients (patient_id, name, birth_date, room_number, admission_date, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(patient_id) DO UPDATE SET
			name           = excluded.name,
			birth_date     = excluded.birth_date,
			room_number    = excluded.room_number,
			admission_date = excluded.admission_date,
			updated_at     = excluded.updated_at
	`, p.ID, p.Name, p.BirthDate, p.RoomNumber, p.AdmissionDate)
	if err != nil {
		return fmt.Errorf("patients: upsert %s: %w", p.ID, err)
	}
	return nil
}

// Link grants caregiver access to an existing patient.
func (db *DB) Link(l models.CaregiverLink) error {
	if l.Caregiver == "" || l.PatientID == "" {
		return fmt.Errorf("patients: caregiver and patient id are required: %w", apperr.ErrInvalidInput)
	}
	_, err := db.conn.Exec(`
		INSERT INTO caregiver_patients (caregiver, patient_id, relationship)
		VALUES (?, ?, ?)
		ON CONFLICT(caregiver, patient_id) DO UPDATE SET relationship = excluded.relationship
	`, l.Caregiver, l.PatientID, l.Relationship)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return fmt.Errorf("patients: link %s: unknown patient %s: %w", l.Caregiver, l.PatientID, apperr.ErrNotFound)
		}
		return fmt.Errorf("patients: link %s: %w", l.Caregiver, err)
	}
	return nil
}

// DeletePatient removes a patient and its caregiver links.
func (db *DB) DeletePatient(patientID string) error {
	res, err := db.conn.Exec(`DELETE FROM patients WHERE patient_id = ?`, patientID)
	if err != nil {
		return fmt.Errorf("patients: delete %s: %w", patientID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("patients: %s: %w", patientID, apperr.ErrNotFound)
	}
	return nil
}

// Seed applies s in a single transaction.
func (db *DB) Seed(s Seed) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("patients: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, p := range s.Patients {
		if p.ID == "" {
			return fmt.Errorf("patients: seed patient without id: %w", apperr.ErrInvalidInput)
		}
		if _, err := tx.Exec(`
			INSERT INTO patients (patient_id, name, birth_date, room_number, admission_date)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(patient_id) DO UPDATE SET
				name           = excluded.name,
				birth_date     = excluded.birth_date,
				room_number    = excluded.room_number,
				admission_date = excluded.admission_date
		`, p.ID, p.Name, p.BirthDate, p.RoomNumber, p.AdmissionDate); err != nil {
			return fmt.Errorf("patients: seed %s: %w", p.ID, err)
		}
	}
	for _, l := range s.Links {
		if _, err := tx.Exec(`
			INSERT INTO caregiver_patients (caregiver, patient_id, relationship)
			VALUES (?, ?, ?)
			ON CONFLICT(caregiver, patient_id) DO UPDATE SET relationship = excluded.relationship
		`, l.Caregiver, l.PatientID, l.Relationship); err != nil {
			return fmt.Errorf("patients: seed link %s/%s: %w", l.Caregiver, l.PatientID, err)
		}
	}
	return tx.Commit()
}

// Get returns one patient.
func (db *DB) Get(patientID string) (*models.Patient, error) {
	var p models.Patient
	err := db.conn.QueryRow(`
		SELECT patient_id, name, birth_date, room_number, admission_date
		FROM patients WHERE patient_id = ?
	`, patientID).Scan(&p.ID, &p.Name, &p.BirthDate, &p.RoomNumber, &p.AdmissionDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("patients: %s: %w", patientID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("patients: get %s: %w", patientID, err)
	}
	return &p, nil
}

// List returns every patient ordered by room then name.
func (db *DB) List() ([]models.Patient, error) {
	rows, err := db.conn.Query(`
		SELECT patient_id, name, birth_date, room_number, admission_date, ''
		FROM patients ORDER BY room_number, name, patient_id
	`)
	if err != nil {
		return nil, fmt.Errorf("patients: list: %w", err)
	}
	return scanPatients(rows)
}

// ListForCaregiver returns the patients linked to caregiver, with the
// relationship filled in.
func (db *DB) ListForCaregiver(caregiver string) ([]models.Patient, error) {
	rows, err := db.conn.Query(`
		SELECT p.patient_id, p.name, p.birth_date, p.room_number, p.admission_date, c.relationship
		FROM caregiver_patients c
		JOIN patients p ON p.patient_id = c.patient_id
		WHERE c.caregiver = ?
		ORDER BY p.room_number, p.name, p.patient_id
	`, caregiver)
	if err != nil {
		return nil, fmt.Errorf("patients: list for %s: %w", caregiver, err)
	}
	return scanPatients(rows)
}

// Count returns the number of patients.
func (db *DB) Count() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM patients`).Scan(&n); err != nil {
		return 0, fmt.Errorf("patients: count: %w", err)
	}
	return n, nil
}

func scanPatients(rows *sql.Rows) ([]models.Patient, error) {
	defer rows.Close()
	out := []models.Patient{}
	for rows.Next() {
		var p models.Patient
		if err := rows.Scan(&p.ID, &p.Name, &p.BirthDate, &p.RoomNumber, &p.AdmissionDate, &p.Relationship); err != nil {
			return nil, fmt.Errorf("patients: scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
