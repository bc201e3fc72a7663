// Package patients provides the SQLite-backed patient directory: admitted
// patients and the caregivers allowed to view them.
package patients

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyorim/carenotes/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS patients (
	patient_id     TEXT PRIMARY KEY,
	name           TEXT NOT NULL DEFAULT '',
	birth_date     TEXT NOT NULL DEFAULT '',
	room_number    TEXT NOT NULL DEFAULT '',
	admission_date TEXT NOT NULL DEFAULT '',
	updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS caregiver_patients (
	caregiver    TEXT NOT NULL,
	patient_id   TEXT NOT NULL REFERENCES patients(patient_id) ON DELETE CASCADE,
	relationship TEXT NOT NULL DEFAULT '',
	UNIQUE(caregiver, patient_id)
);

CREATE INDEX IF NOT EXISTS idx_caregiver_patients_caregiver ON caregiver_patients(caregiver);
`

// Directory is the read side of the patient directory.
type Directory interface {
	Get(patientID string) (*models.Patient, error)
	List() ([]models.Patient, error)
	ListForCaregiver(caregiver string) ([]models.Patient, error)
	Count() (int, error)
}

// Verify *DB satisfies Directory at compile time.
var _ Directory = (*DB)(nil)

// DB wraps a sql.DB with directory operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("patients: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("patients: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("patients: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
