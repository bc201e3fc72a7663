package patients

import (
	"errors"
	"os"
	"testing"

	"github.com/hyorim/carenotes/internal/apperr"
	"github.com/hyorim/carenotes/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "carenotes-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var seed = Seed{
	Patients: []models.Patient{
		{ID: "25-0000032", Name: "김x애", BirthDate: "1935-03-15", RoomNumber: "301", AdmissionDate: "2024-01-15"},
		{ID: "25-0000040", Name: "박x수", RoomNumber: "205"},
	},
	Links: []models.CaregiverLink{
		{Caregiver: "daughter@example.com", PatientID: "25-0000032", Relationship: "딸"},
	},
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM patients`).Scan(&count); err != nil {
		t.Fatalf("patients table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM caregiver_patients`).Scan(&count); err != nil {
		t.Fatalf("caregiver_patients table missing: %v", err)
	}
}

func TestSeedAndGet(t *testing.T) {
	db := testDB(t)
	if err := db.Seed(seed); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	// Seeding twice is idempotent.
	if err := db.Seed(seed); err != nil {
		t.Fatalf("Seed again: %v", err)
	}
	if n, _ := db.Count(); n != 2 {
		t.Errorf("count = %d", n)
	}

	p, err := db.Get("25-0000032")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "김x애" || p.RoomNumber != "301" || p.AdmissionDate != "2024-01-15" {
		t.Errorf("patient = %+v", p)
	}

	if _, err := db.Get("nobody"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing: %v", err)
	}
}

func TestListOrdering(t *testing.T) {
	db := testDB(t)
	_ = db.Seed(seed)
	list, err := db.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "25-0000040" {
		t.Errorf("list = %+v", list)
	}
}

func TestListForCaregiver(t *testing.T) {
	db := testDB(t)
	_ = db.Seed(seed)

	list, err := db.ListForCaregiver("daughter@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != "25-0000032" || list[0].Relationship != "딸" {
		t.Errorf("list = %+v", list)
	}

	empty, err := db.ListForCaregiver("stranger@example.com")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("stranger = %v, %v", empty, err)
	}
}

func TestLinkUnknownPatient(t *testing.T) {
	db := testDB(t)
	err := db.Link(models.CaregiverLink{Caregiver: "a@example.com", PatientID: "ghost"})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v", err)
	}
	if err := db.Link(models.CaregiverLink{PatientID: "ghost"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("missing caregiver: %v", err)
	}
}

func TestUpsertAndDelete(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertPatient(models.Patient{Name: "no id"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("missing id: %v", err)
	}
	_ = db.UpsertPatient(models.Patient{ID: "p1", Name: "a"})
	_ = db.UpsertPatient(models.Patient{ID: "p1", Name: "b"})
	_ = db.Link(models.CaregiverLink{Caregiver: "c", PatientID: "p1", Relationship: "아들"})

	p, _ := db.Get("p1")
	if p == nil || p.Name != "b" {
		t.Fatalf("patient = %+v", p)
	}
	if err := db.DeletePatient("p1"); err != nil {
		t.Fatal(err)
	}
	if list, _ := db.ListForCaregiver("c"); len(list) != 0 {
		t.Errorf("links not cascaded: %v", list)
	}
	if err := db.DeletePatient("p1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete: %v", err)
	}
}
