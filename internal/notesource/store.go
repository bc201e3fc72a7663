// Package notesource serves nursing notes from a local directory, in the same
// shape as the upstream records service.
//
// Each patient is one file named after the patient id: <id>.json holds a
// notes payload (bare array or envelope), <id>.txt holds raw records that are
// parsed on every read.
package notesource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyorim/carenotes/internal/apperr"
	"github.com/hyorim/carenotes/internal/models"
	"github.com/hyorim/carenotes/internal/parser"
	"github.com/hyorim/carenotes/internal/timeline"
)

// Extensions recognised in the source directory, in lookup order.
var Extensions = []string{".json", ".txt"}

// Store reads patient notes from a directory.
type Store struct {
	root   string
	parse  parser.Options
	fields []string
}

// Option configures a Store.
type Option func(*Store)

// WithParseOptions controls how .txt records are parsed.
func WithParseOptions(o parser.Options) Option {
	return func(s *Store) { s.parse = o }
}

// WithEnvelopeFields sets the envelope keys accepted in .json files.
func WithEnvelopeFields(fields ...string) Option {
	return func(s *Store) { s.fields = fields }
}

// NewStore returns a store rooted at dir, which must already exist.
func NewStore(dir string, opts ...Option) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("notesource: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("notesource: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("notesource: root is not a directory: %s", abs)
	}
	s := &Store{root: abs}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the absolute source directory.
func (s *Store) Root() string { return s.root }

// FetchNotes returns the notes payload of patientID as JSON. Raw record files
// are converted to a bare array of day entries.
func (s *Store) FetchNotes(ctx context.Context, patientID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.resolve(patientID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("notesource: read %s: %w", filepath.Base(path), err)
	}
	if filepath.Ext(path) == ".json" {
		return data, nil
	}
	out, err := json.Marshal(parser.BuildNotes(data, s.parse))
	if err != nil {
		return nil, fmt.Errorf("notesource: encode %s: %w", patientID, err)
	}
	return out, nil
}

// Notes returns the decoded day entries of patientID.
func (s *Store) Notes(ctx context.Context, patientID string) ([]models.DayEntry, error) {
	raw, err := s.FetchNotes(ctx, patientID)
	if err != nil {
		return nil, err
	}
	notes := timeline.DecodePayload(raw, s.fields...)
	if notes == nil {
		notes = []models.DayEntry{}
	}
	return notes, nil
}

// resolve maps patientID to an existing file under root.
func (s *Store) resolve(patientID string) (string, error) {
	if patientID == "" || patientID == "." || patientID == ".." ||
		strings.ContainsAny(patientID, `/\`) || strings.ContainsRune(patientID, 0) {
		return "", fmt.Errorf("notesource: invalid patient id %q: %w", patientID, apperr.ErrInvalidInput)
	}
	for _, ext := range Extensions {
		p := filepath.Join(s.root, patientID+ext)
		info, err := os.Stat(p)
		if err == nil && !info.IsDir() {
			return p, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("notesource: stat %s: %w", filepath.Base(p), err)
		}
	}
	return "", fmt.Errorf("notesource: no notes for patient %s: %w", patientID, apperr.ErrNotFound)
}

// PatientIDFromPath returns the patient id a source file belongs to, or
// false when path is not a recognised notes file.
func PatientIDFromPath(path string) (string, bool) {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	for _, e := range Extensions {
		if ext == e {
			id := strings.TrimSuffix(base, ext)
			if id == "" || strings.HasPrefix(id, ".") {
				return "", false
			}
			return id, true
		}
	}
	return "", false
}
