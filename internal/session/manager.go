// Package session keeps the live timeline views, one controller per view.
package session

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sahilm/fuzzy"

	"github.com/hyorim/carenotes/internal/apperr"
	"github.com/hyorim/carenotes/internal/controller"
	"github.com/hyorim/carenotes/internal/sse"
)

// Event types published per session.
const (
	EventTimelineUpdated = "timeline.updated"
	EventNotesChanged    = "notes.changed"
)

// Publisher delivers session events to subscribers of a topic.
type Publisher interface {
	Publish(topic string, event sse.Event)
	Drop(topic string)
}

// Session is one live view.
type Session struct {
	ID        string
	CreatedAt time.Time
	*controller.Controller
}

// Suggestion is a keyword proposed for a partial query.
type Suggestion struct {
	Keyword string `json:"keyword"`
	Score   int    `json:"score"`
}

// Manager creates, tracks and tears down sessions.
type Manager struct {
	fetcher   controller.Fetcher
	publisher Publisher
	ctrlOpts  []controller.Option
	logger    *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// Option configures a Manager.
type Option func(*Manager)

// WithPublisher routes session events to p.
func WithPublisher(p Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithControllerOptions applies opts to every controller the manager starts.
func WithControllerOptions(opts ...controller.Option) Option {
	return func(m *Manager) { m.ctrlOpts = append(m.ctrlOpts, opts...) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager returns an empty manager whose controllers fetch through f.
func NewManager(f controller.Fetcher, opts ...Option) *Manager {
	m := &Manager{
		fetcher:  f,
		logger:   slog.Default(),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create starts a session and begins loading patientID.
func (m *Manager) Create(patientID string) (*Session, error) {
	if patientID == "" {
		return nil, fmt.Errorf("session: patient id is required: %w", apperr.ErrInvalidInput)
	}
	id := uuid.New().String()

	opts := slices.Clone(m.ctrlOpts)
	opts = append(opts, controller.WithLogger(m.logger.With(slog.String("session", id))))
	if m.publisher != nil {
		opts = append(opts, controller.WithOnChange(func(rm controller.ReadModel) {
			m.publisher.Publish(id, sse.Event{Type: EventTimelineUpdated, Data: map[string]any{
				"revision":   rm.Revision,
				"status":     rm.Status,
				"patient_id": rm.PatientID,
			}})
		}))
	}

	s := &Session{ID: id, CreatedAt: time.Now().UTC(), Controller: controller.New(m.fetcher, opts...)}
	if err := s.Load(patientID); err != nil {
		s.Controller.Close()
		return nil, err
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Info("session: created", slog.String("session", id), slog.String("patient_id", patientID))
	return s, nil
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session: %s: %w", id, apperr.ErrNotFound)
	}
	return s, nil
}

// Close stops the session and disconnects its event streams.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("session: %s: %w", id, apperr.ErrNotFound)
	}
	s.Controller.Close()
	if m.publisher != nil {
		m.publisher.Drop(id)
	}
	m.logger.Info("session: closed", slog.String("session", id))
	return nil
}

// CloseAll stops every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for id, s := range all {
		s.Controller.Close()
		if m.publisher != nil {
			m.publisher.Drop(id)
		}
	}
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// NotesChanged tells every session showing patientID that its notes changed
// at the source. Sessions are not reloaded; the client decides when to.
func (m *Manager) NotesChanged(patientID string) int {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	n := 0
	for _, s := range all {
		rm, err := s.Snapshot()
		if err != nil || rm.PatientID != patientID {
			continue
		}
		n++
		if m.publisher != nil {
			m.publisher.Publish(s.ID, sse.Event{Type: EventNotesChanged, Data: map[string]string{"patient_id": patientID}})
		}
	}
	return n
}

// Suggest ranks the session's keywords against a partial query. An empty
// query returns the keywords in aggregation order.
func (m *Manager) Suggest(id, query string, limit int) ([]Suggestion, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	keywords, err := s.Keywords()
	if err != nil {
		return nil, err
	}
	return Rank(keywords, query, limit), nil
}

// Rank orders keywords by fuzzy match score against query. limit <= 0 means
// no limit.
func Rank(keywords []string, query string, limit int) []Suggestion {
	out := []Suggestion{}
	query = strings.TrimSpace(query)
	if query == "" {
		for _, kw := range keywords {
			out = append(out, Suggestion{Keyword: kw})
		}
	} else {
		for _, match := range fuzzy.Find(query, keywords) {
			out = append(out, Suggestion{Keyword: match.Str, Score: match.Score})
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
