// Package controller implements the per-view timeline state machine.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/hyorim/carenotes/internal/apperr"
	"github.com/hyorim/carenotes/internal/debounce"
	"github.com/hyorim/carenotes/internal/models"
	"github.com/hyorim/carenotes/internal/palette"
	"github.com/hyorim/carenotes/internal/timeline"
)

// DefaultDebounce is the quiet period before a typed query is applied.
const DefaultDebounce = 250 * time.Millisecond

// Status is the load state of a controller.
type Status string

// Load states.
const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// Fetcher retrieves the raw notes payload of a patient.
type Fetcher interface {
	FetchNotes(ctx context.Context, patientID string) ([]byte, error)
}

// FetcherFunc adapts an ordinary function to Fetcher.
type FetcherFunc func(ctx context.Context, patientID string) ([]byte, error)

// FetchNotes calls f.
func (f FetcherFunc) FetchNotes(ctx context.Context, patientID string) ([]byte, error) {
	return f(ctx, patientID)
}

// ReadModel is everything a view needs to render the timeline.
type ReadModel struct {
	PatientID      string                  `json:"patient_id"`
	Status         Status                  `json:"status"`
	Error          string                  `json:"error,omitempty"`
	RawQuery       string                  `json:"raw_query"`
	EffectiveQuery string                  `json:"effective_query"`
	TotalDays      int                     `json:"total_days"`
	Ascending      []models.DayEntry       `json:"ascending"`
	Descending     []models.DayEntry       `json:"descending"`
	Keywords       []models.KeywordStat    `json:"keywords"`
	SelectedDate   string                  `json:"selected_date"`
	SelectedLabel  string                  `json:"selected_label,omitempty"`
	SelectedItems  []timeline.RenderedItem `json:"selected_items"`
	SelectedGroups []timeline.ItemGroup    `json:"selected_groups"`
	// Revision counts recomputations of the filtered set.
	Revision uint64 `json:"revision"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithDebounce sets the query debounce interval.
func WithDebounce(d time.Duration) Option {
	return func(c *Controller) { c.debounceDelay = d }
}

// WithEnvelopeFields sets the envelope keys accepted by the index.
func WithEnvelopeFields(fields ...string) Option {
	return func(c *Controller) { c.envelopeFields = fields }
}

// WithPalette sets the colors used for rendered items.
func WithPalette(p timeline.Colorer) Option {
	return func(c *Controller) { c.colors = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithOnChange registers a hook called with the new read model after every
// state change. It runs on the controller goroutine and must not call back
// into the controller.
func WithOnChange(fn func(ReadModel)) Option {
	return func(c *Controller) { c.onChange = fn }
}

type pendingQuery struct {
	query      string
	generation uint64
}

type state struct {
	patientID      string
	status         Status
	err            string
	index          *timeline.Index
	rawQuery       string
	effectiveQuery string
	filtered       []models.DayEntry
	keywords       []models.KeywordStat
	selected       string
	generation     uint64
	revision       uint64
	cancelFetch    context.CancelFunc
}

// Controller owns one view's timeline: the notes of the active patient, the
// search query and the selected date.
//
// Concurrency model: a single goroutine owns all mutable state. Public
// methods, fetch completions and debounce settlements are posted to it as
// commands, so every recomputation runs serialized on that goroutine.
type Controller struct {
	fetcher        Fetcher
	debounceDelay  time.Duration
	envelopeFields []string
	colors         timeline.Colorer
	logger         *slog.Logger
	onChange       func(ReadModel)

	queries *debounce.Debouncer[pendingQuery]
	ctx     context.Context
	cancel  context.CancelFunc

	cmdCh   chan func(*state)
	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// New starts a controller in the idle state.
func New(fetcher Fetcher, opts ...Option) *Controller {
	c := &Controller{
		fetcher:       fetcher,
		debounceDelay: DefaultDebounce,
		cmdCh:         make(chan func(*state)),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.colors == nil {
		c.colors = palette.Default()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.queries = debounce.New(c.debounceDelay, func(p pendingQuery) {
		c.post(func(s *state) { c.settleQuery(s, p) })
	})

	go c.run()
	return c
}

func (c *Controller) run() {
	defer close(c.stopped)

	s := &state{
		status: StatusIdle,
		index:  timeline.NewIndex(c.envelopeFields...),
	}

	for {
		select {
		case <-c.stopCh:
			c.queries.Cancel()
			if s.cancelFetch != nil {
				s.cancelFetch()
			}
			c.cancel()
			return
		case cmd := <-c.cmdCh:
			cmd(s)
		}
	}
}

// post hands fn to the loop without waiting for it to run.
func (c *Controller) post(fn func(*state)) {
	select {
	case c.cmdCh <- fn:
	case <-c.stopped:
	}
}

// do runs fn on the loop and waits for it to finish.
func (c *Controller) do(fn func(*state)) error {
	if c.closed.Load() {
		return apperr.ErrClosed
	}
	done := make(chan struct{})
	select {
	case c.cmdCh <- func(s *state) {
		defer close(done)
		fn(s)
	}:
	case <-c.stopped:
		return apperr.ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-c.stopped:
		return apperr.ErrClosed
	}
}

// Close stops the controller, abandoning any fetch and pending query.
func (c *Controller) Close() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.stopCh)
	}
	<-c.stopped
}

// Load switches to patientID and fetches its notes. Any earlier fetch is
// abandoned and its result will be discarded. Calling Load with the current
// patient reloads it.
func (c *Controller) Load(patientID string) error {
	if patientID == "" {
		return fmt.Errorf("controller: patient id is required: %w", apperr.ErrInvalidInput)
	}
	return c.do(func(s *state) { c.startLoad(s, patientID) })
}

// Reload fetches the current patient again.
func (c *Controller) Reload() error {
	var err error
	if doErr := c.do(func(s *state) {
		if s.patientID == "" {
			err = fmt.Errorf("controller: no patient loaded: %w", apperr.ErrInvalidInput)
			return
		}
		c.startLoad(s, s.patientID)
	}); doErr != nil {
		return doErr
	}
	return err
}

// SetQuery records the typed query. The filtered view follows once the
// query has been stable for the debounce interval.
func (c *Controller) SetQuery(query string) error {
	return c.do(func(s *state) { c.setRawQuery(s, query) })
}

// ToggleKeyword applies keyword as the query, or clears the query when
// keyword is already the active one. It returns the resulting raw query.
func (c *Controller) ToggleKeyword(keyword string) (string, error) {
	var q string
	err := c.do(func(s *state) {
		q = keyword
		if timeline.NormalizeQuery(s.effectiveQuery) == keyword || s.rawQuery == keyword {
			q = ""
		}
		c.setRawQuery(s, q)
	})
	return q, err
}

// SelectDate selects date, which must be part of the filtered set.
func (c *Controller) SelectDate(date string) error {
	var err error
	if doErr := c.do(func(s *state) {
		if !timeline.Contains(s.filtered, date) {
			err = fmt.Errorf("controller: date %q not in view: %w", date, apperr.ErrNotFound)
			return
		}
		if s.selected != date {
			s.selected = date
			c.notify(s)
		}
	}); doErr != nil {
		return doErr
	}
	return err
}

// Snapshot returns the current read model.
func (c *Controller) Snapshot() (ReadModel, error) {
	var rm ReadModel
	err := c.do(func(s *state) { rm = c.readModel(s) })
	return rm, err
}

// Keywords returns the distinct category keywords of the unfiltered notes.
func (c *Controller) Keywords() ([]string, error) {
	var out []string
	err := c.do(func(s *state) {
		all := slices.Collect(s.index.Ascending())
		for _, st := range timeline.Aggregate(all) {
			out = append(out, st.Keyword)
		}
	})
	return out, err
}

func (c *Controller) startLoad(s *state, patientID string) {
	if s.cancelFetch != nil {
		s.cancelFetch()
		s.cancelFetch = nil
	}
	c.queries.Cancel()

	s.generation++
	gen := s.generation
	s.patientID = patientID
	s.status = StatusLoading
	s.err = ""
	s.index.Reset()
	s.rawQuery, s.effectiveQuery = "", ""
	s.selected = ""
	c.recompute(s)

	ctx, cancel := context.WithCancel(c.ctx)
	s.cancelFetch = cancel
	go func() {
		payload, err := c.fetcher.FetchNotes(ctx, patientID)
		c.post(func(s *state) { c.finishLoad(s, gen, patientID, payload, err) })
	}()

	c.logger.Debug("controller: loading", slog.String("patient_id", patientID), slog.Uint64("generation", gen))
	c.notify(s)
}

func (c *Controller) finishLoad(s *state, gen uint64, patientID string, payload []byte, err error) {
	if gen != s.generation || patientID != s.patientID {
		c.logger.Debug("controller: stale response discarded",
			slog.String("patient_id", patientID),
			slog.Uint64("generation", gen),
			slog.Uint64("current", s.generation))
		return
	}
	if s.cancelFetch != nil {
		s.cancelFetch()
		s.cancelFetch = nil
	}

	if err != nil {
		s.status = StatusFailed
		s.err = err.Error()
		s.index.Reset()
		s.selected = ""
		c.recompute(s)
		c.logger.Warn("controller: load failed",
			slog.String("patient_id", patientID),
			slog.String("error", err.Error()))
		c.notify(s)
		return
	}

	s.index.Load(payload)
	s.rawQuery, s.effectiveQuery = "", ""
	s.selected = s.index.Latest()
	s.status = StatusReady
	c.recompute(s)
	c.logger.Debug("controller: loaded",
		slog.String("patient_id", patientID),
		slog.Int("days", s.index.Len()))
	c.notify(s)
}

func (c *Controller) setRawQuery(s *state, query string) {
	s.rawQuery = query
	c.queries.Push(pendingQuery{query: query, generation: s.generation})
	c.notify(s)
}

func (c *Controller) settleQuery(s *state, p pendingQuery) {
	// A newer keystroke or a patient switch supersedes this settlement.
	if p.generation != s.generation || p.query != s.rawQuery {
		return
	}
	s.effectiveQuery = p.query
	c.recompute(s)
	c.notify(s)
}

func (c *Controller) recompute(s *state) {
	all := slices.Collect(s.index.Ascending())
	s.filtered = timeline.Apply(all, s.effectiveQuery)
	s.keywords = timeline.Aggregate(s.filtered)
	s.selected = timeline.Reconcile(s.selected, s.filtered)
	s.revision++
}

func (c *Controller) notify(s *state) {
	if c.onChange != nil {
		c.onChange(c.readModel(s))
	}
}

func (c *Controller) readModel(s *state) ReadModel {
	asc := cloneEntries(s.filtered)
	desc := slices.Clone(asc)
	slices.Reverse(desc)

	rm := ReadModel{
		PatientID:      s.patientID,
		Status:         s.status,
		Error:          s.err,
		RawQuery:       s.rawQuery,
		EffectiveQuery: s.effectiveQuery,
		TotalDays:      s.index.Len(),
		Ascending:      asc,
		Descending:     desc,
		Keywords:       slices.Clone(s.keywords),
		SelectedDate:   s.selected,
		SelectedItems:  []timeline.RenderedItem{},
		SelectedGroups: []timeline.ItemGroup{},
		Revision:       s.revision,
	}
	if e, ok := timeline.Find(s.filtered, s.selected); ok {
		rm.SelectedLabel = timeline.DateLabel(e.Date)
		rm.SelectedItems = timeline.Render(e.Items, s.effectiveQuery, c.colors)
		rm.SelectedGroups = timeline.Group(rm.SelectedItems)
	}
	return rm
}

func cloneEntries(entries []models.DayEntry) []models.DayEntry {
	out := make([]models.DayEntry, len(entries))
	for i, e := range entries {
		out[i] = models.DayEntry{Date: e.Date, Items: slices.Clone(e.Items)}
	}
	return out
}
