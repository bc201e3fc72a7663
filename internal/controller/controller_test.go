package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hyorim/carenotes/internal/apperr"
	"github.com/hyorim/carenotes/internal/models"
	"github.com/hyorim/carenotes/internal/testutil"
)

const scenarioPayload = `[
	{"date": "2025-07-24", "items": [{"keyword": "발열", "detail": "38.2도"}]},
	{"date": "2025-07-25", "items": [{"keyword": "가래", "detail": "호전됨"}]}
]`

const testDebounce = 40 * time.Millisecond

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mapFetcher map[string]string

func (m mapFetcher) FetchNotes(_ context.Context, patientID string) ([]byte, error) {
	p, ok := m[patientID]
	if !ok {
		return nil, fmt.Errorf("등록된 기록이 없습니다: %s", patientID)
	}
	return []byte(p), nil
}

func newTestController(t *testing.T, f Fetcher, opts ...Option) *Controller {
	t.Helper()
	opts = append([]Option{WithDebounce(testDebounce), WithLogger(quietLogger())}, opts...)
	c := New(f, opts...)
	t.Cleanup(c.Close)
	return c
}

func snapshot(t *testing.T, c *Controller) ReadModel {
	t.Helper()
	rm, err := c.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	return rm
}

func waitStatus(t *testing.T, c *Controller, want Status) ReadModel {
	t.Helper()
	var rm ReadModel
	testutil.Eventually(t, 2*time.Second, 5*time.Millisecond, func() bool {
		rm = snapshot(t, c)
		return rm.Status == want
	}, fmt.Sprintf("status never became %s", want))
	return rm
}

func waitEffective(t *testing.T, c *Controller, want string) ReadModel {
	t.Helper()
	var rm ReadModel
	testutil.Eventually(t, 2*time.Second, 5*time.Millisecond, func() bool {
		rm = snapshot(t, c)
		return rm.EffectiveQuery == want
	}, fmt.Sprintf("effective query never became %q", want))
	return rm
}

func dates(entries []models.DayEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Date
	}
	return out
}

func TestScenario_EmptyQuery(t *testing.T) {
	c := newTestController(t, mapFetcher{"25-0000032": scenarioPayload})
	if rm := snapshot(t, c); rm.Status != StatusIdle {
		t.Fatalf("initial status = %s", rm.Status)
	}
	if err := c.Load("25-0000032"); err != nil {
		t.Fatal(err)
	}
	rm := waitStatus(t, c, StatusReady)

	if len(rm.Ascending) != 2 || rm.TotalDays != 2 {
		t.Fatalf("filtered = %v", dates(rm.Ascending))
	}
	if got := dates(rm.Descending); got[0] != "2025-07-25" || got[1] != "2025-07-24" {
		t.Errorf("descending = %v", got)
	}
	want := []models.KeywordStat{{Keyword: "발열", Count: 1}, {Keyword: "가래", Count: 1}}
	if len(rm.Keywords) != 2 || rm.Keywords[0] != want[0] || rm.Keywords[1] != want[1] {
		t.Errorf("keywords = %v, want %v", rm.Keywords, want)
	}
	if rm.SelectedDate != "2025-07-25" {
		t.Errorf("selected = %q", rm.SelectedDate)
	}
	if len(rm.SelectedItems) != 1 || !rm.SelectedItems[0].Improved {
		t.Errorf("selected items = %#v", rm.SelectedItems)
	}
	if rm.SelectedLabel != "2025-07-25 (금)" {
		t.Errorf("label = %q", rm.SelectedLabel)
	}
}

func TestScenario_QueryReconcilesSelection(t *testing.T) {
	c := newTestController(t, mapFetcher{"p": scenarioPayload})
	_ = c.Load("p")
	waitStatus(t, c, StatusReady)

	if err := c.SetQuery("발열"); err != nil {
		t.Fatal(err)
	}
	rm := snapshot(t, c)
	if rm.RawQuery != "발열" {
		t.Errorf("raw query must update immediately, got %q", rm.RawQuery)
	}

	rm = waitEffective(t, c, "발열")
	if got := dates(rm.Ascending); len(got) != 1 || got[0] != "2025-07-24" {
		t.Fatalf("filtered = %v", got)
	}
	if rm.SelectedDate != "2025-07-24" {
		t.Errorf("selected = %q, want 2025-07-24", rm.SelectedDate)
	}
	if len(rm.SelectedItems) != 1 || rm.SelectedItems[0].Keyword != "발열" || rm.SelectedItems[0].Detail != "38.2도" {
		t.Errorf("rendered = %#v", rm.SelectedItems)
	}
	if len(rm.Keywords) != 1 || rm.Keywords[0].Keyword != "발열" {
		t.Errorf("keywords = %v", rm.Keywords)
	}
}

func TestDebounce_SingleRecomputation(t *testing.T) {
	c := newTestController(t, mapFetcher{"p": scenarioPayload}, WithDebounce(80*time.Millisecond))
	_ = c.Load("p")
	before := waitStatus(t, c, StatusReady).Revision

	for _, q := range []string{"a", "ab", "abc"} {
		if err := c.SetQuery(q); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if rm := snapshot(t, c); rm.EffectiveQuery != "" || rm.Revision != before {
		t.Fatalf("recomputed before settling: %+v", rm)
	}

	waitEffective(t, c, "abc")
	time.Sleep(200 * time.Millisecond)
	rm := snapshot(t, c)
	if rm.Revision != before+1 {
		t.Errorf("revision = %d, want %d", rm.Revision, before+1)
	}
	if rm.EffectiveQuery != "abc" || len(rm.Ascending) != 0 || rm.SelectedDate != "" {
		t.Errorf("after settle = %+v", rm)
	}
}

func TestManualSelectionPreserved(t *testing.T) {
	payload := `[
		{"date": "2025-07-23", "items": [{"keyword": "수면", "detail": "양호"}]},
		{"date": "2025-07-24", "items": [{"keyword": "발열", "detail": "38.2도"}, {"keyword": "수면", "detail": "뒤척임"}]},
		{"date": "2025-07-25", "items": [{"keyword": "가래", "detail": "많음"}]}
	]`
	c := newTestController(t, mapFetcher{"p": payload})
	_ = c.Load("p")
	waitStatus(t, c, StatusReady)

	if err := c.SelectDate("2025-07-23"); err != nil {
		t.Fatal(err)
	}
	_ = c.SetQuery("수면")
	rm := waitEffective(t, c, "수면")
	if rm.SelectedDate != "2025-07-23" {
		t.Errorf("manual selection lost: %q", rm.SelectedDate)
	}
	if got := dates(rm.Ascending); len(got) != 2 {
		t.Errorf("filtered = %v", got)
	}

	err := c.SelectDate("2025-07-25")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("selecting a filtered-out date: err = %v", err)
	}
}

func TestToggleKeyword(t *testing.T) {
	c := newTestController(t, mapFetcher{"p": scenarioPayload})
	_ = c.Load("p")
	waitStatus(t, c, StatusReady)

	q, err := c.ToggleKeyword("가래")
	if err != nil || q != "가래" {
		t.Fatalf("toggle on = %q, %v", q, err)
	}
	waitEffective(t, c, "가래")

	q, _ = c.ToggleKeyword("가래")
	if q != "" {
		t.Fatalf("toggle off = %q", q)
	}
	rm := waitEffective(t, c, "")
	if len(rm.Ascending) != 2 {
		t.Errorf("filter not cleared: %v", dates(rm.Ascending))
	}

	q, _ = c.ToggleKeyword("발열")
	if q != "발열" {
		t.Errorf("toggle other = %q", q)
	}
}

// gatedFetcher blocks fetches for gated patients until released. It ignores
// cancellation so that late responses really arrive.
type gatedFetcher struct {
	mu       sync.Mutex
	payloads map[string]string
	gates    map[string]chan struct{}
}

func (g *gatedFetcher) FetchNotes(_ context.Context, patientID string) ([]byte, error) {
	g.mu.Lock()
	gate := g.gates[patientID]
	payload := g.payloads[patientID]
	g.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return []byte(payload), nil
}

func TestStaleResponseDiscarded(t *testing.T) {
	gate := make(chan struct{})
	f := &gatedFetcher{
		payloads: map[string]string{
			"slow": `[{"date": "2024-01-01", "items": [{"keyword": "욕창"}]}]`,
			"fast": scenarioPayload,
		},
		gates: map[string]chan struct{}{"slow": gate},
	}
	c := newTestController(t, f)

	_ = c.Load("slow")
	if rm := snapshot(t, c); rm.Status != StatusLoading || rm.PatientID != "slow" {
		t.Fatalf("after first load = %+v", rm)
	}
	_ = c.Load("fast")
	rm := waitStatus(t, c, StatusReady)
	revision := rm.Revision

	close(gate)
	time.Sleep(100 * time.Millisecond)

	rm = snapshot(t, c)
	if rm.PatientID != "fast" || rm.SelectedDate != "2025-07-25" || len(rm.Ascending) != 2 {
		t.Errorf("stale response leaked into state: %+v", rm)
	}
	if rm.Revision != revision {
		t.Errorf("stale response triggered a recomputation")
	}
}

func TestStaleResponseSamePatientReload(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	started := make(chan struct{})
	first := make(chan struct{})
	f := FetcherFunc(func(_ context.Context, _ string) ([]byte, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			close(started)
			<-first
			return []byte(`[{"date": "2020-01-01", "items": []}]`), nil
		}
		return []byte(scenarioPayload), nil
	})
	c := newTestController(t, f)

	_ = c.Load("p")
	// The reload is only issued once the first fetch is in flight, so the
	// blocked call is always the older one.
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first fetch never started")
	}
	if err := c.Reload(); err != nil {
		t.Fatal(err)
	}
	waitStatus(t, c, StatusReady)
	close(first)
	time.Sleep(100 * time.Millisecond)

	if rm := snapshot(t, c); rm.TotalDays != 2 {
		t.Errorf("older request overwrote newer one: %+v", rm)
	}
}

func TestQueryTypedDuringLoadIsReset(t *testing.T) {
	gate := make(chan struct{})
	f := &gatedFetcher{
		payloads: map[string]string{"p": scenarioPayload},
		gates:    map[string]chan struct{}{"p": gate},
	}
	c := newTestController(t, f)

	_ = c.Load("p")
	if err := c.SetQuery("발열"); err != nil {
		t.Fatal(err)
	}
	if rm := snapshot(t, c); rm.Status != StatusLoading || rm.RawQuery != "발열" {
		t.Fatalf("while loading = %+v", rm)
	}

	close(gate)
	waitStatus(t, c, StatusReady)
	time.Sleep(2 * testDebounce)

	rm := snapshot(t, c)
	if rm.RawQuery != "" || rm.EffectiveQuery != "" {
		t.Errorf("query survived load: raw=%q effective=%q", rm.RawQuery, rm.EffectiveQuery)
	}
	if rm.TotalDays != 2 || len(rm.Ascending) != 2 {
		t.Errorf("filter applied after load: %v", dates(rm.Ascending))
	}
}

func TestLoadFailure(t *testing.T) {
	c := newTestController(t, mapFetcher{"p": scenarioPayload})
	_ = c.Load("p")
	waitStatus(t, c, StatusReady)

	_ = c.Load("missing")
	rm := waitStatus(t, c, StatusFailed)
	if rm.Error == "" {
		t.Error("expected error description")
	}
	if len(rm.Ascending) != 0 || len(rm.Keywords) != 0 || rm.SelectedDate != "" || rm.TotalDays != 0 {
		t.Errorf("partial state retained: %+v", rm)
	}

	_ = c.Load("p")
	rm = waitStatus(t, c, StatusReady)
	if rm.Error != "" || rm.TotalDays != 2 {
		t.Errorf("recovery = %+v", rm)
	}
}

func TestPatientSwitchClearsPendingQuery(t *testing.T) {
	c := newTestController(t, mapFetcher{"p1": scenarioPayload, "p2": scenarioPayload}, WithDebounce(60*time.Millisecond))
	_ = c.Load("p1")
	waitStatus(t, c, StatusReady)

	_ = c.SetQuery("발열")
	_ = c.Load("p2")
	waitStatus(t, c, StatusReady)
	time.Sleep(150 * time.Millisecond)

	rm := snapshot(t, c)
	if rm.RawQuery != "" || rm.EffectiveQuery != "" {
		t.Errorf("query carried over to new patient: raw=%q effective=%q", rm.RawQuery, rm.EffectiveQuery)
	}
	if len(rm.Ascending) != 2 || rm.SelectedDate != "2025-07-25" {
		t.Errorf("state = %+v", rm)
	}
}

func TestLoadResetsFilterOnSuccess(t *testing.T) {
	c := newTestController(t, mapFetcher{"p": scenarioPayload})
	_ = c.Load("p")
	waitStatus(t, c, StatusReady)
	_ = c.SetQuery("가래")
	waitEffective(t, c, "가래")
	_ = c.SelectDate("2025-07-25")

	_ = c.Reload()
	rm := waitStatus(t, c, StatusReady)
	if rm.EffectiveQuery != "" || rm.SelectedDate != "2025-07-25" || len(rm.Ascending) != 2 {
		t.Errorf("reload state = %+v", rm)
	}
}

func TestMalformedPayloadLoadsEmpty(t *testing.T) {
	c := newTestController(t, mapFetcher{"p": `{"unexpected": true}`})
	_ = c.Load("p")
	rm := waitStatus(t, c, StatusReady)
	if rm.TotalDays != 0 || rm.SelectedDate != "" || rm.Error != "" {
		t.Errorf("state = %+v", rm)
	}
}

func TestEnvelopeFieldsOption(t *testing.T) {
	c := newTestController(t, mapFetcher{"p": `{"records": ` + scenarioPayload + `}`}, WithEnvelopeFields("records"))
	_ = c.Load("p")
	if rm := waitStatus(t, c, StatusReady); rm.TotalDays != 2 {
		t.Errorf("days = %d", rm.TotalDays)
	}
}

func TestOnChangeHook(t *testing.T) {
	var mu sync.Mutex
	var seen []Status
	c := newTestController(t, mapFetcher{"p": scenarioPayload}, WithOnChange(func(rm ReadModel) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, rm.Status)
	}))
	_ = c.Load("p")
	waitStatus(t, c, StatusReady)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) < 2 || seen[0] != StatusLoading || seen[len(seen)-1] != StatusReady {
		t.Errorf("notifications = %v", seen)
	}
}

func TestInvalidInputAndClose(t *testing.T) {
	c := New(mapFetcher{}, WithLogger(quietLogger()))
	if err := c.Load(""); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("empty patient: %v", err)
	}
	if err := c.Reload(); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("reload without patient: %v", err)
	}
	c.Close()
	c.Close()
	if _, err := c.Snapshot(); !errors.Is(err, apperr.ErrClosed) {
		t.Errorf("snapshot after close: %v", err)
	}
	if err := c.SetQuery("x"); !errors.Is(err, apperr.ErrClosed) {
		t.Errorf("set query after close: %v", err)
	}
}

func TestKeywords(t *testing.T) {
	c := newTestController(t, mapFetcher{"p": scenarioPayload})
	_ = c.Load("p")
	waitStatus(t, c, StatusReady)
	_ = c.SetQuery("발열")
	waitEffective(t, c, "발열")

	kws, err := c.Keywords()
	if err != nil {
		t.Fatal(err)
	}
	if len(kws) != 2 {
		t.Errorf("keywords should ignore the filter: %v", kws)
	}
}
