package parser

import (
	"testing"

	"github.com/hyorim/carenotes/internal/models"
)

const sample = `간호기록지
# 2025-07-24
* 가래 많음, 흡인 시행
- 수면 중 땀 흘림
  환자 안정적 (가래 언급 없음)
# 2025-07-25
* 자가배뇨 가능
# 2025-07-23
- 욕창 2단계 드레싱
`

func TestParseByDate(t *testing.T) {
	records := ParseByDate([]byte(sample), nil)
	if len(records) != 3 {
		t.Fatalf("dates = %d, want 3", len(records))
	}

	got := records["2025-07-24"]
	want := []models.NoteItem{
		{Keyword: "가래", Detail: "* 가래 많음, 흡인 시행"},
		{Keyword: "땀", Detail: "- 수면 중 땀 흘림"},
		{Keyword: "수면", Detail: "- 수면 중 땀 흘림"},
	}
	if len(got) != len(want) {
		t.Fatalf("items = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestParseByDate_IgnoresLinesBeforeHeader(t *testing.T) {
	records := ParseByDate([]byte("* 가래\n# 2025-01-01\n"), nil)
	if items := records["2025-01-01"]; items == nil || len(items) != 0 {
		t.Errorf("items = %v", items)
	}
	if len(records) != 1 {
		t.Errorf("records = %v", records)
	}
}

func TestParseByDate_CustomKeywords(t *testing.T) {
	records := ParseByDate([]byte("# 2025-01-01\n* 발열 38도\n* 가래\n"), []string{"발열"})
	if items := records["2025-01-01"]; len(items) != 1 || items[0].Keyword != "발열" {
		t.Errorf("items = %v", items)
	}
}

func TestDeriveImprovements(t *testing.T) {
	records := map[string][]models.NoteItem{
		"2025-07-24": {{Keyword: "욕창", Detail: "a"}, {Keyword: "가래", Detail: "b"}, {Keyword: "욕창", Detail: "c"}},
		"2025-07-25": {{Keyword: "가래", Detail: "d"}},
		"2025-07-26": {},
	}
	out := DeriveImprovements(records)

	if first := out["2025-07-24"]; len(first) != 3 {
		t.Errorf("first day must be unchanged: %v", first)
	}
	second := out["2025-07-25"]
	if len(second) != 2 || second[1] != (models.NoteItem{Keyword: "욕창", Detail: "호전됨"}) {
		t.Errorf("second day = %v", second)
	}
	third := out["2025-07-26"]
	if len(third) != 1 || third[0].Keyword != "가래" || third[0].Detail != "호전됨" {
		t.Errorf("third day = %v", third)
	}
	if len(records["2025-07-25"]) != 1 {
		t.Error("input mutated")
	}
}

func TestBuildNotes(t *testing.T) {
	notes := BuildNotes([]byte(sample), Options{DeriveImprovements: true})
	if len(notes) != 3 {
		t.Fatalf("notes = %v", notes)
	}
	if notes[0].Date != "2025-07-23" || notes[2].Date != "2025-07-25" {
		t.Errorf("order = %s, %s, %s", notes[0].Date, notes[1].Date, notes[2].Date)
	}
	// 07-24 lost 욕창 from 07-23.
	last := notes[1].Items[len(notes[1].Items)-1]
	if last.Keyword != "욕창" || last.Detail != "호전됨" {
		t.Errorf("improvement = %+v", last)
	}
	// 07-25 lost 가래, 땀 and 수면.
	if n := len(notes[2].Items); n != 4 {
		t.Errorf("07-25 items = %v", notes[2].Items)
	}
}

func TestBuildNotes_Empty(t *testing.T) {
	notes := BuildNotes(nil, Options{})
	if notes == nil || len(notes) != 0 {
		t.Errorf("notes = %v", notes)
	}
}
